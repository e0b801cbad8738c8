package repository

import (
	"context"
	"time"

	"github.com/timmy/trackr/internal/domain"
	"gorm.io/gorm"
)

// HistoryRepository is the append-only engagement ledger.
type HistoryRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// RecordMeasurement appends a point and moves the post's latest metrics
// forward in one transaction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - point: measurement to append; RecordedAt is the measurement time.
// Returns:
//   - error: domain.ErrNotFound if the post is gone, or the failing statement.
//
// The metrics update is conditional on last_scraped_at so a measurement
// older than the stored one never overwrites it.
func (r *HistoryRepository) RecordMeasurement(ctx context.Context, point *domain.EngagementHistoryPoint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(point).Error; err != nil {
			return translate(err, "history point", point.ID)
		}

		at := point.RecordedAt
		if err := tx.Model(&domain.Post{}).
			Where("id = ? AND (last_scraped_at IS NULL OR last_scraped_at <= ?)", point.PostID, at).
			Updates(map[string]interface{}{
				"views":           point.Views,
				"likes":           point.Likes,
				"comments":        point.Comments,
				"shares":          point.Shares,
				"engagement_rate": point.Metrics.Rate(),
				"last_scraped_at": at,
			}).Error; err != nil {
			return err
		}

		res := tx.Model(&domain.Post{}).Where("id = ?", point.PostID).Updates(map[string]interface{}{
			"scrape_status": domain.ScrapeStatusScraped,
			"last_error":    "",
			"updated_at":    time.Now().UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return translate(gorm.ErrRecordNotFound, "post", point.PostID)
		}
		return nil
	})
}

// ListByCampaign returns the campaign's points recorded at or after since.
func (r *HistoryRepository) ListByCampaign(ctx context.Context, campaignID string, since time.Time) ([]domain.EngagementHistoryPoint, error) {
	var points []domain.EngagementHistoryPoint
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND recorded_at >= ?", campaignID, since).
		Order("recorded_at ASC").
		Find(&points).Error
	return points, err
}

// ListByPost returns the post's points recorded at or after since.
func (r *HistoryRepository) ListByPost(ctx context.Context, postID string, since time.Time) ([]domain.EngagementHistoryPoint, error) {
	var points []domain.EngagementHistoryPoint
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND recorded_at >= ?", postID, since).
		Order("recorded_at ASC").
		Find(&points).Error
	return points, err
}
