package repository

import (
	"context"
	"time"

	"github.com/timmy/trackr/internal/domain"
	"gorm.io/gorm"
)

// PostRepository handles tracked post operations.
type PostRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new PostRepository.
func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

// Create inserts a post. A key already used in the campaign yields
// domain.ErrDuplicateResource.
func (r *PostRepository) Create(ctx context.Context, p *domain.Post) error {
	return translate(r.db.WithContext(ctx).Create(p).Error, "post", p.PostKey)
}

// Get retrieves a post by its ID.
func (r *PostRepository) Get(ctx context.Context, id string) (*domain.Post, error) {
	var p domain.Post
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err, "post", id)
	}
	return &p, nil
}

// GetByKey retrieves a post by its per-campaign dedup key.
func (r *PostRepository) GetByKey(ctx context.Context, campaignID, postKey string) (*domain.Post, error) {
	var p domain.Post
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND post_key = ?", campaignID, postKey).
		First(&p).Error
	if err != nil {
		return nil, translate(err, "post key", postKey)
	}
	return &p, nil
}

// ListByCampaign returns the posts of a campaign in insertion order.
func (r *PostRepository) ListByCampaign(ctx context.Context, campaignID string) ([]domain.Post, error) {
	var posts []domain.Post
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at ASC").Order("id").
		Find(&posts).Error
	return posts, err
}

// Update saves the user-editable and identity fields of a post.
func (r *PostRepository) Update(ctx context.Context, p *domain.Post) error {
	res := r.db.WithContext(ctx).Model(&domain.Post{}).Where("id = ?", p.ID).
		Select("url", "canonical_url", "post_key", "platform", "external_post_id",
			"creator_name", "status", "views", "likes", "comments", "shares",
			"engagement_rate", "updated_at").
		Updates(p)
	if res.Error != nil {
		return translate(res.Error, "post", p.PostKey)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "post", p.ID)
	}
	return nil
}

// Delete removes a post and its history.
func (r *PostRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&domain.EngagementHistoryPoint{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return translate(gorm.ErrRecordNotFound, "post", id)
		}
		return nil
	})
}

// SetScrapeStatus updates the scrape status and, when given, the last error.
func (r *PostRepository) SetScrapeStatus(ctx context.Context, id string, status domain.ScrapeStatus, lastError *string) error {
	updates := map[string]interface{}{
		"scrape_status": status,
		"updated_at":    time.Now().UTC(),
	}
	if lastError != nil {
		updates["last_error"] = *lastError
	}
	res := r.db.WithContext(ctx).Model(&domain.Post{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "post", id)
	}
	return nil
}
