package repository

import (
	"context"

	"github.com/timmy/trackr/internal/domain"
	"gorm.io/gorm"
)

// CampaignRepository handles campaign data operations.
type CampaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository creates a new CampaignRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CampaignRepository: repository instance bound to db.
func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a new campaign record.
func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	return translate(r.db.WithContext(ctx).Create(c).Error, "campaign", c.ID)
}

// Get retrieves a campaign by its ID.
func (r *CampaignRepository) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	var c domain.Campaign
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err, "campaign", id)
	}
	return &c, nil
}

// GetBySlug retrieves a campaign by its public share slug.
func (r *CampaignRepository) GetBySlug(ctx context.Context, slug string) (*domain.Campaign, error) {
	var c domain.Campaign
	if err := r.db.WithContext(ctx).First(&c, "share_slug = ?", slug).Error; err != nil {
		return nil, translate(err, "share", slug)
	}
	return &c, nil
}

// List returns all campaigns, newest first.
func (r *CampaignRepository) List(ctx context.Context) ([]domain.Campaign, error) {
	var campaigns []domain.Campaign
	err := r.db.WithContext(ctx).Order("created_at DESC").Order("id").Find(&campaigns).Error
	return campaigns, err
}

// Update saves all campaign fields.
func (r *CampaignRepository) Update(ctx context.Context, c *domain.Campaign) error {
	res := r.db.WithContext(ctx).Model(&domain.Campaign{}).Where("id = ?", c.ID).
		Select("*").Omit("created_at").Updates(c)
	if res.Error != nil {
		return translate(res.Error, "campaign", c.ID)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "campaign", c.ID)
	}
	return nil
}

// Delete removes a campaign together with its posts, history, jobs and tasks.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: campaign ID.
// Returns:
//   - error: domain.ErrNotFound for an unknown id, or the failing statement.
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		jobIDs := tx.Model(&domain.ScrapeJob{}).Select("id").Where("campaign_id = ?", id)
		if err := tx.Where("job_id IN (?)", jobIDs).Delete(&domain.ScrapeTask{}).Error; err != nil {
			return err
		}
		if err := tx.Where("campaign_id = ?", id).Delete(&domain.ScrapeJob{}).Error; err != nil {
			return err
		}
		if err := tx.Where("campaign_id = ?", id).Delete(&domain.EngagementHistoryPoint{}).Error; err != nil {
			return err
		}
		if err := tx.Where("campaign_id = ?", id).Delete(&domain.Post{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Campaign{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return translate(gorm.ErrRecordNotFound, "campaign", id)
		}
		return nil
	})
}
