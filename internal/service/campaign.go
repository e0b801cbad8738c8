package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/trackr/internal/aggregate"
	"github.com/timmy/trackr/internal/domain"
	"github.com/timmy/trackr/internal/logger"
	"golang.org/x/crypto/bcrypt"
)

// CampaignInput creates a campaign.
type CampaignInput struct {
	Name       string `json:"name"`
	SongTitle  string `json:"song_title"`
	SongArtist string `json:"song_artist"`
	Status     string `json:"status"`
}

// CampaignUpdate holds editable campaign fields. Nil fields are kept.
type CampaignUpdate struct {
	Name       *string `json:"name,omitempty"`
	SongTitle  *string `json:"song_title,omitempty"`
	SongArtist *string `json:"song_artist,omitempty"`
	Status     *string `json:"status,omitempty"`
}

// SharingInput toggles the public read-only link of a campaign.
// A nil Password keeps the current one, an empty one removes it.
type SharingInput struct {
	Enabled  bool    `json:"enabled"`
	Password *string `json:"password,omitempty"`
}

// CampaignWithStats is a campaign with its list-view summary.
type CampaignWithStats struct {
	domain.Campaign
	Stats aggregate.CampaignStats `json:"stats"`
}

// HistorySeries is a daily series of one metric.
type HistorySeries struct {
	Metric  aggregate.Metric      `json:"metric"`
	Window  aggregate.Window      `json:"window"`
	Label   string                `json:"label"`
	Buckets []aggregate.DayBucket `json:"buckets"`
}

// CampaignService manages campaigns and serves their aggregated views.
type CampaignService struct {
	campaigns CampaignStore
	posts     PostStore
	history   HistoryStore
	cache     StatsCache
	nowFn     func() time.Time
}

// NewCampaignService creates a campaign service. cache may be nil.
func NewCampaignService(campaigns CampaignStore, posts PostStore, history HistoryStore, cache StatsCache) *CampaignService {
	if cache == nil {
		cache = noopCache{}
	}
	return &CampaignService{
		campaigns: campaigns,
		posts:     posts,
		history:   history,
		cache:     cache,
		nowFn:     time.Now,
	}
}

// Create adds a campaign. Name is required; status is canonicalized.
func (s *CampaignService) Create(ctx context.Context, in CampaignInput) (*domain.Campaign, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.NewValidationError("name", "is required")
	}
	now := s.nowFn().UTC()
	c := &domain.Campaign{
		ID:         uuid.New().String(),
		Name:       name,
		SongTitle:  strings.TrimSpace(in.SongTitle),
		SongArtist: strings.TrimSpace(in.SongArtist),
		Status:     string(aggregate.CanonicalStatus(in.Status).Workflow()),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	logger.With(logger.Fields{logger.FieldCampaignID: c.ID}).Info(ctx, "Campaign created: %s", c.Name)
	return c, nil
}

// Get returns one campaign.
func (s *CampaignService) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.campaigns.Get(ctx, id)
}

// List returns all campaigns.
func (s *CampaignService) List(ctx context.Context) ([]domain.Campaign, error) {
	return s.campaigns.List(ctx)
}

// ListWithStats returns every campaign with its summary.
func (s *CampaignService) ListWithStats(ctx context.Context) ([]CampaignWithStats, error) {
	campaigns, err := s.campaigns.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	out := make([]CampaignWithStats, 0, len(campaigns))
	for i := range campaigns {
		stats, err := s.stats(ctx, &campaigns[i])
		if err != nil {
			return nil, err
		}
		out = append(out, CampaignWithStats{Campaign: campaigns[i], Stats: *stats})
	}
	return out, nil
}

// Stats returns the campaign summary, from the cache when possible.
func (s *CampaignService) Stats(ctx context.Context, id string) (*aggregate.CampaignStats, error) {
	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.stats(ctx, c)
}

func (s *CampaignService) stats(ctx context.Context, c *domain.Campaign) (*aggregate.CampaignStats, error) {
	if cached, ok := s.cache.Get(ctx, c.ID); ok {
		cached.Status = aggregate.CanonicalStatus(c.Status)
		return cached, nil
	}
	generation := s.cache.Generation(ctx, c.ID)
	posts, err := s.posts.ListByCampaign(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	stats := aggregate.ComputeCampaignStats(c, posts)
	s.cache.Set(ctx, &stats, generation)
	return &stats, nil
}

// Update edits a campaign.
func (s *CampaignService) Update(ctx context.Context, id string, upd CampaignUpdate) (*domain.Campaign, error) {
	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, domain.NewValidationError("name", "must not be empty")
		}
		c.Name = name
	}
	if upd.SongTitle != nil {
		c.SongTitle = strings.TrimSpace(*upd.SongTitle)
	}
	if upd.SongArtist != nil {
		c.SongArtist = strings.TrimSpace(*upd.SongArtist)
	}
	if upd.Status != nil {
		c.Status = string(aggregate.CanonicalStatus(*upd.Status).Workflow())
	}
	c.UpdatedAt = s.nowFn().UTC()
	if err := s.campaigns.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update campaign: %w", err)
	}
	s.cache.Invalidate(ctx, c.ID)
	return c, nil
}

// Delete removes a campaign with its posts, history and jobs.
func (s *CampaignService) Delete(ctx context.Context, id string) error {
	if err := s.campaigns.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)
	logger.With(logger.Fields{logger.FieldCampaignID: id}).Info(ctx, "Campaign deleted")
	return nil
}

// History returns the daily series of metric over window.
func (s *CampaignService) History(ctx context.Context, id, metric, window string) (*HistorySeries, error) {
	if _, err := s.campaigns.Get(ctx, id); err != nil {
		return nil, err
	}
	m, err := aggregate.ParseMetric(metric)
	if err != nil {
		return nil, domain.NewValidationError("metric", err.Error())
	}
	if window == "" {
		window = string(aggregate.Window30d)
	}
	w, err := aggregate.ParseWindow(window)
	if err != nil {
		return nil, domain.NewValidationError("window", err.Error())
	}

	now := s.nowFn().UTC()
	since, _ := aggregate.DaySpan(w, now)
	points, err := s.history.ListByCampaign(ctx, id, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return &HistorySeries{
		Metric:  m,
		Window:  w,
		Label:   w.Label(),
		Buckets: aggregate.GroupByDay(points, m, w, now),
	}, nil
}

// Windows returns the campaign totals for every lookback window.
func (s *CampaignService) Windows(ctx context.Context, id string) ([]aggregate.WindowTotal, error) {
	if _, err := s.campaigns.Get(ctx, id); err != nil {
		return nil, err
	}
	now := s.nowFn().UTC()
	points, err := s.history.ListByCampaign(ctx, id, aggregate.Window90d.Since(now))
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return aggregate.WindowTotals(points, now), nil
}

// UpdateSharing enables or disables the public link. Enabling assigns a
// slug once; the password is stored as a bcrypt hash.
func (s *CampaignService) UpdateSharing(ctx context.Context, id string, in SharingInput) (*domain.Campaign, error) {
	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.ShareEnabled = in.Enabled
	if in.Enabled && (c.ShareSlug == nil || *c.ShareSlug == "") {
		slug := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
		c.ShareSlug = &slug
	}
	if in.Password != nil {
		if *in.Password == "" {
			c.SharePasswordHash = ""
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("failed to hash share password: %w", err)
			}
			c.SharePasswordHash = string(hash)
		}
	}
	c.UpdatedAt = s.nowFn().UTC()
	if err := s.campaigns.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update sharing: %w", err)
	}
	logger.With(logger.Fields{
		logger.FieldCampaignID: c.ID,
		"share_enabled":        c.ShareEnabled,
		"password":             c.SharePasswordHash != "",
	}).Info(ctx, "Campaign sharing updated")
	return c, nil
}

// OpenShare resolves a public slug. The password is checked on every call.
func (s *CampaignService) OpenShare(ctx context.Context, slug, password string) (*domain.Campaign, error) {
	c, err := s.campaigns.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !c.ShareEnabled {
		return nil, fmt.Errorf("%w: sharing is disabled", domain.ErrShareDenied)
	}
	if c.SharePasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(c.SharePasswordHash), []byte(password)); err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return nil, fmt.Errorf("%w: invalid password", domain.ErrShareDenied)
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrShareDenied, err)
		}
	}
	return c, nil
}

// Posts returns the posts of a campaign.
func (s *CampaignService) Posts(ctx context.Context, id string) ([]domain.Post, error) {
	return s.posts.ListByCampaign(ctx, id)
}
