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
	"github.com/timmy/trackr/internal/platform"
)

// AddPostInput is a request to track one social link.
type AddPostInput struct {
	URL string `json:"url"`
	// PlatformHint is used only when the URL host is not a known platform.
	PlatformHint string `json:"platform,omitempty"`
	CreatorName  string `json:"creator_name,omitempty"`
}

// PostUpdate holds the user-editable fields of a post. Nil fields are kept.
type PostUpdate struct {
	Status      *string         `json:"status,omitempty"`
	CreatorName *string         `json:"creator_name,omitempty"`
	Metrics     *domain.Metrics `json:"metrics,omitempty"`
	URL         *string         `json:"url,omitempty"`
}

// ImportRow is one row of a bulk import. Empty URL means a placeholder.
type ImportRow struct {
	URL           string
	Platform      string
	CreatorName   string
	Status        string
	Metrics       domain.Metrics
	LastScrapedAt string
}

// ImportError describes a rejected import row (1-based).
type ImportError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Created      int           `json:"created"`
	Placeholders int           `json:"placeholders"`
	Duplicates   int           `json:"duplicates"`
	Failed       int           `json:"failed"`
	Errors       []ImportError `json:"errors,omitempty"`
}

// PostRegistry owns the set of posts tracked per campaign and their
// canonical identity.
type PostRegistry struct {
	campaigns CampaignStore
	posts     PostStore
	cache     StatsCache
	nowFn     func() time.Time
}

// NewPostRegistry creates a registry. cache may be nil.
func NewPostRegistry(campaigns CampaignStore, posts PostStore, cache StatsCache) *PostRegistry {
	if cache == nil {
		cache = noopCache{}
	}
	return &PostRegistry{
		campaigns: campaigns,
		posts:     posts,
		cache:     cache,
		nowFn:     time.Now,
	}
}

// resolve canonicalizes raw and applies the platform hint.
func resolve(raw, hint string) (platform.Link, error) {
	link, err := platform.Canonicalize(raw)
	if err != nil {
		return platform.Link{}, err
	}
	if link.Platform == domain.PlatformUnknown {
		if p := domain.ParsePlatform(hint); p.IsKnown() {
			link.Platform = p
		}
	}
	return link, nil
}

// AddPost canonicalizes the URL and tracks it in the campaign. A post whose
// key already exists is rejected with *domain.DuplicateError.
func (r *PostRegistry) AddPost(ctx context.Context, campaignID string, in AddPostInput) (*domain.Post, error) {
	if _, err := r.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.URL) == "" {
		return nil, domain.NewValidationError("url", "is required")
	}

	link, err := resolve(in.URL, in.PlatformHint)
	if err != nil {
		return nil, err
	}

	now := r.nowFn().UTC()
	post := &domain.Post{
		ID:             uuid.New().String(),
		CampaignID:     campaignID,
		URL:            strings.TrimSpace(in.URL),
		CanonicalURL:   link.CanonicalURL,
		PostKey:        link.Key(),
		Platform:       link.Platform,
		ExternalPostID: link.ExternalID,
		CreatorName:    strings.TrimSpace(in.CreatorName),
		Status:         domain.WorkflowPending,
		ScrapeStatus:   domain.ScrapeStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.create(ctx, post); err != nil {
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldCampaignID: campaignID,
		logger.FieldPostID:     post.ID,
		"platform":             post.Platform,
	}).Info(ctx, "Post added")
	return post, nil
}

// create inserts post, turning a key collision into *domain.DuplicateError.
func (r *PostRegistry) create(ctx context.Context, post *domain.Post) error {
	existing, err := r.posts.GetByKey(ctx, post.CampaignID, post.PostKey)
	if err == nil {
		return &domain.DuplicateError{Existing: existing}
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("failed to check post key: %w", err)
	}

	if err := r.posts.Create(ctx, post); err != nil {
		if errors.Is(err, domain.ErrDuplicateResource) {
			existing, _ := r.posts.GetByKey(ctx, post.CampaignID, post.PostKey)
			return &domain.DuplicateError{Existing: existing}
		}
		return fmt.Errorf("failed to create post: %w", err)
	}
	r.cache.Invalidate(ctx, post.CampaignID)
	return nil
}

// AddPlaceholder adds a stand-in row for a creator whose link is not known yet.
func (r *PostRegistry) AddPlaceholder(ctx context.Context, campaignID, creatorName string) (*domain.Post, error) {
	if _, err := r.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	post := r.placeholder(campaignID, creatorName)
	if err := r.create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (r *PostRegistry) placeholder(campaignID, creatorName string) *domain.Post {
	now := r.nowFn().UTC()
	id := uuid.New().String()
	url := domain.PlaceholderScheme + id
	return &domain.Post{
		ID:           id,
		CampaignID:   campaignID,
		URL:          url,
		CanonicalURL: url,
		PostKey:      domain.PostKey(domain.PlatformUnknown, url),
		Platform:     domain.PlatformUnknown,
		CreatorName:  strings.TrimSpace(creatorName),
		Status:       domain.WorkflowPending,
		ScrapeStatus: domain.ScrapeStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ListPosts returns the posts of a campaign.
func (r *PostRegistry) ListPosts(ctx context.Context, campaignID string) ([]domain.Post, error) {
	if _, err := r.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	return r.posts.ListByCampaign(ctx, campaignID)
}

// GetPost returns one post.
func (r *PostRegistry) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	return r.posts.Get(ctx, id)
}

// UpdatePost applies user edits. Setting a URL re-canonicalizes the post and
// re-checks the campaign for duplicates.
func (r *PostRegistry) UpdatePost(ctx context.Context, id string, upd PostUpdate) (*domain.Post, error) {
	post, err := r.posts.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Status != nil {
		post.Status = aggregate.CanonicalStatus(*upd.Status).Workflow()
	}
	if upd.CreatorName != nil {
		post.CreatorName = strings.TrimSpace(*upd.CreatorName)
	}
	if upd.Metrics != nil {
		m := *upd.Metrics
		if m.Views < 0 || m.Likes < 0 || m.Comments < 0 || m.Shares < 0 {
			return nil, domain.NewValidationError("metrics", "must not be negative")
		}
		post.Metrics = m
		post.EngagementRate = m.Rate()
	}
	if upd.URL != nil {
		raw := strings.TrimSpace(*upd.URL)
		if raw == "" {
			return nil, domain.NewValidationError("url", "must not be empty")
		}
		link, err := resolve(raw, string(post.Platform))
		if err != nil {
			return nil, err
		}
		if link.Key() != post.PostKey {
			existing, err := r.posts.GetByKey(ctx, post.CampaignID, link.Key())
			if err == nil && existing.ID != post.ID {
				return nil, &domain.DuplicateError{Existing: existing}
			}
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("failed to check post key: %w", err)
			}
		}
		post.URL = raw
		post.CanonicalURL = link.CanonicalURL
		post.PostKey = link.Key()
		post.Platform = link.Platform
		post.ExternalPostID = link.ExternalID
	}

	post.UpdatedAt = r.nowFn().UTC()
	if err := r.posts.Update(ctx, post); err != nil {
		if errors.Is(err, domain.ErrDuplicateResource) {
			existing, _ := r.posts.GetByKey(ctx, post.CampaignID, post.PostKey)
			return nil, &domain.DuplicateError{Existing: existing}
		}
		return nil, fmt.Errorf("failed to update post: %w", err)
	}
	r.cache.Invalidate(ctx, post.CampaignID)
	return post, nil
}

// DeletePost removes a post and its history.
func (r *PostRegistry) DeletePost(ctx context.Context, id string) error {
	post, err := r.posts.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.posts.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	r.cache.Invalidate(ctx, post.CampaignID)
	return nil
}

// ImportPosts adds a batch of rows. Rows repeating an earlier row or an
// existing post are counted as duplicates, bad rows are reported per row,
// and rows without a URL become placeholders.
func (r *PostRegistry) ImportPosts(ctx context.Context, campaignID string, rows []ImportRow) (*ImportResult, error) {
	if _, err := r.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	candidates := make([]domain.Post, 0, len(rows))
	firstLine := make(map[string]int, len(rows))
	for i, row := range rows {
		post, err := r.fromRow(campaignID, row)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ImportError{Row: i + 1, Message: err.Error()})
			continue
		}
		if _, ok := firstLine[dedupeKey(post)]; !ok {
			firstLine[dedupeKey(post)] = i + 1
		}
		candidates = append(candidates, *post)
	}

	unique := Dedupe(candidates)
	result.Duplicates += len(candidates) - len(unique)

	for i := range unique {
		post := &unique[i]
		line := firstLine[dedupeKey(post)]
		post.ID = uuid.New().String()
		if post.URL == "" {
			ph := r.placeholder(campaignID, post.CreatorName)
			ph.Status = post.Status
			post = ph
		}
		err := r.create(ctx, post)
		switch {
		case err == nil:
			if post.HasSyntheticURL() {
				result.Placeholders++
			} else {
				result.Created++
			}
		case errors.Is(err, domain.ErrDuplicateResource):
			result.Duplicates++
		default:
			result.Failed++
			result.Errors = append(result.Errors, ImportError{Row: line, Message: err.Error()})
		}
	}

	logger.With(logger.Fields{
		logger.FieldCampaignID: campaignID,
		"created":              result.Created,
		"placeholders":         result.Placeholders,
		"duplicates":           result.Duplicates,
		"failed":               result.Failed,
	}).WithCount(len(rows)).Info(ctx, "Posts imported")
	return result, nil
}

// fromRow builds an unsaved post without an id from an import row.
// Placeholder rows keep an empty URL and key so Dedupe matches them by
// platform and creator.
func (r *PostRegistry) fromRow(campaignID string, row ImportRow) (*domain.Post, error) {
	now := r.nowFn().UTC()
	post := &domain.Post{
		CampaignID:   campaignID,
		CreatorName:  strings.TrimSpace(row.CreatorName),
		Status:       aggregate.CanonicalStatus(row.Status).Workflow(),
		ScrapeStatus: domain.ScrapeStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	raw := strings.TrimSpace(row.URL)
	if raw == "" {
		post.Platform = domain.ParsePlatform(row.Platform)
		return post, nil
	}

	link, err := resolve(raw, row.Platform)
	if err != nil {
		return nil, err
	}
	m := row.Metrics
	if m.Views < 0 || m.Likes < 0 || m.Comments < 0 || m.Shares < 0 {
		return nil, domain.NewValidationError("metrics", "must not be negative")
	}
	post.URL = raw
	post.CanonicalURL = link.CanonicalURL
	post.PostKey = link.Key()
	post.Platform = link.Platform
	post.ExternalPostID = link.ExternalID
	post.Metrics = m
	post.EngagementRate = m.Rate()

	if at, ok := aggregate.ParseTimestamp(row.LastScrapedAt); ok {
		at = at.UTC()
		post.LastScrapedAt = &at
		post.ScrapeStatus = domain.ScrapeStatusScraped
	}
	return post, nil
}

// Dedupe drops repeated posts, keeping the first occurrence and the input
// order. Identity is the id, else the post key, else the URL, else the
// platform and creator pair.
func Dedupe(posts []domain.Post) []domain.Post {
	seen := make(map[string]bool, len(posts))
	out := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		k := dedupeKey(&p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}

func dedupeKey(p *domain.Post) string {
	switch {
	case p.ID != "":
		return "id:" + p.ID
	case p.PostKey != "":
		return "key:" + p.PostKey
	case p.URL != "":
		return "url:" + p.URL
	default:
		return "creator:" + string(p.Platform) + "|" + strings.ToLower(p.CreatorName)
	}
}
