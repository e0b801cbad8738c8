// Package memstore is an in-process implementation of the service stores.
// It backs the "memory" database driver and the service tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/timmy/trackr/internal/domain"
)

// Store holds all state behind one mutex so cross-entity operations
// (job creation with tasks, measurement with post update) are atomic.
type Store struct {
	mu        sync.Mutex
	campaigns map[string]domain.Campaign
	posts     map[string]domain.Post
	history   []domain.EngagementHistoryPoint
	jobs      map[string]domain.ScrapeJob
	tasks     map[string]domain.ScrapeTask
	taskOrder []string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		campaigns: make(map[string]domain.Campaign),
		posts:     make(map[string]domain.Post),
		jobs:      make(map[string]domain.ScrapeJob),
		tasks:     make(map[string]domain.ScrapeTask),
	}
}

// Campaigns returns the campaign store view.
func (s *Store) Campaigns() *CampaignStore { return &CampaignStore{s} }

// Posts returns the post store view.
func (s *Store) Posts() *PostStore { return &PostStore{s} }

// History returns the engagement ledger view.
func (s *Store) History() *HistoryStore { return &HistoryStore{s} }

// Jobs returns the job store view.
func (s *Store) Jobs() *JobStore { return &JobStore{s} }

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

// CampaignStore implements service.CampaignStore.
type CampaignStore struct{ s *Store }

func (r *CampaignStore) Create(ctx context.Context, c *domain.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.campaigns[c.ID]; ok {
		return fmt.Errorf("campaign %s: %w", c.ID, domain.ErrDuplicateResource)
	}
	r.s.campaigns[c.ID] = *c
	return nil
}

func (r *CampaignStore) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, notFound("campaign", id)
	}
	return &c, nil
}

func (r *CampaignStore) GetBySlug(ctx context.Context, slug string) (*domain.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.campaigns {
		if c.ShareSlug != nil && *c.ShareSlug == slug {
			return &c, nil
		}
	}
	return nil, notFound("share", slug)
}

func (r *CampaignStore) List(ctx context.Context) ([]domain.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Campaign, 0, len(r.s.campaigns))
	for _, c := range r.s.campaigns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *CampaignStore) Update(ctx context.Context, c *domain.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.campaigns[c.ID]; !ok {
		return notFound("campaign", c.ID)
	}
	if c.ShareSlug != nil {
		for id, other := range r.s.campaigns {
			if id != c.ID && other.ShareSlug != nil && *other.ShareSlug == *c.ShareSlug {
				return fmt.Errorf("share slug %s: %w", *c.ShareSlug, domain.ErrDuplicateResource)
			}
		}
	}
	r.s.campaigns[c.ID] = *c
	return nil
}

func (r *CampaignStore) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.campaigns[id]; !ok {
		return notFound("campaign", id)
	}
	delete(r.s.campaigns, id)
	for pid, p := range r.s.posts {
		if p.CampaignID == id {
			delete(r.s.posts, pid)
		}
	}
	kept := r.s.history[:0]
	for _, h := range r.s.history {
		if h.CampaignID != id {
			kept = append(kept, h)
		}
	}
	r.s.history = kept
	for jid, j := range r.s.jobs {
		if j.CampaignID == id {
			r.s.deleteJobLocked(jid)
		}
	}
	return nil
}

func (s *Store) deleteJobLocked(jobID string) {
	delete(s.jobs, jobID)
	order := s.taskOrder[:0]
	for _, tid := range s.taskOrder {
		if s.tasks[tid].JobID == jobID {
			delete(s.tasks, tid)
			continue
		}
		order = append(order, tid)
	}
	s.taskOrder = order
}

// PostStore implements service.PostStore.
type PostStore struct{ s *Store }

func (r *PostStore) Create(ctx context.Context, p *domain.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.campaigns[p.CampaignID]; !ok {
		return notFound("campaign", p.CampaignID)
	}
	if _, ok := r.s.posts[p.ID]; ok {
		return fmt.Errorf("post %s: %w", p.ID, domain.ErrDuplicateResource)
	}
	if r.s.keyTakenLocked(p.CampaignID, p.PostKey, p.ID) {
		return fmt.Errorf("post key %s: %w", p.PostKey, domain.ErrDuplicateResource)
	}
	r.s.posts[p.ID] = *p
	return nil
}

func (s *Store) keyTakenLocked(campaignID, key, exceptID string) bool {
	for id, p := range s.posts {
		if id != exceptID && p.CampaignID == campaignID && p.PostKey == key {
			return true
		}
	}
	return false
}

func (r *PostStore) Get(ctx context.Context, id string) (*domain.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[id]
	if !ok {
		return nil, notFound("post", id)
	}
	return &p, nil
}

func (r *PostStore) GetByKey(ctx context.Context, campaignID, postKey string) (*domain.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.posts {
		if p.CampaignID == campaignID && p.PostKey == postKey {
			return &p, nil
		}
	}
	return nil, notFound("post key", postKey)
}

func (r *PostStore) ListByCampaign(ctx context.Context, campaignID string) ([]domain.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Post, 0)
	for _, p := range r.s.posts {
		if p.CampaignID == campaignID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *PostStore) Update(ctx context.Context, p *domain.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.posts[p.ID]; !ok {
		return notFound("post", p.ID)
	}
	if r.s.keyTakenLocked(p.CampaignID, p.PostKey, p.ID) {
		return fmt.Errorf("post key %s: %w", p.PostKey, domain.ErrDuplicateResource)
	}
	r.s.posts[p.ID] = *p
	return nil
}

func (r *PostStore) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.posts[id]; !ok {
		return notFound("post", id)
	}
	delete(r.s.posts, id)
	kept := r.s.history[:0]
	for _, h := range r.s.history {
		if h.PostID != id {
			kept = append(kept, h)
		}
	}
	r.s.history = kept
	return nil
}

func (r *PostStore) SetScrapeStatus(ctx context.Context, id string, status domain.ScrapeStatus, lastError *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[id]
	if !ok {
		return notFound("post", id)
	}
	p.ScrapeStatus = status
	if lastError != nil {
		p.LastError = *lastError
	}
	p.UpdatedAt = time.Now().UTC()
	r.s.posts[id] = p
	return nil
}

// HistoryStore implements service.HistoryStore.
type HistoryStore struct{ s *Store }

func (r *HistoryStore) RecordMeasurement(ctx context.Context, point *domain.EngagementHistoryPoint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[point.PostID]
	if !ok {
		return notFound("post", point.PostID)
	}
	r.s.history = append(r.s.history, *point)

	at := point.RecordedAt
	if p.LastScrapedAt == nil || !p.LastScrapedAt.After(at) {
		p.Metrics = point.Metrics
		p.EngagementRate = point.Metrics.Rate()
		p.LastScrapedAt = &at
	}
	p.ScrapeStatus = domain.ScrapeStatusScraped
	p.LastError = ""
	p.UpdatedAt = time.Now().UTC()
	r.s.posts[p.ID] = p
	return nil
}

func (r *HistoryStore) ListByCampaign(ctx context.Context, campaignID string, since time.Time) ([]domain.EngagementHistoryPoint, error) {
	return r.list(func(h *domain.EngagementHistoryPoint) bool { return h.CampaignID == campaignID }, since), nil
}

func (r *HistoryStore) ListByPost(ctx context.Context, postID string, since time.Time) ([]domain.EngagementHistoryPoint, error) {
	return r.list(func(h *domain.EngagementHistoryPoint) bool { return h.PostID == postID }, since), nil
}

func (r *HistoryStore) list(match func(*domain.EngagementHistoryPoint) bool, since time.Time) []domain.EngagementHistoryPoint {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.EngagementHistoryPoint, 0)
	for i := range r.s.history {
		h := &r.s.history[i]
		if match(h) && !h.RecordedAt.Before(since) {
			out = append(out, *h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out
}

// JobStore implements service.JobStore.
type JobStore struct{ s *Store }

func (r *JobStore) CreateWithTasks(ctx context.Context, job *domain.ScrapeJob, tasks []domain.ScrapeTask) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.campaigns[job.CampaignID]; !ok {
		return notFound("campaign", job.CampaignID)
	}
	if active := r.s.activeLocked(job.CampaignID); active != nil {
		return &domain.AlreadyRunningError{Active: active}
	}
	r.s.jobs[job.ID] = *job
	for _, t := range tasks {
		r.s.tasks[t.ID] = t
		r.s.taskOrder = append(r.s.taskOrder, t.ID)
	}
	return nil
}

func (s *Store) activeLocked(campaignID string) *domain.ScrapeJob {
	for _, j := range s.jobs {
		if j.CampaignID == campaignID && !j.Status.IsTerminal() {
			return &j
		}
	}
	return nil
}

func (r *JobStore) Get(ctx context.Context, id string) (*domain.ScrapeJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, notFound("job", id)
	}
	return &j, nil
}

func (r *JobStore) GetActive(ctx context.Context, campaignID string) (*domain.ScrapeJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.activeLocked(campaignID), nil
}

func (r *JobStore) ListNonTerminal(ctx context.Context) ([]domain.ScrapeJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.ScrapeJob, 0)
	for _, j := range r.s.jobs {
		if !j.Status.IsTerminal() {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *JobStore) MarkRunning(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return notFound("job", id)
	}
	if j.Status != domain.JobStatusQueued {
		return nil
	}
	j.Status = domain.JobStatusRunning
	j.StartedAt = &at
	j.UpdatedAt = at
	r.s.jobs[id] = j
	return nil
}

func (r *JobStore) Finish(ctx context.Context, id string, status domain.JobStatus, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return false, notFound("job", id)
	}
	if j.Status.IsTerminal() {
		return false, nil
	}
	if j.StartedAt == nil {
		j.StartedAt = &at
	}
	j.Status = status
	j.CompletedAt = &at
	j.UpdatedAt = at
	r.s.jobs[id] = j
	return true, nil
}

func (r *JobStore) ListTasks(ctx context.Context, jobID string) ([]domain.ScrapeTask, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.ScrapeTask, 0)
	for _, tid := range r.s.taskOrder {
		if t := r.s.tasks[tid]; t.JobID == jobID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *JobStore) GetTask(ctx context.Context, id string) (*domain.ScrapeTask, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, notFound("task", id)
	}
	return &t, nil
}

func (r *JobStore) TransitionTask(ctx context.Context, id string, from, to domain.TaskStatus, patch domain.TaskPatch) (*domain.ScrapeTask, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, notFound("task", id)
	}
	if t.Status != from || !from.CanTransition(to) {
		return nil, fmt.Errorf("task %s is %s, not %s: %w", id, t.Status, from, domain.ErrInvalidTransition)
	}
	t.Status = to
	if patch.BumpAttempts {
		t.Attempts++
	}
	if patch.LastError != nil {
		t.LastError = *patch.LastError
	}
	if patch.Result != nil {
		t.Result = *patch.Result
	}
	t.UpdatedAt = time.Now().UTC()
	r.s.tasks[id] = t
	return &t, nil
}
