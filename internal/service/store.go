package service

import (
	"context"
	"time"

	"github.com/timmy/trackr/internal/aggregate"
	"github.com/timmy/trackr/internal/domain"
)

// Stores return domain.ErrNotFound for unknown ids and
// domain.ErrDuplicateResource for unique key collisions.

// CampaignStore persists campaigns. Delete cascades to posts, history and jobs.
type CampaignStore interface {
	Create(ctx context.Context, c *domain.Campaign) error
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Campaign, error)
	List(ctx context.Context) ([]domain.Campaign, error)
	Update(ctx context.Context, c *domain.Campaign) error
	Delete(ctx context.Context, id string) error
}

// PostStore persists tracked posts.
type PostStore interface {
	Create(ctx context.Context, p *domain.Post) error
	Get(ctx context.Context, id string) (*domain.Post, error)
	GetByKey(ctx context.Context, campaignID, postKey string) (*domain.Post, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]domain.Post, error)
	Update(ctx context.Context, p *domain.Post) error
	Delete(ctx context.Context, id string) error
	SetScrapeStatus(ctx context.Context, id string, status domain.ScrapeStatus, lastError *string) error
}

// HistoryStore is the append-only engagement ledger.
type HistoryStore interface {
	// RecordMeasurement appends point and, in the same transaction, moves the
	// post's latest metrics forward unless a newer measurement is already stored.
	RecordMeasurement(ctx context.Context, point *domain.EngagementHistoryPoint) error
	ListByCampaign(ctx context.Context, campaignID string, since time.Time) ([]domain.EngagementHistoryPoint, error)
	ListByPost(ctx context.Context, postID string, since time.Time) ([]domain.EngagementHistoryPoint, error)
}

// JobStore persists scrape jobs and their tasks.
type JobStore interface {
	// CreateWithTasks atomically checks for an active job of the campaign and
	// inserts job and tasks. A collision returns *domain.AlreadyRunningError.
	CreateWithTasks(ctx context.Context, job *domain.ScrapeJob, tasks []domain.ScrapeTask) error
	Get(ctx context.Context, id string) (*domain.ScrapeJob, error)
	// GetActive returns nil, nil when the campaign has no queued or running job.
	GetActive(ctx context.Context, campaignID string) (*domain.ScrapeJob, error)
	ListNonTerminal(ctx context.Context) ([]domain.ScrapeJob, error)
	MarkRunning(ctx context.Context, id string, at time.Time) error
	// Finish moves an active job to a terminal status. It reports false when
	// the job was already terminal, so CompletedAt is written once.
	Finish(ctx context.Context, id string, status domain.JobStatus, at time.Time) (bool, error)
	ListTasks(ctx context.Context, jobID string) ([]domain.ScrapeTask, error)
	GetTask(ctx context.Context, id string) (*domain.ScrapeTask, error)
	// TransitionTask applies patch only if the task is currently in from.
	// Otherwise it returns domain.ErrInvalidTransition.
	TransitionTask(ctx context.Context, id string, from, to domain.TaskStatus, patch domain.TaskPatch) (*domain.ScrapeTask, error)
}

// StatsCache holds computed campaign stats. Implementations are best effort
// and log their own failures.
//
// Every Invalidate bumps the campaign's generation. Callers read Generation
// before loading the posts and pass it to Set, which drops the value when the
// campaign was invalidated in between.
type StatsCache interface {
	Get(ctx context.Context, campaignID string) (*aggregate.CampaignStats, bool)
	// Generation returns a negative value when it cannot be read.
	Generation(ctx context.Context, campaignID string) int64
	Set(ctx context.Context, stats *aggregate.CampaignStats, generation int64)
	Invalidate(ctx context.Context, campaignID string)
}

// Event types published by the scrape engine.
const (
	EventPostScraped = "post.scraped"
	EventJobFinished = "scrape_job.finished"
)

// EventPublisher emits domain events keyed for partitioning.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, payload interface{}) error
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (*aggregate.CampaignStats, bool) { return nil, false }
func (noopCache) Generation(context.Context, string) int64                    { return -1 }
func (noopCache) Set(context.Context, *aggregate.CampaignStats, int64)        {}
func (noopCache) Invalidate(context.Context, string)                          {}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, string, interface{}) error { return nil }
