package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/trackr/internal/domain"
	"github.com/timmy/trackr/internal/fetcher"
	"github.com/timmy/trackr/internal/logger"
)

// RetryPolicy bounds the attempts of one scrape task.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy allows three attempts with 2s, 4s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseBackoff: 2 * time.Second, MaxBackoff: time.Minute}
}

// Backoff returns the delay before the attempt following attempt n:
// BaseBackoff * 2^(n-1), capped at MaxBackoff.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if p.BaseBackoff <= 0 || n < 1 {
		return 0
	}
	d := p.BaseBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Exhausted reports whether attempts reached the ceiling.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// TaskOutcome is what one Execute call reports back to the job coordinator.
type TaskOutcome struct {
	TaskID   string
	Status   domain.TaskStatus
	Attempts int
	Err      error

	// Retry asks the coordinator to dispatch the task again after RetryAfter.
	Retry      bool
	RetryAfter time.Duration
	// StoreFailure marks a retry caused by a failed store write rather than
	// by the fetch. The coordinator bounds these separately.
	StoreFailure bool
}

// TaskSupervisor executes single scrape attempts and applies the retry policy.
type TaskSupervisor struct {
	jobs    JobStore
	posts   PostStore
	history HistoryStore
	fetcher fetcher.MetricFetcher
	policy  RetryPolicy
	cache   StatsCache
	events  EventPublisher
	nowFn   func() time.Time
}

// NewTaskSupervisor creates a supervisor. cache and events may be nil.
func NewTaskSupervisor(
	jobs JobStore,
	posts PostStore,
	history HistoryStore,
	metricFetcher fetcher.MetricFetcher,
	policy RetryPolicy,
	cache StatsCache,
	events EventPublisher,
) *TaskSupervisor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if cache == nil {
		cache = noopCache{}
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &TaskSupervisor{
		jobs:    jobs,
		posts:   posts,
		history: history,
		fetcher: metricFetcher,
		policy:  policy,
		cache:   cache,
		events:  events,
		nowFn:   time.Now,
	}
}

// Policy returns the retry policy in use.
func (s *TaskSupervisor) Policy() RetryPolicy {
	return s.policy
}

// Execute runs one attempt of a queued task:
// queued -> running, fetch, then success, back to queued, or failed.
func (s *TaskSupervisor) Execute(ctx context.Context, taskID string) TaskOutcome {
	ctx = logger.WithField(ctx, logger.FieldTaskID, taskID)

	task, err := s.jobs.TransitionTask(ctx, taskID, domain.TaskStatusQueued, domain.TaskStatusRunning, domain.TaskPatch{BumpAttempts: true})
	if err != nil {
		return s.startFailed(ctx, taskID, err)
	}
	ctx = logger.WithField(ctx, logger.FieldPostID, task.PostID)

	post, err := s.posts.Get(ctx, task.PostID)
	if err != nil {
		// The post was deleted mid-job; there is nothing left to measure.
		return s.finishFailure(ctx, task, nil, fmt.Errorf("load post: %w", err), true)
	}

	if err := s.posts.SetScrapeStatus(ctx, post.ID, domain.ScrapeStatusScraping, nil); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to mark post as scraping")
	}

	started := time.Now()
	target := post.CanonicalURL
	if target == "" {
		target = post.URL
	}
	metrics, err := s.fetcher.Fetch(ctx, target, post.Platform)
	if err != nil {
		logger.With(nil).WithAttempt(task.Attempts).WithDuration(started).
			Warn(ctx, "Fetch failed: %v", err)
		return s.finishFailure(ctx, task, post, err, false)
	}

	at := s.nowFn().UTC()
	point := &domain.EngagementHistoryPoint{
		ID:         uuid.New().String(),
		PostID:     post.ID,
		CampaignID: post.CampaignID,
		Metrics:    metrics,
		Engagement: metrics.Engagement(),
		RecordedAt: at,
	}
	if err := s.history.RecordMeasurement(ctx, point); err != nil {
		return s.finishFailure(ctx, task, post, fmt.Errorf("record measurement: %w", err), false)
	}

	done, err := s.jobs.TransitionTask(ctx, task.ID, domain.TaskStatusRunning, domain.TaskStatusSuccess, domain.TaskPatch{Result: &metrics})
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to mark task successful")
		return TaskOutcome{TaskID: task.ID, Status: domain.TaskStatusRunning, Attempts: task.Attempts, Err: err, StoreFailure: true, Retry: true, RetryAfter: s.policy.MaxBackoff}
	}

	s.cache.Invalidate(ctx, post.CampaignID)
	if err := s.events.Publish(ctx, EventPostScraped, post.ID, point); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to publish scrape event")
	}

	logger.With(logger.Fields{
		"views":      metrics.Views,
		"engagement": metrics.Engagement(),
	}).WithAttempt(done.Attempts).WithDuration(started).Info(ctx, "Post scraped")

	return TaskOutcome{TaskID: task.ID, Status: domain.TaskStatusSuccess, Attempts: done.Attempts}
}

// startFailed handles a task that could not be moved to running.
func (s *TaskSupervisor) startFailed(ctx context.Context, taskID string, err error) TaskOutcome {
	if !errors.Is(err, domain.ErrInvalidTransition) {
		logger.FromContext(ctx).WithError(err).Error("Failed to start task")
		return TaskOutcome{TaskID: taskID, Err: err, StoreFailure: true, Retry: true, RetryAfter: s.policy.MaxBackoff}
	}

	cur, gerr := s.jobs.GetTask(ctx, taskID)
	if gerr != nil {
		return TaskOutcome{TaskID: taskID, Err: gerr, StoreFailure: true, Retry: true, RetryAfter: s.policy.MaxBackoff}
	}
	switch {
	case cur.Status.IsTerminal():
		return TaskOutcome{TaskID: taskID, Status: cur.Status, Attempts: cur.Attempts}
	case cur.Status == domain.TaskStatusRunning:
		// Left running by an attempt whose final write failed.
		return s.Reconcile(ctx, cur)
	default:
		return TaskOutcome{TaskID: taskID, Status: cur.Status, Attempts: cur.Attempts, Retry: true, RetryAfter: s.policy.Backoff(cur.Attempts)}
	}
}

// finishFailure ends a failed attempt. The task becomes failed when the
// attempt ceiling is reached or terminal is set, and is requeued otherwise.
// Known good metrics on the post are never touched.
func (s *TaskSupervisor) finishFailure(ctx context.Context, task *domain.ScrapeTask, post *domain.Post, cause error, terminal bool) TaskOutcome {
	msg := cause.Error()

	if terminal || s.policy.Exhausted(task.Attempts) {
		if _, err := s.jobs.TransitionTask(ctx, task.ID, domain.TaskStatusRunning, domain.TaskStatusFailed, domain.TaskPatch{LastError: &msg}); err != nil {
			logger.FromContext(ctx).WithError(err).Error("Failed to mark task failed")
			return TaskOutcome{TaskID: task.ID, Status: domain.TaskStatusRunning, Attempts: task.Attempts, Err: err, StoreFailure: true, Retry: true, RetryAfter: s.policy.MaxBackoff}
		}
		if post != nil {
			if err := s.posts.SetScrapeStatus(ctx, post.ID, domain.ScrapeStatusError, &msg); err != nil {
				logger.FromContext(ctx).WithError(err).Warn("Failed to mark post as errored")
			}
			s.cache.Invalidate(ctx, post.CampaignID)
		}
		logger.With(nil).WithAttempt(task.Attempts).WithStatus(string(domain.TaskStatusFailed)).
			Warn(ctx, "Task failed permanently: %s", msg)
		return TaskOutcome{
			TaskID:   task.ID,
			Status:   domain.TaskStatusFailed,
			Attempts: task.Attempts,
			Err:      fmt.Errorf("%w: %v", domain.ErrRetriesExhausted, cause),
		}
	}

	if _, err := s.jobs.TransitionTask(ctx, task.ID, domain.TaskStatusRunning, domain.TaskStatusQueued, domain.TaskPatch{LastError: &msg}); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to requeue task")
		return TaskOutcome{TaskID: task.ID, Status: domain.TaskStatusRunning, Attempts: task.Attempts, Err: err, StoreFailure: true, Retry: true, RetryAfter: s.policy.MaxBackoff}
	}
	if post != nil {
		if err := s.posts.SetScrapeStatus(ctx, post.ID, domain.ScrapeStatusError, &msg); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to mark post as errored")
		}
	}
	return TaskOutcome{
		TaskID:     task.ID,
		Status:     domain.TaskStatusQueued,
		Attempts:   task.Attempts,
		Err:        cause,
		Retry:      true,
		RetryAfter: s.policy.Backoff(task.Attempts),
	}
}

// Reconcile settles a task found running with no attempt in flight, which
// happens after a restart. The interrupted attempt counts as a failure.
func (s *TaskSupervisor) Reconcile(ctx context.Context, task *domain.ScrapeTask) TaskOutcome {
	post, err := s.posts.Get(ctx, task.PostID)
	if err != nil {
		post = nil
	}
	cause := errors.New("attempt interrupted before completion")
	if task.LastError != "" {
		cause = fmt.Errorf("attempt interrupted before completion: %s", task.LastError)
	}
	return s.finishFailure(ctx, task, post, cause, false)
}

// Abandon fails a task whose state could not be written for several
// dispatches in a row. It is best effort: a task the store still reports as
// active is settled by Recover on the next start.
func (s *TaskSupervisor) Abandon(ctx context.Context, taskID string, cause error) bool {
	ctx = logger.WithField(ctx, logger.FieldTaskID, taskID)
	msg := fmt.Sprintf("abandoned after repeated store errors: %v", cause)

	task, err := s.jobs.GetTask(ctx, taskID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to load task to abandon")
		return false
	}
	if task.Status.IsTerminal() {
		return true
	}
	if task.Status == domain.TaskStatusQueued {
		if _, err := s.jobs.TransitionTask(ctx, taskID, domain.TaskStatusQueued, domain.TaskStatusRunning, domain.TaskPatch{}); err != nil {
			logger.FromContext(ctx).WithError(err).Error("Failed to abandon task")
			return false
		}
	}
	if _, err := s.jobs.TransitionTask(ctx, taskID, domain.TaskStatusRunning, domain.TaskStatusFailed, domain.TaskPatch{LastError: &msg}); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to abandon task")
		return false
	}

	if post, err := s.posts.Get(ctx, task.PostID); err == nil {
		if err := s.posts.SetScrapeStatus(ctx, post.ID, domain.ScrapeStatusError, &msg); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to mark post as errored")
		}
		s.cache.Invalidate(ctx, post.CampaignID)
	}
	logger.With(nil).WithAttempt(task.Attempts).WithStatus(string(domain.TaskStatusFailed)).
		Warn(ctx, "Task abandoned: %s", msg)
	return true
}
