package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/trackr/internal/domain"
	"github.com/timmy/trackr/internal/logger"
)

// jobStarter is the part of JobCoordinator the tracker drives.
type jobStarter interface {
	StartJob(ctx context.Context, campaignID string, postIDs []string, trigger domain.JobTrigger) (*domain.ScrapeJob, error)
	Wait(ctx context.Context, jobID string) error
}

// SweepResult summarizes one tracker sweep.
type SweepResult struct {
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Campaigns   int       `json:"campaigns"`
	JobsStarted int       `json:"jobs_started"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	JobIDs      []string  `json:"job_ids,omitempty"`
}

// TrackerStatus is a point-in-time view of the tracker.
type TrackerStatus struct {
	IsRunning   bool         `json:"is_running"`
	IsScheduled bool         `json:"is_scheduled"`
	LastRunAt   *time.Time   `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time   `json:"next_run_at,omitempty"`
	Interval    string       `json:"interval"`
	LastResult  *SweepResult `json:"last_result,omitempty"`
}

// TrackerOptions configures a LiveTracker.
type TrackerOptions struct {
	Interval   time.Duration
	RunOnStart bool
}

// LiveTracker periodically starts a rescrape job for every campaign with
// schedulable posts.
type LiveTracker struct {
	campaigns CampaignStore
	posts     PostStore
	jobs      jobStarter

	interval   time.Duration
	runOnStart bool
	nowFn      func() time.Time
	after      func(time.Duration) <-chan time.Time

	mu         sync.RWMutex
	sweeping   bool
	scheduled  bool
	lastRunAt  *time.Time
	nextRunAt  *time.Time
	lastResult *SweepResult

	cancel context.CancelFunc
	done   chan struct{}
}

// NewLiveTracker creates a stopped tracker.
func NewLiveTracker(campaigns CampaignStore, posts PostStore, jobs jobStarter, opts TrackerOptions) *LiveTracker {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	return &LiveTracker{
		campaigns:  campaigns,
		posts:      posts,
		jobs:       jobs,
		interval:   opts.Interval,
		runOnStart: opts.RunOnStart,
		nowFn:      time.Now,
		after:      time.After,
	}
}

// Start schedules sweeps every interval. Calling it while scheduled is a no-op.
func (t *LiveTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.scheduled {
		return
	}

	ctx, cancel := context.WithCancel(logger.SetComponent(context.Background(), "tracker"))
	t.scheduled = true
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(ctx, t.done)

	logger.CtxInfo(ctx, "Live tracker started, interval %s", t.interval)
}

// Stop cancels the schedule and waits for the loop to exit. A sweep in
// progress stops waiting for its jobs; the jobs themselves keep running.
func (t *LiveTracker) Stop() {
	t.mu.Lock()
	if !t.scheduled {
		t.mu.Unlock()
		return
	}
	cancel, done := t.cancel, t.done
	t.scheduled = false
	t.mu.Unlock()

	cancel()
	<-done

	t.mu.Lock()
	t.nextRunAt = nil
	t.mu.Unlock()
	logger.Info("Live tracker stopped")
}

func (t *LiveTracker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if t.runOnStart {
		t.tick(ctx)
	}
	for {
		next := t.nowFn().Add(t.interval)
		t.mu.Lock()
		t.nextRunAt = &next
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-t.after(t.interval):
			t.tick(ctx)
		}
	}
}

func (t *LiveTracker) tick(ctx context.Context) {
	if _, err := t.Sweep(ctx); err != nil && !errors.Is(err, domain.ErrAlreadyRunning) {
		logger.FromContext(ctx).WithError(err).Error("Tracker sweep failed")
	}
}

// RunNow starts a sweep in the background. It returns domain.ErrAlreadyRunning
// while another sweep is in progress.
func (t *LiveTracker) RunNow() error {
	if !t.begin() {
		return domain.ErrAlreadyRunning
	}
	go func() {
		ctx := logger.SetComponent(context.Background(), "tracker")
		if _, err := t.sweep(ctx); err != nil {
			logger.FromContext(ctx).WithError(err).Error("Manual tracker sweep failed")
		}
	}()
	return nil
}

// Sweep starts one tracker job per eligible campaign and waits for them.
// Campaigns that already have an active job are skipped.
func (t *LiveTracker) Sweep(ctx context.Context) (*SweepResult, error) {
	if !t.begin() {
		return nil, domain.ErrAlreadyRunning
	}
	return t.sweep(ctx)
}

func (t *LiveTracker) begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sweeping {
		return false
	}
	t.sweeping = true
	return true
}

func (t *LiveTracker) sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{StartedAt: t.nowFn().UTC()}
	defer func() {
		result.FinishedAt = t.nowFn().UTC()
		t.mu.Lock()
		t.sweeping = false
		started := result.StartedAt
		t.lastRunAt = &started
		t.lastResult = result
		t.mu.Unlock()
	}()

	campaigns, err := t.campaigns.List(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list campaigns: %w", err)
	}

	for i := range campaigns {
		c := &campaigns[i]
		cctx := logger.SetCampaignID(ctx, c.ID)

		eligible, err := t.hasSchedulable(cctx, c.ID)
		if err != nil {
			result.Failed++
			logger.FromContext(cctx).WithError(err).Warn("Failed to list campaign posts")
			continue
		}
		if !eligible {
			continue
		}
		result.Campaigns++

		job, err := t.jobs.StartJob(cctx, c.ID, nil, domain.TriggerTracker)
		switch {
		case err == nil:
			result.JobsStarted++
			result.JobIDs = append(result.JobIDs, job.ID)
		case errors.Is(err, domain.ErrAlreadyRunning):
			result.Skipped++
			logger.CtxInfo(cctx, "Campaign already has an active job, skipping")
		default:
			result.Failed++
			logger.FromContext(cctx).WithError(err).Warn("Failed to start tracker job")
		}
	}

	for _, id := range result.JobIDs {
		if err := t.jobs.Wait(ctx, id); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Stopped waiting for tracker jobs")
			break
		}
	}

	logger.With(logger.Fields{
		"jobs_started": result.JobsStarted,
		"skipped":      result.Skipped,
		"failed":       result.Failed,
	}).WithCount(result.Campaigns).WithDuration(result.StartedAt).Info(ctx, "Tracker sweep finished")
	return result, nil
}

func (t *LiveTracker) hasSchedulable(ctx context.Context, campaignID string) (bool, error) {
	posts, err := t.posts.ListByCampaign(ctx, campaignID)
	if err != nil {
		return false, err
	}
	for i := range posts {
		if posts[i].Schedulable() {
			return true, nil
		}
	}
	return false, nil
}

// Status returns the current tracker state.
func (t *LiveTracker) Status() TrackerStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TrackerStatus{
		IsRunning:   t.sweeping,
		IsScheduled: t.scheduled,
		LastRunAt:   t.lastRunAt,
		NextRunAt:   t.nextRunAt,
		Interval:    t.interval.String(),
		LastResult:  t.lastResult,
	}
}
