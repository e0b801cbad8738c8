package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/trackr/internal/domain"
	"github.com/timmy/trackr/internal/logger"
)

// JobCoordinator turns rescrape requests into jobs, runs their tasks on the
// shared worker pool and derives each job's terminal status from its tasks.
type JobCoordinator struct {
	jobs       JobStore
	posts      PostStore
	campaigns  CampaignStore
	supervisor *TaskSupervisor
	pool       *WorkerPool
	cache      StatsCache
	events     EventPublisher
	nowFn      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*jobRun
}

// jobRun is the in-process supervision state of one job.
type jobRun struct {
	jobID      string
	campaignID string
	tasks      []string
	outcomes   chan TaskOutcome
	done       chan struct{}
	started    sync.Once

	// storeFailures counts consecutive store-write retries per task. Only the
	// supervising goroutine touches it.
	storeFailures map[string]int
}

// NewJobCoordinator creates a coordinator. cache and events may be nil.
func NewJobCoordinator(
	jobs JobStore,
	posts PostStore,
	campaigns CampaignStore,
	supervisor *TaskSupervisor,
	pool *WorkerPool,
	cache StatsCache,
	events EventPublisher,
) *JobCoordinator {
	if cache == nil {
		cache = noopCache{}
	}
	if events == nil {
		events = noopPublisher{}
	}
	ctx, cancel := context.WithCancel(logger.SetComponent(context.Background(), "coordinator"))
	return &JobCoordinator{
		jobs:       jobs,
		posts:      posts,
		campaigns:  campaigns,
		supervisor: supervisor,
		pool:       pool,
		cache:      cache,
		events:     events,
		nowFn:      time.Now,
		ctx:        ctx,
		cancel:     cancel,
		runs:       make(map[string]*jobRun),
	}
}

// StartJob creates a queued job with one task per eligible post and starts
// running it. postIDs limits the job to those posts; empty means every post
// of the campaign. Placeholders never get tasks.
//
// While the campaign has a queued or running job the call is rejected with
// *domain.AlreadyRunningError carrying that job.
func (c *JobCoordinator) StartJob(ctx context.Context, campaignID string, postIDs []string, trigger domain.JobTrigger) (*domain.ScrapeJob, error) {
	if _, err := c.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}

	targets, err := c.targets(ctx, campaignID, postIDs)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, domain.NewValidationError("posts", "no scrapeable posts in campaign")
	}

	now := c.nowFn().UTC()
	job := &domain.ScrapeJob{
		ID:         uuid.New().String(),
		CampaignID: campaignID,
		Trigger:    trigger,
		Status:     domain.JobStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	tasks := make([]domain.ScrapeTask, len(targets))
	for i, p := range targets {
		tasks[i] = domain.ScrapeTask{
			ID:        uuid.New().String(),
			JobID:     job.ID,
			PostID:    p.ID,
			Status:    domain.TaskStatusQueued,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	if err := c.jobs.CreateWithTasks(ctx, job, tasks); err != nil {
		var running *domain.AlreadyRunningError
		if errors.As(err, &running) && running.Active == nil {
			running.Active, _ = c.jobs.GetActive(ctx, campaignID)
		}
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldJobID:      job.ID,
		logger.FieldCampaignID: campaignID,
		logger.FieldTrigger:    string(trigger),
	}).WithCount(len(tasks)).Info(ctx, "Scrape job created")

	c.launch(job, tasks, nil)
	return job, nil
}

func (c *JobCoordinator) targets(ctx context.Context, campaignID string, postIDs []string) ([]domain.Post, error) {
	posts, err := c.posts.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	if len(postIDs) > 0 {
		byID := make(map[string]domain.Post, len(posts))
		for _, p := range posts {
			byID[p.ID] = p
		}
		selected := make([]domain.Post, 0, len(postIDs))
		seen := make(map[string]bool, len(postIDs))
		for _, id := range postIDs {
			p, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("post %s in campaign %s: %w", id, campaignID, domain.ErrNotFound)
			}
			if !seen[id] {
				seen[id] = true
				selected = append(selected, p)
			}
		}
		posts = selected
	}

	out := posts[:0]
	for i := range posts {
		if posts[i].Schedulable() {
			out = append(out, posts[i])
		}
	}
	return out, nil
}

// RescrapePost starts a single-post job on the post's campaign.
func (c *JobCoordinator) RescrapePost(ctx context.Context, postID string) (*domain.ScrapeJob, error) {
	post, err := c.posts.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !post.Schedulable() {
		return nil, domain.NewValidationError("post", "placeholder posts cannot be scraped")
	}
	return c.StartJob(ctx, post.CampaignID, []string{post.ID}, domain.TriggerSingle)
}

// launch registers the run and starts its supervising goroutine. Queued
// tasks listed in delays are first dispatched after that delay.
func (c *JobCoordinator) launch(job *domain.ScrapeJob, tasks []domain.ScrapeTask, delays map[string]time.Duration) {
	run := &jobRun{
		jobID:         job.ID,
		campaignID:    job.CampaignID,
		outcomes:      make(chan TaskOutcome, len(tasks)+1),
		done:          make(chan struct{}),
		storeFailures: make(map[string]int),
	}
	terminal := make(map[string]bool)
	for _, t := range tasks {
		run.tasks = append(run.tasks, t.ID)
		if t.Status.IsTerminal() {
			terminal[t.ID] = true
		}
	}

	c.mu.Lock()
	c.runs[job.ID] = run
	c.mu.Unlock()

	c.wg.Add(1)
	go c.supervise(run, tasks, terminal, delays)
}

// supervise dispatches the run's queued tasks, consumes outcomes pushed by
// the workers and finalizes the job once every task is terminal.
func (c *JobCoordinator) supervise(run *jobRun, tasks []domain.ScrapeTask, terminal map[string]bool, delays map[string]time.Duration) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.runs, run.jobID)
		c.mu.Unlock()
		close(run.done)
	}()

	ctx := logger.WithFields(c.ctx, logger.Fields{
		logger.FieldJobID:      run.jobID,
		logger.FieldCampaignID: run.campaignID,
	})

	for _, t := range tasks {
		if t.Status == domain.TaskStatusQueued {
			c.dispatch(ctx, run, t.ID, delays[t.ID])
		}
	}

	for len(terminal) < len(run.tasks) {
		select {
		case o := <-run.outcomes:
			switch {
			case o.Status.IsTerminal():
				terminal[o.TaskID] = true
			case o.Retry && o.StoreFailure:
				run.storeFailures[o.TaskID]++
				if run.storeFailures[o.TaskID] >= c.supervisor.Policy().MaxAttempts {
					// The task is failed if the store allows it and settled by
					// Recover otherwise.
					c.supervisor.Abandon(context.WithoutCancel(ctx), o.TaskID, o.Err)
					terminal[o.TaskID] = true
					continue
				}
				c.dispatch(ctx, run, o.TaskID, o.RetryAfter)
			case o.Retry:
				delete(run.storeFailures, o.TaskID)
				c.dispatch(ctx, run, o.TaskID, o.RetryAfter)
			}
		case <-c.ctx.Done():
			logger.CtxWarn(ctx, "Coordinator stopping, job left for recovery")
			return
		}
	}

	c.finalize(ctx, run)
}

// dispatch submits one attempt of a task to the pool after delay.
func (c *JobCoordinator) dispatch(ctx context.Context, run *jobRun, taskID string, delay time.Duration) {
	submit := func() {
		err := c.pool.Submit(c.ctx, func() { c.runTask(ctx, run, taskID) })
		if err != nil {
			logger.FromContext(ctx).WithField(logger.FieldTaskID, taskID).WithError(err).
				Warn("Task not dispatched, left queued for recovery")
		}
	}
	if delay <= 0 {
		submit()
		return
	}
	time.AfterFunc(delay, submit)
}

// runTask executes on a pool worker. The attempt runs to completion even if
// the coordinator stops meanwhile.
func (c *JobCoordinator) runTask(ctx context.Context, run *jobRun, taskID string) {
	ctx = context.WithoutCancel(ctx)
	run.started.Do(func() {
		if err := c.jobs.MarkRunning(ctx, run.jobID, c.nowFn().UTC()); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to mark job running")
		}
	})
	run.outcomes <- c.supervisor.Execute(ctx, taskID)
}

func (c *JobCoordinator) finalize(ctx context.Context, run *jobRun) {
	tasks, err := c.jobs.ListTasks(ctx, run.jobID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to load tasks for job completion")
		return
	}
	stats := domain.CountTasks(tasks)
	if !stats.AllTerminal() {
		logger.FromContext(ctx).WithField("stats", stats).Error("Job has non-terminal tasks, left for recovery")
		return
	}

	status := stats.FinalStatus()
	finished, err := c.jobs.Finish(ctx, run.jobID, status, c.nowFn().UTC())
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to finish job")
		return
	}
	if !finished {
		return
	}

	c.cache.Invalidate(ctx, run.campaignID)
	payload := map[string]interface{}{
		"job_id":      run.jobID,
		"campaign_id": run.campaignID,
		"status":      status,
		"stats":       stats,
	}
	if err := c.events.Publish(ctx, EventJobFinished, run.campaignID, payload); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to publish job event")
	}

	logger.With(logger.Fields{
		"successful_tasks": stats.SuccessfulTasks,
		"failed_tasks":     stats.FailedTasks,
	}).WithCount(stats.TotalTasks).WithStatus(string(status)).Info(ctx, "Scrape job finished")
}

// Wait blocks until the in-process run of jobID ends or ctx is done.
// It returns immediately for jobs not running in this process.
func (c *JobCoordinator) Wait(ctx context.Context, jobID string) error {
	c.mu.Lock()
	run, ok := c.runs[jobID]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetActiveJob returns the campaign's queued or running job, or nil.
func (c *JobCoordinator) GetActiveJob(ctx context.Context, campaignID string) (*domain.ScrapeJob, error) {
	if _, err := c.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	return c.jobs.GetActive(ctx, campaignID)
}

// GetJob returns the job with stats counted from its tasks.
func (c *JobCoordinator) GetJob(ctx context.Context, jobID string) (*domain.JobWithStats, error) {
	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	tasks, err := c.jobs.ListTasks(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return &domain.JobWithStats{ScrapeJob: *job, Stats: domain.CountTasks(tasks)}, nil
}

// GetTasks returns the tasks of a job.
func (c *JobCoordinator) GetTasks(ctx context.Context, jobID string) ([]domain.ScrapeTask, error) {
	if _, err := c.jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return c.jobs.ListTasks(ctx, jobID)
}

// Recover resumes every job left queued or running by a previous process.
// Tasks found running count as a failed attempt; queued tasks are dispatched
// again. It returns the number of resumed jobs.
func (c *JobCoordinator) Recover(ctx context.Context) (int, error) {
	ctx = logger.SetComponent(ctx, "recovery")

	jobs, err := c.jobs.ListNonTerminal(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unfinished jobs: %w", err)
	}

	resumed := 0
	for i := range jobs {
		job := &jobs[i]
		jctx := logger.SetJobID(ctx, job.ID)

		c.mu.Lock()
		_, active := c.runs[job.ID]
		c.mu.Unlock()
		if active {
			continue
		}

		tasks, err := c.jobs.ListTasks(jctx, job.ID)
		if err != nil {
			return resumed, fmt.Errorf("failed to list tasks of job %s: %w", job.ID, err)
		}

		interrupted, unsettled := 0, 0
		delays := make(map[string]time.Duration)
		for j := range tasks {
			if tasks[j].Status != domain.TaskStatusRunning {
				continue
			}
			interrupted++
			o := c.supervisor.Reconcile(jctx, &tasks[j])
			if o.StoreFailure {
				unsettled++
				continue
			}
			tasks[j].Status = o.Status
			tasks[j].Attempts = o.Attempts
			if o.Retry {
				delays[tasks[j].ID] = o.RetryAfter
			}
		}
		if unsettled > 0 {
			// Nothing would dispatch a task still marked running.
			logger.With(logger.Fields{"unsettled_tasks": unsettled}).
				Warn(jctx, "Scrape job not resumed, interrupted tasks could not be settled")
			continue
		}

		logger.With(logger.Fields{"interrupted_tasks": interrupted}).WithCount(len(tasks)).
			Info(jctx, "Resuming scrape job")
		c.launch(job, tasks, delays)
		resumed++
	}
	return resumed, nil
}

// Stop stops supervising. Attempts already on a worker finish; jobs left
// unfinished are resumed by Recover on the next start.
func (c *JobCoordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}
