package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/trackr/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobRepository handles scrape job and task operations.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateWithTasks inserts a job and its tasks unless the campaign already
// has an active job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: queued job to insert.
//   - tasks: queued tasks of the job.
// Returns:
//   - error: *domain.AlreadyRunningError on collision, domain.ErrNotFound for
//     an unknown campaign.
//
// The campaign row is locked for the check; the partial unique index on
// scrape_jobs catches anything the lock cannot (SQLite has no row locks).
func (r *JobRepository) CreateWithTasks(ctx context.Context, job *domain.ScrapeJob, tasks []domain.ScrapeTask) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() != "sqlite" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var campaign domain.Campaign
		if err := q.Select("id").First(&campaign, "id = ?", job.CampaignID).Error; err != nil {
			return translate(err, "campaign", job.CampaignID)
		}

		var active domain.ScrapeJob
		err := tx.Where("campaign_id = ? AND status IN ?", job.CampaignID, domain.ActiveJobStatuses).
			First(&active).Error
		if err == nil {
			return &domain.AlreadyRunningError{Active: &active}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(job).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &domain.AlreadyRunningError{}
			}
			return err
		}
		if len(tasks) > 0 {
			if err := tx.CreateInBatches(tasks, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})

	var running *domain.AlreadyRunningError
	if errors.As(err, &running) && running.Active == nil {
		running.Active, _ = r.GetActive(ctx, job.CampaignID)
	}
	return err
}

// Get retrieves a job by its ID.
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.ScrapeJob, error) {
	var job domain.ScrapeJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, translate(err, "job", id)
	}
	return &job, nil
}

// GetActive returns the campaign's queued or running job, or nil.
func (r *JobRepository) GetActive(ctx context.Context, campaignID string) (*domain.ScrapeJob, error) {
	var job domain.ScrapeJob
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND status IN ?", campaignID, domain.ActiveJobStatuses).
		Order("created_at DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListNonTerminal returns every queued or running job, oldest first.
func (r *JobRepository) ListNonTerminal(ctx context.Context) ([]domain.ScrapeJob, error) {
	var jobs []domain.ScrapeJob
	err := r.db.WithContext(ctx).
		Where("status IN ?", domain.ActiveJobStatuses).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// MarkRunning moves a queued job to running. Other states are left alone.
func (r *JobRepository) MarkRunning(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.ScrapeJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusRunning,
			"started_at": at,
			"updated_at": at,
		}).Error
}

// Finish moves an active job to a terminal status and stamps CompletedAt.
// It reports false when the job was already terminal.
func (r *JobRepository) Finish(ctx context.Context, id string, status domain.JobStatus, at time.Time) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("job status %s: %w", status, domain.ErrInvalidTransition)
	}
	res := r.db.WithContext(ctx).Model(&domain.ScrapeJob{}).
		Where("id = ? AND status IN ?", id, domain.ActiveJobStatuses).
		Updates(map[string]interface{}{
			"status":       status,
			"started_at":   gorm.Expr("COALESCE(started_at, ?)", at),
			"completed_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// ListTasks returns the tasks of a job in creation order.
func (r *JobRepository) ListTasks(ctx context.Context, jobID string) ([]domain.ScrapeTask, error) {
	var tasks []domain.ScrapeTask
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").Order("id").
		Find(&tasks).Error
	return tasks, err
}

// GetTask retrieves a task by its ID.
func (r *JobRepository) GetTask(ctx context.Context, id string) (*domain.ScrapeTask, error) {
	var task domain.ScrapeTask
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, translate(err, "task", id)
	}
	return &task, nil
}

// TransitionTask moves a task from one status to another with a conditional
// update, so a task that already left from is never touched.
func (r *JobRepository) TransitionTask(ctx context.Context, id string, from, to domain.TaskStatus, patch domain.TaskPatch) (*domain.ScrapeTask, error) {
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("task %s: %s -> %s: %w", id, from, to, domain.ErrInvalidTransition)
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if patch.BumpAttempts {
		updates["attempts"] = gorm.Expr("attempts + 1")
	}
	if patch.LastError != nil {
		updates["last_error"] = *patch.LastError
	}
	if patch.Result != nil {
		updates["result_views"] = patch.Result.Views
		updates["result_likes"] = patch.Result.Likes
		updates["result_comments"] = patch.Result.Comments
		updates["result_shares"] = patch.Result.Shares
	}

	res := r.db.WithContext(ctx).Model(&domain.ScrapeTask{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		cur, err := r.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("task %s is %s, not %s: %w", id, cur.Status, from, domain.ErrInvalidTransition)
	}
	return r.GetTask(ctx, id)
}
