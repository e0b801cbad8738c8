package domain

import "time"

// JobStatus represents the status of a scrape job.
// Values include JobStatusQueued, JobStatusRunning, JobStatusDone, and JobStatusFailed.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// ActiveJobStatuses are the statuses that count toward the one-active-job rule.
var ActiveJobStatuses = []JobStatus{JobStatusQueued, JobStatusRunning}

// IsTerminal reports whether the job can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// JobTrigger records what started a job.
type JobTrigger string

const (
	TriggerManual  JobTrigger = "manual"
	TriggerSingle  JobTrigger = "single"
	TriggerTracker JobTrigger = "tracker"
)

// ScrapeJob is one batch rescrape over posts of a campaign.
type ScrapeJob struct {
	ID          string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	CampaignID  string     `gorm:"type:varchar(36);not null;index" json:"campaign_id"`
	Trigger     JobTrigger `gorm:"type:varchar(16);default:manual" json:"trigger"`
	Status      JobStatus  `gorm:"type:varchar(16);default:queued;index" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ScrapeJob.
func (ScrapeJob) TableName() string {
	return "scrape_jobs"
}

// JobStats is counted from tasks on every read.
type JobStats struct {
	TotalTasks      int `json:"total_tasks"`
	CompletedTasks  int `json:"completed_tasks"`
	SuccessfulTasks int `json:"successful_tasks"`
	FailedTasks     int `json:"failed_tasks"`
	QueuedTasks     int `json:"queued_tasks"`
	RunningTasks    int `json:"running_tasks"`
}

// CountTasks derives JobStats from task statuses.
func CountTasks(tasks []ScrapeTask) JobStats {
	stats := JobStats{TotalTasks: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case TaskStatusSuccess:
			stats.SuccessfulTasks++
		case TaskStatusFailed:
			stats.FailedTasks++
		case TaskStatusRunning:
			stats.RunningTasks++
		default:
			stats.QueuedTasks++
		}
	}
	stats.CompletedTasks = stats.SuccessfulTasks + stats.FailedTasks
	return stats
}

// AllTerminal reports whether every task reached success or failed.
func (s JobStats) AllTerminal() bool {
	return s.CompletedTasks == s.TotalTasks
}

// FinalStatus is done iff every task succeeded, failed otherwise.
func (s JobStats) FinalStatus() JobStatus {
	if s.SuccessfulTasks == s.TotalTasks {
		return JobStatusDone
	}
	return JobStatusFailed
}

// JobWithStats is the polling view of a job.
type JobWithStats struct {
	ScrapeJob
	Stats JobStats `json:"stats"`
}

// TaskStatus represents the status of a scrape task.
type TaskStatus string

const (
	TaskStatusQueued  TaskStatus = "queued"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
)

// IsTerminal reports whether the task can no longer change.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailed
}

// CanTransition reports whether a task may move from s to next.
// running -> queued is the retry edge.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskStatusQueued:
		return next == TaskStatusRunning
	case TaskStatusRunning:
		return next == TaskStatusSuccess || next == TaskStatusFailed || next == TaskStatusQueued
	default:
		return false
	}
}

// ScrapeTask is the attempt cycle for one post inside a job.
type ScrapeTask struct {
	ID        string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	JobID     string     `gorm:"type:varchar(36);not null;index" json:"job_id"`
	PostID    string     `gorm:"type:varchar(36);not null;index" json:"post_id"`
	Status    TaskStatus `gorm:"type:varchar(16);default:queued;index" json:"status"`
	Attempts  int        `gorm:"default:0" json:"attempts"`
	LastError string     `gorm:"type:text" json:"last_error,omitempty"`
	Result    Metrics    `gorm:"embedded;embeddedPrefix:result_" json:"result"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ScrapeTask.
func (ScrapeTask) TableName() string {
	return "scrape_tasks"
}

// TaskPatch lists the fields a task transition may change alongside its status.
type TaskPatch struct {
	BumpAttempts bool
	LastError    *string
	Result       *Metrics
}
