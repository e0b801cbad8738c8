package domain

import (
	"errors"
	"testing"
	"time"
)

func TestPostPlaceholder(t *testing.T) {
	scraped := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name        string
		post        Post
		placeholder bool
		schedulable bool
	}{
		{
			name:        "synthetic url",
			post:        Post{URL: PlaceholderScheme + "abc", Platform: PlatformTikTok, Status: WorkflowActive},
			placeholder: true,
			schedulable: false,
		},
		{
			name:        "no platform",
			post:        Post{URL: "https://example.com/x", Status: WorkflowActive, Metrics: Metrics{Views: 3}},
			placeholder: true,
			schedulable: false,
		},
		{
			name:        "unknown platform",
			post:        Post{URL: "https://example.com/x", Platform: PlatformUnknown, Status: WorkflowActive},
			placeholder: true,
			schedulable: false,
		},
		{
			name:        "pending with zero metrics awaiting first scrape",
			post:        Post{URL: "https://www.tiktok.com/@a/video/1", Platform: PlatformTikTok, Status: WorkflowPending},
			placeholder: true,
			schedulable: true,
		},
		{
			name: "pending zero metrics already scraped",
			post: Post{
				URL: "https://www.tiktok.com/@a/video/1", Platform: PlatformTikTok, Status: WorkflowPending,
				ScrapeStatus: ScrapeStatusScraped, LastScrapedAt: &scraped,
			},
			placeholder: true,
			schedulable: true,
		},
		{
			name:        "active real post",
			post:        Post{URL: "https://www.tiktok.com/@a/video/1", Platform: PlatformTikTok, Status: WorkflowActive},
			placeholder: false,
			schedulable: true,
		},
		{
			name:        "pending with metrics",
			post:        Post{URL: "https://youtu.be/x", Platform: PlatformYouTube, Status: WorkflowPending, Metrics: Metrics{Likes: 1}},
			placeholder: false,
			schedulable: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.post.IsPlaceholder(); got != tc.placeholder {
				t.Errorf("IsPlaceholder() = %v, want %v", got, tc.placeholder)
			}
			if got := tc.post.Schedulable(); got != tc.schedulable {
				t.Errorf("Schedulable() = %v, want %v", got, tc.schedulable)
			}
		})
	}
}

func TestPostIsScraped(t *testing.T) {
	at := time.Now()
	if (&Post{}).IsScraped() {
		t.Errorf("empty post reported scraped")
	}
	if !(&Post{ScrapeStatus: ScrapeStatusScraped}).IsScraped() {
		t.Errorf("scraped status not reported scraped")
	}
	if !(&Post{ScrapeStatus: ScrapeStatusError, LastScrapedAt: &at}).IsScraped() {
		t.Errorf("post with a last scrape time not reported scraped")
	}
	zero := time.Time{}
	if (&Post{LastScrapedAt: &zero}).IsScraped() {
		t.Errorf("zero timestamp counted as scraped")
	}
}

func TestCountTasks(t *testing.T) {
	tasks := []ScrapeTask{
		{Status: TaskStatusSuccess},
		{Status: TaskStatusSuccess},
		{Status: TaskStatusFailed},
	}
	stats := CountTasks(tasks)
	if stats.TotalTasks != 3 || stats.SuccessfulTasks != 2 || stats.FailedTasks != 1 || stats.CompletedTasks != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	if !stats.AllTerminal() {
		t.Errorf("AllTerminal() = false, want true")
	}
	if stats.FinalStatus() != JobStatusFailed {
		t.Errorf("FinalStatus() = %s, want failed", stats.FinalStatus())
	}

	tasks[2].Status = TaskStatusSuccess
	if got := CountTasks(tasks).FinalStatus(); got != JobStatusDone {
		t.Errorf("FinalStatus() = %s, want done", got)
	}

	tasks[2].Status = TaskStatusRunning
	if CountTasks(tasks).AllTerminal() {
		t.Errorf("AllTerminal() = true with a running task")
	}
}

func TestTaskTransitions(t *testing.T) {
	allowed := map[[2]TaskStatus]bool{
		{TaskStatusQueued, TaskStatusRunning}:  true,
		{TaskStatusRunning, TaskStatusSuccess}: true,
		{TaskStatusRunning, TaskStatusFailed}:  true,
		{TaskStatusRunning, TaskStatusQueued}:  true,
	}
	all := []TaskStatus{TaskStatusQueued, TaskStatusRunning, TaskStatusSuccess, TaskStatusFailed}
	for _, from := range all {
		for _, to := range all {
			if got := from.CanTransition(to); got != allowed[[2]TaskStatus{from, to}] {
				t.Errorf("%s -> %s = %v", from, to, got)
			}
		}
	}
}

func TestErrorsMatchSentinels(t *testing.T) {
	if !errors.Is(&DuplicateError{}, ErrDuplicateResource) {
		t.Errorf("DuplicateError does not match ErrDuplicateResource")
	}
	if !errors.Is(&AlreadyRunningError{}, ErrAlreadyRunning) {
		t.Errorf("AlreadyRunningError does not match ErrAlreadyRunning")
	}
	if !errors.Is(NewValidationError("url", "is required"), ErrValidation) {
		t.Errorf("ValidationError does not match ErrValidation")
	}
	if !errors.Is(ErrFetchTimeout, ErrFetchFailure) {
		t.Errorf("ErrFetchTimeout does not match ErrFetchFailure")
	}
	if errors.Is(ErrFetchFailure, ErrFetchTimeout) {
		t.Errorf("ErrFetchFailure must not match ErrFetchTimeout")
	}
}
