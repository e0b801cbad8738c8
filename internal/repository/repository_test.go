package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/timmy/trackr/internal/config"
	"github.com/timmy/trackr/internal/domain"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "trackr.db"),
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedCampaign(t *testing.T, db *gorm.DB, id string) *domain.Campaign {
	t.Helper()
	c := &domain.Campaign{ID: id, Name: "Launch " + id, Status: "active", CreatedAt: t0, UpdatedAt: t0}
	if err := NewCampaignRepository(db).Create(context.Background(), c); err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return c
}

func seedPost(t *testing.T, db *gorm.DB, campaignID, id, key string) *domain.Post {
	t.Helper()
	p := &domain.Post{
		ID:           id,
		CampaignID:   campaignID,
		URL:          "https://www.tiktok.com/@a/video/" + id,
		CanonicalURL: "https://www.tiktok.com/@a/video/" + id,
		PostKey:      key,
		Platform:     domain.PlatformTikTok,
		Status:       domain.WorkflowActive,
		ScrapeStatus: domain.ScrapeStatusPending,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	if err := NewPostRepository(db).Create(context.Background(), p); err != nil {
		t.Fatalf("create post: %v", err)
	}
	return p
}

func TestCampaignRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewCampaignRepository(db)
	c := seedCampaign(t, db, "c1")

	slug := "abc123"
	c.ShareEnabled = true
	c.ShareSlug = &slug
	if err := repo.Update(ctx, c); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := repo.GetBySlug(ctx, slug)
	if err != nil || got.ID != "c1" || !got.ShareEnabled {
		t.Fatalf("GetBySlug = %+v, %v", got, err)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
	if err := repo.Update(ctx, &domain.Campaign{ID: "missing", Name: "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Update(missing) = %v, want ErrNotFound", err)
	}
}

func TestPostRepositoryDuplicateKey(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedCampaign(t, db, "c1")
	seedCampaign(t, db, "c2")
	seedPost(t, db, "c1", "p1", "tiktok:1")

	dup := &domain.Post{ID: "p2", CampaignID: "c1", URL: "u", PostKey: "tiktok:1", CreatedAt: t0, UpdatedAt: t0}
	if err := NewPostRepository(db).Create(ctx, dup); !errors.Is(err, domain.ErrDuplicateResource) {
		t.Fatalf("Create duplicate = %v, want ErrDuplicateResource", err)
	}

	// Same key in another campaign is fine.
	seedPost(t, db, "c2", "p3", "tiktok:1")

	got, err := NewPostRepository(db).GetByKey(ctx, "c1", "tiktok:1")
	if err != nil || got.ID != "p1" {
		t.Fatalf("GetByKey = %+v, %v", got, err)
	}
}

func TestRecordMeasurementKeepsNewest(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedCampaign(t, db, "c1")
	seedPost(t, db, "c1", "p1", "tiktok:1")
	history := NewHistoryRepository(db)
	posts := NewPostRepository(db)

	newer := &domain.EngagementHistoryPoint{
		ID: "h1", PostID: "p1", CampaignID: "c1",
		Metrics:    domain.Metrics{Views: 200, Likes: 20},
		Engagement: 20,
		RecordedAt: t0.Add(2 * time.Hour),
	}
	older := &domain.EngagementHistoryPoint{
		ID: "h2", PostID: "p1", CampaignID: "c1",
		Metrics:    domain.Metrics{Views: 100, Likes: 10},
		Engagement: 10,
		RecordedAt: t0.Add(time.Hour),
	}
	if err := history.RecordMeasurement(ctx, newer); err != nil {
		t.Fatalf("RecordMeasurement newer: %v", err)
	}
	if err := history.RecordMeasurement(ctx, older); err != nil {
		t.Fatalf("RecordMeasurement older: %v", err)
	}

	p, err := posts.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Views != 200 || p.Likes != 20 {
		t.Errorf("post metrics = %+v, want the newer measurement", p.Metrics)
	}
	if p.ScrapeStatus != domain.ScrapeStatusScraped {
		t.Errorf("scrape status = %s, want scraped", p.ScrapeStatus)
	}

	points, err := history.ListByPost(ctx, "p1", t0)
	if err != nil {
		t.Fatalf("ListByPost: %v", err)
	}
	if len(points) != 2 || points[0].ID != "h2" || points[1].ID != "h1" {
		t.Errorf("history = %+v, want both points in time order", points)
	}
}

func newJob(id, campaignID string) (*domain.ScrapeJob, []domain.ScrapeTask) {
	job := &domain.ScrapeJob{ID: id, CampaignID: campaignID, Trigger: domain.TriggerManual, Status: domain.JobStatusQueued, CreatedAt: t0, UpdatedAt: t0}
	tasks := []domain.ScrapeTask{
		{ID: id + "-t1", JobID: id, PostID: "p1", Status: domain.TaskStatusQueued, CreatedAt: t0, UpdatedAt: t0},
	}
	return job, tasks
}

func TestJobRepositoryOneActiveJob(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedCampaign(t, db, "c1")
	repo := NewJobRepository(db)

	job, tasks := newJob("j1", "c1")
	if err := repo.CreateWithTasks(ctx, job, tasks); err != nil {
		t.Fatalf("CreateWithTasks: %v", err)
	}

	second, secondTasks := newJob("j2", "c1")
	err := repo.CreateWithTasks(ctx, second, secondTasks)
	var running *domain.AlreadyRunningError
	if !errors.As(err, &running) {
		t.Fatalf("second CreateWithTasks = %v, want AlreadyRunningError", err)
	}
	if running.Active == nil || running.Active.ID != "j1" {
		t.Errorf("active job = %+v, want j1", running.Active)
	}

	finished, err := repo.Finish(ctx, "j1", domain.JobStatusDone, t0.Add(time.Minute))
	if err != nil || !finished {
		t.Fatalf("Finish = %v, %v", finished, err)
	}
	again, err := repo.Finish(ctx, "j1", domain.JobStatusFailed, t0.Add(2*time.Minute))
	if err != nil || again {
		t.Fatalf("second Finish = %v, %v, want false", again, err)
	}
	got, _ := repo.Get(ctx, "j1")
	if got.Status != domain.JobStatusDone || got.CompletedAt == nil || !got.CompletedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("job after finish = %+v", got)
	}

	if err := repo.CreateWithTasks(ctx, second, secondTasks); err != nil {
		t.Fatalf("CreateWithTasks after finish: %v", err)
	}
	active, err := repo.GetActive(ctx, "c1")
	if err != nil || active == nil || active.ID != "j2" {
		t.Errorf("GetActive = %+v, %v", active, err)
	}
}

func TestTransitionTask(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedCampaign(t, db, "c1")
	repo := NewJobRepository(db)
	job, tasks := newJob("j1", "c1")
	if err := repo.CreateWithTasks(ctx, job, tasks); err != nil {
		t.Fatalf("CreateWithTasks: %v", err)
	}

	task, err := repo.TransitionTask(ctx, "j1-t1", domain.TaskStatusQueued, domain.TaskStatusRunning, domain.TaskPatch{BumpAttempts: true})
	if err != nil {
		t.Fatalf("queued -> running: %v", err)
	}
	if task.Attempts != 1 || task.Status != domain.TaskStatusRunning {
		t.Errorf("task = %+v", task)
	}

	result := domain.Metrics{Views: 9, Likes: 3}
	task, err = repo.TransitionTask(ctx, "j1-t1", domain.TaskStatusRunning, domain.TaskStatusSuccess, domain.TaskPatch{Result: &result})
	if err != nil {
		t.Fatalf("running -> success: %v", err)
	}
	if task.Result != result {
		t.Errorf("result = %+v, want %+v", task.Result, result)
	}

	msg := "late failure"
	if _, err := repo.TransitionTask(ctx, "j1-t1", domain.TaskStatusRunning, domain.TaskStatusFailed, domain.TaskPatch{LastError: &msg}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("terminal task moved again: %v", err)
	}
	task, _ = repo.GetTask(ctx, "j1-t1")
	if task.Status != domain.TaskStatusSuccess || task.LastError != "" {
		t.Errorf("terminal task changed: %+v", task)
	}
}

func TestCampaignDeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedCampaign(t, db, "c1")
	seedPost(t, db, "c1", "p1", "tiktok:1")
	if err := NewHistoryRepository(db).RecordMeasurement(ctx, &domain.EngagementHistoryPoint{
		ID: "h1", PostID: "p1", CampaignID: "c1", RecordedAt: t0,
	}); err != nil {
		t.Fatalf("RecordMeasurement: %v", err)
	}
	job, tasks := newJob("j1", "c1")
	if err := NewJobRepository(db).CreateWithTasks(ctx, job, tasks); err != nil {
		t.Fatalf("CreateWithTasks: %v", err)
	}

	if err := NewCampaignRepository(db).Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, model := range []interface{}{&domain.Post{}, &domain.EngagementHistoryPoint{}, &domain.ScrapeJob{}, &domain.ScrapeTask{}} {
		var n int64
		db.Model(model).Count(&n)
		if n != 0 {
			t.Errorf("%T rows left after campaign delete: %d", model, n)
		}
	}
	if err := NewCampaignRepository(db).Delete(ctx, "c1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}
