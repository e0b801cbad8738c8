package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/timmy/trackr/internal/domain"
)

func newTestTracker(h *harness) *LiveTracker {
	return NewLiveTracker(h.store.Campaigns(), h.store.Posts(), h.coordinator, TrackerOptions{Interval: time.Hour})
}

func TestTrackerSweep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newScriptedFetcher(domain.Metrics{Views: 42}))

	live := h.campaign(t, "Live")
	h.post(t, live.ID, "https://www.tiktok.com/@a/video/1")
	h.post(t, live.ID, "https://www.tiktok.com/@a/video/2")
	empty := h.campaign(t, "Only placeholders")
	h.registry.AddPlaceholder(ctx, empty.ID, "someone")

	tracker := newTestTracker(h)
	res, err := tracker.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Campaigns != 1 || res.JobsStarted != 1 || res.Skipped != 0 || res.Failed != 0 {
		t.Fatalf("sweep = %+v, want one job for the live campaign", res)
	}

	// The sweep waits for its jobs.
	job, err := h.coordinator.GetJob(ctx, res.JobIDs[0])
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != domain.JobStatusDone || job.Trigger != domain.TriggerTracker {
		t.Errorf("tracker job = %s/%s, want done/tracker", job.Status, job.Trigger)
	}
	posts, _ := h.registry.ListPosts(ctx, live.ID)
	for _, p := range posts {
		if p.Views != 42 {
			t.Errorf("post %s views = %d, want 42", p.ID, p.Views)
		}
	}

	status := tracker.Status()
	if status.IsRunning || status.LastRunAt == nil || status.LastResult == nil {
		t.Errorf("status after sweep = %+v", status)
	}
}

func TestTrackerSkipsActiveCampaign(t *testing.T) {
	ctx := context.Background()
	gate := &gateFetcher{release: make(chan struct{})}
	h := newHarness(t, gate)
	t.Cleanup(gate.open)
	c := h.campaign(t, "Busy")
	h.post(t, c.ID, "https://www.tiktok.com/@a/video/1")

	manual, err := h.coordinator.StartJob(ctx, c.ID, nil, domain.TriggerManual)
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	res, err := newTestTracker(h).Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Skipped != 1 || res.JobsStarted != 0 {
		t.Errorf("sweep = %+v, want the busy campaign skipped", res)
	}

	gate.open()
	h.wait(t, manual.ID)
}

func TestTrackerRejectsOverlappingSweep(t *testing.T) {
	h := newHarness(t, newScriptedFetcher(domain.Metrics{}))
	tracker := newTestTracker(h)

	if !tracker.begin() {
		t.Fatalf("begin on idle tracker failed")
	}
	if _, err := tracker.Sweep(context.Background()); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Errorf("Sweep while sweeping = %v, want ErrAlreadyRunning", err)
	}
	if err := tracker.RunNow(); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Errorf("RunNow while sweeping = %v, want ErrAlreadyRunning", err)
	}
	if !tracker.Status().IsRunning {
		t.Errorf("status does not report the running sweep")
	}
}

func TestTrackerSchedule(t *testing.T) {
	h := newHarness(t, newScriptedFetcher(domain.Metrics{Views: 5}))
	c := h.campaign(t, "Scheduled")
	h.post(t, c.ID, "https://www.tiktok.com/@a/video/1")

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	ticks := make(chan time.Time)
	tracker := newTestTracker(h)
	tracker.nowFn = func() time.Time { return now }
	tracker.after = func(time.Duration) <-chan time.Time { return ticks }

	tracker.Start()
	tracker.Start()
	ticks <- now

	deadline := time.After(5 * time.Second)
	for tracker.Status().LastResult == nil {
		select {
		case <-deadline:
			t.Fatalf("tick did not run a sweep")
		case <-time.After(5 * time.Millisecond):
		}
	}

	status := tracker.Status()
	if !status.IsScheduled || status.NextRunAt == nil || !status.NextRunAt.Equal(now.Add(time.Hour)) {
		t.Errorf("status = %+v", status)
	}
	if status.LastResult.JobsStarted != 1 {
		t.Errorf("last result = %+v", status.LastResult)
	}

	tracker.Stop()
	if st := tracker.Status(); st.IsScheduled || st.NextRunAt != nil {
		t.Errorf("status after stop = %+v", st)
	}
	tracker.Stop()
}
