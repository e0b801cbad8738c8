package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/timmy/trackr/internal/domain"
	"github.com/timmy/trackr/internal/fetcher"
	"github.com/timmy/trackr/internal/repository/memstore"
)

var testPolicy = RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

type harness struct {
	store       *memstore.Store
	campaigns   *CampaignService
	registry    *PostRegistry
	supervisor  *TaskSupervisor
	coordinator *JobCoordinator
	pool        *WorkerPool
}

func newHarness(t *testing.T, f fetcher.MetricFetcher) *harness {
	t.Helper()
	store := memstore.New()
	pool := NewWorkerPool(2, 16)
	pool.Start()

	sup := NewTaskSupervisor(store.Jobs(), store.Posts(), store.History(), f, testPolicy, nil, nil)
	h := &harness{
		store:       store,
		campaigns:   NewCampaignService(store.Campaigns(), store.Posts(), store.History(), nil),
		registry:    NewPostRegistry(store.Campaigns(), store.Posts(), nil),
		supervisor:  sup,
		coordinator: NewJobCoordinator(store.Jobs(), store.Posts(), store.Campaigns(), sup, pool, nil, nil),
		pool:        pool,
	}
	t.Cleanup(func() {
		h.coordinator.Stop()
		h.pool.Stop()
	})
	return h
}

func (h *harness) campaign(t *testing.T, name string) *domain.Campaign {
	t.Helper()
	c, err := h.campaigns.Create(context.Background(), CampaignInput{Name: name, Status: "active"})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return c
}

func (h *harness) post(t *testing.T, campaignID, url string) *domain.Post {
	t.Helper()
	p, err := h.registry.AddPost(context.Background(), campaignID, AddPostInput{URL: url})
	if err != nil {
		t.Fatalf("add post %s: %v", url, err)
	}
	return p
}

func (h *harness) wait(t *testing.T, jobID string) *domain.JobWithStats {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.coordinator.Wait(ctx, jobID); err != nil {
		t.Fatalf("wait for job %s: %v", jobID, err)
	}
	job, err := h.coordinator.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return job
}

// scriptedFetcher returns fixed metrics per URL and fails URLs containing
// any of the failing substrings.
type scriptedFetcher struct {
	mu      sync.Mutex
	failing []string
	metrics domain.Metrics
	calls   map[string]int
}

func newScriptedFetcher(m domain.Metrics, failing ...string) *scriptedFetcher {
	return &scriptedFetcher{metrics: m, failing: failing, calls: make(map[string]int)}
}

func (f *scriptedFetcher) Fetch(ctx context.Context, url string, platform domain.Platform) (domain.Metrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	for _, s := range f.failing {
		if strings.Contains(url, s) {
			return domain.Metrics{}, fmt.Errorf("%w: blocked by platform", domain.ErrFetchFailure)
		}
	}
	return f.metrics, nil
}

func (f *scriptedFetcher) setFailing(failing ...string) {
	f.mu.Lock()
	f.failing = failing
	f.mu.Unlock()
}

func (f *scriptedFetcher) callsFor(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for url, c := range f.calls {
		if strings.Contains(url, substr) {
			n += c
		}
	}
	return n
}
