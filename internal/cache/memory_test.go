package cache

import (
	"context"
	"testing"
	"time"

	"github.com/timmy/trackr/internal/aggregate"
)

func TestMemoryStatsCacheGeneration(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStatsCache(time.Minute)
	stats := &aggregate.CampaignStats{CampaignID: "c1", PostCount: 3}

	gen := c.Generation(ctx, "c1")
	c.Invalidate(ctx, "c1")
	c.Set(ctx, stats, gen)
	if _, ok := c.Get(ctx, "c1"); ok {
		t.Fatalf("stats computed before an invalidation were cached")
	}

	c.Set(ctx, stats, c.Generation(ctx, "c1"))
	got, ok := c.Get(ctx, "c1")
	if !ok || got.PostCount != 3 {
		t.Fatalf("Get = %+v, %v; want cached stats", got, ok)
	}

	c.Invalidate(ctx, "c1")
	if _, ok := c.Get(ctx, "c1"); ok {
		t.Errorf("Get after Invalidate hit")
	}
	c.Set(ctx, stats, -1)
	if _, ok := c.Get(ctx, "c1"); ok {
		t.Errorf("Set with unknown generation was stored")
	}
}

func TestMemoryStatsCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryStatsCache(time.Minute)
	c.nowFn = func() time.Time { return now }

	c.Set(ctx, &aggregate.CampaignStats{CampaignID: "c1"}, 0)
	if _, ok := c.Get(ctx, "c1"); !ok {
		t.Fatalf("fresh entry missing")
	}
	now = now.Add(time.Minute)
	if _, ok := c.Get(ctx, "c1"); ok {
		t.Errorf("expired entry returned")
	}
}
