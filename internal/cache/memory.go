package cache

import (
	"context"
	"sync"
	"time"

	"github.com/timmy/trackr/internal/aggregate"
)

type memoryEntry struct {
	stats   aggregate.CampaignStats
	expires time.Time
}

// MemoryStatsCache is the single-process stats cache used when no Redis URL
// is configured. It follows the same generation rules as StatsCache.
type MemoryStatsCache struct {
	mu          sync.Mutex
	ttl         time.Duration
	entries     map[string]memoryEntry
	generations map[string]int64
	nowFn       func() time.Time
}

// NewMemoryStatsCache creates an empty cache. ttl <= 0 means five minutes.
func NewMemoryStatsCache(ttl time.Duration) *MemoryStatsCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryStatsCache{
		ttl:         ttl,
		entries:     make(map[string]memoryEntry),
		generations: make(map[string]int64),
		nowFn:       time.Now,
	}
}

func (c *MemoryStatsCache) Get(_ context.Context, campaignID string) (*aggregate.CampaignStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[campaignID]
	if !ok {
		return nil, false
	}
	if !c.nowFn().Before(e.expires) {
		delete(c.entries, campaignID)
		return nil, false
	}
	stats := e.stats
	return &stats, true
}

func (c *MemoryStatsCache) Generation(_ context.Context, campaignID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[campaignID]
}

func (c *MemoryStatsCache) Set(_ context.Context, stats *aggregate.CampaignStats, generation int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation < 0 || c.generations[stats.CampaignID] != generation {
		return
	}
	c.entries[stats.CampaignID] = memoryEntry{stats: *stats, expires: c.nowFn().Add(c.ttl)}
}

func (c *MemoryStatsCache) Invalidate(_ context.Context, campaignID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[campaignID]++
	delete(c.entries, campaignID)
}
