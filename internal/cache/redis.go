// Package cache keeps computed campaign stats in Redis or process memory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/timmy/trackr/internal/aggregate"
	"github.com/timmy/trackr/internal/logger"
)

const (
	keyPrefix        = "trackr:stats:"
	generationPrefix = "trackr:stats-gen:"
)

// Connect initializes a Redis client from URL or host:port input.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// StatsCache stores campaign stats as JSON with a TTL. Every failure is
// logged and treated as a miss.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache creates a cache over client. ttl <= 0 means five minutes.
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StatsCache{client: client, ttl: ttl}
}

// Key returns the Redis key of a campaign's stats.
func Key(campaignID string) string {
	return keyPrefix + campaignID
}

// GenerationKey returns the Redis key of a campaign's invalidation counter.
func GenerationKey(campaignID string) string {
	return generationPrefix + campaignID
}

func (c *StatsCache) Get(ctx context.Context, campaignID string) (*aggregate.CampaignStats, bool) {
	raw, err := c.client.Get(ctx, Key(campaignID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.FromContext(ctx).WithError(err).Warn("Stats cache read failed")
		}
		return nil, false
	}
	var stats aggregate.CampaignStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Stats cache entry is corrupt")
		return nil, false
	}
	return &stats, true
}

func (c *StatsCache) Generation(ctx context.Context, campaignID string) int64 {
	gen, err := readGeneration(ctx, c.client, campaignID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Stats cache generation read failed")
		return -1
	}
	return gen
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, cmd getter, campaignID string) (int64, error) {
	gen, err := cmd.Get(ctx, GenerationKey(campaignID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set stores stats only while the campaign generation still equals
// generation. The check and the write run in one WATCH transaction.
func (c *StatsCache) Set(ctx context.Context, stats *aggregate.CampaignStats, generation int64) {
	if generation < 0 {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	genKey := GenerationKey(stats.CampaignID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, stats.CampaignID)
		if err != nil {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, Key(stats.CampaignID), raw, c.ttl)
			return nil
		})
		return err
	}, genKey)
	// TxFailedErr means an invalidation won the race.
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		logger.FromContext(ctx).WithError(err).Warn("Stats cache write failed")
	}
}

// Invalidate bumps the generation and drops the cached stats.
func (c *StatsCache) Invalidate(ctx context.Context, campaignID string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, GenerationKey(campaignID))
		pipe.Del(ctx, Key(campaignID))
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Stats cache invalidation failed")
	}
}

// Ping checks the connection.
func (c *StatsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *StatsCache) Close() error {
	return c.client.Close()
}
