package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	uuid "github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nisum/oppenheimer/internal/core/port"
)

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
	// TTL bounds how long an idle window is retained. It should be at least the longest window.
	TTL time.Duration
}

// RateLimitRepository persists rate-limit attempts in Redis sorted sets
// scored by attempt time in nanoseconds.
type RateLimitRepository struct {
	client redis.UniversalClient
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client redis.UniversalClient, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// Observe trims attempts at or before now-window and reads the count and oldest attempt in a single transaction.
func (r *RateLimitRepository) Observe(ctx context.Context, key string, window time.Duration, now time.Time) (port.RateLimitWindow, error) {
	if window <= 0 {
		return port.RateLimitWindow{}, errors.New("window must be positive")
	}

	storageKey := r.key(key)
	threshold := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	var (
		count  *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, storageKey, "-inf", threshold)
		count = pipe.ZCard(ctx, storageKey)
		oldest = pipe.ZRangeWithScores(ctx, storageKey, 0, 0)
		return nil
	})
	if err != nil {
		return port.RateLimitWindow{}, fmt.Errorf("redis observe window: %w", err)
	}

	result := port.RateLimitWindow{Count: int(count.Val())}
	if entries := oldest.Val(); len(entries) > 0 {
		result.Oldest = time.Unix(0, int64(entries[0].Score)).UTC()
	}
	return result, nil
}

// Record stores the attempt and refreshes the key TTL.
func (r *RateLimitRepository) Record(ctx context.Context, key string, at time.Time) error {
	storageKey := r.key(key)
	member := redis.Z{
		Score:  float64(at.UnixNano()),
		Member: strconv.FormatInt(at.UnixNano(), 10) + "-" + uuid.NewString(),
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, storageKey, member)
		if r.cfg.TTL > 0 {
			pipe.Expire(ctx, storageKey, r.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record attempt: %w", err)
	}
	return nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, identifier)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
