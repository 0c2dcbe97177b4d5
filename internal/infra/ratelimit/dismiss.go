package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"boardnotice/internal/domain/notice"

	"github.com/redis/go-redis/v9"
)

var _ notice.DismissLimiter = (*RedisDismissLimiter)(nil)

// RedisDismissLimiter caps how often a user may dismiss notices using Redis sorted sets.
// It uses a sliding window: each dismissal is a member scored by its timestamp.
type RedisDismissLimiter struct {
	client     redis.UniversalClient
	maxPerHour int
	window     time.Duration
	now        func() time.Time
}

// NewRedisDismissLimiter creates a new Redis-based per-user dismiss limiter.
func NewRedisDismissLimiter(client redis.UniversalClient, maxPerHour int) *RedisDismissLimiter {
	return &RedisDismissLimiter{
		client:     client,
		maxPerHour: maxPerHour,
		window:     time.Hour,
		now:        time.Now,
	}
}

// Allow checks whether the user may dismiss another notice and records the attempt.
func (r *RedisDismissLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	if r.maxPerHour <= 0 {
		return true, nil
	}

	key := fmt.Sprintf("boardnotice:ratelimit:dismiss:%s", userID)
	now := r.now()
	windowStart := now.Add(-r.window)

	pipe := r.client.Pipeline()

	// Remove expired entries (outside the sliding window)
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart.UnixNano()))

	countCmd := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("checking dismiss rate limit: %w", err)
	}

	if countCmd.Val() >= int64(r.maxPerHour) {
		return false, nil
	}

	// Unique member so concurrent dismissals in the same nanosecond both count
	randBytes := make([]byte, 4)
	_, _ = rand.Read(randBytes)
	member := redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d:%s", now.UnixNano(), hex.EncodeToString(randBytes)),
	}

	pipe2 := r.client.Pipeline()
	pipe2.ZAdd(ctx, key, member)
	pipe2.Expire(ctx, key, r.window+time.Minute)

	if _, err := pipe2.Exec(ctx); err != nil {
		return false, fmt.Errorf("recording dismiss: %w", err)
	}

	return true, nil
}
