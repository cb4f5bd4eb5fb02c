// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"toolgate/platform/shared/logger"
)

// RateLimiter enforces a per-account request budget. Allow returns an error
// when the account has exhausted its window.
type RateLimiter interface {
	Allow(ctx context.Context, accountID string, limitPerMinute int) error
}

// RedisRateLimiter implements a sliding-window limiter over a Redis sorted
// set. It fails open: if Redis is unreachable the request is allowed and a
// warning is logged, so billing ingress never depends on the limiter backend.
type RedisRateLimiter struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisRateLimiter connects to Redis and verifies the connection
func NewRedisRateLimiter(redisURL string) (*RedisRateLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRateLimiter{client: client, log: logger.New("ratelimit")}, nil
}

// Allow records the request and checks the one-minute sliding window
func (l *RedisRateLimiter) Allow(ctx context.Context, accountID string, limitPerMinute int) error {
	now := time.Now()
	key := fmt.Sprintf("ratelimit:%s", accountID)

	pipe := l.client.Pipeline()

	// Drop timestamps outside the sliding window
	minScore := now.Add(-time.Minute).Unix()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, 2*time.Minute)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		l.log.Warn(accountID, "", "rate limit check failed, failing open", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	count := cmds[1].(*redis.IntCmd).Val()
	if count >= int64(limitPerMinute) {
		return fmt.Errorf("rate limit exceeded: %d requests/minute (limit: %d)", count+1, limitPerMinute)
	}
	return nil
}

// Close releases the Redis connection
func (l *RedisRateLimiter) Close() error {
	return l.client.Close()
}

// MemoryRateLimiter is the single-instance fallback used when no Redis URL
// is configured
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewMemoryRateLimiter creates an in-process sliding-window limiter
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{windows: make(map[string][]time.Time)}
}

// Allow records the request and checks the one-minute sliding window
func (l *MemoryRateLimiter) Allow(ctx context.Context, accountID string, limitPerMinute int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Minute)

	kept := l.windows[accountID][:0]
	for _, ts := range l.windows[accountID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limitPerMinute {
		l.windows[accountID] = kept
		return fmt.Errorf("rate limit exceeded: %d requests/minute (limit: %d)", len(kept)+1, limitPerMinute)
	}

	l.windows[accountID] = append(kept, now)
	return nil
}
