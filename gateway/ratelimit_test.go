// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLimiter(t *testing.T) *RedisRateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	l, err := NewRedisRateLimiter("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRedisRateLimiter_AllowsWithinLimit(t *testing.T) {
	l := newTestRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.NoError(t, l.Allow(ctx, "acct-1", 5))
	}
}

func TestRedisRateLimiter_BlocksOverLimit(t *testing.T) {
	l := newTestRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "acct-1", 3))
	}
	err := l.Allow(ctx, "acct-1", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestRedisRateLimiter_AccountsAreIndependent(t *testing.T) {
	l := newTestRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, l.Allow(ctx, "acct-1", 2))
	}
	require.Error(t, l.Allow(ctx, "acct-1", 2))
	assert.NoError(t, l.Allow(ctx, "acct-2", 2), "other accounts keep their own window")
}

func TestRedisRateLimiter_FailsOpenOnBackendLoss(t *testing.T) {
	mr := miniredis.RunT(t)
	l, err := NewRedisRateLimiter("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	mr.Close()

	// Backend gone: requests are allowed rather than refused
	assert.NoError(t, l.Allow(context.Background(), "acct-1", 1))
	assert.NoError(t, l.Allow(context.Background(), "acct-1", 1))
}

func TestMemoryRateLimiter(t *testing.T) {
	l := NewMemoryRateLimiter()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, l.Allow(ctx, "acct-1", 4))
	}
	require.Error(t, l.Allow(ctx, "acct-1", 4))
	assert.NoError(t, l.Allow(ctx, "acct-2", 4))
}
