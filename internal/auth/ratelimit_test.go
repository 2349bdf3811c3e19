// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usersflow/usersflow/internal/auth"
	"github.com/usersflow/usersflow/internal/auth/authtest"
)

func TestRateLimiter_CheckFailures(t *testing.T) {
	now := t0

	t.Run("no failures returns no delay", func(t *testing.T) {
		result := auth.CheckFailures(0, nil, now)
		assert.Zero(t, result.Delay)
		assert.False(t, result.IsLockedOut)
	})

	t.Run("failures below threshold return progressive delay", func(t *testing.T) {
		assert.Equal(t, time.Second, auth.CheckFailures(1, nil, now).Delay)
		assert.Equal(t, 2*time.Second, auth.CheckFailures(2, nil, now).Delay)
		assert.Equal(t, 4*time.Second, auth.CheckFailures(3, nil, now).Delay)
		assert.Equal(t, 32*time.Second, auth.CheckFailures(6, nil, now).Delay)
		assert.False(t, auth.CheckFailures(6, nil, now).IsLockedOut)
	})

	t.Run("threshold failures cause lockout", func(t *testing.T) {
		result := auth.CheckFailures(auth.LockoutThreshold, nil, now)
		assert.True(t, result.IsLockedOut)
		assert.Equal(t, auth.LockoutDuration, result.LockoutRemaining)
	})

	t.Run("existing lockout is detected", func(t *testing.T) {
		until := now.Add(10 * time.Minute)
		result := auth.CheckFailures(0, &until, now)
		assert.True(t, result.IsLockedOut)
		assert.Equal(t, 10*time.Minute, result.LockoutRemaining)
	})

	t.Run("past lockout is ignored", func(t *testing.T) {
		until := now.Add(-time.Minute)
		result := auth.CheckFailures(1, &until, now)
		assert.False(t, result.IsLockedOut)
		assert.Equal(t, time.Second, result.Delay)
	})
}

func TestRateLimitResult_RetryAfter(t *testing.T) {
	now := t0

	t.Run("delay counts from the last failure", func(t *testing.T) {
		result := auth.CheckFailures(3, nil, now).WithLastFailure(now.Add(-time.Second), now)
		assert.Equal(t, 3*time.Second, result.DelayRemaining)
		assert.Equal(t, 3*time.Second, result.RetryAfter())
	})

	t.Run("elapsed delay allows an attempt", func(t *testing.T) {
		result := auth.CheckFailures(3, nil, now).WithLastFailure(now.Add(-4*time.Second), now)
		assert.Zero(t, result.RetryAfter())
		assert.Equal(t, 4*time.Second, result.Delay)
	})

	t.Run("unknown last failure does not delay", func(t *testing.T) {
		result := auth.CheckFailures(3, nil, now).WithLastFailure(time.Time{}, now)
		assert.Zero(t, result.RetryAfter())
	})

	t.Run("lockout wins over delay", func(t *testing.T) {
		until := now.Add(10 * time.Minute)
		result := auth.CheckFailures(auth.LockoutThreshold, &until, now).WithLastFailure(now, now)
		assert.True(t, result.IsLockedOut)
		assert.Equal(t, 10*time.Minute, result.RetryAfter())
	})

	t.Run("no failures", func(t *testing.T) {
		assert.Zero(t, auth.CheckFailures(0, nil, now).WithLastFailure(now, now).RetryAfter())
	})
}

func TestNopLimiter(t *testing.T) {
	ctx := context.Background()
	var l auth.NopLimiter

	for range auth.LockoutThreshold * 2 {
		require.NoError(t, l.RecordFailure(ctx, "k"))
	}
	result, err := l.Status(ctx, "k")
	require.NoError(t, err)
	assert.False(t, result.IsLockedOut)
	assert.NoError(t, l.Reset(ctx, "k"))
}

func TestMemoryLimiter_LockoutExpires(t *testing.T) {
	ctx := context.Background()
	clock := authtest.NewClock(t0)
	l := authtest.NewLimiter(clock.Now)

	for range auth.LockoutThreshold {
		require.NoError(t, l.RecordFailure(ctx, "alice@example.com"))
	}
	result, err := l.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, result.IsLockedOut)

	clock.Advance(auth.LockoutDuration)
	result, err = l.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, result.IsLockedOut)
	assert.Zero(t, result.Delay)
}

func TestMemoryLimiter_DelayFollowsLastFailure(t *testing.T) {
	ctx := context.Background()
	clock := authtest.NewClock(t0)
	l := authtest.NewLimiter(clock.Now)

	require.NoError(t, l.RecordFailure(ctx, "alice@example.com"))
	clock.Advance(time.Second)
	require.NoError(t, l.RecordFailure(ctx, "alice@example.com"))

	result, err := l.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, result.RetryAfter())

	clock.Advance(1500 * time.Millisecond)
	result, err = l.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, result.RetryAfter())

	require.NoError(t, l.Reset(ctx, "alice@example.com"))
	result, err = l.Status(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Zero(t, result.RetryAfter())
}
