// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/usersflow/usersflow/internal/auth"
	"github.com/usersflow/usersflow/internal/auth/redis"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return endpoint
}

func TestFailureCounter_Lifecycle(t *testing.T) {
	ctx := context.Background()
	client, err := redis.NewClient(ctx, redis.Options{Addr: startRedis(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	counter := redis.NewFailureCounter(client)
	const email = "alice@example.com"

	result, err := counter.Status(ctx, email)
	require.NoError(t, err)
	assert.False(t, result.IsLockedOut)
	assert.Zero(t, result.Delay)

	for range auth.LockoutThreshold - 1 {
		require.NoError(t, counter.RecordFailure(ctx, email))
	}
	result, err = counter.Status(ctx, email)
	require.NoError(t, err)
	assert.False(t, result.IsLockedOut)
	assert.Equal(t, 32*time.Second, result.Delay)
	assert.Greater(t, result.RetryAfter(), 30*time.Second, "the last failure was just recorded")
	assert.LessOrEqual(t, result.RetryAfter(), 32*time.Second)

	require.NoError(t, counter.RecordFailure(ctx, email))
	result, err = counter.Status(ctx, email)
	require.NoError(t, err)
	assert.True(t, result.IsLockedOut)
	assert.Greater(t, result.LockoutRemaining, auth.LockoutDuration-time.Minute)
	assert.LessOrEqual(t, result.LockoutRemaining, auth.LockoutDuration)

	ttl, err := client.PTTL(ctx, redis.Key(email)).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl, "counters must expire")

	require.NoError(t, counter.Reset(ctx, email))
	result, err = counter.Status(ctx, email)
	require.NoError(t, err)
	assert.False(t, result.IsLockedOut)
	assert.Zero(t, result.Delay)
	assert.Zero(t, result.RetryAfter())
}
