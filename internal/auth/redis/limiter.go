// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

// Package redis implements the login limiter on Redis so failure counts are
// shared by every instance of the service.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/usersflow/usersflow/internal/auth"
)

// KeyPrefix namespaces the failure counters.
const KeyPrefix = "usersflow:login:fail:"

// Options configure the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and pings it.
func NewClient(ctx context.Context, opts Options) (*goredis.Client, error) {
	if opts.Addr == "" {
		return nil, oops.Code("LIMITER_CONFIG_INVALID").Errorf("redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("LIMITER_CONNECT_FAILED").
			With("addr", opts.Addr).
			Wrap(err)
	}
	return client, nil
}

// FailureCounter implements auth.LoginLimiter with one expiring counter per
// key. Keys are hashed so emails never appear in Redis.
type FailureCounter struct {
	client goredis.Cmdable
	now    func() time.Time
}

// NewFailureCounter creates a FailureCounter on client.
func NewFailureCounter(client goredis.Cmdable) *FailureCounter {
	return &FailureCounter{client: client, now: time.Now}
}

// Key returns the Redis key holding the failures of key.
func Key(key string) string {
	sum := sha256.Sum256([]byte(key))
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// Status implements auth.LoginLimiter. Once the threshold is reached the
// counter's remaining TTL is the lockout. Below it the TTL dates the last
// failure, which bounds the progressive delay.
func (f *FailureCounter) Status(ctx context.Context, key string) (auth.RateLimitResult, error) {
	k := Key(key)

	var (
		get *goredis.StringCmd
		ttl *goredis.DurationCmd
	)
	_, err := f.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		get = p.Get(ctx, k)
		ttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return auth.RateLimitResult{}, oops.Code("LIMITER_STATUS_FAILED").Wrap(err)
	}

	failures, err := get.Int()
	if errors.Is(err, goredis.Nil) {
		return auth.RateLimitResult{}, nil
	}
	if err != nil {
		return auth.RateLimitResult{}, oops.Code("LIMITER_STATUS_FAILED").
			With("operation", "parse failure count").
			Wrap(err)
	}

	now := f.now()
	remaining := ttl.Val()
	var (
		lockedUntil *time.Time
		lastFailure time.Time
	)
	if remaining > 0 {
		// Every failure resets the TTL to LockoutDuration.
		lastFailure = now.Add(remaining - auth.LockoutDuration)
		if failures >= auth.LockoutThreshold {
			until := now.Add(remaining)
			lockedUntil = &until
		}
	}
	return auth.CheckFailures(failures, lockedUntil, now).WithLastFailure(lastFailure, now), nil
}

// RecordFailure implements auth.LoginLimiter. Every failure restarts the
// window, so a counter that reaches the threshold locks for LockoutDuration.
func (f *FailureCounter) RecordFailure(ctx context.Context, key string) error {
	k := Key(key)
	_, err := f.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Incr(ctx, k)
		p.PExpire(ctx, k, auth.LockoutDuration)
		return nil
	})
	if err != nil {
		return oops.Code("LIMITER_RECORD_FAILED").Wrap(err)
	}
	return nil
}

// Reset implements auth.LoginLimiter.
func (f *FailureCounter) Reset(ctx context.Context, key string) error {
	if err := f.client.Del(ctx, Key(key)).Err(); err != nil {
		return oops.Code("LIMITER_RESET_FAILED").Wrap(err)
	}
	return nil
}

var _ auth.LoginLimiter = (*FailureCounter)(nil)
