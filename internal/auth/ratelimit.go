// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package auth

import (
	"context"
	"time"
)

// Rate limiting configuration.
const (
	// LockoutDuration is the time an email is locked out after too many failures.
	// Failure counters also expire after this long without new failures.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of failures that triggers a lockout.
	LockoutThreshold = 7
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	// Delay is the back-off a client should apply before the next attempt.
	Delay time.Duration

	// IsLockedOut indicates login is temporarily refused.
	IsLockedOut bool

	// LockoutRemaining is the time until the lockout expires.
	LockoutRemaining time.Duration

	// DelayRemaining is the part of Delay not yet elapsed since the last
	// failure. See WithLastFailure.
	DelayRemaining time.Duration
}

// WithLastFailure fills DelayRemaining from the time of the most recent
// failure. A zero last leaves the result unchanged.
func (r RateLimitResult) WithLastFailure(last, now time.Time) RateLimitResult {
	if r.Delay <= 0 || last.IsZero() {
		return r
	}
	if remaining := last.Add(r.Delay).Sub(now); remaining > 0 {
		r.DelayRemaining = remaining
	}
	return r
}

// RetryAfter is how long the caller must wait before another attempt is
// considered. Zero means an attempt may proceed.
func (r RateLimitResult) RetryAfter() time.Duration {
	if r.IsLockedOut {
		return r.LockoutRemaining
	}
	return r.DelayRemaining
}

// CheckFailures evaluates the rate limit state based on failure count.
// lockedUntil is the current lockout timestamp (nil if not locked).
func CheckFailures(failures int, lockedUntil *time.Time, now time.Time) RateLimitResult {
	result := RateLimitResult{}

	if lockedUntil != nil && lockedUntil.After(now) {
		result.IsLockedOut = true
		result.LockoutRemaining = lockedUntil.Sub(now)
		return result
	}

	// Progressive delay: 2^(failures-1) seconds, max 32s before lockout
	if failures > 0 && failures < LockoutThreshold {
		result.Delay = time.Duration(1<<(failures-1)) * time.Second
		if result.Delay > 32*time.Second {
			result.Delay = 32 * time.Second
		}
	}

	if failures >= LockoutThreshold {
		result.IsLockedOut = true
		result.LockoutRemaining = LockoutDuration
	}

	return result
}

// LoginLimiter tracks failed logins per key (the normalized email).
type LoginLimiter interface {
	// Status reports the current rate limit state for key.
	Status(ctx context.Context, key string) (RateLimitResult, error)

	// RecordFailure counts one failed attempt for key.
	RecordFailure(ctx context.Context, key string) error

	// Reset clears the failures for key after a successful login.
	Reset(ctx context.Context, key string) error
}

// NopLimiter never limits.
type NopLimiter struct{}

// Status always reports no limit.
func (NopLimiter) Status(context.Context, string) (RateLimitResult, error) {
	return RateLimitResult{}, nil
}

// RecordFailure does nothing.
func (NopLimiter) RecordFailure(context.Context, string) error { return nil }

// Reset does nothing.
func (NopLimiter) Reset(context.Context, string) error { return nil }

var _ LoginLimiter = NopLimiter{}
