// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/usersflow/usersflow/internal/auth"
)

// Clock is a settable clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock reading t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// FastHasher returns an argon2id hasher with minimal cost for tests.
func FastHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasherWithParams(auth.Argon2Params{
		Memory:      64,
		Iterations:  1,
		Parallelism: 1,
	})
}

// Notifier records recovery notices.
type Notifier struct {
	mu      sync.Mutex
	notices []auth.RecoveryNotice
	Err     error
}

// NotifyRecovery implements auth.RecoveryNotifier.
func (n *Notifier) NotifyRecovery(_ context.Context, notice auth.RecoveryNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.notices = append(n.notices, notice)
	return nil
}

// Notices returns the recorded notices.
func (n *Notifier) Notices() []auth.RecoveryNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]auth.RecoveryNotice(nil), n.notices...)
}

// Last returns the most recent notice.
func (n *Notifier) Last() (auth.RecoveryNotice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		return auth.RecoveryNotice{}, false
	}
	return n.notices[len(n.notices)-1], true
}

// Limiter is an in-memory auth.LoginLimiter.
type Limiter struct {
	mu       sync.Mutex
	failures map[string]int
	last     map[string]time.Time
	locked   map[string]time.Time
	now      func() time.Time
}

// NewLimiter creates a Limiter using now as its clock.
func NewLimiter(now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		failures: make(map[string]int),
		last:     make(map[string]time.Time),
		locked:   make(map[string]time.Time),
		now:      now,
	}
}

// Status implements auth.LoginLimiter.
func (l *Limiter) Status(_ context.Context, key string) (auth.RateLimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var lockedUntil *time.Time
	if t, ok := l.locked[key]; ok {
		if !t.After(l.now()) {
			delete(l.failures, key)
			delete(l.last, key)
			delete(l.locked, key)
		} else {
			lockedUntil = &t
		}
	}
	now := l.now()
	return auth.CheckFailures(l.failures[key], lockedUntil, now).WithLastFailure(l.last[key], now), nil
}

// RecordFailure implements auth.LoginLimiter.
func (l *Limiter) RecordFailure(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[key]++
	l.last[key] = l.now()
	if l.failures[key] >= auth.LockoutThreshold {
		l.locked[key] = l.now().Add(auth.LockoutDuration)
	}
	return nil
}

// Reset implements auth.LoginLimiter.
func (l *Limiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, key)
	delete(l.last, key)
	delete(l.locked, key)
	return nil
}

var (
	_ auth.RecoveryNotifier = (*Notifier)(nil)
	_ auth.LoginLimiter     = (*Limiter)(nil)
)
