// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package authtest

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/usersflow/usersflow/internal/auth"
)

// TestSecret is a signing secret long enough for the codec.
const TestSecret = "0123456789abcdef0123456789abcdef"

// Test identity settings.
const (
	TestIssuer   = "usersflow-test"
	TestAudience = "usersflow-test-api"
)

// Harness wires a Coordinator to in-memory collaborators.
type Harness struct {
	Store       *Store
	Clock       *Clock
	Codec       *auth.AccessTokenCodec
	Hasher      *auth.Argon2idHasher
	Refresh     *auth.RefreshTokenStore
	Recovery    *auth.RecoveryTokenStore
	Notifier    *Notifier
	Limiter     *Limiter
	Coordinator *auth.Coordinator
}

// HarnessOptions adjust a Harness.
type HarnessOptions struct {
	Start             time.Time
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	RecoveryTTL       time.Duration
	SingleOutstanding bool
	WithLimiter       bool
	Logger            *slog.Logger
	Hasher            *auth.Argon2idHasher
}

// NewHarness builds a Harness. The clock starts at opts.Start or
// 2026-01-01 12:00:00 UTC.
func NewHarness(t testing.TB, opts HarnessOptions) *Harness {
	t.Helper()

	start := opts.Start
	if start.IsZero() {
		start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	clock := NewClock(start)

	store := NewStore()
	store.SetClock(clock.Now)

	codec, err := auth.NewAccessTokenCodec(auth.AccessTokenConfig{
		Secret:   []byte(TestSecret),
		Issuer:   TestIssuer,
		Audience: TestAudience,
		TTL:      opts.AccessTTL,
	}, auth.WithClock(clock.Now))
	require.NoError(t, err)

	refresh, err := auth.NewRefreshTokenStore(store.RefreshTokens(), store, opts.RefreshTTL,
		auth.WithStoreClock(clock.Now))
	require.NoError(t, err)

	recovery, err := auth.NewRecoveryTokenStore(store.RecoveryTokens(), store, auth.RecoveryStoreConfig{
		TTL:               opts.RecoveryTTL,
		SingleOutstanding: opts.SingleOutstanding,
	}, auth.WithStoreClock(clock.Now))
	require.NoError(t, err)

	hasher := opts.Hasher
	if hasher == nil {
		hasher = FastHasher()
	}

	h := &Harness{
		Store:    store,
		Clock:    clock,
		Codec:    codec,
		Hasher:   hasher,
		Refresh:  refresh,
		Recovery: recovery,
		Notifier: &Notifier{},
	}

	deps := auth.CoordinatorDeps{
		Accounts: store.Accounts(),
		Refresh:  refresh,
		Recovery: recovery,
		Codec:    codec,
		Hasher:   hasher,
		Tx:       store,
		Notifier: h.Notifier,
		Logger:   opts.Logger,
	}
	if opts.WithLimiter {
		h.Limiter = NewLimiter(clock.Now)
		deps.Limiter = h.Limiter
	}

	h.Coordinator, err = auth.NewCoordinator(deps)
	require.NoError(t, err)
	return h
}

// Register creates an account through the coordinator.
func (h *Harness) Register(t testing.TB, name, email, password string) *auth.Account {
	t.Helper()
	account, err := h.Coordinator.Register(t.Context(), name, email, password)
	require.NoError(t, err)
	return account
}
