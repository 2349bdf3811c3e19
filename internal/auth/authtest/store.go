// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

// Package authtest provides in-memory implementations of the auth
// repositories and collaborators for tests.
package authtest

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/usersflow/usersflow/internal/auth"
)

type txKey struct{}

// Store is an in-memory backing store for accounts and tokens.
//
// A transaction holds the store lock for its whole duration and restores a
// snapshot when it fails, which gives the same all-or-nothing and
// single-winner behaviour as the postgres implementation.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[auth.AccountID]auth.Account
	refresh  map[string]auth.RefreshToken
	recovery map[string]auth.RecoveryToken
	failures map[string]error
	now      func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[auth.AccountID]auth.Account),
		refresh:  make(map[string]auth.RefreshToken),
		recovery: make(map[string]auth.RecoveryToken),
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// SetClock overrides the clock used for created and updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailOn makes every later call of the named operation return err.
// Operation names are "<repo>.<Method>", for example "refresh.DeleteByAccount".
// A nil err clears the failure.
func (s *Store) FailOn(operation string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, operation)
		return
	}
	s.failures[operation] = err
}

// WithinTx implements auth.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snapshot)
		return err
	}
	if err := ctx.Err(); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// Accounts returns the account repository view.
func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s: s} }

// RefreshTokens returns the refresh token repository view.
func (s *Store) RefreshTokens() *RefreshRepo { return &RefreshRepo{s: s} }

// RecoveryTokens returns the recovery token repository view.
func (s *Store) RecoveryTokens() *RecoveryRepo { return &RecoveryRepo{s: s} }

// RefreshCount returns the number of stored refresh tokens for the account.
func (s *Store) RefreshCount(id auth.AccountID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.refresh {
		if t.AccountID == id {
			n++
		}
	}
	return n
}

// RecoveryCount returns the number of stored recovery tokens for the account.
func (s *Store) RecoveryCount(id auth.AccountID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.recovery {
		if t.AccountID == id {
			n++
		}
	}
	return n
}

type storeSnapshot struct {
	nextID   int64
	accounts map[auth.AccountID]auth.Account
	refresh  map[string]auth.RefreshToken
	recovery map[string]auth.RecoveryToken
}

func (s *Store) snapshot() storeSnapshot {
	return storeSnapshot{
		nextID:   s.nextID,
		accounts: maps.Clone(s.accounts),
		refresh:  maps.Clone(s.refresh),
		recovery: maps.Clone(s.recovery),
	}
}

func (s *Store) restore(snap storeSnapshot) {
	s.nextID = snap.nextID
	s.accounts = snap.accounts
	s.refresh = snap.refresh
	s.recovery = snap.recovery
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// lock acquires the store lock unless ctx already runs inside a transaction
// of this store, and returns the matching unlock.
func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) injected(operation string) error {
	return s.failures[operation]
}

// AccountRepo implements auth.AccountRepository.
type AccountRepo struct{ s *Store }

// Create implements auth.AccountRepository.
func (r *AccountRepo) Create(ctx context.Context, account *auth.Account) error {
	defer r.s.lock(ctx)()
	if err := r.s.injected("accounts.Create"); err != nil {
		return err
	}
	if r.emailInUse(account.Email, 0) {
		return oops.Code("ACCOUNT_EMAIL_TAKEN").Wrap(auth.ErrEmailTaken)
	}
	r.s.nextID++
	now := r.s.now()
	account.ID = auth.AccountID(r.s.nextID)
	account.CreatedAt = now
	account.UpdatedAt = now
	r.s.accounts[account.ID] = *account
	return nil
}

// GetByID implements auth.AccountRepository.
func (r *AccountRepo) GetByID(ctx context.Context, id auth.AccountID) (*auth.Account, error) {
	defer r.s.lock(ctx)()
	if err := r.s.injected("accounts.GetByID"); err != nil {
		return nil, err
	}
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return &a, nil
}

// GetByEmail implements auth.AccountRepository.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	defer r.s.lock(ctx)()
	if err := r.s.injected("accounts.GetByEmail"); err != nil {
		return nil, err
	}
	for _, a := range r.s.accounts {
		if strings.EqualFold(a.Email, email) {
			return &a, nil
		}
	}
	return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// UpdateName implements auth.AccountRepository.
func (r *AccountRepo) UpdateName(ctx context.Context, id auth.AccountID, name string) error {
	return r.update(ctx, "accounts.UpdateName", id, func(a *auth.Account) error {
		a.Name = name
		return nil
	})
}

// UpdateEmail implements auth.AccountRepository.
func (r *AccountRepo) UpdateEmail(ctx context.Context, id auth.AccountID, email string) error {
	return r.update(ctx, "accounts.UpdateEmail", id, func(a *auth.Account) error {
		if r.emailInUse(email, id) {
			return oops.Code("ACCOUNT_EMAIL_TAKEN").Wrap(auth.ErrEmailTaken)
		}
		a.Email = email
		return nil
	})
}

// UpdatePassword implements auth.AccountRepository.
func (r *AccountRepo) UpdatePassword(ctx context.Context, id auth.AccountID, passwordHash string) error {
	return r.update(ctx, "accounts.UpdatePassword", id, func(a *auth.Account) error {
		a.PasswordHash = passwordHash
		return nil
	})
}

// Delete implements auth.AccountRepository. Tokens of the account are
// removed as a foreign key cascade would.
func (r *AccountRepo) Delete(ctx context.Context, id auth.AccountID) error {
	defer r.s.lock(ctx)()
	if err := r.s.injected("accounts.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.accounts[id]; !ok {
		return oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	delete(r.s.accounts, id)
	maps.DeleteFunc(r.s.refresh, func(_ string, t auth.RefreshToken) bool { return t.AccountID == id })
	maps.DeleteFunc(r.s.recovery, func(_ string, t auth.RecoveryToken) bool { return t.AccountID == id })
	return nil
}

func (r *AccountRepo) update(ctx context.Context, operation string, id auth.AccountID, mutate func(*auth.Account) error) error {
	defer r.s.lock(ctx)()
	if err := r.s.injected(operation); err != nil {
		return err
	}
	a, ok := r.s.accounts[id]
	if !ok {
		return oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err := mutate(&a); err != nil {
		return err
	}
	a.UpdatedAt = r.s.now()
	r.s.accounts[id] = a
	return nil
}

func (r *AccountRepo) emailInUse(email string, except auth.AccountID) bool {
	for id, a := range r.s.accounts {
		if id != except && strings.EqualFold(a.Email, email) {
			return true
		}
	}
	return false
}

// RefreshRepo implements auth.RefreshTokenRepository.
type RefreshRepo struct{ s *Store }

// Create implements auth.RefreshTokenRepository.
func (r *RefreshRepo) Create(ctx context.Context, token *auth.RefreshToken) error {
	defer r.s.lock(ctx)()
	if err := r.s.injected("refresh.Create"); err != nil {
		return err
	}
	if _, ok := r.s.accounts[token.AccountID]; !ok {
		return oops.Code("REFRESH_ACCOUNT_MISSING").Errorf("account %s does not exist", token.AccountID)
	}
	if _, ok := r.s.refresh[token.TokenHash]; ok {
		return oops.Code("REFRESH_TOKEN_CONFLICT").Wrap(auth.ErrConflict)
	}
	r.s.refresh[token.TokenHash] = *token
	return nil
}

// GetByTokenHash implements auth.RefreshTokenRepository.
func (r *RefreshRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	defer r.s.lock(ctx)()
	if err := r.s.injected("refresh.GetByTokenHash"); err != nil {
		return nil, err
	}
	t, ok := r.s.refresh[tokenHash]
	if !ok {
		return nil, oops.Code("REFRESH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return &t, nil
}

// Consume implements auth.RefreshTokenRepository.
func (r *RefreshRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (*auth.RefreshToken, error) {
	defer r.s.lock(ctx)()
	if err := r.s.injected("refresh.Consume"); err != nil {
		return nil, err
	}
	t, ok := r.s.refresh[tokenHash]
	if !ok || t.IsExpiredAt(now) {
		return nil, oops.Code("REFRESH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	delete(r.s.refresh, tokenHash)
	return &t, nil
}

// DeleteByTokenHash implements auth.RefreshTokenRepository.
func (r *RefreshRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error) {
	defer r.s.lock(ctx)()
	if err := r.s.injected("refresh.DeleteByTokenHash"); err != nil {
		return 0, err
	}
	if _, ok := r.s.refresh[tokenHash]; !ok {
		return 0, nil
	}
	delete(r.s.refresh, tokenHash)
	return 1, nil
}

// DeleteByAccount implements auth.RefreshTokenRepository.
func (r *RefreshRepo) DeleteByAccount(ctx context.Context, accountID auth.AccountID) (int64, error) {
	defer r.s.lock(ctx)()
	if err := r.s.injected("refresh.DeleteByAccount"); err != nil {
		return 0, err
	}
	before := len(r.s.refresh)
	maps.DeleteFunc(r.s.refresh, func(_ string, t auth.RefreshToken) bool { return t.AccountID == accountID })
	return int64(before - len(r.s.refresh)), nil
}

// DeleteExpired implements auth.RefreshTokenRepository.
func (r *RefreshRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer r.s.lock(ctx)()
	if err := r.s.injected("refresh.DeleteExpired"); err != nil {
		return 0, err
	}
	before := len(r.s.refresh)
	maps.DeleteFunc(r.s.refresh, func(_ string, t auth.RefreshToken) bool { return t.IsExpiredAt(now) })
	return int64(before - len(r.s.refresh)), nil
}

// RecoveryRepo implements auth.RecoveryTokenRepository.
type RecoveryRepo struct{ s *Store }

// Create implements auth.RecoveryTokenRepository.
func (r *RecoveryRepo) Create(ctx context.Context, token *auth.RecoveryToken) error {
	defer r.s.lock(ctx)()
	if err := r.s.injected("recovery.Create"); err != nil {
		return err
	}
	if _, ok := r.s.accounts[token.AccountID]; !ok {
		return oops.Code("RECOVERY_ACCOUNT_MISSING").Errorf("account %s does not exist", token.AccountID)
	}
	if _, ok := r.s.recovery[token.TokenHash]; ok {
		return oops.Code("RECOVERY_TOKEN_CONFLICT").Wrap(auth.ErrConflict)
	}
	r.s.recovery[token.TokenHash] = *token
	return nil
}

// Consume implements auth.RecoveryTokenRepository.
func (r *RecoveryRepo) Consume(ctx context.Context, accountID auth.AccountID, tokenHash string, now time.Time) error {
	defer r.s.lock(ctx)()
	if err := r.s.injected("recovery.Consume"); err != nil {
		return err
	}
	t, ok := r.s.recovery[tokenHash]
	if !ok || t.AccountID != accountID || !now.Before(t.ExpiresAt) {
		return oops.Code("RECOVERY_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	delete(r.s.recovery, tokenHash)
	return nil
}

// DeleteByAccount implements auth.RecoveryTokenRepository.
func (r *RecoveryRepo) DeleteByAccount(ctx context.Context, accountID auth.AccountID) (int64, error) {
	defer r.s.lock(ctx)()
	if err := r.s.injected("recovery.DeleteByAccount"); err != nil {
		return 0, err
	}
	before := len(r.s.recovery)
	maps.DeleteFunc(r.s.recovery, func(_ string, t auth.RecoveryToken) bool { return t.AccountID == accountID })
	return int64(before - len(r.s.recovery)), nil
}

// DeleteExpired implements auth.RecoveryTokenRepository.
func (r *RecoveryRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer r.s.lock(ctx)()
	if err := r.s.injected("recovery.DeleteExpired"); err != nil {
		return 0, err
	}
	before := len(r.s.recovery)
	maps.DeleteFunc(r.s.recovery, func(_ string, t auth.RecoveryToken) bool { return !now.Before(t.ExpiresAt) })
	return int64(before - len(r.s.recovery)), nil
}

var (
	_ auth.Transactor              = (*Store)(nil)
	_ auth.AccountRepository       = (*AccountRepo)(nil)
	_ auth.RefreshTokenRepository  = (*RefreshRepo)(nil)
	_ auth.RecoveryTokenRepository = (*RecoveryRepo)(nil)
)
