// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultRecoveryTokenTTL is how long a recovery token stays redeemable.
const DefaultRecoveryTokenTTL = time.Hour

// RecoveryToken is a persisted single-use password recovery token.
type RecoveryToken struct {
	ID        ulid.ULID
	AccountID AccountID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// RecoveryTokenRepository manages recovery token persistence.
type RecoveryTokenRepository interface {
	// Create stores a new token. Returns ErrConflict if the hash already exists.
	Create(ctx context.Context, token *RecoveryToken) error

	// Consume atomically deletes the unexpired token with the given hash
	// owned by accountID. Returns ErrNotFound when no such row exists, which
	// covers wrong owner, unknown, expired and already redeemed alike.
	Consume(ctx context.Context, accountID AccountID, tokenHash string, now time.Time) error

	// DeleteByAccount removes every token owned by the account.
	DeleteByAccount(ctx context.Context, accountID AccountID) (int64, error)

	// DeleteExpired removes tokens that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RecoveryStoreConfig configures a RecoveryTokenStore.
type RecoveryStoreConfig struct {
	// TTL is the token lifetime. Zero uses DefaultRecoveryTokenTTL.
	TTL time.Duration

	// SingleOutstanding revokes earlier tokens of the account on every Issue.
	SingleOutstanding bool
}

// RecoveryTokenStore issues and redeems password recovery tokens.
type RecoveryTokenStore struct {
	repo RecoveryTokenRepository
	tx   Transactor
	cfg  RecoveryStoreConfig
	opts storeOptions
}

// NewRecoveryTokenStore creates a RecoveryTokenStore.
func NewRecoveryTokenStore(repo RecoveryTokenRepository, tx Transactor, cfg RecoveryStoreConfig, opts ...StoreOption) (*RecoveryTokenStore, error) {
	if repo == nil {
		return nil, oops.Code("RECOVERY_INVALID_CONFIG").Errorf("recovery token repository is required")
	}
	if tx == nil {
		return nil, oops.Code("RECOVERY_INVALID_CONFIG").Errorf("transactor is required")
	}
	if cfg.TTL < 0 {
		return nil, oops.Code("RECOVERY_INVALID_CONFIG").Wrapf(ErrConfiguration, "recovery token ttl cannot be negative")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultRecoveryTokenTTL
	}
	o := defaultStoreOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RecoveryTokenStore{repo: repo, tx: tx, cfg: cfg, opts: o}, nil
}

// TTL returns the recovery token lifetime.
func (s *RecoveryTokenStore) TTL() time.Duration {
	return s.cfg.TTL
}

// Issue creates a recovery token for the account and returns it with its expiry.
func (s *RecoveryTokenStore) Issue(ctx context.Context, accountID AccountID) (string, time.Time, error) {
	var (
		token     string
		expiresAt time.Time
	)
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if s.cfg.SingleOutstanding {
				if _, err := s.repo.DeleteByAccount(ctx, accountID); err != nil {
					return oops.Code("RECOVERY_ISSUE_FAILED").
						With("operation", "delete outstanding tokens").
						Wrap(err)
				}
			}

			plain, hash, err := s.opts.generate()
			if err != nil {
				return err
			}
			now := s.opts.now()
			record := &RecoveryToken{
				ID:        ulid.Make(),
				AccountID: accountID,
				TokenHash: hash,
				ExpiresAt: now.Add(s.cfg.TTL),
				CreatedAt: now,
			}
			if err := s.repo.Create(ctx, record); err != nil {
				return oops.Code("RECOVERY_CREATE_FAILED").Wrap(err)
			}
			token, expiresAt = plain, record.ExpiresAt
			return nil
		})
	})
	if err != nil {
		return "", time.Time{}, oops.Code("RECOVERY_ISSUE_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return token, expiresAt, nil
}

// Redeem consumes the token if it belongs to accountID and is still valid.
//
// The delete is the authorization: of several concurrent redemptions of the
// same token exactly one succeeds. Call it inside the transaction that
// applies the password change so both commit or neither does.
func (s *RecoveryTokenStore) Redeem(ctx context.Context, accountID AccountID, token string) error {
	if token == "" {
		return oops.Code("RECOVERY_NOT_FOUND").Wrap(ErrTokenNotFound)
	}
	err := s.repo.Consume(ctx, accountID, HashToken(token), s.opts.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("RECOVERY_NOT_FOUND").Wrap(ErrTokenNotFound)
		}
		return oops.Code("RECOVERY_REDEEM_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return nil
}

// Revoke deletes one outstanding token of the account. A token that is
// already gone is not an error.
func (s *RecoveryTokenStore) Revoke(ctx context.Context, accountID AccountID, token string) error {
	if err := s.Redeem(ctx, accountID, token); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return err
	}
	return nil
}

// RevokeAllForAccount deletes every recovery token of the account.
func (s *RecoveryTokenStore) RevokeAllForAccount(ctx context.Context, accountID AccountID) (int64, error) {
	n, err := s.repo.DeleteByAccount(ctx, accountID)
	if err != nil {
		return 0, oops.Code("RECOVERY_REVOKE_ALL_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return n, nil
}

// PurgeExpired deletes expired tokens.
func (s *RecoveryTokenStore) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.opts.now())
	if err != nil {
		return 0, oops.Code("RECOVERY_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}
