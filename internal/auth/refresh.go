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

// RefreshToken is a persisted refresh token. Only the token hash is stored.
type RefreshToken struct {
	ID        ulid.ULID
	AccountID AccountID
	TokenHash string
	ExpiresAt *time.Time // nil when refresh tokens do not expire
	CreatedAt time.Time
}

// IsExpiredAt reports whether the token is expired at t.
func (r *RefreshToken) IsExpiredAt(t time.Time) bool {
	return r.ExpiresAt != nil && !t.Before(*r.ExpiresAt)
}

// RefreshTokenRepository manages refresh token persistence.
type RefreshTokenRepository interface {
	// Create stores a new token. Returns ErrConflict if the hash already exists.
	Create(ctx context.Context, token *RefreshToken) error

	// GetByTokenHash retrieves a token by hash. Returns ErrNotFound if absent.
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Consume atomically deletes the token with the given hash if it has not
	// expired at now, and returns the deleted record. Of several concurrent
	// callers at most one receives the record; the rest get ErrNotFound.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)

	// DeleteByTokenHash removes the token with the given hash if present.
	DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error)

	// DeleteByAccount removes every token owned by the account.
	DeleteByAccount(ctx context.Context, accountID AccountID) (int64, error)

	// DeleteExpired removes tokens that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RefreshTokenStore issues, resolves and rotates refresh tokens.
type RefreshTokenStore struct {
	repo RefreshTokenRepository
	tx   Transactor
	ttl  time.Duration
	opts storeOptions
}

// NewRefreshTokenStore creates a RefreshTokenStore.
// A ttl of zero issues tokens without expiry.
func NewRefreshTokenStore(repo RefreshTokenRepository, tx Transactor, ttl time.Duration, opts ...StoreOption) (*RefreshTokenStore, error) {
	if repo == nil {
		return nil, oops.Code("REFRESH_INVALID_CONFIG").Errorf("refresh token repository is required")
	}
	if tx == nil {
		return nil, oops.Code("REFRESH_INVALID_CONFIG").Errorf("transactor is required")
	}
	if ttl < 0 {
		return nil, oops.Code("REFRESH_INVALID_CONFIG").Wrapf(ErrConfiguration, "refresh token ttl cannot be negative")
	}
	o := defaultStoreOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RefreshTokenStore{repo: repo, tx: tx, ttl: ttl, opts: o}, nil
}

// Issue creates and persists a new refresh token for the account.
func (s *RefreshTokenStore) Issue(ctx context.Context, accountID AccountID) (string, error) {
	var token string
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		var err error
		token, err = s.create(ctx, accountID)
		return err
	})
	if err != nil {
		return "", oops.Code("REFRESH_ISSUE_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return token, nil
}

// Resolve returns the owner of a live token without modifying it.
func (s *RefreshTokenStore) Resolve(ctx context.Context, token string) (AccountID, error) {
	if token == "" {
		return 0, oops.Code("REFRESH_NOT_FOUND").Wrap(ErrTokenNotFound)
	}
	record, err := s.repo.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, oops.Code("REFRESH_NOT_FOUND").Wrap(ErrTokenNotFound)
		}
		return 0, oops.Code("REFRESH_RESOLVE_FAILED").
			With("operation", "get refresh token by hash").
			Wrap(err)
	}
	if record.IsExpiredAt(s.opts.now()) {
		return 0, oops.Code("REFRESH_NOT_FOUND").
			With("reason", "expired").
			Wrap(ErrTokenNotFound)
	}
	return record.AccountID, nil
}

// Rotate replaces oldToken with a new token for the same account.
//
// The old record is consumed and the new one inserted in a single
// transaction. Concurrent rotations of the same token have one winner; the
// others receive ErrTokenNotFound. The old token is gone once Rotate returns
// successfully, whether or not the caller ever uses the new one.
func (s *RefreshTokenStore) Rotate(ctx context.Context, oldToken string) (string, AccountID, error) {
	if oldToken == "" {
		return "", 0, oops.Code("REFRESH_NOT_FOUND").Wrap(ErrTokenNotFound)
	}
	oldHash := HashToken(oldToken)

	var (
		newToken string
		owner    AccountID
	)
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(ctx context.Context) error {
			consumed, err := s.repo.Consume(ctx, oldHash, s.opts.now())
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return oops.Code("REFRESH_NOT_FOUND").Wrap(ErrTokenNotFound)
				}
				return oops.Code("REFRESH_ROTATE_FAILED").
					With("operation", "consume refresh token").
					Wrap(err)
			}
			owner = consumed.AccountID
			newToken, err = s.create(ctx, owner)
			return err
		})
	})
	if err != nil {
		return "", 0, err
	}
	return newToken, owner, nil
}

// Revoke deletes a token. Revoking an unknown token is not an error.
func (s *RefreshTokenStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.repo.DeleteByTokenHash(ctx, HashToken(token)); err != nil {
		return oops.Code("REFRESH_REVOKE_FAILED").
			With("operation", "delete refresh token").
			Wrap(err)
	}
	return nil
}

// RevokeAllForAccount deletes every refresh token of the account.
func (s *RefreshTokenStore) RevokeAllForAccount(ctx context.Context, accountID AccountID) (int64, error) {
	n, err := s.repo.DeleteByAccount(ctx, accountID)
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_ALL_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return n, nil
}

// PurgeExpired deletes expired tokens.
func (s *RefreshTokenStore) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.opts.now())
	if err != nil {
		return 0, oops.Code("REFRESH_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}

func (s *RefreshTokenStore) create(ctx context.Context, accountID AccountID) (string, error) {
	token, hash, err := s.opts.generate()
	if err != nil {
		return "", err
	}

	now := s.opts.now()
	record := &RefreshToken{
		ID:        ulid.Make(),
		AccountID: accountID,
		TokenHash: hash,
		CreatedAt: now,
	}
	if s.ttl > 0 {
		expiresAt := now.Add(s.ttl)
		record.ExpiresAt = &expiresAt
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return "", oops.Code("REFRESH_CREATE_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return token, nil
}
