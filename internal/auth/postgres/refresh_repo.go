// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/usersflow/usersflow/internal/auth"
)

const refreshColumns = `id, account_id, token_hash, expires_at, created_at`

// RefreshTokenRepository implements auth.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	db DB
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(db DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new refresh token.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO refresh_tokens (`+refreshColumns+`)
		VALUES ($1, $2, $3, $4, $5)
	`, token.ID.String(), int64(token.AccountID), token.TokenHash, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == refreshTokenHashKey {
			return oops.Code("REFRESH_TOKEN_CONFLICT").Wrap(auth.ErrConflict)
		}
		return oops.Code("REFRESH_CREATE_FAILED").
			With("operation", "insert refresh token").
			With("account_id", token.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a token by hash regardless of expiry.
func (r *RefreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+refreshColumns+`
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash)

	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return token, err
}

// Consume deletes the unexpired token and returns it. The conditional delete
// is a single statement, so concurrent callers get at most one row back.
func (r *RefreshTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*auth.RefreshToken, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1 AND (expires_at IS NULL OR expires_at > $2)
		RETURNING `+refreshColumns, tokenHash, now)

	token, err := scanRefreshToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return token, err
}

// DeleteByTokenHash removes the token if present.
func (r *RefreshTokenRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error) {
	result, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_FAILED").
			With("operation", "delete refresh token").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteByAccount removes every token of the account.
func (r *RefreshTokenRepository) DeleteByAccount(ctx context.Context, accountID auth.AccountID) (int64, error) {
	result, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM refresh_tokens WHERE account_id = $1`, int64(accountID))
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_BY_ACCOUNT_FAILED").
			With("operation", "delete refresh tokens by account").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes tokens whose expiry is at or before now.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := conn(ctx, r.db).Exec(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func scanRefreshToken(row pgx.Row) (*auth.RefreshToken, error) {
	var (
		idStr     string
		accountID int64
		token     auth.RefreshToken
	)
	err := row.Scan(&idStr, &accountID, &token.TokenHash, &token.ExpiresAt, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context
		}
		return nil, oops.Code("REFRESH_SCAN_FAILED").
			With("operation", "scan refresh token").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("REFRESH_INVALID_ID").
			With("operation", "parse refresh token id").
			With("id", idStr).
			Wrap(err)
	}
	token.ID = id
	token.AccountID = auth.AccountID(accountID)
	return &token, nil
}

var _ auth.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
