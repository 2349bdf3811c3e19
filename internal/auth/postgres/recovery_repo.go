// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package postgres

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/usersflow/usersflow/internal/auth"
)

// RecoveryTokenRepository implements auth.RecoveryTokenRepository using PostgreSQL.
type RecoveryTokenRepository struct {
	db DB
}

// NewRecoveryTokenRepository creates a new RecoveryTokenRepository.
func NewRecoveryTokenRepository(db DB) *RecoveryTokenRepository {
	return &RecoveryTokenRepository{db: db}
}

// Create stores a new recovery token.
func (r *RecoveryTokenRepository) Create(ctx context.Context, token *auth.RecoveryToken) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO recovery_tokens (id, account_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, token.ID.String(), int64(token.AccountID), token.TokenHash, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == recoveryTokenHashKey {
			return oops.Code("RECOVERY_TOKEN_CONFLICT").Wrap(auth.ErrConflict)
		}
		return oops.Code("RECOVERY_CREATE_FAILED").
			With("operation", "insert recovery token").
			With("account_id", token.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// Consume deletes the token if the account owns it and it has not expired.
// Zero affected rows covers every failure alike.
func (r *RecoveryTokenRepository) Consume(ctx context.Context, accountID auth.AccountID, tokenHash string, now time.Time) error {
	result, err := conn(ctx, r.db).Exec(ctx, `
		DELETE FROM recovery_tokens
		WHERE token_hash = $1 AND account_id = $2 AND expires_at > $3
	`, tokenHash, int64(accountID), now)
	if err != nil {
		return oops.Code("RECOVERY_CONSUME_FAILED").
			With("operation", "consume recovery token").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("RECOVERY_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByAccount removes every token of the account.
func (r *RecoveryTokenRepository) DeleteByAccount(ctx context.Context, accountID auth.AccountID) (int64, error) {
	result, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM recovery_tokens WHERE account_id = $1`, int64(accountID))
	if err != nil {
		return 0, oops.Code("RECOVERY_DELETE_BY_ACCOUNT_FAILED").
			With("operation", "delete recovery tokens by account").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes tokens whose expiry is at or before now.
func (r *RecoveryTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM recovery_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("RECOVERY_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired recovery tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

var _ auth.RecoveryTokenRepository = (*RecoveryTokenRepository)(nil)
