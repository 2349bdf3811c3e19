// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/usersflow/usersflow/internal/auth"
)

const accountColumns = `id, name, email, password_hash, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create stores a new account. Returns auth.ErrEmailTaken when another
// account has the same email in any letter case.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	var id int64
	err := conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO accounts (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, account.Name, account.Email, account.PasswordHash).Scan(&id, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		constraint, ok := uniqueViolation(err)
		if ok && constraint == accountsEmailKey {
			return oops.Code("ACCOUNT_EMAIL_TAKEN").Wrap(auth.ErrEmailTaken)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("constraint", constraint).
			Wrap(err)
	}
	account.ID = auth.AccountID(id)
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id auth.AccountID) (*auth.Account, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, int64(id))

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("account_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return account, err
}

// GetByEmail retrieves an account by email, ignoring letter case.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE LOWER(email) = LOWER($1)
	`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return account, err
}

// UpdateName sets the display name.
func (r *AccountRepository) UpdateName(ctx context.Context, id auth.AccountID, name string) error {
	return r.update(ctx, "update name", id, `
		UPDATE accounts SET name = $2, updated_at = now() WHERE id = $1
	`, name)
}

// UpdateEmail sets the email. The unique index decides conflicts, so two
// concurrent changes to the same address cannot both succeed.
func (r *AccountRepository) UpdateEmail(ctx context.Context, id auth.AccountID, email string) error {
	return r.update(ctx, "update email", id, `
		UPDATE accounts SET email = $2, updated_at = now() WHERE id = $1
	`, email)
}

// UpdatePassword sets the password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id auth.AccountID, passwordHash string) error {
	return r.update(ctx, "update password", id, `
		UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1
	`, passwordHash)
}

// Delete removes the account. Its tokens go with it through the foreign key
// cascade.
func (r *AccountRepository) Delete(ctx context.Context, id auth.AccountID) error {
	result, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM accounts WHERE id = $1`, int64(id))
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("account_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("account_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func (r *AccountRepository) update(ctx context.Context, operation string, id auth.AccountID, sql string, value string) error {
	result, err := conn(ctx, r.db).Exec(ctx, sql, int64(id), value)
	if err != nil {
		constraint, ok := uniqueViolation(err)
		if ok && constraint == accountsEmailKey {
			return oops.Code("ACCOUNT_EMAIL_TAKEN").
				With("account_id", id.String()).
				Wrap(auth.ErrEmailTaken)
		}
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", operation).
			With("constraint", constraint).
			With("account_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("account_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanAccount scans one row. pgx.ErrNoRows is returned unwrapped for the
// caller to map.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		account auth.Account
		id      int64
	)
	err := row.Scan(&id, &account.Name, &account.Email, &account.PasswordHash, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").
			With("operation", "scan account").
			Wrap(err)
	}
	account.ID = auth.AccountID(id)
	return &account, nil
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
