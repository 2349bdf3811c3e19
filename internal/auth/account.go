// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package auth

import (
	"context"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Account field constraints.
const (
	MaxNameLength     = 100
	MaxEmailLength    = 254
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

// AccountID identifies an account. It is the subject of every access assertion.
type AccountID int64

// String returns the decimal form used in assertions and logs.
func (id AccountID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseAccountID parses the decimal form produced by String.
func ParseAccountID(s string) (AccountID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, oops.Code("AUTH_INVALID_ACCOUNT_ID").
			With("value", s).
			Errorf("invalid account id")
	}
	return AccountID(n), nil
}

// Account represents a registered user.
type Account struct {
	ID           AccountID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeEmail trims and lowercases an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare, plausible address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Wrapf(ErrInvalidInput, "email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Wrapf(ErrInvalidInput, "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return oops.Code("AUTH_INVALID_EMAIL").Wrapf(ErrInvalidInput, "email is not a valid address")
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return oops.Code("AUTH_INVALID_NAME").Wrapf(ErrInvalidInput, "name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return oops.Code("AUTH_INVALID_NAME").
			With("max", MaxNameLength).
			Wrapf(ErrInvalidInput, "name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// ValidatePassword checks a new plaintext password.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("min", MinPasswordLength).
			Wrapf(ErrInvalidInput, "password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("max", MaxPasswordLength).
			Wrapf(ErrInvalidInput, "password must be at most %d bytes", MaxPasswordLength)
	}
	return nil
}

// AccountRepository manages account persistence.
//
// Implementations return ErrNotFound when the account does not exist and
// ErrEmailTaken when a write would give two accounts the same email. Email
// uniqueness must be enforced by the store itself.
type AccountRepository interface {
	// Create stores a new account and fills in ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id AccountID) (*Account, error)

	// GetByEmail retrieves an account by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// UpdateName sets the display name.
	UpdateName(ctx context.Context, id AccountID, name string) error

	// UpdateEmail sets the email.
	UpdateEmail(ctx context.Context, id AccountID, email string) error

	// UpdatePassword sets the password hash.
	UpdatePassword(ctx context.Context, id AccountID, passwordHash string) error

	// Delete removes the account.
	Delete(ctx context.Context, id AccountID) error
}
