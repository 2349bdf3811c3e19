// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package auth

import "errors"

// Repository sentinels. Persistence implementations wrap these so the
// stores and the coordinator can classify failures with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// Domain sentinels surfaced by the coordinator.
var (
	// ErrInvalidCredential covers failed logins and any access assertion or
	// refresh token that cannot be accepted. It never carries the reason.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrAccountNotFound is returned when the addressed account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrWrongCredential is returned when the caller's current password does not match.
	ErrWrongCredential = errors.New("wrong credential")

	// ErrTokenNotFound is returned for refresh or recovery tokens that are
	// absent, already used, or expired.
	ErrTokenNotFound = errors.New("token not found")

	// ErrEmailTaken is returned when another account already owns the email.
	ErrEmailTaken = errors.New("email taken")

	// ErrConfiguration is returned when required configuration is missing or invalid.
	ErrConfiguration = errors.New("configuration error")

	// ErrTooManyAttempts is returned when login is temporarily locked.
	ErrTooManyAttempts = errors.New("too many attempts")

	// ErrInvalidInput is returned for blank or malformed request fields.
	ErrInvalidInput = errors.New("invalid input")
)

// Outcome is a stable, externally visible classification of an operation result.
type Outcome string

// Outcome values.
const (
	OutcomeOK                Outcome = "ok"
	OutcomeInvalidCredential Outcome = "invalid_credential"
	OutcomeAccountNotFound   Outcome = "account_not_found"
	OutcomeWrongCredential   Outcome = "wrong_credential"
	OutcomeTokenNotFound     Outcome = "token_not_found"
	OutcomeEmailTaken        Outcome = "email_taken"
	OutcomeRateLimited       Outcome = "rate_limited"
	OutcomeInvalidInput      Outcome = "invalid_input"
	OutcomeConfiguration     Outcome = "configuration"
	OutcomeInternal          Outcome = "internal"
)

var outcomeSentinels = []struct {
	err     error
	outcome Outcome
}{
	{ErrInvalidCredential, OutcomeInvalidCredential},
	{ErrAccountNotFound, OutcomeAccountNotFound},
	{ErrWrongCredential, OutcomeWrongCredential},
	{ErrTokenNotFound, OutcomeTokenNotFound},
	{ErrEmailTaken, OutcomeEmailTaken},
	{ErrTooManyAttempts, OutcomeRateLimited},
	{ErrInvalidInput, OutcomeInvalidInput},
	{ErrConfiguration, OutcomeConfiguration},
}

// OutcomeOf maps an error returned by this package to its outcome code.
// Anything not in the taxonomy, such as a dropped database connection,
// is reported as OutcomeInternal.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	for _, s := range outcomeSentinels {
		if errors.Is(err, s.err) {
			return s.outcome
		}
	}
	return OutcomeInternal
}
