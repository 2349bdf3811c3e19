// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

// Package auth implements the account authentication and token lifecycle.
//
// # Credentials
//
// Three kinds of credential exist:
//   - access assertions, stateless HS256 tokens issued by AccessTokenCodec
//   - refresh tokens, opaque and stored hashed, rotated by RefreshTokenStore
//   - recovery tokens, opaque, single-use and time-bounded, redeemed through RecoveryTokenStore
//
// # Coordinator
//
// Coordinator is the only entry point the HTTP layer uses. Every error it
// returns wraps one of the package sentinels (ErrInvalidCredential,
// ErrAccountNotFound, ErrWrongCredential, ErrTokenNotFound, ErrEmailTaken,
// ErrTooManyAttempts, ErrInvalidInput) or is an infrastructure failure.
// OutcomeOf turns any such error into a stable Outcome code.
//
// Operations that touch more than one record (rotation, recovery redemption,
// password change, account deletion) run inside a single Transactor
// transaction.
package auth
