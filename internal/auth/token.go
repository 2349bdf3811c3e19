// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// OpaqueTokenBytes is the number of random bytes in refresh and recovery tokens.
const OpaqueTokenBytes = 32

// tokenCollisionRetries bounds how often issuance regenerates a token after
// the store reports a duplicate hash.
const tokenCollisionRetries = 3

// TokenGenerator returns a new opaque token and the hash persisted for it.
type TokenGenerator func() (token, hash string, err error)

// GenerateOpaqueToken creates a cryptographically random hex token and its SHA-256 hash.
// Only the hash is ever stored.
func GenerateOpaqueToken() (token, hash string, err error) {
	tokenBytes := make([]byte, OpaqueTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", OpaqueTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashToken(token), nil
}

// HashToken returns the hex-encoded SHA-256 of a token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// StoreOption configures a token store.
type StoreOption func(*storeOptions)

type storeOptions struct {
	now      func() time.Time
	generate TokenGenerator
}

func defaultStoreOptions() storeOptions {
	return storeOptions{
		now:      time.Now,
		generate: GenerateOpaqueToken,
	}
}

// WithStoreClock overrides the clock used for expiry decisions.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTokenGenerator overrides token generation.
func WithTokenGenerator(g TokenGenerator) StoreOption {
	return func(o *storeOptions) {
		if g != nil {
			o.generate = g
		}
	}
}

// retryOnConflict runs fn again with a fresh attempt whenever it fails with
// ErrConflict, up to tokenCollisionRetries extra times.
func retryOnConflict(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(tokenCollisionRetries, retry.NewConstant(time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}
