// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package auth

import (
	"context"
	"time"
)

// RecoveryNotice carries what the out-of-band channel needs to deliver a
// recovery link. Token and Assertion are secrets.
type RecoveryNotice struct {
	AccountID AccountID `json:"account_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	Assertion string    `json:"assertion"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RecoveryNotifier delivers recovery notices, typically by email.
type RecoveryNotifier interface {
	NotifyRecovery(ctx context.Context, notice RecoveryNotice) error
}

type discardNotifier struct{}

func (discardNotifier) NotifyRecovery(context.Context, RecoveryNotice) error { return nil }
