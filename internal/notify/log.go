// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/usersflow/usersflow/internal/auth"
)

// LogNotifier logs recovery notices without their secrets.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// NotifyRecovery implements auth.RecoveryNotifier.
func (n *LogNotifier) NotifyRecovery(ctx context.Context, notice auth.RecoveryNotice) error {
	n.logger.InfoContext(ctx, "recovery notice issued",
		"account_id", notice.AccountID,
		"expires_at", notice.ExpiresAt)
	return nil
}

var _ auth.RecoveryNotifier = (*LogNotifier)(nil)
