// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package auth

import "context"

// Transactor runs a function inside a single persistence transaction.
//
// Repositories called with the context passed to fn participate in the
// transaction. A nested WithinTx joins the outer transaction. The transaction
// commits when fn returns nil and rolls back otherwise, so a cancelled
// context leaves no partial writes behind.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
