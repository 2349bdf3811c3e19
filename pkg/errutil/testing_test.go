// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"

	"github.com/usersflow/usersflow/pkg/errutil"
)

func TestAssertErrorCode(t *testing.T) {
	errutil.AssertErrorCode(t, oops.Code("ACCOUNT_NOT_FOUND").Errorf("no row"), "ACCOUNT_NOT_FOUND")

	wrapped := oops.Code("LIMITER_STATUS_FAILED").Wrap(errors.New("dial tcp: refused"))
	errutil.AssertErrorCode(t, wrapped, "LIMITER_STATUS_FAILED")
}

func TestAssertErrorContext(t *testing.T) {
	err := oops.With("queue", "usersflow.recovery").Errorf("publish failed")
	errutil.AssertErrorContext(t, err, "queue", "usersflow.recovery")
}
