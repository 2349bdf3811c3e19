// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/usersflow/usersflow/internal/auth"
	"github.com/usersflow/usersflow/pkg/errutil"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var outcomeStatus = map[auth.Outcome]int{
	auth.OutcomeInvalidCredential: http.StatusUnauthorized,
	auth.OutcomeAccountNotFound:   http.StatusNotFound,
	auth.OutcomeWrongCredential:   http.StatusConflict,
	auth.OutcomeTokenNotFound:     http.StatusUnauthorized,
	auth.OutcomeEmailTaken:        http.StatusConflict,
	auth.OutcomeRateLimited:       http.StatusTooManyRequests,
	auth.OutcomeInvalidInput:      http.StatusBadRequest,
}

var outcomeMessage = map[auth.Outcome]string{
	auth.OutcomeInvalidCredential: "invalid credentials",
	auth.OutcomeAccountNotFound:   "account not found",
	auth.OutcomeWrongCredential:   "current password does not match",
	auth.OutcomeTokenNotFound:     "token is invalid or expired",
	auth.OutcomeEmailTaken:        "email is already in use",
	auth.OutcomeRateLimited:       "too many attempts, try again later",
}

// statusOverride replaces the status of one outcome for a single route.
type statusOverride map[auth.Outcome]int

// StatusFor returns the HTTP status of err.
func StatusFor(err error) int {
	if status, ok := outcomeStatus[auth.OutcomeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError renders err. Internal failures are logged and reported with a
// generic message.
func writeError(c echo.Context, err error, override statusOverride) error {
	outcome := auth.OutcomeOf(err)
	status, ok := override[outcome]
	if !ok {
		status = StatusFor(err)
	}

	body := ErrorResponse{Code: string(outcome)}
	switch {
	case status == http.StatusInternalServerError:
		body.Code = string(auth.OutcomeInternal)
		body.Message = "internal error"
		errutil.LogError(c.Request().Context(), loggerFrom(c), "request failed", err)
	case outcome == auth.OutcomeInvalidInput:
		body.Message = err.Error()
	default:
		body.Message = outcomeMessage[outcome]
	}

	if outcome == auth.OutcomeRateLimited {
		if secs, ok := retryAfter(err); ok {
			c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	return c.JSON(status, body)
}

// retryAfter reads the wait carried by a rate-limit error, in whole seconds.
func retryAfter(err error) (int, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return 0, false
	}
	raw, ok := oopsErr.Context()["retry_after"].(string)
	if !ok {
		return 0, false
	}
	d, parseErr := time.ParseDuration(raw)
	if parseErr != nil || d <= 0 {
		return 0, false
	}
	return int(math.Ceil(d.Seconds())), true
}

// handleEchoError renders errors raised by echo itself, such as unknown
// routes, in the API's error format.
func (s *Server) handleEchoError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		_ = writeError(c, err, nil)
		return
	}

	body := ErrorResponse{Code: codeForStatus(he.Code), Message: http.StatusText(he.Code)}
	if msg, ok := he.Message.(string); ok && he.Code < http.StatusInternalServerError {
		body.Message = msg
	}
	if he.Code >= http.StatusInternalServerError {
		errutil.LogError(c.Request().Context(), s.logger, "request failed", err)
	}
	_ = c.JSON(he.Code, body)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusUnauthorized:
		return string(auth.OutcomeInvalidCredential)
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return string(auth.OutcomeInvalidInput)
	default:
		if status >= http.StatusInternalServerError {
			return string(auth.OutcomeInternal)
		}
		return "error"
	}
}
