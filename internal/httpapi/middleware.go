// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package httpapi

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/usersflow/usersflow/internal/auth"
	"github.com/usersflow/usersflow/internal/logging"
	"github.com/usersflow/usersflow/internal/observability"
)

const (
	accountIDKey = "account_id"
	loggerKey    = "logger"
)

// Authenticate resolves the bearer assertion to an account. Handlers read the
// result with AccountID.
func Authenticate(coord Coordinator) echo.MiddlewareFunc {
	return authenticate(coord.Identify)
}

// AuthenticateRecovery is Authenticate for routes reached from a recovery
// notice. Only recovery assertions are accepted.
func AuthenticateRecovery(coord Coordinator) echo.MiddlewareFunc {
	return authenticate(coord.IdentifyRecovery)
}

func authenticate(identify func(context.Context, string) (auth.AccountID, error)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			assertion, ok := auth.StripBearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return writeError(c, auth.ErrInvalidCredential, nil)
			}

			ctx := c.Request().Context()
			id, err := identify(ctx, assertion)
			if err != nil {
				return writeError(c, err, nil)
			}

			c.Set(accountIDKey, id)
			c.SetRequest(c.Request().WithContext(logging.WithAccountID(ctx, int64(id))))
			return next(c)
		}
	}
}

// AccountID returns the account set by Authenticate.
func AccountID(c echo.Context) (auth.AccountID, bool) {
	id, ok := c.Get(accountIDKey).(auth.AccountID)
	return id, ok
}

// Observe logs each request and records it in metrics, when metrics is set.
func Observe(logger *slog.Logger, metrics *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			c.Set(loggerKey, logger)
			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			req := c.Request()
			status := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			if metrics != nil {
				metrics.RequestsTotal.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
				metrics.RequestDuration.WithLabelValues(req.Method, route).Observe(elapsed.Seconds())
			}

			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			}
			logger.Log(req.Context(), level, "http request",
				"method", req.Method,
				"route", route,
				"status", status,
				"duration", elapsed)
			return nil
		}
	}
}

func loggerFrom(c echo.Context) *slog.Logger {
	if logger, ok := c.Get(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
