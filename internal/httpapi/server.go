// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

// Package httpapi exposes the account and token lifecycle over HTTP.
//
// Routes under /auth are public. Routes under /user pass through Authenticate,
// which resolves the bearer assertion to an account. Recovery redemption
// accepts only the recovery assertion from a recovery notice.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/usersflow/usersflow/internal/auth"
	"github.com/usersflow/usersflow/internal/observability"
)

// Coordinator is the part of auth.Coordinator served over HTTP.
type Coordinator interface {
	Register(ctx context.Context, name, email, password string) (*auth.Account, error)
	Login(ctx context.Context, email, password string) (*auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Identify(ctx context.Context, assertion string) (auth.AccountID, error)
	IdentifyRecovery(ctx context.Context, assertion string) (auth.AccountID, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, id auth.AccountID) (int64, error)
	Account(ctx context.Context, id auth.AccountID) (*auth.Account, error)
	ChangeName(ctx context.Context, id auth.AccountID, name string) error
	ChangeEmail(ctx context.Context, id auth.AccountID, email string) error
	ChangePassword(ctx context.Context, id auth.AccountID, oldPassword, newPassword string) error
	RequestRecovery(ctx context.Context, email string) error
	RedeemRecovery(ctx context.Context, id auth.AccountID, newPassword, recoveryToken string) error
	DeleteAccount(ctx context.Context, id auth.AccountID) error
}

var _ Coordinator = (*auth.Coordinator)(nil)

// Options configure the HTTP API.
type Options struct {
	Logger *slog.Logger
	// Metrics records request counts and latency. Nil disables it.
	Metrics *observability.Metrics
}

// Server is the HTTP API.
type Server struct {
	echo   *echo.Echo
	coord  Coordinator
	logger *slog.Logger
}

// New builds the API around coord.
func New(coord Coordinator, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, coord: coord, logger: logger}
	e.HTTPErrorHandler = s.handleEchoError

	e.Use(Observe(logger, opts.Metrics))
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) routes() {
	public := s.echo.Group("/auth")
	public.POST("/register", s.register)
	public.POST("/login", s.login)
	public.POST("/refresh", s.refresh)
	public.POST("/logout", s.logout)
	public.POST("/recovery", s.requestRecovery)

	user := s.echo.Group("/user", Authenticate(s.coord))
	user.GET("", s.account)
	user.PUT("/name", s.changeName)
	user.PUT("/email", s.changeEmail)
	user.PUT("/password", s.changePassword)
	user.POST("/logout-all", s.logoutAll)
	user.DELETE("", s.deleteAccount)

	s.echo.PUT("/user/password-recovery", s.redeemRecovery, AuthenticateRecovery(s.coord))
}
