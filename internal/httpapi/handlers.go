// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/usersflow/usersflow/internal/auth"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type recoveryRequest struct {
	Email string `json:"email"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type redeemRequest struct {
	Password string `json:"password"`
	Token    string `json:"token"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	RefreshToken    string    `json:"refresh_token"`
	TokenType       string    `json:"token_type"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LogoutAllResponse reports how many sessions were ended.
type LogoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}

func newTokenResponse(pair *auth.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExpiresAt,
		RefreshToken:    pair.RefreshToken,
		TokenType:       "Bearer",
	}
}

func newAccountResponse(a *auth.Account) AccountResponse {
	return AccountResponse{
		ID:        int64(a.ID),
		Name:      a.Name,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// bind decodes the request body. A malformed body is invalid input.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return oops.Code("HTTP_INVALID_BODY").Wrapf(auth.ErrInvalidInput, "request body is not valid JSON")
	}
	return nil
}

func mustAccount(c echo.Context) (auth.AccountID, error) {
	id, ok := AccountID(c)
	if !ok {
		return 0, oops.Code("HTTP_UNAUTHENTICATED").Wrap(auth.ErrInvalidCredential)
	}
	return id, nil
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err, nil)
	}
	account, err := s.coord.Register(c.Request().Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusCreated, newAccountResponse(account))
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err, nil)
	}
	pair, err := s.coord.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, newTokenResponse(pair))
}

func (s *Server) refresh(c echo.Context) error {
	var req refreshTokenRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err, nil)
	}
	pair, err := s.coord.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, newTokenResponse(pair))
}

func (s *Server) logout(c echo.Context) error {
	var req refreshTokenRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err, nil)
	}
	if err := s.coord.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return writeError(c, err, nil)
	}
	return c.NoContent(http.StatusNoContent)
}

// requestRecovery answers 202 whether or not the email belongs to an account.
func (s *Server) requestRecovery(c echo.Context) error {
	var req recoveryRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err, nil)
	}
	if err := s.coord.RequestRecovery(c.Request().Context(), req.Email); err != nil {
		return writeError(c, err, nil)
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) account(c echo.Context) error {
	id, err := mustAccount(c)
	if err != nil {
		return writeError(c, err, nil)
	}
	account, err := s.coord.Account(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, newAccountResponse(account))
}

func (s *Server) changeName(c echo.Context) error {
	id, err := mustAccount(c)
	if err != nil {
		return writeError(c, err, nil)
	}
	var req nameRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err, nil)
	}
	if err := s.coord.ChangeName(c.Request().Context(), id, req.Name); err != nil {
		return writeError(c, err, nil)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) changeEmail(c echo.Context) error {
	id, err := mustAccount(c)
	if err != nil {
		return writeError(c, err, nil)
	}
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err, nil)
	}
	if err := s.coord.ChangeEmail(c.Request().Context(), id, req.Email); err != nil {
		return writeError(c, err, nil)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) changePassword(c echo.Context) error {
	id, err := mustAccount(c)
	if err != nil {
		return writeError(c, err, nil)
	}
	var req passwordRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err, nil)
	}
	if err := s.coord.ChangePassword(c.Request().Context(), id, req.OldPassword, req.NewPassword); err != nil {
		return writeError(c, err, nil)
	}
	return c.NoContent(http.StatusNoContent)
}

// redeemRecovery reports a spent or unknown recovery token as a conflict
// rather than an authentication failure, since the caller is authenticated.
func (s *Server) redeemRecovery(c echo.Context) error {
	id, err := mustAccount(c)
	if err != nil {
		return writeError(c, err, nil)
	}
	var req redeemRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err, nil)
	}
	if err := s.coord.RedeemRecovery(c.Request().Context(), id, req.Password, req.Token); err != nil {
		return writeError(c, err, statusOverride{auth.OutcomeTokenNotFound: http.StatusConflict})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) logoutAll(c echo.Context) error {
	id, err := mustAccount(c)
	if err != nil {
		return writeError(c, err, nil)
	}
	n, err := s.coord.LogoutAll(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, LogoutAllResponse{Revoked: n})
}

func (s *Server) deleteAccount(c echo.Context) error {
	id, err := mustAccount(c)
	if err != nil {
		return writeError(c, err, nil)
	}
	if err := s.coord.DeleteAccount(c.Request().Context(), id); err != nil {
		return writeError(c, err, nil)
	}
	return c.NoContent(http.StatusNoContent)
}
