// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/usersflow/usersflow/pkg/errutil"
)

// DefaultRecoveryAssertionTTL is the lifetime of the assertion sent with a
// recovery notice. It authenticates the redemption request.
const DefaultRecoveryAssertionTTL = 15 * time.Minute

// dummyPassword seeds the hash verified for unknown emails so a miss costs
// the same as a wrong password.
const dummyPassword = "usersflow-timing-parity"

// TokenPair is the result of a login or refresh.
type TokenPair struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
}

// CoordinatorDeps are the collaborators of a Coordinator.
// Limiter, Notifier and Logger are optional.
type CoordinatorDeps struct {
	Accounts AccountRepository
	Refresh  *RefreshTokenStore
	Recovery *RecoveryTokenStore
	Codec    *AccessTokenCodec
	Hasher   PasswordHasher
	Tx       Transactor
	Limiter  LoginLimiter
	Notifier RecoveryNotifier
	Logger   *slog.Logger

	// RecoveryAssertionTTL bounds the assertion issued with a recovery
	// notice. Zero uses DefaultRecoveryAssertionTTL.
	RecoveryAssertionTTL time.Duration
}

// Coordinator orchestrates login, refresh, logout, recovery and the account
// mutations that must revoke tokens.
type Coordinator struct {
	accounts    AccountRepository
	refresh     *RefreshTokenStore
	recovery    *RecoveryTokenStore
	codec       *AccessTokenCodec
	hasher      PasswordHasher
	tx          Transactor
	limiter     LoginLimiter
	notifier    RecoveryNotifier
	logger      *slog.Logger
	recoveryTTL time.Duration
	dummyHash   string
	now         func() time.Time
}

// NewCoordinator validates deps and creates a Coordinator.
func NewCoordinator(deps CoordinatorDeps) (*Coordinator, error) {
	switch {
	case deps.Accounts == nil:
		return nil, oops.Code("COORDINATOR_INVALID_CONFIG").Errorf("accounts repository is required")
	case deps.Refresh == nil:
		return nil, oops.Code("COORDINATOR_INVALID_CONFIG").Errorf("refresh token store is required")
	case deps.Recovery == nil:
		return nil, oops.Code("COORDINATOR_INVALID_CONFIG").Errorf("recovery token store is required")
	case deps.Codec == nil:
		return nil, oops.Code("COORDINATOR_INVALID_CONFIG").Errorf("access token codec is required")
	case deps.Hasher == nil:
		return nil, oops.Code("COORDINATOR_INVALID_CONFIG").Errorf("password hasher is required")
	case deps.Tx == nil:
		return nil, oops.Code("COORDINATOR_INVALID_CONFIG").Errorf("transactor is required")
	}

	dummyHash, err := deps.Hasher.Hash(dummyPassword)
	if err != nil {
		return nil, oops.Code("COORDINATOR_INVALID_CONFIG").
			With("operation", "hash timing parity password").
			Wrap(err)
	}

	c := &Coordinator{
		accounts:    deps.Accounts,
		refresh:     deps.Refresh,
		recovery:    deps.Recovery,
		codec:       deps.Codec,
		hasher:      deps.Hasher,
		tx:          deps.Tx,
		limiter:     deps.Limiter,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
		recoveryTTL: deps.RecoveryAssertionTTL,
		dummyHash:   dummyHash,
		now:         time.Now,
	}
	if c.limiter == nil {
		c.limiter = NopLimiter{}
	}
	if c.notifier == nil {
		c.notifier = discardNotifier{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.recoveryTTL <= 0 {
		c.recoveryTTL = DefaultRecoveryAssertionTTL
	}
	return c, nil
}

func (c *Coordinator) observe(operation string, start time.Time, err error) {
	RecordOperation(operation, OutcomeOf(err), c.now().Sub(start))
}

// Register creates an account. The email must not belong to another account.
func (c *Coordinator) Register(ctx context.Context, name, email, password string) (_ *Account, err error) {
	defer func(start time.Time) { c.observe("register", start, err) }(c.now())

	email = NormalizeEmail(email)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := c.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	account := &Account{Name: name, Email: email, PasswordHash: hash}
	if err := c.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, oops.Code("AUTH_EMAIL_TAKEN").Wrap(ErrEmailTaken)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create account").
			Wrap(err)
	}
	return account, nil
}

// Login authenticates by email and password and starts a refresh lineage.
//
// Unknown email and wrong password fail identically with ErrInvalidCredential.
// The password is verified even for unknown emails and the limiter is checked
// only after verification, so response time does not reveal either fact.
// Attempts made before the progressive delay of the last failure has elapsed,
// or during a lockout, fail with ErrTooManyAttempts.
func (c *Coordinator) Login(ctx context.Context, email, password string) (_ *TokenPair, err error) {
	defer func(start time.Time) { c.observe("login", start, err) }(c.now())

	email = NormalizeEmail(email)
	account, lookupErr := c.accounts.GetByEmail(ctx, email)

	var targetHash string
	switch {
	case lookupErr == nil:
		targetHash = account.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		targetHash = c.dummyHash
		account = nil
	default:
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get account by email").
			Wrap(lookupErr)
	}

	valid := c.hasher.Verify(password, targetHash) && account != nil

	limit, limitErr := c.limiter.Status(ctx, email)
	if limitErr != nil {
		c.logger.WarnContext(ctx, "login limiter unavailable, continuing without limit",
			"operation", "limiter_status",
			"error", limitErr)
	} else if wait := limit.RetryAfter(); wait > 0 {
		return nil, oops.Code("AUTH_TOO_MANY_ATTEMPTS").
			With("retry_after", wait.String()).
			With("locked_out", limit.IsLockedOut).
			Wrap(ErrTooManyAttempts)
	}

	if !valid {
		if err := c.limiter.RecordFailure(ctx, email); err != nil {
			c.logger.WarnContext(ctx, "best-effort failure recording failed",
				"operation", "limiter_record_failure",
				"error", err)
		}
		return nil, oops.Code("AUTH_INVALID_CREDENTIAL").Wrap(ErrInvalidCredential)
	}

	if err := c.limiter.Reset(ctx, email); err != nil {
		c.logger.WarnContext(ctx, "best-effort limiter reset failed",
			"operation", "limiter_reset",
			"error", err)
	}

	if c.hasher.NeedsUpgrade(account.PasswordHash) {
		c.upgradeHash(ctx, account.ID, password)
	}

	return c.issuePair(ctx, account.ID)
}

// upgradeHash re-hashes a verified password with current parameters.
// Login succeeds regardless of the outcome.
func (c *Coordinator) upgradeHash(ctx context.Context, id AccountID, password string) {
	newHash, err := c.hasher.Hash(password)
	if err == nil {
		err = c.accounts.UpdatePassword(ctx, id, newHash)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"operation", "upgrade_hash",
			"account_id", id.String(),
			"error", err)
	}
}

func (c *Coordinator) issuePair(ctx context.Context, id AccountID) (*TokenPair, error) {
	assertion, expiresAt, err := c.codec.Issue(id, 0)
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "issue access assertion").
			Wrap(err)
	}
	refresh, err := c.refresh.Issue(ctx, id)
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "issue refresh token").
			Wrap(err)
	}
	return &TokenPair{AccessToken: assertion, AccessExpiresAt: expiresAt, RefreshToken: refresh}, nil
}

// Refresh exchanges a refresh token for a new pair.
//
// The old token is consumed by the rotation itself, so it is invalid even if
// issuing the new access assertion later fails.
func (c *Coordinator) Refresh(ctx context.Context, refreshToken string) (_ *TokenPair, err error) {
	defer func(start time.Time) { c.observe("refresh", start, err) }(c.now())

	if _, err := c.refresh.Resolve(ctx, refreshToken); err != nil {
		return nil, c.refreshFailure(err)
	}

	newToken, id, err := c.refresh.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, c.refreshFailure(err)
	}

	assertion, expiresAt, err := c.codec.Issue(id, 0)
	if err != nil {
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "issue access assertion").
			Wrap(err)
	}
	return &TokenPair{AccessToken: assertion, AccessExpiresAt: expiresAt, RefreshToken: newToken}, nil
}

func (c *Coordinator) refreshFailure(err error) error {
	if errors.Is(err, ErrTokenNotFound) {
		return oops.Code("AUTH_INVALID_CREDENTIAL").Wrap(ErrInvalidCredential)
	}
	return oops.Code("AUTH_REFRESH_FAILED").Wrap(err)
}

// Identify resolves an access assertion to its account.
// Every decode failure is reported as ErrInvalidCredential.
func (c *Coordinator) Identify(ctx context.Context, assertion string) (_ AccountID, err error) {
	defer func(start time.Time) { c.observe("identify", start, err) }(c.now())

	id, err := c.codec.Decode(assertion)
	if err != nil {
		c.logger.DebugContext(ctx, "access assertion rejected", "error", err)
		return 0, oops.Code("AUTH_INVALID_CREDENTIAL").Wrap(ErrInvalidCredential)
	}
	return id, nil
}

// IdentifyRecovery resolves a recovery assertion to its account. Ordinary
// access assertions are refused.
func (c *Coordinator) IdentifyRecovery(ctx context.Context, assertion string) (_ AccountID, err error) {
	defer func(start time.Time) { c.observe("identify_recovery", start, err) }(c.now())

	id, err := c.codec.DecodeRecovery(assertion)
	if err != nil {
		c.logger.DebugContext(ctx, "recovery assertion rejected", "error", err)
		return 0, oops.Code("AUTH_INVALID_CREDENTIAL").Wrap(ErrInvalidCredential)
	}
	return id, nil
}

// Logout revokes a refresh token. An unknown token is not an error.
func (c *Coordinator) Logout(ctx context.Context, refreshToken string) (err error) {
	defer func(start time.Time) { c.observe("logout", start, err) }(c.now())

	if err := c.refresh.Revoke(ctx, refreshToken); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").Wrap(err)
	}
	return nil
}

// LogoutAll revokes every refresh token of the account.
func (c *Coordinator) LogoutAll(ctx context.Context, id AccountID) (_ int64, err error) {
	defer func(start time.Time) { c.observe("logout_all", start, err) }(c.now())

	n, err := c.refresh.RevokeAllForAccount(ctx, id)
	if err != nil {
		return 0, oops.Code("AUTH_LOGOUT_FAILED").
			With("account_id", id.String()).
			Wrap(err)
	}
	return n, nil
}

// Account returns the account profile.
func (c *Coordinator) Account(ctx context.Context, id AccountID) (_ *Account, err error) {
	defer func(start time.Time) { c.observe("account", start, err) }(c.now())

	account, err := c.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, accountFailure("AUTH_ACCOUNT_GET_FAILED", id, err)
	}
	return account, nil
}

// ChangeName updates the display name.
func (c *Coordinator) ChangeName(ctx context.Context, id AccountID, name string) (err error) {
	defer func(start time.Time) { c.observe("change_name", start, err) }(c.now())

	if err := ValidateName(name); err != nil {
		return err
	}
	if err := c.accounts.UpdateName(ctx, id, name); err != nil {
		return accountFailure("AUTH_CHANGE_NAME_FAILED", id, err)
	}
	return nil
}

// ChangePassword replaces the password after verifying the current one and
// revokes every refresh token of the account in the same transaction.
func (c *Coordinator) ChangePassword(ctx context.Context, id AccountID, oldPassword, newPassword string) (err error) {
	defer func(start time.Time) { c.observe("change_password", start, err) }(c.now())

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	account, err := c.accounts.GetByID(ctx, id)
	if err != nil {
		return accountFailure("AUTH_CHANGE_PASSWORD_FAILED", id, err)
	}
	if !c.hasher.Verify(oldPassword, account.PasswordHash) {
		return oops.Code("AUTH_WRONG_CREDENTIAL").
			With("account_id", id.String()).
			Wrap(ErrWrongCredential)
	}

	newHash, err := c.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	err = c.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := c.accounts.UpdatePassword(ctx, id, newHash); err != nil {
			return err
		}
		_, err := c.refresh.RevokeAllForAccount(ctx, id)
		return err
	})
	if err != nil {
		return accountFailure("AUTH_CHANGE_PASSWORD_FAILED", id, err)
	}
	return nil
}

// RequestRecovery starts password recovery for the account owning email.
//
// An unknown email returns nil so callers cannot enumerate accounts. For a
// known account a recovery token and a short-lived recovery assertion are
// handed to the notifier. A notice that cannot be delivered is logged and its
// token revoked, and the caller still sees nil.
func (c *Coordinator) RequestRecovery(ctx context.Context, email string) (err error) {
	defer func(start time.Time) { c.observe("request_recovery", start, err) }(c.now())

	account, err := c.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.logger.DebugContext(ctx, "recovery requested for unknown email")
			return nil
		}
		return oops.Code("AUTH_RECOVERY_REQUEST_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}

	token, expiresAt, err := c.recovery.Issue(ctx, account.ID)
	if err != nil {
		return oops.Code("AUTH_RECOVERY_REQUEST_FAILED").Wrap(err)
	}

	if err := c.deliverRecovery(ctx, account, token, expiresAt); err != nil {
		errutil.LogError(ctx, c.logger, "recovery notice not delivered", err)
		if revokeErr := c.recovery.Revoke(ctx, account.ID, token); revokeErr != nil {
			errutil.LogError(ctx, c.logger, "undelivered recovery token not revoked", revokeErr)
		}
	}
	return nil
}

// deliverRecovery signs the recovery assertion and hands the notice over.
func (c *Coordinator) deliverRecovery(ctx context.Context, account *Account, token string, expiresAt time.Time) error {
	assertion, _, err := c.codec.IssueRecovery(account.ID, c.recoveryTTL)
	if err != nil {
		return oops.Code("AUTH_RECOVERY_NOTIFY_FAILED").
			With("account_id", account.ID.String()).
			With("operation", "issue recovery assertion").
			Wrap(err)
	}

	notice := RecoveryNotice{
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.Name,
		Token:     token,
		Assertion: assertion,
		ExpiresAt: expiresAt,
	}
	if err := c.notifier.NotifyRecovery(ctx, notice); err != nil {
		return oops.Code("AUTH_RECOVERY_NOTIFY_FAILED").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

// RedeemRecovery sets a new password using a recovery token.
//
// The token is consumed first and the password updated afterwards, inside
// one transaction. A failed or lost redemption never touches the password,
// and a crash between the two steps leaves the token unredeemed. On success
// every refresh and recovery token of the account is revoked.
func (c *Coordinator) RedeemRecovery(ctx context.Context, id AccountID, newPassword, recoveryToken string) (err error) {
	defer func(start time.Time) { c.observe("redeem_recovery", start, err) }(c.now())

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	newHash, err := c.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_RECOVERY_REDEEM_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	err = c.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := c.recovery.Redeem(ctx, id, recoveryToken); err != nil {
			return err
		}
		if err := c.accounts.UpdatePassword(ctx, id, newHash); err != nil {
			return err
		}
		if _, err := c.refresh.RevokeAllForAccount(ctx, id); err != nil {
			return err
		}
		_, err := c.recovery.RevokeAllForAccount(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return oops.Code("AUTH_RECOVERY_TOKEN_NOT_FOUND").
				With("account_id", id.String()).
				Wrap(ErrTokenNotFound)
		}
		return accountFailure("AUTH_RECOVERY_REDEEM_FAILED", id, err)
	}
	return nil
}

// ChangeEmail sets a new email. Uniqueness is decided by the store's
// constraint at write time, not by a prior lookup.
func (c *Coordinator) ChangeEmail(ctx context.Context, id AccountID, email string) (err error) {
	defer func(start time.Time) { c.observe("change_email", start, err) }(c.now())

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if err := c.accounts.UpdateEmail(ctx, id, email); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return oops.Code("AUTH_EMAIL_TAKEN").
				With("account_id", id.String()).
				Wrap(ErrEmailTaken)
		}
		return accountFailure("AUTH_CHANGE_EMAIL_FAILED", id, err)
	}
	return nil
}

// DeleteAccount removes the account with all of its refresh and recovery
// tokens in one transaction.
func (c *Coordinator) DeleteAccount(ctx context.Context, id AccountID) (err error) {
	defer func(start time.Time) { c.observe("delete_account", start, err) }(c.now())

	err = c.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := c.refresh.RevokeAllForAccount(ctx, id); err != nil {
			return err
		}
		if _, err := c.recovery.RevokeAllForAccount(ctx, id); err != nil {
			return err
		}
		return c.accounts.Delete(ctx, id)
	})
	if err != nil {
		return accountFailure("AUTH_DELETE_ACCOUNT_FAILED", id, err)
	}
	return nil
}

// PurgeExpired removes expired refresh and recovery tokens.
func (c *Coordinator) PurgeExpired(ctx context.Context) (refresh, recovery int64, err error) {
	defer func(start time.Time) { c.observe("purge_expired", start, err) }(c.now())

	refresh, err = c.refresh.PurgeExpired(ctx)
	if err != nil {
		return 0, 0, err
	}
	recovery, err = c.recovery.PurgeExpired(ctx)
	if err != nil {
		return refresh, 0, err
	}
	return refresh, recovery, nil
}

// accountFailure maps a repository not-found to ErrAccountNotFound and wraps
// everything else as an infrastructure failure under code.
func accountFailure(code string, id AccountID, err error) error {
	if errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_ACCOUNT_NOT_FOUND").
			With("account_id", id.String()).
			Wrap(ErrAccountNotFound)
	}
	return oops.Code(code).
		With("account_id", id.String()).
		Wrap(err)
}
