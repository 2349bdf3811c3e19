// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSecretLength is the minimum signing secret size in bytes (HS256 key strength).
const MinSecretLength = 32

// DefaultAccessTokenTTL is the lifetime of an access assertion when none is configured.
const DefaultAccessTokenTTL = 15 * time.Minute

var signingMethod = jwt.SigningMethodHS256

// AccessTokenConfig configures an AccessTokenCodec.
type AccessTokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// AccessTokenCodec issues and verifies signed access assertions.
//
// The secret is copied at construction and never mutated, so a codec is safe
// for concurrent use without locking.
type AccessTokenCodec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

// CodecOption configures an AccessTokenCodec.
type CodecOption func(*AccessTokenCodec)

// WithClock overrides the codec clock.
func WithClock(now func() time.Time) CodecOption {
	return func(c *AccessTokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewAccessTokenCodec validates cfg and builds a codec.
// A missing or short secret is a configuration error.
func NewAccessTokenCodec(cfg AccessTokenConfig, opts ...CodecOption) (*AccessTokenCodec, error) {
	if len(cfg.Secret) == 0 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("field", "secret").
			Wrapf(ErrConfiguration, "signing secret is required")
	}
	if len(cfg.Secret) < MinSecretLength {
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("field", "secret").
			With("min_bytes", MinSecretLength).
			Wrapf(ErrConfiguration, "signing secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.Issuer == "" {
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("field", "issuer").
			Wrapf(ErrConfiguration, "issuer is required")
	}
	if cfg.Audience == "" {
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("field", "audience").
			Wrapf(ErrConfiguration, "audience is required")
	}
	if cfg.TTL < 0 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").
			With("field", "ttl").
			Wrapf(ErrConfiguration, "access token ttl cannot be negative")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultAccessTokenTTL
	}

	c := &AccessTokenCodec{
		secret:   append([]byte(nil), cfg.Secret...),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Leeway stays at zero: iat, nbf and exp are enforced exactly.
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)

	return c, nil
}

// TTL returns the configured access assertion lifetime.
func (c *AccessTokenCodec) TTL() time.Duration {
	return c.ttl
}

// PurposeRecovery marks an assertion that only authorizes redeeming a
// recovery token.
const PurposeRecovery = "recovery"

// assertionClaims are the registered claims plus an optional purpose.
// Ordinary access assertions carry no purpose.
type assertionClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose,omitempty"`
}

// Issue signs an assertion for id valid from now until now+ttl.
// A non-positive ttl uses the configured TTL.
func (c *AccessTokenCodec) Issue(id AccountID, ttl time.Duration) (string, time.Time, error) {
	return c.issue(id, ttl, "")
}

// IssueRecovery signs a recovery assertion for id. It is accepted by
// DecodeRecovery only.
func (c *AccessTokenCodec) IssueRecovery(id AccountID, ttl time.Duration) (string, time.Time, error) {
	return c.issue(id, ttl, PurposeRecovery)
}

func (c *AccessTokenCodec) issue(id AccountID, ttl time.Duration, purpose string) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	// NumericDate holds whole seconds, so expiry is measured from the
	// truncated issue time carried in iat.
	now := c.now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	claims := assertionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        ulid.Make().String(),
		},
		Purpose: purpose,
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("AUTH_ASSERTION_SIGN_FAILED").
			With("account_id", id.String()).
			With("purpose", purpose).
			Wrap(err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Decode verifies an access assertion and returns its subject.
// Every rejection wraps ErrInvalidCredential; the underlying reason is kept
// in the error context for logging only. Recovery assertions are rejected.
func (c *AccessTokenCodec) Decode(assertion string) (AccountID, error) {
	return c.decode(assertion, "")
}

// DecodeRecovery verifies a recovery assertion and returns its subject.
// Ordinary access assertions are rejected.
func (c *AccessTokenCodec) DecodeRecovery(assertion string) (AccountID, error) {
	return c.decode(assertion, PurposeRecovery)
}

func (c *AccessTokenCodec) decode(assertion, purpose string) (AccountID, error) {
	if assertion == "" {
		return 0, oops.Code("AUTH_ASSERTION_INVALID").
			With("reason", "empty").
			Wrap(ErrInvalidCredential)
	}

	claims := &assertionClaims{}
	token, err := c.parser.ParseWithClaims(assertion, claims, c.keyFunc)
	if err != nil || !token.Valid {
		reason := "invalid"
		if err != nil {
			reason = err.Error()
		}
		return 0, oops.Code("AUTH_ASSERTION_INVALID").
			With("reason", reason).
			Wrap(ErrInvalidCredential)
	}
	if claims.Purpose != purpose {
		return 0, oops.Code("AUTH_ASSERTION_INVALID").
			With("reason", "wrong purpose").
			With("purpose", claims.Purpose).
			Wrap(ErrInvalidCredential)
	}

	id, err := ParseAccountID(claims.Subject)
	if err != nil {
		return 0, oops.Code("AUTH_ASSERTION_INVALID").
			With("reason", "bad subject").
			Wrap(ErrInvalidCredential)
	}
	return id, nil
}

func (c *AccessTokenCodec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, oops.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return c.secret, nil
}

// StripBearer extracts the credential from an Authorization header value.
// It reports false when the header is not a non-empty bearer credential.
func StripBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
