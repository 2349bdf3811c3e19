// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package main

import (
	"log/slog"

	"github.com/usersflow/usersflow/internal/auth"
	authpostgres "github.com/usersflow/usersflow/internal/auth/postgres"
	"github.com/usersflow/usersflow/internal/config"
)

// tokenStores builds the refresh and recovery stores on db.
func tokenStores(cfg *config.Config, db authpostgres.DB) (*auth.RefreshTokenStore, *auth.RecoveryTokenStore, auth.Transactor, error) {
	tx := authpostgres.NewTxManager(db)

	refresh, err := auth.NewRefreshTokenStore(authpostgres.NewRefreshTokenRepository(db), tx, cfg.Tokens.RefreshTTL)
	if err != nil {
		return nil, nil, nil, err
	}
	recovery, err := auth.NewRecoveryTokenStore(authpostgres.NewRecoveryTokenRepository(db), tx, auth.RecoveryStoreConfig{
		TTL:               cfg.Tokens.RecoveryTTL,
		SingleOutstanding: cfg.Tokens.RecoverySingleOutstanding,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return refresh, recovery, tx, nil
}

// buildCoordinator wires the coordinator to PostgreSQL.
func buildCoordinator(
	cfg *config.Config,
	db authpostgres.DB,
	limiter auth.LoginLimiter,
	notifier auth.RecoveryNotifier,
	logger *slog.Logger,
) (*auth.Coordinator, error) {
	refresh, recovery, tx, err := tokenStores(cfg, db)
	if err != nil {
		return nil, err
	}

	codec, err := auth.NewAccessTokenCodec(auth.AccessTokenConfig{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.JWT.AccessTTL,
	})
	if err != nil {
		return nil, err
	}

	return auth.NewCoordinator(auth.CoordinatorDeps{
		Accounts:             authpostgres.NewAccountRepository(db),
		Refresh:              refresh,
		Recovery:             recovery,
		Codec:                codec,
		Hasher:               auth.NewArgon2idHasherWithParams(cfg.Argon2Params()),
		Tx:                   tx,
		Limiter:              limiter,
		Notifier:             notifier,
		Logger:               logger,
		RecoveryAssertionTTL: cfg.Tokens.RecoveryAssertionTTL,
	})
}
