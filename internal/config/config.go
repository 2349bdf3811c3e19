// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

// Package config loads the service configuration.
//
// Sources are applied in order, later ones winning: built-in defaults, an
// optional YAML file, USERSFLOW_* environment variables and command line
// flags. Environment keys use a double underscore for nesting, so
// USERSFLOW_JWT__ACCESS_TTL sets jwt.access_ttl.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/usersflow/usersflow/internal/auth"
	"github.com/usersflow/usersflow/internal/logging"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "USERSFLOW_"

// Config is the complete service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Database DatabaseConfig `koanf:"database"`
	JWT      JWTConfig      `koanf:"jwt"`
	Tokens   TokensConfig   `koanf:"tokens"`
	Hasher   HasherConfig   `koanf:"hasher"`
	Limiter  LimiterConfig  `koanf:"limiter"`
	Notify   NotifyConfig   `koanf:"notify"`
	Log      LogConfig      `koanf:"log"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// JWTConfig configures access assertions.
type JWTConfig struct {
	Secret    string        `koanf:"secret"`
	Issuer    string        `koanf:"issuer"`
	Audience  string        `koanf:"audience"`
	AccessTTL time.Duration `koanf:"access_ttl"`
}

// TokensConfig configures refresh and recovery tokens.
type TokensConfig struct {
	// RefreshTTL of zero issues refresh tokens that never expire.
	RefreshTTL                time.Duration `koanf:"refresh_ttl"`
	RecoveryTTL               time.Duration `koanf:"recovery_ttl"`
	RecoverySingleOutstanding bool          `koanf:"recovery_single_outstanding"`
	RecoveryAssertionTTL      time.Duration `koanf:"recovery_assertion_ttl"`
	// PurgeInterval of zero disables the background purge in serve.
	PurgeInterval time.Duration `koanf:"purge_interval"`
}

// HasherConfig tunes argon2id.
type HasherConfig struct {
	MemoryKiB   uint32 `koanf:"memory_kib"`
	Iterations  uint32 `koanf:"iterations"`
	Parallelism uint8  `koanf:"parallelism"`
}

// LimiterConfig configures the Redis login limiter.
type LimiterConfig struct {
	Enabled       bool   `koanf:"enabled"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// NotifyConfig configures recovery notice delivery. An empty AMQPURL logs
// notices instead of publishing them.
type NotifyConfig struct {
	AMQPURL string `koanf:"amqp_url"`
	Queue   string `koanf:"queue"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	return map[string]any{
		"http.addr":                          ":8080",
		"http.read_header_timeout":           "10s",
		"http.shutdown_timeout":              "15s",
		"metrics.addr":                       "127.0.0.1:9100",
		"jwt.issuer":                         "usersflow",
		"jwt.audience":                       "usersflow-api",
		"jwt.access_ttl":                     "15m",
		"tokens.refresh_ttl":                 "720h",
		"tokens.recovery_ttl":                "1h",
		"tokens.recovery_single_outstanding": false,
		"tokens.recovery_assertion_ttl":      "15m",
		"tokens.purge_interval":              "1h",
		"hasher.memory_kib":                  64 * 1024,
		"hasher.iterations":                  1,
		"hasher.parallelism":                 4,
		"limiter.enabled":                    false,
		"limiter.redis_db":                   0,
		"notify.queue":                       "usersflow.recovery",
		"log.format":                         "json",
		"log.level":                          "info",
	}
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"database-url": "database.url",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// LoadOptions select the optional configuration sources.
type LoadOptions struct {
	// File is a YAML file. Empty skips it.
	File string
	// EnvFile is a dotenv file loaded into the process environment first.
	EnvFile string
	// Flags are parsed command line flags. Only flags named in flagKeys
	// are read, and only when set explicitly.
	Flags *pflag.FlagSet
}

// Load builds the configuration from all sources. It does not validate.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "env-file").
				With("path", opts.EnvFile).
				Wrap(err)
		}
	}

	k := koanf.New(".")
	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").With("key", key).Wrap(err)
		}
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "file").
				With("path", opts.File).
				Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	return &cfg, nil
}

// envKey turns USERSFLOW_JWT__ACCESS_TTL into jwt.access_ttl.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate checks the settings every command needs. Errors wrap
// auth.ErrConfiguration.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return invalid("database.url", "database url is required")
	}
	return nil
}

// ValidateServe checks the settings required to run the API.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch {
	case c.JWT.Secret == "":
		return invalid("jwt.secret", "signing secret is required")
	case len(c.JWT.Secret) < auth.MinSecretLength:
		return invalid("jwt.secret", "signing secret must be at least 32 bytes")
	case c.JWT.Issuer == "":
		return invalid("jwt.issuer", "issuer is required")
	case c.JWT.Audience == "":
		return invalid("jwt.audience", "audience is required")
	case c.JWT.AccessTTL <= 0:
		return invalid("jwt.access_ttl", "access ttl must be positive")
	case c.Tokens.RefreshTTL < 0:
		return invalid("tokens.refresh_ttl", "refresh ttl cannot be negative")
	case c.Tokens.RecoveryTTL <= 0:
		return invalid("tokens.recovery_ttl", "recovery ttl must be positive")
	case c.Tokens.RecoveryAssertionTTL <= 0:
		return invalid("tokens.recovery_assertion_ttl", "recovery assertion ttl must be positive")
	case c.Tokens.PurgeInterval < 0:
		return invalid("tokens.purge_interval", "purge interval cannot be negative")
	case c.HTTP.Addr == "":
		return invalid("http.addr", "http address is required")
	case c.Limiter.Enabled && c.Limiter.RedisAddr == "":
		return invalid("limiter.redis_addr", "redis address is required when the limiter is enabled")
	case c.Log.Format != "json" && c.Log.Format != "text":
		return invalid("log.format", "log format must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "log level must be debug, info, warn or error")
	}
	return nil
}

// Argon2Params converts the hasher settings.
func (c *Config) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Memory:      c.Hasher.MemoryKiB,
		Iterations:  c.Hasher.Iterations,
		Parallelism: c.Hasher.Parallelism,
	}
}

func invalid(key, msg string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Wrapf(auth.ErrConfiguration, "%s", msg)
}
