// Package config defines the top-level configuration for the marketplace
// ledger daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARKETD_* environment
// variables.
type Config struct {
	Escrow   EscrowConfig   `toml:"escrow"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EscrowConfig holds the escrow identity's key material. Exactly one source
// must be configured: a raw hex key (development) or a sealed key file plus
// password (deployments).
type EscrowConfig struct {
	PrivateKey    string `toml:"private_key"`
	SealedKeyPath string `toml:"sealed_key_path"`
	KeyPassword   string `toml:"key_password"`
}

// PostgresConfig holds the registry database connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the event
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the HTTP API parameters.
type ServerConfig struct {
	Port          int      `toml:"port"`
	CORSOrigins   []string `toml:"cors_origins"`
	APIKey        string   `toml:"api_key"`
	RateLimit     int      `toml:"rate_limit"`      // requests per window, 0 disables
	RateWindowSec int      `toml:"rate_window_sec"` // window length in seconds
}

// ArchiveConfig controls the archive mode.
type ArchiveConfig struct {
	// RetentionDays is how far back journal events stay out of cold
	// storage; anything older is uploaded by the archive mode.
	RetentionDays int `toml:"retention_days"`
}

var validModes = map[string]bool{
	"serve":      true,
	"archive":    true,
	"standalone": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Defaults returns a Config pre-populated with development defaults.
func Defaults() Config {
	return Config{
		Mode:     "standalone",
		LogLevel: "info",
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			SSLMode:  "disable",
			Database: "marketd",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Server: ServerConfig{
			Port:          8080,
			RateLimit:     0,
			RateWindowSec: 60,
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
		},
	}
}

// NeedsPostgres reports whether the configured mode requires a database.
func (c *Config) NeedsPostgres() bool {
	return c.Mode == "serve" || c.Mode == "archive"
}

// NeedsRedis reports whether the configured mode requires Redis.
func (c *Config) NeedsRedis() bool {
	return c.Mode == "serve"
}

// NeedsS3 reports whether the configured mode requires object storage.
func (c *Config) NeedsS3() bool {
	return c.Mode == "archive"
}

// Validate checks the configuration for the selected mode. It collects all
// problems rather than stopping at the first one.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, archive, standalone)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Escrow key — required in every mode that settles listings.
	if c.Mode == "serve" || c.Mode == "standalone" {
		if c.Escrow.PrivateKey == "" && c.Escrow.SealedKeyPath == "" {
			errs = append(errs, "escrow: either private_key or sealed_key_path must be set for mode "+c.Mode)
		}
		if c.Escrow.SealedKeyPath != "" && c.Escrow.KeyPassword == "" {
			errs = append(errs, "escrow: key_password is required when sealed_key_path is set")
		}
	}

	if c.NeedsPostgres() {
		if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.User == "" || c.Postgres.Database == "") {
			errs = append(errs, "postgres: either dsn or host/user/database must be set for mode "+c.Mode)
		}
	}

	if c.NeedsRedis() && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty for mode "+c.Mode)
	}

	if c.NeedsS3() {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty for mode "+c.Mode)
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty for mode "+c.Mode)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must not be negative")
	}
	if c.Archive.RetentionDays <= 0 {
		errs = append(errs, "archive: retention_days must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
