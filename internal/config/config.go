// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Store    StoreConfig
	TLS      TLSConfig
	SMTP     SMTPConfig
	Outbox   OutboxConfig
	Session  SessionConfig
	TOTP     TOTPConfig
	Security SecurityConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int    // in MB
	CORSOrigin  string // allowed browser origin, empty disables CORS
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Backend   string // sqlite, memory, redis
	RedisAddr string
	RedisDB   int
	RedisKey  string // key prefix
}

type TLSConfig struct {
	Mode     string // auto, acme, manual, off
	CertDir  string // Directory for ACME certificates
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// OutboxConfig controls asynchronous mail delivery.
type OutboxConfig struct {
	Workers        int
	BufferSize     int
	MaxAttempts    int
	InitialBackoff time.Duration
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

type TOTPConfig struct {
	Issuer       string
	AccountLabel string // empty uses the user's email
}

type SecurityConfig struct { //nolint:govet // fieldalignment not critical
	PasswordPolicy bool    // enforce the password validator on registration
	RateLimit      float64 // requests per second per IP on auth routes, 0 disables
	RateBurst      int
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
			CORSOrigin:  cmd.String("cors-origin"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Store: StoreConfig{
			Backend:   cmd.String("store"),
			RedisAddr: cmd.String("redis-addr"),
			RedisDB:   int(cmd.Int("redis-db")),
			RedisKey:  cmd.String("redis-prefix"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Outbox: OutboxConfig{
			Workers:        int(cmd.Int("outbox-workers")),
			BufferSize:     int(cmd.Int("outbox-buffer")),
			MaxAttempts:    int(cmd.Int("outbox-max-attempts")),
			InitialBackoff: cmd.Duration("outbox-backoff"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		TOTP: TOTPConfig{
			Issuer:       cmd.String("totp-issuer"),
			AccountLabel: cmd.String("totp-account-label"),
		},
		Security: SecurityConfig{
			PasswordPolicy: cmd.Bool("password-policy"),
			RateLimit:      cmd.Float("rate-limit"),
			RateBurst:      int(cmd.Int("rate-burst")),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	applyOutboxDefaults(cfg)

	return cfg
}

// applyOutboxDefaults replaces non-positive outbox settings.
func applyOutboxDefaults(cfg *Config) {
	if cfg.Outbox.Workers <= 0 {
		cfg.Outbox.Workers = 1
	}
	if cfg.Outbox.BufferSize <= 0 {
		cfg.Outbox.BufferSize = 64
	}
	if cfg.Outbox.MaxAttempts <= 0 {
		cfg.Outbox.MaxAttempts = 1
	}
	if cfg.Outbox.InitialBackoff <= 0 {
		cfg.Outbox.InitialBackoff = time.Second
	}
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	scheme := "http"
	if shouldUseTLS(mode, host) {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

// src builds the env var + TOML key value source chain used by every flag.
func src(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: src("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   3000,
			Usage:   "Port to listen on",
			Sources: src("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: src("BASE_URL", "server.base_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: src("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringFlag{
			Name:    "cors-origin",
			Value:   "http://127.0.0.1:5500",
			Usage:   "Allowed CORS origin (empty disables CORS)",
			Sources: src("CORS_ORIGIN", "server.cors_origin"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: src("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: src("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN",
			Sources: src("DATABASE_DSN", "database.dsn"),
		},
		// Store flags
		&cli.StringFlag{
			Name:    "store",
			Value:   "sqlite",
			Usage:   "Credential store backend (sqlite, memory, redis)",
			Sources: src("STORE", "store.backend"),
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Value:   "localhost:6379",
			Usage:   "Redis address for the redis store",
			Sources: src("REDIS_ADDR", "store.redis_addr"),
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			Sources: src("REDIS_DB", "store.redis_db"),
		},
		&cli.StringFlag{
			Name:    "redis-prefix",
			Value:   "mfa:",
			Usage:   "Key prefix for the redis store",
			Sources: src("REDIS_PREFIX", "store.redis_prefix"),
		},
		// TLS flags
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, acme, manual, off)",
			Sources: src("TLS_MODE", "tls.mode"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for ACME certificates",
			Sources: src("TLS_CERT_DIR", "tls.cert_dir"),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: src("TLS_EMAIL", "tls.email"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: src("TLS_CERT_FILE", "tls.cert_file"),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: src("TLS_KEY_FILE", "tls.key_file"),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (empty logs mails instead of sending)",
			Sources: src("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: src("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: src("EMAIL_USER", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: src("EMAIL_PASS", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "no-reply@secureapp.com",
			Usage:   "Sender address",
			Sources: src("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "Secure App",
			Usage:   "Sender display name",
			Sources: src("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: src("SMTP_TLS", "smtp.tls"),
		},
		// Outbox flags
		&cli.IntFlag{
			Name:    "outbox-workers",
			Value:   2,
			Usage:   "Number of mail delivery workers",
			Sources: src("OUTBOX_WORKERS", "outbox.workers"),
		},
		&cli.IntFlag{
			Name:    "outbox-buffer",
			Value:   64,
			Usage:   "Mail queue capacity",
			Sources: src("OUTBOX_BUFFER", "outbox.buffer"),
		},
		&cli.IntFlag{
			Name:    "outbox-max-attempts",
			Value:   3,
			Usage:   "Delivery attempts per mail before it is reported as failed",
			Sources: src("OUTBOX_MAX_ATTEMPTS", "outbox.max_attempts"),
		},
		&cli.DurationFlag{
			Name:    "outbox-backoff",
			Value:   time.Second,
			Usage:   "Initial retry backoff for mail delivery",
			Sources: src("OUTBOX_BACKOFF", "outbox.backoff"),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: src("SESSION_COOKIE_NAME", "session.cookie_name"),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   604800, // 7 days in seconds
			Usage:   "Session max age in seconds",
			Sources: src("SESSION_MAX_AGE", "session.max_age"),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: src("SESSION_HASH_KEY", "session.hash_key"),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: src("SESSION_BLOCK_KEY", "session.block_key"),
		},
		// TOTP flags
		&cli.StringFlag{
			Name:    "totp-issuer",
			Value:   "SecureApp Inc",
			Usage:   "Issuer shown in authenticator apps",
			Sources: src("TOTP_ISSUER", "totp.issuer"),
		},
		&cli.StringFlag{
			Name:    "totp-account-label",
			Usage:   "Account label shown in authenticator apps (defaults to the user's email)",
			Sources: src("TOTP_ACCOUNT_LABEL", "totp.account_label"),
		},
		// Security flags
		&cli.BoolFlag{
			Name:    "password-policy",
			Usage:   "Enforce password strength rules on registration",
			Sources: src("PASSWORD_POLICY", "security.password_policy"),
		},
		&cli.FloatFlag{
			Name:    "rate-limit",
			Value:   5,
			Usage:   "Requests per second per client on auth routes (0 disables)",
			Sources: src("RATE_LIMIT", "security.rate_limit"),
		},
		&cli.IntFlag{
			Name:    "rate-burst",
			Value:   10,
			Usage:   "Burst size for the auth rate limiter",
			Sources: src("RATE_BURST", "security.rate_burst"),
		},
	}
}
