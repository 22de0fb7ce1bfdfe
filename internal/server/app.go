// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"codeberg.org/oliverandrich/go-mfa-login/internal/config"
	"codeberg.org/oliverandrich/go-mfa-login/internal/credentials"
	"codeberg.org/oliverandrich/go-mfa-login/internal/handlers"
	"codeberg.org/oliverandrich/go-mfa-login/internal/metrics"
	"codeberg.org/oliverandrich/go-mfa-login/internal/models"
	"codeberg.org/oliverandrich/go-mfa-login/internal/outbox"
	"codeberg.org/oliverandrich/go-mfa-login/internal/repository"
	"codeberg.org/oliverandrich/go-mfa-login/internal/services/email"
	"codeberg.org/oliverandrich/go-mfa-login/internal/services/password"
	"codeberg.org/oliverandrich/go-mfa-login/internal/services/session"
	"codeberg.org/oliverandrich/go-mfa-login/internal/services/totp"
)

// App is the assembled application.
type App struct {
	Echo    *echo.Echo
	Service *credentials.Service
	Outbox  *outbox.Dispatcher
	Metrics *metrics.Metrics

	backend *backend
}

// Option configures New.
type Option func(*options)

type options struct {
	clock    clockwork.Clock
	sender   outbox.Sender
	registry *prometheus.Registry
}

// WithClock replaces the wall clock.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithSender replaces the SMTP sender.
func WithSender(sender outbox.Sender) Option {
	return func(o *options) { o.sender = sender }
}

// New opens the configured store and wires services, middleware and routes.
// i18n must be initialized. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{
		clock:    clockwork.NewRealClock(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app, err := assemble(cfg, b, &o)
	if err != nil {
		if closeErr := b.close(); closeErr != nil {
			slog.Error("failed to close store", "error", closeErr)
		}
		return nil, err
	}
	return app, nil
}

func assemble(cfg *config.Config, b *backend, o *options) (*App, error) {
	m := metrics.New(o.registry)

	sender := o.sender
	if sender == nil {
		var err error
		sender, err = email.NewSender(&cfg.SMTP, slog.Default())
		if err != nil {
			return nil, fmt.Errorf("failed to configure mail: %w", err)
		}
	}

	mailer := outbox.New(outbox.Config{
		Workers:        cfg.Outbox.Workers,
		BufferSize:     cfg.Outbox.BufferSize,
		MaxAttempts:    cfg.Outbox.MaxAttempts,
		InitialBackoff: cfg.Outbox.InitialBackoff,
	}, sender,
		outbox.WithClock(o.clock),
		outbox.WithFailureHandler(mailFailureHandler(b.repo, m)),
	)

	provider := totp.NewProvider()
	deps := credentials.Deps{
		Store:     b.store,
		TOTP:      provider,
		Images:    provider,
		Passwords: password.NewHasher(0),
		Mailer:    mailer,
		Composer:  email.Composer{},
		Clock:     o.clock,
		Logger:    slog.Default(),
	}
	if cfg.Security.PasswordPolicy {
		deps.Policy = password.DefaultPolicy()
	}

	svc, err := credentials.New(deps, credentials.Options{
		Issuer:       cfg.TOTP.Issuer,
		AccountLabel: cfg.TOTP.AccountLabel,
	})
	if err != nil {
		mailer.Close()
		return nil, fmt.Errorf("failed to create credential service: %w", err)
	}

	sessions, err := session.NewManager(&cfg.Session,
		strings.HasPrefix(cfg.Server.BaseURL, "https://"),
		session.WithClock(o.clock),
	)
	if err != nil {
		mailer.Close()
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg, m)
	setupRoutes(e, cfg,
		handlers.New(b.pinger),
		handlers.NewAuth(svc, sessions, m),
		o.registry,
	)

	return &App{
		Echo:    e,
		Service: svc,
		Outbox:  mailer,
		Metrics: m,
		backend: b,
	}, nil
}

func setupRoutes(e *echo.Echo, cfg *config.Config, h *handlers.Handlers, auth *handlers.AuthHandlers, registry *prometheus.Registry) {
	limited := rateLimiter(cfg.Security)

	e.POST("/register", auth.Register, limited...)
	e.POST("/verify-mfa-setup", auth.VerifyMFASetup, limited...)
	e.POST("/send-verification-email", auth.SendVerificationEmail, limited...)
	e.POST("/verify-email", auth.VerifyEmail, limited...)
	e.POST("/login", auth.Login, limited...)
	e.POST("/logout", auth.Logout)
	e.GET("/me", auth.Me)

	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(registry)))
}

// mailFailureHandler logs and counts undeliverable mail and, on SQLite,
// records it in the mail_failures table.
func mailFailureHandler(repo *repository.Repository, m *metrics.Metrics) func(outbox.Failure) {
	return func(f outbox.Failure) {
		slog.Error("mail_delivery_failed",
			"id", f.Message.ID,
			"to", f.Message.To,
			"attempts", f.Attempts,
			"error", f.Err,
		)
		m.MailFailure()

		if repo == nil {
			return
		}
		id := f.Message.ID
		if id == "" {
			id = uuid.NewString()
		}
		err := repo.RecordMailFailure(context.Background(), &models.MailFailure{
			ID:        id,
			Recipient: f.Message.To,
			Subject:   f.Message.Subject,
			Error:     f.Err.Error(),
			Attempts:  f.Attempts,
			FailedAt:  f.FailedAt,
		})
		if err != nil {
			slog.Error("failed to record mail failure", "id", id, "error", err)
		}
	}
}

// Close drains the mail outbox and closes the store.
func (a *App) Close() error {
	a.Outbox.Close()
	if err := a.backend.close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}
