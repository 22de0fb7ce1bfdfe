// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/go-mfa-login/internal/config"
	"codeberg.org/oliverandrich/go-mfa-login/internal/outbox"
	"github.com/wneessen/go-mail"
)

// Service sends mail via SMTP using go-mail.
type Service struct {
	cfg *config.SMTPConfig
}

// NewService creates a new SMTP sender.
func NewService(cfg *config.SMTPConfig) (*Service, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}
	return &Service{cfg: cfg}, nil
}

// NewSender returns the SMTP service, or a LogSender when no SMTP host is
// configured.
func NewSender(cfg *config.SMTPConfig, logger *slog.Logger) (outbox.Sender, error) {
	if cfg.Host == "" {
		logger.Warn("smtp_not_configured", "fallback", "log")
		return &LogSender{Logger: logger}, nil
	}
	return NewService(cfg)
}

// Send delivers msg. Address errors are permanent; everything else may be
// retried.
func (s *Service) Send(ctx context.Context, msg outbox.Message) error {
	m, err := s.build(msg)
	if err != nil {
		return outbox.Permanent(err)
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return outbox.Permanent(fmt.Errorf("creating mail client: %w", err))
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

func (s *Service) build(msg outbox.Message) (*mail.Msg, error) {
	m := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := m.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := m.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	m.Subject(msg.Subject)
	if msg.ID != "" {
		m.SetMessageIDWithValue(msg.ID)
	}
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}

func (s *Service) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Use implicit TLS (SSL) for port 465, STARTTLS for others
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

// LogSender writes messages to the log instead of sending them. Used in
// development when SMTP is not configured. Bodies carry verification codes
// and are only logged at debug level.
type LogSender struct {
	Logger *slog.Logger
}

func (l *LogSender) Send(_ context.Context, msg outbox.Message) error {
	if msg.To == "" {
		return outbox.Permanent(errors.New("missing recipient"))
	}
	l.Logger.Info("mail_logged", "id", msg.ID, "to", msg.To, "subject", msg.Subject)
	l.Logger.Debug("mail_logged_body", "id", msg.ID, "body", msg.Text)
	return nil
}
