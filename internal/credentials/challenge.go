// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credentials

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"codeberg.org/oliverandrich/go-mfa-login/internal/models"
	"github.com/jonboulle/clockwork"
)

const (
	codeMin   = 100000
	codeRange = 900000 // codes are uniform in [100000, 999999]
)

// Challenges issues and checks single-use email verification codes.
// It does not lock; Service serializes calls per email.
type Challenges struct {
	store    Store
	mailer   Mailer
	composer Composer
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewChallenges creates an email challenge manager.
func NewChallenges(store Store, mailer Mailer, composer Composer, clock clockwork.Clock, logger *slog.Logger) *Challenges {
	if composer == nil {
		composer = plainComposer{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Challenges{
		store:    store,
		mailer:   mailer,
		composer: composer,
		clock:    clock,
		logger:   logger,
	}
}

// Issue stores a fresh code for email, replacing any previous one. Delivery
// is a separate step so it can run after the caller released its lock.
func (m *Challenges) Issue(ctx context.Context, email string) (*models.EmailChallenge, error) {
	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	challenge := &models.EmailChallenge{
		Email:     email,
		Code:      code,
		ExpiresAt: now.Add(ChallengeTTL),
		CreatedAt: now,
	}
	if err := m.store.PutChallenge(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	m.logger.Debug("challenge_issued", "email", email, "expires_at", challenge.ExpiresAt)
	return challenge, nil
}

// Deliver hands the code to the mailer. Failures are logged, never returned.
func (m *Challenges) Deliver(ctx context.Context, challenge *models.EmailChallenge) {
	subject, text, html, err := m.composer.ComposeChallenge(ctx, challenge.Code)
	if err != nil {
		m.logger.Error("challenge_compose_failed", "email", challenge.Email, "error", err)
		return
	}
	if err := m.mailer.SendMail(ctx, challenge.Email, subject, text, html); err != nil {
		m.logger.Warn("challenge_dispatch_failed", "email", challenge.Email, "error", err)
	}
}

// Verify checks code against the active challenge and consumes it on success.
func (m *Challenges) Verify(ctx context.Context, email, code string) error {
	challenge, err := m.active(ctx, email, code)
	if err != nil {
		return err
	}
	if err := m.store.DeleteChallenge(ctx, challenge.Email); err != nil {
		return fmt.Errorf("failed to consume challenge: %w", err)
	}
	return nil
}

// Match applies the same checks as Verify but leaves the challenge in place.
func (m *Challenges) Match(ctx context.Context, email, code string) error {
	_, err := m.active(ctx, email, code)
	return err
}

func (m *Challenges) active(ctx context.Context, email, code string) (*models.EmailChallenge, error) {
	challenge, err := m.store.GetChallenge(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoActiveChallenge
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	// Expiry wins over a wrong code.
	if challenge.Expired(m.clock.Now()) {
		return nil, ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(code)) != 1 {
		return nil, ErrMismatch
	}
	return challenge, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeRange))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}
