// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/go-mfa-login/internal/models"
	"github.com/jonboulle/clockwork"
)

// Enrollment provisions TOTP secrets and promotes them once the user proved
// possession with a valid code. It does not lock; Service serializes calls
// per email.
type Enrollment struct {
	store      Store
	totp       TOTP
	challenges *Challenges
	clock      clockwork.Clock
	logger     *slog.Logger
	opts       Options
}

// NewEnrollment creates a TOTP enrollment manager.
func NewEnrollment(store Store, totp TOTP, challenges *Challenges, clock clockwork.Clock, logger *slog.Logger, opts Options) *Enrollment {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Issuer == "" {
		opts.Issuer = DefaultIssuer
	}
	return &Enrollment{
		store:      store,
		totp:       totp,
		challenges: challenges,
		clock:      clock,
		logger:     logger,
		opts:       opts,
	}
}

// Begin generates a new pending secret for email, replacing any previous
// one. The user record is not touched.
func (m *Enrollment) Begin(ctx context.Context, email string) (secret, provisioningURI string, err error) {
	pending, provisioningURI, err := m.generate(email)
	if err != nil {
		return "", "", err
	}
	if err := m.put(ctx, pending); err != nil {
		return "", "", err
	}
	return pending.Secret, provisioningURI, nil
}

// generate creates a secret without storing it.
func (m *Enrollment) generate(email string) (*models.PendingSecret, string, error) {
	label := m.opts.AccountLabel
	if label == "" {
		label = email
	}

	secret, provisioningURI, err := m.totp.GenerateSecret(label, m.opts.Issuer)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return &models.PendingSecret{
		Email:     email,
		Secret:    secret,
		CreatedAt: m.clock.Now(),
	}, provisioningURI, nil
}

func (m *Enrollment) put(ctx context.Context, pending *models.PendingSecret) error {
	if err := m.store.PutPendingSecret(ctx, pending); err != nil {
		return fmt.Errorf("failed to store pending secret: %w", err)
	}
	return nil
}

// Confirm validates code against the pending secret of email. On success the
// secret moves into the user record, the pending secret is removed and a
// fresh email challenge is issued. The returned challenge still has to be
// delivered by the caller. A wrong code keeps the pending secret for retries.
func (m *Enrollment) Confirm(ctx context.Context, email, code string) (*models.EmailChallenge, error) {
	pending, err := m.store.GetPendingSecret(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoPendingEnrollment
		}
		return nil, fmt.Errorf("failed to load pending secret: %w", err)
	}

	if !m.totp.Validate(code, pending.Secret, m.clock.Now()) {
		return nil, ErrInvalidCode
	}

	if err := m.store.UpdateMFA(ctx, email, pending.Secret, m.clock.Now()); err != nil {
		return nil, fmt.Errorf("failed to enable MFA: %w", err)
	}
	if err := m.store.DeletePendingSecret(ctx, email); err != nil {
		return nil, fmt.Errorf("failed to delete pending secret: %w", err)
	}

	challenge, err := m.challenges.Issue(ctx, email)
	if err != nil {
		// Enrollment is committed; the user can request a new code.
		m.logger.Error("challenge_issue_failed", "email", email, "error", err)
		return nil, nil
	}
	return challenge, nil
}

// VerifyLogin validates code against the confirmed secret of email and fails
// closed when there is none.
func (m *Enrollment) VerifyLogin(ctx context.Context, email, code string) bool {
	user, err := m.store.GetUser(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Error("mfa_lookup_failed", "email", email, "error", err)
		}
		return false
	}
	if !user.HasMFASecret() {
		return false
	}
	return m.totp.Validate(code, *user.MFASecret, m.clock.Now())
}
