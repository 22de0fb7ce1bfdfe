// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package credentials implements registration, TOTP enrollment, email
// verification codes and the layered login decision.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"

	"github.com/jonboulle/clockwork"
)

// Registration is returned to a newly registered user to set up their
// authenticator app.
type Registration struct {
	QRCode          string // image data URI of the provisioning URI
	Secret          string // base32 secret for manual entry
	ProvisioningURI string
}

// Service is the entry point used by the transport layer. Every sequence
// that mutates state for an email runs under that email's lock; mail
// dispatch and QR rendering happen after the lock is released.
type Service struct {
	store      Store
	images     ImageRenderer
	passwords  Passwords
	policy     PasswordPolicy
	clock      clockwork.Clock
	logger     *slog.Logger
	locks      *emailLocks
	enrollment *Enrollment
	challenges *Challenges
	auth       *Authenticator
}

// New wires a Service from its collaborators.
func New(deps Deps, opts Options) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	challenges := NewChallenges(deps.Store, deps.Mailer, deps.Composer, deps.Clock, deps.Logger)
	enrollment := NewEnrollment(deps.Store, deps.TOTP, challenges, deps.Clock, deps.Logger, opts)
	auth := NewAuthenticator(deps.Store, deps.Passwords, enrollment, challenges, deps.Clock, deps.Logger)

	return &Service{
		store:      deps.Store,
		images:     deps.Images,
		passwords:  deps.Passwords,
		policy:     deps.Policy,
		clock:      deps.Clock,
		logger:     deps.Logger,
		locks:      newEmailLocks(),
		enrollment: enrollment,
		challenges: challenges,
		auth:       auth,
	}, nil
}

// Register creates the account and starts TOTP enrollment.
func (s *Service) Register(ctx context.Context, email, password string) (*Registration, error) {
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, ErrInvalidEmail
	}
	if s.policy != nil {
		if err := s.policy.Check(password, email); err != nil {
			return nil, err
		}
	}

	hash, err := s.passwords.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	secret, uri, err := s.createAndEnroll(ctx, email, hash)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.logger.Warn("register_failed", "email", email, "reason", "user_exists")
		}
		return nil, err
	}

	qr, err := s.images.RenderProvisioningImage(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}

	s.logger.Info("register_success", "email", email)
	return &Registration{QRCode: qr, Secret: secret, ProvisioningURI: uri}, nil
}

// createAndEnroll generates the secret before the user record exists, so a
// TOTP failure leaves nothing behind. Only a failed pending secret write
// after CreateUser can strand the account.
func (s *Service) createAndEnroll(ctx context.Context, email, hash string) (string, string, error) {
	pending, uri, err := s.enrollment.generate(email)
	if err != nil {
		return "", "", err
	}

	unlock := s.locks.lock(email)
	defer unlock()

	if _, err := s.store.CreateUser(ctx, email, hash, s.clock.Now()); err != nil {
		if errors.Is(err, ErrConflict) {
			return "", "", ErrConflict
		}
		return "", "", fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.enrollment.put(ctx, pending); err != nil {
		s.logger.Error("register_enrollment_failed", "email", email, "error", err)
		return "", "", err
	}
	return pending.Secret, uri, nil
}

// ConfirmEnrollment promotes the pending TOTP secret and sends the first
// email verification code.
func (s *Service) ConfirmEnrollment(ctx context.Context, email, code string) error {
	unlock := s.locks.lock(email)
	challenge, err := s.enrollment.Confirm(ctx, email, code)
	unlock()

	if err != nil {
		s.logger.Warn("mfa_setup_failed", "email", email, "error", err)
		return err
	}

	s.logger.Info("mfa_enabled", "email", email)
	if challenge != nil {
		s.challenges.Deliver(ctx, challenge)
	}
	return nil
}

// RequestEmailChallenge issues a new code for email. It behaves the same
// whether or not an account exists; only store failures are returned.
func (s *Service) RequestEmailChallenge(ctx context.Context, email string) error {
	unlock := s.locks.lock(email)
	challenge, err := s.challenges.Issue(ctx, email)
	unlock()

	if err != nil {
		return err
	}
	s.challenges.Deliver(ctx, challenge)
	return nil
}

// VerifyEmailChallenge consumes the code and marks the email as verified.
func (s *Service) VerifyEmailChallenge(ctx context.Context, email, code string) error {
	unlock := s.locks.lock(email)
	defer unlock()

	if err := s.challenges.Verify(ctx, email, code); err != nil {
		s.logger.Warn("email_verification_failed", "email", email, "error", err)
		return err
	}

	err := s.store.SetEmailVerified(ctx, email, s.clock.Now())
	switch {
	case errors.Is(err, ErrNotFound):
		// Codes can be requested for unknown addresses; nothing to mark.
		s.logger.Warn("email_verified_without_account", "email", email)
		return nil
	case err != nil:
		return fmt.Errorf("failed to mark email verified: %w", err)
	}

	s.logger.Info("email_verified", "email", email)
	return nil
}

// Login runs the layered authentication and returns the identity to store
// in the session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*SessionIdentity, error) {
	unlock := s.locks.lock(req.Email)
	defer unlock()

	identity, _, err := s.auth.Authenticate(ctx, req)
	return identity, err
}
