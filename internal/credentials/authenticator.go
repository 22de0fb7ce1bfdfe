// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
)

// LoginState is the furthest step a login attempt reached.
type LoginState int

const (
	StateStart LoginState = iota
	StateCredentialsChecked
	StateMFAChecked
	StateEmailChecked
	StateAuthenticated
	StateRejected
)

func (s LoginState) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateCredentialsChecked:
		return "credentials_checked"
	case StateMFAChecked:
		return "mfa_checked"
	case StateEmailChecked:
		return "email_checked"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("LoginState(%d)", int(s))
	}
}

// LoginRequest carries the already parsed login fields. MFACode and EmailCode
// are only consulted when the account needs them.
type LoginRequest struct {
	Email     string
	Password  string
	MFACode   string
	EmailCode string
}

// SessionIdentity is what a successful login hands to the session issuer.
type SessionIdentity struct {
	Email string `json:"email"`
}

// MFAVerifier checks a TOTP code against an account's confirmed secret.
type MFAVerifier interface {
	VerifyLogin(ctx context.Context, email, code string) bool
}

// ChallengeMatcher checks an email code without consuming it.
type ChallengeMatcher interface {
	Match(ctx context.Context, email, code string) error
}

// Authenticator composes the password, MFA and email checks into one login
// decision. The order is fixed: no MFA or email verdict is ever produced for
// a request whose password was not accepted.
type Authenticator struct {
	store      Store
	passwords  Passwords
	mfa        MFAVerifier
	challenges ChallengeMatcher
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewAuthenticator creates a login authenticator.
func NewAuthenticator(store Store, passwords Passwords, mfa MFAVerifier, challenges ChallengeMatcher, clock clockwork.Clock, logger *slog.Logger) *Authenticator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		store:      store,
		passwords:  passwords,
		mfa:        mfa,
		challenges: challenges,
		clock:      clock,
		logger:     logger,
	}
}

// Authenticate runs the login state machine and returns the state it stopped
// in together with the identity on success.
func (a *Authenticator) Authenticate(ctx context.Context, req LoginRequest) (*SessionIdentity, LoginState, error) {
	state := StateStart

	user, err := a.store.GetUser(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, StateRejected, fmt.Errorf("failed to get user: %w", err)
		}
		// Keep the unknown-user path as slow as a wrong password.
		_ = a.passwords.VerifyPassword("", req.Password)
		a.reject(req.Email, state, "user_not_found")
		return nil, StateRejected, ErrInvalidCredentials
	}
	if !a.passwords.VerifyPassword(user.PasswordHash, req.Password) {
		a.reject(req.Email, state, "invalid_password")
		return nil, StateRejected, ErrInvalidCredentials
	}
	state = StateCredentialsChecked

	if user.MFAEnabled {
		if !a.mfa.VerifyLogin(ctx, req.Email, req.MFACode) {
			a.reject(req.Email, state, "invalid_mfa_code")
			return nil, StateRejected, ErrInvalidMFACode
		}
	}
	state = StateMFAChecked

	if !user.EmailVerified {
		if err := a.challenges.Match(ctx, req.Email, req.EmailCode); err != nil {
			a.reject(req.Email, state, "invalid_email_code")
			return nil, StateRejected, ErrInvalidEmailCode
		}
		if err := a.store.SetEmailVerified(ctx, req.Email, a.clock.Now()); err != nil {
			return nil, StateRejected, fmt.Errorf("failed to mark email verified: %w", err)
		}
	}
	state = StateEmailChecked

	a.logger.Info("login_success", "email", req.Email, "state", state.String())
	return &SessionIdentity{Email: user.Email}, StateAuthenticated, nil
}

func (a *Authenticator) reject(email string, state LoginState, reason string) {
	a.logger.Warn("login_failed", "email", email, "state", state.String(), "reason", reason)
}
