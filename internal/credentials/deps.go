// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// ChallengeTTL is how long an email verification code stays valid.
	ChallengeTTL = 10 * time.Minute
	// DefaultIssuer is shown in authenticator apps when no issuer is set.
	DefaultIssuer = "SecureApp Inc"
)

// TOTP generates and validates time-based one-time password secrets.
// Validate must accept codes of the previous, current and next time step.
type TOTP interface {
	GenerateSecret(accountLabel, issuerLabel string) (secret, provisioningURI string, err error)
	Validate(code, secret string, at time.Time) bool
}

// ImageRenderer turns a provisioning URI into a scannable image, typically a
// data URI.
type ImageRenderer interface {
	RenderProvisioningImage(provisioningURI string) (string, error)
}

// Passwords hashes new passwords and compares supplied ones. VerifyPassword
// with an empty stored value must still take comparable time and return false.
type Passwords interface {
	HashPassword(password string) (string, error)
	VerifyPassword(stored, supplied string) bool
}

// Mailer hands a message to the delivery channel. Implementations are
// expected not to block on network I/O.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, textBody, htmlBody string) error
}

// Composer renders the verification mail for a code.
type Composer interface {
	ComposeChallenge(ctx context.Context, code string) (subject, textBody, htmlBody string, err error)
}

// PasswordPolicy rejects passwords on registration. Optional.
type PasswordPolicy interface {
	Check(password, email string) error
}

// Deps are the collaborators the service is built from.
type Deps struct {
	Store     Store
	TOTP      TOTP
	Images    ImageRenderer
	Passwords Passwords
	Mailer    Mailer
	Composer  Composer
	Policy    PasswordPolicy
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// Options configure labels shown in authenticator apps.
type Options struct {
	Issuer       string
	AccountLabel string // empty uses the account email
}

func (d *Deps) validate() error {
	switch {
	case d.Store == nil:
		return fmt.Errorf("credentials: store is required")
	case d.TOTP == nil:
		return fmt.Errorf("credentials: TOTP provider is required")
	case d.Images == nil:
		return fmt.Errorf("credentials: image renderer is required")
	case d.Passwords == nil:
		return fmt.Errorf("credentials: password hasher is required")
	case d.Mailer == nil:
		return fmt.Errorf("credentials: mailer is required")
	}
	if d.Composer == nil {
		d.Composer = plainComposer{}
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return nil
}

// plainComposer is used when no localized composer is configured.
type plainComposer struct{}

func (plainComposer) ComposeChallenge(_ context.Context, code string) (string, string, string, error) {
	return "Your Verification Code",
		fmt.Sprintf("Your verification code is: %s", code),
		fmt.Sprintf("<p>Your verification code is: <strong>%s</strong></p>", code),
		nil
}
