// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"bytes"
	"context"
	"fmt"

	"codeberg.org/oliverandrich/go-mfa-login/internal/i18n"
	mailtmpl "codeberg.org/oliverandrich/go-mfa-login/internal/templates/mail"
)

// Composer renders verification mails in the locale carried by the context.
type Composer struct{}

// ComposeChallenge returns subject, text and HTML body for code.
func (Composer) ComposeChallenge(ctx context.Context, code string) (string, string, string, error) {
	subject := i18n.T(ctx, "email_code_subject")
	text := i18n.TData(ctx, "email_code_body", map[string]any{"Code": code})

	var html bytes.Buffer
	if err := mailtmpl.VerificationCode(i18n.T(ctx, "email_code_intro"), code).Render(ctx, &html); err != nil {
		return "", "", "", fmt.Errorf("rendering mail body: %w", err)
	}
	return subject, text, html.String(), nil
}
