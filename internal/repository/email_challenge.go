// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/go-mfa-login/internal/models"
)

// PutChallenge stores the challenge, replacing any previous one for the email.
func (r *Repository) PutChallenge(ctx context.Context, challenge *models.EmailChallenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_challenges (email, code, expires_at, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			code = excluded.code,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`,
		challenge.Email, challenge.Code, challenge.ExpiresAt.UTC(), challenge.CreatedAt.UTC())
	return err
}

// GetChallenge returns the challenge for email, expired or not.
func (r *Repository) GetChallenge(ctx context.Context, email string) (*models.EmailChallenge, error) {
	var challenge models.EmailChallenge
	err := r.db.GetContext(ctx, &challenge,
		`SELECT email, code, expires_at, created_at FROM email_challenges WHERE email = ?`, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &challenge, nil
}

func (r *Repository) DeleteChallenge(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM email_challenges WHERE email = ?`, email)
	return err
}
