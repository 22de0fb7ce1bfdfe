// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/go-mfa-login/internal/models"
)

// PutPendingSecret stores the secret, replacing any previous one for the email.
func (r *Repository) PutPendingSecret(ctx context.Context, secret *models.PendingSecret) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_secrets (email, secret, created_at) VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET secret = excluded.secret, created_at = excluded.created_at`,
		secret.Email, secret.Secret, secret.CreatedAt.UTC())
	return err
}

func (r *Repository) GetPendingSecret(ctx context.Context, email string) (*models.PendingSecret, error) {
	var secret models.PendingSecret
	err := r.db.GetContext(ctx, &secret,
		`SELECT email, secret, created_at FROM pending_secrets WHERE email = ?`, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &secret, nil
}

func (r *Repository) DeletePendingSecret(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_secrets WHERE email = ?`, email)
	return err
}
