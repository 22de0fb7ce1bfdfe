// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/go-mfa-login/internal/credentials"
	"codeberg.org/oliverandrich/go-mfa-login/internal/models"
)

// CreateUser inserts a new user. An existing email yields credentials.ErrConflict.
func (r *Repository) CreateUser(ctx context.Context, email, passwordHash string, now time.Time) (*models.User, error) {
	now = now.UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, mfa_enabled, email_verified, created_at, updated_at)
		VALUES (?, ?, 0, 0, ?, ?)
		ON CONFLICT(email) DO NOTHING`,
		email, passwordHash, now, now)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, credentials.ErrConflict
	}

	return &models.User{
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetUser retrieves a user by email address.
func (r *Repository) GetUser(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `
		SELECT email, password_hash, mfa_enabled, mfa_secret, email_verified, created_at, updated_at
		FROM users WHERE email = ?`, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// UpdateMFA stores the confirmed TOTP secret and enables MFA.
func (r *Repository) UpdateMFA(ctx context.Context, email, secret string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET mfa_secret = ?, mfa_enabled = 1, updated_at = ? WHERE email = ?`,
		secret, now.UTC(), email)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetEmailVerified marks the user's email as verified.
func (r *Repository) SetEmailVerified(ctx context.Context, email string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET email_verified = 1, updated_at = ? WHERE email = ?`,
		now.UTC(), email)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// CountUsers returns the total number of users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, err
	}
	return count, nil
}
