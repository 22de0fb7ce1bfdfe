// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/go-mfa-login/internal/models"
)

// RecordMailFailure stores a mail that was given up on.
func (r *Repository) RecordMailFailure(ctx context.Context, f *models.MailFailure) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO mail_failures (id, recipient, subject, error, attempts, failed_at)
		VALUES (:id, :recipient, :subject, :error, :attempts, :failed_at)`, f)
	return err
}

// ListMailFailures returns failures for recipient, newest first.
func (r *Repository) ListMailFailures(ctx context.Context, recipient string) ([]models.MailFailure, error) {
	var failures []models.MailFailure
	err := r.db.SelectContext(ctx, &failures, `
		SELECT id, recipient, subject, error, attempts, failed_at
		FROM mail_failures WHERE recipient = ? ORDER BY failed_at DESC`, recipient)
	if err != nil {
		return nil, err
	}
	return failures, nil
}
