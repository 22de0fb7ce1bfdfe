// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package repository implements credentials.Store on SQLite.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vinovest/sqlx"

	"codeberg.org/oliverandrich/go-mfa-login/internal/credentials"
)

var _ credentials.Store = (*Repository)(nil)

// Repository wraps sqlx for database operations
type Repository struct {
	db *sqlx.DB
}

// New creates a new Repository instance
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// wrapError converts driver errors to store errors
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return credentials.ErrNotFound
	}
	return err
}

// requireRow returns ErrNotFound when an update matched nothing.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return credentials.ErrNotFound
	}
	return nil
}
