// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credentials

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/go-mfa-login/internal/models"
)

// Store persists user records and the transient enrollment and challenge
// state. Implementations return ErrNotFound for missing keys and ErrConflict
// when CreateUser hits an existing email. Compound sequences are serialized
// by Service, not by the store.
type Store interface {
	CreateUser(ctx context.Context, email, passwordHash string, now time.Time) (*models.User, error)
	GetUser(ctx context.Context, email string) (*models.User, error)
	UpdateMFA(ctx context.Context, email, secret string, now time.Time) error
	SetEmailVerified(ctx context.Context, email string, now time.Time) error

	PutPendingSecret(ctx context.Context, secret *models.PendingSecret) error
	GetPendingSecret(ctx context.Context, email string) (*models.PendingSecret, error)
	DeletePendingSecret(ctx context.Context, email string) error

	PutChallenge(ctx context.Context, challenge *models.EmailChallenge) error
	GetChallenge(ctx context.Context, email string) (*models.EmailChallenge, error)
	DeleteChallenge(ctx context.Context, email string) error
}
