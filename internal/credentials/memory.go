// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credentials

import (
	"context"
	"sync"
	"time"

	"codeberg.org/oliverandrich/go-mfa-login/internal/models"
)

// MemoryStore is a Store backed by maps. Records are copied on the way in
// and out so callers never share memory with the store.
type MemoryStore struct { //nolint:govet // fieldalignment not critical
	mu         sync.RWMutex
	users      map[string]*models.User
	pending    map[string]*models.PendingSecret
	challenges map[string]*models.EmailChallenge
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*models.User),
		pending:    make(map[string]*models.PendingSecret),
		challenges: make(map[string]*models.EmailChallenge),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, email, passwordHash string, now time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[email]; ok {
		return nil, ErrConflict
	}
	user := &models.User{
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[email] = user
	return copyUser(user), nil
}

func (s *MemoryStore) GetUser(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(user), nil
}

func (s *MemoryStore) UpdateMFA(_ context.Context, email, secret string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return ErrNotFound
	}
	user.MFASecret = &secret
	user.MFAEnabled = true
	user.UpdatedAt = now
	return nil
}

func (s *MemoryStore) SetEmailVerified(_ context.Context, email string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return ErrNotFound
	}
	user.EmailVerified = true
	user.UpdatedAt = now
	return nil
}

func (s *MemoryStore) PutPendingSecret(_ context.Context, secret *models.PendingSecret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := *secret
	s.pending[secret.Email] = &p
	return nil
}

func (s *MemoryStore) GetPendingSecret(_ context.Context, email string) (*models.PendingSecret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pending[email]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *MemoryStore) DeletePendingSecret(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, email)
	return nil
}

func (s *MemoryStore) PutChallenge(_ context.Context, challenge *models.EmailChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *challenge
	s.challenges[challenge.Email] = &c
	return nil
}

func (s *MemoryStore) GetChallenge(_ context.Context, email string) (*models.EmailChallenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.challenges[email]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) DeleteChallenge(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.challenges, email)
	return nil
}

func copyUser(u *models.User) *models.User {
	out := *u
	if u.MFASecret != nil {
		secret := *u.MFASecret
		out.MFASecret = &secret
	}
	return &out
}
