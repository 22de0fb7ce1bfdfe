// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package redisstore implements credentials.Store on Redis. Records are stored
// as JSON under "<prefix><kind>:<email>".
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"codeberg.org/oliverandrich/go-mfa-login/internal/credentials"
	"codeberg.org/oliverandrich/go-mfa-login/internal/models"
)

const maxTxRetries = 4

var _ credentials.Store = (*Store)(nil)

// Store keeps users, pending secrets and challenges in Redis.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New creates a Store. prefix namespaces all keys, e.g. "mfa:".
func New(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) userKey(email string) string      { return s.prefix + "user:" + email }
func (s *Store) pendingKey(email string) string   { return s.prefix + "pending:" + email }
func (s *Store) challengeKey(email string) string { return s.prefix + "challenge:" + email }

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string, now time.Time) (*models.User, error) {
	user := &models.User{
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	data, err := json.Marshal(storedUser(*user))
	if err != nil {
		return nil, err
	}

	ok, err := s.rdb.SetNX(ctx, s.userKey(email), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, credentials.ErrConflict
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, email string) (*models.User, error) {
	var su storedUser
	if err := s.get(ctx, s.userKey(email), &su); err != nil {
		return nil, err
	}
	user := models.User(su)
	return &user, nil
}

func (s *Store) UpdateMFA(ctx context.Context, email, secret string, now time.Time) error {
	return s.updateUser(ctx, email, func(u *models.User) {
		u.MFASecret = &secret
		u.MFAEnabled = true
		u.UpdatedAt = now.UTC()
	})
}

func (s *Store) SetEmailVerified(ctx context.Context, email string, now time.Time) error {
	return s.updateUser(ctx, email, func(u *models.User) {
		u.EmailVerified = true
		u.UpdatedAt = now.UTC()
	})
}

// updateUser applies fn in an optimistic transaction on the user key.
func (s *Store) updateUser(ctx context.Context, email string, fn func(*models.User)) error {
	key := s.userKey(email)

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			var su storedUser
			if err := json.Unmarshal(data, &su); err != nil {
				return err
			}
			user := models.User(su)
			fn(&user)

			updated, err := json.Marshal(storedUser(user))
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return wrapError(err)
	}

	return fmt.Errorf("redis update %s: too many concurrent writers", key)
}

func (s *Store) PutPendingSecret(ctx context.Context, secret *models.PendingSecret) error {
	return s.set(ctx, s.pendingKey(secret.Email), storedPending(*secret), 0)
}

func (s *Store) GetPendingSecret(ctx context.Context, email string) (*models.PendingSecret, error) {
	var sp storedPending
	if err := s.get(ctx, s.pendingKey(email), &sp); err != nil {
		return nil, err
	}
	p := models.PendingSecret(sp)
	return &p, nil
}

func (s *Store) DeletePendingSecret(ctx context.Context, email string) error {
	return s.del(ctx, s.pendingKey(email))
}

// PutChallenge stores the challenge without a key TTL. Expiry is judged
// against ExpiresAt on read, so an expired code stays visible as expired
// until it is replaced or consumed.
func (s *Store) PutChallenge(ctx context.Context, challenge *models.EmailChallenge) error {
	return s.set(ctx, s.challengeKey(challenge.Email), storedChallenge(*challenge), 0)
}

func (s *Store) GetChallenge(ctx context.Context, email string) (*models.EmailChallenge, error) {
	var sc storedChallenge
	if err := s.get(ctx, s.challengeKey(email), &sc); err != nil {
		return nil, err
	}
	c := models.EmailChallenge(sc)
	return &c, nil
}

func (s *Store) DeleteChallenge(ctx context.Context, email string) error {
	return s.del(ctx, s.challengeKey(email))
}

func (s *Store) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return wrapError(err)
	}
	return json.Unmarshal(data, v)
}

func (s *Store) del(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func wrapError(err error) error {
	if errors.Is(err, redis.Nil) {
		return credentials.ErrNotFound
	}
	return err
}
