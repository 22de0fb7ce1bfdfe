// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"codeberg.org/oliverandrich/go-mfa-login/internal/config"
	"codeberg.org/oliverandrich/go-mfa-login/internal/credentials"
	"codeberg.org/oliverandrich/go-mfa-login/internal/database"
	"codeberg.org/oliverandrich/go-mfa-login/internal/handlers"
	"codeberg.org/oliverandrich/go-mfa-login/internal/repository"
	"codeberg.org/oliverandrich/go-mfa-login/internal/repository/redisstore"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// backend is the opened credential store.
type backend struct {
	store  credentials.Store
	pinger handlers.Pinger
	repo   *repository.Repository // nil unless sqlite
	close  func() error
}

// openBackend opens the credential store selected by cfg.Store.Backend.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch name := strings.ToLower(cfg.Store.Backend); name {
	case BackendSQLite, "":
		db, err := database.Open(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		repo := repository.New(db)
		if users, err := repo.CountUsers(ctx); err == nil {
			slog.Info("database opened", "dsn", cfg.Database.DSN, "users", users)
		}
		return &backend{
			store:  repo,
			pinger: repo,
			repo:   repo,
			close:  func() error { return database.Close(db) },
		}, nil

	case BackendMemory:
		return &backend{
			store: credentials.NewMemoryStore(),
			close: func() error { return nil },
		}, nil

	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Store.RedisAddr,
			DB:   cfg.Store.RedisDB,
		})
		store := redisstore.New(rdb, cfg.Store.RedisKey)
		if err := store.Ping(ctx); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return &backend{
			store:  store,
			pinger: store,
			close:  rdb.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend: %s", name)
	}
}
