// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"codeberg.org/oliverandrich/go-mfa-login/internal/config"
	"codeberg.org/oliverandrich/go-mfa-login/internal/database"
)

// MigrateCommand returns the "migrate" command with its down and reset
// subcommands. Both operate on the SQLite store only.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Roll back SQLite schema migrations",
		Commands: []*cli.Command{
			{
				Name:   "down",
				Usage:  "Roll back the newest migration",
				Action: migrateAction("down", database.MigrateDown),
			},
			{
				Name:   "reset",
				Usage:  "Roll back all migrations, dropping every credential",
				Action: migrateAction("reset", database.MigrateReset),
			},
		},
	}
}

func migrateAction(name string, fn func(*sql.DB) error) cli.ActionFunc {
	return func(_ context.Context, cmd *cli.Command) error {
		cfg := config.NewFromCLI(cmd)
		setupLogger(cfg.Log.Level, cfg.Log.Format)
		return runMigration(cfg, name, fn)
	}
}

// runMigration opens the configured database, which applies pending
// migrations, and then runs fn on it.
func runMigration(cfg *config.Config, name string, fn func(*sql.DB) error) error {
	if backend := strings.ToLower(cfg.Store.Backend); backend != BackendSQLite && backend != "" {
		return fmt.Errorf("migrate %s: store backend %q has no schema", name, cfg.Store.Backend)
	}

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		_ = database.Close(db)
	}()

	if err := fn(db.DB); err != nil {
		return err
	}

	version, err := database.SchemaVersion(db.DB)
	if err != nil {
		return err
	}
	slog.Info("migration finished", "command", name, "dsn", cfg.Database.DSN, "version", version)
	return nil
}
