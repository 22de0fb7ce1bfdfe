// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"codeberg.org/oliverandrich/go-mfa-login/internal/config"
	"codeberg.org/oliverandrich/go-mfa-login/internal/server"
)

func main() {
	cmd := &cli.Command{
		Name:   "mfa-login",
		Usage:  "Serve password, TOTP and email code login",
		Flags:  config.Flags(),
		Action: server.Run,
		Commands: []*cli.Command{
			server.MigrateCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
