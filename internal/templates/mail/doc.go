// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package mail holds the HTML parts of outgoing mails. The components are
// written in .templ files; run `templ generate` after editing them.
package mail
