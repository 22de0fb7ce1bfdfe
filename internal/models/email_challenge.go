// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// EmailChallenge is a single-use numeric code sent to an email address.
type EmailChallenge struct { //nolint:govet // fieldalignment: readability over optimization
	Email     string    `db:"email" json:"email"`
	Code      string    `db:"code" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Expired reports whether the challenge is no longer valid at now.
// A challenge is already invalid at the exact instant it expires.
func (c *EmailChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
