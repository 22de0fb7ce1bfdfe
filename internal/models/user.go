// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"
)

// User is the credential record of one account, keyed by email.
// MFASecret is only set once enrollment has been confirmed.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	Email         string    `db:"email" json:"email"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	MFAEnabled    bool      `db:"mfa_enabled" json:"mfa_enabled"`
	MFASecret     *string   `db:"mfa_secret" json:"-"`
	EmailVerified bool      `db:"email_verified" json:"email_verified"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// HasMFASecret reports whether a confirmed TOTP secret is stored.
func (u *User) HasMFASecret() bool {
	return u.MFASecret != nil && *u.MFASecret != ""
}
