// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// PendingSecret is a TOTP secret that has been handed out but not yet confirmed.
type PendingSecret struct {
	Email     string    `db:"email" json:"email"`
	Secret    string    `db:"secret" json:"-"` // base32
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
