// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package redisstore

import "time"

// The models hide secrets from JSON, so the stored shapes are declared here.
// Field order and types must match the models for the conversions to compile.

type storedUser struct {
	Email         string    `json:"email"`
	PasswordHash  string    `json:"password_hash"`
	MFAEnabled    bool      `json:"mfa_enabled"`
	MFASecret     *string   `json:"mfa_secret,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type storedPending struct {
	Email     string    `json:"email"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"created_at"`
}

type storedChallenge struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
