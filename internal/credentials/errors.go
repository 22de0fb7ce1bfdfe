// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credentials

import "errors"

// Store errors.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("user already exists")
)

// Enrollment and challenge errors.
var (
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrNoPendingEnrollment = errors.New("no MFA setup in progress")
	ErrInvalidCode         = errors.New("invalid MFA code")
	ErrNoActiveChallenge   = errors.New("no active verification code")
	ErrExpired             = errors.New("verification code expired")
	ErrMismatch            = errors.New("invalid verification code")
)

// Login errors. ErrInvalidCredentials covers both unknown users and wrong
// passwords.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidMFACode     = errors.New("invalid MFA code")
	ErrInvalidEmailCode   = errors.New("invalid email verification code")
)

// ErrWeakPassword is wrapped by password policy rejections.
var ErrWeakPassword = errors.New("password does not meet requirements")
