// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// MailFailure records a mail that could not be delivered after all retries.
type MailFailure struct { //nolint:govet // fieldalignment: readability over optimization
	ID        string    `db:"id" json:"id"`
	Recipient string    `db:"recipient" json:"recipient"`
	Subject   string    `db:"subject" json:"subject"`
	Error     string    `db:"error" json:"error"`
	Attempts  int       `db:"attempts" json:"attempts"`
	FailedAt  time.Time `db:"failed_at" json:"failed_at"`
}
