// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/go-mfa-login/internal/credentials"
	"codeberg.org/oliverandrich/go-mfa-login/internal/i18n"
	"codeberg.org/oliverandrich/go-mfa-login/internal/services/password"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// messageIDs maps service errors to translation IDs.
var messageIDs = []struct {
	err error
	id  string
}{
	{credentials.ErrInvalidEmail, "error_invalid_email"},
	{credentials.ErrWeakPassword, "error_weak_password"},
	{credentials.ErrConflict, "error_user_exists"},
	{credentials.ErrNoPendingEnrollment, "error_no_pending_enrollment"},
	{credentials.ErrInvalidCode, "error_invalid_mfa_code"},
	{credentials.ErrNoActiveChallenge, "error_code_invalid_or_expired"},
	{credentials.ErrExpired, "error_code_invalid_or_expired"},
	{credentials.ErrMismatch, "error_code_invalid"},
	{credentials.ErrInvalidCredentials, "error_invalid_credentials"},
	{credentials.ErrInvalidMFACode, "error_invalid_mfa_code"},
	{credentials.ErrInvalidEmailCode, "error_invalid_email_code"},
}

// reason returns a stable label for err, used in logs and metrics.
func reason(err error) string {
	for _, m := range messageIDs {
		if errors.Is(err, m.err) {
			return m.id[len("error_"):]
		}
	}
	return "internal"
}

// jsonError writes a translated error message.
func jsonError(c echo.Context, status int, messageID string) error {
	return c.JSON(status, errorResponse{Error: i18n.T(c.Request().Context(), messageID)})
}

// serviceError writes err with status when it is a known user-facing error,
// and a 500 otherwise.
func serviceError(c echo.Context, status int, err error) error {
	for _, m := range messageIDs {
		if !errors.Is(err, m.err) {
			continue
		}
		resp := errorResponse{Error: i18n.T(c.Request().Context(), m.id)}
		var perr *password.PolicyError
		if errors.As(err, &perr) {
			resp.Details = perr.Codes()
		}
		return c.JSON(status, resp)
	}

	slog.Error("request_failed", "path", c.Path(), "error", err)
	return jsonError(c, http.StatusInternalServerError, "error_internal")
}
