// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// success is the body of every successful mutation.
var success = map[string]bool{"success": true}

// bind decodes the request body into req and writes a 400 when it cannot.
func bind(c echo.Context, req any) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, jsonError(c, http.StatusBadRequest, "error_invalid_request")
	}
	return true, nil
}
