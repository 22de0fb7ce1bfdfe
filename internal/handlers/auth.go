// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/go-mfa-login/internal/credentials"
	"codeberg.org/oliverandrich/go-mfa-login/internal/metrics"
	"codeberg.org/oliverandrich/go-mfa-login/internal/services/session"
)

// AuthHandlers contains handlers for registration, enrollment, email
// verification and login.
type AuthHandlers struct {
	svc      *credentials.Service
	sessions *session.Manager
	metrics  *metrics.Metrics
}

// NewAuth creates a new AuthHandlers instance. m may be nil.
func NewAuth(svc *credentials.Service, sess *session.Manager, m *metrics.Metrics) *AuthHandlers {
	return &AuthHandlers{
		svc:      svc,
		sessions: sess,
		metrics:  m,
	}
}

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse carries what the user needs to set up their
// authenticator app.
type RegisterResponse struct {
	Success      bool   `json:"success"`
	QRCodeURL    string `json:"qrCodeUrl"`
	ManualSecret string `json:"manualSecret"`
}

// Register creates the account and returns the TOTP provisioning data.
func (h *AuthHandlers) Register(c echo.Context) error {
	var req RegisterRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	if req.Email == "" || req.Password == "" {
		h.metrics.Registration("invalid_request")
		return jsonError(c, http.StatusBadRequest, "error_invalid_request")
	}

	reg, err := h.svc.Register(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.Registration(reason(err))
		return serviceError(c, http.StatusBadRequest, err)
	}

	h.metrics.Registration("success")
	return c.JSON(http.StatusOK, RegisterResponse{
		Success:      true,
		QRCodeURL:    reg.QRCode,
		ManualSecret: reg.Secret,
	})
}

// VerifyMFASetupRequest is the request body for confirming enrollment.
type VerifyMFASetupRequest struct {
	Email   string `json:"email"`
	MFACode string `json:"mfaCode"`
}

// VerifyMFASetup confirms the pending TOTP secret and triggers the first
// email code.
func (h *AuthHandlers) VerifyMFASetup(c echo.Context) error {
	var req VerifyMFASetupRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	if err := h.svc.ConfirmEnrollment(c.Request().Context(), req.Email, req.MFACode); err != nil {
		h.metrics.Enrollment(reason(err))
		return serviceError(c, http.StatusBadRequest, err)
	}

	h.metrics.Enrollment("success")
	return c.JSON(http.StatusOK, success)
}

// SendVerificationEmailRequest is the request body for requesting a code.
type SendVerificationEmailRequest struct {
	Email string `json:"email"`
}

// SendVerificationEmail issues a new email code. The response does not
// reveal whether the address belongs to an account.
func (h *AuthHandlers) SendVerificationEmail(c echo.Context) error {
	var req SendVerificationEmailRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	if req.Email == "" {
		return jsonError(c, http.StatusBadRequest, "error_invalid_request")
	}

	if err := h.svc.RequestEmailChallenge(c.Request().Context(), req.Email); err != nil {
		return serviceError(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, success)
}

// VerifyEmailRequest is the request body for confirming an email code.
type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyEmail consumes an email code and marks the address as verified.
func (h *AuthHandlers) VerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	if err := h.svc.VerifyEmailChallenge(c.Request().Context(), req.Email, req.Code); err != nil {
		h.metrics.EmailVerification(reason(err))
		return serviceError(c, http.StatusBadRequest, err)
	}

	h.metrics.EmailVerification("success")
	return c.JSON(http.StatusOK, success)
}

// LoginRequest is the request body for login. The codes are only required
// when the account needs them.
type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	MFACode   string `json:"mfaCode"`
	EmailCode string `json:"emailCode"`
}

// Login authenticates the user and sets the session cookie.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	identity, err := h.svc.Login(c.Request().Context(), credentials.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		MFACode:   req.MFACode,
		EmailCode: req.EmailCode,
	})
	if err != nil {
		h.metrics.Login(reason(err))
		return serviceError(c, http.StatusUnauthorized, err)
	}

	cookie, err := h.sessions.Create(identity.Email)
	if err != nil {
		slog.Error("session_create_failed", "email", identity.Email, "error", err)
		return jsonError(c, http.StatusInternalServerError, "error_internal")
	}
	c.SetCookie(cookie)

	h.metrics.Login("success")
	return c.JSON(http.StatusOK, success)
}

// Logout clears the session cookie.
func (h *AuthHandlers) Logout(c echo.Context) error {
	c.SetCookie(h.sessions.Clear())
	return c.JSON(http.StatusOK, success)
}

// Me returns the email of the logged in user.
func (h *AuthHandlers) Me(c echo.Context) error {
	data, err := h.sessions.Parse(c.Request())
	if err != nil {
		return err
	}
	if data == nil {
		return jsonError(c, http.StatusUnauthorized, "error_not_authenticated")
	}
	return c.JSON(http.StatusOK, credentials.SessionIdentity{Email: data.Email})
}
