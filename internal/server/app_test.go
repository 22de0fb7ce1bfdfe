// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/oliverandrich/go-mfa-login/internal/config"
	"codeberg.org/oliverandrich/go-mfa-login/internal/i18n"
	"codeberg.org/oliverandrich/go-mfa-login/internal/outbox"
	"codeberg.org/oliverandrich/go-mfa-login/internal/services/totp"
	"codeberg.org/oliverandrich/go-mfa-login/internal/testutil"
)

// captureSender records delivered messages, or fails them all with err.
type captureSender struct {
	mu   sync.Mutex
	err  error
	sent []outbox.Message
}

func (s *captureSender) Send(_ context.Context, msg outbox.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

// waitForCode waits for the next mail to "to" and returns its code.
func (s *captureSender) waitForCode(t *testing.T, to string, after int) string {
	t.Helper()
	var code string
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		n := 0
		for _, msg := range s.sent {
			if msg.To != to {
				continue
			}
			n++
			if n > after {
				code = msg.Text[strings.LastIndex(msg.Text, " ")+1:]
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	return code
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:        "localhost",
			Port:        8080,
			BaseURL:     "http://localhost:8080",
			MaxBodySize: 1,
			CORSOrigin:  "http://127.0.0.1:5500",
		},
		Database: config.DatabaseConfig{DSN: ":memory:"},
		Store:    config.StoreConfig{Backend: BackendMemory},
		Session:  config.SessionConfig{CookieName: "_session", MaxAge: 3600},
		TOTP:     config.TOTPConfig{Issuer: "SecureApp Inc"},
	}
}

type testApp struct {
	*App
	clock  clockwork.FakeClock
	sender *captureSender
}

func newTestApp(t *testing.T, cfg *config.Config) *testApp {
	t.Helper()
	require.NoError(t, i18n.Init())

	ta := &testApp{
		clock:  clockwork.NewFakeClockAt(testutil.Epoch),
		sender: &captureSender{},
	}
	app, err := New(context.Background(), cfg, WithClock(ta.clock), WithSender(ta.sender))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	ta.App = app
	return ta
}

func (ta *testApp) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ta.Echo.ServeHTTP(rec, req)
	return rec
}

func (ta *testApp) totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.NewProvider().Code(secret, ta.clock.Now())
	require.NoError(t, err)
	return code
}

func TestApp_LoginFlow(t *testing.T) {
	ta := newTestApp(t, testConfig())

	rec := ta.do(t, http.MethodPost, "/register", `{"email":"a@example.com","password":"hunter2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reg struct {
		Success      bool   `json:"success"`
		QRCodeURL    string `json:"qrCodeUrl"`
		ManualSecret string `json:"manualSecret"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.True(t, reg.Success)
	assert.True(t, strings.HasPrefix(reg.QRCodeURL, "data:image/png;base64,"))

	rec = ta.do(t, http.MethodPost, "/verify-mfa-setup",
		`{"email":"a@example.com","mfaCode":"`+ta.totpCode(t, reg.ManualSecret)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	emailCode := ta.sender.waitForCode(t, "a@example.com", 0)

	// Login without the email code is rejected.
	rec = ta.do(t, http.MethodPost, "/login",
		`{"email":"a@example.com","password":"hunter2","mfaCode":"`+ta.totpCode(t, reg.ManualSecret)+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid email verification code"}`, rec.Body.String())

	rec = ta.do(t, http.MethodPost, "/login",
		`{"email":"a@example.com","password":"hunter2","mfaCode":"`+ta.totpCode(t, reg.ManualSecret)+`","emailCode":"`+emailCode+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	rec = ta.do(t, http.MethodGet, "/me", "", cookies[0])
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"email":"a@example.com"}`, rec.Body.String())

	// Verified addresses no longer need an email code.
	rec = ta.do(t, http.MethodPost, "/login",
		`{"email":"a@example.com","password":"hunter2","mfaCode":"`+ta.totpCode(t, reg.ManualSecret)+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ta.do(t, http.MethodPost, "/logout", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApp_VerificationEmailFlow(t *testing.T) {
	ta := newTestApp(t, testConfig())

	rec := ta.do(t, http.MethodPost, "/send-verification-email", `{"email":"b@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	code := ta.sender.waitForCode(t, "b@example.com", 0)

	rec = ta.do(t, http.MethodPost, "/verify-email", `{"email":"b@example.com","code":"`+code+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The code is consumed.
	rec = ta.do(t, http.MethodPost, "/verify-email", `{"email":"b@example.com","code":"`+code+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid or expired code"}`, rec.Body.String())
}

func TestApp_GermanErrors(t *testing.T) {
	ta := newTestApp(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"x@example.com","password":"p"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	rec := httptest.NewRecorder()
	ta.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Ungültige Zugangsdaten"}`, rec.Body.String())
}

func TestApp_PasswordPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.Security.PasswordPolicy = true
	ta := newTestApp(t, cfg)

	rec := ta.do(t, http.MethodPost, "/register", `{"email":"a@example.com","password":"password123"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Password does not meet requirements", body.Error)
	assert.Contains(t, body.Details, "min_length")
	assert.Contains(t, body.Details, "common_password")
}

func TestApp_RegisterRejectsOverlongPassword(t *testing.T) {
	ta := newTestApp(t, testConfig())

	long := strings.Repeat("x", 73)
	rec := ta.do(t, http.MethodPost, "/register", `{"email":"a@example.com","password":"`+long+`"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Details []string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"max_length"}, body.Details)

	rec = ta.do(t, http.MethodPost, "/register", `{"email":"a@example.com","password":"`+long[:72]+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApp_HealthAndMetrics(t *testing.T) {
	ta := newTestApp(t, testConfig())

	rec := ta.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	ta.do(t, http.MethodPost, "/login", `{"email":"x@example.com","password":"p"}`)

	rec = ta.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mfa_login_attempts_total{result="invalid_credentials"} 1`)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestApp_SQLiteRecordsMailFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = BackendSQLite
	ta := newTestApp(t, cfg)
	ta.sender.mu.Lock()
	ta.sender.err = outbox.Permanent(errors.New("mailbox unavailable"))
	ta.sender.mu.Unlock()

	rec := ta.do(t, http.MethodPost, "/send-verification-email", `{"email":"c@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		failures, err := ta.backend.repo.ListMailFailures(context.Background(), "c@example.com")
		return err == nil && len(failures) == 1
	}, 2*time.Second, 10*time.Millisecond)

	failures, err := ta.backend.repo.ListMailFailures(context.Background(), "c@example.com")
	require.NoError(t, err)
	assert.Equal(t, "mailbox unavailable", failures[0].Error)
	assert.Equal(t, "Your Verification Code", failures[0].Subject)
	assert.NotEmpty(t, failures[0].ID)

	rec = ta.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApp_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Store = config.StoreConfig{Backend: BackendRedis, RedisAddr: mr.Addr(), RedisKey: "mfa:"}
	ta := newTestApp(t, cfg)

	rec := ta.do(t, http.MethodPost, "/register", `{"email":"a@example.com","password":"p"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, mr.Exists("mfa:user:a@example.com"))
	assert.True(t, mr.Exists("mfa:pending:a@example.com"))

	rec = ta.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	mr.SetError("LOADING Redis is loading the dataset in memory")
	rec = ta.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNew_BackendErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = "etcd"
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown store backend: etcd")

	cfg.Store = config.StoreConfig{Backend: BackendRedis, RedisAddr: "127.0.0.1:1"}
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestNew_InvalidSessionKey(t *testing.T) {
	cfg := testConfig()
	cfg.Session.HashKey = "tooshort"

	_, err := New(context.Background(), cfg, WithSender(&captureSender{}))

	assert.ErrorContains(t, err, "failed to create session manager")
}
