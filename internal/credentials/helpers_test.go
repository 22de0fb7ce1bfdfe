// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credentials_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-mfa-login/internal/credentials"
	"codeberg.org/oliverandrich/go-mfa-login/internal/models"
	"codeberg.org/oliverandrich/go-mfa-login/internal/services/totp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// plainPasswords stores passwords with a prefix and counts comparisons.
type plainPasswords struct {
	mu       sync.Mutex
	verifies int
}

func (p *plainPasswords) HashPassword(password string) (string, error) {
	return "plain:" + password, nil
}

func (p *plainPasswords) VerifyPassword(stored, supplied string) bool {
	p.mu.Lock()
	p.verifies++
	p.mu.Unlock()
	return stored != "" && stored == "plain:"+supplied
}

type sentMail struct {
	To, Subject, Text, HTML string
}

// recordingMailer keeps every message it was handed.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) SendMail(_ context.Context, to, subject, text, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Text: text, HTML: html})
	return nil
}

func (m *recordingMailer) messages() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

// lastCode extracts the code from the most recent message.
func (m *recordingMailer) lastCode(t *testing.T) string {
	t.Helper()
	msgs := m.messages()
	require.NotEmpty(t, msgs, "no mail sent")
	text := msgs[len(msgs)-1].Text
	idx := strings.LastIndex(text, ": ")
	require.GreaterOrEqual(t, idx, 0)
	return text[idx+2:]
}

type staticImages struct{}

func (staticImages) RenderProvisioningImage(uri string) (string, error) {
	return "data:image/png;base64,qr(" + uri + ")", nil
}

// countingMFA wraps a verifier and counts invocations.
type countingMFA struct {
	inner credentials.MFAVerifier
	mu    sync.Mutex
	calls int
}

func (c *countingMFA) VerifyLogin(ctx context.Context, email, code string) bool {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.VerifyLogin(ctx, email, code)
}

func (c *countingMFA) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// failingStore wraps a store and fails selected operations.
type failingStore struct {
	credentials.Store
	failPutChallenge bool
	failGetUser      bool
	failPutPending   bool
}

var errStoreDown = errors.New("store down")

func (s *failingStore) PutChallenge(ctx context.Context, c *models.EmailChallenge) error {
	if s.failPutChallenge {
		return errStoreDown
	}
	return s.Store.PutChallenge(ctx, c)
}

func (s *failingStore) PutPendingSecret(ctx context.Context, p *models.PendingSecret) error {
	if s.failPutPending {
		return errStoreDown
	}
	return s.Store.PutPendingSecret(ctx, p)
}

func (s *failingStore) GetUser(ctx context.Context, email string) (*models.User, error) {
	if s.failGetUser {
		return nil, errStoreDown
	}
	return s.Store.GetUser(ctx, email)
}

// flakyTOTP fails secret generation while fail is set.
type flakyTOTP struct {
	credentials.TOTP
	fail bool
}

var errNoEntropy = errors.New("no entropy")

func (f *flakyTOTP) GenerateSecret(accountLabel, issuerLabel string) (string, string, error) {
	if f.fail {
		return "", "", errNoEntropy
	}
	return f.TOTP.GenerateSecret(accountLabel, issuerLabel)
}

type env struct {
	store     *credentials.MemoryStore
	totp      *totp.Provider
	passwords *plainPasswords
	mailer    *recordingMailer
	clock     clockwork.FakeClock
	svc       *credentials.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		store:     credentials.NewMemoryStore(),
		totp:      totp.NewProvider(),
		passwords: &plainPasswords{},
		mailer:    &recordingMailer{},
		clock:     clockwork.NewFakeClockAt(epoch),
	}

	svc, err := credentials.New(credentials.Deps{
		Store:     e.store,
		TOTP:      e.totp,
		Images:    staticImages{},
		Passwords: e.passwords,
		Mailer:    e.mailer,
		Clock:     e.clock,
		Logger:    discardLogger(),
	}, credentials.Options{Issuer: "SecureApp Inc"})
	require.NoError(t, err)
	e.svc = svc

	return e
}

// code returns the current TOTP code for secret on the fake clock.
func (e *env) code(t *testing.T, secret string) string {
	t.Helper()
	c, err := e.totp.Code(secret, e.clock.Now())
	require.NoError(t, err)
	return c
}

// enroll registers email and confirms its TOTP secret.
func (e *env) enroll(t *testing.T, email, password string) string {
	t.Helper()
	ctx := context.Background()

	reg, err := e.svc.Register(ctx, email, password)
	require.NoError(t, err)
	require.NoError(t, e.svc.ConfirmEnrollment(ctx, email, e.code(t, reg.Secret)))
	return reg.Secret
}
