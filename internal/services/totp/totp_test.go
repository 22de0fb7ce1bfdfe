// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package totp_test

import (
	"strings"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-mfa-login/internal/services/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	p := totp.NewProvider()

	secret, uri, err := p.GenerateSecret("a@example.com", "SecureApp Inc")

	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/"))
	assert.Contains(t, uri, "secret="+secret)
	assert.Contains(t, uri, "issuer=SecureApp")
}

func TestGenerateSecret_Unique(t *testing.T) {
	p := totp.NewProvider()

	s1, _, err := p.GenerateSecret("a@example.com", "SecureApp Inc")
	require.NoError(t, err)
	s2, _, err := p.GenerateSecret("a@example.com", "SecureApp Inc")
	require.NoError(t, err)

	assert.NotEqual(t, s1, s2)
}

func TestValidate_Window(t *testing.T) {
	p := totp.NewProvider()
	secret, _, err := p.GenerateSecret("a@example.com", "SecureApp Inc")
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)
	step := time.Duration(totp.Period) * time.Second

	tests := []struct {
		name   string
		offset time.Duration
		valid  bool
	}{
		{"current step", 0, true},
		{"previous step", -step, true},
		{"next step", step, true},
		{"two steps back", -2 * step, false},
		{"two steps ahead", 2 * step, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := p.Code(secret, now.Add(tt.offset))
			require.NoError(t, err)

			assert.Equal(t, tt.valid, p.Validate(code, secret, now))
		})
	}
}

func TestValidate_RejectsEmptyAndGarbage(t *testing.T) {
	p := totp.NewProvider()
	secret, _, err := p.GenerateSecret("a@example.com", "SecureApp Inc")
	require.NoError(t, err)
	now := time.Now()

	assert.False(t, p.Validate("", secret, now))
	assert.False(t, p.Validate("123456", "", now))
	assert.False(t, p.Validate("abcdef", secret, now))
	assert.False(t, p.Validate("123456", "not base32!", now))
}

func TestRenderProvisioningImage(t *testing.T) {
	p := totp.NewProvider()
	_, uri, err := p.GenerateSecret("a@example.com", "SecureApp Inc")
	require.NoError(t, err)

	img, err := p.RenderProvisioningImage(uri)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(img, "data:image/png;base64,"))
	assert.Greater(t, len(img), 100)
}

func TestRenderProvisioningImage_InvalidURI(t *testing.T) {
	p := totp.NewProvider()

	_, err := p.RenderProvisioningImage("://not a uri")

	assert.Error(t, err)
}
