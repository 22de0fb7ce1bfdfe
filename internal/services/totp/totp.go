// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package totp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the length of one TOTP time step.
	Period = 30
	// Skew is the number of steps accepted on either side of the current one.
	Skew = 1
	// SecretSize is the number of random bytes in a generated secret.
	SecretSize = 32
	// ImageSize is the edge length of rendered QR codes in pixels.
	ImageSize = 200
)

// Provider generates, validates and renders TOTP secrets.
type Provider struct {
	opts totp.ValidateOpts
}

// NewProvider creates a provider using SHA1, six digits and 30 second steps,
// which is what common authenticator apps expect.
func NewProvider() *Provider {
	return &Provider{
		opts: totp.ValidateOpts{
			Period:    Period,
			Skew:      Skew,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		},
	}
}

// GenerateSecret creates a new base32 secret and its otpauth:// URI.
func (p *Provider) GenerateSecret(accountLabel, issuerLabel string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuerLabel,
		AccountName: accountLabel,
		Period:      p.opts.Period,
		SecretSize:  SecretSize,
		Digits:      p.opts.Digits,
		Algorithm:   p.opts.Algorithm,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate TOTP secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// Validate reports whether code is valid for secret at the given time,
// accepting the previous and next time step as well.
func (p *Provider) Validate(code, secret string, at time.Time) bool {
	if code == "" || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at, p.opts)
	if err != nil {
		return false
	}
	return ok
}

// Code returns the code for secret at the given time.
func (p *Provider) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, p.opts)
}

// RenderProvisioningImage renders the URI as a PNG QR code data URI.
func (p *Provider) RenderProvisioningImage(provisioningURI string) (string, error) {
	key, err := otp.NewKeyFromURL(provisioningURI)
	if err != nil {
		return "", fmt.Errorf("parse provisioning URI: %w", err)
	}

	img, err := key.Image(ImageSize, ImageSize)
	if err != nil {
		return "", fmt.Errorf("render QR code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
