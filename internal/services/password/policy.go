// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package password

import (
	"bufio"
	"embed"
	"fmt"
	"strings"
	"unicode"

	"codeberg.org/oliverandrich/go-mfa-login/internal/credentials"
)

//go:embed common_passwords.txt
var commonPasswordsFS embed.FS

var commonPasswords map[string]struct{}

func init() {
	commonPasswords = make(map[string]struct{})
	file, err := commonPasswordsFS.Open("common_passwords.txt")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		password := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if password != "" {
			commonPasswords[password] = struct{}{}
		}
	}
}

// Violation is a single failed policy rule. Code doubles as the message id
// for translated error texts.
type Violation struct {
	Code    string
	Message string
}

// PolicyError lists every rule a password broke. It matches
// credentials.ErrWeakPassword with errors.Is.
type PolicyError struct {
	Violations []Violation
}

func (e *PolicyError) Error() string {
	if len(e.Violations) == 0 {
		return credentials.ErrWeakPassword.Error()
	}
	return e.Violations[0].Message
}

func (e *PolicyError) Unwrap() error {
	return credentials.ErrWeakPassword
}

// Codes returns the codes of all violations.
func (e *PolicyError) Codes() []string {
	codes := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		codes[i] = v.Code
	}
	return codes
}

// Policy rejects short, numeric, common and email-like passwords.
type Policy struct {
	MinLength            int
	CheckCommonPasswords bool
	CheckEmailSimilarity bool
}

// DefaultPolicy returns the policy used when registration hardening is on.
func DefaultPolicy() *Policy {
	return &Policy{
		MinLength:            12,
		CheckCommonPasswords: true,
		CheckEmailSimilarity: true,
	}
}

// Check returns a *PolicyError when password breaks any rule.
func (p *Policy) Check(password, email string) error {
	var violations []Violation

	if len([]rune(password)) < p.MinLength {
		violations = append(violations, Violation{
			Code:    "min_length",
			Message: fmt.Sprintf("Password must be at least %d characters long.", p.MinLength),
		})
	}

	if isEntirelyNumeric(password) {
		violations = append(violations, Violation{
			Code:    "entirely_numeric",
			Message: "Password cannot be entirely numeric.",
		})
	}

	if p.CheckCommonPasswords && isCommonPassword(password) {
		violations = append(violations, Violation{
			Code:    "common_password",
			Message: "This password is too common.",
		})
	}

	if p.CheckEmailSimilarity && isSimilarToEmail(password, email) {
		violations = append(violations, Violation{
			Code:    "too_similar",
			Message: "Password is too similar to your email address.",
		})
	}

	if len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}
	return nil
}

func isEntirelyNumeric(password string) bool {
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(password) > 0
}

func isCommonPassword(password string) bool {
	_, exists := commonPasswords[strings.ToLower(password)]
	return exists
}

// isSimilarToEmail compares against the full address and its local part.
func isSimilarToEmail(password, email string) bool {
	if email == "" || password == "" {
		return false
	}
	pw := strings.ToLower(password)

	candidates := []string{strings.ToLower(email)}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		candidates = append(candidates, strings.ToLower(local))
	}

	for _, c := range candidates {
		if strings.Contains(pw, c) || strings.Contains(c, pw) {
			return true
		}
		if similarity(pw, c) > 0.7 {
			return true
		}
	}
	return false
}

func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	return float64(longestCommonSubsequence(a, b)) / float64(max(len(a), len(b)))
}

func longestCommonSubsequence(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
