// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credentials_test

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-mfa-login/internal/credentials"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChallenges(t *testing.T) (*credentials.Challenges, *credentials.MemoryStore, *recordingMailer, clockwork.FakeClock) {
	t.Helper()
	store := credentials.NewMemoryStore()
	mailer := &recordingMailer{}
	clock := clockwork.NewFakeClockAt(epoch)
	return credentials.NewChallenges(store, mailer, nil, clock, discardLogger()), store, mailer, clock
}

var sixDigits = regexp.MustCompile(`^[1-9][0-9]{5}$`)

func TestChallenges_IssueCode(t *testing.T) {
	challenges, store, _, _ := newChallenges(t)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		ch, err := challenges.Issue(ctx, "a@example.com")
		require.NoError(t, err)

		assert.Regexp(t, sixDigits, ch.Code)
		n, err := strconv.Atoi(ch.Code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
		assert.Equal(t, epoch.Add(credentials.ChallengeTTL), ch.ExpiresAt)

		stored, err := store.GetChallenge(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, ch.Code, stored.Code)
	}
}

func TestChallenges_IssueDoesNotSend(t *testing.T) {
	challenges, _, mailer, _ := newChallenges(t)

	_, err := challenges.Issue(context.Background(), "a@example.com")
	require.NoError(t, err)

	assert.Empty(t, mailer.messages())
}

func TestChallenges_Deliver(t *testing.T) {
	challenges, _, mailer, _ := newChallenges(t)
	ctx := context.Background()

	ch, err := challenges.Issue(ctx, "a@example.com")
	require.NoError(t, err)
	challenges.Deliver(ctx, ch)

	msgs := mailer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "a@example.com", msgs[0].To)
	assert.Equal(t, "Your Verification Code", msgs[0].Subject)
	assert.Equal(t, "Your verification code is: "+ch.Code, msgs[0].Text)
	assert.Contains(t, msgs[0].HTML, "<strong>"+ch.Code+"</strong>")
}

func TestChallenges_DeliverSwallowsMailErrors(t *testing.T) {
	challenges, _, mailer, _ := newChallenges(t)
	mailer.err = errors.New("smtp down")
	ctx := context.Background()

	ch, err := challenges.Issue(ctx, "a@example.com")
	require.NoError(t, err)

	assert.NotPanics(t, func() { challenges.Deliver(ctx, ch) })
}

func TestChallenges_VerifyConsumes(t *testing.T) {
	challenges, _, _, _ := newChallenges(t)
	ctx := context.Background()

	ch, err := challenges.Issue(ctx, "a@example.com")
	require.NoError(t, err)

	require.NoError(t, challenges.Verify(ctx, "a@example.com", ch.Code))
	assert.ErrorIs(t, challenges.Verify(ctx, "a@example.com", ch.Code), credentials.ErrNoActiveChallenge)
}

func TestChallenges_VerifyWithoutChallenge(t *testing.T) {
	challenges, _, _, _ := newChallenges(t)

	err := challenges.Verify(context.Background(), "a@example.com", "123456")

	assert.ErrorIs(t, err, credentials.ErrNoActiveChallenge)
}

func TestChallenges_Mismatch(t *testing.T) {
	challenges, _, _, _ := newChallenges(t)
	ctx := context.Background()

	ch, err := challenges.Issue(ctx, "a@example.com")
	require.NoError(t, err)

	wrong := "100000"
	if ch.Code == wrong {
		wrong = "100001"
	}
	assert.ErrorIs(t, challenges.Verify(ctx, "a@example.com", wrong), credentials.ErrMismatch)
	assert.ErrorIs(t, challenges.Verify(ctx, "a@example.com", ""), credentials.ErrMismatch)

	// A mismatch does not consume the challenge.
	require.NoError(t, challenges.Verify(ctx, "a@example.com", ch.Code))
}

func TestChallenges_ExpiryBeatsMismatch(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		wantErr error
	}{
		{"just before expiry", credentials.ChallengeTTL - time.Second, nil},
		{"exactly at expiry", credentials.ChallengeTTL, credentials.ErrExpired},
		{"after expiry", credentials.ChallengeTTL + time.Minute, credentials.ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			challenges, _, _, clock := newChallenges(t)
			ctx := context.Background()

			ch, err := challenges.Issue(ctx, "a@example.com")
			require.NoError(t, err)
			clock.Advance(tt.advance)

			err = challenges.Verify(ctx, "a@example.com", ch.Code)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NotErrorIs(t, err, credentials.ErrMismatch)
		})
	}
}

func TestChallenges_ExpiredWithWrongCode(t *testing.T) {
	challenges, _, _, clock := newChallenges(t)
	ctx := context.Background()

	_, err := challenges.Issue(ctx, "a@example.com")
	require.NoError(t, err)
	clock.Advance(credentials.ChallengeTTL + time.Second)

	assert.ErrorIs(t, challenges.Verify(ctx, "a@example.com", "not-it"), credentials.ErrExpired)
}

func TestChallenges_ReissueReplaces(t *testing.T) {
	challenges, _, _, clock := newChallenges(t)
	ctx := context.Background()

	first, err := challenges.Issue(ctx, "a@example.com")
	require.NoError(t, err)
	clock.Advance(9 * time.Minute)
	second, err := challenges.Issue(ctx, "a@example.com")
	require.NoError(t, err)

	// The second code gets its own full window.
	clock.Advance(5 * time.Minute)
	if first.Code != second.Code {
		assert.ErrorIs(t, challenges.Verify(ctx, "a@example.com", first.Code), credentials.ErrMismatch)
	}
	assert.NoError(t, challenges.Verify(ctx, "a@example.com", second.Code))
}

func TestChallenges_MatchDoesNotConsume(t *testing.T) {
	challenges, _, _, _ := newChallenges(t)
	ctx := context.Background()

	ch, err := challenges.Issue(ctx, "a@example.com")
	require.NoError(t, err)

	require.NoError(t, challenges.Match(ctx, "a@example.com", ch.Code))
	require.NoError(t, challenges.Match(ctx, "a@example.com", ch.Code))
	assert.NoError(t, challenges.Verify(ctx, "a@example.com", ch.Code))
}
