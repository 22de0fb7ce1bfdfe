// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-mfa-login/internal/credentials"
	"codeberg.org/oliverandrich/go-mfa-login/internal/models"
	"codeberg.org/oliverandrich/go-mfa-login/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, "a@example.com", "hash", testutil.Epoch)

	require.NoError(t, err)
	assert.Equal(t, "a@example.com", user.Email)
	assert.False(t, user.MFAEnabled)
	assert.False(t, user.EmailVerified)

	stored, err := repo.GetUser(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash", stored.PasswordHash)
	assert.Nil(t, stored.MFASecret)
	assert.True(t, testutil.Epoch.Equal(stored.CreatedAt))
}

func TestCreateUser_Conflict(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	testutil.NewTestUser(t, repo, "a@example.com")

	_, err := repo.CreateUser(ctx, "a@example.com", "other", testutil.Epoch)
	assert.ErrorIs(t, err, credentials.ErrConflict)

	stored, err := repo.GetUser(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "test-hash", stored.PasswordHash)
}

func TestCreateUser_CaseSensitive(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	testutil.NewTestUser(t, repo, "a@example.com")
	testutil.NewTestUser(t, repo, "A@example.com")

	count, err := repo.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestGetUser_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	_, err := repo.GetUser(context.Background(), "missing@example.com")

	assert.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestUpdateMFA(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	testutil.NewTestUser(t, repo, "a@example.com")

	require.NoError(t, repo.UpdateMFA(ctx, "a@example.com", "JBSWY3DPEHPK3PXP", testutil.Epoch.Add(time.Minute)))

	user, err := repo.GetUser(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, user.MFAEnabled)
	require.True(t, user.HasMFASecret())
	assert.Equal(t, "JBSWY3DPEHPK3PXP", *user.MFASecret)
	assert.True(t, testutil.Epoch.Add(time.Minute).Equal(user.UpdatedAt))
}

func TestUpdateMFA_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	err := repo.UpdateMFA(context.Background(), "missing@example.com", "S", testutil.Epoch)

	assert.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestSetEmailVerified(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	testutil.NewTestUser(t, repo, "a@example.com")

	require.NoError(t, repo.SetEmailVerified(ctx, "a@example.com", testutil.Epoch))
	require.NoError(t, repo.SetEmailVerified(ctx, "a@example.com", testutil.Epoch))

	user, err := repo.GetUser(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)

	err = repo.SetEmailVerified(ctx, "missing@example.com", testutil.Epoch)
	assert.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestPendingSecrets(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := repo.GetPendingSecret(ctx, "a@example.com")
	require.ErrorIs(t, err, credentials.ErrNotFound)

	require.NoError(t, repo.PutPendingSecret(ctx, &models.PendingSecret{Email: "a@example.com", Secret: "ONE", CreatedAt: testutil.Epoch}))
	require.NoError(t, repo.PutPendingSecret(ctx, &models.PendingSecret{Email: "a@example.com", Secret: "TWO", CreatedAt: testutil.Epoch}))

	p, err := repo.GetPendingSecret(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "TWO", p.Secret)

	require.NoError(t, repo.DeletePendingSecret(ctx, "a@example.com"))
	_, err = repo.GetPendingSecret(ctx, "a@example.com")
	assert.ErrorIs(t, err, credentials.ErrNotFound)

	// Deleting a missing entry is not an error.
	assert.NoError(t, repo.DeletePendingSecret(ctx, "a@example.com"))
}

func TestChallenges(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	expires := testutil.Epoch.Add(credentials.ChallengeTTL)

	require.NoError(t, repo.PutChallenge(ctx, &models.EmailChallenge{
		Email: "a@example.com", Code: "123456", ExpiresAt: expires, CreatedAt: testutil.Epoch,
	}))
	require.NoError(t, repo.PutChallenge(ctx, &models.EmailChallenge{
		Email: "a@example.com", Code: "654321", ExpiresAt: expires, CreatedAt: testutil.Epoch,
	}))

	c, err := repo.GetChallenge(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "654321", c.Code)
	assert.True(t, expires.Equal(c.ExpiresAt))
	assert.False(t, c.Expired(expires.Add(-time.Second)))
	assert.True(t, c.Expired(expires))

	require.NoError(t, repo.DeleteChallenge(ctx, "a@example.com"))
	_, err = repo.GetChallenge(ctx, "a@example.com")
	assert.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestMailFailures(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordMailFailure(ctx, &models.MailFailure{
		ID: "1", Recipient: "a@example.com", Subject: "Code", Error: "smtp down", Attempts: 3, FailedAt: testutil.Epoch,
	}))
	require.NoError(t, repo.RecordMailFailure(ctx, &models.MailFailure{
		ID: "2", Recipient: "a@example.com", Subject: "Code", Error: "timeout", Attempts: 3, FailedAt: testutil.Epoch.Add(time.Minute),
	}))
	require.NoError(t, repo.RecordMailFailure(ctx, &models.MailFailure{
		ID: "3", Recipient: "b@example.com", Subject: "Code", Error: "x", Attempts: 1, FailedAt: testutil.Epoch,
	}))

	failures, err := repo.ListMailFailures(ctx, "a@example.com")

	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "2", failures[0].ID)
	assert.Equal(t, "timeout", failures[0].Error)
	assert.Equal(t, 3, failures[1].Attempts)
}

func TestRepository_ServesCredentials(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := repo.CreateUser(ctx, "a@example.com", "hash", testutil.Epoch)
	require.NoError(t, err)

	var store credentials.Store = repo
	user, err := store.GetUser(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", user.Email)
}

func TestPing(t *testing.T) {
	db, repo := testutil.NewTestDB(t)

	require.NoError(t, repo.Ping(context.Background()))

	require.NoError(t, db.Close())
	assert.Error(t, repo.Ping(context.Background()))
}
