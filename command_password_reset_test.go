package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializePasswordResetHandler(t *testing.T) {
	repo := newTestRepo(t)
	mailer := &RecorderMailer{}
	links := NewLinkBuilder("http://localhost:4000")

	now := time.Now()
	handler := NewInitializePasswordResetHandler(repo, mailer, links).
		WithClock(func() time.Time { return now })

	seedUser(t, repo, &User{Name: "Ann", Email: "ann@example.com", IsVerified: true})

	var response *InitializePasswordResetResponse
	err := handler.Execute(context.Background(), InitializePasswordResetMessage{
		Email:      "Ann@Example.com",
		OnResponse: func(r *InitializePasswordResetResponse) { response = r },
	})
	require.NoError(t, err)
	require.NotNil(t, response)
	assert.Equal(t, now.Add(10*time.Minute), response.Expiry)

	require.NotNil(t, response.Account.PasswordResetToken)
	require.NotNil(t, response.Account.PasswordResetExpiry)

	msg, ok := mailer.Last()
	require.True(t, ok)
	assert.Equal(t, "ann@example.com", msg.To)
	assert.Equal(t, SubjectResetPassword, msg.Subject)

	token := tokenFromMailBody(t, msg.Body, "/reset-password/")
	assert.Equal(t, *response.Account.PasswordResetToken, token)

	t.Run("a second request supersedes the first token", func(t *testing.T) {
		err := handler.Execute(context.Background(), InitializePasswordResetMessage{Email: "ann@example.com"})
		require.NoError(t, err)

		_, err = repo.Users().GetByResetToken(context.Background(), token)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestInitializePasswordResetHandlerUnknownEmail(t *testing.T) {
	repo := newTestRepo(t)
	mailer := &RecorderMailer{}
	handler := NewInitializePasswordResetHandler(repo, mailer, NewLinkBuilder("http://localhost:4000"))

	err := handler.Execute(context.Background(), InitializePasswordResetMessage{Email: "nobody@example.com"})
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Empty(t, mailer.Messages)
}

func TestFinalizePasswordResetHandler(t *testing.T) {
	repo := newTestRepo(t)
	handler := NewFinalizePasswordResetHandler(repo)

	token := "reset-token-1"
	expiry := time.Now().Add(10 * time.Minute)
	seedUser(t, repo, &User{
		Name:                "Ann",
		Email:               "ann@example.com",
		IsVerified:          true,
		PasswordResetToken:  &token,
		PasswordResetExpiry: &expiry,
	})

	var response *FinalizePasswordResetResponse
	err := handler.Execute(context.Background(), FinalizePasswordResetMessage{
		Token:           token,
		Password:        "n3w-s3cret",
		ConfirmPassword: "n3w-s3cret",
		OnResponse:      func(r *FinalizePasswordResetResponse) { response = r },
	})
	require.NoError(t, err)
	require.NotNil(t, response)

	account := response.Account
	assert.Nil(t, account.PasswordResetToken)
	assert.Nil(t, account.PasswordResetExpiry)

	// The stored hash matches the new password, not the confirmation copy or
	// the old secret.
	assert.NoError(t, ComparePasswordAndHash("n3w-s3cret", account.PasswordHash))
	assert.Error(t, ComparePasswordAndHash("sup3rs3cret", account.PasswordHash))

	t.Run("the consumed token cannot be replayed", func(t *testing.T) {
		err := handler.Execute(context.Background(), FinalizePasswordResetMessage{
			Token:           token,
			Password:        "an0ther-s3cret",
			ConfirmPassword: "an0ther-s3cret",
		})
		assert.ErrorIs(t, err, ErrResetTokenExpired)
	})
}

func TestFinalizePasswordResetHandlerValidation(t *testing.T) {
	repo := newTestRepo(t)
	handler := NewFinalizePasswordResetHandler(repo)

	t.Run("missing passwords", func(t *testing.T) {
		err := handler.Execute(context.Background(), FinalizePasswordResetMessage{Token: "whatever"})
		require.Error(t, err)
		assert.Equal(t, 400, HTTPStatus(err))
	})

	t.Run("mismatched passwords", func(t *testing.T) {
		err := handler.Execute(context.Background(), FinalizePasswordResetMessage{
			Token:           "whatever",
			Password:        "one-secret",
			ConfirmPassword: "another-secret",
		})
		require.Error(t, err)
		assert.Equal(t, 400, HTTPStatus(err))
	})

	t.Run("unknown token", func(t *testing.T) {
		err := handler.Execute(context.Background(), FinalizePasswordResetMessage{
			Token:           "never-issued",
			Password:        "n3w-s3cret",
			ConfirmPassword: "n3w-s3cret",
		})
		assert.ErrorIs(t, err, ErrResetTokenExpired)
	})
}

func TestFinalizePasswordResetHandlerExpiredToken(t *testing.T) {
	repo := newTestRepo(t)

	token := "reset-token-1"
	expiry := time.Now().Add(10 * time.Minute)
	seeded := seedUser(t, repo, &User{
		Name:                "Ann",
		Email:               "ann@example.com",
		IsVerified:          true,
		PasswordResetToken:  &token,
		PasswordResetExpiry: &expiry,
	})

	// Eleven minutes from now the ten minute window has lapsed.
	handler := NewFinalizePasswordResetHandler(repo).
		WithClock(func() time.Time { return time.Now().Add(11 * time.Minute) })

	err := handler.Execute(context.Background(), FinalizePasswordResetMessage{
		Token:           token,
		Password:        "n3w-s3cret",
		ConfirmPassword: "n3w-s3cret",
	})
	assert.ErrorIs(t, err, ErrResetTokenExpired)

	// The stale credentials are untouched.
	account, err := repo.Users().GetByID(context.Background(), seeded.ID.String())
	require.NoError(t, err)
	assert.Equal(t, seeded.PasswordHash, account.PasswordHash)
}
