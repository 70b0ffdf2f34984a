package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	t.Run("hashes a password", func(t *testing.T) {
		hash, err := HashPassword("sup3rs3cret")
		require.NoError(t, err)
		assert.NotEmpty(t, hash)
		assert.NotEqual(t, "sup3rs3cret", hash)
	})

	t.Run("rejects empty passwords", func(t *testing.T) {
		_, err := HashPassword("")
		assert.ErrorIs(t, err, ErrNoEmptyString)
	})

	t.Run("same password hashes differently", func(t *testing.T) {
		a, err := HashPassword("sup3rs3cret")
		require.NoError(t, err)
		b, err := HashPassword("sup3rs3cret")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestComparePasswordAndHash(t *testing.T) {
	hash, err := HashPassword("sup3rs3cret")
	require.NoError(t, err)

	t.Run("accepts the matching password", func(t *testing.T) {
		assert.NoError(t, ComparePasswordAndHash("sup3rs3cret", hash))
	})

	t.Run("rejects a wrong password", func(t *testing.T) {
		err := ComparePasswordAndHash("not-the-password", hash)
		assert.ErrorIs(t, err, ErrMismatchedHashAndPassword)
	})

	t.Run("rejects garbage hashes", func(t *testing.T) {
		err := ComparePasswordAndHash("sup3rs3cret", "not-a-bcrypt-hash")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrMismatchedHashAndPassword)
	})
}
