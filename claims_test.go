package accounts

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func TestJWTClaims(t *testing.T) {
	now := time.Now()

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acc-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
		UID:         "acc-1",
		AccountName: "Ann",
		UserRole:    RoleUser,
	}

	t.Run("exposes identity fields", func(t *testing.T) {
		assert.Equal(t, "acc-1", claims.Subject())
		assert.Equal(t, "acc-1", claims.UserID())
		assert.Equal(t, "Ann", claims.Name())
		assert.Equal(t, RoleUser, claims.Role())
	})

	t.Run("has role checks the single role", func(t *testing.T) {
		assert.True(t, claims.HasRole(RoleUser))
		assert.False(t, claims.HasRole(RoleAdmin))
	})

	t.Run("exposes time bounds", func(t *testing.T) {
		assert.WithinDuration(t, now, claims.IssuedAt(), time.Second)
		assert.WithinDuration(t, now.Add(24*time.Hour), claims.Expires(), time.Second)
	})

	t.Run("user id falls back to subject", func(t *testing.T) {
		c := &JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "acc-2"}}
		assert.Equal(t, "acc-2", c.UserID())
	})

	t.Run("zero times when claims are empty", func(t *testing.T) {
		c := &JWTClaims{}
		assert.True(t, c.Expires().IsZero())
		assert.True(t, c.IssuedAt().IsZero())
	})
}
