package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m, err := NewManager("s3cret", "dataric")
	require.NoError(t, err)

	tok, err := m.GenerateAccessToken("userA", time.Minute)
	require.NoError(t, err)

	claims, err := m.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "userA", claims.Identity())
}

func TestManager_Rejects(t *testing.T) {
	m, err := NewManager("s3cret", "dataric")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		tok, err := m.GenerateAccessToken("userA", -time.Minute)
		require.NoError(t, err)
		_, err = m.ValidateToken(tok)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, _ := NewManager("different", "dataric")
		tok, _ := other.GenerateAccessToken("userA", time.Minute)
		_, err := m.ValidateToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, _ := NewManager("s3cret", "someone-else")
		tok, _ := other.GenerateAccessToken("userA", time.Minute)
		_, err := m.ValidateToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("refresh token", func(t *testing.T) {
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "dataric",
				Subject:   "userA",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Type: "refresh",
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
		require.NoError(t, err)
		_, err = m.ValidateToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewManager_RequiresSecret(t *testing.T) {
	_, err := NewManager("", "")
	assert.ErrorIs(t, err, ErrMissingKey)
}
