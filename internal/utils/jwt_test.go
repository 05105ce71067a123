package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManagerRoundTrip(t *testing.T) {
	manager := JWTManager{
		Secret:         []byte("jwt-test-secret"),
		Issuer:         "qrlink-test",
		AccessTokenTTL: 15 * time.Minute,
	}

	signed, ttl, err := manager.IssueAccessToken("user-1", "admin")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, ttl)

	claims, err := manager.ParseAccessToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "qrlink-test", claims.Issuer)
}

func TestJWTManagerRejectsWrongSecret(t *testing.T) {
	manager := JWTManager{Secret: []byte("jwt-test-secret")}
	other := JWTManager{Secret: []byte("another-secret")}

	signed, _, err := manager.IssueAccessToken("user-1", "user")
	require.NoError(t, err)

	_, err = other.ParseAccessToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTManagerRejectsGarbage(t *testing.T) {
	manager := JWTManager{Secret: []byte("jwt-test-secret")}
	_, err := manager.ParseAccessToken("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
