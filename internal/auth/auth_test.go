package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murshid-ai/murshid/internal/config"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.True(t, CheckPasswordHash("hunter22", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}

func TestJWTRoundTrip(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"

	token, err := GenerateJWT("acct-42")
	require.NoError(t, err)

	subject, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-42", subject)
}

func TestJWTRejectsTamperedToken(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"

	token, err := GenerateJWT("acct-42")
	require.NoError(t, err)

	_, err = ValidateJWT(token + "x")
	assert.Error(t, err)

	config.AppConfig.JWTSecret = "rotated"
	_, err = ValidateJWT(token)
	assert.Error(t, err)
}
