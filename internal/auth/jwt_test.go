package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	token, err := GenerateJWT("s3cret", "frontend")
	require.NoError(t, err)

	subject, err := ValidateJWT("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, "frontend", subject)

	_, err = ValidateJWT("other", token)
	assert.Error(t, err)
}

func TestGenerateJWTRequiresSecret(t *testing.T) {
	_, err := GenerateJWT("", "frontend")
	assert.Error(t, err)
}

func TestValidateJWTRejectsExpiredToken(t *testing.T) {
	claims := jwt.MapClaims{"sub": "frontend", "exp": time.Now().Add(-time.Minute).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = ValidateJWT("s3cret", token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateJWTRejectsOtherAlgorithms(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ValidateJWT("s3cret", token)
	assert.Error(t, err)
}
