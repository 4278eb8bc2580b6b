package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_secret_key_for_unit_tests_1234567890"

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", hash)

	assert.True(t, CheckPasswordHash("correct horse battery", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
	assert.False(t, CheckPasswordHash("anything", "not-a-bcrypt-hash"))
}

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("42", "admin", testSecret, time.Minute)
	require.NoError(t, err)

	userID, err := ValidateJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "42", userID)
}

func TestValidateJWTFailures(t *testing.T) {
	expired, err := GenerateJWT("1", "patient", testSecret, -time.Minute)
	require.NoError(t, err)

	otherSecret, err := GenerateJWT("1", "patient", "another-secret", time.Minute)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"userID": "1", "iss": Issuer}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userID": "1", "iss": "someone-else"}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iss": Issuer}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)

	testCases := []struct {
		name  string
		token string
		want  error
	}{
		{"malformed", "not.a.token", ErrTokenMalformed},
		{"expired", expired, ErrTokenExpired},
		{"wrong secret", otherSecret, ErrTokenInvalid},
		{"none algorithm", noneToken, ErrUnexpectedSigningMethod},
		{"wrong issuer", wrongIssuer, ErrTokenInvalid},
		{"missing user", noUser, ErrTokenClaimsInvalid},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			userID, err := ValidateJWT(tc.token, testSecret)
			assert.Empty(t, userID)
			assert.True(t, errors.Is(err, tc.want), "got %v, want %v", err, tc.want)
		})
	}
}
