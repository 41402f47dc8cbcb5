package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestIssueAndParse(t *testing.T) {
	tok, err := Issue(secret, "42", "mina", time.Hour)
	require.NoError(t, err)

	claims, err := Parse(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "mina", claims.Username)
	assert.Equal(t, "42", claims.Subject)
}

func TestParse_Rejects(t *testing.T) {
	valid, err := Issue(secret, "42", "", time.Hour)
	require.NoError(t, err)
	expired, err := Issue(secret, "42", "", -time.Minute)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "42"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte(secret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{name: "wrong secret", secret: "other", token: valid},
		{name: "expired", secret: secret, token: expired},
		{name: "garbage", secret: secret, token: "not.a.token"},
		{name: "alg none", secret: secret, token: unsigned},
		{name: "missing user", secret: secret, token: noUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.secret, tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestSecretRequired(t *testing.T) {
	_, err := Issue("", "42", "", time.Hour)
	assert.ErrorIs(t, err, ErrSecretRequired)

	_, err = Parse("", "x")
	assert.ErrorIs(t, err, ErrSecretRequired)
}
