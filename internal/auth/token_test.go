package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	a := NewAuthority("secret", time.Hour)
	token, err := a.Issue(42)
	require.NoError(t, err)

	id, err := a.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	id, err = UserIDFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	token, err := NewAuthority("other", 0).Issue(1)
	require.NoError(t, err)

	_, err = NewAuthority("secret", 0).ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	a := NewAuthority("secret", time.Minute)
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := a.Issue(1)
	require.NoError(t, err)

	a.now = time.Now
	_, err = a.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSubjectFallback(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "7"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	id, err := NewAuthority("secret", 0).ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestUserIDFromGarbage(t *testing.T) {
	_, err := UserIDFromToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
