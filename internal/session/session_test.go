package session

import (
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestNew_JWTClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	s, err := New(signedToken(t, "user-42", exp))
	require.NoError(t, err)
	assert.Equal(t, "user-42", s.Subject)
	assert.True(t, exp.Equal(s.ExpiresAt))
	assert.NoError(t, s.Check(time.Now()))
}

func TestNew_OpaqueToken(t *testing.T) {
	a, err := New("opaque-token")
	require.NoError(t, err)
	b, err := New("opaque-token")
	require.NoError(t, err)
	assert.Equal(t, a.Subject, b.Subject)
	assert.True(t, a.ExpiresAt.IsZero())
	assert.NoError(t, a.Check(time.Now()))
}

func TestNew_Empty(t *testing.T) {
	_, err := New("  ")
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestCheck_Expired(t *testing.T) {
	s, err := New(signedToken(t, "user-1", time.Now().Add(-time.Minute)))
	require.NoError(t, err)
	assert.ErrorIs(t, s.Check(time.Now()), domain.ErrAuth)
}

func TestCheck_ZeroSession(t *testing.T) {
	assert.ErrorIs(t, Session{}.Check(time.Now()), domain.ErrAuth)
}

func TestFromAuthorizationHeader(t *testing.T) {
	s, err := FromAuthorizationHeader("Bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", s.Token)
	assert.Equal(t, "Bearer abc", s.AuthorizationHeader())

	for _, h := range []string{"", "abc", "Basic abc", "Bearer "} {
		_, err := FromAuthorizationHeader(h)
		assert.ErrorIs(t, err, domain.ErrAuth, h)
	}
}
