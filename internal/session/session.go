// Package session carries the bearer credential issued by the login flow.
// The credential is passed explicitly into every flow; nothing is read from ambient storage.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

type Session struct {
	Token   string
	Subject string
	// ExpiresAt is zero for opaque tokens or tokens without an exp claim.
	ExpiresAt time.Time
}

// New builds a session from a bearer token. JWTs are inspected for sub and exp
// without verifying the signature; the commerce API remains the authority on validity.
// Opaque tokens are keyed by a digest of the token.
func New(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, fmt.Errorf("%w: missing bearer token", domain.ErrAuth)
	}

	s := Session{Token: token}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		s.Subject = claims.Subject
		if claims.ExpiresAt != nil {
			s.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	if s.Subject == "" {
		sum := sha256.Sum256([]byte(token))
		s.Subject = "tok-" + hex.EncodeToString(sum[:8])
	}
	return s, nil
}

// FromAuthorizationHeader parses a header value of the form "Bearer <token>".
func FromAuthorizationHeader(header string) (Session, error) {
	if header == "" {
		return Session{}, fmt.Errorf("%w: authorization header missing", domain.ErrAuth)
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Session{}, fmt.Errorf("%w: invalid authorization header format", domain.ErrAuth)
	}
	return New(parts[1])
}

// Check fails with domain.ErrAuth when no credential is present or it has expired.
func (s Session) Check(now time.Time) error {
	if s.Token == "" {
		return fmt.Errorf("%w: no session credential", domain.ErrAuth)
	}
	if !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt) {
		return fmt.Errorf("%w: session expired at %s", domain.ErrAuth, s.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func (s Session) AuthorizationHeader() string {
	return "Bearer " + s.Token
}
