package session

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"pumpconsole/pkg/domain"
)

// DefaultLookahead is how long before expiry a session is refreshed.
const DefaultLookahead = 300 * time.Second

// IsExpired reports whether the session has reached its expiry.
func IsExpired(s domain.Session, now time.Time) bool {
	return s.ExpiresAt <= now.Unix()
}

// NeedsRefresh reports whether the session expires within DefaultLookahead.
func NeedsRefresh(s domain.Session, now time.Time) bool {
	return needsRefresh(s, now, DefaultLookahead)
}

func needsRefresh(s domain.Session, now time.Time, lookahead time.Duration) bool {
	return s.ExpiresAt-now.Unix() < int64(lookahead/time.Second)
}

// ExpiryFromToken reads the exp claim of an access token without verifying
// its signature. The backend remains the authority on validity.
func ExpiryFromToken(token string) (int64, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("parse access token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return 0, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return 0, errors.New("access token has no exp claim")
	}
	return exp.Unix(), nil
}

// Complete fills ExpiresAt from the access token when the backend omitted it.
// A session whose expiry cannot be determined is left at zero and is
// therefore due for refresh immediately.
func Complete(s domain.Session) domain.Session {
	if s.ExpiresAt > 0 {
		return s
	}
	if exp, err := ExpiryFromToken(s.AccessToken); err == nil {
		s.ExpiresAt = exp
	}
	return s
}
