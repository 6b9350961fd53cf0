package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// The helpers below read claims without checking the signature. They are
// for refresh-threshold decisions only, never for authorization.

// Decode parses token without verifying it.
func Decode(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

// Expiration returns the exp claim. ok is false when the token cannot be
// decoded or has no exp.
func Expiration(token string) (exp time.Time, ok bool) {
	claims, err := Decode(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// IsExpired is true for tokens whose exp is in the past and for anything
// that does not decode.
func IsExpired(token string) bool {
	return IsExpiredAt(token, time.Now())
}

func IsExpiredAt(token string, now time.Time) bool {
	claims, err := Decode(token)
	if err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}

// TimeLeft is the time until exp, or zero for expired or undecodable tokens.
func TimeLeft(token string) time.Duration {
	return TimeLeftAt(token, time.Now())
}

func TimeLeftAt(token string, now time.Time) time.Duration {
	exp, ok := Expiration(token)
	if !ok {
		return 0
	}
	if left := exp.Sub(now); left > 0 {
		return left
	}
	return 0
}
