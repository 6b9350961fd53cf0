package password

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

const (
	upperChars   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerChars   = "abcdefghijkmnopqrstuvwxyz"
	digitChars   = "23456789"
	specialChars = "!@#$%^&*()-_=+[]{}"
)

// GenerateSecurePassword returns a random password of length runes with at
// least one character from every class. Lengths below 4 are raised to 4.
func GenerateSecurePassword(length int) (string, error) {
	if length <= 0 {
		length = 16
	}
	if length < 4 {
		length = 4
	}
	all := upperChars + lowerChars + digitChars + specialChars

	out := make([]byte, 0, length)
	for _, set := range []string{upperChars, lowerChars, digitChars, specialChars} {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("failed to shuffle password: %w", err)
		}
		k := j.Int64()
		out[i], out[k] = out[k], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("failed to read random: %w", err)
	}
	return set[n.Int64()], nil
}

// GenerateResetToken returns 32 random bytes hex encoded.
func GenerateResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

type TimedResetToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewTimedResetToken(ttl time.Duration) (TimedResetToken, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	tok, err := GenerateResetToken()
	if err != nil {
		return TimedResetToken{}, err
	}
	return TimedResetToken{Token: tok, ExpiresAt: time.Now().Add(ttl)}, nil
}

// ValidateResetToken reports whether t is still usable at now. A token is
// invalid once now is after ExpiresAt.
func ValidateResetToken(t TimedResetToken, now time.Time) bool {
	if t.Token == "" || t.ExpiresAt.IsZero() {
		return false
	}
	return !now.After(t.ExpiresAt)
}
