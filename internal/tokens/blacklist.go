package tokens

import (
	"context"
	"errors"
	"time"
)

var ErrMissingJTI = errors.New("token has no jti")

// BlacklistEntry is the revocation record handed to a Blacklist store.
type BlacklistEntry struct {
	JTI           string    `json:"jti"`
	ExpiresAt     time.Time `json:"exp"`
	BlacklistedAt time.Time `json:"blacklisted_at"`
}

// TTL is how long the entry must be kept: until the token would have
// expired on its own.
func (e BlacklistEntry) TTL(now time.Time) time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	return e.ExpiresAt.Sub(now)
}

// NewBlacklistEntry builds a revocation record from token's claims.
func NewBlacklistEntry(token string) (BlacklistEntry, error) {
	claims, err := Decode(token)
	if err != nil {
		return BlacklistEntry{}, err
	}
	return EntryFromClaims(claims)
}

func EntryFromClaims(c *Claims) (BlacklistEntry, error) {
	if c == nil || c.ID == "" {
		return BlacklistEntry{}, ErrMissingJTI
	}
	entry := BlacklistEntry{JTI: c.ID, BlacklistedAt: time.Now().UTC()}
	if c.ExpiresAt != nil {
		entry.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return entry, nil
}

// Blacklist is a revocation store supplied by the caller.
type Blacklist interface {
	Add(ctx context.Context, entry BlacklistEntry) error
	Contains(ctx context.Context, jti string) (bool, error)
}
