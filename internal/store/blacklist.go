package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/tokens"
	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "blacklist:"

// TokenBlacklist stores revoked jtis until the token would have expired.
type TokenBlacklist struct {
	rdb *redis.Client
	now func() time.Time
}

var _ tokens.Blacklist = (*TokenBlacklist)(nil)

func NewTokenBlacklist(rdb *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{rdb: rdb, now: time.Now}
}

func (b *TokenBlacklist) Add(ctx context.Context, entry tokens.BlacklistEntry) error {
	if entry.JTI == "" {
		return tokens.ErrMissingJTI
	}
	ttl := entry.TTL(b.now())
	if ttl <= 0 {
		// already expired; verification rejects it anyway
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode blacklist entry: %w", err)
	}
	if err := b.rdb.Set(ctx, blacklistPrefix+entry.JTI, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

func (b *TokenBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := b.rdb.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return n > 0, nil
}
