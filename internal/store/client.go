// Package store holds the redis-backed session store and token blacklist.
package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewClient connects to redis and pings it. Returns nil, nil when no
// address is configured so callers can fall back to postgres.
func NewClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}

	options := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	}

	// TLS in production whenever the server is password protected
	if cfg.IsProduction() && cfg.RedisPassword != "" {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
