package store

import (
	"context"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/tokens"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// =============================================================================
// Client
// =============================================================================

func TestNewClient_NoAddress(t *testing.T) {
	client, err := NewClient(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewClient_Pings(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(&config.Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	require.NotNil(t, client)
	_ = client.Close()
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(&config.Config{RedisAddr: addr})
	assert.Error(t, err)
}

// =============================================================================
// Sessions
// =============================================================================

func TestSessionStore_Lifecycle(t *testing.T) {
	client, mr := setupTestRedis(t)
	sessions := NewSessionStore(client, time.Hour)
	ctx := context.Background()
	userID := uuid.New()

	sess, err := sessions.Create(ctx, userID, "a@example.com", "curl", "127.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.WithinDuration(t, sess.CreatedAt.Add(time.Hour), sess.ExpiresAt, time.Second)
	assert.Equal(t, time.Hour, mr.TTL(sessionPrefix+sess.ID))

	got, err := sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, "a@example.com", got.Email)

	require.NoError(t, sessions.Delete(ctx, sess.ID))
	_, err = sessions.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, sessions.Delete(ctx, sess.ID))
}

func TestSessionStore_Expires(t *testing.T) {
	client, mr := setupTestRedis(t)
	sessions := NewSessionStore(client, time.Minute)
	ctx := context.Background()

	sess, err := sessions.Create(ctx, uuid.New(), "a@example.com", "", "")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = sessions.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_RejectsMalformedID(t *testing.T) {
	client, _ := setupTestRedis(t)
	sessions := NewSessionStore(client, 0)

	assert.Equal(t, 24*time.Hour, sessions.TTL())
	_, err := sessions.Get(context.Background(), "not-a-ksuid")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// =============================================================================
// Blacklist
// =============================================================================

func TestTokenBlacklist(t *testing.T) {
	client, mr := setupTestRedis(t)
	bl := NewTokenBlacklist(client)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, bl.Add(ctx, tokens.BlacklistEntry{JTI: "abc", ExpiresAt: now.Add(10 * time.Minute), BlacklistedAt: now}))

	ok, err := bl.Contains(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = bl.Contains(ctx, "other")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(11 * time.Minute)
	ok, err = bl.Contains(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenBlacklist_SkipsExpiredAndRequiresJTI(t *testing.T) {
	client, mr := setupTestRedis(t)
	bl := NewTokenBlacklist(client)
	ctx := context.Background()

	require.NoError(t, bl.Add(ctx, tokens.BlacklistEntry{JTI: "old", ExpiresAt: time.Now().Add(-time.Minute)}))
	assert.False(t, mr.Exists(blacklistPrefix+"old"))

	assert.ErrorIs(t, bl.Add(ctx, tokens.BlacklistEntry{}), tokens.ErrMissingJTI)
}

func TestTokenBlacklist_FromIssuedToken(t *testing.T) {
	client, _ := setupTestRedis(t)
	bl := NewTokenBlacklist(client)
	ctx := context.Background()

	mgr, err := tokens.NewManager("this-is-a-test-secret-with-32-bytes!", tokens.DefaultLifetimes)
	require.NoError(t, err)
	tok, err := mgr.GenerateTyped(tokens.Access, tokens.Payload{UserID: uuid.NewString(), Email: "a@example.com"})
	require.NoError(t, err)

	entry, err := tokens.NewBlacklistEntry(tok)
	require.NoError(t, err)
	require.NoError(t, bl.Add(ctx, entry))

	ok, err := bl.Contains(ctx, entry.JTI)
	require.NoError(t, err)
	assert.True(t, ok)
}
