package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
)

const sessionPrefix = "session:"

var ErrSessionNotFound = errors.New("session not found")

type Session struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	UserAgent string    `json:"user_agent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore keeps server-side sessions in redis; entries expire with the
// session TTL.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{rdb: rdb, ttl: ttl}
}

func (s *SessionStore) TTL() time.Duration { return s.ttl }

// Create stores a new session with a fresh KSUID.
func (s *SessionStore) Create(ctx context.Context, userID uuid.UUID, email, userAgent, ip string) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        ksuid.New().String(),
		UserID:    userID,
		Email:     email,
		UserAgent: userAgent,
		IP:        ip,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionPrefix+sess.ID, raw, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	if _, err := ksuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}
	raw, err := s.rdb.Get(ctx, sessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// Delete is a no-op for unknown ids.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, sessionPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
