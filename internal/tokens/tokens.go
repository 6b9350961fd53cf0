// Package tokens issues and verifies typed HS256 JWTs.
package tokens

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Type string

const (
	Access       Type = "access_token"
	Refresh      Type = "refresh_token"
	Reset        Type = "reset_token"
	Verification Type = "verification_token"
)

const (
	Issuer   = "rsk"
	Audience = "rsk-users"
)

var (
	ErrEmptySecret  = errors.New("jwt secret is required")
	ErrUnknownType  = errors.New("unknown token type")
	ErrInvalid      = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
	ErrTypeMismatch = errors.New("token type mismatch")
)

func (t Type) Valid() bool {
	switch t {
	case Access, Refresh, Reset, Verification:
		return true
	}
	return false
}

// Lifetimes sets the exp of each token type. Zero fields fall back to the defaults.
type Lifetimes struct {
	Access       time.Duration
	Refresh      time.Duration
	Reset        time.Duration
	Verification time.Duration
}

var DefaultLifetimes = Lifetimes{
	Access:       15 * time.Minute,
	Refresh:      30 * 24 * time.Hour,
	Reset:        time.Hour,
	Verification: 24 * time.Hour,
}

// Payload is the user data carried by every token.
type Payload struct {
	UserID        string `json:"id"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

type Claims struct {
	Payload
	Type Type `json:"type"`
	jwt.RegisteredClaims
}

// Pair is the result of issuing or rotating a session's tokens.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type Manager struct {
	secret    []byte
	lifetimes Lifetimes
	now       func() time.Time
}

func NewManager(secret string, lifetimes Lifetimes) (*Manager, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if lifetimes.Access <= 0 {
		lifetimes.Access = DefaultLifetimes.Access
	}
	if lifetimes.Refresh <= 0 {
		lifetimes.Refresh = DefaultLifetimes.Refresh
	}
	if lifetimes.Reset <= 0 {
		lifetimes.Reset = DefaultLifetimes.Reset
	}
	if lifetimes.Verification <= 0 {
		lifetimes.Verification = DefaultLifetimes.Verification
	}
	return &Manager{secret: []byte(secret), lifetimes: lifetimes, now: time.Now}, nil
}

// WithClock returns a copy of m that reads time from now.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	cp := *m
	cp.now = now
	return &cp
}

// Lifetime returns the configured exp window for typ.
func (m *Manager) Lifetime(typ Type) time.Duration {
	switch typ {
	case Access:
		return m.lifetimes.Access
	case Refresh:
		return m.lifetimes.Refresh
	case Reset:
		return m.lifetimes.Reset
	case Verification:
		return m.lifetimes.Verification
	}
	return 0
}

// Generate signs payload as a token of typ valid for ttl. A non-positive
// ttl uses the type's lifetime.
func (m *Manager) Generate(p Payload, typ Type, ttl time.Duration) (string, error) {
	if !typ.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if ttl <= 0 {
		ttl = m.Lifetime(typ)
	}

	jti, err := newJTI()
	if err != nil {
		return "", err
	}

	now := m.now()
	claims := Claims{
		Payload: p,
		Type:    typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   p.UserID,
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// GenerateTyped signs payload with the lifetime of typ.
func (m *Manager) GenerateTyped(typ Type, p Payload) (string, error) {
	return m.Generate(p, typ, 0)
}

// Verify checks signature, algorithm, issuer, audience and expiry.
func (m *Manager) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, m.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

// VerifyTyped is Verify plus a check that the token's type claim is typ.
func (m *Manager) VerifyTyped(token string, typ Type) (*Claims, error) {
	claims, err := m.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrTypeMismatch, typ, claims.Type)
	}
	return claims, nil
}

// Keyfunc only hands out the secret for HS256 tokens.
func (m *Manager) Keyfunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return m.secret, nil
}

// CheckClaims re-validates the fields a generic JWT parser skips: issuer,
// audience and token type.
func (m *Manager) CheckClaims(c *Claims, typ Type) error {
	if c == nil {
		return ErrInvalid
	}
	if c.Issuer != Issuer {
		return fmt.Errorf("%w: bad issuer", ErrInvalid)
	}
	hasAud := false
	for _, a := range c.Audience {
		if a == Audience {
			hasAud = true
			break
		}
	}
	if !hasAud {
		return fmt.Errorf("%w: bad audience", ErrInvalid)
	}
	if c.Type != typ {
		return fmt.Errorf("%w: expected %s, got %q", ErrTypeMismatch, typ, c.Type)
	}
	return nil
}

// IssuePair mints a fresh access and refresh token for p.
func (m *Manager) IssuePair(p Payload) (Pair, error) {
	access, err := m.GenerateTyped(Access, p)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := m.GenerateTyped(Refresh, p)
	if err != nil {
		return Pair{}, err
	}
	now := m.now()
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(m.lifetimes.Access),
		RefreshExpiresAt: now.Add(m.lifetimes.Refresh),
	}, nil
}

// RefreshPair verifies a refresh token and rotates it: the user payload is
// carried over, jti/iat/exp/type are regenerated.
func (m *Manager) RefreshPair(refresh string) (Pair, *Claims, error) {
	claims, err := m.VerifyTyped(refresh, Refresh)
	if err != nil {
		return Pair{}, nil, err
	}
	pair, err := m.IssuePair(claims.Payload)
	if err != nil {
		return Pair{}, nil, err
	}
	return pair, claims, nil
}

func classify(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("%w: %w", ErrExpired, err)
	}
	return fmt.Errorf("%w: %w", ErrInvalid, err)
}

func newJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate jti: %w", err)
	}
	return hex.EncodeToString(b), nil
}
