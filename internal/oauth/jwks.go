package oauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
	keySetTTL     = 24 * time.Hour
)

var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

var ErrUnknownKey = errors.New("signing key not found in key set")

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeySet caches a provider's published RSA keys and verifies the id_tokens
// it signs with them. An unknown kid forces a refetch, so key rotation is
// picked up before the cache expires.
type KeySet struct {
	url     string
	issuers []string
	client  *http.Client
	ttl     time.Duration

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

func NewKeySet(url string, issuers ...string) *KeySet {
	return &KeySet{
		url:     url,
		issuers: issuers,
		client:  &http.Client{Timeout: 10 * time.Second},
		ttl:     keySetTTL,
		keys:    map[string]*rsa.PublicKey{},
	}
}

func (k *KeySet) fetch(ctx context.Context) error {
	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := getJSON(ctx, k.client, k.url, &set); err != nil {
		return fmt.Errorf("failed to fetch key set: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, key := range set.Keys {
		if key.Kty != "RSA" {
			continue
		}
		pub, err := rsaPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		keys[key.Kid] = pub
	}

	k.mu.Lock()
	k.keys = keys
	k.expiresAt = time.Now().Add(k.ttl)
	k.mu.Unlock()
	return nil
}

func rsaPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	exp := 0
	for _, b := range eb {
		exp = exp<<8 | int(b)
	}
	if exp == 0 {
		return nil, errors.New("empty exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: exp}, nil
}

func (k *KeySet) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	pub, ok := k.keys[kid]
	fresh := time.Now().Before(k.expiresAt)
	k.mu.RUnlock()
	if ok && fresh {
		return pub, nil
	}

	if err := k.fetch(ctx); err != nil {
		return nil, err
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if pub, ok := k.keys[kid]; ok {
		return pub, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
}

// flexBool accepts both true and "true"; providers disagree on the encoding
// of email_verified.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case string:
		*b = flexBool(t == "true")
	default:
		*b = false
	}
	return nil
}

type IDClaims struct {
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
	jwt.RegisteredClaims
}

// Verify checks the RS256 signature, expiry, audience and issuer of an
// id_token.
func (k *KeySet) Verify(ctx context.Context, raw, audience string) (*IDClaims, error) {
	claims := &IDClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return k.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid id_token: %w", err)
	}
	if len(k.issuers) > 0 && !slices.Contains(k.issuers, claims.Issuer) {
		return nil, fmt.Errorf("invalid id_token: unexpected issuer %q", claims.Issuer)
	}
	return claims, nil
}

func (k *KeySet) profile(ctx context.Context, raw, audience string) (Profile, error) {
	claims, err := k.Verify(ctx, raw, audience)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		ID:            claims.Subject,
		Email:         claims.Email,
		EmailVerified: bool(claims.EmailVerified),
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}
