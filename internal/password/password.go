// Package password derives and verifies scrypt password hashes stored as
// "hex(salt):hex(key)".
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

var (
	ErrInvalidHashFormat = errors.New("invalid hash format")
	ErrEmptyPassword     = errors.New("password is required")
)

// Options are the scrypt cost parameters. Hash and Verify must agree on them.
type Options struct {
	SaltLength int
	N          int
	R          int
	P          int
	KeyLength  int
}

var DefaultOptions = Options{
	SaltLength: 32,
	N:          16384,
	R:          8,
	P:          1,
	KeyLength:  64,
}

func (o Options) withDefaults() Options {
	if o.SaltLength <= 0 {
		o.SaltLength = DefaultOptions.SaltLength
	}
	if o.N <= 0 {
		o.N = DefaultOptions.N
	}
	if o.R <= 0 {
		o.R = DefaultOptions.R
	}
	if o.P <= 0 {
		o.P = DefaultOptions.P
	}
	if o.KeyLength <= 0 {
		o.KeyLength = DefaultOptions.KeyLength
	}
	return o
}

// Hash salts and derives password, returning "salt:hash" in hex.
func Hash(password string, opts Options) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	opts = opts.withDefaults()

	salt := make([]byte, opts.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(password), salt, opts.N, opts.R, opts.P, opts.KeyLength)
	if err != nil {
		return "", fmt.Errorf("failed to derive key: %w", err)
	}

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// Verify re-derives password with the stored salt and compares in constant
// time. A stored value without a colon is ErrInvalidHashFormat; any other
// malformed input simply does not match.
func Verify(password, stored string, opts Options) (bool, error) {
	saltHex, keyHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false, ErrInvalidHashFormat
	}
	if password == "" || saltHex == "" || keyHex == "" {
		return false, nil
	}
	opts = opts.withDefaults()

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false, nil
	}
	expected, err := hex.DecodeString(keyHex)
	if err != nil || len(expected) != opts.KeyLength {
		return false, nil
	}

	derived, err := scrypt.Key([]byte(password), salt, opts.N, opts.R, opts.P, opts.KeyLength)
	if err != nil {
		return false, nil
	}

	return subtle.ConstantTimeCompare(derived, expected) == 1, nil
}

// Hasher binds a set of Options so callers don't have to carry them around.
type Hasher struct {
	opts Options
}

func NewHasher(opts Options) *Hasher {
	return &Hasher{opts: opts.withDefaults()}
}

func (h *Hasher) Hash(password string) (string, error) {
	return Hash(password, h.opts)
}

func (h *Hasher) Verify(password, stored string) (bool, error) {
	return Verify(password, stored, h.opts)
}
