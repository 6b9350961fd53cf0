package password

import (
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap parameters keep the suite fast; production uses DefaultOptions
var testOptions = Options{SaltLength: 16, N: 1024, R: 8, P: 1, KeyLength: 64}

// =============================================================================
// Hash / Verify
// =============================================================================

func TestHashFormat(t *testing.T) {
	stored, err := Hash("Abcdef1!", testOptions)
	require.NoError(t, err)

	salt, key, ok := strings.Cut(stored, ":")
	require.True(t, ok)
	assert.Len(t, salt, 32)
	assert.Len(t, key, 128)
}

func TestHashUsesFreshSalt(t *testing.T) {
	a, err := Hash("same-password", testOptions)
	require.NoError(t, err)
	b, err := Hash("same-password", testOptions)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashRejectsEmpty(t *testing.T) {
	_, err := Hash("", testOptions)
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestVerifyRoundTrip(t *testing.T) {
	for _, pw := range []string{"Abcdef1!", "correct horse battery staple", "ünïcødé-Pässwörd9"} {
		stored, err := Hash(pw, testOptions)
		require.NoError(t, err)

		ok, err := Verify(pw, stored, testOptions)
		require.NoError(t, err)
		assert.True(t, ok, pw)

		ok, err = Verify(pw+"x", stored, testOptions)
		require.NoError(t, err)
		assert.False(t, ok, pw)
	}
}

func TestVerifyDefaultOptions(t *testing.T) {
	stored, err := Hash("Abcdef1!", DefaultOptions)
	require.NoError(t, err)

	ok, err := Verify("Abcdef1!", stored, Options{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyMalformed(t *testing.T) {
	_, err := Verify("pw", "no-colon-here", testOptions)
	assert.ErrorIs(t, err, ErrInvalidHashFormat)

	for _, stored := range []string{":", "abcd:", ":abcd", "zz:abcd", "abcd:zz", "abcd:abcd"} {
		ok, err := Verify("pw", stored, testOptions)
		assert.NoError(t, err, stored)
		assert.False(t, ok, stored)
	}
}

func TestHasher(t *testing.T) {
	h := NewHasher(testOptions)
	stored, err := h.Hash("Abcdef1!")
	require.NoError(t, err)

	ok, err := h.Verify("Abcdef1!", stored)
	require.NoError(t, err)
	assert.True(t, ok)
}

// =============================================================================
// Strength
// =============================================================================

func TestValidateStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
		errCount int
	}{
		{"all classes", "Abcdef1!", true, 0},
		{"too short", "Ab1!", false, 1},
		{"no upper", "abcdef1!", false, 1},
		{"no special", "Abcdefg1", false, 1},
		{"only lower", "abcdefgh", false, 3},
		{"common", "Password1", false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateStrength(tt.password, DefaultRules)
			assert.Equal(t, tt.valid, got.Valid)
			assert.Len(t, got.Errors, tt.errCount, got.Errors)
		})
	}
}

func TestValidateStrengthScore(t *testing.T) {
	weak := ValidateStrength("abc", DefaultRules)
	strong := ValidateStrength("Abcdef1!Abcdef1!", DefaultRules)

	assert.Equal(t, "weak", weak.Strength)
	assert.Equal(t, 7, strong.Score)
	assert.Equal(t, "very_strong", strong.Strength)
	assert.Equal(t, 0, ValidateStrength("password", DefaultRules).Score)
}

func TestValidateStrengthMaxLength(t *testing.T) {
	got := ValidateStrength(strings.Repeat("Aa1!", 40), DefaultRules)
	assert.False(t, got.Valid)
}

// =============================================================================
// Generators
// =============================================================================

func TestGenerateSecurePassword(t *testing.T) {
	pw, err := GenerateSecurePassword(20)
	require.NoError(t, err)
	assert.Len(t, pw, 20)
	assert.True(t, ValidateStrength(pw, DefaultRules).Valid, pw)

	short, err := GenerateSecurePassword(2)
	require.NoError(t, err)
	assert.Len(t, short, 4)

	var upper bool
	for _, r := range short {
		if unicode.IsUpper(r) {
			upper = true
		}
	}
	assert.True(t, upper)
}

func TestResetTokens(t *testing.T) {
	tok, err := GenerateResetToken()
	require.NoError(t, err)
	assert.Len(t, tok, 64)

	timed, err := NewTimedResetToken(time.Hour)
	require.NoError(t, err)
	assert.True(t, ValidateResetToken(timed, time.Now()))
	assert.True(t, ValidateResetToken(timed, timed.ExpiresAt))
	assert.False(t, ValidateResetToken(timed, timed.ExpiresAt.Add(time.Nanosecond)))
	assert.False(t, ValidateResetToken(TimedResetToken{}, time.Now()))
}
