package password

import (
	"fmt"
	"strings"
	"unicode"
)

type Rules struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
	Denylist       []string
}

var DefaultRules = Rules{
	MinLength:      8,
	MaxLength:      128,
	RequireUpper:   true,
	RequireLower:   true,
	RequireDigit:   true,
	RequireSpecial: true,
	Denylist:       commonPasswords,
}

var commonPasswords = []string{
	"password", "password1", "password123", "123456", "12345678", "123456789",
	"qwerty", "qwerty123", "abc123", "letmein", "welcome", "admin", "admin123",
	"iloveyou", "monkey", "dragon", "football", "baseball", "sunshine", "master",
	"passw0rd", "p@ssw0rd", "p@ssword1", "trustno1", "changeme",
}

type Strength struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Strength string   `json:"strength"`
	Score    int      `json:"score"`
}

// ValidateStrength checks password against rules. It never fails; problems
// are listed in Errors.
func ValidateStrength(password string, rules Rules) Strength {
	var errs []string

	n := len([]rune(password))
	if rules.MinLength > 0 && n < rules.MinLength {
		errs = append(errs, fmt.Sprintf("Password must be at least %d characters long", rules.MinLength))
	}
	if rules.MaxLength > 0 && n > rules.MaxLength {
		errs = append(errs, fmt.Sprintf("Password must be at most %d characters long", rules.MaxLength))
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	if rules.RequireUpper && !upper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if rules.RequireLower && !lower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if rules.RequireDigit && !digit {
		errs = append(errs, "Password must contain at least one number")
	}
	if rules.RequireSpecial && !special {
		errs = append(errs, "Password must contain at least one special character")
	}

	common := isCommon(password, rules.Denylist)
	if common {
		errs = append(errs, "Password is too common")
	}

	score := 0
	for _, threshold := range []int{8, 12, 16} {
		if n >= threshold {
			score++
		}
	}
	for _, has := range []bool{upper, lower, digit, special} {
		if has {
			score++
		}
	}
	if common {
		score = 0
	}

	return Strength{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Strength: label(score),
		Score:    score,
	}
}

func isCommon(password string, denylist []string) bool {
	lower := strings.ToLower(password)
	for _, p := range denylist {
		if lower == p {
			return true
		}
	}
	return false
}

func label(score int) string {
	switch {
	case score <= 2:
		return "weak"
	case score <= 4:
		return "fair"
	case score <= 6:
		return "strong"
	default:
		return "very_strong"
	}
}
