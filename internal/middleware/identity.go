package middleware

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/tokens"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const identityKey = "identity"

// Auth methods recorded on an Identity.
const (
	MethodJWT     = "jwt"
	MethodSession = "session"
)

var ErrNoIdentity = errors.New("no authenticated identity in context")

// Identity is what the auth middleware attaches to an authenticated request.
type Identity struct {
	UserID        uuid.UUID      `json:"user_id"`
	Email         string         `json:"email,omitempty"`
	EmailVerified bool           `json:"email_verified"`
	Method        string         `json:"method"`
	TokenID       string         `json:"token_id,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	Claims        *tokens.Claims `json:"-"`
}

func identityFromClaims(claims *tokens.Claims) (*Identity, error) {
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, tokens.ErrInvalid
	}
	return &Identity{
		UserID:        id,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Method:        MethodJWT,
		TokenID:       claims.ID,
		Claims:        claims,
	}, nil
}

func setIdentity(c *fiber.Ctx, id *Identity) {
	c.Locals(identityKey, id)
}

// GetIdentity returns the identity set by RequireAuth, OptionalAuth,
// RequireSession or RequireAnyAuth.
func GetIdentity(c *fiber.Ctx) (*Identity, bool) {
	id, ok := c.Locals(identityKey).(*Identity)
	return id, ok && id != nil
}

// GetUserID extracts the authenticated user's id from context.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := GetIdentity(c)
	if !ok {
		return uuid.Nil, ErrNoIdentity
	}
	return id.UserID, nil
}
