package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/cookies"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/store"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/tokens"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Token sources, in the order they are tried by default.
const (
	SourceCookie = "cookie"
	SourceHeader = "header"
	SourceQuery  = "query"
)

const (
	HeaderSessionID      = "X-Session-ID"
	HeaderTokenRefreshed = "X-Token-Refreshed"

	queryTokenParam = "token"
	jwtLocalsKey    = "jwt"
	refreshedKey    = "token_refreshed"

	DefaultRefreshThreshold = 5 * time.Minute
)

var DefaultSources = []string{SourceCookie, SourceHeader, SourceQuery}

// SessionLookup resolves an opaque session id.
type SessionLookup interface {
	Get(ctx context.Context, id string) (*store.Session, error)
}

// Refresher rotates a refresh token into a new token pair.
type Refresher interface {
	RefreshTokens(ctx context.Context, refresh string) (tokens.Pair, error)
}

type AuthConfig struct {
	Tokens           *tokens.Manager
	Cookies          *cookies.Manager
	Sources          []string
	RefreshThreshold time.Duration

	// Optional collaborators.
	Sessions  SessionLookup
	Blacklist tokens.Blacklist
	Refresh   Refresher
}

// Auth builds the authentication middleware from one shared configuration.
type Auth struct {
	cfg      AuthConfig
	sources  []string
	required fiber.Handler
	optional fiber.Handler
}

func NewAuth(cfg AuthConfig) *Auth {
	if cfg.Tokens == nil {
		panic("middleware: AuthConfig.Tokens is required")
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = DefaultRefreshThreshold
	}
	a := &Auth{cfg: cfg, sources: normalizeSources(cfg.Sources)}

	a.required = jwtware.New(a.jwtConfig(func(c *fiber.Ctx, ae *apperr.Error) error {
		return deny(ae)
	}))
	a.optional = jwtware.New(a.jwtConfig(func(c *fiber.Ctx, _ *apperr.Error) error {
		return c.Next()
	}))
	return a
}

func normalizeSources(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		switch s {
		case SourceCookie, SourceHeader, SourceQuery:
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultSources...)
	}
	return out
}

// tokenLookup renders the sources in jwtware's "<source>:<name>" syntax.
func (a *Auth) tokenLookup() string {
	parts := make([]string, 0, len(a.sources))
	for _, s := range a.sources {
		switch s {
		case SourceCookie:
			parts = append(parts, "cookie:"+cookies.Name(cookies.JWT))
		case SourceHeader:
			parts = append(parts, "header:"+fiber.HeaderAuthorization)
		case SourceQuery:
			parts = append(parts, "query:"+queryTokenParam)
		}
	}
	return strings.Join(parts, ",")
}

func (a *Auth) jwtConfig(onFail func(*fiber.Ctx, *apperr.Error) error) jwtware.Config {
	return jwtware.Config{
		KeyFunc:     a.cfg.Tokens.Keyfunc,
		Claims:      &tokens.Claims{},
		ContextKey:  jwtLocalsKey,
		TokenLookup: a.tokenLookup(),
		AuthScheme:  "Bearer",
		SuccessHandler: func(c *fiber.Ctx) error {
			token, _ := c.Locals(jwtLocalsKey).(*jwt.Token)
			var claims *tokens.Claims
			if token != nil {
				claims, _ = token.Claims.(*tokens.Claims)
			}
			id, ae := a.admit(c.UserContext(), claims)
			if ae != nil {
				return onFail(c, ae)
			}
			setIdentity(c, id)
			return c.Next()
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return onFail(c, classifyTokenError(err))
		},
	}
}

// admit applies the checks the generic JWT parser skips: issuer, audience,
// token type, a required exp and revocation.
func (a *Auth) admit(ctx context.Context, claims *tokens.Claims) (*Identity, *apperr.Error) {
	if err := a.cfg.Tokens.CheckClaims(claims, tokens.Access); err != nil {
		return nil, apperr.TokenInvalid().Wrap(err)
	}
	if claims.ExpiresAt == nil {
		return nil, apperr.TokenInvalid()
	}
	if a.cfg.Blacklist != nil && claims.ID != "" {
		revoked, err := a.cfg.Blacklist.Contains(ctx, claims.ID)
		if err != nil {
			slog.Error("token blacklist lookup failed", "error", err)
			return nil, apperr.Unavailable("Token revocation check unavailable").Wrap(err)
		}
		if revoked {
			return nil, apperr.TokenInvalid().WithMeta("reason", "revoked")
		}
	}
	id, err := identityFromClaims(claims)
	if err != nil {
		return nil, apperr.TokenInvalid().Wrap(err)
	}
	return id, nil
}

func classifyTokenError(err error) *apperr.Error {
	switch {
	case errors.Is(err, jwtware.ErrJWTMissingOrMalformed):
		return apperr.TokenRequired()
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, tokens.ErrExpired):
		return apperr.TokenExpired()
	}
	return apperr.TokenInvalid().Wrap(err)
}

func deny(ae *apperr.Error) error {
	metrics.Denied(string(ae.Code))
	return ae
}

// RequireAuth rejects requests without a valid, unrevoked access token.
func (a *Auth) RequireAuth() fiber.Handler { return a.required }

// OptionalAuth attaches an identity when a valid access token is present and
// otherwise continues unauthenticated.
func (a *Auth) OptionalAuth() fiber.Handler { return a.optional }

// extractToken mirrors the jwtware lookup order for handlers that read the
// access token themselves.
func (a *Auth) extractToken(c *fiber.Ctx) string {
	for _, s := range a.sources {
		var v string
		switch s {
		case SourceCookie:
			v = c.Cookies(cookies.Name(cookies.JWT))
		case SourceHeader:
			h := c.Get(fiber.HeaderAuthorization)
			if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
				v = strings.TrimSpace(h[7:])
			}
		case SourceQuery:
			v = c.Query(queryTokenParam)
		}
		if v != "" {
			return v
		}
	}
	return ""
}

// ExtractToken returns the access token of the request using the configured
// source order, or "".
func (a *Auth) ExtractToken(c *fiber.Ctx) string { return a.extractToken(c) }

// RefreshToken silently rotates the token pair when the access token is
// missing or about to expire and a refresh cookie is present. Failures are
// logged and the request continues with whatever it carried.
func (a *Auth) RefreshToken() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if a.cfg.Refresh == nil {
			return c.Next()
		}
		refresh := c.Cookies(cookies.Name(cookies.Refresh))
		if refresh == "" {
			return c.Next()
		}
		access := a.extractToken(c)
		if access != "" && tokens.TimeLeft(access) >= a.cfg.RefreshThreshold {
			return c.Next()
		}

		pair, err := a.cfg.Refresh.RefreshTokens(c.UserContext(), refresh)
		if err != nil {
			metrics.Auth("silent_refresh", "failure")
			slog.Warn("silent token refresh failed", "path", c.Path(), "error", err)
			return c.Next()
		}

		if a.cfg.Cookies != nil {
			if err := a.cfg.Cookies.SetAuth(c, pair.AccessToken, pair.RefreshToken); err != nil {
				slog.Warn("failed to set refreshed cookies", "error", err)
			}
		}
		// Downstream middleware reads the request cookie.
		c.Request().Header.SetCookie(cookies.Name(cookies.JWT), pair.AccessToken)
		c.Request().Header.SetCookie(cookies.Name(cookies.Refresh), pair.RefreshToken)
		c.Set(HeaderTokenRefreshed, "true")
		c.Locals(refreshedKey, true)
		metrics.Auth("silent_refresh", "success")
		return c.Next()
	}
}

// WasRefreshed reports whether RefreshToken rotated tokens for this request.
func WasRefreshed(c *fiber.Ctx) bool {
	v, _ := c.Locals(refreshedKey).(bool)
	return v
}

func sessionID(c *fiber.Ctx) string {
	if v := c.Cookies(cookies.Name(cookies.Session)); v != "" {
		return v
	}
	return strings.TrimSpace(c.Get(HeaderSessionID))
}

// authenticateSession resolves the request's session id. Without a session
// store any present id is accepted as opaque.
func (a *Auth) authenticateSession(c *fiber.Ctx) (*Identity, *apperr.Error) {
	sid := sessionID(c)
	if sid == "" {
		return nil, apperr.AuthRequired("Session required")
	}
	if a.cfg.Sessions == nil {
		return &Identity{Method: MethodSession, SessionID: sid}, nil
	}
	sess, err := a.cfg.Sessions.Get(c.UserContext(), sid)
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil, apperr.InvalidSession()
	}
	if err != nil {
		slog.Error("session lookup failed", "error", err)
		return nil, apperr.Unavailable("Session store unavailable").Wrap(err)
	}
	return &Identity{
		UserID:    sess.UserID,
		Email:     sess.Email,
		Method:    MethodSession,
		SessionID: sess.ID,
	}, nil
}

// RequireSession authenticates by session id from the session cookie or the
// X-Session-ID header.
func (a *Auth) RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ae := a.authenticateSession(c)
		if ae != nil {
			return deny(ae)
		}
		setIdentity(c, id)
		return c.Next()
	}
}

func (a *Auth) authenticateJWT(c *fiber.Ctx) (*Identity, *apperr.Error) {
	raw := a.extractToken(c)
	if raw == "" {
		return nil, apperr.TokenRequired()
	}
	claims, err := a.cfg.Tokens.VerifyTyped(raw, tokens.Access)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return a.admit(c.UserContext(), claims)
}

// RequireAnyAuth accepts the first method that authenticates, trying jwt then
// session unless methods names another order. When all fail the 401 lists
// each method's reason.
func (a *Auth) RequireAnyAuth(methods ...string) fiber.Handler {
	if len(methods) == 0 {
		methods = []string{MethodJWT, MethodSession}
	}
	return func(c *fiber.Ctx) error {
		reasons := make(map[string]string, len(methods))
		for _, m := range methods {
			var (
				id *Identity
				ae *apperr.Error
			)
			switch m {
			case MethodJWT:
				id, ae = a.authenticateJWT(c)
			case MethodSession:
				id, ae = a.authenticateSession(c)
			default:
				continue
			}
			if ae == nil {
				setIdentity(c, id)
				return c.Next()
			}
			if ae.Status >= fiber.StatusInternalServerError {
				return ae
			}
			reasons[m] = string(ae.Code)
		}
		return deny(apperr.AuthRequired("").WithMeta("reasons", reasons))
	}
}
