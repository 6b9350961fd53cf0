package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/cookies"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/httpx"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/repository/repotest"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/store"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/tokens"
	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-test-secret-with-32-bytes!"

var testUserID = uuid.MustParse("5f0c1c7e-1111-4a4a-9b9b-222233334444")

// =============================================================================
// Test Helpers
// =============================================================================

func newManager(t *testing.T) *tokens.Manager {
	t.Helper()
	m, err := tokens.NewManager(testSecret, tokens.Lifetimes{})
	require.NoError(t, err)
	return m
}

func payload() tokens.Payload {
	return tokens.Payload{UserID: testUserID.String(), Email: "user@example.com", EmailVerified: true}
}

func accessToken(t *testing.T, m *tokens.Manager) string {
	t.Helper()
	tok, err := m.GenerateTyped(tokens.Access, payload())
	require.NoError(t, err)
	return tok
}

func newApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(false)})
}

func whoami(c *fiber.Ctx) error {
	id, ok := GetIdentity(c)
	if !ok {
		return c.JSON(fiber.Map{"authenticated": false})
	}
	return c.JSON(fiber.Map{
		"authenticated": true,
		"user_id":       id.UserID.String(),
		"method":        id.Method,
		"session_id":    id.SessionID,
	})
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &out), string(body))
	}
	return resp, out
}

func get(path string) *http.Request {
	return httptest.NewRequest(http.MethodGet, path, nil)
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func withCookie(req *http.Request, name, value string) *http.Request {
	req.AddCookie(&http.Cookie{Name: name, Value: value})
	return req
}

func responseCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type stubRefresher struct {
	m     *tokens.Manager
	calls int
	err   error
}

func (s *stubRefresher) RefreshTokens(_ context.Context, refresh string) (tokens.Pair, error) {
	s.calls++
	if s.err != nil {
		return tokens.Pair{}, s.err
	}
	pair, _, err := s.m.RefreshPair(refresh)
	return pair, err
}

func setupSessions(t *testing.T) *store.SessionStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return store.NewSessionStore(rdb, time.Hour)
}

// =============================================================================
// RequireAuth / OptionalAuth
// =============================================================================

func TestRequireAuth(t *testing.T) {
	m := newManager(t)
	expired, err := m.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }).
		GenerateTyped(tokens.Access, payload())
	require.NoError(t, err)
	refresh, err := m.GenerateTyped(tokens.Refresh, payload())
	require.NoError(t, err)
	other, err := tokens.NewManager("another-secret-with-at-least-32-bytes", tokens.Lifetimes{})
	require.NoError(t, err)
	forged := accessToken(t, other)

	auth := NewAuth(AuthConfig{Tokens: m})
	app := newApp()
	app.Get("/me", auth.RequireAuth(), whoami)

	tests := []struct {
		name     string
		req      *http.Request
		wantCode string
	}{
		{"missing", get("/me"), "TOKEN_REQUIRED"},
		{"non bearer header", func() *http.Request {
			r := get("/me")
			r.Header.Set("Authorization", "Basic abc")
			return r
		}(), "TOKEN_REQUIRED"},
		{"expired", withBearer(get("/me"), expired), "TOKEN_EXPIRED"},
		{"garbage", withBearer(get("/me"), "not-a-jwt"), "TOKEN_INVALID"},
		{"wrong type", withBearer(get("/me"), refresh), "TOKEN_INVALID"},
		{"wrong key", withBearer(get("/me"), forged), "TOKEN_INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, app, tt.req)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, tt.wantCode, body["code"])
			assert.Equal(t, false, body["success"])
		})
	}

	t.Run("valid from every source", func(t *testing.T) {
		tok := accessToken(t, m)
		for _, req := range []*http.Request{
			withBearer(get("/me"), tok),
			withCookie(get("/me"), "id_token", tok),
			get("/me?token=" + tok),
		} {
			resp, body := do(t, app, req)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, testUserID.String(), body["user_id"])
			assert.Equal(t, MethodJWT, body["method"])
		}
	})
}

func TestRequireAuthSourceOrder(t *testing.T) {
	m := newManager(t)
	good := accessToken(t, m)

	auth := NewAuth(AuthConfig{Tokens: m, Sources: []string{"header"}})
	app := newApp()
	app.Get("/me", auth.RequireAuth(), whoami)

	// Cookie is not a configured source.
	resp, body := do(t, app, withCookie(get("/me"), "id_token", good))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_REQUIRED", body["code"])

	// First non-empty source wins even if a later one would be valid.
	auth = NewAuth(AuthConfig{Tokens: m, Sources: []string{"cookie", "header"}})
	app = newApp()
	app.Get("/me", auth.RequireAuth(), whoami)
	req := withBearer(withCookie(get("/me"), "id_token", "broken"), good)
	resp, body = do(t, app, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_INVALID", body["code"])
}

func TestRequireAuthBlacklist(t *testing.T) {
	m := newManager(t)
	bl := repotest.NewBlacklist()
	auth := NewAuth(AuthConfig{Tokens: m, Blacklist: bl})
	app := newApp()
	app.Get("/me", auth.RequireAuth(), whoami)

	tok := accessToken(t, m)
	resp, _ := do(t, app, withBearer(get("/me"), tok))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	entry, err := tokens.NewBlacklistEntry(tok)
	require.NoError(t, err)
	require.NoError(t, bl.Add(context.Background(), entry))

	resp, body := do(t, app, withBearer(get("/me"), tok))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_INVALID", body["code"])
}

func TestOptionalAuth(t *testing.T) {
	m := newManager(t)
	auth := NewAuth(AuthConfig{Tokens: m})
	app := newApp()
	app.Get("/feed", auth.OptionalAuth(), whoami)

	resp, body := do(t, app, get("/feed"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["authenticated"])

	resp, body = do(t, app, withBearer(get("/feed"), "garbage"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["authenticated"])

	resp, body = do(t, app, withBearer(get("/feed"), accessToken(t, m)))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["authenticated"])
}

// =============================================================================
// RefreshToken
// =============================================================================

func TestRefreshToken(t *testing.T) {
	m := newManager(t)
	refresh, err := m.GenerateTyped(tokens.Refresh, payload())
	require.NoError(t, err)
	nearExpiry, err := m.Generate(payload(), tokens.Access, time.Minute)
	require.NoError(t, err)

	setup := func(r *stubRefresher) *fiber.App {
		auth := NewAuth(AuthConfig{
			Tokens:  m,
			Cookies: cookies.NewManager(cookies.Config{}),
			Refresh: r,
		})
		app := newApp()
		app.Get("/me", auth.RefreshToken(), auth.RequireAuth(), func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"refreshed": WasRefreshed(c)})
		})
		return app
	}

	t.Run("missing access token is refreshed", func(t *testing.T) {
		r := &stubRefresher{m: m}
		resp, body := do(t, setup(r), withCookie(get("/me"), "refresh_token", refresh))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["refreshed"])
		assert.Equal(t, "true", resp.Header.Get(HeaderTokenRefreshed))
		assert.Equal(t, 1, r.calls)

		access := responseCookie(resp, "id_token")
		require.NotNil(t, access)
		_, err := m.VerifyTyped(access.Value, tokens.Access)
		assert.NoError(t, err)
		assert.NotNil(t, responseCookie(resp, "refresh_token"))
	})

	t.Run("near expiry is refreshed", func(t *testing.T) {
		r := &stubRefresher{m: m}
		req := withCookie(withCookie(get("/me"), "id_token", nearExpiry), "refresh_token", refresh)
		resp, _ := do(t, setup(r), req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 1, r.calls)
		access := responseCookie(resp, "id_token")
		require.NotNil(t, access)
		assert.NotEqual(t, nearExpiry, access.Value)
	})

	t.Run("fresh token is left alone", func(t *testing.T) {
		r := &stubRefresher{m: m}
		req := withCookie(withCookie(get("/me"), "id_token", accessToken(t, m)), "refresh_token", refresh)
		resp, body := do(t, setup(r), req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["refreshed"])
		assert.Equal(t, 0, r.calls)
		assert.Empty(t, resp.Header.Get(HeaderTokenRefreshed))
	})

	t.Run("failure keeps the original token", func(t *testing.T) {
		r := &stubRefresher{m: m, err: errors.New("refresh revoked")}
		req := withCookie(withCookie(get("/me"), "id_token", nearExpiry), "refresh_token", refresh)
		resp, body := do(t, setup(r), req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["refreshed"])
		assert.Equal(t, 1, r.calls)
	})

	t.Run("no refresh cookie", func(t *testing.T) {
		r := &stubRefresher{m: m}
		resp, body := do(t, setup(r), get("/me"))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "TOKEN_REQUIRED", body["code"])
		assert.Equal(t, 0, r.calls)
	})
}

// =============================================================================
// RequireSession / RequireAnyAuth
// =============================================================================

func TestRequireSession(t *testing.T) {
	m := newManager(t)
	sessions := setupSessions(t)
	sess, err := sessions.Create(context.Background(), testUserID, "user@example.com", "test", "127.0.0.1")
	require.NoError(t, err)

	auth := NewAuth(AuthConfig{Tokens: m, Sessions: sessions})
	app := newApp()
	app.Get("/s", auth.RequireSession(), whoami)

	resp, body := do(t, app, get("/s"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "AUTH_REQUIRED", body["code"])

	req := get("/s")
	req.Header.Set(HeaderSessionID, "2ZsT0pQhTc1dfVJ6nT7GzBhKQ3A")
	resp, body = do(t, app, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_SESSION", body["code"])

	resp, body = do(t, app, withCookie(get("/s"), "session_id", sess.ID))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, MethodSession, body["method"])
	assert.Equal(t, testUserID.String(), body["user_id"])
	assert.Equal(t, sess.ID, body["session_id"])
}

func TestRequireSessionWithoutStore(t *testing.T) {
	auth := NewAuth(AuthConfig{Tokens: newManager(t)})
	app := newApp()
	app.Get("/s", auth.RequireSession(), whoami)

	req := get("/s")
	req.Header.Set(HeaderSessionID, "opaque")
	resp, body := do(t, app, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "opaque", body["session_id"])
}

func TestRequireAnyAuth(t *testing.T) {
	m := newManager(t)
	sessions := setupSessions(t)
	sess, err := sessions.Create(context.Background(), testUserID, "user@example.com", "", "")
	require.NoError(t, err)

	auth := NewAuth(AuthConfig{Tokens: m, Sessions: sessions})
	app := newApp()
	app.Get("/any", auth.RequireAnyAuth(), whoami)
	app.Get("/session-first", auth.RequireAnyAuth(MethodSession, MethodJWT), whoami)

	t.Run("all fail", func(t *testing.T) {
		resp, body := do(t, app, get("/any"))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "AUTH_REQUIRED", body["code"])
		details, ok := body["details"].(map[string]any)
		require.True(t, ok)
		reasons, ok := details["reasons"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "TOKEN_REQUIRED", reasons["jwt"])
		assert.Equal(t, "AUTH_REQUIRED", reasons["session"])
	})

	t.Run("jwt", func(t *testing.T) {
		resp, body := do(t, app, withBearer(get("/any"), accessToken(t, m)))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, MethodJWT, body["method"])
	})

	t.Run("session after bad jwt", func(t *testing.T) {
		req := withBearer(withCookie(get("/any"), "session_id", sess.ID), "garbage")
		resp, body := do(t, app, req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, MethodSession, body["method"])
	})

	t.Run("configured order", func(t *testing.T) {
		req := withBearer(withCookie(get("/session-first"), "session_id", sess.ID), accessToken(t, m))
		resp, body := do(t, app, req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, MethodSession, body["method"])
	})
}

// =============================================================================
// Guards
// =============================================================================

type stubChecker struct {
	perms []string
	roles []string
}

func (s stubChecker) GetUserPermissionNames(context.Context, uuid.UUID) ([]string, error) {
	return s.perms, nil
}

func (s stubChecker) GetUserRoleNames(context.Context, uuid.UUID) ([]string, error) {
	return s.roles, nil
}

func TestRequirePermissionAndRole(t *testing.T) {
	m := newManager(t)
	auth := NewAuth(AuthConfig{Tokens: m})
	checker := stubChecker{perms: []string{"users:read", "roles:read"}, roles: []string{"user"}}

	app := newApp()
	ok := func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) }
	app.Get("/read", auth.RequireAuth(), RequirePermission(checker, "users:read"), ok)
	app.Get("/both", auth.RequireAuth(), RequirePermission(checker, "users:read", "users:write"), ok)
	app.Get("/role", auth.RequireAuth(), RequireRole(checker, "admin", "user"), ok)
	app.Get("/admin", auth.RequireAuth(), RequireRole(checker, "admin"), ok)
	app.Get("/noauth", RequirePermission(checker, "users:read"), ok)

	tok := accessToken(t, m)
	cases := map[string]int{
		"/read":  http.StatusNoContent,
		"/both":  http.StatusForbidden,
		"/role":  http.StatusNoContent,
		"/admin": http.StatusForbidden,
	}
	for path, want := range cases {
		resp, _ := do(t, app, withBearer(get(path), tok))
		assert.Equal(t, want, resp.StatusCode, path)
	}

	resp, body := do(t, app, get("/noauth"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "AUTH_REQUIRED", body["code"])
}

// =============================================================================
// Timeout / headers
// =============================================================================

func TestTimeout(t *testing.T) {
	app := newApp()
	app.Get("/slow", Timeout(20*time.Millisecond), func(c *fiber.Ctx) error {
		<-c.UserContext().Done()
		return c.UserContext().Err()
	})
	app.Get("/fast", Timeout(time.Second), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	resp, body := do(t, app, get("/slow"))
	assert.Equal(t, http.StatusRequestTimeout, resp.StatusCode)
	assert.Equal(t, "REQUEST_TIMEOUT", body["code"])

	resp, err := app.Test(get("/fast"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSecurityHeaders(t *testing.T) {
	app := newApp()
	app.Use(SecurityHeaders())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(get("/"))
	require.NoError(t, err)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestNormalizeSources(t *testing.T) {
	assert.Equal(t, DefaultSources, normalizeSources(nil))
	assert.Equal(t, []string{"query", "cookie"}, normalizeSources([]string{" Query", "cookie", "query", "bogus"}))

	a := &Auth{sources: []string{"header", "cookie"}}
	assert.Equal(t, "header:Authorization,cookie:id_token", a.tokenLookup())
}
