package cookies

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(production bool) *Manager {
	return NewManager(Config{
		Production: production,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
		SessionTTL: 24 * time.Hour,
	})
}

// run executes handler inside a real fiber request and returns the response.
func run(t *testing.T, handler fiber.Handler, reqCookies ...*http.Cookie) *http.Response {
	t.Helper()
	app := fiber.New()
	app.Get("/", handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range reqCookies {
		req.AddCookie(ck)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, ck := range resp.Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func TestSetDefaults(t *testing.T) {
	m := newManager(false)
	resp := run(t, func(c *fiber.Ctx) error {
		return m.Set(c, "id_token", "abc", Options{MaxAge: time.Minute})
	})

	ck := findCookie(resp, "id_token")
	require.NotNil(t, ck)
	assert.Equal(t, "abc", ck.Value)
	assert.True(t, ck.HttpOnly)
	assert.False(t, ck.Secure)
	assert.Equal(t, "/", ck.Path)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
	assert.Equal(t, 60, ck.MaxAge)
}

func TestSetSecureInProduction(t *testing.T) {
	m := newManager(true)
	resp := run(t, func(c *fiber.Ctx) error {
		return m.Set(c, "id_token", "abc", Options{})
	})
	ck := findCookie(resp, "id_token")
	require.NotNil(t, ck)
	assert.True(t, ck.Secure)
}

func TestSetOverrides(t *testing.T) {
	m := newManager(true)
	resp := run(t, func(c *fiber.Ctx) error {
		return m.Set(c, "pref", "dark", Options{
			Path:     "/app",
			SameSite: "Strict",
			HTTPOnly: Bool(false),
			Secure:   Bool(false),
		})
	})
	ck := findCookie(resp, "pref")
	require.NotNil(t, ck)
	assert.Equal(t, "/app", ck.Path)
	assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)
	assert.False(t, ck.HttpOnly)
	assert.False(t, ck.Secure)
}

func TestSetRejectsInvalidOptions(t *testing.T) {
	m := newManager(false)
	var err error
	run(t, func(c *fiber.Ctx) error {
		err = m.Set(c, "x", "y", Options{MaxAge: -time.Second, SameSite: "sideways"})
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestGetFromRequest(t *testing.T) {
	m := newManager(false)
	var got string
	var has bool
	run(t, func(c *fiber.Ctx) error {
		got = m.Get(c, "id_token")
		has = m.Has(c, "refresh_token")
		return nil
	}, &http.Cookie{Name: "id_token", Value: "from-client"})

	assert.Equal(t, "from-client", got)
	assert.False(t, has)
}

func TestGetSeesResponseCookie(t *testing.T) {
	m := newManager(false)
	var got string
	run(t, func(c *fiber.Ctx) error {
		assert.NoError(t, m.Set(c, "id_token", "fresh", Options{MaxAge: time.Minute}))
		got = m.Get(c, "id_token")
		return nil
	}, &http.Cookie{Name: "id_token", Value: "stale"})

	assert.Equal(t, "fresh", got)
}

func TestSetThenClearLeavesHasFalse(t *testing.T) {
	m := newManager(false)
	var afterSet, afterClear bool
	resp := run(t, func(c *fiber.Ctx) error {
		assert.NoError(t, m.Set(c, "session_id", "s1", Options{}))
		afterSet = m.Has(c, "session_id")
		assert.NoError(t, m.Clear(c, "session_id", Options{}))
		afterClear = m.Has(c, "session_id")
		return nil
	}, &http.Cookie{Name: "session_id", Value: "from-client"})

	assert.True(t, afterSet)
	assert.False(t, afterClear)

	ck := findCookie(resp, "session_id")
	require.NotNil(t, ck)
	assert.Empty(t, ck.Value)
	assert.True(t, ck.Expires.Before(time.Now()))
}

func TestManage(t *testing.T) {
	m := newManager(false)
	var got Result
	resp := run(t, func(c *fiber.Ctx) error {
		_, err := m.Manage(ActionSet, Refresh, c, "r1", Options{})
		assert.NoError(t, err)
		got, err = m.Manage(ActionGet, Refresh, c, "", Options{})
		assert.NoError(t, err)
		return nil
	})

	assert.Equal(t, Result{Value: "r1", Found: true}, got)
	ck := findCookie(resp, "refresh_token")
	require.NotNil(t, ck)
	assert.Equal(t, int((30 * 24 * time.Hour).Seconds()), ck.MaxAge)
}

func TestManageErrors(t *testing.T) {
	m := newManager(false)

	_, err := m.Manage(ActionGet, JWT, nil, "", Options{})
	assert.ErrorIs(t, err, ErrMissingRequest)
	_, err = m.Manage(ActionHas, JWT, nil, "", Options{})
	assert.ErrorIs(t, err, ErrMissingRequest)
	_, err = m.Manage(ActionSet, JWT, nil, "v", Options{})
	assert.ErrorIs(t, err, ErrMissingResponse)
	_, err = m.Manage(ActionClear, JWT, nil, "", Options{})
	assert.ErrorIs(t, err, ErrMissingResponse)
	_, err = m.Manage(ActionGet, Type("csrf"), nil, "", Options{})
	assert.ErrorIs(t, err, ErrUnknownType)

	run(t, func(c *fiber.Ctx) error {
		_, err = m.Manage(Action("rotate"), JWT, c, "", Options{})
		return nil
	})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestNames(t *testing.T) {
	assert.Equal(t, "id_token", Name(JWT))
	assert.Equal(t, "refresh_token", Name(Refresh))
	assert.Equal(t, "session_id", Name(Session))
	assert.Empty(t, Name(Type("other")))
	assert.Equal(t, 24*time.Hour, newManager(false).MaxAge(Session))
}

func TestValidateOptions(t *testing.T) {
	assert.Empty(t, ValidateOptions(Options{}))
	assert.Empty(t, ValidateOptions(Options{SameSite: "NONE", MaxAge: time.Hour, Path: "/x"}))

	problems := ValidateOptions(Options{MaxAge: -1, SameSite: "loose", Path: "relative"})
	require.Len(t, problems, 3)
	assert.True(t, strings.Contains(problems[0], "maxAge"))
}
