package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/apperr"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(production bool) *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: ErrorHandler(production)})
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

// =============================================================================
// Request helpers
// =============================================================================

func TestParsePage(t *testing.T) {
	tests := []struct {
		query string
		want  Page
	}{
		{"", Page{1, 20}},
		{"?page=3&limit=10", Page{3, 10}},
		{"?page=0&limit=0", Page{1, 20}},
		{"?page=-4&limit=1000", Page{1, 100}},
		{"?page=abc", Page{1, 20}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			app := fiber.New()
			var got Page
			app.Get("/", func(c *fiber.Ctx) error {
				got = ParsePage(c)
				return nil
			})
			_, err := app.Test(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, 20, Page{Page: 2, Limit: 20}.Offset())
}

func TestParseSortAndFilters(t *testing.T) {
	app := fiber.New()
	var sorts []Sort
	var filters map[string]string
	def := Sort{Field: "created_at", Desc: true}
	allowed := []string{"name", "email"}

	app.Get("/", func(c *fiber.Ctx) error {
		sorts = append(sorts, ParseSort(c, allowed, def))
		filters = ParseFilters(c, []string{"email", "is_active"})
		return nil
	})

	for _, q := range []string{"?sort=-name", "?sort=email&order=DESC", "?sort=password", "?email=a%40b.com&is_active=&role=admin"} {
		_, err := app.Test(httptest.NewRequest(http.MethodGet, "/"+q, nil))
		require.NoError(t, err)
	}

	assert.Equal(t, []Sort{{"name", true}, {"email", true}, def, def}, sorts)
	assert.Equal(t, map[string]string{"email": "a@b.com"}, filters)
}

type signupBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

func TestBindValidation(t *testing.T) {
	app := newApp(false)
	app.Post("/", func(c *fiber.Ctx) error {
		var b signupBody
		if err := Bind(c, &b); err != nil {
			return err
		}
		return Created(c, b)
	})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope","password":"short","role":"root"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, body := do(t, app, req)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	fields := body["errors"].([]any)
	require.Len(t, fields, 3)
	first := fields[0].(map[string]any)
	assert.Equal(t, "email", first["field"])
	assert.Equal(t, "email must be a valid email address", first["message"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com","password":"longenough"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, body = do(t, app, req)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])
}

func TestBindMalformedBody(t *testing.T) {
	app := newApp(false)
	app.Post("/", func(c *fiber.Ctx) error {
		var b signupBody
		return Bind(c, &b)
	})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":`))
	req.Header.Set("Content-Type", "application/json")
	resp, body := do(t, app, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", body["code"])
}

// =============================================================================
// Envelopes
// =============================================================================

func TestPaginatedEnvelope(t *testing.T) {
	app := newApp(false)
	app.Get("/", func(c *fiber.Ctx) error {
		return Paginated(c, []string{"a", "b"}, Page{Page: 2, Limit: 2}, 5)
	})

	_, body := do(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, true, body["success"])
	p := body["meta"].(map[string]any)["pagination"].(map[string]any)
	assert.Equal(t, float64(2), p["page"])
	assert.Equal(t, float64(5), p["total"])
	assert.Equal(t, float64(3), p["pages"])
	assert.Equal(t, true, p["hasNext"])
	assert.Equal(t, true, p["hasPrev"])
}

func TestNewPaginationEdges(t *testing.T) {
	p := NewPagination(Page{Page: 1, Limit: 20}, 0)
	assert.Equal(t, 0, p.Pages)
	assert.False(t, p.HasNext)
	assert.False(t, p.HasPrev)

	p = NewPagination(Page{Page: 3, Limit: 10}, 30)
	assert.Equal(t, 3, p.Pages)
	assert.False(t, p.HasNext)
}

func TestErrorEnvelopes(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		err        error
		status     int
		code       string
		message    string
	}{
		{"apperr", false, apperr.Conflict("Email already registered"), 409, "CONFLICT", "Email already registered"},
		{"fiber 404", false, fiber.ErrNotFound, 404, "NOT_FOUND", "Not Found"},
		{"fiber 405", false, fiber.ErrMethodNotAllowed, 405, "METHOD_NOT_ALLOWED", "Method Not Allowed"},
		{"plain dev", false, errors.New("db exploded"), 500, "INTERNAL_ERROR", "db exploded"},
		{"plain prod", true, errors.New("db exploded"), 500, "INTERNAL_ERROR", "Internal server error"},
		{"unavailable prod", true, apperr.Unavailable("redis down"), 503, "SERVICE_UNAVAILABLE", "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(tt.production)
			app.Get("/", func(c *fiber.Ctx) error { return tt.err })

			resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, tt.message, body["error"])
			_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
			assert.NoError(t, err)
		})
	}
}

func TestRateLimitedSetsRetryAfter(t *testing.T) {
	app := newApp(true)
	app.Get("/", func(c *fiber.Ctx) error { return apperr.RateLimited(90 * time.Second) })

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "90", resp.Header.Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["code"])
}
