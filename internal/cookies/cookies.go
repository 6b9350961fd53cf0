// Package cookies sets, reads and clears auth cookies with one set of
// security defaults.
package cookies

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// Type is a logical cookie kind mapped to a concrete cookie name.
type Type string

const (
	JWT     Type = "jwt"
	Refresh Type = "refresh"
	Session Type = "session"
)

var names = map[Type]string{
	JWT:     "id_token",
	Refresh: "refresh_token",
	Session: "session_id",
}

type Action string

const (
	ActionSet   Action = "set"
	ActionGet   Action = "get"
	ActionClear Action = "clear"
	ActionHas   Action = "has"
)

var (
	ErrMissingRequest  = errors.New("cookie read requires a request context")
	ErrMissingResponse = errors.New("cookie write requires a response context")
	ErrUnknownType     = errors.New("unknown cookie type")
	ErrUnknownAction   = errors.New("unknown cookie action")
	ErrInvalidOptions  = errors.New("invalid cookie options")
)

// Options override the manager defaults. Zero values keep the default;
// HTTPOnly and Secure are pointers so false can be expressed.
type Options struct {
	MaxAge   time.Duration
	Path     string
	Domain   string
	SameSite string
	HTTPOnly *bool
	Secure   *bool
}

func Bool(v bool) *bool { return &v }

type Config struct {
	Production bool
	Domain     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	SessionTTL time.Duration
}

type Manager struct {
	production bool
	domain     string
	maxAges    map[Type]time.Duration
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		production: cfg.Production,
		domain:     cfg.Domain,
		maxAges: map[Type]time.Duration{
			JWT:     orDefault(cfg.AccessTTL, 15*time.Minute),
			Refresh: orDefault(cfg.RefreshTTL, 30*24*time.Hour),
			Session: orDefault(cfg.SessionTTL, 24*time.Hour),
		},
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Name returns the cookie name for typ, or "" when typ is unknown.
func Name(typ Type) string {
	return names[typ]
}

// MaxAge returns the default lifetime of cookies of typ.
func (m *Manager) MaxAge(typ Type) time.Duration {
	return m.maxAges[typ]
}

// Set writes name=value on the response.
func (m *Manager) Set(c *fiber.Ctx, name, value string, opts Options) error {
	if c == nil {
		return ErrMissingResponse
	}
	if name == "" {
		return fmt.Errorf("%w: empty cookie name", ErrInvalidOptions)
	}
	if problems := ValidateOptions(opts); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(problems, "; "))
	}

	ck := m.build(name, value, opts)
	if opts.MaxAge > 0 {
		ck.MaxAge = int(opts.MaxAge / time.Second)
		ck.Expires = time.Now().Add(opts.MaxAge)
	}
	c.Cookie(ck)
	return nil
}

// Get returns the cookie value. A cookie set or cleared earlier in this
// request takes precedence over the one the client sent.
func (m *Manager) Get(c *fiber.Ctx, name string) string {
	if c == nil {
		return ""
	}
	if v, ok := responseCookie(c, name); ok {
		return v
	}
	return c.Cookies(name)
}

func (m *Manager) Has(c *fiber.Ctx, name string) bool {
	return m.Get(c, name) != ""
}

// Clear expires the cookie on the client. Path and domain must match the
// ones it was set with.
func (m *Manager) Clear(c *fiber.Ctx, name string, opts Options) error {
	if c == nil {
		return ErrMissingResponse
	}
	ck := m.build(name, "", opts)
	ck.Expires = fasthttp.CookieExpireDelete
	c.Cookie(ck)
	return nil
}

func (m *Manager) build(name, value string, opts Options) *fiber.Cookie {
	ck := &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   m.domain,
		HTTPOnly: true,
		Secure:   m.production,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
	if opts.Path != "" {
		ck.Path = opts.Path
	}
	if opts.Domain != "" {
		ck.Domain = opts.Domain
	}
	if opts.SameSite != "" {
		ck.SameSite = normalizeSameSite(opts.SameSite)
	}
	if opts.HTTPOnly != nil {
		ck.HTTPOnly = *opts.HTTPOnly
	}
	if opts.Secure != nil {
		ck.Secure = *opts.Secure
	}
	return ck
}

// Result is what Manage returns: Value for get, Found for get and has.
type Result struct {
	Value string
	Found bool
}

// Manage dispatches action on the cookie of typ. Set uses the type's default
// max-age unless opts carries one.
func (m *Manager) Manage(action Action, typ Type, c *fiber.Ctx, value string, opts Options) (Result, error) {
	name, ok := names[typ]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	switch action {
	case ActionSet:
		if c == nil {
			return Result{}, ErrMissingResponse
		}
		if opts.MaxAge == 0 {
			opts.MaxAge = m.maxAges[typ]
		}
		return Result{Value: value, Found: true}, m.Set(c, name, value, opts)
	case ActionClear:
		if c == nil {
			return Result{}, ErrMissingResponse
		}
		return Result{}, m.Clear(c, name, opts)
	case ActionGet, ActionHas:
		if c == nil {
			return Result{}, ErrMissingRequest
		}
		v := m.Get(c, name)
		return Result{Value: v, Found: v != ""}, nil
	}
	return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

// ValidateOptions lists every problem with opts instead of failing on the first.
func ValidateOptions(opts Options) []string {
	var problems []string
	if opts.MaxAge < 0 {
		problems = append(problems, "maxAge must be a non-negative duration")
	}
	if opts.SameSite != "" {
		switch strings.ToLower(opts.SameSite) {
		case "strict", "lax", "none":
		default:
			problems = append(problems, fmt.Sprintf("sameSite must be one of strict, lax, none (got %q)", opts.SameSite))
		}
	}
	if opts.Path != "" && !strings.HasPrefix(opts.Path, "/") {
		problems = append(problems, "path must start with /")
	}
	return problems
}

func normalizeSameSite(s string) string {
	switch strings.ToLower(s) {
	case "strict":
		return fiber.CookieSameSiteStrictMode
	case "none":
		return fiber.CookieSameSiteNoneMode
	}
	return fiber.CookieSameSiteLaxMode
}

// responseCookie looks name up among the Set-Cookie headers already queued.
// A cleared cookie reports ("", true).
func responseCookie(c *fiber.Ctx, name string) (string, bool) {
	fc := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(fc)
	fc.SetKey(name)
	if !c.Response().Header.Cookie(fc) {
		return "", false
	}
	if exp := fc.Expire(); !exp.IsZero() && exp.Before(time.Now()) {
		return "", true
	}
	return string(fc.Value()), true
}

// SetAuth writes the access and refresh cookies with their type lifetimes.
// An empty value is skipped.
func (m *Manager) SetAuth(c *fiber.Ctx, access, refresh string) error {
	if access != "" {
		if err := m.Set(c, names[JWT], access, Options{MaxAge: m.maxAges[JWT]}); err != nil {
			return err
		}
	}
	if refresh != "" {
		if err := m.Set(c, names[Refresh], refresh, Options{MaxAge: m.maxAges[Refresh]}); err != nil {
			return err
		}
	}
	return nil
}

// ClearAuth expires every auth cookie.
func (m *Manager) ClearAuth(c *fiber.Ctx) error {
	for _, typ := range []Type{JWT, Refresh, Session} {
		if err := m.Clear(c, names[typ], Options{}); err != nil {
			return err
		}
	}
	return nil
}
