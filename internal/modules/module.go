// Package modules mounts feature modules on the router with a fixed set of
// shared dependencies.
package modules

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/cookies"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/repository"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/tokens"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Module is a feature mounted at start-up.
type Module interface {
	// ID is unique across registered modules.
	ID() string

	// Models returns GORM model pointers for AutoMigrate.
	Models() []interface{}

	// RegisterRoutes mounts the module's routes on the /api group.
	RegisterRoutes(router fiber.Router, deps Deps) error
}

// Deps is what every module receives. It is passed by value and its shared
// parts expose no setters.
type Deps struct {
	DB       *gorm.DB
	Settings Settings
	Tokens   *tokens.Manager
	Cookies  *cookies.Manager
	Auth     *middleware.Auth
	RBAC     *services.RBACService
	Users    repository.UserRepository
	Models   ModelSet
}

// Settings is a read-only view of the configuration. The jwt secret and
// database credentials are not part of it.
type Settings struct {
	environment       string
	cookieDomain      string
	oauthRedirectBase string
	accessTTL         time.Duration
	refreshTTL        time.Duration
	sessionTTL        time.Duration
	tokenSources      []string
	adminEmails       []string
}

func NewSettings(cfg *config.Config) Settings {
	return Settings{
		environment:       cfg.Environment,
		cookieDomain:      cfg.CookieDomain,
		oauthRedirectBase: cfg.OAuthRedirectBase,
		accessTTL:         cfg.JWTAccessExpiry,
		refreshTTL:        cfg.JWTRefreshExpiry,
		sessionTTL:        cfg.SessionTTL,
		tokenSources:      append([]string(nil), cfg.TokenSources...),
		adminEmails:       cfg.AdminEmailList(),
	}
}

func (s Settings) Environment() string { return s.environment }
func (s Settings) IsProduction() bool { return strings.EqualFold(s.environment, "production") }
func (s Settings) CookieDomain() string { return s.cookieDomain }
func (s Settings) OAuthRedirectBase() string { return s.oauthRedirectBase }
func (s Settings) AccessTTL() time.Duration { return s.accessTTL }
func (s Settings) RefreshTTL() time.Duration { return s.refreshTTL }
func (s Settings) SessionTTL() time.Duration { return s.sessionTTL }
func (s Settings) TokenSources() []string { return append([]string(nil), s.tokenSources...) }
func (s Settings) AdminEmails() []string { return append([]string(nil), s.adminEmails...) }

// ModelSet lists the model type names migrated at start-up.
type ModelSet struct {
	names map[string]string // type name -> owning module
}

func (m ModelSet) Has(name string) bool {
	_, ok := m.names[name]
	return ok
}

// Owner returns the id of the module that registered name; core models are
// owned by "core".
func (m ModelSet) Owner(name string) (string, bool) {
	owner, ok := m.names[name]
	return owner, ok
}

func (m ModelSet) Names() []string {
	out := make([]string, 0, len(m.names))
	for n := range m.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (m ModelSet) Len() int { return len(m.names) }

// with returns a copy of m extended by models owned by owner. A name that is
// already taken is reported and left with its first owner.
func (m ModelSet) with(owner string, list []interface{}) (ModelSet, []string) {
	next := make(map[string]string, len(m.names)+len(list))
	for k, v := range m.names {
		next[k] = v
	}
	var clashes []string
	for _, model := range list {
		name := modelName(model)
		if prev, ok := next[name]; ok && prev != owner {
			clashes = append(clashes, name)
			continue
		}
		next[name] = owner
	}
	return ModelSet{names: next}, clashes
}

func modelName(model interface{}) string {
	t := reflect.TypeOf(model)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}
