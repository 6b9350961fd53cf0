package modules

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type widget struct{ ID int }
type gadget struct{ ID int }

type fakeModule struct {
	id       string
	models   []interface{}
	err      error
	panicMsg string
	seen     *Deps
}

func (m *fakeModule) ID() string { return m.id }
func (m *fakeModule) Models() []interface{} { return m.models }

func (m *fakeModule) RegisterRoutes(router fiber.Router, deps Deps) error {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.err != nil {
		return m.err
	}
	d := deps
	m.seen = &d
	router.Get("/"+m.id, func(c *fiber.Ctx) error { return c.SendString(m.id) })
	return nil
}

func stubMigrate(t *testing.T, fail map[string]bool) *[][]interface{} {
	t.Helper()
	var calls [][]interface{}
	prev := migrateModels
	migrateModels = func(_ *gorm.DB, list []interface{}) error {
		calls = append(calls, list)
		if fail[modelName(list[0])] {
			return errors.New("relation already exists")
		}
		return nil
	}
	t.Cleanup(func() { migrateModels = prev })
	return &calls
}

func TestBootstrapMountsInOrderAndIsolatesFailures(t *testing.T) {
	calls := stubMigrate(t, map[string]bool{"gadget": true})

	good := &fakeModule{id: "good", models: []interface{}{&widget{}}}
	dup := &fakeModule{id: "good"}
	badMigrate := &fakeModule{id: "broken-migrate", models: []interface{}{&gadget{}}}
	badRoutes := &fakeModule{id: "broken-routes", err: errors.New("missing dependency")}
	panics := &fakeModule{id: "panics", panicMsg: "nil map"}
	last := &fakeModule{id: "last"}

	app := fiber.New()
	report := Bootstrap(app.Group("/api"), Deps{}, []Module{good, dup, badMigrate, badRoutes, panics, nil, last})

	assert.Equal(t, []string{"good", "last"}, report.Mounted)
	require.Len(t, report.Failed, 4)
	assert.Contains(t, report.Failed["broken-migrate"], "migrate")
	assert.Contains(t, report.Failed["broken-routes"], "missing dependency")
	assert.Contains(t, report.Failed["panics"], "panicked")
	assert.Len(t, *calls, 2)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/last", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/broken-routes", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBootstrapModelSet(t *testing.T) {
	stubMigrate(t, nil)

	a := &fakeModule{id: "a", models: []interface{}{&widget{}}}
	clash := &fakeModule{id: "b", models: []interface{}{&widget{}}}
	report := Bootstrap(fiber.New(), Deps{}, []Module{a, clash})

	assert.Equal(t, []string{"a"}, report.Mounted)
	assert.Contains(t, report.Failed["b"], "widget")

	require.NotNil(t, a.seen)
	set := a.seen.Models
	assert.True(t, set.Has("widget"))
	assert.True(t, set.Has("User"))
	owner, ok := set.Owner("widget")
	assert.True(t, ok)
	assert.Equal(t, "a", owner)
	owner, _ = set.Owner("Role")
	assert.Equal(t, "core", owner)
}

func TestBootstrapRejectsEmptyID(t *testing.T) {
	report := Bootstrap(fiber.New(), Deps{}, []Module{&fakeModule{id: "  "}})
	assert.Empty(t, report.Mounted)
	assert.Len(t, report.Failed, 1)
}

func TestMigrateWithoutDatabase(t *testing.T) {
	report := Bootstrap(fiber.New(), Deps{}, []Module{&fakeModule{id: "x", models: []interface{}{&widget{}}}})
	assert.Empty(t, report.Mounted)
	assert.Contains(t, report.Failed["x"], "no database")
}

func TestDepsCannotLeakChanges(t *testing.T) {
	stubMigrate(t, nil)
	cfg := &config.Config{
		Environment:  "Production",
		TokenSources: []string{"cookie"},
		AdminEmails:  "root@example.com",
		JWTSecret:    "do-not-share",
	}
	settings := NewSettings(cfg)
	assert.True(t, settings.IsProduction())

	sources := settings.TokenSources()
	sources[0] = "query"
	assert.Equal(t, []string{"cookie"}, settings.TokenSources())

	emails := settings.AdminEmails()
	emails[0] = "attacker@example.com"
	assert.Equal(t, []string{"root@example.com"}, settings.AdminEmails())

	cfg.TokenSources[0] = "header"
	assert.Equal(t, []string{"cookie"}, settings.TokenSources())

	vandal := &fakeModule{id: "vandal"}
	after := &fakeModule{id: "after"}
	deps := Deps{Settings: settings}
	Bootstrap(fiber.New(), deps, []Module{vandal, after})

	require.NotNil(t, vandal.seen)
	vandal.seen.Settings = Settings{}
	vandal.seen.Models = ModelSet{}
	require.NotNil(t, after.seen)
	assert.True(t, after.seen.Settings.IsProduction())
	assert.True(t, after.seen.Models.Has("User"))
	assert.Equal(t, []string{"cookie"}, deps.Settings.TokenSources())
}

func TestModelSetNamesSorted(t *testing.T) {
	set, clashes := ModelSet{}.with("x", []interface{}{&widget{}, gadget{}})
	assert.Empty(t, clashes)
	assert.Equal(t, []string{"gadget", "widget"}, set.Names())
	assert.Equal(t, 2, set.Len())
}
