package modules

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const coreOwner = "core"

var (
	ErrDuplicateModule = errors.New("duplicate module id")
	ErrEmptyModuleID   = errors.New("module id is empty")
	errNoDatabase      = errors.New("no database configured")
)

// migrateModels is replaced in tests.
var migrateModels = func(db *gorm.DB, list []interface{}) error {
	if db == nil {
		return errNoDatabase
	}
	return database.MigrateModels(db, list)
}

// Report describes the outcome of Bootstrap.
type Report struct {
	Mounted []string          `json:"mounted"`
	Failed  map[string]string `json:"failed,omitempty"`
}

func (r *Report) fail(id string, err error) {
	if r.Failed == nil {
		r.Failed = map[string]string{}
	}
	r.Failed[id] = err.Error()
	slog.Warn("module skipped", "action", "module_bootstrap", "module", id, "error", err)
}

// Bootstrap migrates and mounts mods in order. A module that fails any step
// is recorded in the report and skipped; the rest continue. The core models
// are expected to be migrated already and are listed in the ModelSet as
// owned by "core".
func Bootstrap(router fiber.Router, deps Deps, mods []Module) Report {
	report := Report{Mounted: []string{}}
	set, _ := deps.Models.with(coreOwner, models.Core())
	seen := map[string]bool{coreOwner: true}

	type pending struct {
		mod Module
		id  string
	}
	var ready []pending

	for _, m := range mods {
		if m == nil {
			continue
		}
		id := strings.TrimSpace(m.ID())
		if id == "" {
			report.fail(fmt.Sprintf("%T", m), ErrEmptyModuleID)
			continue
		}
		if seen[id] {
			report.fail(id, ErrDuplicateModule)
			continue
		}
		seen[id] = true

		list := m.Models()
		next, clashes := set.with(id, list)
		if len(clashes) > 0 {
			report.fail(id, fmt.Errorf("models already registered: %s", strings.Join(clashes, ", ")))
			continue
		}
		if len(list) > 0 {
			if err := migrateModels(deps.DB, list); err != nil {
				report.fail(id, fmt.Errorf("migrate: %w", err))
				continue
			}
			slog.Info("module migrated", "module", id, "models", len(list))
		}
		set = next
		ready = append(ready, pending{mod: m, id: id})
	}

	// Every module sees the full model set.
	deps.Models = set
	for _, p := range ready {
		if err := mount(router, deps, p.mod); err != nil {
			report.fail(p.id, err)
			continue
		}
		report.Mounted = append(report.Mounted, p.id)
		slog.Info("module mounted", "module", p.id)
	}
	return report
}

func mount(router fiber.Router, deps Deps, m Module) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("register routes panicked: %v", r)
		}
	}()
	if err := m.RegisterRoutes(router, deps); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}
	return nil
}
