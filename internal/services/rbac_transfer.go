package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/repository"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const RBACDocumentVersion = "1.0"

// RBACDocument is the export/import format for the role graph.
type RBACDocument struct {
	ExportedAt  time.Time       `json:"exportedAt"`
	Version     string          `json:"version"`
	Permissions []PermissionDoc `json:"permissions"`
	Roles       []RoleDoc       `json:"roles"`
	Groups      []GroupDoc      `json:"groups"`
}

type PermissionDoc struct {
	Name        string `json:"name" validate:"required"`
	Resource    string `json:"resource" validate:"required"`
	Action      string `json:"action" validate:"required"`
	Description string `json:"description"`
}

type RoleDoc struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type GroupDoc struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Roles       []string `json:"roles"`
}

type ImportItemError struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

type ImportResult struct {
	Created int               `json:"created"`
	Updated int               `json:"updated"`
	Skipped int               `json:"skipped"`
	Errors  []ImportItemError `json:"errors,omitempty"`
}

func (r *ImportResult) fail(kind, name string, err error) {
	r.Errors = append(r.Errors, ImportItemError{Kind: kind, Name: name, Error: err.Error()})
	slog.Warn("rbac import item failed", "action", "rbac_import", "kind", kind, "name", name, "error", err)
}

// Export returns the whole permission, role and group graph, inactive
// entries included.
func (s *RBACService) Export(ctx context.Context) (*RBACDocument, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := s.repo.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	permNames := make(map[uuid.UUID]string, len(perms))
	roleNames := make(map[uuid.UUID]string, len(roles))

	doc := &RBACDocument{
		ExportedAt:  time.Now().UTC(),
		Version:     RBACDocumentVersion,
		Permissions: make([]PermissionDoc, 0, len(perms)),
		Roles:       make([]RoleDoc, 0, len(roles)),
		Groups:      make([]GroupDoc, 0, len(groups)),
	}

	for _, p := range perms {
		permNames[p.ID] = p.Name
		doc.Permissions = append(doc.Permissions, PermissionDoc{
			Name: p.Name, Resource: p.Resource, Action: p.Action, Description: p.Description,
		})
	}

	for _, r := range roles {
		roleNames[r.ID] = r.Name
		ids, err := s.repo.RolePermissionIDs(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		doc.Roles = append(doc.Roles, RoleDoc{
			Name: r.Name, Description: r.Description, Permissions: namesOf(ids, permNames),
		})
	}

	for _, g := range groups {
		ids, err := s.repo.GroupRoleIDs(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		doc.Groups = append(doc.Groups, GroupDoc{
			Name: g.Name, Description: g.Description, Roles: namesOf(ids, roleNames),
		})
	}
	return doc, nil
}

func namesOf(ids []uuid.UUID, names map[uuid.UUID]string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := names[id]; ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Import applies doc item by item. Without overwrite existing entries are
// skipped untouched; with overwrite they are updated and their links
// replaced. A failing item is recorded and the rest continue. Every run is
// recorded as an RBACSnapshot.
func (s *RBACService) Import(ctx context.Context, doc *RBACDocument, overwrite bool, actor *uuid.UUID) (*ImportResult, error) {
	if doc == nil {
		return nil, ErrInvalidInput
	}
	res := &ImportResult{}

	for _, p := range doc.Permissions {
		s.importPermission(ctx, p, overwrite, res)
	}
	for _, r := range doc.Roles {
		s.importRole(ctx, r, overwrite, res)
	}
	for _, g := range doc.Groups {
		s.importGroup(ctx, g, overwrite, res)
	}

	s.recordSnapshot(ctx, doc, overwrite, actor, res)
	slog.Info("rbac import finished", "action", "rbac_import", "overwrite", overwrite,
		"created", res.Created, "updated", res.Updated, "skipped", res.Skipped, "failed", len(res.Errors))
	return res, nil
}

func (s *RBACService) importPermission(ctx context.Context, p PermissionDoc, overwrite bool, res *ImportResult) {
	existing, err := s.repo.FindPermissionByName(ctx, p.Name)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if _, err := s.CreatePermission(ctx, PermissionInput{
			Name: p.Name, Resource: p.Resource, Action: p.Action, Description: p.Description,
		}); err != nil {
			res.fail("permission", p.Name, err)
			return
		}
		res.Created++
	case err != nil:
		res.fail("permission", p.Name, err)
	case !overwrite:
		res.Skipped++
	default:
		existing.Resource, existing.Action, existing.Description = p.Resource, p.Action, p.Description
		if err := s.repo.UpdatePermission(ctx, existing); err != nil {
			res.fail("permission", p.Name, mapRepoErr(err, "permission "+p.Name))
			return
		}
		res.Updated++
	}
}

func (s *RBACService) importRole(ctx context.Context, r RoleDoc, overwrite bool, res *ImportResult) {
	role, err := s.repo.FindRoleByName(ctx, r.Name)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		role, err = s.CreateRole(ctx, RoleInput{Name: r.Name, Description: r.Description})
		if err != nil {
			res.fail("role", r.Name, err)
			return
		}
		res.Created++
	case err != nil:
		res.fail("role", r.Name, err)
		return
	case !overwrite:
		res.Skipped++
		return
	default:
		role.Description = r.Description
		if err := s.repo.UpdateRole(ctx, role); err != nil {
			res.fail("role", r.Name, mapRepoErr(err, "role "+r.Name))
			return
		}
		res.Updated++
	}

	ids := make([]uuid.UUID, 0, len(r.Permissions))
	for _, name := range r.Permissions {
		perm, err := s.repo.FindPermissionByName(ctx, name)
		if err != nil {
			res.fail("role_permission", r.Name+"/"+name, mapRepoErr(err, "permission "+name))
			continue
		}
		ids = append(ids, perm.ID)
	}
	if err := s.repo.SetRolePermissions(ctx, role.ID, ids); err != nil {
		res.fail("role_permission", r.Name, err)
	}
}

func (s *RBACService) importGroup(ctx context.Context, g GroupDoc, overwrite bool, res *ImportResult) {
	group, err := s.repo.FindGroupByName(ctx, g.Name)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		group, err = s.CreateGroup(ctx, GroupInput{Name: g.Name, Description: g.Description})
		if err != nil {
			res.fail("group", g.Name, err)
			return
		}
		res.Created++
	case err != nil:
		res.fail("group", g.Name, err)
		return
	case !overwrite:
		res.Skipped++
		return
	default:
		group.Description = g.Description
		if err := s.repo.UpdateGroup(ctx, group); err != nil {
			res.fail("group", g.Name, mapRepoErr(err, "group "+g.Name))
			return
		}
		res.Updated++
	}

	ids := make([]uuid.UUID, 0, len(g.Roles))
	for _, name := range g.Roles {
		role, err := s.repo.FindRoleByName(ctx, name)
		if err != nil {
			res.fail("group_role", g.Name+"/"+name, mapRepoErr(err, "role "+name))
			continue
		}
		ids = append(ids, role.ID)
	}
	if err := s.repo.SetGroupRoles(ctx, group.ID, ids); err != nil {
		res.fail("group_role", g.Name, err)
	}
}

func (s *RBACService) recordSnapshot(ctx context.Context, doc *RBACDocument, overwrite bool, actor *uuid.UUID, res *ImportResult) {
	rawDoc, err := json.Marshal(doc)
	if err != nil {
		slog.Error("failed to encode rbac snapshot", "error", err)
		return
	}
	rawRes, err := json.Marshal(res)
	if err != nil {
		slog.Error("failed to encode rbac snapshot", "error", err)
		return
	}
	snap := &models.RBACSnapshot{
		ActorID:   actor,
		Overwrite: overwrite,
		Document:  datatypes.JSON(rawDoc),
		Result:    datatypes.JSON(rawRes),
	}
	if err := s.repo.SaveSnapshot(ctx, snap); err != nil {
		slog.Error("failed to save rbac snapshot", "error", err)
	}
}
