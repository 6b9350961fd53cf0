// Package repotest provides in-memory repositories for tests that should not
// need a database.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/repository"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/tokens"
	"github.com/google/uuid"
)

type pair struct{ a, b uuid.UUID }

// Store implements repository.UserRepository and repository.RBACRepository
// over maps. It mirrors the database constraints: unique names, unique link
// pairs and cascading deletes.
type Store struct {
	mu sync.RWMutex

	users    map[uuid.UUID]models.User
	profiles map[uuid.UUID]models.UserProfile
	logins   map[string]uuid.UUID // provider + "\x00" + key

	roles  map[uuid.UUID]models.Role
	perms  map[uuid.UUID]models.Permission
	groups map[uuid.UUID]models.Group

	userRoles  map[pair]struct{}
	userGroups map[pair]struct{}
	rolePerms  map[pair]struct{}
	groupRoles map[pair]struct{}

	Snapshots []models.RBACSnapshot
}

var (
	_ repository.UserRepository = (*Store)(nil)
	_ repository.RBACRepository = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		users:      map[uuid.UUID]models.User{},
		profiles:   map[uuid.UUID]models.UserProfile{},
		logins:     map[string]uuid.UUID{},
		roles:      map[uuid.UUID]models.Role{},
		perms:      map[uuid.UUID]models.Permission{},
		groups:     map[uuid.UUID]models.Group{},
		userRoles:  map[pair]struct{}{},
		userGroups: map[pair]struct{}{},
		rolePerms:  map[pair]struct{}{},
		groupRoles: map[pair]struct{}{},
	}
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
}

func duplicate(what string) error {
	return fmt.Errorf("%s: %w", what, repository.ErrDuplicate)
}

func stamp(id *uuid.UUID, created, updated *time.Time) {
	now := time.Now()
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// =============================================================================
// Users
// =============================================================================

func (s *Store) Create(_ context.Context, user *models.User, profile *models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return duplicate("email " + user.Email)
		}
	}
	stamp(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if profile == nil {
		profile = &models.UserProfile{}
	}
	profile.UserID = user.ID
	profile.CreatedAt, profile.UpdatedAt = user.CreatedAt, user.UpdatedAt
	user.Profile = profile

	stored := *user
	stored.Profile = nil
	s.users[user.ID] = stored
	s.profiles[user.ID] = *profile
	return nil
}

func (s *Store) withProfile(u models.User) *models.User {
	if p, ok := s.profiles[u.ID]; ok {
		u.Profile = &p
	}
	return &u
}

func (s *Store) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok || u.DeletedAt.Valid {
		return nil, notFound("user " + id.String())
	}
	return s.withProfile(u), nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) && !u.DeletedAt.Valid {
			return s.withProfile(u), nil
		}
	}
	return nil, notFound("user " + email)
}

func (s *Store) FindByLogin(_ context.Context, provider, key string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.logins[provider+"\x00"+key]
	if !ok {
		return nil, notFound("login " + provider)
	}
	u, ok := s.users[id]
	if !ok || u.DeletedAt.Valid {
		return nil, notFound("user " + id.String())
	}
	return s.withProfile(u), nil
}

func (s *Store) AddLogin(_ context.Context, login *models.UserLogin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := login.Name + "\x00" + login.Key
	if _, ok := s.logins[k]; ok {
		return duplicate("login " + login.Name)
	}
	stamp(&login.ID, &login.CreatedAt, &login.UpdatedAt)
	s.logins[k] = login.UserID
	return nil
}

func (s *Store) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return notFound("user " + user.ID.String())
	}
	for id, u := range s.users {
		if id != user.ID && strings.EqualFold(u.Email, user.Email) {
			return duplicate("email " + user.Email)
		}
	}
	user.UpdatedAt = time.Now()
	stored := *user
	stored.Profile = nil
	s.users[user.ID] = stored
	return nil
}

func (s *Store) UpdateProfile(_ context.Context, profile *models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[profile.UserID]; !ok {
		return notFound("user " + profile.UserID.String())
	}
	profile.UpdatedAt = time.Now()
	s.profiles[profile.UserID] = *profile
	return nil
}

func (s *Store) List(_ context.Context, opts repository.ListOptions) ([]models.User, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.User
	for _, u := range s.users {
		if u.DeletedAt.Valid || !matches(u, opts.Filters) {
			continue
		}
		out = append(out, *s.withProfile(u))
	}

	sort.Slice(out, func(i, j int) bool {
		less := out[i].CreatedAt.Before(out[j].CreatedAt)
		if opts.SortField == "email" {
			less = out[i].Email < out[j].Email
		}
		if opts.SortDesc {
			return !less
		}
		return less
	})

	total := int64(len(out))
	if opts.Offset >= len(out) {
		return []models.User{}, total, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, total, nil
}

func matches(u models.User, filters map[string]string) bool {
	for k, v := range filters {
		want := v == "true" || v == "1"
		switch k {
		case "email":
			if !strings.Contains(strings.ToLower(u.Email), strings.ToLower(v)) {
				return false
			}
		case "is_active":
			if u.IsActive != want {
				return false
			}
		case "is_locked":
			if u.IsLocked != want {
				return false
			}
		case "email_confirmed":
			if u.EmailConfirmed != want {
				return false
			}
		}
	}
	return true
}

// =============================================================================
// Roles, permissions, groups
// =============================================================================

func (s *Store) CreateRole(_ context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == role.Name {
			return duplicate("role " + role.Name)
		}
	}
	stamp(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	s.roles[role.ID] = *role
	return nil
}

func (s *Store) UpdateRole(_ context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; !ok {
		return notFound("role " + role.ID.String())
	}
	for id, r := range s.roles {
		if id != role.ID && r.Name == role.Name {
			return duplicate("role " + role.Name)
		}
	}
	role.UpdatedAt = time.Now()
	s.roles[role.ID] = *role
	return nil
}

func (s *Store) DeleteRole(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return notFound("role " + id.String())
	}
	delete(s.roles, id)
	dropLinks(s.userRoles, func(p pair) bool { return p.b == id })
	dropLinks(s.groupRoles, func(p pair) bool { return p.b == id })
	dropLinks(s.rolePerms, func(p pair) bool { return p.a == id })
	return nil
}

func (s *Store) FindRoleByID(_ context.Context, id uuid.UUID) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, notFound("role " + id.String())
	}
	return &r, nil
}

func (s *Store) FindRoleByName(_ context.Context, name string) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, notFound("role " + name)
}

func (s *Store) ListRoles(_ context.Context) ([]models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreatePermission(_ context.Context, perm *models.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.perms {
		if p.Name == perm.Name || (p.Resource == perm.Resource && p.Action == perm.Action) {
			return duplicate("permission " + perm.Name)
		}
	}
	stamp(&perm.ID, &perm.CreatedAt, &perm.UpdatedAt)
	s.perms[perm.ID] = *perm
	return nil
}

func (s *Store) UpdatePermission(_ context.Context, perm *models.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[perm.ID]; !ok {
		return notFound("permission " + perm.ID.String())
	}
	for id, p := range s.perms {
		if id != perm.ID && (p.Name == perm.Name || (p.Resource == perm.Resource && p.Action == perm.Action)) {
			return duplicate("permission " + perm.Name)
		}
	}
	perm.UpdatedAt = time.Now()
	s.perms[perm.ID] = *perm
	return nil
}

func (s *Store) DeletePermission(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[id]; !ok {
		return notFound("permission " + id.String())
	}
	delete(s.perms, id)
	dropLinks(s.rolePerms, func(p pair) bool { return p.b == id })
	return nil
}

func (s *Store) FindPermissionByID(_ context.Context, id uuid.UUID) (*models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.perms[id]
	if !ok {
		return nil, notFound("permission " + id.String())
	}
	return &p, nil
}

func (s *Store) FindPermissionByName(_ context.Context, name string) (*models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.perms {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, notFound("permission " + name)
}

func (s *Store) FindPermissionByResourceAction(_ context.Context, resource, action string) (*models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.perms {
		if p.Resource == resource && p.Action == action {
			return &p, nil
		}
	}
	return nil, notFound("permission " + resource + ":" + action)
}

func (s *Store) ListPermissions(_ context.Context) ([]models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateGroup(_ context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.Name == group.Name {
			return duplicate("group " + group.Name)
		}
	}
	stamp(&group.ID, &group.CreatedAt, &group.UpdatedAt)
	s.groups[group.ID] = *group
	return nil
}

func (s *Store) UpdateGroup(_ context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group.ID]; !ok {
		return notFound("group " + group.ID.String())
	}
	for id, g := range s.groups {
		if id != group.ID && g.Name == group.Name {
			return duplicate("group " + group.Name)
		}
	}
	group.UpdatedAt = time.Now()
	s.groups[group.ID] = *group
	return nil
}

func (s *Store) DeleteGroup(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return notFound("group " + id.String())
	}
	delete(s.groups, id)
	dropLinks(s.userGroups, func(p pair) bool { return p.b == id })
	dropLinks(s.groupRoles, func(p pair) bool { return p.a == id })
	return nil
}

func (s *Store) FindGroupByID(_ context.Context, id uuid.UUID) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, notFound("group " + id.String())
	}
	return &g, nil
}

func (s *Store) FindGroupByName(_ context.Context, name string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.Name == name {
			return &g, nil
		}
	}
	return nil, notFound("group " + name)
}

func (s *Store) ListGroups(_ context.Context) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// Links
// =============================================================================

func dropLinks(m map[pair]struct{}, match func(pair) bool) {
	for p := range m {
		if match(p) {
			delete(m, p)
		}
	}
}

func (s *Store) addLink(m map[pair]struct{}, a, b uuid.UUID, aOK, bOK bool) error {
	if !aOK || !bOK {
		return notFound("link parent")
	}
	m[pair{a, b}] = struct{}{}
	return nil
}

func (s *Store) AddUserRole(_ context.Context, userID, roleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, u := s.users[userID]
	_, r := s.roles[roleID]
	return s.addLink(s.userRoles, userID, roleID, u, r)
}

func (s *Store) RemoveUserRole(_ context.Context, userID, roleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userRoles, pair{userID, roleID})
	return nil
}

func (s *Store) AddUserGroup(_ context.Context, userID, groupID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, u := s.users[userID]
	_, g := s.groups[groupID]
	return s.addLink(s.userGroups, userID, groupID, u, g)
}

func (s *Store) RemoveUserGroup(_ context.Context, userID, groupID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userGroups, pair{userID, groupID})
	return nil
}

func (s *Store) AddRolePermission(_ context.Context, roleID, permID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, r := s.roles[roleID]
	_, p := s.perms[permID]
	return s.addLink(s.rolePerms, roleID, permID, r, p)
}

func (s *Store) RemoveRolePermission(_ context.Context, roleID, permID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rolePerms, pair{roleID, permID})
	return nil
}

func (s *Store) SetRolePermissions(_ context.Context, roleID uuid.UUID, permIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return notFound("role " + roleID.String())
	}
	for _, id := range permIDs {
		if _, ok := s.perms[id]; !ok {
			return notFound("permission " + id.String())
		}
	}
	dropLinks(s.rolePerms, func(p pair) bool { return p.a == roleID })
	for _, id := range permIDs {
		s.rolePerms[pair{roleID, id}] = struct{}{}
	}
	return nil
}

func (s *Store) AddGroupRole(_ context.Context, groupID, roleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, g := s.groups[groupID]
	_, r := s.roles[roleID]
	return s.addLink(s.groupRoles, groupID, roleID, g, r)
}

func (s *Store) RemoveGroupRole(_ context.Context, groupID, roleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groupRoles, pair{groupID, roleID})
	return nil
}

func (s *Store) SetGroupRoles(_ context.Context, groupID uuid.UUID, roleIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return notFound("group " + groupID.String())
	}
	for _, id := range roleIDs {
		if _, ok := s.roles[id]; !ok {
			return notFound("role " + id.String())
		}
	}
	dropLinks(s.groupRoles, func(p pair) bool { return p.a == groupID })
	for _, id := range roleIDs {
		s.groupRoles[pair{groupID, id}] = struct{}{}
	}
	return nil
}

// =============================================================================
// Resolution
// =============================================================================

func (s *Store) RolesForUser(_ context.Context, userID uuid.UUID) ([]models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Role
	for p := range s.userRoles {
		if r, ok := s.roles[p.b]; ok && p.a == userID && r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GroupsForUser(_ context.Context, userID uuid.UUID) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Group
	for p := range s.userGroups {
		if g, ok := s.groups[p.b]; ok && p.a == userID && g.IsActive {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) RolesForGroups(_ context.Context, groupIDs []uuid.UUID) ([]models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[uuid.UUID]bool, len(groupIDs))
	for _, id := range groupIDs {
		want[id] = true
	}
	seen := map[uuid.UUID]bool{}
	var out []models.Role
	for p := range s.groupRoles {
		r, ok := s.roles[p.b]
		if !ok || !want[p.a] || !r.IsActive || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) PermissionsForRoles(_ context.Context, roleIDs []uuid.UUID) ([]models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[uuid.UUID]bool, len(roleIDs))
	for _, id := range roleIDs {
		want[id] = true
	}
	seen := map[uuid.UUID]bool{}
	var out []models.Permission
	for p := range s.rolePerms {
		perm, ok := s.perms[p.b]
		if !ok || !want[p.a] || !perm.IsActive || seen[perm.ID] {
			continue
		}
		seen[perm.ID] = true
		out = append(out, perm)
	}
	return out, nil
}

func (s *Store) RolePermissionIDs(_ context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uuid.UUID
	for p := range s.rolePerms {
		if p.a == roleID {
			out = append(out, p.b)
		}
	}
	return out, nil
}

func (s *Store) GroupRoleIDs(_ context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uuid.UUID
	for p := range s.groupRoles {
		if p.a == groupID {
			out = append(out, p.b)
		}
	}
	return out, nil
}

func (s *Store) SaveSnapshot(_ context.Context, snap *models.RBACSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	snap.CreatedAt = time.Now()
	s.Snapshots = append(s.Snapshots, *snap)
	return nil
}

// =============================================================================
// Blacklist
// =============================================================================

// Blacklist is an in-memory tokens.Blacklist.
type Blacklist struct {
	mu      sync.Mutex
	entries map[string]tokens.BlacklistEntry
}

var _ tokens.Blacklist = (*Blacklist)(nil)

func NewBlacklist() *Blacklist {
	return &Blacklist{entries: map[string]tokens.BlacklistEntry{}}
}

func (b *Blacklist) Add(_ context.Context, entry tokens.BlacklistEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[entry.JTI] = entry
	return nil
}

func (b *Blacklist) Contains(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[jti]
	return ok && time.Now().Before(e.ExpiresAt), nil
}

func (b *Blacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
