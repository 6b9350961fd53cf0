package repository

import (
	"context"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type rbacRepository struct {
	db *gorm.DB
}

func NewRBACRepository(db *gorm.DB) RBACRepository {
	return &rbacRepository{db: db}
}

// =============================================================================
// Roles
// =============================================================================

func (r *rbacRepository) CreateRole(ctx context.Context, role *models.Role) error {
	return translate(r.db.WithContext(ctx).Create(role).Error, "failed to create role %s", role.Name)
}

func (r *rbacRepository) UpdateRole(ctx context.Context, role *models.Role) error {
	return translate(r.db.WithContext(ctx).Save(role).Error, "failed to update role %s", role.Name)
}

func (r *rbacRepository) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return r.deleteByID(ctx, &models.Role{}, id, "role")
}

func (r *rbacRepository) FindRoleByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	var role models.Role
	if err := r.db.WithContext(ctx).First(&role, "id = ?", id).Error; err != nil {
		return nil, translate(err, "failed to find role %s", id)
	}
	return &role, nil
}

func (r *rbacRepository) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, translate(err, "failed to find role %s", name)
	}
	return &role, nil
}

func (r *rbacRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := r.db.WithContext(ctx).Order("name").Find(&roles).Error; err != nil {
		return nil, translate(err, "failed to list roles")
	}
	return roles, nil
}

// =============================================================================
// Permissions
// =============================================================================

func (r *rbacRepository) CreatePermission(ctx context.Context, perm *models.Permission) error {
	return translate(r.db.WithContext(ctx).Create(perm).Error, "failed to create permission %s", perm.Name)
}

func (r *rbacRepository) UpdatePermission(ctx context.Context, perm *models.Permission) error {
	return translate(r.db.WithContext(ctx).Save(perm).Error, "failed to update permission %s", perm.Name)
}

func (r *rbacRepository) DeletePermission(ctx context.Context, id uuid.UUID) error {
	return r.deleteByID(ctx, &models.Permission{}, id, "permission")
}

func (r *rbacRepository) FindPermissionByID(ctx context.Context, id uuid.UUID) (*models.Permission, error) {
	var perm models.Permission
	if err := r.db.WithContext(ctx).First(&perm, "id = ?", id).Error; err != nil {
		return nil, translate(err, "failed to find permission %s", id)
	}
	return &perm, nil
}

func (r *rbacRepository) FindPermissionByName(ctx context.Context, name string) (*models.Permission, error) {
	var perm models.Permission
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&perm).Error; err != nil {
		return nil, translate(err, "failed to find permission %s", name)
	}
	return &perm, nil
}

func (r *rbacRepository) FindPermissionByResourceAction(ctx context.Context, resource, action string) (*models.Permission, error) {
	var perm models.Permission
	err := r.db.WithContext(ctx).Where("resource = ? AND action = ?", resource, action).First(&perm).Error
	if err != nil {
		return nil, translate(err, "failed to find permission %s:%s", resource, action)
	}
	return &perm, nil
}

func (r *rbacRepository) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	var perms []models.Permission
	if err := r.db.WithContext(ctx).Order("name").Find(&perms).Error; err != nil {
		return nil, translate(err, "failed to list permissions")
	}
	return perms, nil
}

// =============================================================================
// Groups
// =============================================================================

func (r *rbacRepository) CreateGroup(ctx context.Context, group *models.Group) error {
	return translate(r.db.WithContext(ctx).Create(group).Error, "failed to create group %s", group.Name)
}

func (r *rbacRepository) UpdateGroup(ctx context.Context, group *models.Group) error {
	return translate(r.db.WithContext(ctx).Save(group).Error, "failed to update group %s", group.Name)
}

func (r *rbacRepository) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	return r.deleteByID(ctx, &models.Group{}, id, "group")
}

func (r *rbacRepository) FindGroupByID(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	var group models.Group
	if err := r.db.WithContext(ctx).First(&group, "id = ?", id).Error; err != nil {
		return nil, translate(err, "failed to find group %s", id)
	}
	return &group, nil
}

func (r *rbacRepository) FindGroupByName(ctx context.Context, name string) (*models.Group, error) {
	var group models.Group
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&group).Error; err != nil {
		return nil, translate(err, "failed to find group %s", name)
	}
	return &group, nil
}

func (r *rbacRepository) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := r.db.WithContext(ctx).Order("name").Find(&groups).Error; err != nil {
		return nil, translate(err, "failed to list groups")
	}
	return groups, nil
}

func (r *rbacRepository) deleteByID(ctx context.Context, model interface{}, id uuid.UUID, kind string) error {
	res := r.db.WithContext(ctx).Delete(model, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, "failed to delete %s %s", kind, id)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "failed to delete %s %s", kind, id)
	}
	return nil
}

// =============================================================================
// Links
// =============================================================================

// link inserts a junction row, doing nothing when the pair already exists.
func (r *rbacRepository) link(ctx context.Context, row interface{}, what string) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
	return translate(err, "failed to link %s", what)
}

func (r *rbacRepository) AddUserRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return r.link(ctx, &models.UserRole{UserID: userID, RoleID: roleID}, "user role")
}

func (r *rbacRepository) RemoveUserRole(ctx context.Context, userID, roleID uuid.UUID) error {
	err := r.db.WithContext(ctx).Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&models.UserRole{}).Error
	return translate(err, "failed to unlink user role")
}

func (r *rbacRepository) AddUserGroup(ctx context.Context, userID, groupID uuid.UUID) error {
	return r.link(ctx, &models.UserGroup{UserID: userID, GroupID: groupID}, "user group")
}

func (r *rbacRepository) RemoveUserGroup(ctx context.Context, userID, groupID uuid.UUID) error {
	err := r.db.WithContext(ctx).Where("user_id = ? AND group_id = ?", userID, groupID).Delete(&models.UserGroup{}).Error
	return translate(err, "failed to unlink user group")
}

func (r *rbacRepository) AddRolePermission(ctx context.Context, roleID, permID uuid.UUID) error {
	return r.link(ctx, &models.RolePermission{RoleID: roleID, PermissionID: permID}, "role permission")
}

func (r *rbacRepository) RemoveRolePermission(ctx context.Context, roleID, permID uuid.UUID) error {
	err := r.db.WithContext(ctx).Where("role_id = ? AND permission_id = ?", roleID, permID).Delete(&models.RolePermission{}).Error
	return translate(err, "failed to unlink role permission")
}

func (r *rbacRepository) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permIDs []uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", roleID).Delete(&models.RolePermission{}).Error; err != nil {
			return err
		}
		if len(permIDs) == 0 {
			return nil
		}
		rows := make([]models.RolePermission, 0, len(permIDs))
		for _, id := range dedupe(permIDs) {
			rows = append(rows, models.RolePermission{RoleID: roleID, PermissionID: id})
		}
		return tx.Create(&rows).Error
	})
	return translate(err, "failed to set permissions of role %s", roleID)
}

func (r *rbacRepository) AddGroupRole(ctx context.Context, groupID, roleID uuid.UUID) error {
	return r.link(ctx, &models.GroupRole{GroupID: groupID, RoleID: roleID}, "group role")
}

func (r *rbacRepository) RemoveGroupRole(ctx context.Context, groupID, roleID uuid.UUID) error {
	err := r.db.WithContext(ctx).Where("group_id = ? AND role_id = ?", groupID, roleID).Delete(&models.GroupRole{}).Error
	return translate(err, "failed to unlink group role")
}

func (r *rbacRepository) SetGroupRoles(ctx context.Context, groupID uuid.UUID, roleIDs []uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupRole{}).Error; err != nil {
			return err
		}
		if len(roleIDs) == 0 {
			return nil
		}
		rows := make([]models.GroupRole, 0, len(roleIDs))
		for _, id := range dedupe(roleIDs) {
			rows = append(rows, models.GroupRole{GroupID: groupID, RoleID: id})
		}
		return tx.Create(&rows).Error
	})
	return translate(err, "failed to set roles of group %s", groupID)
}

// =============================================================================
// Resolution
// =============================================================================

func (r *rbacRepository) RolesForUser(ctx context.Context, userID uuid.UUID) ([]models.Role, error) {
	var roles []models.Role
	err := r.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ? AND roles.is_active = ?", userID, true).
		Order("roles.name").
		Find(&roles).Error
	if err != nil {
		return nil, translate(err, "failed to load roles of user %s", userID)
	}
	return roles, nil
}

func (r *rbacRepository) GroupsForUser(ctx context.Context, userID uuid.UUID) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.WithContext(ctx).
		Joins("JOIN user_groups ON user_groups.group_id = groups.id").
		Where("user_groups.user_id = ? AND groups.is_active = ?", userID, true).
		Order("groups.name").
		Find(&groups).Error
	if err != nil {
		return nil, translate(err, "failed to load groups of user %s", userID)
	}
	return groups, nil
}

func (r *rbacRepository) RolesForGroups(ctx context.Context, groupIDs []uuid.UUID) ([]models.Role, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var roles []models.Role
	err := r.db.WithContext(ctx).
		Distinct("roles.*").
		Joins("JOIN group_roles ON group_roles.role_id = roles.id").
		Where("group_roles.group_id IN ? AND roles.is_active = ?", groupIDs, true).
		Find(&roles).Error
	if err != nil {
		return nil, translate(err, "failed to load roles of groups")
	}
	return roles, nil
}

func (r *rbacRepository) PermissionsForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]models.Permission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var perms []models.Permission
	err := r.db.WithContext(ctx).
		Distinct("permissions.*").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id IN ? AND permissions.is_active = ?", roleIDs, true).
		Find(&perms).Error
	if err != nil {
		return nil, translate(err, "failed to load permissions of roles")
	}
	return perms, nil
}

func (r *rbacRepository) RolePermissionIDs(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.RolePermission{}).
		Where("role_id = ?", roleID).
		Pluck("permission_id", &ids).Error
	if err != nil {
		return nil, translate(err, "failed to list permissions of role %s", roleID)
	}
	return ids, nil
}

func (r *rbacRepository) GroupRoleIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.GroupRole{}).
		Where("group_id = ?", groupID).
		Pluck("role_id", &ids).Error
	if err != nil {
		return nil, translate(err, "failed to list roles of group %s", groupID)
	}
	return ids, nil
}

func (r *rbacRepository) SaveSnapshot(ctx context.Context, snap *models.RBACSnapshot) error {
	return translate(r.db.WithContext(ctx).Create(snap).Error, "failed to save rbac snapshot")
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
