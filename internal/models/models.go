package models

// Core lists the models every deployment migrates before any module runs.
func Core() []interface{} {
	return []interface{}{
		&User{},
		&UserProfile{},
		&UserLogin{},
		&Role{},
		&Permission{},
		&Group{},
		&UserRole{},
		&RolePermission{},
		&UserGroup{},
		&GroupRole{},
		&RevokedToken{},
		&RBACSnapshot{},
		&SystemLog{},
	}
}
