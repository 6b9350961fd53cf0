package dto

import "github.com/google/uuid"

type RoleRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	IsActive    *bool  `json:"is_active"`
}

type RoleUpdateRequest struct {
	Name        string `json:"name" validate:"max=100"`
	Description string `json:"description" validate:"max=500"`
	IsActive    *bool  `json:"is_active"`
}

type PermissionRequest struct {
	Name        string `json:"name" validate:"max=150"`
	Resource    string `json:"resource" validate:"required,max=100"`
	Action      string `json:"action" validate:"required,max=50"`
	Description string `json:"description" validate:"max=500"`
	IsActive    *bool  `json:"is_active"`
}

type PermissionUpdateRequest struct {
	Name        string `json:"name" validate:"max=150"`
	Resource    string `json:"resource" validate:"max=100"`
	Action      string `json:"action" validate:"max=50"`
	Description string `json:"description" validate:"max=500"`
	IsActive    *bool  `json:"is_active"`
}

type GroupRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	IsActive    *bool  `json:"is_active"`
}

type GroupUpdateRequest struct {
	Name        string `json:"name" validate:"max=100"`
	Description string `json:"description" validate:"max=500"`
	IsActive    *bool  `json:"is_active"`
}

type SetPermissionsRequest struct {
	PermissionIDs []uuid.UUID `json:"permission_ids" validate:"required"`
}

type UserAccessResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	Roles       []string  `json:"roles"`
	Groups      []string  `json:"groups"`
	Permissions []string  `json:"permissions"`
}
