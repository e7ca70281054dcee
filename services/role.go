package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sidesa-id/sidesa/authz"
	"github.com/sidesa-id/sidesa/db"
)

var (
	ErrRoleNotFound      = errors.New("role not found")
	ErrRoleNotDeletable  = errors.New("role cannot be deleted")
	ErrRoleAlreadyExists = errors.New("role already exists")
)

// RoleService manages the role catalog and its permission grants. Grants are
// soft-revoked, never deleted, so history stays available for audit.
type RoleService struct {
	PG    *sql.DB
	Audit authz.AuditLogger
}

func NewRoleService(pg *sql.DB, audit authz.AuditLogger) *RoleService {
	return &RoleService{PG: pg, Audit: audit}
}

type CreateRoleInput struct {
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description"`
	ParentRoleID string `json:"parent_role_id"`
}

// CreateRole adds a role. The parent link is organizational display only and
// never cascades permission grants.
func (s *RoleService) CreateRole(ctx context.Context, actorID string, input CreateRoleInput) (*db.Role, error) {
	var exists bool
	if err := s.PG.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM roles WHERE name = $1)`, input.Name).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check role name: %w", err)
	}
	if exists {
		return nil, ErrRoleAlreadyExists
	}

	role := &db.Role{
		ID:           uuid.New().String(),
		Name:         input.Name,
		Description:  input.Description,
		ParentRoleID: input.ParentRoleID,
		IsDeletable:  true,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	var parent interface{}
	if role.ParentRoleID != "" {
		parent = role.ParentRoleID
	}

	_, err := s.PG.ExecContext(ctx, `
		INSERT INTO roles (id, name, description, parent_role_id, is_system_role, is_deletable, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, false, true, true, $5, $6)
	`, role.ID, role.Name, role.Description, parent, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	s.record(ctx, actorID, "role.create", "role", role.ID, map[string]interface{}{"name": role.Name})
	return role, nil
}

// ListRoles returns all active roles.
func (s *RoleService) ListRoles(ctx context.Context) ([]db.Role, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), COALESCE(parent_role_id::text, ''),
		       is_system_role, is_deletable, is_active, created_at, updated_at
		FROM roles
		WHERE is_active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []db.Role
	for rows.Next() {
		var r db.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.ParentRoleID,
			&r.IsSystemRole, &r.IsDeletable, &r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// ReplaceRolePermissions swaps a role's full permission set in one
// all-or-nothing transaction: existing grants are soft-revoked and the new
// grants inserted atomically, so no concurrent decision can observe the role
// with neither the old nor the new set.
func (s *RoleService) ReplaceRolePermissions(ctx context.Context, actorID, roleID string, permissionIDs []string) error {
	tx, err := s.PG.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if !exists {
		return ErrRoleNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE role_permissions SET is_active = false
		WHERE role_id = $1 AND is_active = true
	`, roleID); err != nil {
		return fmt.Errorf("failed to revoke existing grants: %w", err)
	}

	for _, permissionID := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (id, role_id, permission_id, granted_by, granted_at, is_active)
			VALUES ($1, $2, $3, $4, NOW(), true)
		`, uuid.New().String(), roleID, permissionID, actorID); err != nil {
			return fmt.Errorf("failed to grant permission %s: %w", permissionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit permission replacement: %w", err)
	}

	s.record(ctx, actorID, "role.replace_permissions", "role", roleID, map[string]interface{}{
		"permission_count": len(permissionIDs),
	})
	return nil
}

// GrantPermission adds a single grant with an optional expiry.
func (s *RoleService) GrantPermission(ctx context.Context, actorID, roleID, permissionID string, expiresAt *time.Time) error {
	var expiry interface{}
	if expiresAt != nil {
		expiry = *expiresAt
	}
	_, err := s.PG.ExecContext(ctx, `
		INSERT INTO role_permissions (id, role_id, permission_id, granted_by, granted_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, NOW(), $5, true)
	`, uuid.New().String(), roleID, permissionID, actorID, expiry)
	if err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}

	s.record(ctx, actorID, "role.grant_permission", "role", roleID, map[string]interface{}{
		"permission_id": permissionID,
	})
	return nil
}

// RevokePermission soft-revokes all active grants of one permission.
func (s *RoleService) RevokePermission(ctx context.Context, actorID, roleID, permissionID string) error {
	_, err := s.PG.ExecContext(ctx, `
		UPDATE role_permissions SET is_active = false
		WHERE role_id = $1 AND permission_id = $2 AND is_active = true
	`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}

	s.record(ctx, actorID, "role.revoke_permission", "role", roleID, map[string]interface{}{
		"permission_id": permissionID,
	})
	return nil
}

// ListPermissions returns the active permission catalog.
func (s *RoleService) ListPermissions(ctx context.Context) ([]db.Permission, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT id, name, resource, action, scope, is_critical, requires_approval, is_active, created_at, updated_at
		FROM permissions
		WHERE is_active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []db.Permission
	for rows.Next() {
		var p db.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Scope,
			&p.IsCritical, &p.RequiresApproval, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *RoleService) record(ctx context.Context, actorID, action, resourceType, resourceID string, metadata map[string]interface{}) {
	if s.Audit == nil {
		return
	}
	err := s.Audit.Record(ctx, db.AuditEntry{
		UserID:       actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
	})
	if err != nil {
		log.Printf("Failed to audit %s: %v", action, err)
	}
}
