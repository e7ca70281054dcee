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

var ErrInvalidAssignment = errors.New("invalid location assignment")

// UserService manages role assignments and location anchoring for accounts.
// Assignments are soft-revoked, preserving history.
type UserService struct {
	PG    *sql.DB
	Users authz.UserStore
	Audit authz.AuditLogger
}

func NewUserService(pg *sql.DB, users authz.UserStore, audit authz.AuditLogger) *UserService {
	return &UserService{PG: pg, Users: users, Audit: audit}
}

// GetUser loads a user row.
func (s *UserService) GetUser(ctx context.Context, id string) (*db.User, error) {
	return s.Users.GetByID(ctx, id)
}

// AssignRole links a user to a role with an optional expiry.
func (s *UserService) AssignRole(ctx context.Context, actorID, userID, roleID string, expiresAt *time.Time) (*db.UserRoleAssignment, error) {
	assignment := &db.UserRoleAssignment{
		ID:         uuid.New().String(),
		UserID:     userID,
		RoleID:     roleID,
		AssignedBy: actorID,
		AssignedAt: time.Now(),
		ExpiresAt:  expiresAt,
		IsActive:   true,
	}

	var expiry interface{}
	if expiresAt != nil {
		expiry = *expiresAt
	}

	_, err := s.PG.ExecContext(ctx, `
		INSERT INTO user_roles (id, user_id, role_id, assigned_by, assigned_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, true)
	`, assignment.ID, userID, roleID, actorID, assignment.AssignedAt, expiry)
	if err != nil {
		return nil, fmt.Errorf("failed to assign role: %w", err)
	}

	s.record(ctx, actorID, "user.assign_role", userID, map[string]interface{}{"role_id": roleID})
	return assignment, nil
}

// RevokeRole soft-revokes all active assignments of one role.
func (s *UserService) RevokeRole(ctx context.Context, actorID, userID, roleID string) error {
	_, err := s.PG.ExecContext(ctx, `
		UPDATE user_roles SET is_active = false
		WHERE user_id = $1 AND role_id = $2 AND is_active = true
	`, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}

	s.record(ctx, actorID, "user.revoke_role", userID, map[string]interface{}{"role_id": roleID})
	return nil
}

type LocationAssignmentInput struct {
	UserLevel        string `json:"user_level" binding:"required"`
	ProvinceID       string `json:"province_id"`
	RegencyID        string `json:"regency_id"`
	DistrictID       string `json:"district_id"`
	VillageID        string `json:"village_id"`
	InheritanceDepth string `json:"inheritance_depth"`
	CanInheritData   bool   `json:"can_inherit_data"`
}

// SetLocationAssignment pins a user to a geography node. The field matching
// the user level is authoritative; the consistency of the ancestor chain is
// the caller's responsibility and is not re-validated at authorization time.
func (s *UserService) SetLocationAssignment(ctx context.Context, actorID, userID string, input LocationAssignmentInput) error {
	switch input.UserLevel {
	case db.UserLevelProvince:
		if input.ProvinceID == "" {
			return fmt.Errorf("%w: province_id is required for province-level users", ErrInvalidAssignment)
		}
	case db.UserLevelRegency:
		if input.RegencyID == "" {
			return fmt.Errorf("%w: regency_id is required for regency-level users", ErrInvalidAssignment)
		}
	case db.UserLevelDistrict:
		if input.DistrictID == "" {
			return fmt.Errorf("%w: district_id is required for district-level users", ErrInvalidAssignment)
		}
	case db.UserLevelVillage:
		if input.VillageID == "" {
			return fmt.Errorf("%w: village_id is required for village-level users", ErrInvalidAssignment)
		}
	case db.UserLevelCitizen:
		// Citizens carry no anchor.
	default:
		return fmt.Errorf("%w: unknown user level %q", ErrInvalidAssignment, input.UserLevel)
	}

	depth := input.InheritanceDepth
	if depth == "" {
		depth = db.InheritanceDirect
	}
	if depth != db.InheritanceDirect && depth != db.InheritanceAllChildren {
		return fmt.Errorf("%w: unknown inheritance depth %q", ErrInvalidAssignment, depth)
	}

	nullable := func(v string) interface{} {
		if v == "" {
			return nil
		}
		return v
	}

	result, err := s.PG.ExecContext(ctx, `
		UPDATE users
		SET user_level = $1,
		    assigned_province_id = $2, assigned_regency_id = $3,
		    assigned_district_id = $4, assigned_village_id = $5,
		    inheritance_depth = $6, can_inherit_data = $7, updated_at = NOW()
		WHERE id = $8
	`, input.UserLevel,
		nullable(input.ProvinceID), nullable(input.RegencyID),
		nullable(input.DistrictID), nullable(input.VillageID),
		depth, input.CanInheritData, userID)
	if err != nil {
		return fmt.Errorf("failed to update location assignment: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return authz.ErrUserNotFound
	}

	s.record(ctx, actorID, "user.set_location", userID, map[string]interface{}{
		"user_level":        input.UserLevel,
		"inheritance_depth": depth,
	})
	return nil
}

// ListUserRoles returns a user's effective role assignments with role names.
func (s *UserService) ListUserRoles(ctx context.Context, userID string) ([]db.UserRoleAssignment, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT ur.id, ur.user_id, ur.role_id, COALESCE(ur.assigned_by::text, ''), ur.assigned_at, ur.expires_at, ur.is_active
		FROM user_roles ur
		WHERE ur.user_id = $1
		  AND ur.is_active = true
		  AND (ur.expires_at IS NULL OR ur.expires_at > NOW())
		ORDER BY ur.assigned_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	defer rows.Close()

	var assignments []db.UserRoleAssignment
	for rows.Next() {
		var a db.UserRoleAssignment
		var expires sql.NullTime
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.AssignedBy, &a.AssignedAt, &expires, &a.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if expires.Valid {
			a.ExpiresAt = &expires.Time
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (s *UserService) record(ctx context.Context, actorID, action, userID string, metadata map[string]interface{}) {
	if s.Audit == nil {
		return
	}
	err := s.Audit.Record(ctx, db.AuditEntry{
		UserID:       actorID,
		Action:       action,
		ResourceType: "user",
		ResourceID:   userID,
		Metadata:     metadata,
	})
	if err != nil {
		log.Printf("Failed to audit %s: %v", action, err)
	}
}
