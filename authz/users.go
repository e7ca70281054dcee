package authz

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sidesa-id/sidesa/db"
)

// UserStore is the read contract for loading the actor's account row.
type UserStore interface {
	// GetByID returns ErrUserNotFound when the user does not exist.
	GetByID(ctx context.Context, id string) (*db.User, error)
}

// SQLUserStore implements UserStore over the users table.
type SQLUserStore struct {
	db *sql.DB
}

func NewSQLUserStore(db *sql.DB) *SQLUserStore {
	return &SQLUserStore{db: db}
}

var _ UserStore = (*SQLUserStore)(nil)

func (s *SQLUserStore) GetByID(ctx context.Context, id string) (*db.User, error) {
	var user db.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, user_level,
		       COALESCE(assigned_province_id, ''), COALESCE(assigned_regency_id, ''),
		       COALESCE(assigned_district_id, ''), COALESCE(assigned_village_id, ''),
		       can_inherit_data, inheritance_depth, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &user.Name, &user.UserLevel,
		&user.AssignedProvinceID, &user.AssignedRegencyID,
		&user.AssignedDistrictID, &user.AssignedVillageID,
		&user.CanInheritData, &user.InheritanceDepth, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &user, nil
}
