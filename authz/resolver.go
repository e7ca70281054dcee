package authz

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"

	"github.com/sidesa-id/sidesa/db"
	"github.com/sidesa-id/sidesa/internal/obs"
)

// PermissionSet is a user's effective permission set: the union, across all
// effective role assignments, of permissions reachable via effective grants.
// Permissions is de-duplicated by id and sorted by name. RoleNames includes
// every effective role, even roles with zero grants.
type PermissionSet struct {
	Permissions     []db.Permission
	PermissionNames map[string]bool
	RoleNames       map[string]bool
}

func newPermissionSet(perms map[string]db.Permission, roleNames map[string]bool) *PermissionSet {
	set := &PermissionSet{
		Permissions:     make([]db.Permission, 0, len(perms)),
		PermissionNames: make(map[string]bool, len(perms)),
		RoleNames:       roleNames,
	}
	for _, p := range perms {
		set.Permissions = append(set.Permissions, p)
		set.PermissionNames[p.Name] = true
	}
	sort.Slice(set.Permissions, func(i, j int) bool {
		return set.Permissions[i].Name < set.Permissions[j].Name
	})
	return set
}

// PermissionResolver computes the effective permission set for a user. It is
// a pure read: two calls with no intervening mutation yield identical sets.
type PermissionResolver interface {
	EffectivePermissions(ctx context.Context, userID string) (*PermissionSet, error)
}

// effectiveAssignment and effectiveGrant are the shared effectiveness
// predicates: active, and unexpired or without expiry.
const (
	effectiveAssignment = `ur.is_active = true AND (ur.expires_at IS NULL OR ur.expires_at > NOW())`
	effectiveGrant      = `rp.is_active = true AND (rp.expires_at IS NULL OR rp.expires_at > NOW())`
)

// ============================================================================
// JoinedResolver — optimized aggregate join
// ============================================================================

// JoinedResolver resolves the permission set with one aggregate join across
// user_roles, role_permissions and permissions, plus one query for role names.
type JoinedResolver struct {
	db *sql.DB
}

func NewJoinedResolver(db *sql.DB) *JoinedResolver {
	return &JoinedResolver{db: db}
}

var _ PermissionResolver = (*JoinedResolver)(nil)

func (r *JoinedResolver) EffectivePermissions(ctx context.Context, userID string) (*PermissionSet, error) {
	roleNames, err := r.roleNames(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT p.id, p.name, p.resource, p.action, p.scope, p.is_critical, p.requires_approval
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN roles r ON r.id = rp.role_id
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		  AND `+effectiveAssignment+`
		  AND `+effectiveGrant+`
		  AND r.is_active = true
		  AND p.is_active = true
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	defer rows.Close()

	perms := make(map[string]db.Permission)
	for rows.Next() {
		var p db.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Scope, &p.IsCritical, &p.RequiresApproval); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		p.IsActive = true
		perms[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read permissions: %w", err)
	}

	return newPermissionSet(perms, roleNames), nil
}

func (r *JoinedResolver) roleNames(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		  AND `+effectiveAssignment+`
		  AND r.is_active = true
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve roles: %w", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role name: %w", err)
		}
		names[name] = true
	}
	return names, rows.Err()
}

// ============================================================================
// NaiveResolver — resiliency fallback
// ============================================================================

// NaiveResolver independently queries the user's roles, then the grants of
// each role, and unions the results. Slower than JoinedResolver but free of
// the aggregate query path; both must produce the same set.
type NaiveResolver struct {
	db *sql.DB
}

func NewNaiveResolver(db *sql.DB) *NaiveResolver {
	return &NaiveResolver{db: db}
}

var _ PermissionResolver = (*NaiveResolver)(nil)

func (r *NaiveResolver) EffectivePermissions(ctx context.Context, userID string) (*PermissionSet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		  AND `+effectiveAssignment+`
		  AND r.is_active = true
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	type roleRef struct{ id, name string }
	var roles []roleRef
	for rows.Next() {
		var ref roleRef
		if err := rows.Scan(&ref.id, &ref.name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, ref)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read roles: %w", err)
	}
	rows.Close()

	perms := make(map[string]db.Permission)
	roleNames := make(map[string]bool, len(roles))
	for _, role := range roles {
		roleNames[role.name] = true
		rolePerms, err := r.rolePermissions(ctx, role.id)
		if err != nil {
			return nil, err
		}
		for _, p := range rolePerms {
			perms[p.ID] = p
		}
	}

	return newPermissionSet(perms, roleNames), nil
}

func (r *NaiveResolver) rolePermissions(ctx context.Context, roleID string) ([]db.Permission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.resource, p.action, p.scope, p.is_critical, p.requires_approval
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		  AND `+effectiveGrant+`
		  AND p.is_active = true
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

	var perms []db.Permission
	for rows.Next() {
		var p db.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Scope, &p.IsCritical, &p.RequiresApproval); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		p.IsActive = true
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ============================================================================
// FailoverResolver — primary strategy with automatic fallback
// ============================================================================

// FailoverResolver tries the primary strategy and, on infrastructure failure,
// logs a warning and re-derives the set with the fallback. The two strategies
// are behaviorally equivalent; a fallback never changes the verdict, only the
// query path.
type FailoverResolver struct {
	primary  PermissionResolver
	fallback PermissionResolver
}

func NewFailoverResolver(primary, fallback PermissionResolver) *FailoverResolver {
	return &FailoverResolver{primary: primary, fallback: fallback}
}

var _ PermissionResolver = (*FailoverResolver)(nil)

func (r *FailoverResolver) EffectivePermissions(ctx context.Context, userID string) (*PermissionSet, error) {
	set, err := r.primary.EffectivePermissions(ctx, userID)
	if err == nil {
		return set, nil
	}

	log.Printf("authz: optimized permission resolution failed for user %s, using fallback: %v", userID, err)
	obs.FallbackActivations.WithLabelValues("permissions").Inc()

	set, ferr := r.fallback.EffectivePermissions(ctx, userID)
	if ferr != nil {
		return nil, fmt.Errorf("permission resolution failed (primary: %v): %w", err, ferr)
	}
	return set, nil
}
