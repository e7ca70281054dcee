package db

import "time"

// ===========================
// ENUM VALUES
// ===========================

// Administrative geography levels, top-down.
const (
	LevelProvince = "province"
	LevelRegency  = "regency"
	LevelDistrict = "district"
	LevelVillage  = "village"
)

// User levels. Citizens are not pinned to a geography node.
const (
	UserLevelProvince = "province"
	UserLevelRegency  = "regency"
	UserLevelDistrict = "district"
	UserLevelVillage  = "village"
	UserLevelCitizen  = "citizen"
)

// Permission scopes.
const (
	ScopeOwn       = "own"       // only records created by the holder
	ScopeLocation  = "location"  // records anchored at the holder's assigned location
	ScopeInherited = "inherited" // location plus all descendant units, always
	ScopeAll       = "all"       // no location constraint
)

// Inheritance depth settings.
const (
	InheritanceDirect      = "direct"       // exact anchor match only
	InheritanceAllChildren = "all_children" // anchor plus descendants
)

// ===========================
// GEOGRAPHY MODELS
// ===========================

// Province is the root of the administrative geography tree.
type Province struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Regency struct {
	ID         string    `json:"id"`
	ProvinceID string    `json:"province_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

type District struct {
	ID        string    `json:"id"`
	RegencyID string    `json:"regency_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Village struct {
	ID         string    `json:"id"`
	DistrictID string    `json:"district_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// ===========================
// ACCESS CONTROL MODELS
// ===========================

// Permission is a catalog entry. Name is conventionally "<resource>:<action>".
type Permission struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Resource         string    `json:"resource"`
	Action           string    `json:"action"`
	Scope            string    `json:"scope"` // own, location, inherited, all
	IsCritical       bool      `json:"is_critical"`
	RequiresApproval bool      `json:"requires_approval"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Role groups permissions. ParentRoleID is organizational only: permission
// resolution never cascades through the role hierarchy.
type Role struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	ParentRoleID string    `json:"parent_role_id,omitempty"`
	IsSystemRole bool      `json:"is_system_role"`
	IsDeletable  bool      `json:"is_deletable"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RolePermission is a grant of a permission to a role. Effective iff IsActive
// and ExpiresAt is nil or in the future. Revocation is soft (IsActive=false).
type RolePermission struct {
	ID           string     `json:"id"`
	RoleID       string     `json:"role_id"`
	PermissionID string     `json:"permission_id"`
	GrantedBy    string     `json:"granted_by,omitempty"`
	GrantedAt    time.Time  `json:"granted_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	IsActive     bool       `json:"is_active"`
}

// UserRoleAssignment links a user to a role, under the same effectiveness rule
// as RolePermission.
type UserRoleAssignment struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	RoleID     string     `json:"role_id"`
	AssignedBy string     `json:"assigned_by,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	IsActive   bool       `json:"is_active"`
}

// User is an account pinned to at most one authoritative geography node,
// selected by UserLevel. The other assigned ids, when present, describe the
// ancestor chain and are assumed consistent with the geography tree.
type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	PasswordHash       string    `json:"-"`
	UserLevel          string    `json:"user_level"`
	AssignedProvinceID string    `json:"assigned_province_id,omitempty"`
	AssignedRegencyID  string    `json:"assigned_regency_id,omitempty"`
	AssignedDistrictID string    `json:"assigned_district_id,omitempty"`
	AssignedVillageID  string    `json:"assigned_village_id,omitempty"`
	CanInheritData     bool      `json:"can_inherit_data"`
	InheritanceDepth   string    `json:"inheritance_depth"` // direct, all_children
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Session is a login session. Live iff IsActive and ExpiresAt is in the future.
type Session struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	SessionToken   string     `json:"-"`
	IsActive       bool       `json:"is_active"`
	ExpiresAt      time.Time  `json:"expires_at"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// AuditEntry is an append-only record of a security-relevant decision or
// mutation. Never updated or deleted.
type AuditEntry struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id,omitempty"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ===========================
// SURVEY MODELS
// ===========================

// Survey is a submitted housing or facility form, anchored at a location
// tuple. Housing and facility surveys live in separate tables but share this
// shape.
type Survey struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`   // housing, facility
	Status     string                 `json:"status"` // draft, submitted, verified, approved
	Data       map[string]interface{} `json:"data,omitempty"`
	ProvinceID string                 `json:"province_id,omitempty"`
	RegencyID  string                 `json:"regency_id,omitempty"`
	DistrictID string                 `json:"district_id,omitempty"`
	VillageID  string                 `json:"village_id,omitempty"`
	CreatedBy  string                 `json:"created_by"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}
