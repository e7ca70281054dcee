package authz

import (
	"errors"
	"net/http"

	"github.com/sidesa-id/sidesa/db"
	"github.com/sidesa-id/sidesa/geo"
)

// Common errors
var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrUserNotFound     = errors.New("user not found")
)

// Distinguished role names with hard-coded override behavior.
const (
	RoleSuperAdmin     = "super_admin"
	RoleVerifikator    = "verifikator"
	RoleAdminKabupaten = "admin_kabupaten"
	RoleAdminDesa      = "admin_desa"
)

// Code is a stable machine-readable denial/error reason.
type Code string

const (
	// 401 — authentication failures
	CodeAuthRequired   Code = "AUTH_REQUIRED"
	CodeInvalidToken   Code = "INVALID_TOKEN"
	CodeSessionExpired Code = "SESSION_EXPIRED"
	CodeTokenExpired   Code = "TOKEN_EXPIRED"

	// 403 — authorization denials
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"
	CodeInsufficientRole        Code = "INSUFFICIENT_ROLE"
	CodeLocationAccessDenied    Code = "LOCATION_ACCESS_DENIED"
	CodeResourceAccessDenied    Code = "RESOURCE_ACCESS_DENIED"
	CodeNoLocationAssigned      Code = "NO_LOCATION_ASSIGNED"
	CodeCreateNotAllowed        Code = "CREATE_NOT_ALLOWED"
	CodeReadNotAllowed          Code = "READ_NOT_ALLOWED"

	// 500 — infrastructure failures, never interpreted as allow or deny
	CodeAuthError Code = "AUTH_ERROR"
)

// HTTPStatus maps a code to the status the routing layer must respond with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeAuthRequired, CodeInvalidToken, CodeSessionExpired, CodeTokenExpired:
		return http.StatusUnauthorized
	case CodeAuthError:
		return http.StatusInternalServerError
	default:
		return http.StatusForbidden
	}
}

// Message returns a human-readable description for API responses.
func (c Code) Message() string {
	switch c {
	case CodeAuthRequired:
		return "authentication required"
	case CodeInvalidToken:
		return "invalid or revoked token"
	case CodeSessionExpired:
		return "session expired, please log in again"
	case CodeTokenExpired:
		return "token expired"
	case CodeInsufficientPermissions:
		return "you don't have permission to perform this action"
	case CodeInsufficientRole:
		return "your role does not allow this action"
	case CodeLocationAccessDenied:
		return "this location is outside your assigned area"
	case CodeResourceAccessDenied:
		return "you don't have access to this resource"
	case CodeNoLocationAssigned:
		return "no location assigned to your account"
	case CodeCreateNotAllowed:
		return "creation is not allowed for your role"
	case CodeReadNotAllowed:
		return "reading this resource is not allowed for your role"
	case CodeAuthError:
		return "authorization check failed, try again later"
	default:
		return "access denied"
	}
}

// Decision is the outcome of a single authorization check. Reason is set only
// on denials.
type Decision struct {
	Allowed bool `json:"allowed"`
	Reason  Code `json:"reason,omitempty"`
}

// Allow is the positive decision.
var Allow = Decision{Allowed: true}

// Deny builds a denial with the given reason.
func Deny(reason Code) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// LocationRef is a requested location tuple. Empty fields are wildcards.
type LocationRef struct {
	ProvinceID string `json:"province_id,omitempty"`
	RegencyID  string `json:"regency_id,omitempty"`
	DistrictID string `json:"district_id,omitempty"`
	VillageID  string `json:"village_id,omitempty"`
}

// At returns the id the tuple names at the given level, or "".
func (l LocationRef) At(level geo.Level) string {
	switch level {
	case geo.LevelProvince:
		return l.ProvinceID
	case geo.LevelRegency:
		return l.RegencyID
	case geo.LevelDistrict:
		return l.DistrictID
	case geo.LevelVillage:
		return l.VillageID
	}
	return ""
}

// MostSpecific returns the deepest level the tuple names, with its id.
// Returns ("", "") for an all-wildcard tuple.
func (l LocationRef) MostSpecific() (geo.Level, string) {
	switch {
	case l.VillageID != "":
		return geo.LevelVillage, l.VillageID
	case l.DistrictID != "":
		return geo.LevelDistrict, l.DistrictID
	case l.RegencyID != "":
		return geo.LevelRegency, l.RegencyID
	case l.ProvinceID != "":
		return geo.LevelProvince, l.ProvinceID
	}
	return "", ""
}

// ActorContext is the fully-loaded authorization context for one request.
// It is built once by the auth middleware and threaded explicitly into every
// check call; checks never re-resolve it.
type ActorContext struct {
	UserID             string
	UserLevel          string
	AssignedProvinceID string
	AssignedRegencyID  string
	AssignedDistrictID string
	AssignedVillageID  string
	CanInheritData     bool
	InheritanceDepth   string
	SessionToken       string

	RoleNames       map[string]bool
	PermissionNames map[string]bool
	Permissions     []db.Permission
}

// NewActorContext assembles an actor from a loaded user row and their resolved
// permission set.
func NewActorContext(user *db.User, set *PermissionSet, sessionToken string) *ActorContext {
	return &ActorContext{
		UserID:             user.ID,
		UserLevel:          user.UserLevel,
		AssignedProvinceID: user.AssignedProvinceID,
		AssignedRegencyID:  user.AssignedRegencyID,
		AssignedDistrictID: user.AssignedDistrictID,
		AssignedVillageID:  user.AssignedVillageID,
		CanInheritData:     user.CanInheritData,
		InheritanceDepth:   user.InheritanceDepth,
		SessionToken:       sessionToken,
		RoleNames:          set.RoleNames,
		PermissionNames:    set.PermissionNames,
		Permissions:        set.Permissions,
	}
}

// HasRoleName reports whether the actor holds the named role.
func (a *ActorContext) HasRoleName(name string) bool {
	return a.RoleNames[name]
}

// HasPermissionName reports whether the named permission is in the actor's
// effective set. Override rules are NOT applied here; use Engine.HasPermission.
func (a *ActorContext) HasPermissionName(name string) bool {
	return a.PermissionNames[name]
}

// PermissionByName returns the full catalog record behind an effective
// permission name, needed for scope evaluation.
func (a *ActorContext) PermissionByName(name string) (db.Permission, bool) {
	for _, p := range a.Permissions {
		if p.Name == name {
			return p, true
		}
	}
	return db.Permission{}, false
}

// AnchorLevel maps the actor's user level to its geography level. Citizens
// have no anchor.
func (a *ActorContext) AnchorLevel() geo.Level {
	switch a.UserLevel {
	case db.UserLevelProvince:
		return geo.LevelProvince
	case db.UserLevelRegency:
		return geo.LevelRegency
	case db.UserLevelDistrict:
		return geo.LevelDistrict
	case db.UserLevelVillage:
		return geo.LevelVillage
	}
	return ""
}

// Anchor returns the actor's authoritative geography node, selected by user
// level. The id is empty when no anchor is assigned.
func (a *ActorContext) Anchor() (geo.Level, string) {
	level := a.AnchorLevel()
	switch level {
	case geo.LevelProvince:
		return level, a.AssignedProvinceID
	case geo.LevelRegency:
		return level, a.AssignedRegencyID
	case geo.LevelDistrict:
		return level, a.AssignedDistrictID
	case geo.LevelVillage:
		return level, a.AssignedVillageID
	}
	return "", ""
}
