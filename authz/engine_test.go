package authz

import (
	"testing"

	"github.com/sidesa-id/sidesa/db"
)

func actorWith(roles []string, perms ...db.Permission) *ActorContext {
	roleNames := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleNames[r] = true
	}
	permNames := make(map[string]bool, len(perms))
	for _, p := range perms {
		permNames[p.Name] = true
	}
	return &ActorContext{
		UserID:          "user-1",
		RoleNames:       roleNames,
		PermissionNames: permNames,
		Permissions:     perms,
	}
}

func TestEngine_HasRole(t *testing.T) {
	e := &Engine{rules: DefaultOverrideRules}

	tests := []struct {
		name    string
		actor   *ActorContext
		role    string
		allowed bool
	}{
		{"holds the role", actorWith([]string{RoleAdminDesa}), RoleAdminDesa, true},
		{"missing the role", actorWith([]string{RoleAdminDesa}), RoleAdminKabupaten, false},
		{"super admin passes any role check", actorWith([]string{RoleSuperAdmin}), RoleAdminKabupaten, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.HasRole(tt.actor, tt.role)
			if d.Allowed != tt.allowed {
				t.Errorf("HasRole() = %v, want %v", d.Allowed, tt.allowed)
			}
			if !d.Allowed && d.Reason != CodeInsufficientRole {
				t.Errorf("HasRole() reason = %v, want %v", d.Reason, CodeInsufficientRole)
			}
		})
	}
}

func TestEngine_HasPermission(t *testing.T) {
	e := &Engine{rules: DefaultOverrideRules}
	housingCreate := db.Permission{ID: "p1", Name: "housing:create", Scope: db.ScopeLocation}
	facilityRead := db.Permission{ID: "p2", Name: "facility:read", Scope: db.ScopeLocation}

	tests := []struct {
		name       string
		actor      *ActorContext
		permission string
		allowed    bool
		reason     Code
	}{
		{
			name:       "super admin without any grant",
			actor:      actorWith([]string{RoleSuperAdmin}),
			permission: "housing:create",
			allowed:    true,
		},
		{
			name:       "verifikator create blocked even when granted",
			actor:      actorWith([]string{RoleVerifikator}, housingCreate),
			permission: "housing:create",
			allowed:    false,
			reason:     CodeCreateNotAllowed,
		},
		{
			name:       "admin kabupaten deny wins over grant",
			actor:      actorWith([]string{RoleAdminKabupaten}, housingCreate),
			permission: "housing:create",
			allowed:    false,
			reason:     CodeCreateNotAllowed,
		},
		{
			name:       "admin desa facility read blocked",
			actor:      actorWith([]string{RoleAdminDesa}, facilityRead),
			permission: "facility:read",
			allowed:    false,
			reason:     CodeReadNotAllowed,
		},
		{
			name:       "catalog grant allows",
			actor:      actorWith([]string{"warga"}, housingCreate),
			permission: "housing:create",
			allowed:    true,
		},
		{
			name:       "no grant denies",
			actor:      actorWith([]string{"warga"}),
			permission: "housing:create",
			allowed:    false,
			reason:     CodeInsufficientPermissions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.HasPermission(tt.actor, tt.permission)
			if d.Allowed != tt.allowed {
				t.Errorf("HasPermission() = %v, want %v", d.Allowed, tt.allowed)
			}
			if !tt.allowed && d.Reason != tt.reason {
				t.Errorf("HasPermission() reason = %v, want %v", d.Reason, tt.reason)
			}
		})
	}
}

func TestEngine_HasAnyPermission(t *testing.T) {
	e := &Engine{rules: DefaultOverrideRules}
	actor := actorWith([]string{"warga"}, db.Permission{ID: "p1", Name: "housing:read", Scope: db.ScopeOwn})

	if d := e.HasAnyPermission(actor, "housing:update", "housing:read"); !d.Allowed {
		t.Errorf("HasAnyPermission() = %v, want allow", d)
	}
	if d := e.HasAnyPermission(actor, "housing:update", "housing:verify"); d.Allowed {
		t.Errorf("HasAnyPermission() = %v, want deny", d)
	}
}

func TestEngine_HasMultiplePermissions(t *testing.T) {
	e := &Engine{rules: DefaultOverrideRules}
	actor := actorWith([]string{RoleVerifikator},
		db.Permission{ID: "p1", Name: "housing:read", Scope: db.ScopeAll},
		db.Permission{ID: "p2", Name: "housing:create", Scope: db.ScopeLocation})

	got := e.HasMultiplePermissions(actor, []string{"housing:read", "housing:create", "facility:verify"})

	want := map[string]bool{
		"housing:read":    true,
		"housing:create":  false, // verifikator override
		"facility:verify": true,  // verifikator allow-except
	}
	for name, allowed := range want {
		if got[name] != allowed {
			t.Errorf("HasMultiplePermissions()[%s] = %v, want %v", name, got[name], allowed)
		}
	}
	if len(got) != len(want) {
		t.Errorf("HasMultiplePermissions() returned %d verdicts, want %d", len(got), len(want))
	}
}
