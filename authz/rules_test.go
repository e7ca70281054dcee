package authz

import "testing"

func TestEvaluateOverrides(t *testing.T) {
	tests := []struct {
		name        string
		roles       []string
		permission  string
		wantDecided bool
		wantAllowed bool
		wantReason  Code
	}{
		{
			name:        "super admin allows everything",
			roles:       []string{RoleSuperAdmin},
			permission:  "housing:create",
			wantDecided: true,
			wantAllowed: true,
		},
		{
			name:        "super admin allows unknown permissions too",
			roles:       []string{RoleSuperAdmin},
			permission:  "nonexistent:thing",
			wantDecided: true,
			wantAllowed: true,
		},
		{
			name:        "verifikator cannot create",
			roles:       []string{RoleVerifikator},
			permission:  "housing:create",
			wantDecided: true,
			wantAllowed: false,
			wantReason:  CodeCreateNotAllowed,
		},
		{
			name:        "verifikator allowed everything else",
			roles:       []string{RoleVerifikator},
			permission:  "housing:verify",
			wantDecided: true,
			wantAllowed: true,
		},
		{
			name:        "admin kabupaten blocked from housing create",
			roles:       []string{RoleAdminKabupaten},
			permission:  "housing:create",
			wantDecided: true,
			wantAllowed: false,
			wantReason:  CodeCreateNotAllowed,
		},
		{
			name:        "admin kabupaten blocked from facility create",
			roles:       []string{RoleAdminKabupaten},
			permission:  "facility:create",
			wantDecided: true,
			wantAllowed: false,
			wantReason:  CodeCreateNotAllowed,
		},
		{
			name:        "admin kabupaten falls through for other names",
			roles:       []string{RoleAdminKabupaten},
			permission:  "housing:read",
			wantDecided: false,
		},
		{
			name:        "admin desa blocked from facility read",
			roles:       []string{RoleAdminDesa},
			permission:  "facility:read",
			wantDecided: true,
			wantAllowed: false,
			wantReason:  CodeReadNotAllowed,
		},
		{
			name:        "admin desa falls through for housing",
			roles:       []string{RoleAdminDesa},
			permission:  "housing:read",
			wantDecided: false,
		},
		{
			name:        "no special role falls through",
			roles:       []string{"warga"},
			permission:  "housing:create",
			wantDecided: false,
		},
		{
			name:        "rule order: super admin wins over verifikator deny",
			roles:       []string{RoleSuperAdmin, RoleVerifikator},
			permission:  "housing:create",
			wantDecided: true,
			wantAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roleNames := make(map[string]bool, len(tt.roles))
			for _, r := range tt.roles {
				roleNames[r] = true
			}
			d, decided := evaluateOverrides(DefaultOverrideRules, roleNames, tt.permission)
			if decided != tt.wantDecided {
				t.Fatalf("evaluateOverrides() decided = %v, want %v", decided, tt.wantDecided)
			}
			if !decided {
				return
			}
			if d.Allowed != tt.wantAllowed {
				t.Errorf("evaluateOverrides() allowed = %v, want %v", d.Allowed, tt.wantAllowed)
			}
			if !d.Allowed && d.Reason != tt.wantReason {
				t.Errorf("evaluateOverrides() reason = %v, want %v", d.Reason, tt.wantReason)
			}
		})
	}
}
