package authz

import "strings"

// OverrideKind tags how a rule modifies the generic catalog check.
type OverrideKind string

const (
	// OverrideAllowAll short-circuits every check to allow.
	OverrideAllowAll OverrideKind = "allow_all"
	// OverrideAllowExceptSubstring denies permission names containing any
	// pattern and allows everything else unconditionally.
	OverrideAllowExceptSubstring OverrideKind = "allow_except_substring"
	// OverrideDenyExact denies the exact permission names listed and falls
	// through to the catalog check otherwise.
	OverrideDenyExact OverrideKind = "deny_exact"
)

// OverrideRule is one entry of the ordered rule table evaluated before the
// generic permission-catalog check. These rules are business policy that is
// not expressible as catalog data: an explicit deny here wins over a grant.
type OverrideRule struct {
	Role     string
	Kind     OverrideKind
	Patterns []string
	Reason   Code
}

// DefaultOverrideRules is evaluated in order; the first rule whose role the
// actor holds and whose kind reaches a verdict decides.
var DefaultOverrideRules = []OverrideRule{
	{Role: RoleSuperAdmin, Kind: OverrideAllowAll},
	{Role: RoleVerifikator, Kind: OverrideAllowExceptSubstring, Patterns: []string{":create"}, Reason: CodeCreateNotAllowed},
	{Role: RoleAdminKabupaten, Kind: OverrideDenyExact, Patterns: []string{"housing:create", "facility:create"}, Reason: CodeCreateNotAllowed},
	{Role: RoleAdminDesa, Kind: OverrideDenyExact, Patterns: []string{"facility:read"}, Reason: CodeReadNotAllowed},
}

// evaluateOverrides runs the rule table for the given held roles and
// permission name. The second return value reports whether a rule decided;
// when false the caller falls through to the catalog check.
func evaluateOverrides(rules []OverrideRule, roleNames map[string]bool, permission string) (Decision, bool) {
	for _, rule := range rules {
		if !roleNames[rule.Role] {
			continue
		}
		switch rule.Kind {
		case OverrideAllowAll:
			return Allow, true
		case OverrideAllowExceptSubstring:
			for _, p := range rule.Patterns {
				if strings.Contains(permission, p) {
					return Deny(rule.Reason), true
				}
			}
			return Allow, true
		case OverrideDenyExact:
			for _, p := range rule.Patterns {
				if permission == p {
					return Deny(rule.Reason), true
				}
			}
			// No match: this rule is only a denylist, keep evaluating.
		}
	}
	return Decision{}, false
}
