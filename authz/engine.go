package authz

import (
	"database/sql"

	"github.com/go-redis/redis/v8"

	"github.com/sidesa-id/sidesa/geo"
	"github.com/sidesa-id/sidesa/internal/obs"
)

// Engine is the authorization decision core. Every check is a pure read
// followed by a decision; the engine holds no mutable state, so one instance
// serves all concurrent requests.
type Engine struct {
	resolver  PermissionResolver
	sessions  SessionStore
	users     UserStore
	geo       geo.Store
	resources ResourceMetaStore
	audit     AuditLogger
	rules     []OverrideRule
}

// NewEngine wires the engine with its SQL-backed collaborators. The redis
// client is optional and only accelerates session validation.
func NewEngine(pg *sql.DB, rdb *redis.Client) *Engine {
	return &Engine{
		resolver:  NewFailoverResolver(NewJoinedResolver(pg), NewNaiveResolver(pg)),
		sessions:  NewSQLSessionStore(pg, rdb),
		users:     NewSQLUserStore(pg),
		geo:       geo.NewSQLStore(pg),
		resources: NewSQLResourceMetaStore(pg),
		audit:     NewSQLAuditLogger(pg),
		rules:     DefaultOverrideRules,
	}
}

// Sessions exposes the session store for the auth service (login/logout).
func (e *Engine) Sessions() SessionStore { return e.sessions }

// Audit exposes the audit sink for services recording privileged mutations.
func (e *Engine) Audit() AuditLogger { return e.audit }

func record(check string, d Decision) Decision {
	outcome := "deny"
	if d.Allowed {
		outcome = "allow"
	}
	obs.AuthDecisions.WithLabelValues(check, outcome).Inc()
	return d
}

// HasRole checks whether the actor holds the named role. Super-admins pass
// every role check.
func (e *Engine) HasRole(actor *ActorContext, roleName string) Decision {
	if actor.HasRoleName(RoleSuperAdmin) || actor.HasRoleName(roleName) {
		return record("role", Allow)
	}
	return record("role", Deny(CodeInsufficientRole))
}

// HasPermission checks a single permission name: the override rule table
// first, then the effective permission set.
func (e *Engine) HasPermission(actor *ActorContext, permission string) Decision {
	if d, decided := evaluateOverrides(e.rules, actor.RoleNames, permission); decided {
		return record("permission", d)
	}
	if actor.HasPermissionName(permission) {
		return record("permission", Allow)
	}
	return record("permission", Deny(CodeInsufficientPermissions))
}

// HasAnyPermission allows if at least one of the names passes HasPermission.
func (e *Engine) HasAnyPermission(actor *ActorContext, permissions ...string) Decision {
	for _, p := range permissions {
		if d := e.HasPermission(actor, p); d.Allowed {
			return d
		}
	}
	return Deny(CodeInsufficientPermissions)
}

// HasMultiplePermissions returns a per-name verdict map for callers that need
// fine-grained results rather than a single allow/deny.
func (e *Engine) HasMultiplePermissions(actor *ActorContext, permissions []string) map[string]bool {
	results := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		results[p] = e.HasPermission(actor, p).Allowed
	}
	return results
}
