package authz

import (
	"errors"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sidesa-id/sidesa/db"
)

const actorContextKey = "authz_actor"

// Middleware wires the engine into gin. RequireAuth builds the ActorContext
// once per request; the other middlewares and the handlers read it from the
// gin context and pass it explicitly into engine checks.
type Middleware struct {
	engine    *Engine
	jwtSecret string
}

func NewMiddleware(engine *Engine, jwtSecret string) *Middleware {
	return &Middleware{engine: engine, jwtSecret: jwtSecret}
}

// ActorFrom returns the actor the auth middleware attached to the request.
func ActorFrom(c *gin.Context) (*ActorContext, bool) {
	v, ok := c.Get(actorContextKey)
	if !ok {
		return nil, false
	}
	actor, ok := v.(*ActorContext)
	return actor, ok
}

func abortWith(c *gin.Context, code Code) {
	c.JSON(code.HTTPStatus(), gin.H{"error": code.Message(), "code": string(code)})
	c.Abort()
}

// RequireAuth validates the bearer credential, confirms session liveness,
// resolves the actor's effective permissions and attaches the ActorContext.
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWith(c, CodeAuthRequired)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		cred, err := ParseCredential(m.jwtSecret, tokenString)
		if err != nil {
			if errors.Is(err, ErrCredentialExpired) {
				abortWith(c, CodeTokenExpired)
			} else {
				abortWith(c, CodeInvalidToken)
			}
			return
		}

		_, code, err := m.engine.sessions.Validate(c.Request.Context(), cred.UserID, cred.SessionToken)
		if err != nil {
			log.Printf("authz: session validation failed: %v", err)
			abortWith(c, CodeAuthError)
			return
		}
		if code != "" {
			abortWith(c, code)
			return
		}

		user, err := m.engine.users.GetByID(c.Request.Context(), cred.UserID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				abortWith(c, CodeInvalidToken)
			} else {
				log.Printf("authz: user load failed: %v", err)
				abortWith(c, CodeAuthError)
			}
			return
		}
		if !user.IsActive {
			abortWith(c, CodeInvalidToken)
			return
		}

		set, err := m.engine.resolver.EffectivePermissions(c.Request.Context(), user.ID)
		if err != nil {
			log.Printf("authz: permission resolution failed: %v", err)
			abortWith(c, CodeAuthError)
			return
		}

		c.Set(actorContextKey, NewActorContext(user, set, cred.SessionToken))
		c.Next()
	}
}

// RequireRole allows the request if the actor holds any of the named roles.
func (m *Middleware) RequireRole(roleNames ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abortWith(c, CodeAuthRequired)
			return
		}
		for _, name := range roleNames {
			if d := m.engine.HasRole(actor, name); d.Allowed {
				c.Next()
				return
			}
		}
		abortWith(c, CodeInsufficientRole)
	}
}

// RequirePermission gates a route on a single permission name.
func (m *Middleware) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abortWith(c, CodeAuthRequired)
			return
		}
		d := m.engine.HasPermission(actor, permission)
		if !d.Allowed {
			m.auditDenial(c, actor, permission, d)
			abortWith(c, d.Reason)
			return
		}
		c.Next()
	}
}

// RequireAnyPermission gates a route on holding at least one of the names.
func (m *Middleware) RequireAnyPermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abortWith(c, CodeAuthRequired)
			return
		}
		d := m.engine.HasAnyPermission(actor, permissions...)
		if !d.Allowed {
			abortWith(c, d.Reason)
			return
		}
		c.Next()
	}
}

// RequireLocationAccess gates a route on the location tuple named in the
// request (path params first, then query).
func (m *Middleware) RequireLocationAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abortWith(c, CodeAuthRequired)
			return
		}
		d, err := m.engine.CanAccessLocation(c.Request.Context(), actor, locationFromRequest(c))
		if err != nil {
			log.Printf("authz: location check failed: %v", err)
			abortWith(c, CodeAuthError)
			return
		}
		if !d.Allowed {
			abortWith(c, d.Reason)
			return
		}
		c.Next()
	}
}

// RequireResourceAccess gates a route on instance-level access to the
// resource whose id is in the :id path param.
func (m *Middleware) RequireResourceAccess(resourceType, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abortWith(c, CodeAuthRequired)
			return
		}
		d, err := m.engine.CanAccessResource(c.Request.Context(), actor, resourceType, action, c.Param("id"))
		if err != nil {
			if errors.Is(err, ErrResourceNotFound) {
				c.JSON(404, gin.H{"error": "resource not found"})
				c.Abort()
				return
			}
			log.Printf("authz: resource check failed: %v", err)
			abortWith(c, CodeAuthError)
			return
		}
		if !d.Allowed {
			m.auditDenial(c, actor, resourceType+":"+action, d)
			abortWith(c, d.Reason)
			return
		}
		c.Next()
	}
}

func locationFromRequest(c *gin.Context) LocationRef {
	pick := func(key string) string {
		if v := c.Param(key); v != "" {
			return v
		}
		return c.Query(key)
	}
	return LocationRef{
		ProvinceID: pick("province_id"),
		RegencyID:  pick("regency_id"),
		DistrictID: pick("district_id"),
		VillageID:  pick("village_id"),
	}
}

// auditDenial records denials of privileged operations only, to bound audit
// volume.
func (m *Middleware) auditDenial(c *gin.Context, actor *ActorContext, permission string, d Decision) {
	if m.engine.audit == nil || !privilegedPermission(permission) {
		return
	}
	err := m.engine.audit.Record(c.Request.Context(), db.AuditEntry{
		UserID: actor.UserID,
		Action: "authz.denied",
		Metadata: map[string]interface{}{
			"permission": permission,
			"reason":     string(d.Reason),
			"path":       c.FullPath(),
		},
	})
	if err != nil {
		log.Printf("authz: failed to audit denial: %v", err)
	}
}
