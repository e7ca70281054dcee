package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sidesa-id/sidesa/authz"
	"github.com/sidesa-id/sidesa/services"
)

type AuthHandler struct {
	Service *services.AuthService
	Engine  *authz.Engine
}

func NewAuthHandler(service *services.AuthService, engine *authz.Engine) *AuthHandler {
	return &AuthHandler{Service: service, Engine: engine}
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.Service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) || errors.Is(err, services.ErrUserDisabled) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	actor, ok := authz.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if err := h.Service.Logout(c.Request.Context(), actor.UserID, actor.SessionToken); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me handles GET /auth/me — the actor's identity, roles and permissions.
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := authz.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	roles := make([]string, 0, len(actor.RoleNames))
	for name := range actor.RoleNames {
		roles = append(roles, name)
	}
	permissions := make([]string, 0, len(actor.PermissionNames))
	for name := range actor.PermissionNames {
		permissions = append(permissions, name)
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":           actor.UserID,
		"user_level":        actor.UserLevel,
		"inheritance_depth": actor.InheritanceDepth,
		"roles":             roles,
		"permissions":       permissions,
	})
}

// CheckPermissions handles POST /auth/check-permissions — per-name verdicts
// for UI callers that need fine-grained results, not a single allow/deny.
func (h *AuthHandler) CheckPermissions(c *gin.Context) {
	actor, ok := authz.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req struct {
		Permissions []string `json:"permissions" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": h.Engine.HasMultiplePermissions(actor, req.Permissions)})
}

// ChangePassword handles POST /auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	actor, ok := authz.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.Service.ChangePassword(c.Request.Context(), actor.UserID, req.OldPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "password change failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed, all sessions revoked"})
}
