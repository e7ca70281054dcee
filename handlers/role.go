package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sidesa-id/sidesa/authz"
	"github.com/sidesa-id/sidesa/services"
)

type RoleHandler struct {
	Service *services.RoleService
}

func NewRoleHandler(service *services.RoleService) *RoleHandler {
	return &RoleHandler{Service: service}
}

// ListRoles handles GET /admin/roles
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.Service.ListRoles(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list roles"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

// CreateRole handles POST /admin/roles
func (h *RoleHandler) CreateRole(c *gin.Context) {
	actor, ok := authz.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var input services.CreateRoleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, err := h.Service.CreateRole(c.Request.Context(), actor.UserID, input)
	if err != nil {
		if errors.Is(err, services.ErrRoleAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create role"})
		return
	}
	c.JSON(http.StatusCreated, role)
}

// ReplacePermissions handles PUT /admin/roles/:id/permissions — atomic
// replacement of the role's full grant set.
func (h *RoleHandler) ReplacePermissions(c *gin.Context) {
	actor, ok := authz.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req struct {
		PermissionIDs []string `json:"permission_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.Service.ReplaceRolePermissions(c.Request.Context(), actor.UserID, c.Param("id"), req.PermissionIDs)
	if err != nil {
		if errors.Is(err, services.ErrRoleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replace permissions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "permissions replaced"})
}

// GrantPermission handles POST /admin/roles/:id/permissions
func (h *RoleHandler) GrantPermission(c *gin.Context) {
	actor, ok := authz.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req struct {
		PermissionID string     `json:"permission_id" binding:"required"`
		ExpiresAt    *time.Time `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.Service.GrantPermission(c.Request.Context(), actor.UserID, c.Param("id"), req.PermissionID, req.ExpiresAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to grant permission"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "permission granted"})
}

// RevokePermission handles DELETE /admin/roles/:id/permissions/:permission_id
func (h *RoleHandler) RevokePermission(c *gin.Context) {
	actor, ok := authz.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	err := h.Service.RevokePermission(c.Request.Context(), actor.UserID, c.Param("id"), c.Param("permission_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke permission"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "permission revoked"})
}

// ListPermissions handles GET /admin/permissions
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	perms, err := h.Service.ListPermissions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list permissions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"permissions": perms})
}
