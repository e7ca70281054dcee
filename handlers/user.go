package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sidesa-id/sidesa/authz"
	"github.com/sidesa-id/sidesa/services"
)

type UserHandler struct {
	Service *services.UserService
}

func NewUserHandler(service *services.UserService) *UserHandler {
	return &UserHandler{Service: service}
}

// GetUser handles GET /admin/users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.Service.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, authz.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListUserRoles handles GET /admin/users/:id/roles
func (h *UserHandler) ListUserRoles(c *gin.Context) {
	assignments, err := h.Service.ListUserRoles(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list roles"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": assignments})
}

// AssignRole handles POST /admin/users/:id/roles
func (h *UserHandler) AssignRole(c *gin.Context) {
	actor, ok := authz.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req struct {
		RoleID    string     `json:"role_id" binding:"required"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assignment, err := h.Service.AssignRole(c.Request.Context(), actor.UserID, c.Param("id"), req.RoleID, req.ExpiresAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assign role"})
		return
	}
	c.JSON(http.StatusCreated, assignment)
}

// RevokeRole handles DELETE /admin/users/:id/roles/:role_id
func (h *UserHandler) RevokeRole(c *gin.Context) {
	actor, ok := authz.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if err := h.Service.RevokeRole(c.Request.Context(), actor.UserID, c.Param("id"), c.Param("role_id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke role"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "role revoked"})
}

// SetLocation handles PUT /admin/users/:id/location
func (h *UserHandler) SetLocation(c *gin.Context) {
	actor, ok := authz.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var input services.LocationAssignmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.Service.SetLocationAssignment(c.Request.Context(), actor.UserID, c.Param("id"), input)
	if err != nil {
		switch {
		case errors.Is(err, authz.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, services.ErrInvalidAssignment):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update location assignment"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "location assignment updated"})
}
