package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sidesa-id/sidesa/authz"
	"github.com/sidesa-id/sidesa/db"
	"github.com/sidesa-id/sidesa/geo"
	"github.com/sidesa-id/sidesa/services"
)

// SurveyHandler serves both survey kinds; the kind is fixed per route group.
type SurveyHandler struct {
	Service *services.SurveyService
	Engine  *authz.Engine
	Kind    string // housing, facility
}

func NewSurveyHandler(service *services.SurveyService, engine *authz.Engine, kind string) *SurveyHandler {
	return &SurveyHandler{Service: service, Engine: engine, Kind: kind}
}

// Create handles POST /{kind}. The location tuple in the body is checked
// against the actor's assigned area before insert.
func (h *SurveyHandler) Create(c *gin.Context) {
	actor, ok := authz.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var input services.SurveyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loc := authz.LocationRef{
		ProvinceID: input.ProvinceID,
		RegencyID:  input.RegencyID,
		DistrictID: input.DistrictID,
		VillageID:  input.VillageID,
	}
	d, err := h.Engine.CanAccessLocation(c.Request.Context(), actor, loc)
	if err != nil {
		log.Printf("survey create: location check failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authz.CodeAuthError.Message(), "code": string(authz.CodeAuthError)})
		return
	}
	if !d.Allowed {
		c.JSON(d.Reason.HTTPStatus(), gin.H{"error": d.Reason.Message(), "code": string(d.Reason)})
		return
	}

	survey, err := h.Service.Create(c.Request.Context(), h.Kind, actor.UserID, input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create survey"})
		return
	}
	c.JSON(http.StatusCreated, survey)
}

// Get handles GET /{kind}/:id. Instance-level access is enforced by the
// RequireResourceAccess middleware on the route.
func (h *SurveyHandler) Get(c *gin.Context) {
	survey, err := h.Service.Get(c.Request.Context(), h.Kind, c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrSurveyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "survey not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get survey"})
		return
	}
	c.JSON(http.StatusOK, survey)
}

// List handles GET /{kind}, filtered to the actor's visibility.
func (h *SurveyHandler) List(c *gin.Context) {
	actor, ok := authz.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 200 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	surveys, err := h.Service.ListVisible(c.Request.Context(), h.Kind, listScopeFor(actor), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list surveys"})
		return
	}
	if surveys == nil {
		surveys = []db.Survey{}
	}
	c.JSON(http.StatusOK, gin.H{"surveys": surveys, "limit": limit, "offset": offset})
}

// listScopeFor translates the actor's assignment into a list filter.
// Super-admins and verifikator see everything; anchored officials see their
// own records plus everything at their assigned unit.
func listScopeFor(actor *authz.ActorContext) services.ListScope {
	if actor.HasRoleName(authz.RoleSuperAdmin) || actor.HasRoleName(authz.RoleVerifikator) {
		return services.ListScope{Unrestricted: true}
	}

	scope := services.ListScope{UserID: actor.UserID}
	level, id := actor.Anchor()
	if id == "" {
		return scope
	}
	switch level {
	case geo.LevelProvince:
		scope.AnchorColumn = "province_id"
	case geo.LevelRegency:
		scope.AnchorColumn = "regency_id"
	case geo.LevelDistrict:
		scope.AnchorColumn = "district_id"
	case geo.LevelVillage:
		scope.AnchorColumn = "village_id"
	default:
		return scope
	}
	scope.AnchorID = id
	return scope
}
