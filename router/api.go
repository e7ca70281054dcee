package router

import (
	"database/sql"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sidesa-id/sidesa/authz"
	"github.com/sidesa-id/sidesa/geo"
	"github.com/sidesa-id/sidesa/handlers"
	"github.com/sidesa-id/sidesa/internal/config"
	"github.com/sidesa-id/sidesa/services"
)

func NewGinRouter(pg *sql.DB, rdb *redis.Client) *gin.Engine {
	r := gin.Default()

	// Add CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Initialize the authorization engine and its middleware
	engine := authz.NewEngine(pg, rdb)
	authzMiddleware := authz.NewMiddleware(engine, config.App.JWTSecret)

	// Initialize services
	authService := services.NewAuthService(pg, engine.Sessions(), config.App.JWTSecret,
		time.Duration(config.App.TokenTTLMinutes)*time.Minute,
		time.Duration(config.App.SessionTTLHours)*time.Hour)

	// Mutation auditing can be switched off; engine-internal audits (denials,
	// fallback activations) always stay on.
	var audit authz.AuditLogger
	if config.App.AuditEnabled {
		audit = engine.Audit()
	}
	roleService := services.NewRoleService(pg, audit)
	userService := services.NewUserService(pg, authz.NewSQLUserStore(pg), audit)
	surveyService := services.NewSurveyService(pg, geo.NewSQLStore(pg))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, engine)
	roleHandler := handlers.NewRoleHandler(roleService)
	userHandler := handlers.NewUserHandler(userService)
	housingHandler := handlers.NewSurveyHandler(surveyService, engine, "housing")
	facilityHandler := handlers.NewSurveyHandler(surveyService, engine, "facility")

	// PUBLIC ENDPOINTS (no authentication required)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/api/auth/login", authHandler.Login)

	// PROTECTED ENDPOINTS
	protected := r.Group("/api")
	protected.Use(authzMiddleware.RequireAuth())
	{
		// AUTH
		authRoutes := protected.Group("/auth")
		{
			authRoutes.POST("/logout", authHandler.Logout)
			authRoutes.GET("/me", authHandler.Me)
			authRoutes.POST("/check-permissions", authHandler.CheckPermissions)
			authRoutes.POST("/change-password", authHandler.ChangePassword)
		}

		// HOUSING SURVEYS
		housingRoutes := protected.Group("/housing")
		{
			housingRoutes.GET("",
				authzMiddleware.RequirePermission("housing:read"),
				housingHandler.List)
			housingRoutes.POST("",
				authzMiddleware.RequirePermission("housing:create"),
				housingHandler.Create)
			housingRoutes.GET("/:id",
				authzMiddleware.RequireResourceAccess("housing", "read"),
				housingHandler.Get)
		}

		// FACILITY SURVEYS
		facilityRoutes := protected.Group("/facilities")
		{
			facilityRoutes.GET("",
				authzMiddleware.RequirePermission("facility:read"),
				facilityHandler.List)
			facilityRoutes.POST("",
				authzMiddleware.RequirePermission("facility:create"),
				facilityHandler.Create)
			facilityRoutes.GET("/:id",
				authzMiddleware.RequireResourceAccess("facility", "read"),
				facilityHandler.Get)
		}

		// AREA DATA (location-gated reads, e.g. aggregated stats per unit)
		areaRoutes := protected.Group("/areas")
		areaRoutes.Use(authzMiddleware.RequireLocationAccess())
		{
			areaRoutes.GET("/housing",
				authzMiddleware.RequirePermission("housing:read"),
				housingHandler.List)
			areaRoutes.GET("/facilities",
				authzMiddleware.RequirePermission("facility:read"),
				facilityHandler.List)
		}

		// ROLE AND PERMISSION ADMINISTRATION
		adminRoutes := protected.Group("/admin")
		adminRoutes.Use(authzMiddleware.RequirePermission("roles:manage"))
		{
			adminRoutes.GET("/roles", roleHandler.ListRoles)
			adminRoutes.POST("/roles", roleHandler.CreateRole)
			adminRoutes.PUT("/roles/:id/permissions", roleHandler.ReplacePermissions)
			adminRoutes.POST("/roles/:id/permissions", roleHandler.GrantPermission)
			adminRoutes.DELETE("/roles/:id/permissions/:permission_id", roleHandler.RevokePermission)
			adminRoutes.GET("/permissions", roleHandler.ListPermissions)
		}

		// USER ADMINISTRATION
		userAdminRoutes := protected.Group("/admin/users")
		userAdminRoutes.Use(authzMiddleware.RequirePermission("users:manage_users"))
		{
			userAdminRoutes.GET("/:id", userHandler.GetUser)
			userAdminRoutes.GET("/:id/roles", userHandler.ListUserRoles)
			userAdminRoutes.POST("/:id/roles", userHandler.AssignRole)
			userAdminRoutes.DELETE("/:id/roles/:role_id", userHandler.RevokeRole)
			userAdminRoutes.PUT("/:id/location", userHandler.SetLocation)
		}
	}

	return r
}
