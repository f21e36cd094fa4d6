// Package server assembles the HTTP surface: global middleware, the auth
// routes and the role and permission gated management routes.
package server

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/Elvismn/Scholalink3.0/internal/handler"
	"github.com/Elvismn/Scholalink3.0/internal/middleware"
	"github.com/Elvismn/Scholalink3.0/internal/models"
	"github.com/Elvismn/Scholalink3.0/internal/service"
	"github.com/Elvismn/Scholalink3.0/pkg/config"
	"github.com/Elvismn/Scholalink3.0/pkg/logger"
	corsmiddleware "github.com/Elvismn/Scholalink3.0/pkg/middleware/cors"
	reqidmiddleware "github.com/Elvismn/Scholalink3.0/pkg/middleware/requestid"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Auth    *service.AuthService
	Users   *service.UserService
	Metrics *service.MetricsService
	Ready   map[string]handler.ReadinessCheck
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	cfg := deps.Config
	logr := deps.Logger
	if logr == nil {
		logr = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	metricsHandler := handler.NewMetricsHandler(deps.Metrics, deps.Ready)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(deps.Auth)
	userHandler := handler.NewUserHandler(deps.Users)
	superAdminHandler := handler.NewSuperAdminHandler(deps.Users)
	authenticate := middleware.Authenticate(deps.Auth)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", authenticate, authHandler.Me)

	admin := api.Group("/admin", authenticate, middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin), middleware.WithResponseMeta())
	admin.GET("/users", userHandler.List)
	admin.GET("/users/stats", userHandler.Stats)
	admin.GET("/users/:id", userHandler.Get)
	admin.POST("/users", userHandler.Create)
	admin.PUT("/users/:id", middleware.ForbidSelf("id", "Cannot modify your own account"), userHandler.Update)
	admin.DELETE("/users/:id", middleware.ForbidSelf("id", "Cannot delete your own account"), userHandler.Delete)

	analytics := api.Group("/admin/analytics", authenticate, middleware.RequirePermission(models.PermViewAnalytics), middleware.WithResponseMeta())
	analytics.GET("/users", userHandler.Analytics)

	superAdmin := api.Group("/super-admin", authenticate, middleware.RequireRole(models.RoleSuperAdmin), middleware.WithResponseMeta())
	superAdmin.GET("/users", superAdminHandler.Users)
	superAdmin.GET("/users/export", superAdminHandler.Export)
	superAdmin.GET("/analytics", superAdminHandler.Analytics)
	superAdmin.GET("/stats", superAdminHandler.Stats)
	superAdmin.POST("/admins", superAdminHandler.CreateAdmin)
	superAdmin.PUT("/users/:id/role", middleware.ForbidSelf("id", "Cannot modify your own role"), superAdminHandler.ChangeRole)
	superAdmin.PUT("/users/:id/deactivate", middleware.ForbidSelf("id", "Cannot deactivate your own account"), superAdminHandler.Deactivate)

	return r
}
