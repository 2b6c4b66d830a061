// routes/routes.go
package routes

import (
	"rescuedispatch/config"
	"rescuedispatch/controllers"
	"rescuedispatch/middleware"
	"rescuedispatch/services"
	"rescuedispatch/utils"
	"rescuedispatch/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Dependencies are the long-lived components built in main.
type Dependencies struct {
	Config      *config.Config
	Dispatch    *services.DispatchService
	Hub         *websocket.Hub
	WindowStore middleware.WindowStore
	Checks      map[string]controllers.HealthCheck
}

// Controllers initialization
type Controllers struct {
	SOS       *controllers.SOSController
	WebSocket *controllers.WebSocketController
	Health    *controllers.HealthController
}

// SetupRoutes initializes all application routes
func SetupRoutes(deps Dependencies) *gin.Engine {
	router := gin.New()

	controllers := initializeControllers(deps)
	authMiddleware := middleware.NewAuthMiddleware(utils.NewJWTService(deps.Config.JWTSecret), deps.Config.AuthMode)

	setupGlobalMiddleware(router, deps.Config)
	setupPublicRoutes(router, controllers)
	setupAuthenticatedRoutes(router, controllers, authMiddleware, deps)
	SetupWebSocketRoutes(router, controllers.WebSocket, authMiddleware)

	return router
}

func initializeControllers(deps Dependencies) *Controllers {
	return &Controllers{
		SOS:       controllers.NewSOSController(deps.Dispatch),
		WebSocket: controllers.NewWebSocketController(deps.Hub),
		Health:    controllers.NewHealthController(deps.Checks),
	}
}

// Global middleware setup
func setupGlobalMiddleware(router *gin.Engine, cfg *config.Config) {
	router.Use(middleware.NewErrorHandler(cfg.Environment, logrus.StandardLogger()).Handle())
	router.Use(middleware.DefaultLoggerMiddleware())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	router.Use(middleware.MetricsMiddleware())
}

// Public routes (no authentication required)
func setupPublicRoutes(router *gin.Engine, controllers *Controllers) {
	router.GET("/health", controllers.Health.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Authenticated routes (caller identity required)
func setupAuthenticatedRoutes(router *gin.Engine, controllers *Controllers, authMiddleware *middleware.AuthMiddleware, deps Dependencies) {
	api := router.Group("/api/v1")
	api.Use(authMiddleware.RequireAuth())
	api.Use(middleware.DefaultRateLimit(deps.WindowStore, deps.Config.RateLimitRequests))

	SetupSOSRoutes(api, controllers.SOS, middleware.SOSCreateRateLimit(deps.WindowStore, deps.Config.RateLimitCreatePerMinute))
}
