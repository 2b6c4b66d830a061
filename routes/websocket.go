// routes/websocket.go
package routes

import (
	"rescuedispatch/controllers"
	"rescuedispatch/middleware"

	"github.com/gin-gonic/gin"
)

// SetupWebSocketRoutes configures WebSocket related routes
func SetupWebSocketRoutes(router *gin.Engine, wsController *controllers.WebSocketController, authMiddleware *middleware.AuthMiddleware) {
	// JWT mode also accepts ?token= on the upgrade request
	router.GET("/ws", authMiddleware.RequireAuth(), wsController.HandleWebSocket)

	ws := router.Group("/api/v1/ws")
	ws.Use(authMiddleware.RequireAuth())
	ws.GET("/stats", wsController.GetConnectionStats)
}
