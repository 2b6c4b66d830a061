package controllers

import (
	"rescuedispatch/utils"
	"rescuedispatch/websocket"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub *websocket.Hub
}

func NewWebSocketController(hub *websocket.Hub) *WebSocketController {
	return &WebSocketController{
		hub: hub,
	}
}

// HandleWebSocket handles WebSocket connections
// @Summary WebSocket endpoint
// @Description Stream alert events addressed to the caller
// @Tags WebSocket
// @Param token query string false "Authentication token"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.APIResponse
// @Router /ws [get]
func (wsc *WebSocketController) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	// Upgrade writes its own HTTP error on failure.
	conn, err := websocket.Upgrade(c.Writer, c.Request)
	if err != nil {
		logrus.WithError(err).WithField("userId", userID).Warn("Failed to upgrade WebSocket connection")
		return
	}

	client := websocket.NewClient(wsc.hub, conn, userID)
	wsc.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	logrus.WithField("userId", userID).Info("WebSocket connection established")
}

// GetConnectionStats gets WebSocket connection statistics
// @Summary Get connection statistics
// @Tags WebSocket
// @Produce json
// @Success 200 {object} models.APIResponse{data=websocket.HubStats}
// @Router /ws/stats [get]
func (wsc *WebSocketController) GetConnectionStats(c *gin.Context) {
	utils.SuccessResponse(c, "Connection statistics retrieved successfully", wsc.hub.GetStats())
}
