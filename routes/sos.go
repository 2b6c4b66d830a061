// routes/sos.go
package routes

import (
	"rescuedispatch/controllers"

	"github.com/gin-gonic/gin"
)

// SetupSOSRoutes configures SOS alert routes. createLimit guards alert creation.
func SetupSOSRoutes(router *gin.RouterGroup, sosController *controllers.SOSController, createLimit gin.HandlerFunc) {
	sos := router.Group("/sos")

	// Sender
	sos.POST("/create", createLimit, sosController.CreateAlert)
	sos.GET("/my-alerts", sosController.GetMyAlerts)
	sos.POST("/:alertId/cancel", sosController.CancelAlert)
	sos.PUT("/:alertId/location/sender", sosController.UpdateSenderLocation)

	// Responder
	sos.GET("/pending", sosController.GetPendingAlerts)
	sos.GET("/my-rescues", sosController.GetMyRescues)
	sos.POST("/:alertId/accept", sosController.AcceptAlert)
	sos.PUT("/:alertId/status", sosController.UpdateResponderStatus)
	sos.POST("/:alertId/resolve", sosController.ResolveAlert)
	sos.PUT("/:alertId/location/responder", sosController.UpdateResponderLocation)

	// Lookups
	sos.GET("/nearby", sosController.GetNearbyAlerts)
	sos.GET("/active", sosController.GetActiveAlerts)
	sos.GET("/code/:alertCode", sosController.GetAlertByCode)
	sos.GET("/:alertId", sosController.GetAlert)
}
