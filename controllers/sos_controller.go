package controllers

import (
	"errors"
	"io"
	"strconv"
	"time"

	"rescuedispatch/models"
	"rescuedispatch/services"
	"rescuedispatch/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultNearbyRadiusKm = 10.0

type SOSController struct {
	dispatchService *services.DispatchService
}

func NewSOSController(dispatchService *services.DispatchService) *SOSController {
	return &SOSController{
		dispatchService: dispatchService,
	}
}

// =================== SENDER ===================

// CreateAlert raises an SOS alert and dispatches it to nearby responders
// @Summary Raise SOS alert
// @Tags SOS
// @Accept json
// @Produce json
// @Param request body models.CreateAlertRequest true "SOS details"
// @Success 201 {object} models.APIResponse{data=models.CreateAlertResponse}
// @Failure 400 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse
// @Router /sos/create [post]
func (sc *SOSController) CreateAlert(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	var req models.CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	alert, err := sc.dispatchService.CreateAlert(c.Request.Context(), userID, req)
	if err != nil {
		sc.fail(c, "Create SOS alert", err)
		return
	}

	utils.CreatedResponse(c, "SOS alert raised", models.CreateAlertResponse{
		AlertCode: alert.AlertCode,
		Alert:     alert,
	})
}

// CancelAlert cancels the caller's own alert
// @Summary Cancel SOS alert
// @Tags SOS
// @Param alertId path string true "Alert ID"
// @Success 200 {object} models.APIResponse{data=models.Alert}
// @Failure 403 {object} models.APIResponse
// @Failure 409 {object} models.APIResponse
// @Router /sos/{alertId}/cancel [post]
func (sc *SOSController) CancelAlert(c *gin.Context) {
	alert, err := sc.dispatchService.Cancel(c.Request.Context(), c.Param("alertId"), c.GetString("userID"))
	if err != nil {
		sc.fail(c, "Cancel SOS alert", err)
		return
	}

	utils.SuccessResponse(c, "SOS alert cancelled", alert)
}

// UpdateSenderLocation appends a sample to the sender trail
// @Summary Update sender location
// @Tags SOS
// @Param alertId path string true "Alert ID"
// @Param request body models.UpdateLocationRequest true "Location sample"
// @Success 200 {object} models.APIResponse{data=models.Alert}
// @Router /sos/{alertId}/location/sender [put]
func (sc *SOSController) UpdateSenderLocation(c *gin.Context) {
	var req models.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	alert, err := sc.dispatchService.UpdateSenderLocation(c.Request.Context(), c.Param("alertId"), c.GetString("userID"), req)
	if err != nil {
		sc.fail(c, "Update sender location", err)
		return
	}

	utils.SuccessResponse(c, "Location updated", alert)
}

// GetMyAlerts lists alerts raised by the caller, newest first
// @Summary List own alerts
// @Tags SOS
// @Success 200 {object} models.APIResponse{data=[]models.AlertSummary}
// @Router /sos/my-alerts [get]
func (sc *SOSController) GetMyAlerts(c *gin.Context) {
	alerts, err := sc.dispatchService.ListMine(c.Request.Context(), c.GetString("userID"))
	sc.respondList(c, "List own alerts", "Alerts retrieved successfully", alerts, err)
}

// =================== RESPONDER ===================

// GetPendingAlerts lists alerts the caller was notified about that can still be accepted
// @Summary List pending alerts
// @Tags SOS
// @Success 200 {object} models.APIResponse{data=[]models.AlertSummary}
// @Router /sos/pending [get]
func (sc *SOSController) GetPendingAlerts(c *gin.Context) {
	alerts, err := sc.dispatchService.ListPendingFor(c.Request.Context(), c.GetString("userID"))
	sc.respondList(c, "List pending alerts", "Pending alerts retrieved successfully", alerts, err)
}

// GetMyRescues lists alerts where the caller is the primary responder
// @Summary List own rescues
// @Tags SOS
// @Success 200 {object} models.APIResponse{data=[]models.AlertSummary}
// @Router /sos/my-rescues [get]
func (sc *SOSController) GetMyRescues(c *gin.Context) {
	alerts, err := sc.dispatchService.ListRescues(c.Request.Context(), c.GetString("userID"))
	sc.respondList(c, "List rescues", "Rescues retrieved successfully", alerts, err)
}

// AcceptAlert claims an alert for the caller; only the first acceptance wins
// @Summary Accept SOS alert
// @Tags SOS
// @Param alertId path string true "Alert ID"
// @Success 200 {object} models.APIResponse{data=models.Alert}
// @Failure 409 {object} models.APIResponse
// @Router /sos/{alertId}/accept [post]
func (sc *SOSController) AcceptAlert(c *gin.Context) {
	alert, err := sc.dispatchService.Accept(c.Request.Context(), c.Param("alertId"), c.GetString("userID"))
	if err != nil {
		sc.fail(c, "Accept SOS alert", err)
		return
	}

	utils.SuccessResponse(c, "SOS alert accepted", alert)
}

// UpdateResponderStatus records ARRIVED or DECLINED for the caller
// @Summary Update responder status
// @Tags SOS
// @Param alertId path string true "Alert ID"
// @Param status query string true "ARRIVED or DECLINED"
// @Success 200 {object} models.APIResponse{data=models.Alert}
// @Router /sos/{alertId}/status [put]
func (sc *SOSController) UpdateResponderStatus(c *gin.Context) {
	status := c.Query("status")
	if status == "" {
		utils.BadRequestResponse(c, "status query parameter is required")
		return
	}

	alert, err := sc.dispatchService.UpdateResponderStatus(c.Request.Context(), c.Param("alertId"), c.GetString("userID"), status)
	if err != nil {
		sc.fail(c, "Update responder status", err)
		return
	}

	utils.SuccessResponse(c, "Responder status updated", alert)
}

// ResolveAlert closes an alert
// @Summary Resolve SOS alert
// @Tags SOS
// @Param alertId path string true "Alert ID"
// @Param request body models.ResolveAlertRequest false "Resolution"
// @Success 200 {object} models.APIResponse{data=models.Alert}
// @Router /sos/{alertId}/resolve [post]
func (sc *SOSController) ResolveAlert(c *gin.Context) {
	var req models.ResolveAlertRequest
	// The body is optional.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	alert, err := sc.dispatchService.Resolve(c.Request.Context(), c.Param("alertId"), c.GetString("userID"), req)
	if err != nil {
		sc.fail(c, "Resolve SOS alert", err)
		return
	}

	utils.SuccessResponse(c, "SOS alert resolved", alert)
}

// UpdateResponderLocation appends a sample to the responder trail
// @Summary Update responder location
// @Tags SOS
// @Param alertId path string true "Alert ID"
// @Param request body models.UpdateLocationRequest true "Location sample"
// @Success 200 {object} models.APIResponse{data=models.Alert}
// @Router /sos/{alertId}/location/responder [put]
func (sc *SOSController) UpdateResponderLocation(c *gin.Context) {
	var req models.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	alert, err := sc.dispatchService.UpdateResponderLocation(c.Request.Context(), c.Param("alertId"), c.GetString("userID"), req)
	if err != nil {
		sc.fail(c, "Update responder location", err)
		return
	}

	utils.SuccessResponse(c, "Location updated", alert)
}

// =================== LOOKUPS ===================

// GetNearbyAlerts lists open alerts around a point
// @Summary Nearby alerts
// @Tags SOS
// @Param latitude query number true "Latitude"
// @Param longitude query number true "Longitude"
// @Param radiusKm query number false "Radius in km" default(10)
// @Success 200 {object} models.APIResponse{data=[]models.AlertSummary}
// @Router /sos/nearby [get]
func (sc *SOSController) GetNearbyAlerts(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("latitude"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("longitude"), 64)
	if errLat != nil || errLng != nil {
		utils.BadRequestResponse(c, "latitude and longitude are required")
		return
	}

	radiusKm := defaultNearbyRadiusKm
	if raw := c.Query("radiusKm"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid radiusKm")
			return
		}
		radiusKm = parsed
	}

	alerts, err := sc.dispatchService.NearbyActive(c.Request.Context(), utils.Coordinate{Latitude: lat, Longitude: lng}, radiusKm)
	sc.respondList(c, "List nearby alerts", "Nearby alerts retrieved successfully", alerts, err)
}

// GetActiveAlerts lists every open alert
// @Summary Active alerts
// @Tags SOS
// @Success 200 {object} models.APIResponse{data=[]models.AlertSummary}
// @Router /sos/active [get]
func (sc *SOSController) GetActiveAlerts(c *gin.Context) {
	alerts, err := sc.dispatchService.ListActive(c.Request.Context())
	sc.respondList(c, "List active alerts", "Active alerts retrieved successfully", alerts, err)
}

// GetAlert returns the full alert with both trails and the roster
// @Summary Alert detail
// @Tags SOS
// @Param alertId path string true "Alert ID"
// @Success 200 {object} models.APIResponse{data=models.Alert}
// @Failure 404 {object} models.APIResponse
// @Router /sos/{alertId} [get]
func (sc *SOSController) GetAlert(c *gin.Context) {
	alert, err := sc.dispatchService.GetAlert(c.Request.Context(), c.Param("alertId"))
	if err != nil {
		sc.fail(c, "Get SOS alert", err)
		return
	}

	utils.SuccessResponse(c, "Alert retrieved successfully", alert)
}

// GetAlertByCode looks an alert up by its shareable code
// @Summary Alert by code
// @Tags SOS
// @Param alertCode path string true "Alert code"
// @Success 200 {object} models.APIResponse{data=models.Alert}
// @Failure 404 {object} models.APIResponse
// @Router /sos/code/{alertCode} [get]
func (sc *SOSController) GetAlertByCode(c *gin.Context) {
	alert, err := sc.dispatchService.GetAlertByCode(c.Request.Context(), c.Param("alertCode"))
	if err != nil {
		sc.fail(c, "Get SOS alert by code", err)
		return
	}

	utils.SuccessResponse(c, "Alert retrieved successfully", alert)
}

func (sc *SOSController) respondList(c *gin.Context, operation, message string, alerts []*models.Alert, err error) {
	if err != nil {
		sc.fail(c, operation, err)
		return
	}
	summaries := models.Summaries(alerts, time.Now().UTC())
	utils.ListResponse(c, message, summaries, len(summaries))
}

func (sc *SOSController) fail(c *gin.Context, operation string, err error) {
	entry := logrus.WithFields(logrus.Fields{
		"user_id":  c.GetString("userID"),
		"alert_id": c.Param("alertId"),
	}).WithError(err)
	if utils.IsKind(err, utils.KindUnavailable) {
		entry.Errorf("%s failed", operation)
	} else {
		entry.Debugf("%s rejected", operation)
	}
	utils.DispatchErrorResponse(c, err)
}
