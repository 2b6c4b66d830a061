package controllers

import (
	"context"
	"net/http"
	"time"

	"rescuedispatch/utils"

	"github.com/gin-gonic/gin"
)

const Version = "1.0.0"

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type HealthController struct {
	checks    map[string]HealthCheck
	startTime time.Time
}

// NewHealthController takes one probe per dependency; a nil probe reports
// the dependency as disabled.
func NewHealthController(checks map[string]HealthCheck) *HealthController {
	return &HealthController{
		checks:    checks,
		startTime: time.Now(),
	}
}

// HealthCheck reports dependency status
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Failure 503 {object} models.HealthResponse
// @Router /health [get]
func (hc *HealthController) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	statuses := make(map[string]string, len(hc.checks))
	for name, check := range hc.checks {
		switch {
		case check == nil:
			statuses[name] = "disabled"
		case check(ctx) != nil:
			statuses[name] = "unhealthy"
		default:
			statuses[name] = "healthy"
		}
	}

	resp := utils.HealthCheckResponse(statuses, Version, utils.FormatDuration(time.Since(hc.startTime)))
	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
