package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"rescuedispatch/models"
	"rescuedispatch/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	environment string
	logger      *logrus.Logger
}

func NewErrorHandler(environment string, logger *logrus.Logger) *ErrorHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ErrorHandler{
		environment: environment,
		logger:      logger,
	}
}

// Handle recovers panics and renders errors attached with c.Error when the
// handler did not write a response itself.
func (eh *ErrorHandler) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				eh.handlePanic(c, err)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		eh.processError(c, c.Errors.Last().Err)
	}
}

func (eh *ErrorHandler) handlePanic(c *gin.Context, err interface{}) {
	eh.logger.WithFields(logrus.Fields{
		"panic":      err,
		"stack":      string(debug.Stack()),
		"request_id": c.GetString("request_id"),
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"user_id":    c.GetString("userID"),
	}).Error("Panic recovered")

	var details interface{}
	if eh.environment == "development" {
		details = map[string]interface{}{"panic": fmt.Sprint(err)}
	}
	utils.ErrorResponse(c, http.StatusInternalServerError, models.ErrCodeInternal, "Internal server error", details)
	c.Abort()
}

func (eh *ErrorHandler) processError(c *gin.Context, err error) {
	fields := logrus.Fields{
		"error":      err.Error(),
		"request_id": c.GetString("request_id"),
		"path":       c.Request.URL.Path,
		"user_id":    c.GetString("userID"),
	}

	if _, ok := utils.AsDispatchError(err); ok {
		eh.logger.WithFields(fields).Warn("Request failed")
		utils.DispatchErrorResponse(c, err)
		return
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		eh.logger.WithFields(fields).Error("Database unavailable")
		utils.ErrorResponse(c, http.StatusServiceUnavailable, models.ErrCodeUnavailable, "Service temporarily unavailable", nil)
		return
	}

	eh.logger.WithFields(fields).Error("Unhandled error")
	utils.InternalServerErrorResponse(c, "")
}
