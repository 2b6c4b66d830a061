package utils

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetUserID retrieves the caller id stored as "userID" by the auth middleware.
func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get("userID"); exists {
		if idStr, ok := userID.(string); ok {
			return idStr
		}
	}
	return ""
}

// UUID Generation
func GenerateUUID() string {
	return uuid.New().String()
}

var alertCodeSeq atomic.Uint32

// GenerateAlertCode returns a human-shareable code of the form SOS-<year>-<digits>.
// The digits are the low millisecond clock followed by a process sequence so
// codes minted in the same millisecond differ. The store enforces uniqueness.
func GenerateAlertCode(now time.Time) string {
	millis := now.UnixMilli() % 100_000_000
	seq := alertCodeSeq.Add(1) % 1000
	return fmt.Sprintf("SOS-%d-%08d%03d", now.Year(), millis, seq)
}

var alertCodePattern = regexp.MustCompile(`^SOS-\d{4}-\d+$`)

func IsAlertCode(code string) bool {
	return alertCodePattern.MatchString(code)
}

func MaskPhoneNumber(phone string) string {
	cleaned := regexp.MustCompile(`\D`).ReplaceAllString(phone, "")
	if len(cleaned) < 4 {
		return phone
	}

	visible := cleaned[len(cleaned)-4:]
	masked := strings.Repeat("*", len(cleaned)-4) + visible
	return "+" + masked
}

func FormatDuration(duration time.Duration) string {
	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	}
	if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	}
	hours := int(duration.Hours())
	minutes := int(duration.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
