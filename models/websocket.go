// models/websocket.go
package models

import (
	"time"
)

// WebSocket Message Types
const (
	WSTypeAlertEvent = "alert_event"
	WSTypeConnected  = "connected"
	WSTypePing       = "ping"
	WSTypePong       = "pong"
	WSTypeError      = "error"
)

type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	UserID    string      `json:"userId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
