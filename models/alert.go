package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Alert is one emergency raised by a sender. It is only mutated through the
// lifecycle methods in alert_lifecycle.go or the equivalent conditional store writes.
type Alert struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	AlertCode string             `json:"alertCode" bson:"alertCode"`

	// Sender snapshot, captured once at creation
	SenderID                    string `json:"senderId" bson:"senderId"`
	SenderName                  string `json:"senderName" bson:"senderName"`
	SenderPhone                 string `json:"senderPhone,omitempty" bson:"senderPhone,omitempty"`
	SenderEmergencyContact      string `json:"senderEmergencyContact,omitempty" bson:"senderEmergencyContact,omitempty"`
	SenderEmergencyContactPhone string `json:"senderEmergencyContactPhone,omitempty" bson:"senderEmergencyContactPhone,omitempty"`

	// Set while the alert is non-terminal; backs the one-active-alert-per-sender index
	ActiveSenderID string `json:"-" bson:"activeSenderId,omitempty"`

	// Current location
	Latitude  float64  `json:"latitude" bson:"latitude"`
	Longitude float64  `json:"longitude" bson:"longitude"`
	Accuracy  float64  `json:"accuracy" bson:"accuracy"`
	Address   string   `json:"address,omitempty" bson:"address,omitempty"`
	Location  GeoPoint `json:"-" bson:"location"`

	// Classification
	EmergencyType     string   `json:"emergencyType" bson:"emergencyType"`
	Priority          string   `json:"priority" bson:"priority"`
	Description       string   `json:"description,omitempty" bson:"description,omitempty"`
	CommunicationMode string   `json:"communicationMode" bson:"communicationMode"`
	Images            []string `json:"images,omitempty" bson:"images,omitempty"`
	AudioMessage      string   `json:"audioMessage,omitempty" bson:"audioMessage,omitempty"`

	// Dispatch state
	Status               AlertStatus     `json:"status" bson:"status"`
	NotifiedUserIDs      []string        `json:"notifiedUserIds" bson:"notifiedUserIds"`
	NotifiedCount        int             `json:"notifiedCount" bson:"notifiedCount"`
	Responders           ResponderRoster `json:"responders" bson:"responders"`
	PrimaryResponderID   string          `json:"primaryResponderId,omitempty" bson:"primaryResponderId,omitempty"`
	PrimaryResponderName string          `json:"primaryResponderName,omitempty" bson:"primaryResponderName,omitempty"`

	// Timestamps
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
	ExpiresAt   time.Time  `json:"expiresAt" bson:"expiresAt"`
	AlertedAt   *time.Time `json:"alertedAt,omitempty" bson:"alertedAt,omitempty"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty" bson:"acceptedAt,omitempty"`
	ArrivedAt   *time.Time `json:"arrivedAt,omitempty" bson:"arrivedAt,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty"`
	ExpiredAt   *time.Time `json:"expiredAt,omitempty" bson:"expiredAt,omitempty"`

	// Resolution
	ResolutionNotes     string         `json:"resolutionNotes,omitempty" bson:"resolutionNotes,omitempty"`
	ResolutionType      ResolutionType `json:"resolutionType,omitempty" bson:"resolutionType,omitempty"`
	ResponseTimeMinutes int            `json:"responseTimeMinutes" bson:"responseTimeMinutes"`

	// Trails
	SenderLocationHistory    LocationTrail `json:"senderLocationHistory" bson:"senderLocationHistory"`
	ResponderLocationHistory LocationTrail `json:"responderLocationHistory" bson:"responderLocationHistory"`
}

// GeoPoint is a GeoJSON point, coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{lng, lat}}
}

// Clone returns a deep copy. Stores hand out clones so callers never alias
// the persisted roster or trails.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	c.Images = append([]string(nil), a.Images...)
	c.NotifiedUserIDs = append([]string(nil), a.NotifiedUserIDs...)
	c.Location.Coordinates = append([]float64(nil), a.Location.Coordinates...)
	c.SenderLocationHistory = LocationTrail(a.SenderLocationHistory.Samples())
	c.ResponderLocationHistory = LocationTrail(a.ResponderLocationHistory.Samples())
	c.Responders = make(ResponderRoster, len(a.Responders))
	for i, entry := range a.Responders {
		if entry.RespondedAt != nil {
			t := *entry.RespondedAt
			entry.RespondedAt = &t
		}
		c.Responders[i] = entry
	}
	c.AlertedAt = cloneTime(a.AlertedAt)
	c.AcceptedAt = cloneTime(a.AcceptedAt)
	c.ArrivedAt = cloneTime(a.ArrivedAt)
	c.ResolvedAt = cloneTime(a.ResolvedAt)
	c.CancelledAt = cloneTime(a.CancelledAt)
	c.ExpiredAt = cloneTime(a.ExpiredAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Request DTOs

type CreateAlertRequest struct {
	Latitude          *float64 `json:"latitude" validate:"required,coordinate"`
	Longitude         *float64 `json:"longitude" validate:"required,coordinate"`
	Accuracy          float64  `json:"accuracy" validate:"gte=0"`
	Address           string   `json:"address" validate:"max=500"`
	EmergencyType     string   `json:"emergencyType" validate:"omitempty,emergency_type"`
	Priority          string   `json:"priority" validate:"omitempty,priority"`
	Description       string   `json:"description" validate:"max=2000"`
	CommunicationMode string   `json:"communicationMode" validate:"omitempty,communication_mode"`
	Images            []string `json:"images" validate:"max=10,dive,url"`
	AudioMessage      string   `json:"audioMessage" validate:"omitempty,url"`
}

type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,coordinate"`
	Longitude *float64 `json:"longitude" validate:"required,coordinate"`
	Accuracy  float64  `json:"accuracy" validate:"gte=0"`
	Source    string   `json:"source" validate:"max=32"`
}

type ResolveAlertRequest struct {
	Notes          string `json:"notes" validate:"max=2000"`
	ResolutionType string `json:"resolutionType"`
}

// Response DTOs

type CreateAlertResponse struct {
	AlertCode string `json:"alertCode"`
	Alert     *Alert `json:"alert"`
}

// AlertSummary is the list view of an alert, without trails.
type AlertSummary struct {
	ID                   string          `json:"id"`
	AlertCode            string          `json:"alertCode"`
	SenderID             string          `json:"senderId"`
	SenderName           string          `json:"senderName"`
	Latitude             float64         `json:"latitude"`
	Longitude            float64         `json:"longitude"`
	Address              string          `json:"address,omitempty"`
	EmergencyType        string          `json:"emergencyType"`
	Priority             string          `json:"priority"`
	Status               AlertStatus     `json:"status"`
	NotifiedCount        int             `json:"notifiedCount"`
	PrimaryResponderID   string          `json:"primaryResponderId,omitempty"`
	PrimaryResponderName string          `json:"primaryResponderName,omitempty"`
	Responders           ResponderRoster `json:"responders,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	ExpiresAt            time.Time       `json:"expiresAt"`
	Expired              bool            `json:"expired"`
}

func (a *Alert) Summary(now time.Time) AlertSummary {
	return AlertSummary{
		ID:                   a.ID.Hex(),
		AlertCode:            a.AlertCode,
		SenderID:             a.SenderID,
		SenderName:           a.SenderName,
		Latitude:             a.Latitude,
		Longitude:            a.Longitude,
		Address:              a.Address,
		EmergencyType:        a.EmergencyType,
		Priority:             a.Priority,
		Status:               a.Status,
		NotifiedCount:        a.NotifiedCount,
		PrimaryResponderID:   a.PrimaryResponderID,
		PrimaryResponderName: a.PrimaryResponderName,
		Responders:           a.Responders,
		CreatedAt:            a.CreatedAt,
		ExpiresAt:            a.ExpiresAt,
		Expired:              a.IsExpired(now),
	}
}

func Summaries(alerts []*Alert, now time.Time) []AlertSummary {
	out := make([]AlertSummary, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Summary(now))
	}
	return out
}

// Events

const (
	AlertEventCreated         = "alert.created"
	AlertEventAlerted         = "alert.alerted"
	AlertEventAccepted        = "alert.accepted"
	AlertEventResponderStatus = "alert.responder_status"
	AlertEventArrived         = "alert.arrived"
	AlertEventResolved        = "alert.resolved"
	AlertEventCancelled       = "alert.cancelled"
	AlertEventExpired         = "alert.expired"
	AlertEventSenderLocation  = "alert.sender_location"
	AlertEventRespLocation    = "alert.responder_location"
)

// AlertEvent is published after every successful mutation.
type AlertEvent struct {
	Type       string          `json:"type"`
	AlertID    string          `json:"alertId"`
	AlertCode  string          `json:"alertCode"`
	Status     AlertStatus     `json:"status"`
	ActorID    string          `json:"actorId,omitempty"`
	Recipients []string        `json:"recipients"`
	Location   *LocationSample `json:"location,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// NewAlertEvent addresses the event to the sender, every notified responder
// and the primary responder.
func NewAlertEvent(eventType string, a *Alert, actorID string, at time.Time) AlertEvent {
	recipients := make([]string, 0, len(a.NotifiedUserIDs)+2)
	seen := make(map[string]bool, len(a.NotifiedUserIDs)+2)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			recipients = append(recipients, id)
		}
	}
	add(a.SenderID)
	for _, id := range a.NotifiedUserIDs {
		add(id)
	}
	add(a.PrimaryResponderID)

	return AlertEvent{
		Type:       eventType,
		AlertID:    a.ID.Hex(),
		AlertCode:  a.AlertCode,
		Status:     a.Status,
		ActorID:    actorID,
		Recipients: recipients,
		OccurredAt: at,
	}
}
