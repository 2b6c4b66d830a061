package models

import (
	"encoding/json"
	"strings"
)

type AlertStatus string

const (
	AlertStatusPending    AlertStatus = "PENDING"
	AlertStatusAlerted    AlertStatus = "ALERTED"
	AlertStatusAccepted   AlertStatus = "ACCEPTED"
	AlertStatusInProgress AlertStatus = "IN_PROGRESS"
	AlertStatusResolved   AlertStatus = "RESOLVED"
	AlertStatusCancelled  AlertStatus = "CANCELLED"
	AlertStatusUnknown    AlertStatus = "UNKNOWN"
)

var (
	// ActiveAlertStatuses is the non-terminal set. A sender may own at most one
	// alert in any of these states.
	ActiveAlertStatuses = []AlertStatus{
		AlertStatusPending,
		AlertStatusAlerted,
		AlertStatusAccepted,
		AlertStatusInProgress,
	}

	// AwaitingResponderStatuses are the states in which a responder can still accept.
	AwaitingResponderStatuses = []AlertStatus{
		AlertStatusPending,
		AlertStatusAlerted,
	}

	// NearbyVisibleStatuses are returned by proximity listings.
	NearbyVisibleStatuses = []AlertStatus{
		AlertStatusPending,
		AlertStatusAlerted,
		AlertStatusAccepted,
	}
)

func ParseAlertStatus(s string) AlertStatus {
	switch status := AlertStatus(strings.ToUpper(strings.TrimSpace(s))); status {
	case AlertStatusPending, AlertStatusAlerted, AlertStatusAccepted,
		AlertStatusInProgress, AlertStatusResolved, AlertStatusCancelled:
		return status
	default:
		return AlertStatusUnknown
	}
}

// UnmarshalJSON decodes statuses from other instances; unrecognised values
// become UNKNOWN.
func (s *AlertStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseAlertStatus(raw)
	return nil
}

func (s AlertStatus) IsTerminal() bool {
	return s == AlertStatusResolved || s == AlertStatusCancelled
}

func (s AlertStatus) IsActive() bool {
	return containsStatus(ActiveAlertStatuses, s)
}

func (s AlertStatus) String() string {
	return string(s)
}

// StatusStrings converts a status set for use in store queries.
func StatusStrings(statuses []AlertStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func containsStatus(set []AlertStatus, s AlertStatus) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}

type ResponderStatus string

const (
	ResponderStatusNotified ResponderStatus = "NOTIFIED"
	ResponderStatusAccepted ResponderStatus = "ACCEPTED"
	ResponderStatusDeclined ResponderStatus = "DECLINED"
	ResponderStatusArrived  ResponderStatus = "ARRIVED"
	ResponderStatusUnknown  ResponderStatus = "UNKNOWN"
)

func ParseResponderStatus(s string) ResponderStatus {
	switch status := ResponderStatus(strings.ToUpper(strings.TrimSpace(s))); status {
	case ResponderStatusNotified, ResponderStatusAccepted, ResponderStatusDeclined, ResponderStatusArrived:
		return status
	default:
		return ResponderStatusUnknown
	}
}

type ResolutionType string

const (
	ResolutionRescued    ResolutionType = "RESCUED"
	ResolutionFalseAlarm ResolutionType = "FALSE_ALARM"
	ResolutionOther      ResolutionType = "OTHER"
	ResolutionUnknown    ResolutionType = "UNKNOWN"
)

// ParseResolutionType defaults to RESCUED when the caller sends nothing.
func ParseResolutionType(s string) ResolutionType {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if trimmed == "" {
		return ResolutionRescued
	}
	switch rt := ResolutionType(trimmed); rt {
	case ResolutionRescued, ResolutionFalseAlarm, ResolutionOther:
		return rt
	default:
		return ResolutionUnknown
	}
}

const (
	EmergencyTypeMedical         = "MEDICAL"
	EmergencyTypeFire            = "FIRE"
	EmergencyTypeAccident        = "ACCIDENT"
	EmergencyTypeCrime           = "CRIME"
	EmergencyTypeNaturalDisaster = "NATURAL_DISASTER"
	EmergencyTypeOther           = "OTHER"
)

const (
	PriorityLow      = "LOW"
	PriorityMedium   = "MEDIUM"
	PriorityHigh     = "HIGH"
	PriorityCritical = "CRITICAL"
)

const (
	CommunicationModeInternet  = "INTERNET"
	CommunicationModeSMS       = "SMS"
	CommunicationModeBluetooth = "BLUETOOTH"
	CommunicationModeLoRa      = "LORA"
)

const LocationSourceGPS = "GPS"

var (
	EmergencyTypes     = []string{EmergencyTypeMedical, EmergencyTypeFire, EmergencyTypeAccident, EmergencyTypeCrime, EmergencyTypeNaturalDisaster, EmergencyTypeOther}
	Priorities         = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
	CommunicationModes = []string{CommunicationModeInternet, CommunicationModeSMS, CommunicationModeBluetooth, CommunicationModeLoRa}
)
