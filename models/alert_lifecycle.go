package models

import (
	"errors"
	"math"
	"time"
)

// ErrTransitionNotAllowed is returned by the Alert mutators when the alert's
// current status does not permit the requested transition.
var ErrTransitionNotAllowed = errors.New("transition not allowed from current status")

type Transition string

const (
	TransitionAlert          Transition = "alert"
	TransitionAccept         Transition = "accept"
	TransitionArrive         Transition = "arrive"
	TransitionResponderState Transition = "responder_status"
	TransitionCancel         Transition = "cancel"
	TransitionResolve        Transition = "resolve"
	TransitionExpire         Transition = "expire"
	TransitionLocation       Transition = "location"
)

var transitionGuards = map[Transition][]AlertStatus{
	TransitionAlert:          {AlertStatusPending},
	TransitionAccept:         AwaitingResponderStatuses,
	TransitionArrive:         {AlertStatusAccepted},
	TransitionResponderState: ActiveAlertStatuses,
	TransitionCancel:         {AlertStatusPending, AlertStatusAlerted, AlertStatusAccepted},
	TransitionResolve:        ActiveAlertStatuses,
	TransitionExpire:         AwaitingResponderStatuses,
	TransitionLocation:       ActiveAlertStatuses,
}

// AllowedFrom returns the statuses from which t may be applied. Stores use the
// same set as the predicate of their conditional writes.
func AllowedFrom(t Transition) []AlertStatus {
	guard := transitionGuards[t]
	out := make([]AlertStatus, len(guard))
	copy(out, guard)
	return out
}

func (a *Alert) CanApply(t Transition) bool {
	return containsStatus(transitionGuards[t], a.Status)
}

func (a *Alert) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// MarkAlerted puts every candidate on the roster and moves a PENDING alert to ALERTED.
func (a *Alert) MarkAlerted(candidates []Candidate, at time.Time) error {
	if !a.CanApply(TransitionAlert) || len(candidates) == 0 {
		return ErrTransitionNotAllowed
	}
	for _, c := range candidates {
		a.NotifyResponder(c, at)
	}
	a.Status = AlertStatusAlerted
	a.AlertedAt = &at
	a.UpdatedAt = at
	return nil
}

// NotifyResponder adds c to the roster and to the notified id set.
func (a *Alert) NotifyResponder(c Candidate, at time.Time) bool {
	if !a.Responders.Notify(c, at) {
		return false
	}
	if !containsString(a.NotifiedUserIDs, c.UserID) {
		a.NotifiedUserIDs = append(a.NotifiedUserIDs, c.UserID)
	}
	a.NotifiedCount = len(a.NotifiedUserIDs)
	return true
}

func (a *Alert) Accept(responderID, responderName string, at time.Time) error {
	if !a.CanApply(TransitionAccept) || a.PrimaryResponderID != "" {
		return ErrTransitionNotAllowed
	}
	a.Status = AlertStatusAccepted
	a.PrimaryResponderID = responderID
	a.PrimaryResponderName = responderName
	a.AcceptedAt = &at
	a.UpdatedAt = at
	a.Responders.MarkAccepted(responderID, at)
	return nil
}

func (a *Alert) MarkArrived(responderID string, at time.Time) error {
	if !a.CanApply(TransitionArrive) {
		return ErrTransitionNotAllowed
	}
	a.Status = AlertStatusInProgress
	a.ArrivedAt = &at
	a.UpdatedAt = at
	a.Responders.UpdateStatus(responderID, ResponderStatusArrived, at)
	return nil
}

// UpdateResponderStatus changes a roster entry without touching the alert status.
func (a *Alert) UpdateResponderStatus(responderID string, status ResponderStatus, at time.Time) error {
	if !a.CanApply(TransitionResponderState) {
		return ErrTransitionNotAllowed
	}
	if !a.Responders.UpdateStatus(responderID, status, at) {
		return ErrTransitionNotAllowed
	}
	a.UpdatedAt = at
	return nil
}

func (a *Alert) Cancel(at time.Time) error {
	if !a.CanApply(TransitionCancel) {
		return ErrTransitionNotAllowed
	}
	a.Status = AlertStatusCancelled
	a.CancelledAt = &at
	a.UpdatedAt = at
	return nil
}

func (a *Alert) Resolve(notes string, resolution ResolutionType, at time.Time) error {
	if !a.CanApply(TransitionResolve) {
		return ErrTransitionNotAllowed
	}
	a.Status = AlertStatusResolved
	a.ResolutionNotes = notes
	a.ResolutionType = resolution
	a.ResolvedAt = &at
	a.UpdatedAt = at
	a.ResponseTimeMinutes = ResponseTimeMinutes(a.AcceptedAt, at)
	return nil
}

// Expire cancels an alert nobody accepted before expiresAt.
func (a *Alert) Expire(at time.Time) error {
	if !a.CanApply(TransitionExpire) || !a.IsExpired(at) {
		return ErrTransitionNotAllowed
	}
	a.Status = AlertStatusCancelled
	a.CancelledAt = &at
	a.ExpiredAt = &at
	a.UpdatedAt = at
	return nil
}

func (a *Alert) AddSenderLocation(sample LocationSample) error {
	if !a.CanApply(TransitionLocation) {
		return ErrTransitionNotAllowed
	}
	a.SenderLocationHistory.Append(sample)
	a.Latitude = sample.Latitude
	a.Longitude = sample.Longitude
	a.Accuracy = sample.Accuracy
	a.Location = NewGeoPoint(sample.Latitude, sample.Longitude)
	a.UpdatedAt = sample.Timestamp
	return nil
}

func (a *Alert) AddResponderLocation(sample LocationSample) error {
	if !a.CanApply(TransitionLocation) {
		return ErrTransitionNotAllowed
	}
	a.ResponderLocationHistory.Append(sample)
	a.UpdatedAt = sample.Timestamp
	return nil
}

// ResponseTimeMinutes is the accepted to resolved delta rounded to whole
// minutes, or 0 when the alert was never accepted.
func ResponseTimeMinutes(acceptedAt *time.Time, resolvedAt time.Time) int {
	if acceptedAt == nil || acceptedAt.IsZero() {
		return 0
	}
	return int(math.Round(resolvedAt.Sub(*acceptedAt).Minutes()))
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
