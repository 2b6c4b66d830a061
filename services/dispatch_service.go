package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"rescuedispatch/interfaces"
	"rescuedispatch/models"
	"rescuedispatch/repositories"
	"rescuedispatch/utils"

	"github.com/sirupsen/logrus"
)

const (
	DefaultAlertTTL          = time.Hour
	defaultSideEffectTimeout = 15 * time.Second
	maxCodeAttempts          = 3
	expirySweepBatch         = 100
	maxNearbyRadiusKm        = 100.0
)

type DispatchConfig struct {
	DispatchRadiusKm  float64
	AlertTTL          time.Duration
	SideEffectTimeout time.Duration
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.DispatchRadiusKm <= 0 {
		c.DispatchRadiusKm = DefaultDispatchRadiusKm
	}
	if c.AlertTTL <= 0 {
		c.AlertTTL = DefaultAlertTTL
	}
	if c.SideEffectTimeout <= 0 {
		c.SideEffectTimeout = defaultSideEffectTimeout
	}
	return c
}

// DispatchService drives alerts from creation through matching, acceptance,
// arrival and resolution, cancellation or expiry. Every state change is a
// conditional store write; counters, notifications and events are
// fire-and-forget and never roll a mutation back.
type DispatchService struct {
	store     interfaces.AlertStore
	directory interfaces.Directory
	counters  interfaces.Counters
	notifier  interfaces.Notifier
	events    interfaces.EventPublisher
	matcher   *GeoMatcher
	validator *utils.ValidationService
	config    DispatchConfig
	now       func() time.Time

	inflight sync.WaitGroup
}

func NewDispatchService(
	store interfaces.AlertStore,
	directory interfaces.Directory,
	counters interfaces.Counters,
	notifier interfaces.Notifier,
	events interfaces.EventPublisher,
	config DispatchConfig,
) *DispatchService {
	return &DispatchService{
		store:     store,
		directory: directory,
		counters:  counters,
		notifier:  notifier,
		events:    events,
		matcher:   NewGeoMatcher(directory),
		validator: utils.NewValidationService(),
		config:    config.withDefaults(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (ds *DispatchService) WithClock(now func() time.Time) *DispatchService {
	ds.now = now
	return ds
}

// Wait blocks until all in-flight side effects have finished.
func (ds *DispatchService) Wait() {
	ds.inflight.Wait()
}

// =================== CREATION & MATCHING ===================

func (ds *DispatchService) CreateAlert(ctx context.Context, senderID string, req models.CreateAlertRequest) (*models.Alert, error) {
	if validationErrors := ds.validator.ValidateStruct(req); len(validationErrors) > 0 {
		return nil, utils.NewValidationError("Invalid SOS request", validationErrors)
	}

	sender, err := ds.directory.ProfileOf(ctx, senderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, utils.NewNotFoundError("Sender")
		}
		return nil, utils.NewUnavailableError("load sender profile", err)
	}

	active, err := ds.store.CountActiveBySender(ctx, senderID)
	if err != nil {
		return nil, utils.NewUnavailableError("count active alerts", err)
	}
	if active > 0 {
		return nil, utils.NewAlreadyActiveError()
	}

	now := ds.now()
	alert := ds.buildAlert(sender, req, now)

	if err := ds.insert(ctx, alert); err != nil {
		return nil, err
	}

	utils.AlertsCreatedTotal.WithLabelValues(alert.Priority).Inc()
	logrus.WithFields(logrus.Fields{
		"alertId":   alert.ID.Hex(),
		"alertCode": alert.AlertCode,
		"senderId":  senderID,
		"priority":  alert.Priority,
	}).Info("SOS alert created")

	ds.sideEffect(ctx, "increment_sos_count", func(ctx context.Context) error {
		return ds.counters.IncrementSosCount(ctx, senderID)
	})
	if ds.notifier != nil && alert.SenderEmergencyContactPhone != "" {
		created := alert.Clone()
		ds.sideEffect(ctx, "notify_emergency_contact", func(ctx context.Context) error {
			return ds.notifier.NotifyEmergencyContact(ctx, created)
		})
	}
	ds.publish(ctx, models.AlertEventCreated, alert, senderID, nil)

	return ds.dispatch(ctx, alert), nil
}

func (ds *DispatchService) buildAlert(sender *models.Profile, req models.CreateAlertRequest, now time.Time) *models.Alert {
	lat, lng := *req.Latitude, *req.Longitude

	alert := &models.Alert{
		SenderID:                    sender.ID,
		SenderName:                  sender.Name,
		SenderPhone:                 sender.Phone,
		SenderEmergencyContact:      sender.EmergencyContact,
		SenderEmergencyContactPhone: sender.EmergencyContactPhone,
		ActiveSenderID:              sender.ID,
		Latitude:                    lat,
		Longitude:                   lng,
		Accuracy:                    req.Accuracy,
		Address:                     req.Address,
		Location:                    models.NewGeoPoint(lat, lng),
		EmergencyType:               upperOr(req.EmergencyType, models.EmergencyTypeOther),
		Priority:                    upperOr(req.Priority, models.PriorityHigh),
		Description:                 req.Description,
		CommunicationMode:           upperOr(req.CommunicationMode, models.CommunicationModeInternet),
		Images:                      req.Images,
		AudioMessage:                req.AudioMessage,
		Status:                      models.AlertStatusPending,
		NotifiedUserIDs:             []string{},
		Responders:                  models.ResponderRoster{},
		CreatedAt:                   now,
		UpdatedAt:                   now,
		ExpiresAt:                   now.Add(ds.config.AlertTTL),
		SenderLocationHistory:       models.LocationTrail{},
		ResponderLocationHistory:    models.LocationTrail{},
	}
	alert.SenderLocationHistory.Append(models.NewLocationSample(lat, lng, req.Accuracy, models.LocationSourceGPS, now))
	return alert
}

// insert persists a new alert, regenerating the code on collision.
func (ds *DispatchService) insert(ctx context.Context, alert *models.Alert) error {
	for attempt := 1; ; attempt++ {
		alert.AlertCode = utils.GenerateAlertCode(ds.now())
		err := ds.store.Create(ctx, alert)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, repositories.ErrActiveAlertExists):
			return utils.NewAlreadyActiveError()
		case errors.Is(err, repositories.ErrDuplicateCode) && attempt < maxCodeAttempts:
			logrus.WithField("alertCode", alert.AlertCode).Warn("Alert code collision, regenerating")
		default:
			return utils.NewUnavailableError("create alert", err)
		}
	}
}

// dispatch matches responders against the persisted alert. A failure here
// leaves the alert PENDING and visible; it never fails creation.
func (ds *DispatchService) dispatch(ctx context.Context, alert *models.Alert) *models.Alert {
	log := logrus.WithFields(logrus.Fields{"alertId": alert.ID.Hex(), "alertCode": alert.AlertCode})
	center := utils.Coordinate{Latitude: alert.Latitude, Longitude: alert.Longitude}

	candidates, err := ds.matcher.FindNearby(ctx, center, ds.config.DispatchRadiusKm, alert.SenderID)
	if err != nil {
		log.WithError(err).Warn("Responder matching failed, alert stays pending")
		return alert
	}
	utils.DispatchFanout.Observe(float64(len(candidates)))
	if len(candidates) == 0 {
		log.Info("No responders within dispatch radius")
		return alert
	}

	alerted, err := ds.store.MarkAlerted(ctx, alert.ID.Hex(), candidates, ds.now())
	utils.RecordTransition(string(models.TransitionAlert), ds.storeError("mark alerted", err))
	if err != nil {
		log.WithError(err).Warn("Failed to mark alert as alerted")
		return alert
	}

	log.WithField("responders", len(candidates)).Info("Responders notified")
	if ds.notifier != nil {
		notified := alerted.Clone()
		ds.sideEffect(ctx, "notify_responders", func(ctx context.Context) error {
			return ds.notifier.NotifyResponders(ctx, notified, candidates)
		})
	}
	ds.publish(ctx, models.AlertEventAlerted, alerted, alert.SenderID, nil)
	return alerted
}

// =================== RESPONDER ACTIONS ===================

// Accept is first-accept-wins: the store only applies it while the persisted
// status is still PENDING or ALERTED, every other caller gets InvalidState.
func (ds *DispatchService) Accept(ctx context.Context, alertID, responderID string) (*models.Alert, error) {
	alert, err := ds.load(ctx, alertID)
	if err != nil {
		return nil, err
	}

	responder, err := ds.directory.ProfileOf(ctx, responderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, utils.NewNotFoundError("Responder")
		}
		return nil, utils.NewUnavailableError("load responder profile", err)
	}
	if responderID == alert.SenderID {
		return nil, utils.NewForbiddenError("You cannot accept your own alert")
	}
	if !alert.CanApply(models.TransitionAccept) {
		utils.RecordTransition(string(models.TransitionAccept), errNotApplicable)
		return nil, utils.NewInvalidStateError("Alert is no longer available")
	}

	accepted, err := ds.store.Accept(ctx, alertID, responderID, responder.Name, ds.now())
	if err = ds.transitionResult(models.TransitionAccept, "Alert is no longer available", err); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"alertId": alertID, "responderId": responderID}).Info("SOS alert accepted")
	ds.publish(ctx, models.AlertEventAccepted, accepted, responderID, nil)
	return accepted, nil
}

// UpdateResponderStatus applies a responder's own status. ARRIVED moves the
// alert to IN_PROGRESS and is reserved to the accepted responder; DECLINED
// only touches the roster entry.
func (ds *DispatchService) UpdateResponderStatus(ctx context.Context, alertID, responderID, rawStatus string) (*models.Alert, error) {
	status := models.ParseResponderStatus(rawStatus)
	if status != models.ResponderStatusArrived && status != models.ResponderStatusDeclined {
		return nil, utils.NewValidationError("Status must be ARRIVED or DECLINED", []utils.ValidationError{{
			Field: "status", Tag: "oneof", Value: rawStatus, Message: "Status must be ARRIVED or DECLINED",
		}})
	}

	alert, err := ds.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !alert.Responders.Contains(responderID) && alert.PrimaryResponderID != responderID {
		return nil, utils.NewNotFoundError("Responder")
	}
	if alert.Status.IsTerminal() {
		return nil, utils.NewInvalidStateError("Alert is already closed")
	}

	var updated *models.Alert
	eventType := models.AlertEventResponderStatus
	if status == models.ResponderStatusArrived {
		if alert.Status != models.AlertStatusAccepted {
			return nil, utils.NewInvalidStateError("Arrival can only be reported for an accepted alert")
		}
		if alert.PrimaryResponderID != responderID {
			return nil, utils.NewForbiddenError("Only the accepted responder can report arrival")
		}
		updated, err = ds.store.MarkArrived(ctx, alertID, responderID, ds.now())
		err = ds.transitionResult(models.TransitionArrive, "Arrival can only be reported for an accepted alert", err)
		eventType = models.AlertEventArrived
	} else {
		if alert.PrimaryResponderID == responderID {
			return nil, utils.NewInvalidStateError("The accepted responder cannot decline")
		}
		updated, err = ds.store.UpdateResponderStatus(ctx, alertID, responderID, status, ds.now())
		err = ds.transitionResult(models.TransitionResponderState, "Alert is already closed", err)
	}
	if err != nil {
		return nil, err
	}

	ds.publish(ctx, eventType, updated, responderID, nil)
	return updated, nil
}

func (ds *DispatchService) Resolve(ctx context.Context, alertID, responderID string, req models.ResolveAlertRequest) (*models.Alert, error) {
	if validationErrors := ds.validator.ValidateStruct(req); len(validationErrors) > 0 {
		return nil, utils.NewValidationError("Invalid resolution", validationErrors)
	}
	resolution := models.ParseResolutionType(req.ResolutionType)

	alert, err := ds.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status.IsTerminal() {
		return nil, utils.NewInvalidStateError("Alert is already closed")
	}
	if responderID == alert.SenderID {
		return nil, utils.NewForbiddenError("You cannot resolve your own alert")
	}
	if alert.PrimaryResponderID == "" {
		if _, err := ds.directory.ProfileOf(ctx, responderID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, utils.NewNotFoundError("Responder")
			}
			return nil, utils.NewUnavailableError("load responder profile", err)
		}
	} else if alert.PrimaryResponderID != responderID {
		return nil, utils.NewForbiddenError("Only the accepted responder can resolve this alert")
	}

	resolved, err := ds.store.Resolve(ctx, alertID, responderID, req.Notes, resolution, ds.now())
	if err = ds.transitionResult(models.TransitionResolve, "Alert is already closed", err); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"alertId":             alertID,
		"responderId":         responderID,
		"resolutionType":      resolution,
		"responseTimeMinutes": resolved.ResponseTimeMinutes,
	}).Info("SOS alert resolved")

	// only an accepted responder is credited with the rescue
	if primary := resolved.PrimaryResponderID; primary != "" {
		ds.sideEffect(ctx, "increment_rescue_count", func(ctx context.Context) error {
			return ds.counters.IncrementRescueCount(ctx, primary)
		})
	}
	ds.publish(ctx, models.AlertEventResolved, resolved, responderID, nil)
	return resolved, nil
}

// =================== SENDER ACTIONS ===================

func (ds *DispatchService) Cancel(ctx context.Context, alertID, senderID string) (*models.Alert, error) {
	alert, err := ds.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.SenderID != senderID {
		return nil, utils.NewForbiddenError("Only the sender can cancel this alert")
	}
	if !alert.CanApply(models.TransitionCancel) {
		utils.RecordTransition(string(models.TransitionCancel), errNotApplicable)
		return nil, utils.NewInvalidStateError("Alert can no longer be cancelled")
	}

	cancelled, err := ds.store.Cancel(ctx, alertID, senderID, ds.now())
	if err = ds.transitionResult(models.TransitionCancel, "Alert can no longer be cancelled", err); err != nil {
		return nil, err
	}

	logrus.WithField("alertId", alertID).Info("SOS alert cancelled by sender")
	ds.publish(ctx, models.AlertEventCancelled, cancelled, senderID, nil)
	return cancelled, nil
}

func (ds *DispatchService) UpdateSenderLocation(ctx context.Context, alertID, senderID string, req models.UpdateLocationRequest) (*models.Alert, error) {
	sample, err := ds.sampleFrom(req)
	if err != nil {
		return nil, err
	}

	alert, err := ds.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.SenderID != senderID {
		return nil, utils.NewForbiddenError("Only the sender can update the alert location")
	}
	if alert.Status.IsTerminal() {
		return nil, utils.NewInvalidStateError("Alert is already closed")
	}

	updated, err := ds.store.AppendSenderLocation(ctx, alertID, senderID, sample)
	if err = ds.transitionResult(models.TransitionLocation, "Alert is already closed", err); err != nil {
		return nil, err
	}

	ds.publish(ctx, models.AlertEventSenderLocation, updated, senderID, &sample)
	return updated, nil
}

func (ds *DispatchService) UpdateResponderLocation(ctx context.Context, alertID, responderID string, req models.UpdateLocationRequest) (*models.Alert, error) {
	sample, err := ds.sampleFrom(req)
	if err != nil {
		return nil, err
	}

	alert, err := ds.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status.IsTerminal() {
		return nil, utils.NewInvalidStateError("Alert is already closed")
	}
	if alert.PrimaryResponderID == "" {
		return nil, utils.NewInvalidStateError("No responder has accepted this alert yet")
	}
	if alert.PrimaryResponderID != responderID {
		return nil, utils.NewForbiddenError("Only the accepted responder can share a location")
	}

	updated, err := ds.store.AppendResponderLocation(ctx, alertID, responderID, sample)
	if err = ds.transitionResult(models.TransitionLocation, "Alert is already closed", err); err != nil {
		return nil, err
	}

	ds.publish(ctx, models.AlertEventRespLocation, updated, responderID, &sample)
	return updated, nil
}

func (ds *DispatchService) sampleFrom(req models.UpdateLocationRequest) (models.LocationSample, error) {
	if validationErrors := ds.validator.ValidateStruct(req); len(validationErrors) > 0 {
		return models.LocationSample{}, utils.NewValidationError("Invalid location", validationErrors)
	}
	source := strings.ToUpper(strings.TrimSpace(req.Source))
	return models.NewLocationSample(*req.Latitude, *req.Longitude, req.Accuracy, source, ds.now()), nil
}

// =================== QUERIES ===================

func (ds *DispatchService) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	return ds.load(ctx, alertID)
}

func (ds *DispatchService) GetAlertByCode(ctx context.Context, code string) (*models.Alert, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !utils.IsAlertCode(code) {
		return nil, utils.NewValidationError("Invalid alert code", []utils.ValidationError{{
			Field: "alertCode", Tag: "alert_code", Value: code, Message: "Alert code must look like SOS-<year>-<digits>",
		}})
	}
	alert, err := ds.store.GetByCode(ctx, code)
	if err != nil {
		return nil, ds.storeError("get alert by code", err)
	}
	return alert, nil
}

func (ds *DispatchService) ListMine(ctx context.Context, senderID string) ([]*models.Alert, error) {
	return ds.list("list sender alerts", func() ([]*models.Alert, error) {
		return ds.store.ListBySender(ctx, senderID)
	})
}

// ListPendingFor returns alerts the user was notified about and that can still be accepted.
func (ds *DispatchService) ListPendingFor(ctx context.Context, userID string) ([]*models.Alert, error) {
	return ds.list("list pending alerts", func() ([]*models.Alert, error) {
		return ds.store.ListPendingForResponder(ctx, userID)
	})
}

func (ds *DispatchService) ListRescues(ctx context.Context, responderID string) ([]*models.Alert, error) {
	return ds.list("list rescues", func() ([]*models.Alert, error) {
		return ds.store.ListByPrimaryResponder(ctx, responderID)
	})
}

func (ds *DispatchService) ListActive(ctx context.Context) ([]*models.Alert, error) {
	return ds.list("list active alerts", func() ([]*models.Alert, error) {
		return ds.store.ListActive(ctx)
	})
}

// NearbyActive has no side effects. Resolved and cancelled alerts are never returned.
func (ds *DispatchService) NearbyActive(ctx context.Context, center utils.Coordinate, radiusKm float64) ([]*models.Alert, error) {
	if !utils.IsValidCoordinate(center.Latitude, center.Longitude) {
		return nil, utils.NewValidationError("Invalid coordinate", []utils.ValidationError{{
			Field: "latitude", Tag: "coordinate", Message: "Invalid coordinate value",
		}})
	}
	if radiusKm <= 0 || radiusKm > maxNearbyRadiusKm {
		return nil, utils.NewValidationError("Invalid radius", []utils.ValidationError{{
			Field: "radiusKm", Tag: "range", Message: "radiusKm must be between 0 and 100",
		}})
	}
	return ds.list("list nearby alerts", func() ([]*models.Alert, error) {
		return ds.store.ListNearbyActive(ctx, center, radiusKm)
	})
}

// =================== EXPIRY ===================

// ExpireStale cancels PENDING and ALERTED alerts whose expiresAt has passed.
// Each alert is expired by its own conditional write, so an alert accepted
// concurrently is left alone.
func (ds *DispatchService) ExpireStale(ctx context.Context) (int, error) {
	now := ds.now()
	stale, err := ds.store.ListExpired(ctx, now, expirySweepBatch)
	if err != nil {
		return 0, utils.NewUnavailableError("list expired alerts", err)
	}

	expired := 0
	for _, alert := range stale {
		updated, err := ds.store.Expire(ctx, alert.ID.Hex(), now)
		if err != nil {
			if errors.Is(err, repositories.ErrConditionFailed) {
				continue
			}
			return expired, utils.NewUnavailableError("expire alert", err)
		}
		expired++
		utils.ExpiredAlertsTotal.Inc()
		utils.RecordTransition(string(models.TransitionExpire), nil)
		logrus.WithFields(logrus.Fields{"alertId": alert.ID.Hex(), "alertCode": alert.AlertCode}).Info("SOS alert expired")
		ds.publish(ctx, models.AlertEventExpired, updated, "", nil)
	}
	return expired, nil
}

// =================== HELPERS ===================

var errNotApplicable = utils.NewInvalidStateError("transition not applicable")

func (ds *DispatchService) load(ctx context.Context, alertID string) (*models.Alert, error) {
	alert, err := ds.store.GetByID(ctx, alertID)
	if err != nil {
		return nil, ds.storeError("get alert", err)
	}
	return alert, nil
}

func (ds *DispatchService) list(op string, query func() ([]*models.Alert, error)) ([]*models.Alert, error) {
	alerts, err := query()
	if err != nil {
		return nil, utils.NewUnavailableError(op, err)
	}
	return alerts, nil
}

func (ds *DispatchService) storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrNotFound):
		return utils.NewNotFoundError("Alert")
	case errors.Is(err, repositories.ErrConditionFailed):
		return utils.NewInvalidStateError("Alert state changed")
	default:
		return utils.NewUnavailableError(op, err)
	}
}

// transitionResult records the outcome of a conditional write and turns a
// failed guard into InvalidState with a caller-facing message.
func (ds *DispatchService) transitionResult(t models.Transition, rejected string, err error) error {
	if errors.Is(err, repositories.ErrConditionFailed) {
		err = utils.NewInvalidStateError(rejected)
	} else {
		err = ds.storeError(string(t), err)
	}
	utils.RecordTransition(string(t), err)
	return err
}

func (ds *DispatchService) publish(ctx context.Context, eventType string, alert *models.Alert, actorID string, location *models.LocationSample) {
	if ds.events == nil {
		return
	}
	event := models.NewAlertEvent(eventType, alert, actorID, ds.now())
	event.Location = location
	ds.sideEffect(ctx, "publish_event", func(ctx context.Context) error {
		return ds.events.Publish(ctx, event)
	})
}

// sideEffect runs fn in the background, detached from the request's
// cancellation but bounded by the side effect timeout.
func (ds *DispatchService) sideEffect(ctx context.Context, name string, fn func(ctx context.Context) error) {
	ds.inflight.Add(1)
	go func() {
		defer ds.inflight.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ds.config.SideEffectTimeout)
		defer cancel()

		if err := fn(sctx); err != nil {
			utils.SideEffectFailuresTotal.WithLabelValues(name).Inc()
			logrus.WithError(err).WithField("effect", name).Warn("Side effect failed")
		}
	}()
}

func upperOr(value, fallback string) string {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return fallback
	}
	return v
}
