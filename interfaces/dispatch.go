package interfaces

import (
	"context"
	"time"

	"rescuedispatch/models"
	"rescuedispatch/utils"
)

// Directory is the read side of the user profile store.
type Directory interface {
	ProfileOf(ctx context.Context, userID string) (*models.Profile, error)
	// CandidatesNear returns available, active users within radiusMeters of
	// center, excluding excludeID. Ordering and exact distance are not guaranteed.
	CandidatesNear(ctx context.Context, center utils.Coordinate, radiusMeters float64, excludeID string) ([]models.Candidate, error)
}

// Counters are profile side effects that never roll back an alert mutation.
type Counters interface {
	IncrementSosCount(ctx context.Context, userID string) error
	IncrementRescueCount(ctx context.Context, userID string) error
}

// AlertStore persists alerts. Every mutating method is a single conditional
// write: it applies only if the persisted alert still satisfies the guard of
// the transition and returns repositories.ErrConditionFailed otherwise.
// Returned alerts are never aliased by the store.
type AlertStore interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	GetByCode(ctx context.Context, code string) (*models.Alert, error)

	CountActiveBySender(ctx context.Context, senderID string) (int64, error)
	ListBySender(ctx context.Context, senderID string) ([]*models.Alert, error)
	ListPendingForResponder(ctx context.Context, userID string) ([]*models.Alert, error)
	ListByPrimaryResponder(ctx context.Context, responderID string) ([]*models.Alert, error)
	ListActive(ctx context.Context) ([]*models.Alert, error)
	ListNearbyActive(ctx context.Context, center utils.Coordinate, radiusKm float64) ([]*models.Alert, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Alert, error)

	MarkAlerted(ctx context.Context, id string, candidates []models.Candidate, at time.Time) (*models.Alert, error)
	Accept(ctx context.Context, id, responderID, responderName string, at time.Time) (*models.Alert, error)
	MarkArrived(ctx context.Context, id, responderID string, at time.Time) (*models.Alert, error)
	UpdateResponderStatus(ctx context.Context, id, responderID string, status models.ResponderStatus, at time.Time) (*models.Alert, error)
	Resolve(ctx context.Context, id, responderID, notes string, resolution models.ResolutionType, at time.Time) (*models.Alert, error)
	Cancel(ctx context.Context, id, senderID string, at time.Time) (*models.Alert, error)
	AppendSenderLocation(ctx context.Context, id, senderID string, sample models.LocationSample) (*models.Alert, error)
	AppendResponderLocation(ctx context.Context, id, responderID string, sample models.LocationSample) (*models.Alert, error)
	Expire(ctx context.Context, id string, at time.Time) (*models.Alert, error)
}

// Notifier delivers best-effort notifications. Delivery is never guaranteed.
type Notifier interface {
	NotifyResponders(ctx context.Context, alert *models.Alert, responders []models.Candidate) error
	NotifyEmergencyContact(ctx context.Context, alert *models.Alert) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.AlertEvent) error
}

// EventSubscriber streams published alert events until ctx is done.
type EventSubscriber interface {
	Subscribe(ctx context.Context, handle func(models.AlertEvent)) error
}
