package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"rescuedispatch/models"
	"rescuedispatch/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryAlertRepository keeps alerts in process. Each alert has its own lock
// so writes to different alerts never contend. The guards are the lifecycle
// mutators themselves, applied to a copy and committed only on success.
type MemoryAlertRepository struct {
	mu     sync.RWMutex
	alerts map[string]*alertRecord
	codes  map[string]string

	senderMu       sync.Mutex
	activeBySender map[string]string
}

type alertRecord struct {
	mu    sync.Mutex
	alert *models.Alert
}

func NewMemoryAlertRepository() *MemoryAlertRepository {
	return &MemoryAlertRepository{
		alerts:         make(map[string]*alertRecord),
		codes:          make(map[string]string),
		activeBySender: make(map[string]string),
	}
}

func (mr *MemoryAlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	mr.senderMu.Lock()
	defer mr.senderMu.Unlock()

	if _, exists := mr.activeBySender[alert.SenderID]; exists && alert.Status.IsActive() {
		return ErrActiveAlertExists
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()

	if _, exists := mr.codes[alert.AlertCode]; exists {
		return ErrDuplicateCode
	}
	if alert.ID.IsZero() {
		alert.ID = primitive.NewObjectID()
	}
	normalizeSlices(alert)

	id := alert.ID.Hex()
	mr.alerts[id] = &alertRecord{alert: alert.Clone()}
	mr.codes[alert.AlertCode] = id
	if alert.Status.IsActive() {
		mr.activeBySender[alert.SenderID] = id
	}
	return nil
}

func (mr *MemoryAlertRepository) record(id string) (*alertRecord, bool) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	rec, ok := mr.alerts[id]
	return rec, ok
}

func (mr *MemoryAlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	rec, ok := mr.record(id)
	if !ok {
		return nil, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.alert.Clone(), nil
}

func (mr *MemoryAlertRepository) GetByCode(ctx context.Context, code string) (*models.Alert, error) {
	mr.mu.RLock()
	id, ok := mr.codes[code]
	mr.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return mr.GetByID(ctx, id)
}

func (mr *MemoryAlertRepository) CountActiveBySender(ctx context.Context, senderID string) (int64, error) {
	alerts := mr.filter(func(a *models.Alert) bool {
		return a.SenderID == senderID && a.Status.IsActive()
	})
	return int64(len(alerts)), nil
}

func (mr *MemoryAlertRepository) ListBySender(ctx context.Context, senderID string) ([]*models.Alert, error) {
	return newestFirstSorted(mr.filter(func(a *models.Alert) bool {
		return a.SenderID == senderID
	})), nil
}

func (mr *MemoryAlertRepository) ListPendingForResponder(ctx context.Context, userID string) ([]*models.Alert, error) {
	awaiting := models.AllowedFrom(models.TransitionAccept)
	return newestFirstSorted(mr.filter(func(a *models.Alert) bool {
		return hasStatus(awaiting, a.Status) && containsID(a.NotifiedUserIDs, userID)
	})), nil
}

func (mr *MemoryAlertRepository) ListByPrimaryResponder(ctx context.Context, responderID string) ([]*models.Alert, error) {
	return newestFirstSorted(mr.filter(func(a *models.Alert) bool {
		return a.PrimaryResponderID == responderID
	})), nil
}

func (mr *MemoryAlertRepository) ListActive(ctx context.Context) ([]*models.Alert, error) {
	return newestFirstSorted(mr.filter(func(a *models.Alert) bool {
		return a.Status.IsActive()
	})), nil
}

func (mr *MemoryAlertRepository) ListNearbyActive(ctx context.Context, center utils.Coordinate, radiusKm float64) ([]*models.Alert, error) {
	distances := make(map[*models.Alert]float64)
	alerts := mr.filter(func(a *models.Alert) bool {
		if !hasStatus(models.NearbyVisibleStatuses, a.Status) {
			return false
		}
		d := utils.HaversineKm(center, utils.Coordinate{Latitude: a.Latitude, Longitude: a.Longitude})
		return d <= radiusKm
	})
	for _, a := range alerts {
		distances[a] = utils.HaversineKm(center, utils.Coordinate{Latitude: a.Latitude, Longitude: a.Longitude})
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return distances[alerts[i]] < distances[alerts[j]]
	})
	return alerts, nil
}

func (mr *MemoryAlertRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Alert, error) {
	expirable := models.AllowedFrom(models.TransitionExpire)
	alerts := mr.filter(func(a *models.Alert) bool {
		return hasStatus(expirable, a.Status) && a.IsExpired(now)
	})
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].ExpiresAt.Before(alerts[j].ExpiresAt)
	})
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func (mr *MemoryAlertRepository) MarkAlerted(ctx context.Context, id string, candidates []models.Candidate, at time.Time) (*models.Alert, error) {
	return mr.update(id, func(a *models.Alert) error {
		return a.MarkAlerted(candidates, at)
	})
}

func (mr *MemoryAlertRepository) Accept(ctx context.Context, id, responderID, responderName string, at time.Time) (*models.Alert, error) {
	return mr.update(id, func(a *models.Alert) error {
		return a.Accept(responderID, responderName, at)
	})
}

func (mr *MemoryAlertRepository) MarkArrived(ctx context.Context, id, responderID string, at time.Time) (*models.Alert, error) {
	return mr.update(id, func(a *models.Alert) error {
		if a.PrimaryResponderID != responderID {
			return ErrConditionFailed
		}
		return a.MarkArrived(responderID, at)
	})
}

func (mr *MemoryAlertRepository) UpdateResponderStatus(ctx context.Context, id, responderID string, status models.ResponderStatus, at time.Time) (*models.Alert, error) {
	return mr.update(id, func(a *models.Alert) error {
		return a.UpdateResponderStatus(responderID, status, at)
	})
}

func (mr *MemoryAlertRepository) Resolve(ctx context.Context, id, responderID, notes string, resolution models.ResolutionType, at time.Time) (*models.Alert, error) {
	return mr.update(id, func(a *models.Alert) error {
		if a.PrimaryResponderID != "" && a.PrimaryResponderID != responderID {
			return ErrConditionFailed
		}
		return a.Resolve(notes, resolution, at)
	})
}

func (mr *MemoryAlertRepository) Cancel(ctx context.Context, id, senderID string, at time.Time) (*models.Alert, error) {
	return mr.update(id, func(a *models.Alert) error {
		if a.SenderID != senderID {
			return ErrConditionFailed
		}
		return a.Cancel(at)
	})
}

func (mr *MemoryAlertRepository) AppendSenderLocation(ctx context.Context, id, senderID string, sample models.LocationSample) (*models.Alert, error) {
	return mr.update(id, func(a *models.Alert) error {
		if a.SenderID != senderID {
			return ErrConditionFailed
		}
		return a.AddSenderLocation(sample)
	})
}

func (mr *MemoryAlertRepository) AppendResponderLocation(ctx context.Context, id, responderID string, sample models.LocationSample) (*models.Alert, error) {
	return mr.update(id, func(a *models.Alert) error {
		if a.PrimaryResponderID == "" || a.PrimaryResponderID != responderID {
			return ErrConditionFailed
		}
		return a.AddResponderLocation(sample)
	})
}

func (mr *MemoryAlertRepository) Expire(ctx context.Context, id string, at time.Time) (*models.Alert, error) {
	return mr.update(id, func(a *models.Alert) error {
		return a.Expire(at)
	})
}

// update applies mutate to a copy under the record lock and commits it only
// when the mutation succeeds. Any failure surfaces as ErrConditionFailed.
func (mr *MemoryAlertRepository) update(id string, mutate func(a *models.Alert) error) (*models.Alert, error) {
	rec, ok := mr.record(id)
	if !ok {
		return nil, ErrConditionFailed
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	next := rec.alert.Clone()
	if err := mutate(next); err != nil {
		return nil, ErrConditionFailed
	}
	rec.alert = next

	if next.Status.IsTerminal() {
		mr.senderMu.Lock()
		if mr.activeBySender[next.SenderID] == id {
			delete(mr.activeBySender, next.SenderID)
		}
		mr.senderMu.Unlock()
	}
	return next.Clone(), nil
}

func (mr *MemoryAlertRepository) filter(keep func(a *models.Alert) bool) []*models.Alert {
	mr.mu.RLock()
	records := make([]*alertRecord, 0, len(mr.alerts))
	for _, rec := range mr.alerts {
		records = append(records, rec)
	}
	mr.mu.RUnlock()

	out := []*models.Alert{}
	for _, rec := range records {
		rec.mu.Lock()
		if keep(rec.alert) {
			out = append(out, rec.alert.Clone())
		}
		rec.mu.Unlock()
	}
	return out
}

func newestFirstSorted(alerts []*models.Alert) []*models.Alert {
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	return alerts
}

func hasStatus(set []models.AlertStatus, s models.AlertStatus) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
