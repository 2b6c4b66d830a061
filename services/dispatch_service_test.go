package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"rescuedispatch/models"
	"rescuedispatch/repositories"
	"rescuedispatch/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	originLat = 12.9716
	originLng = 77.5946
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu         sync.Mutex
	responders map[string][]string
	contacts   []string
	err        error
}

func (n *recordingNotifier) NotifyResponders(ctx context.Context, alert *models.Alert, responders []models.Candidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.responders == nil {
		n.responders = make(map[string][]string)
	}
	for _, r := range responders {
		n.responders[alert.ID.Hex()] = append(n.responders[alert.ID.Hex()], r.UserID)
	}
	return n.err
}

func (n *recordingNotifier) NotifyEmergencyContact(ctx context.Context, alert *models.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.contacts = append(n.contacts, alert.SenderEmergencyContactPhone)
	return n.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.AlertEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types(alertID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.AlertID == alertID {
			out = append(out, e.Type)
		}
	}
	return out
}

type failingCounters struct{}

func (failingCounters) IncrementSosCount(ctx context.Context, userID string) error {
	return errors.New("profile store down")
}

func (failingCounters) IncrementRescueCount(ctx context.Context, userID string) error {
	return errors.New("profile store down")
}

type unreachableDirectory struct {
	*repositories.MemoryUserRepository
}

func (unreachableDirectory) CandidatesNear(ctx context.Context, center utils.Coordinate, radiusMeters float64, excludeID string) ([]models.Candidate, error) {
	return nil, errors.New("geo index unavailable")
}

type fixture struct {
	ds       *DispatchService
	alerts   *repositories.MemoryAlertRepository
	users    *repositories.MemoryUserRepository
	notifier *recordingNotifier
	events   *recordingPublisher
	clock    *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		alerts:   repositories.NewMemoryAlertRepository(),
		users:    repositories.NewMemoryUserRepository(),
		notifier: &recordingNotifier{},
		events:   &recordingPublisher{},
		clock:    &testClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
	}
	f.ds = NewDispatchService(f.alerts, f.users, f.users, f.notifier, f.events, DispatchConfig{}).WithClock(f.clock.Now)
	return f
}

func (f *fixture) addUser(t *testing.T, name string, lat, lng float64, available bool) string {
	t.Helper()
	u := &models.User{
		Username:              name,
		FullName:              name,
		Phone:                 "+9198000" + name,
		EmergencyContact:      name + "-contact",
		EmergencyContactPhone: "+9199000" + name,
		Latitude:              lat,
		Longitude:             lng,
		IsActive:              true,
		IsAvailableForRescue:  available,
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u.ID.Hex()
}

func sosAt(lat, lng float64) models.CreateAlertRequest {
	return models.CreateAlertRequest{Latitude: &lat, Longitude: &lng, Accuracy: 8}
}

func withPriority(req models.CreateAlertRequest, priority string) models.CreateAlertRequest {
	req.Priority = priority
	return req
}

func withImages(req models.CreateAlertRequest, n int) models.CreateAlertRequest {
	for i := 0; i < n; i++ {
		req.Images = append(req.Images, "https://cdn.example.com/sos.jpg")
	}
	return req
}

func requireKind(t *testing.T, err error, kind utils.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, kind), "expected %s, got %v", kind, err)
}

// scene is a sender with responders at ~1.1 km (near), ~2.2 km (mid) and
// ~11 km (far, outside the dispatch radius).
type scene struct {
	sender, near, mid, far string
}

func (f *fixture) scene(t *testing.T) scene {
	return scene{
		sender: f.addUser(t, "sender", originLat, originLng, true),
		near:   f.addUser(t, "near", originLat+0.01, originLng, true),
		mid:    f.addUser(t, "mid", originLat+0.02, originLng, true),
		far:    f.addUser(t, "far", originLat+0.1, originLng, true),
	}
}

func TestCreateAlertDispatchesToNearbyResponders(t *testing.T) {
	f := newFixture(t)
	s := f.scene(t)
	f.addUser(t, "offduty", originLat+0.005, originLng, false)

	alert, err := f.ds.CreateAlert(context.Background(), s.sender, sosAt(originLat, originLng))
	require.NoError(t, err)
	f.ds.Wait()

	assert.Equal(t, models.AlertStatusAlerted, alert.Status)
	assert.Equal(t, []string{s.near, s.mid}, alert.NotifiedUserIDs)
	assert.Equal(t, 2, alert.NotifiedCount)
	assert.True(t, utils.IsAlertCode(alert.AlertCode))
	assert.NotContains(t, alert.NotifiedUserIDs, s.sender)
	for _, r := range alert.Responders {
		assert.Equal(t, models.ResponderStatusNotified, r.Status)
		assert.LessOrEqual(t, r.DistanceKm, DefaultDispatchRadiusKm)
	}

	assert.Equal(t, models.EmergencyTypeOther, alert.EmergencyType)
	assert.Equal(t, models.PriorityHigh, alert.Priority)
	assert.Equal(t, models.CommunicationModeInternet, alert.CommunicationMode)
	assert.Equal(t, f.clock.Now().Add(time.Hour), alert.ExpiresAt)
	require.Equal(t, 1, alert.SenderLocationHistory.Len())
	first, ok := alert.SenderLocationHistory.Latest()
	require.True(t, ok)
	assert.Equal(t, originLat, first.Latitude)

	assert.Equal(t, []string{s.near, s.mid}, f.notifier.responders[alert.ID.Hex()])
	assert.Equal(t, []string{"+9199000sender"}, f.notifier.contacts)
	assert.ElementsMatch(t, []string{models.AlertEventCreated, models.AlertEventAlerted}, f.events.types(alert.ID.Hex()))

	sender, err := f.users.GetByID(context.Background(), s.sender)
	require.NoError(t, err)
	assert.Equal(t, 1, sender.SosCount)
}

func TestCreateAlertWithoutRespondersStaysPending(t *testing.T) {
	f := newFixture(t)
	sender := f.addUser(t, "alone", originLat, originLng, true)

	alert, err := f.ds.CreateAlert(context.Background(), sender, sosAt(originLat, originLng))
	require.NoError(t, err)
	f.ds.Wait()

	assert.Equal(t, models.AlertStatusPending, alert.Status)
	assert.Empty(t, alert.NotifiedUserIDs)
	assert.Nil(t, alert.AlertedAt)
	assert.Equal(t, []string{models.AlertEventCreated}, f.events.types(alert.ID.Hex()))
}

func TestCreateAlertMatchingFailureKeepsAlertPending(t *testing.T) {
	f := newFixture(t)
	sender := f.addUser(t, "sender", originLat, originLng, true)
	f.addUser(t, "near", originLat+0.01, originLng, true)
	f.ds = NewDispatchService(f.alerts, unreachableDirectory{f.users}, f.users, f.notifier, f.events, DispatchConfig{}).WithClock(f.clock.Now)

	alert, err := f.ds.CreateAlert(context.Background(), sender, sosAt(originLat, originLng))
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusPending, alert.Status)

	stored, err := f.ds.GetAlert(context.Background(), alert.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusPending, stored.Status)
}

func TestCreateAlertSideEffectFailuresAreIgnored(t *testing.T) {
	f := newFixture(t)
	s := f.scene(t)
	f.notifier.err = errors.New("push gateway down")
	f.ds = NewDispatchService(f.alerts, f.users, failingCounters{}, f.notifier, f.events, DispatchConfig{}).WithClock(f.clock.Now)

	alert, err := f.ds.CreateAlert(context.Background(), s.sender, sosAt(originLat, originLng))
	require.NoError(t, err)
	f.ds.Wait()
	assert.Equal(t, models.AlertStatusAlerted, alert.Status)
}

func TestCreateAlertValidation(t *testing.T) {
	f := newFixture(t)
	sender := f.addUser(t, "sender", originLat, originLng, true)
	lat, badLat := originLat, 91.0

	tests := []struct {
		name string
		req  models.CreateAlertRequest
	}{
		{"missing longitude", models.CreateAlertRequest{Latitude: &lat}},
		{"latitude out of range", models.CreateAlertRequest{Latitude: &badLat, Longitude: &lat}},
		{"unknown priority", withPriority(sosAt(originLat, originLng), "URGENT")},
		{"too many images", withImages(sosAt(originLat, originLng), 11)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ds.CreateAlert(context.Background(), sender, tt.req)
			requireKind(t, err, utils.KindValidationFailed)
		})
	}

	active, err := f.alerts.CountActiveBySender(context.Background(), sender)
	require.NoError(t, err)
	assert.Zero(t, active)

	_, err = f.ds.CreateAlert(context.Background(), "ghost", sosAt(originLat, originLng))
	requireKind(t, err, utils.KindNotFound)
}

func TestCreateAlertNormalisesClassification(t *testing.T) {
	f := newFixture(t)
	sender := f.addUser(t, "sender", originLat, originLng, true)
	req := sosAt(originLat, originLng)
	req.EmergencyType = "medical"
	req.Priority = "critical"
	req.CommunicationMode = "sms"

	alert, err := f.ds.CreateAlert(context.Background(), sender, req)
	require.NoError(t, err)
	assert.Equal(t, models.EmergencyTypeMedical, alert.EmergencyType)
	assert.Equal(t, models.PriorityCritical, alert.Priority)
	assert.Equal(t, models.CommunicationModeSMS, alert.CommunicationMode)
}

func TestSecondAlertRejectedWhileOneIsActive(t *testing.T) {
	tests := []struct {
		name    string
		advance func(t *testing.T, f *fixture, s scene, alertID string)
		status  models.AlertStatus
	}{
		{"alerted", func(*testing.T, *fixture, scene, string) {}, models.AlertStatusAlerted},
		{"accepted", func(t *testing.T, f *fixture, s scene, id string) {
			_, err := f.ds.Accept(context.Background(), id, s.near)
			require.NoError(t, err)
		}, models.AlertStatusAccepted},
		{"in progress", func(t *testing.T, f *fixture, s scene, id string) {
			_, err := f.ds.Accept(context.Background(), id, s.near)
			require.NoError(t, err)
			_, err = f.ds.UpdateResponderStatus(context.Background(), id, s.near, "ARRIVED")
			require.NoError(t, err)
		}, models.AlertStatusInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			s := f.scene(t)
			alert, err := f.ds.CreateAlert(context.Background(), s.sender, sosAt(originLat, originLng))
			require.NoError(t, err)
			tt.advance(t, f, s, alert.ID.Hex())

			current, err := f.ds.GetAlert(context.Background(), alert.ID.Hex())
			require.NoError(t, err)
			require.Equal(t, tt.status, current.Status)

			_, err = f.ds.CreateAlert(context.Background(), s.sender, sosAt(originLat, originLng))
			requireKind(t, err, utils.KindAlreadyActive)
		})
	}

	t.Run("pending", func(t *testing.T) {
		f := newFixture(t)
		sender := f.addUser(t, "alone", originLat, originLng, true)
		first, err := f.ds.CreateAlert(context.Background(), sender, sosAt(originLat, originLng))
		require.NoError(t, err)
		require.Equal(t, models.AlertStatusPending, first.Status)

		_, err = f.ds.CreateAlert(context.Background(), sender, sosAt(originLat, originLng))
		requireKind(t, err, utils.KindAlreadyActive)

		_, err = f.ds.Cancel(context.Background(), first.ID.Hex(), sender)
		require.NoError(t, err)
		_, err = f.ds.CreateAlert(context.Background(), sender, sosAt(originLat, originLng))
		assert.NoError(t, err)
	})
}

func TestConcurrentCreateAllowsOneActiveAlert(t *testing.T) {
	f := newFixture(t)
	sender := f.addUser(t, "sender", originLat, originLng, true)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ds.CreateAlert(context.Background(), sender, sosAt(originLat, originLng))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		if err == nil {
			created++
			continue
		}
		assert.True(t, utils.IsKind(err, utils.KindAlreadyActive), "unexpected error %v", err)
	}
	assert.Equal(t, 1, created)
}

func TestConcurrentAcceptHasSingleWinner(t *testing.T) {
	f := newFixture(t)
	sender := f.addUser(t, "sender", originLat, originLng, true)
	responders := make([]string, 12)
	for i := range responders {
		responders[i] = f.addUser(t, "r"+string(rune('a'+i)), originLat+0.001*float64(i+1), originLng, true)
	}

	alert, err := f.ds.CreateAlert(context.Background(), sender, sosAt(originLat, originLng))
	require.NoError(t, err)
	require.Equal(t, len(responders), alert.NotifiedCount)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for _, id := range responders {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.ds.Accept(context.Background(), alert.ID.Hex(), id)
			if err != nil {
				assert.True(t, utils.IsKind(err, utils.KindInvalidState), "unexpected error %v", err)
				return
			}
			mu.Lock()
			winners = append(winners, id)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	stored, err := f.ds.GetAlert(context.Background(), alert.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAccepted, stored.Status)
	assert.Equal(t, winners[0], stored.PrimaryResponderID)

	accepted := 0
	for _, r := range stored.Responders {
		if r.Status == models.ResponderStatusAccepted {
			accepted++
			assert.Equal(t, winners[0], r.UserID)
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestAcceptGuards(t *testing.T) {
	f := newFixture(t)
	s := f.scene(t)
	alert, err := f.ds.CreateAlert(context.Background(), s.sender, sosAt(originLat, originLng))
	require.NoError(t, err)
	id := alert.ID.Hex()

	_, err = f.ds.Accept(context.Background(), "missing", s.near)
	requireKind(t, err, utils.KindNotFound)

	_, err = f.ds.Accept(context.Background(), id, "ghost")
	requireKind(t, err, utils.KindNotFound)

	_, err = f.ds.Accept(context.Background(), id, s.sender)
	requireKind(t, err, utils.KindForbidden)

	// Responders outside the notified set may still accept.
	accepted, err := f.ds.Accept(context.Background(), id, s.far)
	require.NoError(t, err)
	assert.Equal(t, s.far, accepted.PrimaryResponderID)
	assert.Equal(t, "far", accepted.PrimaryResponderName)

	_, err = f.ds.Accept(context.Background(), id, s.near)
	requireKind(t, err, utils.KindInvalidState)
}

func TestAcceptAfterCancelIsRejected(t *testing.T) {
	f := newFixture(t)
	s := f.scene(t)
	alert, err := f.ds.CreateAlert(context.Background(), s.sender, sosAt(originLat, originLng))
	require.NoError(t, err)

	_, err = f.ds.Cancel(context.Background(), alert.ID.Hex(), s.sender)
	require.NoError(t, err)

	_, err = f.ds.Accept(context.Background(), alert.ID.Hex(), s.near)
	requireKind(t, err, utils.KindInvalidState)
}

func TestRescueLifecycleRecordsResponseTime(t *testing.T) {
	f := newFixture(t)
	s := f.scene(t)
	ctx := context.Background()

	alert, err := f.ds.CreateAlert(ctx, s.sender, sosAt(originLat, originLng))
	require.NoError(t, err)
	id := alert.ID.Hex()

	accepted, err := f.ds.Accept(ctx, id, s.near)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)

	_, err = f.ds.UpdateResponderStatus(ctx, id, s.mid, "ARRIVED")
	requireKind(t, err, utils.KindForbidden)

	f.clock.Advance(7 * time.Minute)
	arrived, err := f.ds.UpdateResponderStatus(ctx, id, s.near, "arrived")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusInProgress, arrived.Status)
	require.NotNil(t, arrived.ArrivedAt)

	_, err = f.ds.UpdateResponderStatus(ctx, id, s.near, "ARRIVED")
	requireKind(t, err, utils.KindInvalidState)

	_, err = f.ds.Resolve(ctx, id, s.mid, models.ResolveAlertRequest{})
	requireKind(t, err, utils.KindForbidden)

	f.clock.Advance(5*time.Minute + 31*time.Second)
	resolved, err := f.ds.Resolve(ctx, id, s.near, models.ResolveAlertRequest{Notes: "Escorted home", ResolutionType: "rescued"})
	require.NoError(t, err)
	f.ds.Wait()

	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	assert.Equal(t, 13, resolved.ResponseTimeMinutes)
	assert.Equal(t, "Escorted home", resolved.ResolutionNotes)
	assert.Equal(t, models.ResolutionRescued, resolved.ResolutionType)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = f.ds.Resolve(ctx, id, s.near, models.ResolveAlertRequest{})
	requireKind(t, err, utils.KindInvalidState)
	_, err = f.ds.Cancel(ctx, id, s.sender)
	requireKind(t, err, utils.KindInvalidState)

	responder, err := f.users.GetByID(ctx, s.near)
	require.NoError(t, err)
	assert.Equal(t, 1, responder.RescueCount)

	assert.ElementsMatch(t, []string{
		models.AlertEventCreated,
		models.AlertEventAlerted,
		models.AlertEventAccepted,
		models.AlertEventArrived,
		models.AlertEventResolved,
	}, f.events.types(id))
}

func TestResolveWithoutAcceptance(t *testing.T) {
	f := newFixture(t)
	s := f.scene(t)
	alert, err := f.ds.CreateAlert(context.Background(), s.sender, sosAt(originLat, originLng))
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	resolved, err := f.ds.Resolve(context.Background(), alert.ID.Hex(), s.mid, models.ResolveAlertRequest{ResolutionType: "FALSE_ALARM"})
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	assert.Zero(t, resolved.ResponseTimeMinutes)
	assert.Equal(t, models.ResolutionFalseAlarm, resolved.ResolutionType)

	_, err = f.ds.CreateAlert(context.Background(), s.sender, sosAt(originLat, originLng))
	assert.NoError(t, err)
}

func TestResolveCreditsOnlyTheAcceptedResponder(t *testing.T) {
	f := newFixture(t)
	s := f.scene(t)
	ctx := context.Background()

	alert, err := f.ds.CreateAlert(ctx, s.sender, sosAt(originLat, originLng))
	require.NoError(t, err)
	id := alert.ID.Hex()

	_, err = f.ds.Resolve(ctx, id, s.sender, models.ResolveAlertRequest{})
	requireKind(t, err, utils.KindForbidden)
	_, err = f.ds.Resolve(ctx, id, "ghost-user-id", models.ResolveAlertRequest{})
	requireKind(t, err, utils.KindNotFound)

	resolved, err := f.ds.Resolve(ctx, id, s.mid, models.ResolveAlertRequest{ResolutionType: "FALSE_ALARM"})
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	f.ds.Wait()

	for _, userID := range []string{s.sender, s.mid} {
		user, err := f.users.GetByID(ctx, userID)
		require.NoError(t, err)
		assert.Zero(t, user.RescueCount, "no rescue credit without an accepted responder")
	}

	// accepted alert: credit goes to the primary responder
	second, err := f.ds.CreateAlert(ctx, s.sender, sosAt(originLat, originLng))
	require.NoError(t, err)
	_, err = f.ds.Accept(ctx, second.ID.Hex(), s.near)
	require.NoError(t, err)
	_, err = f.ds.Resolve(ctx, second.ID.Hex(), s.sender, models.ResolveAlertRequest{})
	requireKind(t, err, utils.KindForbidden)
	_, err = f.ds.Resolve(ctx, second.ID.Hex(), s.near, models.ResolveAlertRequest{})
	require.NoError(t, err)
	f.ds.Wait()

	near, err := f.users.GetByID(ctx, s.near)
	require.NoError(t, err)
	assert.Equal(t, 1, near.RescueCount)
	sender, err := f.users.GetByID(ctx, s.sender)
	require.NoError(t, err)
	assert.Zero(t, sender.RescueCount)
}

func TestUpdateResponderStatus(t *testing.T) {
	f := newFixture(t)
	s := f.scene(t)
	alert, err := f.ds.CreateAlert(context.Background(), s.sender, sosAt(originLat, originLng))
	require.NoError(t, err)
	id := alert.ID.Hex()

	for _, status := range []string{"ACCEPTED", "NOTIFIED", "LOST"} {
		_, err = f.ds.UpdateResponderStatus(context.Background(), id, s.near, status)
		requireKind(t, err, utils.KindValidationFailed)
	}

	_, err = f.ds.UpdateResponderStatus(context.Background(), id, s.far, "DECLINED")
	requireKind(t, err, utils.KindNotFound)

	_, err = f.ds.UpdateResponderStatus(context.Background(), id, s.near, "ARRIVED")
	requireKind(t, err, utils.KindInvalidState)

	declined, err := f.ds.UpdateResponderStatus(context.Background(), id, s.mid, "DECLINED")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAlerted, declined.Status)
	idx, ok := declined.Responders.Find(s.mid)
	require.True(t, ok)
	assert.Equal(t, models.ResponderStatusDeclined, declined.Responders[idx].Status)
	assert.NotNil(t, declined.Responders[idx].RespondedAt)

	_, err = f.ds.Accept(context.Background(), id, s.near)
	require.NoError(t, err)
	_, err = f.ds.UpdateResponderStatus(context.Background(), id, s.near, "DECLINED")
	requireKind(t, err, utils.KindInvalidState)
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t)
	s := f.scene(t)
	ctx := context.Background()
	alert, err := f.ds.CreateAlert(ctx, s.sender, sosAt(originLat, originLng))
	require.NoError(t, err)
	id := alert.ID.Hex()

	_, err = f.ds.Cancel(ctx, id, s.near)
	requireKind(t, err, utils.KindForbidden)

	_, err = f.ds.Accept(ctx, id, s.near)
	require.NoError(t, err)

	cancelled, err := f.ds.Cancel(ctx, id, s.sender)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Nil(t, cancelled.ExpiredAt)

	_, err = f.ds.Cancel(ctx, id, s.sender)
	requireKind(t, err, utils.KindInvalidState)

	lat, lng := originLat, originLng
	_, err = f.ds.UpdateSenderLocation(ctx, id, s.sender, models.UpdateLocationRequest{Latitude: &lat, Longitude: &lng})
	requireKind(t, err, utils.KindInvalidState)
}

func TestCancelInProgressIsRejected(t *testing.T) {
	f := newFixture(t)
	s := f.scene(t)
	ctx := context.Background()
	alert, err := f.ds.CreateAlert(ctx, s.sender, sosAt(originLat, originLng))
	require.NoError(t, err)
	id := alert.ID.Hex()

	_, err = f.ds.Accept(ctx, id, s.near)
	require.NoError(t, err)
	_, err = f.ds.UpdateResponderStatus(ctx, id, s.near, "ARRIVED")
	require.NoError(t, err)

	_, err = f.ds.Cancel(ctx, id, s.sender)
	requireKind(t, err, utils.KindInvalidState)
}

func TestLocationUpdates(t *testing.T) {
	f := newFixture(t)
	s := f.scene(t)
	ctx := context.Background()
	alert, err := f.ds.CreateAlert(ctx, s.sender, sosAt(originLat, originLng))
	require.NoError(t, err)
	id := alert.ID.Hex()

	lat, lng := originLat+0.002, originLng+0.001
	moved := models.UpdateLocationRequest{Latitude: &lat, Longitude: &lng, Accuracy: 4, Source: "network"}

	_, err = f.ds.UpdateSenderLocation(ctx, id, s.near, moved)
	requireKind(t, err, utils.KindForbidden)

	f.clock.Advance(30 * time.Second)
	updated, err := f.ds.UpdateSenderLocation(ctx, id, s.sender, moved)
	require.NoError(t, err)
	require.Equal(t, 2, updated.SenderLocationHistory.Len())
	assert.Equal(t, lat, updated.Latitude)
	assert.Equal(t, lng, updated.Longitude)
	latest, ok := updated.SenderLocationHistory.Latest()
	require.True(t, ok)
	assert.Equal(t, "NETWORK", latest.Source)
	assert.Equal(t, f.clock.Now(), latest.Timestamp)

	_, err = f.ds.UpdateResponderLocation(ctx, id, s.near, moved)
	requireKind(t, err, utils.KindInvalidState)

	_, err = f.ds.Accept(ctx, id, s.near)
	require.NoError(t, err)

	_, err = f.ds.UpdateResponderLocation(ctx, id, s.mid, moved)
	requireKind(t, err, utils.KindForbidden)

	tracked, err := f.ds.UpdateResponderLocation(ctx, id, s.near, moved)
	require.NoError(t, err)
	assert.Equal(t, 1, tracked.ResponderLocationHistory.Len())
	assert.Equal(t, 2, tracked.SenderLocationHistory.Len())

	bad := 200.0
	_, err = f.ds.UpdateSenderLocation(ctx, id, s.sender, models.UpdateLocationRequest{Latitude: &lat, Longitude: &bad})
	requireKind(t, err, utils.KindValidationFailed)
}

func TestNearbyActiveVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	responder := f.addUser(t, "responder", originLat+0.01, originLng, true)

	visible := f.addUser(t, "visible", originLat, originLng, true)
	closed := f.addUser(t, "closed", originLat+0.005, originLng, true)
	remote := f.addUser(t, "remote", originLat+1, originLng, true)

	shown, err := f.ds.CreateAlert(ctx, visible, sosAt(originLat, originLng))
	require.NoError(t, err)
	hidden, err := f.ds.CreateAlert(ctx, closed, sosAt(originLat+0.005, originLng))
	require.NoError(t, err)
	_, err = f.ds.CreateAlert(ctx, remote, sosAt(originLat+1, originLng))
	require.NoError(t, err)

	_, err = f.ds.Cancel(ctx, hidden.ID.Hex(), closed)
	require.NoError(t, err)

	nearby, err := f.ds.NearbyActive(ctx, utils.Coordinate{Latitude: originLat + 0.01, Longitude: originLng}, 10)
	require.NoError(t, err)
	require.Len(t, nearby, 1)
	assert.Equal(t, shown.ID, nearby[0].ID)

	_, err = f.ds.Accept(ctx, shown.ID.Hex(), responder)
	require.NoError(t, err)
	nearby, err = f.ds.NearbyActive(ctx, utils.Coordinate{Latitude: originLat, Longitude: originLng}, 10)
	require.NoError(t, err)
	assert.Len(t, nearby, 1)

	_, err = f.ds.NearbyActive(ctx, utils.Coordinate{Latitude: 95, Longitude: 0}, 10)
	requireKind(t, err, utils.KindValidationFailed)
	_, err = f.ds.NearbyActive(ctx, utils.Coordinate{Latitude: originLat, Longitude: originLng}, 0)
	requireKind(t, err, utils.KindValidationFailed)
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	s := f.scene(t)
	ctx := context.Background()
	alert, err := f.ds.CreateAlert(ctx, s.sender, sosAt(originLat, originLng))
	require.NoError(t, err)

	pending, err := f.ds.ListPendingFor(ctx, s.mid)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, alert.ID, pending[0].ID)

	pending, err = f.ds.ListPendingFor(ctx, s.far)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = f.ds.Accept(ctx, alert.ID.Hex(), s.near)
	require.NoError(t, err)

	pending, err = f.ds.ListPendingFor(ctx, s.mid)
	require.NoError(t, err)
	assert.Empty(t, pending)

	rescues, err := f.ds.ListRescues(ctx, s.near)
	require.NoError(t, err)
	require.Len(t, rescues, 1)

	mine, err := f.ds.ListMine(ctx, s.sender)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	active, err := f.ds.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	byCode, err := f.ds.GetAlertByCode(ctx, " "+alert.AlertCode+" ")
	require.NoError(t, err)
	assert.Equal(t, alert.ID, byCode.ID)

	byCode, err = f.ds.GetAlertByCode(ctx, strings.ToLower(alert.AlertCode))
	require.NoError(t, err)
	assert.Equal(t, alert.ID, byCode.ID)

	_, err = f.ds.GetAlertByCode(ctx, "SOS-1999-1")
	requireKind(t, err, utils.KindNotFound)

	for _, malformed := range []string{"", "SOS-", "ALERT-2025-1", "SOS-2025-12a", "sos-25-1"} {
		_, err = f.ds.GetAlertByCode(ctx, malformed)
		requireKind(t, err, utils.KindValidationFailed)
	}
}

func TestExpireStaleCancelsUnansweredAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lonely := f.addUser(t, "lonely", originLat, originLng, true)
	busy := f.addUser(t, "busy", originLat+2, originLng, true)
	helper := f.addUser(t, "helper", originLat+2.01, originLng, true)

	unanswered, err := f.ds.CreateAlert(ctx, lonely, sosAt(originLat, originLng))
	require.NoError(t, err)
	answered, err := f.ds.CreateAlert(ctx, busy, sosAt(originLat+2, originLng))
	require.NoError(t, err)
	_, err = f.ds.Accept(ctx, answered.ID.Hex(), helper)
	require.NoError(t, err)

	expired, err := f.ds.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)

	f.clock.Advance(61 * time.Minute)
	expired, err = f.ds.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	f.ds.Wait()

	stored, err := f.ds.GetAlert(ctx, unanswered.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusCancelled, stored.Status)
	assert.NotNil(t, stored.ExpiredAt)
	assert.NotNil(t, stored.CancelledAt)
	assert.Contains(t, f.events.types(unanswered.ID.Hex()), models.AlertEventExpired)

	still, err := f.ds.GetAlert(ctx, answered.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAccepted, still.Status)

	_, err = f.ds.CreateAlert(ctx, lonely, sosAt(originLat, originLng))
	assert.NoError(t, err)
}
