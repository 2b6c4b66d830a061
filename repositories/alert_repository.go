package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rescuedispatch/models"
	"rescuedispatch/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const AlertsCollection = "sos_alerts"

type AlertRepository struct {
	collection *mongo.Collection
}

func NewAlertRepository(database *mongo.Database) *AlertRepository {
	return &AlertRepository{
		collection: database.Collection(AlertsCollection),
	}
}

// =================== CREATE / READ ===================

func (ar *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	if alert.ID.IsZero() {
		alert.ID = primitive.NewObjectID()
	}
	normalizeSlices(alert)

	_, err := ar.collection.InsertOne(ctx, alert)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "activeSenderId") {
				return ErrActiveAlertExists
			}
			return ErrDuplicateCode
		}
		logrus.Errorf("Failed to create alert: %v", err)
		return fmt.Errorf("insert alert: %w", err)
	}

	return nil
}

func (ar *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return ar.findOne(ctx, bson.M{"_id": objectID})
}

func (ar *AlertRepository) GetByCode(ctx context.Context, code string) (*models.Alert, error) {
	return ar.findOne(ctx, bson.M{"alertCode": code})
}

func (ar *AlertRepository) findOne(ctx context.Context, filter bson.M) (*models.Alert, error) {
	var alert models.Alert
	err := ar.collection.FindOne(ctx, filter).Decode(&alert)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		logrus.Errorf("Failed to get alert: %v", err)
		return nil, fmt.Errorf("find alert: %w", err)
	}
	return &alert, nil
}

func (ar *AlertRepository) CountActiveBySender(ctx context.Context, senderID string) (int64, error) {
	count, err := ar.collection.CountDocuments(ctx, bson.M{
		"senderId": senderID,
		"status":   statusIn(models.ActiveAlertStatuses),
	})
	if err != nil {
		logrus.Errorf("Failed to count active alerts: %v", err)
		return 0, fmt.Errorf("count active alerts: %w", err)
	}
	return count, nil
}

func (ar *AlertRepository) ListBySender(ctx context.Context, senderID string) ([]*models.Alert, error) {
	return ar.find(ctx, bson.M{"senderId": senderID}, newestFirst())
}

func (ar *AlertRepository) ListPendingForResponder(ctx context.Context, userID string) ([]*models.Alert, error) {
	return ar.find(ctx, pendingForResponderFilter(userID), newestFirst())
}

func (ar *AlertRepository) ListByPrimaryResponder(ctx context.Context, responderID string) ([]*models.Alert, error) {
	return ar.find(ctx, bson.M{"primaryResponderId": responderID}, newestFirst())
}

func (ar *AlertRepository) ListActive(ctx context.Context) ([]*models.Alert, error) {
	return ar.find(ctx, bson.M{"status": statusIn(models.ActiveAlertStatuses)}, newestFirst())
}

// ListNearbyActive relies on $nearSphere ordering, closest first.
func (ar *AlertRepository) ListNearbyActive(ctx context.Context, center utils.Coordinate, radiusKm float64) ([]*models.Alert, error) {
	return ar.find(ctx, nearbyActiveFilter(center, radiusKm), options.Find())
}

func (ar *AlertRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Alert, error) {
	opts := options.Find().SetSort(bson.D{{Key: "expiresAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return ar.find(ctx, expiredFilter(now), opts)
}

func (ar *AlertRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Alert, error) {
	cursor, err := ar.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.Errorf("Failed to list alerts: %v", err)
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer cursor.Close(ctx)

	alerts := []*models.Alert{}
	if err := cursor.All(ctx, &alerts); err != nil {
		logrus.Errorf("Failed to decode alerts: %v", err)
		return nil, fmt.Errorf("decode alerts: %w", err)
	}
	return alerts, nil
}

// =================== CONDITIONAL WRITES ===================

func (ar *AlertRepository) MarkAlerted(ctx context.Context, id string, candidates []models.Candidate, at time.Time) (*models.Alert, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return ar.conditionalUpdate(ctx, "mark alerted", guardFilter(objectID, models.TransitionAlert), markAlertedUpdate(candidates, at))
}

// Accept is the first-accept-wins compare-and-set: the write only matches
// while the persisted status still allows acceptance.
func (ar *AlertRepository) Accept(ctx context.Context, id, responderID, responderName string, at time.Time) (*models.Alert, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	filter := acceptFilter(objectID)
	update := bson.M{
		"$set": bson.M{
			"status":                      models.AlertStatusAccepted,
			"primaryResponderId":          responderID,
			"primaryResponderName":        responderName,
			"acceptedAt":                  at,
			"updatedAt":                   at,
			"responders.$[r].status":      models.ResponderStatusAccepted,
			"responders.$[r].respondedAt": at,
		},
	}
	return ar.conditionalUpdate(ctx, "accept", filter, update, rosterEntry(responderID))
}

func (ar *AlertRepository) MarkArrived(ctx context.Context, id, responderID string, at time.Time) (*models.Alert, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	filter := guardFilter(objectID, models.TransitionArrive)
	filter["primaryResponderId"] = responderID
	update := bson.M{
		"$set": bson.M{
			"status":                      models.AlertStatusInProgress,
			"arrivedAt":                   at,
			"updatedAt":                   at,
			"responders.$[r].status":      models.ResponderStatusArrived,
			"responders.$[r].respondedAt": at,
		},
	}
	return ar.conditionalUpdate(ctx, "mark arrived", filter, update, rosterEntry(responderID))
}

func (ar *AlertRepository) UpdateResponderStatus(ctx context.Context, id, responderID string, status models.ResponderStatus, at time.Time) (*models.Alert, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	filter := guardFilter(objectID, models.TransitionResponderState)
	filter["responders.userId"] = responderID
	update := bson.M{
		"$set": bson.M{
			"updatedAt":                   at,
			"responders.$[r].status":      status,
			"responders.$[r].respondedAt": at,
		},
	}
	return ar.conditionalUpdate(ctx, "update responder status", filter, update, rosterEntry(responderID))
}

func (ar *AlertRepository) Resolve(ctx context.Context, id, responderID, notes string, resolution models.ResolutionType, at time.Time) (*models.Alert, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return ar.conditionalUpdate(ctx, "resolve", resolveFilter(objectID, responderID), resolvePipeline(notes, resolution, at))
}

func (ar *AlertRepository) Cancel(ctx context.Context, id, senderID string, at time.Time) (*models.Alert, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	filter := guardFilter(objectID, models.TransitionCancel)
	filter["senderId"] = senderID
	update := bson.M{
		"$set": bson.M{
			"status":      models.AlertStatusCancelled,
			"cancelledAt": at,
			"updatedAt":   at,
		},
		"$unset": bson.M{"activeSenderId": ""},
	}
	return ar.conditionalUpdate(ctx, "cancel", filter, update)
}

// AppendSenderLocation pushes exactly one sample and moves the current
// position in the same write.
func (ar *AlertRepository) AppendSenderLocation(ctx context.Context, id, senderID string, sample models.LocationSample) (*models.Alert, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	filter := guardFilter(objectID, models.TransitionLocation)
	filter["senderId"] = senderID
	update := bson.M{
		"$push": bson.M{"senderLocationHistory": sample},
		"$set": bson.M{
			"latitude":  sample.Latitude,
			"longitude": sample.Longitude,
			"accuracy":  sample.Accuracy,
			"location":  models.NewGeoPoint(sample.Latitude, sample.Longitude),
			"updatedAt": sample.Timestamp,
		},
	}
	return ar.conditionalUpdate(ctx, "append sender location", filter, update)
}

func (ar *AlertRepository) AppendResponderLocation(ctx context.Context, id, responderID string, sample models.LocationSample) (*models.Alert, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	filter := guardFilter(objectID, models.TransitionLocation)
	filter["primaryResponderId"] = responderID
	update := bson.M{
		"$push": bson.M{"responderLocationHistory": sample},
		"$set":  bson.M{"updatedAt": sample.Timestamp},
	}
	return ar.conditionalUpdate(ctx, "append responder location", filter, update)
}

func (ar *AlertRepository) Expire(ctx context.Context, id string, at time.Time) (*models.Alert, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	filter := guardFilter(objectID, models.TransitionExpire)
	filter["expiresAt"] = bson.M{"$lt": at}
	update := bson.M{
		"$set": bson.M{
			"status":      models.AlertStatusCancelled,
			"cancelledAt": at,
			"expiredAt":   at,
			"updatedAt":   at,
		},
		"$unset": bson.M{"activeSenderId": ""},
	}
	return ar.conditionalUpdate(ctx, "expire", filter, update)
}

func (ar *AlertRepository) conditionalUpdate(ctx context.Context, op string, filter bson.M, update interface{}, arrayFilters ...interface{}) (*models.Alert, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if len(arrayFilters) > 0 {
		opts.SetArrayFilters(options.ArrayFilters{Filters: arrayFilters})
	}

	var alert models.Alert
	err := ar.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&alert)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConditionFailed
		}
		logrus.Errorf("Failed to %s alert: %v", op, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &alert, nil
}

// =================== FILTER BUILDERS ===================

func statusIn(statuses []models.AlertStatus) bson.M {
	return bson.M{"$in": models.StatusStrings(statuses)}
}

func newestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
}

func guardFilter(id primitive.ObjectID, t models.Transition) bson.M {
	return bson.M{
		"_id":    id,
		"status": statusIn(models.AllowedFrom(t)),
	}
}

func acceptFilter(id primitive.ObjectID) bson.M {
	filter := guardFilter(id, models.TransitionAccept)
	filter["primaryResponderId"] = bson.M{"$exists": false}
	return filter
}

// resolveFilter lets the primary responder resolve, or anyone while no
// responder has accepted yet.
func resolveFilter(id primitive.ObjectID, responderID string) bson.M {
	filter := guardFilter(id, models.TransitionResolve)
	filter["$or"] = bson.A{
		bson.M{"primaryResponderId": responderID},
		bson.M{"primaryResponderId": bson.M{"$exists": false}},
	}
	return filter
}

func pendingForResponderFilter(userID string) bson.M {
	return bson.M{
		"notifiedUserIds": userID,
		"status":          statusIn(models.AwaitingResponderStatuses),
	}
}

func nearbyActiveFilter(center utils.Coordinate, radiusKm float64) bson.M {
	return bson.M{
		"status": statusIn(models.NearbyVisibleStatuses),
		"location": bson.M{
			"$nearSphere": bson.M{
				"$geometry":    models.NewGeoPoint(center.Latitude, center.Longitude),
				"$maxDistance": radiusKm * 1000,
			},
		},
	}
}

func expiredFilter(now time.Time) bson.M {
	return bson.M{
		"status":    statusIn(models.AllowedFrom(models.TransitionExpire)),
		"expiresAt": bson.M{"$lt": now},
	}
}

func rosterEntry(responderID string) interface{} {
	return bson.M{"r.userId": responderID}
}

func markAlertedUpdate(candidates []models.Candidate, at time.Time) bson.M {
	var roster models.ResponderRoster
	for _, c := range candidates {
		roster.Notify(c, at)
	}
	ids := roster.UserIDs()
	return bson.M{
		"$set": bson.M{
			"status":        models.AlertStatusAlerted,
			"alertedAt":     at,
			"updatedAt":     at,
			"notifiedCount": len(ids),
		},
		"$push":     bson.M{"responders": bson.M{"$each": roster}},
		"$addToSet": bson.M{"notifiedUserIds": bson.M{"$each": ids}},
	}
}

// resolvePipeline computes responseTimeMinutes from the persisted acceptedAt
// in the same write. User text goes through $literal so a leading "$" is not
// read as a field path.
func resolvePipeline(notes string, resolution models.ResolutionType, at time.Time) mongo.Pipeline {
	elapsedMinutes := bson.M{"$divide": bson.A{bson.M{"$subtract": bson.A{at, "$acceptedAt"}}, 60000}}
	responseTime := bson.M{
		"$cond": bson.A{
			bson.M{"$eq": bson.A{bson.M{"$type": "$acceptedAt"}, "date"}},
			bson.M{"$toInt": bson.M{"$floor": bson.M{"$add": bson.A{elapsedMinutes, 0.5}}}},
			0,
		},
	}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"status":              models.AlertStatusResolved,
			"resolutionNotes":     bson.M{"$literal": notes},
			"resolutionType":      bson.M{"$literal": resolution},
			"resolvedAt":          at,
			"updatedAt":           at,
			"responseTimeMinutes": responseTime,
		}}},
		{{Key: "$unset", Value: "activeSenderId"}},
	}
}

// normalizeSlices keeps array fields as arrays in BSON so $push and array
// filters apply on the first write.
func normalizeSlices(alert *models.Alert) {
	if alert.NotifiedUserIDs == nil {
		alert.NotifiedUserIDs = []string{}
	}
	if alert.Responders == nil {
		alert.Responders = models.ResponderRoster{}
	}
	if alert.SenderLocationHistory == nil {
		alert.SenderLocationHistory = models.LocationTrail{}
	}
	if alert.ResponderLocationHistory == nil {
		alert.ResponderLocationHistory = models.LocationTrail{}
	}
}
