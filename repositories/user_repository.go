package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rescuedispatch/models"
	"rescuedispatch/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	UsersCollection = "users"
	// maxCandidates caps one directory query; rosters are sized by the dispatch radius.
	maxCandidates = 200
)

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		collection: db.Collection(UsersCollection),
	}
}

func (ur *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Location = models.NewGeoPoint(user.Latitude, user.Longitude)

	_, err := ur.collection.InsertOne(ctx, user)
	return err
}

func (ur *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var user models.User
	err = ur.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	return &user, nil
}

func (ur *UserRepository) ProfileOf(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := ur.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

func (ur *UserRepository) CandidatesNear(ctx context.Context, center utils.Coordinate, radiusMeters float64, excludeID string) ([]models.Candidate, error) {
	opts := options.Find().SetLimit(maxCandidates)
	cursor, err := ur.collection.Find(ctx, candidatesNearFilter(center, radiusMeters, excludeID), opts)
	if err != nil {
		logrus.Errorf("Failed to query nearby responders: %v", err)
		return nil, fmt.Errorf("query nearby responders: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode nearby responders: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(users))
	for i := range users {
		candidates = append(candidates, users[i].Candidate())
	}
	return candidates, nil
}

func (ur *UserRepository) IncrementSosCount(ctx context.Context, userID string) error {
	return ur.increment(ctx, userID, "sosCount")
}

func (ur *UserRepository) IncrementRescueCount(ctx context.Context, userID string) error {
	return ur.increment(ctx, userID, "rescueCount")
}

func (ur *UserRepository) increment(ctx context.Context, userID, field string) error {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return ErrNotFound
	}

	result, err := ur.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{
			"$inc": bson.M{field: 1},
			"$set": bson.M{"updatedAt": time.Now()},
		},
	)
	if err != nil {
		return fmt.Errorf("increment %s: %w", field, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func candidatesNearFilter(center utils.Coordinate, radiusMeters float64, excludeID string) bson.M {
	filter := bson.M{
		"isAvailableForRescue": true,
		"isActive":             true,
		"location": bson.M{
			"$nearSphere": bson.M{
				"$geometry":    models.NewGeoPoint(center.Latitude, center.Longitude),
				"$maxDistance": radiusMeters,
			},
		},
	}
	if excludeID != "" {
		if objectID, err := primitive.ObjectIDFromHex(excludeID); err == nil {
			filter["_id"] = bson.M{"$ne": objectID}
		}
	}
	return filter
}
