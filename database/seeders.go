package database

import (
	"context"
	"fmt"
	"time"

	"rescuedispatch/models"
	"rescuedispatch/repositories"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserCreator is satisfied by both user stores.
type UserCreator interface {
	Create(ctx context.Context, user *models.User) error
}

// DemoUsers returns one sender and a handful of responders spread around a
// city centre, close enough for the 5 km dispatch radius to matter.
func DemoUsers() []*models.User {
	const lat, lng = 12.9716, 77.5946

	user := func(username, name, phone string, dLat, dLng float64, available bool) *models.User {
		return &models.User{
			Username:             username,
			FullName:             name,
			Phone:                phone,
			Latitude:             lat + dLat,
			Longitude:            lng + dLng,
			IsActive:             true,
			IsAvailableForRescue: available,
			RescueRadiusKm:       5,
		}
	}

	sender := user("asha", "Asha Rao", "+919800000001", 0, 0, false)
	sender.EmergencyContact = "Vikram Rao"
	sender.EmergencyContactPhone = "+919800000099"

	return []*models.User{
		sender,
		user("ravi", "Ravi Kumar", "+919800000002", 0.01, 0, true),
		user("meera", "Meera Iyer", "+919800000003", 0, 0.02, true),
		user("joseph", "Joseph D'Souza", "+919800000004", -0.03, 0.01, true),
		user("farah", "Farah Khan", "+919800000005", 0.2, 0.2, true),
		user("omar", "Omar Sheikh", "+919800000006", 0.005, 0.005, false),
	}
}

// SeedUsers inserts users into any user store.
func SeedUsers(ctx context.Context, store UserCreator, users []*models.User) error {
	for _, u := range users {
		if err := store.Create(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
	}
	return nil
}

// RunSeeders loads the demo users into MongoDB once.
func RunSeeders(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	seedersCol := db.Collection("seeders")
	count, err := seedersCol.CountDocuments(ctx, bson.M{"name": "demo_users"})
	if err == nil && count > 0 {
		logrus.Info("Seeders already run, skipping...")
		return nil
	}

	users := DemoUsers()
	if err := SeedUsers(ctx, repositories.NewUserRepository(db), users); err != nil {
		return err
	}

	_, err = seedersCol.InsertOne(ctx, bson.M{
		"name":       "demo_users",
		"executedAt": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record seeder: %w", err)
	}

	logrus.WithField("users", len(users)).Info("Seeded demo users")
	return nil
}
