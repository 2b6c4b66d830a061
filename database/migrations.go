package database

import (
	"context"
	"fmt"
	"time"

	"rescuedispatch/repositories"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          func(context.Context, *mongo.Database) error
}

// migrationRecord tracks applied migrations
type migrationRecord struct {
	Version   int       `bson:"version"`
	AppliedAt time.Time `bson:"appliedAt"`
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Create users collection with geo indexes",
		Up:          createUsersCollection,
	},
	{
		Version:     2,
		Description: "Create sos_alerts collection with lifecycle indexes",
		Up:          createAlertsCollection,
	},
	{
		Version:     3,
		Description: "Enforce one active alert per sender",
		Up:          createActiveSenderIndex,
	},
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	migrationsCol := db.Collection("migrations")

	currentVersion := getCurrentMigrationVersion(ctx, migrationsCol)
	logrus.Infof("Current migration version: %d", currentVersion)

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		logrus.Infof("Running migration %d: %s", migration.Version, migration.Description)

		if err := migration.Up(ctx, db); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		_, err := migrationsCol.InsertOne(ctx, migrationRecord{
			Version:   migration.Version,
			AppliedAt: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

func getCurrentMigrationVersion(ctx context.Context, col *mongo.Collection) int {
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	var record migrationRecord
	if err := col.FindOne(ctx, bson.D{}, opts).Decode(&record); err != nil {
		return 0
	}
	return record.Version
}

func createUsersCollection(ctx context.Context, db *mongo.Database) error {
	col := db.Collection(repositories.UsersCollection)

	_, err := col.Indexes().CreateMany(ctx, userIndexes())
	return err
}

func createAlertsCollection(ctx context.Context, db *mongo.Database) error {
	col := db.Collection(repositories.AlertsCollection)

	_, err := col.Indexes().CreateMany(ctx, alertIndexes())
	return err
}

func createActiveSenderIndex(ctx context.Context, db *mongo.Database) error {
	col := db.Collection(repositories.AlertsCollection)

	_, err := col.Indexes().CreateOne(ctx, activeSenderIndex())
	return err
}

func userIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "location", Value: "2dsphere"}},
		},
		{
			Keys: bson.D{{Key: "isAvailableForRescue", Value: 1}, {Key: "isActive", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "phone", Value: 1}},
		},
	}
}

func alertIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "alertCode", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "location", Value: "2dsphere"}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "notifiedUserIds", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "primaryResponderId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}},
		},
	}
}

// activeSenderIndex only covers documents that still carry activeSenderId,
// which the store clears on every terminal transition.
func activeSenderIndex() mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{{Key: "activeSenderId", Value: 1}},
		Options: options.Index().
			SetName("one_active_alert_per_sender").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"activeSenderId": bson.M{"$exists": true}}),
	}
}
