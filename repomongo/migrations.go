package repomongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	migrationsCollection   = "migrations"
	userCollection         = "user"
	transactionsCollection = "trn"
)

var ErrMigrationFailed = errors.New("migration failed")

type marker struct {
	Name string `bson:"name"`
}

type migration struct {
	name string
	run  func(ctx context.Context, db *mongo.Database) error
}

func index(coll string, keys bson.D, unique bool) func(ctx context.Context, db *mongo.Database) error {
	return func(ctx context.Context, db *mongo.Database) error {
		_, err := db.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    keys,
			Options: options.Index().SetUnique(unique),
		})
		return err
	}
}

var migrations = []migration{
	{name: "index_name_migrations", run: index(migrationsCollection, bson.D{{Key: "name", Value: 1}}, true)},
	{name: "index_email_user", run: index(userCollection, bson.D{{Key: "body.email", Value: 1}}, true)},
	{name: "index_logtime_trn", run: index(transactionsCollection, bson.D{{Key: "body.logtime", Value: 1}}, false)},
	{name: "index_created_at_logs", run: index(logsCollection, bson.D{{Key: "created_at", Value: 1}}, false)},
	{name: "index_level_logs", run: index(logsCollection, bson.D{{Key: "level", Value: 1}}, false)},
}

// RunMigrations creates the indexes not created yet and returns names of the applied migrations.
func (c *DataBase) RunMigrations(ctx context.Context) ([]string, error) {
	migrated := make([]string, 0, len(migrations))
	for _, m := range migrations {
		ok, err := c.migrated(ctx, m.name)
		if err != nil {
			return migrated, err
		}
		if ok {
			continue
		}
		if err := m.run(ctx, &c.inner); err != nil {
			return migrated, errors.Join(ErrMigrationFailed, fmt.Errorf("%s: %w", m.name, err))
		}
		if _, err := c.inner.Collection(migrationsCollection).InsertOne(ctx, marker{Name: m.name}); err != nil {
			return migrated, errors.Join(ErrMigrationFailed, fmt.Errorf("marker %s: %w", m.name, err))
		}
		migrated = append(migrated, m.name)
	}
	return migrated, nil
}

func (c *DataBase) migrated(ctx context.Context, name string) (bool, error) {
	var m marker
	err := c.inner.Collection(migrationsCollection).FindOne(ctx, bson.D{{Key: "name", Value: name}}).Decode(&m)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return false, nil
	default:
		return false, errors.Join(ErrSelectFailed, err)
	}
}
