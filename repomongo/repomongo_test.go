//go:build integration

package repomongo

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/bartossh/Rampart/emulator"
	"github.com/bartossh/Rampart/emulator/repotest"
	"github.com/bartossh/Rampart/logger"
)

func connect(t *testing.T) *DataBase {
	t.Helper()
	godotenv.Load("../.env")
	uri := os.Getenv("RAMPART_MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	name := os.Getenv("RAMPART_MONGO_DATABASE")
	if name == "" {
		name = "rampart_test"
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	db, err := Connect(ctx, uri, name)
	require.NoError(t, err)
	t.Cleanup(func() { db.Disconnect(context.Background()) })
	return db
}

func TestRepository(t *testing.T) {
	db := connect(t)
	require.NoError(t, db.Ping(context.Background()))
	var _ emulator.Repository = db
	repotest.Run(t, db, "it_")
}

func TestWriteLog(t *testing.T) {
	db := connect(t)
	raw, err := json.Marshal(logger.Log{
		ID:        primitive.NewObjectID(),
		CreatedAt: time.Now(),
		Level:     "info",
		Source:    "repomongo",
		Msg:       "integration",
	})
	require.NoError(t, err)
	n, err := db.Write(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
}

func TestRunMigrations(t *testing.T) {
	db := connect(t)
	ctx := context.Background()

	_, err := db.RunMigrations(ctx)
	require.NoError(t, err)
	again, err := db.RunMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	names, err := db.Collections(ctx)
	require.NoError(t, err)
	assert.NotContains(t, names, migrationsCollection)
}
