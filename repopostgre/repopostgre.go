package repopostgre

import (
	"context"
	"errors"
	"fmt"

	"database/sql"

	_ "github.com/lib/pq"
)

var (
	ErrInsertFailed    = fmt.Errorf("insert failed")
	ErrRemoveFailed    = fmt.Errorf("remove failed")
	ErrSelectFailed    = fmt.Errorf("select failed")
	ErrUpdateFailed    = fmt.Errorf("update failed")
	ErrScanFailed      = fmt.Errorf("scan failed")
	ErrMigrationFailed = fmt.Errorf("migration failed")
	ErrUnmarshalFailed = fmt.Errorf("unmarshal failed")
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS records_created_at_idx ON records (collection, created_at);
CREATE TABLE IF NOT EXISTS logs (
	id         SERIAL PRIMARY KEY,
	level      TEXT NOT NULL,
	source     TEXT NOT NULL,
	msg        TEXT NOT NULL,
	created_at BIGINT NOT NULL
);`

// Database provides database access for read, write and delete of emulator records.
type DataBase struct {
	inner *sql.DB
}

// Connect creates new connection to the repository and returns pointer to the DataBase.
// The schema is created when missing.
func Connect(ctx context.Context, dsn string) (*DataBase, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Join(ErrMigrationFailed, err)
	}

	return &DataBase{inner: db}, nil
}

// Disconnect disconnects user from database
func (db *DataBase) Disconnect(ctx context.Context) error {
	return db.inner.Close()
}

// Ping checks if the connection to the database is still alive.
func (db *DataBase) Ping(ctx context.Context) error {
	return db.inner.PingContext(ctx)
}
