package repopostgre

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/bartossh/Rampart/emulator"
)

const uniqueViolation = "23505"

// where builds the condition on body fields. Arguments are numbered after the collection argument.
func where(f emulator.Filter) (string, []any, error) {
	var (
		conds = []string{"collection = $1"}
		args  []any
	)
	n := 2
	keys := make([]string, 0, len(f.Equals))
	for k := range f.Equals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw, err := json.Marshal(f.Equals[k])
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, fmt.Sprintf("body -> $%d = $%d::jsonb", n, n+1))
		args = append(args, k, string(raw))
		n += 2
	}
	keys = keys[:0]
	for k := range f.Match {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		conds = append(conds, fmt.Sprintf("body ->> $%d ~ $%d", n, n+1))
		args = append(args, k, f.Match[k])
		n += 2
	}
	return strings.Join(conds, " AND "), args, nil
}

// Insert stores a new record.
func (db *DataBase) Insert(ctx context.Context, collection string, rec emulator.Record) error {
	_, err := db.inner.ExecContext(ctx,
		"INSERT INTO records (collection, id, body, created_at) VALUES ($1, $2, $3, $4)",
		collection, rec.ID, string(rec.Body), rec.CreatedAt.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return emulator.ErrConflict
		}
		return errors.Join(ErrInsertFailed, err)
	}
	return nil
}

// Get reads a record.
func (db *DataBase) Get(ctx context.Context, collection, id string) (emulator.Record, error) {
	rec := emulator.Record{ID: id}
	var body string
	err := db.inner.QueryRowContext(ctx,
		"SELECT body, created_at FROM records WHERE collection = $1 AND id = $2",
		collection, id,
	).Scan(&body, &rec.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return emulator.Record{}, emulator.ErrNotFound
	case err != nil:
		return emulator.Record{}, errors.Join(ErrSelectFailed, err)
	}
	rec.Body = json.RawMessage(body)
	return rec, nil
}

// List reads records ordered by creation time.
func (db *DataBase) List(ctx context.Context, collection string, f emulator.Filter, offset, limit int) ([]emulator.Record, int, error) {
	cond, args, err := where(f)
	if err != nil {
		return nil, 0, err
	}
	args = append([]any{collection}, args...)

	var total int
	if err := db.inner.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, errors.Join(ErrSelectFailed, err)
	}

	query := "SELECT id, body, created_at FROM records WHERE " + cond + " ORDER BY created_at, id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}
	rows, err := db.inner.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Join(ErrSelectFailed, err)
	}
	defer rows.Close()

	out := make([]emulator.Record, 0, limit)
	for rows.Next() {
		var (
			rec  emulator.Record
			body string
		)
		if err := rows.Scan(&rec.ID, &body, &rec.CreatedAt); err != nil {
			return nil, 0, errors.Join(ErrScanFailed, err)
		}
		rec.Body = json.RawMessage(body)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Join(ErrSelectFailed, err)
	}
	return out, total, nil
}

// Replace overwrites the body of an existing record.
func (db *DataBase) Replace(ctx context.Context, collection string, rec emulator.Record) error {
	res, err := db.inner.ExecContext(ctx,
		"UPDATE records SET body = $3 WHERE collection = $1 AND id = $2",
		collection, rec.ID, string(rec.Body),
	)
	if err != nil {
		return errors.Join(ErrUpdateFailed, err)
	}
	return affected(res)
}

// Delete removes a record.
func (db *DataBase) Delete(ctx context.Context, collection, id string) error {
	res, err := db.inner.ExecContext(ctx, "DELETE FROM records WHERE collection = $1 AND id = $2", collection, id)
	if err != nil {
		return errors.Join(ErrRemoveFailed, err)
	}
	return affected(res)
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return emulator.ErrNotFound
	}
	return nil
}

// Truncate removes all records of the collection.
func (db *DataBase) Truncate(ctx context.Context, collection string) error {
	if _, err := db.inner.ExecContext(ctx, "DELETE FROM records WHERE collection = $1", collection); err != nil {
		return errors.Join(ErrRemoveFailed, err)
	}
	return nil
}

// Collections lists names of non empty collections.
func (db *DataBase) Collections(ctx context.Context) ([]string, error) {
	rows, err := db.inner.QueryContext(ctx, "SELECT DISTINCT collection FROM records ORDER BY collection")
	if err != nil {
		return nil, errors.Join(ErrSelectFailed, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Join(ErrScanFailed, err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
