// Package repotest checks implementations of emulator.Repository.
package repotest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartossh/Rampart/emulator"
)

func record(t *testing.T, doc map[string]any) emulator.Record {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	rec, err := emulator.RecordOf(raw)
	require.NoError(t, err)
	rec.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	return rec
}

// Run exercises repo. The collection names used are prefixed with prefix so runs against a shared database do not collide.
func Run(t *testing.T, repo emulator.Repository, prefix string) {
	ctx := context.Background()
	coll := prefix + "service"
	other := prefix + "rulesec"
	t.Cleanup(func() {
		repo.Truncate(ctx, coll)
		repo.Truncate(ctx, other)
	})

	t.Run("insert and get", func(t *testing.T) {
		rec := record(t, map[string]any{"_id": "a", "name": "alpha"})
		require.NoError(t, repo.Insert(ctx, coll, rec))
		assert.ErrorIs(t, repo.Insert(ctx, coll, rec), emulator.ErrConflict)

		got, err := repo.Get(ctx, coll, "a")
		require.NoError(t, err)
		assert.JSONEq(t, string(rec.Body), string(got.Body))

		_, err = repo.Get(ctx, coll, "missing")
		assert.ErrorIs(t, err, emulator.ErrNotFound)
	})

	t.Run("list with filter and window", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			require.NoError(t, repo.Insert(ctx, coll, record(t, map[string]any{
				"_id":  fmt.Sprintf("b%d", i),
				"name": fmt.Sprintf("beta-%d", i),
				"tier": i % 2,
			})))
		}
		recs, total, err := repo.List(ctx, coll, emulator.Filter{}, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Len(t, recs, 2)

		recs, total, err = repo.List(ctx, coll, emulator.Filter{Match: map[string]string{"name": "^beta"}}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Len(t, recs, 4)

		recs, total, err = repo.List(ctx, coll, emulator.Filter{Equals: map[string]any{"tier": 1}}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, recs, 2)
	})

	t.Run("numeric fields", func(t *testing.T) {
		require.NoError(t, repo.Insert(ctx, other, record(t, map[string]any{"_id": "r1", "code": 942100})))
		require.NoError(t, repo.Insert(ctx, other, record(t, map[string]any{"_id": "r2", "code": 920100})))
		recs, total, err := repo.List(ctx, other, emulator.Filter{Equals: map[string]any{"code": 942100}}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, recs, 1)
		assert.Equal(t, "r1", recs[0].ID)
	})

	t.Run("replace and delete", func(t *testing.T) {
		rec := record(t, map[string]any{"_id": "a", "name": "renamed"})
		require.NoError(t, repo.Replace(ctx, coll, rec))
		got, err := repo.Get(ctx, coll, "a")
		require.NoError(t, err)
		assert.JSONEq(t, string(rec.Body), string(got.Body))

		assert.ErrorIs(t, repo.Replace(ctx, coll, record(t, map[string]any{"_id": "nope"})), emulator.ErrNotFound)

		require.NoError(t, repo.Delete(ctx, coll, "a"))
		assert.ErrorIs(t, repo.Delete(ctx, coll, "a"), emulator.ErrNotFound)
	})

	t.Run("collections and truncate", func(t *testing.T) {
		names, err := repo.Collections(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, coll)
		assert.Contains(t, names, other)

		require.NoError(t, repo.Truncate(ctx, other))
		_, total, err := repo.List(ctx, other, emulator.Filter{}, 0, 0)
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}
