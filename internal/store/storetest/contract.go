// Package storetest holds the behavioral contract every store.DocumentStore
// engine must satisfy. Engine packages run it from their own tests.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/phrazzld/vendorflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) store.DocumentStore

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "things", "nope")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("add and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id, err := s.Add(ctx, "things", store.Fields{"name": "a", "n": 2, "nested": map[string]any{"k": "v"}})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		doc, err := s.Get(ctx, "things", id)
		require.NoError(t, err)
		assert.Equal(t, id, doc.ID)
		assert.Equal(t, "a", doc.Fields.String("name"))
		assert.Equal(t, 2, doc.Fields.Int("n"))
		assert.Equal(t, "v", doc.Fields.Map("nested")["k"])
	})

	t.Run("put rejects duplicates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "things", "x", store.Fields{"v": 1}))
		err := s.Put(ctx, "things", "x", store.Fields{"v": 2})
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("update merges and deletes fields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "things", "x", store.Fields{"a": "1", "b": "2"}))
		require.NoError(t, s.Update(ctx, "things", "x", store.Fields{"a": "3", "b": store.DeleteField, "c": true}))

		doc, err := s.Get(ctx, "things", "x")
		require.NoError(t, err)
		assert.Equal(t, "3", doc.Fields.String("a"))
		assert.NotContains(t, doc.Fields, "b")
		assert.True(t, doc.Fields.Bool("c"))

		err = s.Update(ctx, "things", "missing", store.Fields{"a": "1"})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("update if", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "things", "x", store.Fields{"status": "PENDING"}))

		ok, err := s.UpdateIf(ctx, "things", "x",
			[]store.Filter{store.Where("status", store.OpIn, []string{"PENDING", "RETRY"})},
			store.Fields{"status": "CLAIMED"})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.UpdateIf(ctx, "things", "x",
			[]store.Filter{store.Where("status", store.OpEqual, "PENDING")},
			store.Fields{"status": "CLAIMED"})
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.UpdateIf(ctx, "things", "missing", nil, store.Fields{"a": 1})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("query filters orders and limits", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seed := map[string]store.Fields{
			"a": {"status": "PENDING", "at": "2026-01-01T00:00:03.000000Z", "n": 1},
			"b": {"status": "RETRY", "at": "2026-01-01T00:00:01.000000Z", "n": 2},
			"c": {"status": "FAILED", "at": "2026-01-01T00:00:00.000000Z", "n": 3},
			"d": {"status": "PENDING", "at": "2026-01-01T00:00:09.000000Z", "n": 4},
		}
		for id, f := range seed {
			require.NoError(t, s.Put(ctx, "tasks", id, f))
		}

		docs, err := s.Query(ctx, "tasks", store.Query{
			Filters: []store.Filter{
				store.Where("status", store.OpIn, []string{"PENDING", "RETRY"}),
				store.Where("at", store.OpLessEqual, "2026-01-01T00:00:05.000000Z"),
			},
			OrderBy: "at",
		})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "b", docs[0].ID)
		assert.Equal(t, "a", docs[1].ID)

		docs, err = s.Query(ctx, "tasks", store.Query{OrderBy: "n", Descending: true, Limit: 2})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "d", docs[0].ID)
		assert.Equal(t, "c", docs[1].ID)

		docs, err = s.Query(ctx, "tasks", store.Query{
			Filters: []store.Filter{store.Where("n", store.OpGreater, 2)},
		})
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})

	t.Run("query on nested path", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "activities", "a1", store.Fields{"vendorId": "V1", "metadata": map[string]any{"taskId": "t1"}}))
		require.NoError(t, s.Put(ctx, "activities", "a2", store.Fields{"vendorId": "V1", "metadata": map[string]any{}}))

		docs, err := s.Query(ctx, "activities", store.Query{Filters: []store.Filter{
			store.Where("vendorId", store.OpEqual, "V1"),
			store.Where("metadata.taskId", store.OpEqual, "t1"),
		}})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "a1", docs[0].ID)
	})

	t.Run("batch delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, id := range []string{"1", "2", "3"} {
			require.NoError(t, s.Put(ctx, "things", id, store.Fields{"v": id}))
		}
		require.NoError(t, s.BatchDelete(ctx, "things", []string{"1", "2", "missing"}))
		docs, err := s.Query(ctx, "things", store.Query{})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "3", docs[0].ID)
	})

	t.Run("commit is atomic", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "vendors", "V1", store.Fields{"status": "PENDING_REVIEW"}))
		require.NoError(t, s.Put(ctx, "tasks", "t1", store.Fields{"status": "CLAIMED"}))

		err := s.Commit(ctx,
			store.Update("vendors", "V1", store.Fields{"status": "APPROVED"},
				store.Where("status", store.OpEqual, "PENDING_REVIEW")),
			store.Create("activities", "a1", store.Fields{"vendorId": "V1"}),
			store.Update("tasks", "t1", store.Fields{"status": "COMPLETED"},
				store.Where("status", store.OpEqual, "PENDING")),
		)
		assert.ErrorIs(t, err, store.ErrConditionFailed)

		v, err := s.Get(ctx, "vendors", "V1")
		require.NoError(t, err)
		assert.Equal(t, "PENDING_REVIEW", v.Fields.String("status"))
		_, err = s.Get(ctx, "activities", "a1")
		assert.ErrorIs(t, err, store.ErrNotFound)

		err = s.Commit(ctx,
			store.Update("vendors", "V1", store.Fields{"status": "APPROVED"},
				store.Where("status", store.OpEqual, "PENDING_REVIEW")),
			store.Create("activities", "a1", store.Fields{"vendorId": "V1"}),
			store.Update("tasks", "t1", store.Fields{"status": "COMPLETED"},
				store.Where("status", store.OpEqual, "CLAIMED")),
		)
		require.NoError(t, err)
		v, err = s.Get(ctx, "vendors", "V1")
		require.NoError(t, err)
		assert.Equal(t, "APPROVED", v.Fields.String("status"))
		_, err = s.Get(ctx, "activities", "a1")
		assert.NoError(t, err)
	})

	t.Run("commit update of missing document fails condition", func(t *testing.T) {
		s := newStore(t)
		err := s.Commit(context.Background(), store.Update("vendors", "ghost", store.Fields{"a": 1}))
		assert.ErrorIs(t, err, store.ErrConditionFailed)
	})

	t.Run("concurrent conditional claims have one winner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "tasks", "t1", store.Fields{"status": "PENDING"}))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.UpdateIf(ctx, "tasks", "t1",
					[]store.Filter{store.Where("status", store.OpIn, []string{"PENDING", "RETRY"})},
					store.Fields{"status": "CLAIMED"})
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}
