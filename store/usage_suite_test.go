package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runUsageStoreSuite exercises the UsageLogStore contract against any backend.
func runUsageStoreSuite(t *testing.T, newStore func(t *testing.T) UsageLogStore) {
	t.Helper()
	ctx := context.Background()
	ts := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	t.Run("insert if absent writes once", func(t *testing.T) {
		s := newStore(t)
		entry := &UsageEntry{TenantID: 7, CookieName: "__acme_site_7", CookieValue: `{"session_id":"a"}`, Timestamp: ts}

		inserted, err := s.InsertIfAbsent(ctx, entry)
		require.NoError(t, err)
		assert.True(t, inserted)

		entry.CookieValue = `{"session_id":"b"}`
		inserted, err = s.InsertIfAbsent(ctx, entry)
		require.NoError(t, err)
		assert.False(t, inserted, "second call for the same tenant and cookie must be a no-op")

		rows, err := s.Report(ctx, "__acme_site_7")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(1), rows[0].TenantCount)
		assert.Equal(t, `{"session_id":"a"}`, rows[0].CookieValue)
	})

	t.Run("insert if absent respects rows from batch inserts", func(t *testing.T) {
		s := newStore(t)
		entry := &UsageEntry{TenantID: 3, CookieName: "__blog_3", CookieValue: "v", Timestamp: ts}

		require.NoError(t, s.Insert(ctx, entry))
		inserted, err := s.InsertIfAbsent(ctx, entry)
		require.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("plain insert appends duplicates", func(t *testing.T) {
		s := newStore(t)
		entry := &UsageEntry{TenantID: 1, CookieName: "__dup_1", CookieValue: "v", Timestamp: ts}

		require.NoError(t, s.Insert(ctx, entry))
		require.NoError(t, s.Insert(ctx, entry))

		if counter, ok := s.(interface {
			Count(context.Context, int64, string) (int, error)
		}); ok {
			n, err := counter.Count(ctx, 1, "__dup_1")
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		}
	})

	t.Run("report counts distinct tenants", func(t *testing.T) {
		s := newStore(t)
		for i, tenant := range []int64{1, 2, 2, 5} {
			require.NoError(t, s.Insert(ctx, &UsageEntry{
				TenantID:    tenant,
				CookieName:  "__shared",
				CookieValue: fmt.Sprintf("v%d", i),
				Timestamp:   ts.Add(time.Duration(i) * time.Minute),
			}))
		}
		require.NoError(t, s.Insert(ctx, &UsageEntry{TenantID: 9, CookieName: "__other", CookieValue: "x", Timestamp: ts}))

		rows, err := s.Report(ctx, "__shared")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "__shared", rows[0].CookieName)
		assert.Equal(t, int64(3), rows[0].TenantCount)
		assert.Equal(t, "v3", rows[0].CookieValue)
		assert.True(t, rows[0].Timestamp.Equal(ts.Add(3*time.Minute)), "got %v", rows[0].Timestamp)

		rows, err = s.Report(ctx, "__missing")
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("concurrent insert if absent keeps one row", func(t *testing.T) {
		s := newStore(t)
		entry := UsageEntry{TenantID: 11, CookieName: "__race_11", CookieValue: "v", Timestamp: ts}

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			inserted int
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e := entry
				ok, err := s.InsertIfAbsent(ctx, &e)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					inserted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, inserted)
	})

	t.Run("purge removes rows", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, &UsageEntry{TenantID: 1, CookieName: "__p", CookieValue: "v", Timestamp: ts}))
		require.NoError(t, s.Purge(ctx))

		rows, err := s.Report(ctx, "__p")
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}
