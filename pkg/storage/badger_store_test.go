package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websearch/pkg/models"
	"websearch/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	store, err := NewBadgerStore(ctx, dir, "test-session", false, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewBadgerStore(t *testing.T) {
	t.Run("fresh start has zero count", func(t *testing.T) {
		store := newTestStore(t)
		count, err := store.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("resume preserves data", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()
		logger := testLogger()

		store1, err := NewBadgerStore(ctx, dir, "test-session", false, logger)
		require.NoError(t, err)
		_, err = store1.MarkPending("https://example.com/page1", 0)
		require.NoError(t, err)
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(ctx, dir, "test-session", true, logger)
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		count, err := store2.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("fresh start wipes data", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()
		logger := testLogger()

		store1, err := NewBadgerStore(ctx, dir, "test-session", false, logger)
		require.NoError(t, err)
		_, err = store1.MarkPending("https://example.com/page1", 0)
		require.NoError(t, err)
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(ctx, dir, "test-session", false, logger)
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		count, err := store2.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestMarkPending(t *testing.T) {
	store := newTestStore(t)

	t.Run("new URL returns true", func(t *testing.T) {
		added, err := store.MarkPending("https://example.com/page1", 2)
		require.NoError(t, err)
		assert.True(t, added)

		state, entry, err := store.CheckState("https://example.com/page1")
		require.NoError(t, err)
		assert.Equal(t, models.StatePending, state)
		require.NotNil(t, entry)
		assert.Equal(t, 2, entry.Depth)
	})

	t.Run("duplicate returns false", func(t *testing.T) {
		added, err := store.MarkPending("https://example.com/page1", 5)
		require.NoError(t, err)
		assert.False(t, added)

		// Depth of the original claim survives
		_, entry, err := store.CheckState("https://example.com/page1")
		require.NoError(t, err)
		assert.Equal(t, 2, entry.Depth)
	})

	t.Run("count tracks correctly", func(t *testing.T) {
		_, err := store.MarkPending("https://example.com/page2", 0)
		require.NoError(t, err)
		count, err := store.GetVisitedCount()
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestCheckState(t *testing.T) {
	store := newTestStore(t)

	t.Run("not found", func(t *testing.T) {
		state, entry, err := store.CheckState("https://example.com/missing")
		require.NoError(t, err)
		assert.Equal(t, models.StateUnset, state)
		assert.Nil(t, entry)
	})

	t.Run("success entry", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		dbEntry := &models.PageDBEntry{
			State:       models.StateSuccess,
			ProcessedAt: now,
			LastAttempt: now,
			Depth:       2,
			Attempts:    1,
		}
		require.NoError(t, store.UpdateState("https://example.com/success", dbEntry))

		state, entry, err := store.CheckState("https://example.com/success")
		require.NoError(t, err)
		assert.Equal(t, models.StateSuccess, state)
		require.NotNil(t, entry)
		assert.Equal(t, 1, entry.Attempts)
	})

	t.Run("permanent failure entry", func(t *testing.T) {
		dbEntry := &models.PageDBEntry{
			State:       models.StatePermanentFail,
			ErrorType:   "HTTP_404",
			LastAttempt: time.Now(),
			Depth:       1,
			Attempts:    1,
		}
		require.NoError(t, store.UpdateState("https://example.com/failed", dbEntry))

		state, entry, err := store.CheckState("https://example.com/failed")
		require.NoError(t, err)
		assert.Equal(t, models.StatePermanentFail, state)
		require.NotNil(t, entry)
		assert.Equal(t, "HTTP_404", entry.ErrorType)
	})

	t.Run("corrupted JSON falls back to pending", func(t *testing.T) {
		key := []byte(pageKeyPrefix + "https://example.com/corrupt")
		err := store.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(key, []byte("{invalid json")))
		})
		require.NoError(t, err)

		state, entry, err := store.CheckState("https://example.com/corrupt")
		require.NoError(t, err)
		assert.Equal(t, models.StatePending, state)
		assert.Nil(t, entry)
	})
}

func TestUpdateState(t *testing.T) {
	store := newTestStore(t)

	t.Run("new entry", func(t *testing.T) {
		entry := &models.PageDBEntry{
			State:       models.StateSuccess,
			LastAttempt: time.Now(),
			Depth:       0,
		}
		err := store.UpdateState("https://example.com/new", entry)
		require.NoError(t, err)

		count, _ := store.GetVisitedCount()
		assert.Equal(t, 1, count)
	})

	t.Run("overwrite existing", func(t *testing.T) {
		entry := &models.PageDBEntry{
			State:       models.StateTransientFail,
			ErrorType:   "HTTPServer_500",
			LastAttempt: time.Now(),
			Depth:       0,
			Attempts:    2,
		}
		err := store.UpdateState("https://example.com/new", entry)
		require.NoError(t, err)

		// Count should not increase on overwrite
		count, _ := store.GetVisitedCount()
		assert.Equal(t, 1, count)

		state, got, err := store.CheckState("https://example.com/new")
		require.NoError(t, err)
		assert.Equal(t, models.StateTransientFail, state)
		assert.Equal(t, "HTTPServer_500", got.ErrorType)
		assert.Equal(t, 2, got.Attempts)
	})

	t.Run("full round-trip all fields survive", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		entry := &models.PageDBEntry{
			State:       models.StateSuccess,
			ProcessedAt: now,
			LastAttempt: now,
			Depth:       5,
			Attempts:    3,
		}
		require.NoError(t, store.UpdateState("https://example.com/roundtrip", entry))

		_, got, err := store.CheckState("https://example.com/roundtrip")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.StateSuccess, got.State)
		assert.Equal(t, now.UTC(), got.ProcessedAt.UTC())
		assert.Equal(t, now.UTC(), got.LastAttempt.UTC())
		assert.Equal(t, 5, got.Depth)
		assert.Equal(t, 3, got.Attempts)
	})
}

func TestRequeueIncomplete(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		store := newTestStore(t)
		ch := make(chan models.WorkItem, 10)
		requeued, scanErrors, err := store.RequeueIncomplete(context.Background(), ch)
		require.NoError(t, err)
		assert.Equal(t, 0, requeued)
		assert.Equal(t, 0, scanErrors)
		assert.Empty(t, ch)
	})

	t.Run("terminal states not requeued", func(t *testing.T) {
		store := newTestStore(t)
		store.UpdateState("https://example.com/ok", &models.PageDBEntry{
			State:       models.StateSuccess,
			LastAttempt: time.Now(),
		})
		store.UpdateState("https://example.com/gone", &models.PageDBEntry{
			State:       models.StatePermanentFail,
			ErrorType:   "HTTP_410",
			LastAttempt: time.Now(),
		})
		store.UpdateState("https://example.com/robots", &models.PageDBEntry{
			State:       models.StateSkipped,
			LastAttempt: time.Now(),
		})
		ch := make(chan models.WorkItem, 10)
		requeued, _, err := store.RequeueIncomplete(context.Background(), ch)
		require.NoError(t, err)
		assert.Equal(t, 0, requeued)
		assert.Empty(t, ch)
	})

	t.Run("pending pages requeued", func(t *testing.T) {
		store := newTestStore(t)
		store.MarkPending("https://example.com/pending1", 0)
		ch := make(chan models.WorkItem, 10)
		requeued, _, err := store.RequeueIncomplete(context.Background(), ch)
		require.NoError(t, err)
		assert.Equal(t, 1, requeued)
		item := <-ch
		assert.Equal(t, "https://example.com/pending1", item.URL)
		assert.Equal(t, 0, item.Depth)
	})

	t.Run("transient failures requeued with correct depth", func(t *testing.T) {
		store := newTestStore(t)
		store.UpdateState("https://example.com/fail", &models.PageDBEntry{
			State:       models.StateTransientFail,
			Depth:       3,
			LastAttempt: time.Now(),
		})
		ch := make(chan models.WorkItem, 10)
		requeued, _, err := store.RequeueIncomplete(context.Background(), ch)
		require.NoError(t, err)
		assert.Equal(t, 1, requeued)
		item := <-ch
		assert.Equal(t, "https://example.com/fail", item.URL)
		assert.Equal(t, 3, item.Depth)
	})

	t.Run("context cancellation", func(t *testing.T) {
		store := newTestStore(t)
		store.MarkPending("https://example.com/p1", 0)
		store.MarkPending("https://example.com/p2", 0)

		ctx, cancel := context.WithCancel(context.Background())
		cancel() // cancel immediately

		ch := make(chan models.WorkItem, 10)
		_, _, err := store.RequeueIncomplete(ctx, ch)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoadTerminal(t *testing.T) {
	store := newTestStore(t)

	store.UpdateState("https://example.com/ok", &models.PageDBEntry{
		State:       models.StateSuccess,
		LastAttempt: time.Now(),
	})
	store.UpdateState("https://example.com/gone", &models.PageDBEntry{
		State:       models.StatePermanentFail,
		LastAttempt: time.Now(),
	})
	store.MarkPending("https://example.com/inflight", 0)

	var urls []string
	err := store.LoadTerminal(context.Background(), func(url string) {
		urls = append(urls, url)
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"https://example.com/ok", "https://example.com/gone"}, urls)
}

func TestRunGC(t *testing.T) {
	t.Run("respects context cancellation", func(t *testing.T) {
		store := newTestStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // cancel immediately

		done := make(chan struct{})
		go func() {
			store.RunGC(ctx, 50*time.Millisecond)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("RunGC did not respect context cancellation")
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("normal close", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewBadgerStore(context.Background(), dir, "test-session", false, testLogger())
		require.NoError(t, err)
		assert.NoError(t, store.Close())
	})

	t.Run("double close does not panic", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewBadgerStore(context.Background(), dir, "test-session", false, testLogger())
		require.NoError(t, err)
		assert.NoError(t, store.Close())
		assert.NoError(t, store.Close()) // second close should be safe
	})
}

func TestDBUpdateConflictRetry(t *testing.T) {
	t.Run("succeeds after transient conflicts", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			if attempts <= 3 {
				return badger.ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 4, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return badger.ErrConflict
		})
		require.Error(t, err)
		require.ErrorIs(t, err, utils.ErrDatabase)
		assert.Contains(t, err.Error(), "transaction conflict not resolved")
		assert.Equal(t, maxConflictRetries, attempts)
	})

	t.Run("non-conflict error returned immediately", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		sentinel := errors.New("some other error")
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return sentinel
		})
		require.Error(t, err)
		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, attempts)
	})
}
