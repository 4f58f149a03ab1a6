package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shuakami/napcat-qce-go/pkg/batch"
)

func testRecord(runID, targetID, status string) batch.Record {
	return batch.Record{
		RunID:        runID,
		Target:       batch.Target{Type: "group", ID: targetID, Name: "Test Group"},
		TaskID:       "task-" + targetID,
		Status:       status,
		MessageCount: 42,
		FilePath:     "/exports/" + targetID + ".html",
		FinishedAt:   time.Now().UTC(),
	}
}

// storeTest exercises the Store contract against any implementation.
func storeTest(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	records := []batch.Record{
		testRecord("run-1", "100", "completed"),
		testRecord("run-1", "101", "failed"),
		testRecord("run-2", "200", "completed"),
	}
	for _, rec := range records {
		require.NoError(t, store.Record(ctx, rec))
	}

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"run-2", "run-1"}, runs, "runs should be newest first")

	byRun, err := store.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, byRun, 2)
	require.Equal(t, "100", byRun[0].Target.ID, "records should keep insertion order")
	require.Equal(t, "101", byRun[1].Target.ID)
	require.Equal(t, 42, byRun[0].MessageCount)
	require.Equal(t, "Test Group", byRun[0].Target.Name)
	require.Equal(t, "task-100", byRun[0].TaskID)

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "200", recent[0].Target.ID, "newest record should come first")

	empty, err := store.ListByRun(ctx, "run-404")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	storeTest(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()
	storeTest(t, store)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, testRecord("run-1", "100", "completed")))
	require.NoError(t, store.Close())

	// Data survives reopening the same file.
	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "100", records[0].Target.ID)
}
