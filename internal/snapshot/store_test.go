package snapshot

import (
	"fmt"
	"testing"
	"time"

	"github.com/aristath/trading-assistant/internal/database"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:snapshot_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileLedger,
		Name:    "snapshot_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func TestRegisterIsIdempotentOnContentHash(t *testing.T) {
	store := newTestStore(t)
	req := RegisterRequest{
		DatasetName: "daily_bars", Symbol: "600000.SH",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		Provider:  "tushare", RowCount: 20, SchemaVersion: "v1", ContentHash: "abc123",
	}

	id1, err := store.Register(req)
	require.NoError(t, err)
	require.Greater(t, id1, int64(0))

	id2, err := store.Register(req)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	snapshots, err := store.ListSnapshots("daily_bars", "600000.SH", 0)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
}

func TestRegisterDifferentContentHashCreatesNewRow(t *testing.T) {
	store := newTestStore(t)
	base := RegisterRequest{
		DatasetName: "daily_bars", Symbol: "600000.SH",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		Provider:  "tushare", RowCount: 20, SchemaVersion: "v1", ContentHash: "abc123",
	}
	_, err := store.Register(base)
	require.NoError(t, err)

	revised := base
	revised.ContentHash = "def456"
	revised.RowCount = 21
	_, err = store.Register(revised)
	require.NoError(t, err)

	latest, err := store.LatestSnapshot("daily_bars", "600000.SH")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, "def456", latest.ContentHash)
}
