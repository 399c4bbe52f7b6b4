package event

import (
	"fmt"
	"testing"
	"time"

	"github.com/aristath/trading-assistant/internal/database"
	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:event_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileStandard,
		Name:    "event_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func TestIngestBatchInsertsAndUpdatesIdempotently(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store)

	_, err := svc.RegisterSource(domain.EventSource{SourceName: "news_wire", Type: "news", Provider: "internal", Timezone: "UTC", ReliabilityScore: 0.9})
	require.NoError(t, err)

	events := []RecordCreate{
		{EventID: "e1", Symbol: "600000.SH", EventType: "earnings", PublishTime: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), Polarity: domain.PolarityPositive, Score: 0.8, Confidence: 0.9, Title: "Beat"},
	}
	result, err := svc.Ingest("news_wire", events)
	require.NoError(t, err)
	require.Equal(t, 1, result.Inserted)
	require.Equal(t, 0, result.Updated)

	result2, err := svc.Ingest("news_wire", events)
	require.NoError(t, err)
	require.Equal(t, 0, result2.Inserted)
	require.Equal(t, 1, result2.Updated)
}

func TestIngestUnknownSourceFails(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store)
	_, err := svc.Ingest("missing", []RecordCreate{{EventID: "e1"}})
	require.Error(t, err)
}

func TestValidateJoinDetectsUsedBeforePublish(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store)
	_, err := svc.RegisterSource(domain.EventSource{SourceName: "news_wire"})
	require.NoError(t, err)

	publish := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	_, err = svc.Ingest("news_wire", []RecordCreate{
		{EventID: "e1", Symbol: "600000.SH", PublishTime: publish, Polarity: domain.PolarityPositive, Score: 0.5, Confidence: 0.5},
	})
	require.NoError(t, err)

	result, err := svc.ValidateJoin([]JoinRow{
		{Symbol: "600000.SH", SourceName: "news_wire", EventID: "e1", UsedInTradeTime: publish.Add(-time.Hour)},
	}, true)
	require.NoError(t, err)
	require.False(t, result.Passed)
	require.Equal(t, "used_before_publish", result.Issues[0].IssueType)
}

func TestBuildFeaturePointsAppliesExponentialDecay(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store)
	_, err := svc.RegisterSource(domain.EventSource{SourceName: "news_wire"})
	require.NoError(t, err)

	day := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	_, err = svc.Ingest("news_wire", []RecordCreate{
		{EventID: "fresh", Symbol: "600000.SH", PublishTime: day, Polarity: domain.PolarityPositive, Score: 1.0, Confidence: 1.0},
		{EventID: "stale", Symbol: "600000.SH", PublishTime: day.AddDate(0, 0, -20), Polarity: domain.PolarityPositive, Score: 1.0, Confidence: 1.0},
	})
	require.NoError(t, err)

	points, err := svc.BuildFeaturePoints("600000.SH", []time.Time{day}, 30, 7.0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, 2, points[0].EventCount)
	require.Greater(t, points[0].EventScore, 0.0)
	require.LessOrEqual(t, points[0].EventScore, 1.0)
}
