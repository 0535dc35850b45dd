package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bedwatch-engine/internal/models"
	"bedwatch-engine/internal/query"
	"bedwatch-engine/internal/repository"
)

func seedStore(t *testing.T) (*repository.MemoryStore, time.Time) {
	t.Helper()
	store := repository.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateSession(ctx, &models.MonitoringSession{
		SessionID: "session-1",
		SensorID:  "sensor-1",
		Name:      "bed 12",
		StartTime: base,
		CreatedAt: base,
	}))
	return store, base
}

func seedReading(t *testing.T, store *repository.MemoryStore, id string, at time.Time, peak float64) {
	t.Helper()
	err := store.InIngestTx(context.Background(), func(tx repository.IngestTx) error {
		return tx.InsertReading(context.Background(), &models.Reading{
			ReadingID:    id,
			SessionID:    "session-1",
			SensorID:     "sensor-1",
			RecordedAt:   at,
			PeakPressure: peak,
			AlertStatus:  models.AlertStatusNone,
			CreatedAt:    at,
		})
	})
	require.NoError(t, err)
}

func TestReadingsBySensor_InvalidRange(t *testing.T) {
	store, base := seedStore(t)
	q := query.NewQueryEngine(store, zap.NewNop())

	// from == to
	_, err := q.ReadingsBySensor(context.Background(), "sensor-1", base, base, 0)
	assert.ErrorIs(t, err, models.ErrInvalidRange)

	// from > to
	_, err = q.ReadingsBySensor(context.Background(), "sensor-1", base.Add(time.Hour), base, 0)
	assert.ErrorIs(t, err, models.ErrInvalidRange)
}

func TestReadingsBySensor_HalfOpenRange(t *testing.T) {
	store, base := seedStore(t)
	q := query.NewQueryEngine(store, zap.NewNop())

	seedReading(t, store, "a", base, 10)
	seedReading(t, store, "b", base.Add(time.Minute), 20)
	seedReading(t, store, "c", base.Add(2*time.Minute), 30)

	readings, err := q.ReadingsBySensor(context.Background(), "sensor-1", base, base.Add(2*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, "a", readings[0].ReadingID)
	assert.Equal(t, "b", readings[1].ReadingID)
}

func TestReadingsBySession_NoDownsampleWhenBucketZero(t *testing.T) {
	store, base := seedStore(t)
	q := query.NewQueryEngine(store, zap.NewNop())

	seedReading(t, store, "a", base, 10)
	seedReading(t, store, "b", base.Add(time.Second), 20)

	readings, err := q.ReadingsBySession(context.Background(), "session-1", base, base.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, readings, 2)
}

func TestDownsample_KeepsMaxPeakPerBucket(t *testing.T) {
	store, base := seedStore(t)
	q := query.NewQueryEngine(store, zap.NewNop())

	// 桶 0：[base, base+1m)
	seedReading(t, store, "a", base.Add(10*time.Second), 10)
	seedReading(t, store, "b", base.Add(30*time.Second), 50)
	seedReading(t, store, "c", base.Add(50*time.Second), 20)
	// 桶 1：[base+1m, base+2m)
	seedReading(t, store, "d", base.Add(70*time.Second), 5)
	// 桶 3：[base+3m, base+4m)，空桶不补零
	seedReading(t, store, "e", base.Add(200*time.Second), 99)

	readings, err := q.ReadingsBySensor(context.Background(), "sensor-1", base, base.Add(time.Hour), time.Minute)
	require.NoError(t, err)
	require.Len(t, readings, 3)
	assert.Equal(t, "b", readings[0].ReadingID)
	assert.Equal(t, "d", readings[1].ReadingID)
	assert.Equal(t, "e", readings[2].ReadingID)
}

func TestDownsample_TieKeepsEarliest(t *testing.T) {
	store, base := seedStore(t)
	q := query.NewQueryEngine(store, zap.NewNop())

	seedReading(t, store, "early", base.Add(5*time.Second), 42)
	seedReading(t, store, "late", base.Add(40*time.Second), 42)

	readings, err := q.ReadingsBySensor(context.Background(), "sensor-1", base, base.Add(time.Minute), time.Minute)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "early", readings[0].ReadingID)
}

func TestDownsample_EmptyInput(t *testing.T) {
	out := query.Downsample(nil, time.Now(), time.Minute)
	assert.Len(t, out, 0)
}

func TestAlertsBySession_AcknowledgedFilter(t *testing.T) {
	store, base := seedStore(t)
	q := query.NewQueryEngine(store, zap.NewNop())
	ctx := context.Background()

	seedAlert := func(id string, at time.Time) {
		err := store.InIngestTx(ctx, func(tx repository.IngestTx) error {
			return tx.InsertAlert(ctx, &models.Alert{
				AlertID:     id,
				SessionID:   "session-1",
				ReadingID:   "reading-1",
				AlertType:   models.AlertTypeHighPressure,
				TriggeredAt: at,
				CreatedAt:   at,
			})
		})
		require.NoError(t, err)
	}
	seedAlert("alert-1", base.Add(time.Minute))
	seedAlert("alert-2", base.Add(2*time.Minute))
	require.NoError(t, store.AcknowledgeAlert(ctx, "alert-1", "nurse-anna", base.Add(3*time.Minute)))

	all, err := q.AlertsBySession(ctx, "session-1", base, base.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	acked := true
	ackedAlerts, err := q.AlertsBySession(ctx, "session-1", base, base.Add(time.Hour), &acked)
	require.NoError(t, err)
	require.Len(t, ackedAlerts, 1)
	assert.Equal(t, "alert-1", ackedAlerts[0].AlertID)

	unacked := false
	open, err := q.AlertsBySensor(ctx, "sensor-1", base, base.Add(time.Hour), &unacked)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "alert-2", open[0].AlertID)
}

func TestAlertsBySensor_InvalidRange(t *testing.T) {
	store, base := seedStore(t)
	q := query.NewQueryEngine(store, zap.NewNop())

	_, err := q.AlertsBySensor(context.Background(), "sensor-1", base, base, nil)
	assert.ErrorIs(t, err, models.ErrInvalidRange)
}
