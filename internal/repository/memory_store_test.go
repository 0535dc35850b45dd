package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bedwatch-engine/internal/models"
)

func newTestSession(sessionID, sensorID string, startTime time.Time) *models.MonitoringSession {
	return &models.MonitoringSession{
		SessionID: sessionID,
		SensorID:  sensorID,
		Name:      "test session",
		StartTime: startTime,
		CreatedAt: startTime,
	}
}

func ingestReading(t *testing.T, store *MemoryStore, r *models.Reading) {
	t.Helper()
	err := store.InIngestTx(context.Background(), func(tx IngestTx) error {
		return tx.InsertReading(context.Background(), r)
	})
	require.NoError(t, err)
}

func ingestAlert(t *testing.T, store *MemoryStore, a *models.Alert) {
	t.Helper()
	err := store.InIngestTx(context.Background(), func(tx IngestTx) error {
		return tx.InsertAlert(context.Background(), a)
	})
	require.NoError(t, err)
}

func TestMemoryStore_SessionLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.CreateSession(ctx, newTestSession("session-1", "sensor-1", now)))

	session, err := store.GetOpenSessionBySensor(ctx, "sensor-1")
	require.NoError(t, err)
	assert.Equal(t, "session-1", session.SessionID)
	assert.True(t, session.IsOpen())

	endTime := now.Add(time.Hour)
	require.NoError(t, store.SetSessionEndTime(ctx, "session-1", endTime))

	// 关闭后不再是打开会话
	_, err = store.GetOpenSessionBySensor(ctx, "sensor-1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// 重复关闭
	err = store.SetSessionEndTime(ctx, "session-1", endTime.Add(time.Minute))
	assert.ErrorIs(t, err, models.ErrAlreadyClosed)

	session, err = store.GetSession(ctx, "session-1")
	require.NoError(t, err)
	require.NotNil(t, session.EndTime)
	assert.True(t, session.EndTime.Equal(endTime))
}

func TestMemoryStore_GetOpenSessionPicksLatest(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	old := newTestSession("session-old", "sensor-1", now.Add(-2*time.Hour))
	closedAt := now.Add(-time.Hour)
	old.EndTime = &closedAt
	require.NoError(t, store.CreateSession(ctx, old))
	require.NoError(t, store.CreateSession(ctx, newTestSession("session-new", "sensor-1", now)))

	session, err := store.GetOpenSessionBySensor(ctx, "sensor-1")
	require.NoError(t, err)
	assert.Equal(t, "session-new", session.SessionID)
}

func TestMemoryStore_DeleteSessionCascades(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.CreateSession(ctx, newTestSession("session-1", "sensor-1", now)))

	ingestReading(t, store, &models.Reading{
		ReadingID:  "reading-1",
		SessionID:  "session-1",
		SensorID:   "sensor-1",
		RecordedAt: now,
		CreatedAt:  now,
	})
	ingestAlert(t, store, &models.Alert{
		AlertID:     "alert-1",
		SessionID:   "session-1",
		ReadingID:   "reading-1",
		AlertType:   models.AlertTypeHighPressure,
		TriggeredAt: now,
		CreatedAt:   now,
	})

	require.NoError(t, store.DeleteSession(ctx, "session-1"))

	readings, err := store.ListReadingsBySensor(ctx, "sensor-1", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, readings, 0)

	_, err = store.GetAlert(ctx, "alert-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryStore_ListReadingsHalfOpenRange(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateSession(ctx, newTestSession("session-1", "sensor-1", base)))

	for i, at := range []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)} {
		ingestReading(t, store, &models.Reading{
			ReadingID:  string(rune('a' + i)),
			SessionID:  "session-1",
			SensorID:   "sensor-1",
			RecordedAt: at,
			CreatedAt:  at,
		})
	}

	// [base, base+2m)：包含下界，不包含上界
	readings, err := store.ListReadingsBySensor(ctx, "sensor-1", base, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, "a", readings[0].ReadingID)
	assert.Equal(t, "b", readings[1].ReadingID)
}

func TestMemoryStore_ListReadingsStableOrderOnEqualTimestamps(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.CreateSession(ctx, newTestSession("session-1", "sensor-1", now)))

	// 相同 recorded_at，按入库顺序稳定排序
	for _, id := range []string{"first", "second", "third"} {
		ingestReading(t, store, &models.Reading{
			ReadingID:  id,
			SessionID:  "session-1",
			SensorID:   "sensor-1",
			RecordedAt: now,
			CreatedAt:  now,
		})
	}

	readings, err := store.ListReadingsBySession(ctx, "session-1", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, readings, 3)
	assert.Equal(t, "first", readings[0].ReadingID)
	assert.Equal(t, "second", readings[1].ReadingID)
	assert.Equal(t, "third", readings[2].ReadingID)
}

func TestMemoryStore_IngestTxRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.CreateSession(ctx, newTestSession("session-1", "sensor-1", now)))

	err := store.InIngestTx(ctx, func(tx IngestTx) error {
		require.NoError(t, tx.InsertReading(ctx, &models.Reading{
			ReadingID:  "reading-1",
			SessionID:  "session-1",
			SensorID:   "sensor-1",
			RecordedAt: now,
			CreatedAt:  now,
		}))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	// 事务失败，读数不可见
	readings, listErr := store.ListReadingsBySensor(ctx, "sensor-1", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, listErr)
	assert.Len(t, readings, 0)
}

func TestMemoryStore_LatestUnacknowledgedAlert(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.CreateSession(ctx, newTestSession("session-1", "sensor-1", now)))

	ingestAlert(t, store, &models.Alert{
		AlertID:     "alert-old",
		SessionID:   "session-1",
		ReadingID:   "reading-1",
		AlertType:   models.AlertTypeHighPressure,
		TriggeredAt: now.Add(-10 * time.Minute),
		CreatedAt:   now,
	})
	ingestAlert(t, store, &models.Alert{
		AlertID:     "alert-new",
		SessionID:   "session-1",
		ReadingID:   "reading-2",
		AlertType:   models.AlertTypeHighPressure,
		TriggeredAt: now.Add(-2 * time.Minute),
		CreatedAt:   now,
	})

	err := store.InIngestTx(ctx, func(tx IngestTx) error {
		latest, err := tx.LatestUnacknowledgedAlert(ctx, "session-1", models.AlertTypeHighPressure)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "alert-new", latest.AlertID)

		// 其它类型没有未确认报警
		none, err := tx.LatestUnacknowledgedAlert(ctx, "session-1", models.AlertTypeSensorFault)
		require.NoError(t, err)
		assert.Nil(t, none)
		return nil
	})
	require.NoError(t, err)

	// 确认后不再参与去重
	require.NoError(t, store.AcknowledgeAlert(ctx, "alert-new", "nurse-anna", now))
	err = store.InIngestTx(ctx, func(tx IngestTx) error {
		latest, err := tx.LatestUnacknowledgedAlert(ctx, "session-1", models.AlertTypeHighPressure)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "alert-old", latest.AlertID)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_AcknowledgeAlert(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.CreateSession(ctx, newTestSession("session-1", "sensor-1", now)))
	ingestAlert(t, store, &models.Alert{
		AlertID:     "alert-1",
		SessionID:   "session-1",
		ReadingID:   "reading-1",
		AlertType:   models.AlertTypeHighPressure,
		TriggeredAt: now,
		CreatedAt:   now,
	})

	ackAt := now.Add(time.Minute)
	require.NoError(t, store.AcknowledgeAlert(ctx, "alert-1", "nurse-anna", ackAt))

	alert, err := store.GetAlert(ctx, "alert-1")
	require.NoError(t, err)
	assert.True(t, alert.Acknowledged)
	require.NotNil(t, alert.AcknowledgedBy)
	assert.Equal(t, "nurse-anna", *alert.AcknowledgedBy)
	require.NotNil(t, alert.AcknowledgedAt)
	assert.True(t, alert.AcknowledgedAt.Equal(ackAt))

	// 重复确认
	err = store.AcknowledgeAlert(ctx, "alert-1", "nurse-bob", ackAt.Add(time.Minute))
	assert.ErrorIs(t, err, models.ErrAlreadyAcknowledged)

	// 首次确认的内容不变
	alert, err = store.GetAlert(ctx, "alert-1")
	require.NoError(t, err)
	assert.Equal(t, "nurse-anna", *alert.AcknowledgedBy)
}

func TestMemoryStore_UpdateReadingAlertStatusInTx(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.CreateSession(ctx, newTestSession("session-1", "sensor-1", now)))

	err := store.InIngestTx(ctx, func(tx IngestTx) error {
		if err := tx.InsertReading(ctx, &models.Reading{
			ReadingID:   "reading-1",
			SessionID:   "session-1",
			SensorID:    "sensor-1",
			RecordedAt:  now,
			AlertStatus: models.AlertStatusNone,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		return tx.UpdateReadingAlertStatus(ctx, "reading-1", models.AlertStatusCritical)
	})
	require.NoError(t, err)

	readings, err := store.ListReadingsBySession(ctx, "session-1", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, models.AlertStatusCritical, readings[0].AlertStatus)
}
