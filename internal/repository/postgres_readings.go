package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bedwatch-engine/internal/models"
)

const readingColumns = `
	reading_id,
	session_id,
	sensor_id,
	recorded_at,
	matrix,
	peak_pressure,
	contact_area_pct,
	alert_status,
	reading_seq,
	created_at`

// insertReading 插入读数，回填 reading_seq（bigserial 入库顺序）
func insertReading(ctx context.Context, q querier, r *models.Reading) error {
	if r == nil {
		return fmt.Errorf("reading is required")
	}
	if r.ReadingID == "" {
		return fmt.Errorf("reading_id is required")
	}
	if r.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	matrixJSON, err := json.Marshal(r.Matrix)
	if err != nil {
		return fmt.Errorf("failed to marshal matrix: %w", err)
	}

	query := `
		INSERT INTO readings (
			reading_id,
			session_id,
			sensor_id,
			recorded_at,
			matrix,
			peak_pressure,
			contact_area_pct,
			alert_status,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		RETURNING reading_seq
	`

	err = q.QueryRowContext(ctx, query,
		r.ReadingID,
		r.SessionID,
		r.SensorID,
		r.RecordedAt,
		matrixJSON,
		r.PeakPressure,
		r.ContactAreaPct,
		string(r.AlertStatus),
		r.CreatedAt,
	).Scan(&r.Seq)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}

	return nil
}

// updateReadingAlertStatus 回填读数的报警状态
func updateReadingAlertStatus(ctx context.Context, q querier, readingID string, status models.AlertStatus) error {
	if readingID == "" {
		return fmt.Errorf("reading_id is required")
	}
	if !status.Valid() {
		return fmt.Errorf("invalid alert status: %s", status)
	}

	result, err := q.ExecContext(ctx,
		`UPDATE readings SET alert_status = $2 WHERE reading_id = $1`,
		readingID, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update reading alert status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: reading %s", models.ErrNotFound, readingID)
	}

	return nil
}

func (t *pgIngestTx) InsertReading(ctx context.Context, r *models.Reading) error {
	return insertReading(ctx, t.tx, r)
}

func (t *pgIngestTx) UpdateReadingAlertStatus(ctx context.Context, readingID string, status models.AlertStatus) error {
	return updateReadingAlertStatus(ctx, t.tx, readingID, status)
}

// ListReadingsBySensor 传感器在 [from, to) 内的读数，时间升序，时间相同按入库顺序
func (s *PostgresStore) ListReadingsBySensor(ctx context.Context, sensorID string, from, to time.Time) ([]*models.Reading, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("sensor_id is required")
	}

	query := `
		SELECT` + readingColumns + `
		FROM readings
		WHERE sensor_id = $1
		  AND recorded_at >= $2
		  AND recorded_at < $3
		ORDER BY recorded_at ASC, reading_seq ASC
	`

	return s.queryReadings(ctx, query, sensorID, from, to)
}

// ListReadingsBySession 会话在 [from, to) 内的读数
func (s *PostgresStore) ListReadingsBySession(ctx context.Context, sessionID string, from, to time.Time) ([]*models.Reading, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	query := `
		SELECT` + readingColumns + `
		FROM readings
		WHERE session_id = $1
		  AND recorded_at >= $2
		  AND recorded_at < $3
		ORDER BY recorded_at ASC, reading_seq ASC
	`

	return s.queryReadings(ctx, query, sessionID, from, to)
}

func (s *PostgresStore) queryReadings(ctx context.Context, query string, args ...interface{}) ([]*models.Reading, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	readings := []*models.Reading{}
	for rows.Next() {
		var r models.Reading
		var matrixJSON []byte
		var status string

		err := rows.Scan(
			&r.ReadingID,
			&r.SessionID,
			&r.SensorID,
			&r.RecordedAt,
			&matrixJSON,
			&r.PeakPressure,
			&r.ContactAreaPct,
			&status,
			&r.Seq,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}

		if len(matrixJSON) > 0 {
			if err := json.Unmarshal(matrixJSON, &r.Matrix); err != nil {
				return nil, fmt.Errorf("failed to unmarshal matrix for reading %s: %w", r.ReadingID, err)
			}
		}
		r.AlertStatus = models.AlertStatus(status)

		readings = append(readings, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}

	return readings, nil
}
