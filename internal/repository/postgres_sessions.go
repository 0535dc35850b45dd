package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bedwatch-engine/internal/models"
)

const sessionColumns = `
	session_id,
	sensor_id,
	session_name,
	patient_id,
	start_time,
	end_time,
	notes,
	created_at`

// CreateSession 创建会话
func (s *PostgresStore) CreateSession(ctx context.Context, session *models.MonitoringSession) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	if session.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if session.SensorID == "" {
		return fmt.Errorf("sensor_id is required")
	}

	query := `
		INSERT INTO monitoring_sessions (
			session_id,
			sensor_id,
			session_name,
			patient_id,
			start_time,
			end_time,
			notes,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.SessionID,
		session.SensorID,
		session.Name,
		session.PatientID,
		session.StartTime,
		session.EndTime,
		session.Notes,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession 按 id 获取会话
func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*models.MonitoringSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	query := `
		SELECT` + sessionColumns + `
		FROM monitoring_sessions
		WHERE session_id = $1
	`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: session %s", models.ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// GetOpenSessionBySensor 获取传感器当前打开的会话
func (s *PostgresStore) GetOpenSessionBySensor(ctx context.Context, sensorID string) (*models.MonitoringSession, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("sensor_id is required")
	}

	query := `
		SELECT` + sessionColumns + `
		FROM monitoring_sessions
		WHERE sensor_id = $1
		  AND end_time IS NULL
		ORDER BY start_time DESC
		LIMIT 1
	`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, sensorID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: open session for sensor %s", models.ErrNotFound, sensorID)
		}
		return nil, fmt.Errorf("failed to get open session: %w", err)
	}

	return session, nil
}

// SetSessionEndTime 关闭会话（只允许打开 → 关闭的一次性迁移）
func (s *PostgresStore) SetSessionEndTime(ctx context.Context, sessionID string, endTime time.Time) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	query := `
		UPDATE monitoring_sessions
		SET end_time = $2
		WHERE session_id = $1
		  AND end_time IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, sessionID, endTime)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// 区分"不存在"与"已关闭"
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM monitoring_sessions WHERE session_id = $1)`,
			sessionID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check session existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: session %s", models.ErrNotFound, sessionID)
		}
		return fmt.Errorf("%w: session %s", models.ErrAlreadyClosed, sessionID)
	}

	return nil
}

// DeleteSession 删除会话（读数和报警由外键级联删除）
func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM monitoring_sessions WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: session %s", models.ErrNotFound, sessionID)
	}

	return nil
}

// scanSession 扫描单行会话记录
func scanSession(row *sql.Row) (*models.MonitoringSession, error) {
	var session models.MonitoringSession
	var patientID, notes sql.NullString
	var endTime sql.NullTime

	err := row.Scan(
		&session.SessionID,
		&session.SensorID,
		&session.Name,
		&patientID,
		&session.StartTime,
		&endTime,
		&notes,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if patientID.Valid {
		session.PatientID = &patientID.String
	}
	if endTime.Valid {
		session.EndTime = &endTime.Time
	}
	if notes.Valid {
		session.Notes = &notes.String
	}

	return &session, nil
}
