package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bedwatch-engine/internal/models"
)

const alertColumns = `
	alert_id,
	session_id,
	reading_id,
	alert_type,
	threshold_value,
	actual_value,
	triggered_at,
	acknowledged,
	acknowledged_by,
	acknowledged_at,
	created_at`

// insertAlert 插入报警
func insertAlert(ctx context.Context, q querier, a *models.Alert) error {
	if a == nil {
		return fmt.Errorf("alert is required")
	}
	if a.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if a.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if a.ReadingID == "" {
		return fmt.Errorf("reading_id is required")
	}
	if !a.AlertType.Valid() {
		return fmt.Errorf("invalid alert type: %s", a.AlertType)
	}

	query := `
		INSERT INTO alerts (
			alert_id,
			session_id,
			reading_id,
			alert_type,
			threshold_value,
			actual_value,
			triggered_at,
			acknowledged,
			acknowledged_by,
			acknowledged_at,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := q.ExecContext(ctx, query,
		a.AlertID,
		a.SessionID,
		a.ReadingID,
		string(a.AlertType),
		a.ThresholdValue,
		a.ActualValue,
		a.TriggeredAt,
		a.Acknowledged,
		a.AcknowledgedBy,
		a.AcknowledgedAt,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// latestUnacknowledgedAlert 会话内同类型最近一条未确认报警（无则返回 (nil, nil)）
func latestUnacknowledgedAlert(ctx context.Context, q querier, sessionID string, alertType models.AlertType) (*models.Alert, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	query := `
		SELECT` + alertColumns + `
		FROM alerts
		WHERE session_id = $1
		  AND alert_type = $2
		  AND acknowledged = FALSE
		ORDER BY triggered_at DESC
		LIMIT 1
	`

	alert, err := scanAlertRow(q.QueryRowContext(ctx, query, sessionID, string(alertType)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 静默窗口内没有可去重的报警
		}
		return nil, fmt.Errorf("failed to query latest unacknowledged alert: %w", err)
	}

	return alert, nil
}

func (t *pgIngestTx) InsertAlert(ctx context.Context, a *models.Alert) error {
	return insertAlert(ctx, t.tx, a)
}

func (t *pgIngestTx) LatestUnacknowledgedAlert(ctx context.Context, sessionID string, alertType models.AlertType) (*models.Alert, error) {
	return latestUnacknowledgedAlert(ctx, t.tx, sessionID, alertType)
}

// GetAlert 按 id 获取报警
func (s *PostgresStore) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `
		SELECT` + alertColumns + `
		FROM alerts
		WHERE alert_id = $1
	`

	alert, err := scanAlertRow(s.db.QueryRowContext(ctx, query, alertID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: alert %s", models.ErrNotFound, alertID)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return alert, nil
}

// AcknowledgeAlert 原子确认：只更新未确认的行，三个字段一次写入
func (s *PostgresStore) AcknowledgeAlert(ctx context.Context, alertID, actor string, at time.Time) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if actor == "" {
		return fmt.Errorf("actor is required")
	}

	query := `
		UPDATE alerts
		SET acknowledged = TRUE,
		    acknowledged_by = $2,
		    acknowledged_at = $3
		WHERE alert_id = $1
		  AND acknowledged = FALSE
	`

	result, err := s.db.ExecContext(ctx, query, alertID, actor, at)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// 区分"不存在"与"已确认"
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM alerts WHERE alert_id = $1)`,
			alertID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check alert existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: alert %s", models.ErrNotFound, alertID)
		}
		return fmt.Errorf("%w: alert %s", models.ErrAlreadyAcknowledged, alertID)
	}

	return nil
}

// ListAlertsBySensor 传感器在 [from, to) 内触发的报警（经会话归属）
func (s *PostgresStore) ListAlertsBySensor(ctx context.Context, sensorID string, from, to time.Time, acknowledged *bool) ([]*models.Alert, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("sensor_id is required")
	}

	query := `
		SELECT
			a.alert_id,
			a.session_id,
			a.reading_id,
			a.alert_type,
			a.threshold_value,
			a.actual_value,
			a.triggered_at,
			a.acknowledged,
			a.acknowledged_by,
			a.acknowledged_at,
			a.created_at
		FROM alerts a
		JOIN monitoring_sessions ms ON a.session_id = ms.session_id
		WHERE ms.sensor_id = $1
		  AND a.triggered_at >= $2
		  AND a.triggered_at < $3
	`
	args := []interface{}{sensorID, from, to}
	if acknowledged != nil {
		query += ` AND a.acknowledged = $4`
		args = append(args, *acknowledged)
	}
	query += ` ORDER BY a.triggered_at ASC, a.created_at ASC`

	return s.queryAlerts(ctx, query, args...)
}

// ListAlertsBySession 会话在 [from, to) 内触发的报警
func (s *PostgresStore) ListAlertsBySession(ctx context.Context, sessionID string, from, to time.Time, acknowledged *bool) ([]*models.Alert, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	query := `
		SELECT` + alertColumns + `
		FROM alerts
		WHERE session_id = $1
		  AND triggered_at >= $2
		  AND triggered_at < $3
	`
	args := []interface{}{sessionID, from, to}
	if acknowledged != nil {
		query += ` AND acknowledged = $4`
		args = append(args, *acknowledged)
	}
	query += ` ORDER BY triggered_at ASC, created_at ASC`

	return s.queryAlerts(ctx, query, args...)
}

func (s *PostgresStore) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]*models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}

// scanner *sql.Row 与 *sql.Rows 的公共 Scan 接口
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlertRow(row *sql.Row) (*models.Alert, error) {
	return scanAlert(row)
}

func scanAlert(sc scanner) (*models.Alert, error) {
	var a models.Alert
	var alertType string
	var ackBy sql.NullString
	var ackAt sql.NullTime

	err := sc.Scan(
		&a.AlertID,
		&a.SessionID,
		&a.ReadingID,
		&alertType,
		&a.ThresholdValue,
		&a.ActualValue,
		&a.TriggeredAt,
		&a.Acknowledged,
		&ackBy,
		&ackAt,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.AlertType = models.AlertType(alertType)
	if ackBy.Valid {
		a.AcknowledgedBy = &ackBy.String
	}
	if ackAt.Valid {
		a.AcknowledgedAt = &ackAt.Time
	}

	return &a, nil
}
