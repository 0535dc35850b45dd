package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"bedwatch-engine/internal/models"
)

// PostgresThresholdRepository 阈值配置仓库（sensor_thresholds 表）
// 传感器专属配置优先；没有专属配置时回落到全局配置（sensor_id IS NULL）
type PostgresThresholdRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresThresholdRepository 创建阈值配置仓库
func NewPostgresThresholdRepository(db *sql.DB, logger *zap.Logger) *PostgresThresholdRepository {
	return &PostgresThresholdRepository{
		db:     db,
		logger: logger,
	}
}

// ListRules 返回按 position 升序的阈值规则
func (r *PostgresThresholdRepository) ListRules(ctx context.Context, sensorID string) ([]models.ThresholdRule, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("sensor_id is required")
	}

	rules, err := r.queryRules(ctx, `
		SELECT alert_type, metric, operator, threshold_value, position
		FROM sensor_thresholds
		WHERE sensor_id = $1
		ORDER BY position ASC
	`, sensorID)
	if err != nil {
		return nil, err
	}

	if len(rules) > 0 {
		return rules, nil
	}

	// 回落到全局配置
	return r.queryRules(ctx, `
		SELECT alert_type, metric, operator, threshold_value, position
		FROM sensor_thresholds
		WHERE sensor_id IS NULL
		ORDER BY position ASC
	`)
}

func (r *PostgresThresholdRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]models.ThresholdRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query threshold rules: %w", err)
	}
	defer rows.Close()

	rules := []models.ThresholdRule{}
	for rows.Next() {
		var rule models.ThresholdRule
		var alertType, metric, operator string

		err := rows.Scan(&alertType, &metric, &operator, &rule.Value, &rule.Position)
		if err != nil {
			return nil, fmt.Errorf("failed to scan threshold rule: %w", err)
		}

		rule.AlertType = models.AlertType(alertType)
		rule.Metric = models.MetricKind(metric)
		rule.Operator = models.CompareOp(operator)

		// 非法配置行跳过并告警，不让一条脏配置拖垮整个评估
		if !rule.AlertType.Valid() || !rule.Metric.Valid() || !rule.Operator.Valid() {
			r.logger.Warn("Skipping invalid threshold rule",
				zap.String("alert_type", alertType),
				zap.String("metric", metric),
				zap.String("operator", operator),
			)
			continue
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threshold rules: %w", err)
	}

	return rules, nil
}
