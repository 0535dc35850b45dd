package query

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bedwatch-engine/internal/models"
	"bedwatch-engine/internal/repository"
)

// QueryEngine 历史数据查询：读数 / 报警的时间区间检索与降采样
// 所有区间都是半开区间 [from, to)
type QueryEngine struct {
	store  repository.Store
	logger *zap.Logger
}

// NewQueryEngine 创建查询引擎
func NewQueryEngine(store repository.Store, logger *zap.Logger) *QueryEngine {
	return &QueryEngine{
		store:  store,
		logger: logger,
	}
}

// validateRange 校验区间（from 必须早于 to）
func validateRange(from, to time.Time) error {
	if !from.Before(to) {
		return fmt.Errorf("%w: from %s is not before to %s",
			models.ErrInvalidRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return nil
}

// ReadingsBySensor 传感器在 [from, to) 内的读数
// bucket > 0 时按桶降采样，每桶保留峰值压力最高的一条（并列取最早）
func (q *QueryEngine) ReadingsBySensor(ctx context.Context, sensorID string, from, to time.Time, bucket time.Duration) ([]*models.Reading, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("sensor_id is required")
	}
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	readings, err := q.store.ListReadingsBySensor(ctx, sensorID, from, to)
	if err != nil {
		return nil, err
	}
	return Downsample(readings, from, bucket), nil
}

// ReadingsBySession 会话在 [from, to) 内的读数
func (q *QueryEngine) ReadingsBySession(ctx context.Context, sessionID string, from, to time.Time, bucket time.Duration) ([]*models.Reading, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	readings, err := q.store.ListReadingsBySession(ctx, sessionID, from, to)
	if err != nil {
		return nil, err
	}
	return Downsample(readings, from, bucket), nil
}

// AlertsBySensor 传感器在 [from, to) 内触发的报警
// acknowledged 为 nil 时不过滤确认状态
func (q *QueryEngine) AlertsBySensor(ctx context.Context, sensorID string, from, to time.Time, acknowledged *bool) ([]*models.Alert, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("sensor_id is required")
	}
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	return q.store.ListAlertsBySensor(ctx, sensorID, from, to, acknowledged)
}

// AlertsBySession 会话在 [from, to) 内触发的报警
func (q *QueryEngine) AlertsBySession(ctx context.Context, sessionID string, from, to time.Time, acknowledged *bool) ([]*models.Alert, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	return q.store.ListAlertsBySession(ctx, sessionID, from, to, acknowledged)
}

// Downsample 按时间桶降采样
// 桶边界从 from 起每 bucket 一个；每桶保留峰值压力最高的读数，
// 峰值并列时保留最早的一条。bucket <= 0 时原样返回。
// 入参要求按 recorded_at 升序（存储层查询的返回顺序）。
func Downsample(readings []*models.Reading, from time.Time, bucket time.Duration) []*models.Reading {
	if bucket <= 0 || len(readings) == 0 {
		return readings
	}

	out := []*models.Reading{}
	currentBucket := int64(-1)
	var representative *models.Reading

	for _, r := range readings {
		b := int64(r.RecordedAt.Sub(from) / bucket)
		if b != currentBucket {
			if representative != nil {
				out = append(out, representative)
			}
			currentBucket = b
			representative = r
			continue
		}
		// 严格大于：并列保留最早入桶的一条
		if r.PeakPressure > representative.PeakPressure {
			representative = r
		}
	}
	if representative != nil {
		out = append(out, representative)
	}

	return out
}
