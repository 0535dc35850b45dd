package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bedwatch-engine/internal/derive"
	"bedwatch-engine/internal/evaluator"
	"bedwatch-engine/internal/models"
	"bedwatch-engine/internal/repository"
)

// IngestionPipeline 摄取管线：派生 → 评估 → 单事务落库
// 同一传感器的摄取串行化；矩阵非法或无打开会话时不落任何数据
type IngestionPipeline struct {
	store            repository.Store
	thresholds       repository.ThresholdRepository
	sessions         *SessionManager
	alerts           *AlertController
	locks            *sensorLocks
	contactThreshold float64
	retryAttempts    int
	retryBackoff     time.Duration
	metrics          *Metrics
	logger           *zap.Logger
}

// IngestResult 一次摄取的结果
type IngestResult struct {
	ReadingID      string             `json:"reading_id"`
	SessionID      string             `json:"session_id"`
	Metrics        derive.Metrics     `json:"metrics"`
	AlertStatus    models.AlertStatus `json:"alert_status"`
	RaisedAlertIDs []string           `json:"raised_alert_ids"`
	Suppressed     int                `json:"suppressed"`
}

// Ingest 摄取一条压力读数
//
// 处理流程：
// 1. 派生指标（矩阵非法时直接拒绝，不产生任何写入）
// 2. 传感器锁内解析打开的会话
// 3. 读取阈值规则并评估越界
// 4. 单事务写入：读数 → 报警（静默窗口去重） → 回填 alert_status
func (p *IngestionPipeline) Ingest(ctx context.Context, sensorID string, recordedAt time.Time, matrix models.PressureMatrix) (*IngestResult, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("sensor_id is required")
	}
	startTime := time.Now()

	// 1. 派生指标
	metrics, err := derive.DeriveMetrics(matrix, p.contactThreshold)
	if err != nil {
		p.metrics.IncrementRejected()
		return nil, err
	}

	// 2. 同一传感器串行化
	unlock := p.locks.Lock(sensorID)
	defer unlock()

	session, err := p.sessions.ResolveOpenSession(ctx, sensorID)
	if err != nil {
		if errors.Is(err, models.ErrNoOpenSession) {
			p.metrics.IncrementRejected()
		}
		return nil, err
	}

	// 3. 阈值评估（规则读取在事务外，失败不影响已落库数据）
	rules, err := p.thresholds.ListRules(ctx, sensorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load threshold rules: %w", err)
	}
	breaches := evaluator.Evaluate(metrics, rules)

	reading := &models.Reading{
		ReadingID:      uuid.New().String(),
		SessionID:      session.SessionID,
		SensorID:       sensorID,
		RecordedAt:     recordedAt,
		Matrix:         matrix,
		PeakPressure:   metrics.PeakPressure,
		ContactAreaPct: metrics.ContactAreaPct,
		AlertStatus:    models.AlertStatusNone,
		CreatedAt:      time.Now(),
	}

	// 4. 单事务写入（瞬时存储错误有限重试，领域错误不重试）
	var result *IngestResult
	err = p.withRetry(ctx, func() error {
		return p.store.InIngestTx(ctx, func(tx repository.IngestTx) error {
			if err := tx.InsertReading(ctx, reading); err != nil {
				return err
			}

			status := models.AlertStatusNone
			raisedIDs := []string{}
			suppressed := 0

			for _, breach := range breaches {
				raised, err := p.alerts.Raise(ctx, tx, session.SessionID, reading.ReadingID, breach, recordedAt)
				if err != nil {
					return err
				}
				// 被去重的越界同样参与严重度聚合
				status = models.MaxAlertStatus(status, raised.Severity)
				if raised.Suppressed {
					suppressed++
				} else {
					raisedIDs = append(raisedIDs, raised.Alert.AlertID)
				}
			}

			if status != models.AlertStatusNone {
				if err := tx.UpdateReadingAlertStatus(ctx, reading.ReadingID, status); err != nil {
					return err
				}
			}

			result = &IngestResult{
				ReadingID:      reading.ReadingID,
				SessionID:      session.SessionID,
				Metrics:        metrics,
				AlertStatus:    status,
				RaisedAlertIDs: raisedIDs,
				Suppressed:     suppressed,
			}
			return nil
		})
	})
	if err != nil {
		p.metrics.IncrementFailed()
		return nil, err
	}

	p.metrics.IncrementIngested(time.Since(startTime), len(result.RaisedAlertIDs), result.Suppressed)

	p.logger.Info("Reading ingested",
		zap.String("reading_id", result.ReadingID),
		zap.String("sensor_id", sensorID),
		zap.String("session_id", result.SessionID),
		zap.Float64("peak_pressure", metrics.PeakPressure),
		zap.Float64("contact_area_pct", metrics.ContactAreaPct),
		zap.String("alert_status", string(result.AlertStatus)),
		zap.Int("alerts_raised", len(result.RaisedAlertIDs)),
		zap.Int("alerts_suppressed", result.Suppressed),
	)

	return result, nil
}

// withRetry 指数退避重试瞬时存储错误
// 领域错误直接返回；每次尝试前检查 ctx 是否已取消
func (p *IngestionPipeline) withRetry(ctx context.Context, fn func() error) error {
	backoff := p.retryBackoff
	var lastErr error

	for attempt := 0; attempt < p.retryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if isDomainError(lastErr) {
			return lastErr
		}

		if attempt < p.retryAttempts-1 {
			p.metrics.IncrementRetries()
			p.logger.Warn("Transient storage error, retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	return fmt.Errorf("ingest failed after %d attempts: %w", p.retryAttempts, lastErr)
}

// isDomainError 领域不变量错误（重试不可能成功）
func isDomainError(err error) bool {
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrNoOpenSession) ||
		errors.Is(err, models.ErrConflictingSession) ||
		errors.Is(err, models.ErrAlreadyClosed) ||
		errors.Is(err, models.ErrInvalidEndTime) ||
		errors.Is(err, models.ErrAlreadyAcknowledged) ||
		errors.Is(err, models.ErrInvalidRange) ||
		errors.Is(err, derive.ErrInvalidMatrix)
}
