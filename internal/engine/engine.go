package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bedwatch-engine/internal/models"
	"bedwatch-engine/internal/repository"
)

// Config 引擎调优参数
type Config struct {
	ContactThreshold float64       // 接触判定阈值（严格大于）
	QuietWindow      time.Duration // 同类型未确认报警的静默窗口
	RetryAttempts    int           // 瞬时存储错误的最大尝试次数
	RetryBackoff     time.Duration // 首次重试退避，指数递增
	// 报警类型 → 严重度，未配置的类型按 warning 处理
	Severity map[models.AlertType]models.AlertStatus
}

func (c *Config) applyDefaults() {
	if c.QuietWindow <= 0 {
		c.QuietWindow = 5 * time.Minute
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.Severity == nil {
		c.Severity = map[models.AlertType]models.AlertStatus{
			models.AlertTypeHighPressure:      models.AlertStatusCritical,
			models.AlertTypeSensorFault:       models.AlertStatusWarning,
			models.AlertTypeProlongedExposure: models.AlertStatusWarning,
		}
	}
}

// Engine 压力监测引擎：会话管理 + 摄取管线 + 报警生命周期
type Engine struct {
	sessions *SessionManager
	pipeline *IngestionPipeline
	alerts   *AlertController
	metrics  *Metrics
}

// New 创建引擎
func New(store repository.Store, thresholds repository.ThresholdRepository, cfg Config, logger *zap.Logger) *Engine {
	cfg.applyDefaults()

	locks := newSensorLocks()
	metrics := &Metrics{StartTime: time.Now()}
	sessions := NewSessionManager(store, locks, logger)
	alerts := NewAlertController(store, cfg.QuietWindow, cfg.Severity, logger)
	pipeline := &IngestionPipeline{
		store:            store,
		thresholds:       thresholds,
		sessions:         sessions,
		alerts:           alerts,
		locks:            locks,
		contactThreshold: cfg.ContactThreshold,
		retryAttempts:    cfg.RetryAttempts,
		retryBackoff:     cfg.RetryBackoff,
		metrics:          metrics,
		logger:           logger,
	}

	return &Engine{
		sessions: sessions,
		pipeline: pipeline,
		alerts:   alerts,
		metrics:  metrics,
	}
}

// ========== 会话 ==========

func (e *Engine) OpenSession(ctx context.Context, params OpenSessionParams) (*models.MonitoringSession, error) {
	return e.sessions.OpenSession(ctx, params)
}

func (e *Engine) CloseSession(ctx context.Context, sessionID string, endTime time.Time) (*models.MonitoringSession, error) {
	return e.sessions.CloseSession(ctx, sessionID, endTime)
}

func (e *Engine) GetSession(ctx context.Context, sessionID string) (*models.MonitoringSession, error) {
	return e.sessions.GetSession(ctx, sessionID)
}

func (e *Engine) ResolveOpenSession(ctx context.Context, sensorID string) (*models.MonitoringSession, error) {
	return e.sessions.ResolveOpenSession(ctx, sensorID)
}

func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	return e.sessions.DeleteSession(ctx, sessionID)
}

// ========== 摄取 ==========

func (e *Engine) Ingest(ctx context.Context, sensorID string, recordedAt time.Time, matrix models.PressureMatrix) (*IngestResult, error) {
	return e.pipeline.Ingest(ctx, sensorID, recordedAt, matrix)
}

// ========== 报警 ==========

func (e *Engine) AcknowledgeAlert(ctx context.Context, alertID, actor string, at time.Time) (*models.Alert, error) {
	return e.alerts.Acknowledge(ctx, alertID, actor, at)
}

func (e *Engine) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	return e.alerts.GetAlert(ctx, alertID)
}

// MetricsSnapshot 当前运行指标
func (e *Engine) MetricsSnapshot() Metrics {
	return e.metrics.GetSnapshot()
}
