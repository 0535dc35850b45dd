package repository

import (
	"context"
	"time"

	"bedwatch-engine/internal/models"
)

// Store 持久层入口（PostgreSQL / 内存两种实现）
// 领域不变量相关的失败用 models 哨兵错误返回（ErrNotFound 等），
// 其余错误视为瞬时存储错误，由上层决定是否重试
type Store interface {
	// ========== 会话 ==========

	// CreateSession 创建会话（打开状态的唯一性由引擎在传感器锁内检查）
	CreateSession(ctx context.Context, s *models.MonitoringSession) error

	// GetSession 按 id 获取会话
	GetSession(ctx context.Context, sessionID string) (*models.MonitoringSession, error)

	// GetOpenSessionBySensor 获取传感器当前打开的会话（无则返回 models.ErrNotFound）
	GetOpenSessionBySensor(ctx context.Context, sensorID string) (*models.MonitoringSession, error)

	// SetSessionEndTime 关闭会话（已关闭返回 models.ErrAlreadyClosed）
	SetSessionEndTime(ctx context.Context, sessionID string, endTime time.Time) error

	// DeleteSession 删除会话并级联删除其读数和报警（管理操作，引擎不调用）
	DeleteSession(ctx context.Context, sessionID string) error

	// ========== 读数 / 报警查询（半开区间 [from, to)） ==========

	ListReadingsBySensor(ctx context.Context, sensorID string, from, to time.Time) ([]*models.Reading, error)
	ListReadingsBySession(ctx context.Context, sessionID string, from, to time.Time) ([]*models.Reading, error)

	// acknowledged 为 nil 时不过滤确认状态
	ListAlertsBySensor(ctx context.Context, sensorID string, from, to time.Time, acknowledged *bool) ([]*models.Alert, error)
	ListAlertsBySession(ctx context.Context, sessionID string, from, to time.Time, acknowledged *bool) ([]*models.Alert, error)

	// ========== 报警确认 ==========

	GetAlert(ctx context.Context, alertID string) (*models.Alert, error)

	// AcknowledgeAlert 原子地写入确认三元组（acknowledged / acknowledged_by / acknowledged_at）
	// 已确认返回 models.ErrAlreadyAcknowledged，不存在返回 models.ErrNotFound
	AcknowledgeAlert(ctx context.Context, alertID, actor string, at time.Time) error

	// ========== 摄取事务 ==========

	// InIngestTx 在单个存储事务内执行 fn：要么全部提交，要么全部回滚
	InIngestTx(ctx context.Context, fn func(tx IngestTx) error) error
}

// IngestTx 摄取事务内可用的操作集合
type IngestTx interface {
	// InsertReading 插入读数并回填 r.Seq（入库顺序）
	InsertReading(ctx context.Context, r *models.Reading) error

	// UpdateReadingAlertStatus 回填读数的报警状态（同一事务内对读数唯一允许的变更）
	UpdateReadingAlertStatus(ctx context.Context, readingID string, status models.AlertStatus) error

	// LatestUnacknowledgedAlert 会话内同类型最近一条未确认报警（无则返回 (nil, nil)，用于静默窗口去重）
	LatestUnacknowledgedAlert(ctx context.Context, sessionID string, alertType models.AlertType) (*models.Alert, error)

	// InsertAlert 插入报警
	InsertAlert(ctx context.Context, a *models.Alert) error
}

// ThresholdRepository 阈值配置源（按传感器下发，缺省回落到全局配置）
type ThresholdRepository interface {
	// ListRules 返回按 position 升序的阈值规则
	ListRules(ctx context.Context, sensorID string) ([]models.ThresholdRule, error)
}
