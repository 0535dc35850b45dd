package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bedwatch-engine/internal/models"
	"bedwatch-engine/internal/repository"
)

// SessionManager 会话生命周期管理
// "一个传感器至多一个打开会话"的不变量靠传感器锁内的检查-创建保证
type SessionManager struct {
	store  repository.Store
	locks  *sensorLocks
	logger *zap.Logger
}

// NewSessionManager 创建会话管理器
func NewSessionManager(store repository.Store, locks *sensorLocks, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		store:  store,
		locks:  locks,
		logger: logger,
	}
}

// OpenSessionParams 打开会话的入参
type OpenSessionParams struct {
	SensorID  string
	Name      string
	PatientID *string
	StartTime time.Time // 零值表示当前时间
	Notes     *string
}

// OpenSession 打开新会话
// 传感器已有打开会话时返回 models.ErrConflictingSession
func (m *SessionManager) OpenSession(ctx context.Context, params OpenSessionParams) (*models.MonitoringSession, error) {
	if params.SensorID == "" {
		return nil, fmt.Errorf("sensor_id is required")
	}
	if params.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	startTime := params.StartTime
	if startTime.IsZero() {
		startTime = time.Now()
	}

	// 传感器锁内检查-创建，保证打开会话的唯一性
	unlock := m.locks.Lock(params.SensorID)
	defer unlock()

	existing, err := m.store.GetOpenSessionBySensor(ctx, params.SensorID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to check open session: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: sensor %s has open session %s",
			models.ErrConflictingSession, params.SensorID, existing.SessionID)
	}

	session := &models.MonitoringSession{
		SessionID: uuid.New().String(),
		SensorID:  params.SensorID,
		Name:      params.Name,
		PatientID: params.PatientID,
		StartTime: startTime,
		Notes:     params.Notes,
		CreatedAt: time.Now(),
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.logger.Info("Session opened",
		zap.String("session_id", session.SessionID),
		zap.String("sensor_id", session.SensorID),
		zap.Time("start_time", session.StartTime),
	)

	return session, nil
}

// CloseSession 关闭会话（零值 endTime 表示当前时间）
// 已关闭返回 models.ErrAlreadyClosed；endTime 早于 startTime 返回 models.ErrInvalidEndTime
func (m *SessionManager) CloseSession(ctx context.Context, sessionID string, endTime time.Time) (*models.MonitoringSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if endTime.IsZero() {
		endTime = time.Now()
	}

	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// 锁内重读，避免与同传感器的摄取和并发关闭交错
	unlock := m.locks.Lock(session.SensorID)
	defer unlock()

	session, err = m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsOpen() {
		return nil, fmt.Errorf("%w: session %s", models.ErrAlreadyClosed, sessionID)
	}
	if endTime.Before(session.StartTime) {
		return nil, fmt.Errorf("%w: end %s before start %s",
			models.ErrInvalidEndTime, endTime.Format(time.RFC3339), session.StartTime.Format(time.RFC3339))
	}

	if err := m.store.SetSessionEndTime(ctx, sessionID, endTime); err != nil {
		return nil, err
	}

	session.EndTime = &endTime

	m.logger.Info("Session closed",
		zap.String("session_id", sessionID),
		zap.String("sensor_id", session.SensorID),
		zap.Time("end_time", endTime),
	)

	return session, nil
}

// GetSession 按 id 获取会话
func (m *SessionManager) GetSession(ctx context.Context, sessionID string) (*models.MonitoringSession, error) {
	return m.store.GetSession(ctx, sessionID)
}

// DeleteSession 删除会话及其全部读数和报警
func (m *SessionManager) DeleteSession(ctx context.Context, sessionID string) error {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	unlock := m.locks.Lock(session.SensorID)
	defer unlock()

	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}

	m.logger.Info("Session deleted",
		zap.String("session_id", sessionID),
		zap.String("sensor_id", session.SensorID),
	)

	return nil
}

// ResolveOpenSession 传感器当前打开的会话（摄取路径的归属解析）
// 无打开会话时返回 models.ErrNoOpenSession
func (m *SessionManager) ResolveOpenSession(ctx context.Context, sensorID string) (*models.MonitoringSession, error) {
	session, err := m.store.GetOpenSessionBySensor(ctx, sensorID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: sensor %s", models.ErrNoOpenSession, sensorID)
		}
		return nil, err
	}
	return session, nil
}
