package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bedwatch-engine/internal/models"
)

// MemoryStore 内存实现（内存模式与单元测试用）
// 语义与 PostgresStore 对齐：相同的哨兵错误、相同的排序规则、
// 摄取事务先暂存再一次性应用
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.MonitoringSession
	readings map[string]*models.Reading
	alerts   map[string]*models.Alert
	nextSeq  int64
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.MonitoringSession),
		readings: make(map[string]*models.Reading),
		alerts:   make(map[string]*models.Alert),
		nextSeq:  1,
	}
}

// ========== 会话 ==========

func (s *MemoryStore) CreateSession(ctx context.Context, session *models.MonitoringSession) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	if session.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if session.SensorID == "" {
		return fmt.Errorf("sensor_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.SessionID]; ok {
		return fmt.Errorf("session %s already exists", session.SessionID)
	}

	copied := *session
	s.sessions[session.SessionID] = &copied
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*models.MonitoringSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", models.ErrNotFound, sessionID)
	}

	copied := *session
	return &copied, nil
}

func (s *MemoryStore) GetOpenSessionBySensor(ctx context.Context, sensorID string) (*models.MonitoringSession, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("sensor_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.MonitoringSession
	for _, session := range s.sessions {
		if session.SensorID != sensorID || !session.IsOpen() {
			continue
		}
		if latest == nil || session.StartTime.After(latest.StartTime) {
			latest = session
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no open session for sensor %s", models.ErrNotFound, sensorID)
	}

	copied := *latest
	return &copied, nil
}

func (s *MemoryStore) SetSessionEndTime(ctx context.Context, sessionID string, endTime time.Time) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: session %s", models.ErrNotFound, sessionID)
	}
	if !session.IsOpen() {
		return fmt.Errorf("%w: session %s", models.ErrAlreadyClosed, sessionID)
	}

	t := endTime
	session.EndTime = &t
	return nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("%w: session %s", models.ErrNotFound, sessionID)
	}

	delete(s.sessions, sessionID)
	// 级联删除读数与报警
	for id, r := range s.readings {
		if r.SessionID == sessionID {
			delete(s.readings, id)
		}
	}
	for id, a := range s.alerts {
		if a.SessionID == sessionID {
			delete(s.alerts, id)
		}
	}
	return nil
}

// ========== 读数查询 ==========

func (s *MemoryStore) ListReadingsBySensor(ctx context.Context, sensorID string, from, to time.Time) ([]*models.Reading, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("sensor_id is required")
	}
	return s.listReadings(func(r *models.Reading) bool {
		return r.SensorID == sensorID && inRange(r.RecordedAt, from, to)
	}), nil
}

func (s *MemoryStore) ListReadingsBySession(ctx context.Context, sessionID string, from, to time.Time) ([]*models.Reading, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	return s.listReadings(func(r *models.Reading) bool {
		return r.SessionID == sessionID && inRange(r.RecordedAt, from, to)
	}), nil
}

func (s *MemoryStore) listReadings(match func(*models.Reading) bool) []*models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*models.Reading{}
	for _, r := range s.readings {
		if match(r) {
			copied := *r
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// ========== 报警 ==========

func (s *MemoryStore) ListAlertsBySensor(ctx context.Context, sensorID string, from, to time.Time, acknowledged *bool) ([]*models.Alert, error) {
	if sensorID == "" {
		return nil, fmt.Errorf("sensor_id is required")
	}

	s.mu.Lock()
	sessionIDs := make(map[string]bool)
	for _, session := range s.sessions {
		if session.SensorID == sensorID {
			sessionIDs[session.SessionID] = true
		}
	}
	s.mu.Unlock()

	return s.listAlerts(func(a *models.Alert) bool {
		return sessionIDs[a.SessionID] && inRange(a.TriggeredAt, from, to) && matchAck(a, acknowledged)
	}), nil
}

func (s *MemoryStore) ListAlertsBySession(ctx context.Context, sessionID string, from, to time.Time, acknowledged *bool) ([]*models.Alert, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	return s.listAlerts(func(a *models.Alert) bool {
		return a.SessionID == sessionID && inRange(a.TriggeredAt, from, to) && matchAck(a, acknowledged)
	}), nil
}

func (s *MemoryStore) listAlerts(match func(*models.Alert) bool) []*models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*models.Alert{}
	for _, a := range s.alerts {
		if match(a) {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TriggeredAt.Equal(out[j].TriggeredAt) {
			return out[i].TriggeredAt.Before(out[j].TriggeredAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[alertID]
	if !ok {
		return nil, fmt.Errorf("%w: alert %s", models.ErrNotFound, alertID)
	}

	copied := *alert
	return &copied, nil
}

func (s *MemoryStore) AcknowledgeAlert(ctx context.Context, alertID, actor string, at time.Time) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if actor == "" {
		return fmt.Errorf("actor is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[alertID]
	if !ok {
		return fmt.Errorf("%w: alert %s", models.ErrNotFound, alertID)
	}
	if alert.Acknowledged {
		return fmt.Errorf("%w: alert %s", models.ErrAlreadyAcknowledged, alertID)
	}

	t := at
	alert.Acknowledged = true
	alert.AcknowledgedBy = &actor
	alert.AcknowledgedAt = &t
	return nil
}

// ========== 摄取事务 ==========

// InIngestTx 在存储锁内执行 fn，所有写入先暂存，fn 成功后一次性应用
func (s *MemoryStore) InIngestTx(ctx context.Context, fn func(tx IngestTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memIngestTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

// memIngestTx 暂存事务：插入与状态更新在 apply 前对外不可见
type memIngestTx struct {
	store          *MemoryStore
	stagedReadings []*models.Reading
	stagedAlerts   []*models.Alert
	stagedStatus   map[string]models.AlertStatus
}

func (t *memIngestTx) InsertReading(ctx context.Context, r *models.Reading) error {
	if r == nil {
		return fmt.Errorf("reading is required")
	}
	if r.ReadingID == "" {
		return fmt.Errorf("reading_id is required")
	}
	if _, ok := t.store.readings[r.ReadingID]; ok {
		return fmt.Errorf("reading %s already exists", r.ReadingID)
	}

	r.Seq = t.store.nextSeq
	t.store.nextSeq++

	copied := *r
	t.stagedReadings = append(t.stagedReadings, &copied)
	return nil
}

func (t *memIngestTx) UpdateReadingAlertStatus(ctx context.Context, readingID string, status models.AlertStatus) error {
	if readingID == "" {
		return fmt.Errorf("reading_id is required")
	}
	if !status.Valid() {
		return fmt.Errorf("invalid alert status: %s", status)
	}

	_, committed := t.store.readings[readingID]
	staged := false
	for _, r := range t.stagedReadings {
		if r.ReadingID == readingID {
			staged = true
			break
		}
	}
	if !committed && !staged {
		return fmt.Errorf("%w: reading %s", models.ErrNotFound, readingID)
	}

	if t.stagedStatus == nil {
		t.stagedStatus = make(map[string]models.AlertStatus)
	}
	t.stagedStatus[readingID] = status
	return nil
}

func (t *memIngestTx) LatestUnacknowledgedAlert(ctx context.Context, sessionID string, alertType models.AlertType) (*models.Alert, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	var latest *models.Alert
	consider := func(a *models.Alert) {
		if a.SessionID != sessionID || a.AlertType != alertType || a.Acknowledged {
			return
		}
		if latest == nil || a.TriggeredAt.After(latest.TriggeredAt) {
			latest = a
		}
	}
	for _, a := range t.store.alerts {
		consider(a)
	}
	for _, a := range t.stagedAlerts {
		consider(a)
	}

	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (t *memIngestTx) InsertAlert(ctx context.Context, a *models.Alert) error {
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

	copied := *a
	t.stagedAlerts = append(t.stagedAlerts, &copied)
	return nil
}

func (t *memIngestTx) apply() {
	for _, r := range t.stagedReadings {
		if status, ok := t.stagedStatus[r.ReadingID]; ok {
			r.AlertStatus = status
			delete(t.stagedStatus, r.ReadingID)
		}
		t.store.readings[r.ReadingID] = r
	}
	for id, status := range t.stagedStatus {
		if r, ok := t.store.readings[id]; ok {
			r.AlertStatus = status
		}
	}
	for _, a := range t.stagedAlerts {
		t.store.alerts[a.AlertID] = a
	}
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func matchAck(a *models.Alert, acknowledged *bool) bool {
	return acknowledged == nil || a.Acknowledged == *acknowledged
}
