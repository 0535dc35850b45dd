package engine

import (
	"sync"
	"time"
)

// Metrics 引擎运行指标
type Metrics struct {
	mu sync.RWMutex

	// 摄取统计
	ReadingsIngested int64 // 成功入库的读数
	ReadingsRejected int64 // 领域校验拒绝（矩阵非法、无打开会话）
	ReadingsFailed   int64 // 重试耗尽后仍失败的读数

	// 报警统计
	AlertsRaised     int64 // 新建的报警
	AlertsSuppressed int64 // 静默窗口内被去重的越界

	// 重试统计
	StorageRetries int64 // 瞬时存储错误触发的重试次数

	// 性能指标
	TotalIngestTime time.Duration
	LastIngestTime  time.Time

	StartTime time.Time
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		ReadingsIngested: m.ReadingsIngested,
		ReadingsRejected: m.ReadingsRejected,
		ReadingsFailed:   m.ReadingsFailed,
		AlertsRaised:     m.AlertsRaised,
		AlertsSuppressed: m.AlertsSuppressed,
		StorageRetries:   m.StorageRetries,
		TotalIngestTime:  m.TotalIngestTime,
		LastIngestTime:   m.LastIngestTime,
		StartTime:        m.StartTime,
	}
}

// IncrementIngested 记录一次成功摄取
func (m *Metrics) IncrementIngested(duration time.Duration, raised, suppressed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadingsIngested++
	m.AlertsRaised += int64(raised)
	m.AlertsSuppressed += int64(suppressed)
	m.TotalIngestTime += duration
	m.LastIngestTime = time.Now()
}

// IncrementRejected 记录一次领域拒绝
func (m *Metrics) IncrementRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadingsRejected++
}

// IncrementFailed 记录一次重试耗尽的失败
func (m *Metrics) IncrementFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadingsFailed++
}

// IncrementRetries 记录一次存储重试
func (m *Metrics) IncrementRetries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StorageRetries++
}
