package engine

import (
	"sync"
)

// sensorLocks 按传感器 id 的互斥锁
// 同一传感器的摄取与会话变更串行化，不同传感器互不阻塞
type sensorLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSensorLocks() *sensorLocks {
	return &sensorLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock 锁住指定传感器，返回解锁函数
func (l *sensorLocks) Lock(sensorID string) func() {
	l.mu.Lock()
	lock, ok := l.locks[sensorID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[sensorID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
