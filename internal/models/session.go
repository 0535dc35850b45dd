package models

import (
	"time"
)

// MonitoringSession 监测会话（对应 monitoring_sessions 表）
// 一个传感器在任意时刻至多有一个打开的会话（end_time IS NULL）
type MonitoringSession struct {
	SessionID string     `json:"session_id" db:"session_id"`
	SensorID  string     `json:"sensor_id" db:"sensor_id"`
	Name      string     `json:"name" db:"session_name"`
	PatientID *string    `json:"patient_id,omitempty" db:"patient_id"`
	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`
	Notes     *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// IsOpen 会话是否仍在进行（end_time 为空）
func (s *MonitoringSession) IsOpen() bool {
	return s.EndTime == nil
}
