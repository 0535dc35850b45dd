package models

import (
	"time"
)

// AlertStatus 读数的报警状态（封闭集合：none / warning / critical）
type AlertStatus string

const (
	AlertStatusNone     AlertStatus = "none"
	AlertStatusWarning  AlertStatus = "warning"
	AlertStatusCritical AlertStatus = "critical"
)

// Rank 严重度排序（critical > warning > none，未知值为 -1）
func (s AlertStatus) Rank() int {
	switch s {
	case AlertStatusCritical:
		return 2
	case AlertStatusWarning:
		return 1
	case AlertStatusNone:
		return 0
	default:
		return -1
	}
}

// Valid 是否为已知状态
func (s AlertStatus) Valid() bool {
	return s.Rank() >= 0
}

// MaxAlertStatus 取两个状态中严重度更高者
func MaxAlertStatus(a, b AlertStatus) AlertStatus {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// PressureMatrix 压力矩阵（二维网格，行优先，单位与传感器固件一致）
type PressureMatrix [][]float64

// Rows 行数
func (m PressureMatrix) Rows() int {
	return len(m)
}

// Cols 列数（以首行为准）
func (m PressureMatrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Reading 一条压力传感器采样（对应 readings 表）
// 入库后不可变；派生字段（peak_pressure / contact_area_pct）始终由引擎计算，
// alert_status 仅在同一次摄取事务内回填一次
type Reading struct {
	ReadingID      string         `json:"reading_id" db:"reading_id"`
	SessionID      string         `json:"session_id" db:"session_id"`
	SensorID       string         `json:"sensor_id" db:"sensor_id"`
	RecordedAt     time.Time      `json:"recorded_at" db:"recorded_at"`
	Matrix         PressureMatrix `json:"matrix" db:"matrix"` // JSONB
	PeakPressure   float64        `json:"peak_pressure" db:"peak_pressure"`
	ContactAreaPct float64        `json:"contact_area_pct" db:"contact_area_pct"`
	AlertStatus    AlertStatus    `json:"alert_status" db:"alert_status"`
	Seq            int64          `json:"-" db:"reading_seq"` // 入库顺序，时间戳相同时用于稳定排序
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}
