package models

import (
	"time"
)

// AlertType 报警类型（封闭集合）
type AlertType string

const (
	AlertTypeHighPressure      AlertType = "high-pressure"
	AlertTypeSensorFault       AlertType = "sensor-fault"
	AlertTypeProlongedExposure AlertType = "prolonged-exposure"
)

// Valid 是否为已知报警类型
func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeHighPressure, AlertTypeSensorFault, AlertTypeProlongedExposure:
		return true
	}
	return false
}

// Alert 一次阈值越界记录（对应 alerts 表）
// acknowledged 为 true 时 acknowledged_by / acknowledged_at 必定同时存在，
// 为 false 时两者必定为空；确认是唯一允许的一次性变更
type Alert struct {
	AlertID        string      `json:"alert_id" db:"alert_id"`
	SessionID      string      `json:"session_id" db:"session_id"`
	ReadingID      string      `json:"reading_id" db:"reading_id"`
	AlertType      AlertType   `json:"alert_type" db:"alert_type"`
	ThresholdValue float64     `json:"threshold_value" db:"threshold_value"`
	ActualValue    float64     `json:"actual_value" db:"actual_value"`
	TriggeredAt    time.Time   `json:"triggered_at" db:"triggered_at"`
	Acknowledged   bool        `json:"acknowledged" db:"acknowledged"`
	AcknowledgedBy *string     `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}
