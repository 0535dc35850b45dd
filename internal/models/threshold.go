package models

// MetricKind 阈值作用的派生指标（封闭集合）
type MetricKind string

const (
	MetricPeakPressure   MetricKind = "peak_pressure"
	MetricContactAreaPct MetricKind = "contact_area_pct"
)

// Valid 是否为已知指标
func (m MetricKind) Valid() bool {
	switch m {
	case MetricPeakPressure, MetricContactAreaPct:
		return true
	}
	return false
}

// CompareOp 数值比较运算符（浮点比较按 IEEE 精确语义，无容差）
type CompareOp string

const (
	OpGreater      CompareOp = ">"
	OpGreaterEqual CompareOp = ">="
	OpLess         CompareOp = "<"
	OpLessEqual    CompareOp = "<="
)

// Valid 是否为已知运算符
func (op CompareOp) Valid() bool {
	switch op {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
		return true
	}
	return false
}

// ThresholdRule 一条阈值配置（按 position 升序评估）
// 配置来源在引擎之外（sensor_thresholds 表，按传感器或全局下发）
type ThresholdRule struct {
	AlertType AlertType  `json:"alert_type" db:"alert_type"`
	Metric    MetricKind `json:"metric" db:"metric"`
	Operator  CompareOp  `json:"operator" db:"operator"`
	Value     float64    `json:"threshold_value" db:"threshold_value"`
	Position  int        `json:"position" db:"position"`
}

// Breach 一次越界描述（阈值评估器的输出）
type Breach struct {
	AlertType      AlertType `json:"alert_type"`
	ThresholdValue float64   `json:"threshold_value"`
	ActualValue    float64   `json:"actual_value"`
}
