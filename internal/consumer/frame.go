package consumer

import (
	"encoding/json"
	"fmt"
	"time"

	"bedwatch-engine/internal/models"
)

// ReadingFrame 传感器上报的压力帧（MQTT 载荷 / Stream data 字段）
type ReadingFrame struct {
	SensorID  string                `json:"sensor_id"`
	Timestamp int64                 `json:"timestamp"` // Unix 毫秒
	Matrix    models.PressureMatrix `json:"matrix"`
}

// RecordedAt 采样时间（UTC）
func (f *ReadingFrame) RecordedAt() time.Time {
	return time.UnixMilli(f.Timestamp).UTC()
}

// ParseReadingFrame 解析压力帧并做最小校验
// 矩阵内容的校验（行长、负值）留给引擎的派生阶段
func ParseReadingFrame(payload []byte) (*ReadingFrame, error) {
	var frame ReadingFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reading frame: %w", err)
	}

	if frame.SensorID == "" {
		return nil, fmt.Errorf("reading frame missing sensor_id")
	}
	if frame.Timestamp <= 0 {
		return nil, fmt.Errorf("reading frame missing timestamp")
	}
	if len(frame.Matrix) == 0 {
		return nil, fmt.Errorf("reading frame missing matrix")
	}

	return &frame, nil
}
