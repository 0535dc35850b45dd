package derive

import (
	"errors"
	"fmt"
	"math"

	"bedwatch-engine/internal/models"
)

// ErrInvalidMatrix 压力矩阵非法（空矩阵、行长不一致或包含负值）
var ErrInvalidMatrix = errors.New("invalid pressure matrix")

// Metrics 从压力矩阵派生的临床指标
type Metrics struct {
	PeakPressure   float64 `json:"peak_pressure"`
	ContactAreaPct float64 `json:"contact_area_pct"`
}

// Value 取指定指标的数值（封闭集合穷举）
func (m Metrics) Value(kind models.MetricKind) (float64, bool) {
	switch kind {
	case models.MetricPeakPressure:
		return m.PeakPressure, true
	case models.MetricContactAreaPct:
		return m.ContactAreaPct, true
	default:
		return 0, false
	}
}

// DeriveMetrics 从压力矩阵计算派生指标（纯函数，无 I/O）
//   - peak_pressure: 矩阵最大值
//   - contact_area_pct: 压力严格大于 contactThreshold 的格子占比 × 100，
//     保留两位小数并夹在 [0,100]
//
// contactThreshold 由配置下发（默认 0，即 "有压力即接触"）
func DeriveMetrics(matrix models.PressureMatrix, contactThreshold float64) (Metrics, error) {
	if len(matrix) == 0 {
		return Metrics{}, fmt.Errorf("%w: matrix is empty", ErrInvalidMatrix)
	}

	cols := len(matrix[0])
	if cols == 0 {
		return Metrics{}, fmt.Errorf("%w: matrix has no columns", ErrInvalidMatrix)
	}

	var peak float64
	total := 0
	contact := 0

	for i, row := range matrix {
		if len(row) != cols {
			return Metrics{}, fmt.Errorf("%w: row %d has %d cells, want %d", ErrInvalidMatrix, i, len(row), cols)
		}
		for j, v := range row {
			if v < 0 {
				return Metrics{}, fmt.Errorf("%w: negative value %g at cell (%d,%d)", ErrInvalidMatrix, v, i, j)
			}
			if v > peak {
				peak = v
			}
			if v > contactThreshold {
				contact++
			}
			total++
		}
	}

	pct := float64(contact) / float64(total) * 100
	pct = math.Round(pct*100) / 100
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}

	return Metrics{
		PeakPressure:   peak,
		ContactAreaPct: pct,
	}, nil
}
