package evaluator

import (
	"bedwatch-engine/internal/derive"
	"bedwatch-engine/internal/models"
)

// Evaluate 按配置顺序评估阈值，返回全部越界
// 规则：
//   - 所有命中的规则都会上报，而不是只报第一条
//   - 同一 alert_type 至多产生一条越界（取配置顺序靠前者）
//   - 未命中返回空切片，这是常态而非错误
func Evaluate(metrics derive.Metrics, rules []models.ThresholdRule) []models.Breach {
	breaches := []models.Breach{}
	seen := map[models.AlertType]bool{}

	for _, rule := range rules {
		if seen[rule.AlertType] {
			continue
		}
		actual, ok := metrics.Value(rule.Metric)
		if !ok {
			// 未知指标的规则直接跳过（配置层负责校验）
			continue
		}
		if compare(actual, rule.Operator, rule.Value) {
			seen[rule.AlertType] = true
			breaches = append(breaches, models.Breach{
				AlertType:      rule.AlertType,
				ThresholdValue: rule.Value,
				ActualValue:    actual,
			})
		}
	}

	return breaches
}

// compare 按配置的运算符做精确浮点比较（无 epsilon 容差，阈值是精确的临床限值）
func compare(actual float64, op models.CompareOp, threshold float64) bool {
	switch op {
	case models.OpGreater:
		return actual > threshold
	case models.OpGreaterEqual:
		return actual >= threshold
	case models.OpLess:
		return actual < threshold
	case models.OpLessEqual:
		return actual <= threshold
	default:
		return false
	}
}
