package repository

import (
	"context"
	"sort"

	"bedwatch-engine/internal/models"
)

// StaticThresholdRepository 固定规则的阈值配置源
// 用于内存模式和测试：所有传感器共用同一份规则
type StaticThresholdRepository struct {
	rules []models.ThresholdRule
}

// NewStaticThresholdRepository 创建固定阈值配置源（规则按 position 排序后保存）
func NewStaticThresholdRepository(rules []models.ThresholdRule) *StaticThresholdRepository {
	sorted := make([]models.ThresholdRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})
	return &StaticThresholdRepository{rules: sorted}
}

// ListRules 返回固定规则
func (r *StaticThresholdRepository) ListRules(_ context.Context, _ string) ([]models.ThresholdRule, error) {
	out := make([]models.ThresholdRule, len(r.rules))
	copy(out, r.rules)
	return out, nil
}
