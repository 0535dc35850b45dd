package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"bedwatch-engine/internal/models"
)

const thresholdCacheKeyPrefix = "bedwatch:thresholds:"

// CachedThresholdRepository 带 Redis 缓存的阈值配置源
// 阈值在每次摄取时都会读取，缓存避免每条读数打一次数据库；
// 缓存失败只记日志并穿透到底层仓库，不影响摄取
type CachedThresholdRepository struct {
	inner  ThresholdRepository
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedThresholdRepository 创建带缓存的阈值配置源
func NewCachedThresholdRepository(inner ThresholdRepository, kv KVStore, ttl time.Duration, logger *zap.Logger) *CachedThresholdRepository {
	return &CachedThresholdRepository{
		inner:  inner,
		kv:     kv,
		ttl:    ttl,
		logger: logger,
	}
}

// ListRules 优先读缓存，未命中时回源并写缓存
func (r *CachedThresholdRepository) ListRules(ctx context.Context, sensorID string) ([]models.ThresholdRule, error) {
	key := thresholdCacheKeyPrefix + sensorID

	cached, err := r.kv.Get(ctx, key)
	if err == nil {
		var rules []models.ThresholdRule
		if err := json.Unmarshal([]byte(cached), &rules); err == nil {
			return rules, nil
		}
		r.logger.Warn("Failed to decode cached threshold rules, falling through",
			zap.String("sensor_id", sensorID),
		)
	} else if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn("Threshold cache read failed, falling through",
			zap.String("sensor_id", sensorID),
			zap.Error(err),
		)
	}

	rules, err := r.inner.ListRules(ctx, sensorID)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(rules); err == nil {
		if err := r.kv.Set(ctx, key, string(encoded), r.ttl); err != nil {
			r.logger.Warn("Threshold cache write failed",
				zap.String("sensor_id", sensorID),
				zap.Error(err),
			)
		}
	}

	return rules, nil
}
