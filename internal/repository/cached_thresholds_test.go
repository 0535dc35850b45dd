package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bedwatch-engine/internal/models"
)

// countingThresholdRepo 记录回源次数的阈值源
type countingThresholdRepo struct {
	rules []models.ThresholdRule
	calls int
}

func (r *countingThresholdRepo) ListRules(_ context.Context, _ string) ([]models.ThresholdRule, error) {
	r.calls++
	return r.rules, nil
}

// fakeKVStore 内存 KV（忽略 TTL）
type fakeKVStore struct {
	data map[string]string
}

func newFakeKVStore() *fakeKVStore {
	return &fakeKVStore{data: make(map[string]string)}
}

func (f *fakeKVStore) Get(_ context.Context, key string) (string, error) {
	val, ok := f.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return val, nil
}

func (f *fakeKVStore) Set(_ context.Context, key string, value string, _ time.Duration) error {
	f.data[key] = value
	return nil
}

func TestCachedThresholds_MissThenHit(t *testing.T) {
	inner := &countingThresholdRepo{
		rules: []models.ThresholdRule{
			{
				AlertType: models.AlertTypeHighPressure,
				Metric:    models.MetricPeakPressure,
				Operator:  models.OpGreater,
				Value:     80,
				Position:  0,
			},
		},
	}
	kv := newFakeKVStore()
	repo := NewCachedThresholdRepository(inner, kv, time.Minute, zap.NewNop())
	ctx := context.Background()

	// 首次未命中，回源并写缓存
	rules, err := repo.ListRules(ctx, "sensor-1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 1, inner.calls)

	// 第二次命中缓存，不再回源
	rules, err = repo.ListRules(ctx, "sensor-1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, models.AlertTypeHighPressure, rules[0].AlertType)
	assert.Equal(t, 80.0, rules[0].Value)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedThresholds_PerSensorKeys(t *testing.T) {
	inner := &countingThresholdRepo{}
	kv := newFakeKVStore()
	repo := NewCachedThresholdRepository(inner, kv, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, err := repo.ListRules(ctx, "sensor-1")
	require.NoError(t, err)
	_, err = repo.ListRules(ctx, "sensor-2")
	require.NoError(t, err)

	// 不同传感器各自回源一次
	assert.Equal(t, 2, inner.calls)
}

func TestCachedThresholds_CorruptCacheFallsThrough(t *testing.T) {
	inner := &countingThresholdRepo{
		rules: []models.ThresholdRule{
			{
				AlertType: models.AlertTypeHighPressure,
				Metric:    models.MetricPeakPressure,
				Operator:  models.OpGreater,
				Value:     80,
			},
		},
	}
	kv := newFakeKVStore()
	kv.data[thresholdCacheKeyPrefix+"sensor-1"] = "{not json"
	repo := NewCachedThresholdRepository(inner, kv, time.Minute, zap.NewNop())

	rules, err := repo.ListRules(context.Background(), "sensor-1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 1, inner.calls)
}

func TestRedisKVStore_GetSet(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	kv := NewRedisKVStore(client)
	ctx := context.Background()

	// 不存在的键返回 ErrCacheMiss
	_, err = kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, kv.Set(ctx, "key-1", "value-1", time.Minute))

	val, err := kv.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "value-1", val)

	// TTL 过期后未命中
	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "key-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
