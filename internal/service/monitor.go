package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bedwatch-engine/internal/config"
	"bedwatch-engine/internal/consumer"
	"bedwatch-engine/internal/database"
	"bedwatch-engine/internal/engine"
	"bedwatch-engine/internal/models"
	"bedwatch-engine/internal/mqtt"
	"bedwatch-engine/internal/query"
	rediscommon "bedwatch-engine/internal/redis"
	"bedwatch-engine/internal/repository"
)

// MonitorService 压力监测服务（整合各层）
type MonitorService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *rediscommon.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	// 各层组件
	store          repository.Store
	thresholdRepo  repository.ThresholdRepository
	engine         *engine.Engine
	queryEngine    *query.QueryEngine
	mqttIngress    *consumer.MQTTIngress
	streamConsumer *consumer.StreamConsumer
}

// NewMonitorService 创建压力监测服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	s := &MonitorService{
		config: cfg,
		logger: logger,
	}

	// 1. 连接 Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	ctx := context.Background()
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	s.redisClient = redisClient

	// 2. 创建存储层（数据库关闭时退化为内存模式）
	if cfg.Engine.DBDisabled {
		logger.Warn("Database disabled, using in-memory store; data will not survive restarts")
		s.store = repository.NewMemoryStore()
		s.thresholdRepo = repository.NewStaticThresholdRepository(defaultThresholdRules())
	} else {
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		s.db = db
		s.store = repository.NewPostgresStore(db, logger)

		// 阈值配置走 Redis 缓存，降低每条读数一次 DB 查询的压力
		pgThresholds := repository.NewPostgresThresholdRepository(db, logger)
		s.thresholdRepo = repository.NewCachedThresholdRepository(
			pgThresholds,
			repository.NewRedisKVStore(redisClient),
			time.Duration(cfg.Engine.ThresholdCacheTTLSec)*time.Second,
			logger,
		)
	}

	// 3. 创建引擎
	s.engine = engine.New(s.store, s.thresholdRepo, engine.Config{
		ContactThreshold: cfg.Engine.ContactThreshold,
		QuietWindow:      time.Duration(cfg.Engine.QuietWindowSec) * time.Second,
		RetryAttempts:    cfg.Engine.RetryAttempts,
		RetryBackoff:     time.Duration(cfg.Engine.RetryBackoffMs) * time.Millisecond,
		Severity:         parseSeverity(cfg.Engine.Severity, logger),
	}, logger)

	// 4. 创建查询引擎
	s.queryEngine = query.NewQueryEngine(s.store, logger)

	// 5. 创建摄取通道（Stream 消费者必选，MQTT 入口按配置可选）
	s.streamConsumer = consumer.NewStreamConsumer(cfg, redisClient, s.engine, logger)

	if cfg.MQTT.Broker != "" {
		mqttClient, err := mqtt.NewClient(&cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("failed to connect MQTT broker: %w", err)
		}
		s.mqttClient = mqttClient
		s.mqttIngress = consumer.NewMQTTIngress(cfg, mqttClient, redisClient, logger)
	} else {
		logger.Info("MQTT broker not configured, ingress disabled; readings come from the stream only")
	}

	return s, nil
}

// Start 启动服务（阻塞直到 ctx 取消）
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting monitor service",
		zap.String("stream", s.config.Ingest.Stream),
		zap.Bool("db_disabled", s.config.Engine.DBDisabled),
		zap.Bool("mqtt_enabled", s.mqttIngress != nil),
	)

	if s.mqttIngress != nil {
		if err := s.mqttIngress.Start(ctx); err != nil {
			return fmt.Errorf("failed to start MQTT ingress: %w", err)
		}
	}

	return s.streamConsumer.Start(ctx)
}

// Stop 停止服务
func (s *MonitorService) Stop() error {
	s.logger.Info("Stopping monitor service")

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
	}

	if err := rediscommon.Close(s.redisClient); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}

	return nil
}

// Engine 引擎入口（会话 / 摄取 / 报警操作）
func (s *MonitorService) Engine() *engine.Engine {
	return s.engine
}

// Query 查询入口（历史读数 / 报警检索）
func (s *MonitorService) Query() *query.QueryEngine {
	return s.queryEngine
}

// parseSeverity 把配置的字符串映射转换为类型化的严重度表
// 非法条目跳过并告警，让引擎退回默认值
func parseSeverity(raw map[string]string, logger *zap.Logger) map[models.AlertType]models.AlertStatus {
	if len(raw) == 0 {
		return nil
	}

	severity := make(map[models.AlertType]models.AlertStatus, len(raw))
	for alertType, status := range raw {
		t := models.AlertType(alertType)
		st := models.AlertStatus(status)
		if !t.Valid() || !st.Valid() || st == models.AlertStatusNone {
			logger.Warn("Skipping invalid severity mapping",
				zap.String("alert_type", alertType),
				zap.String("severity", status),
			)
			continue
		}
		severity[t] = st
	}
	if len(severity) == 0 {
		return nil
	}
	return severity
}

// defaultThresholdRules 内存模式下的兜底阈值
func defaultThresholdRules() []models.ThresholdRule {
	return []models.ThresholdRule{
		{
			AlertType: models.AlertTypeHighPressure,
			Metric:    models.MetricPeakPressure,
			Operator:  models.OpGreater,
			Value:     80,
			Position:  0,
		},
		{
			AlertType: models.AlertTypeProlongedExposure,
			Metric:    models.MetricContactAreaPct,
			Operator:  models.OpGreaterEqual,
			Value:     90,
			Position:  1,
		},
	}
}
