package consumer

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"bedwatch-engine/internal/config"
	"bedwatch-engine/internal/mqtt"
	rediscommon "bedwatch-engine/internal/redis"
)

// MQTTIngress MQTT 入口：订阅压力帧主题，转发到 Redis Streams
// MQTT 回调内不做任何落库，摄取由 Stream 消费者异步完成
type MQTTIngress struct {
	config      *config.Config
	mqttClient  *mqtt.Client
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewMQTTIngress 创建 MQTT 入口
func NewMQTTIngress(cfg *config.Config, mqttClient *mqtt.Client, redisClient *redis.Client, logger *zap.Logger) *MQTTIngress {
	return &MQTTIngress{
		config:      cfg,
		mqttClient:  mqttClient,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Start 订阅压力帧主题
func (i *MQTTIngress) Start(ctx context.Context) error {
	topic := i.config.Ingest.MQTTTopic

	err := i.mqttClient.Subscribe(topic, i.config.MQTT.QoS, func(topic string, payload []byte) error {
		return i.handleMessage(ctx, topic, payload)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to pressure topic: %w", err)
	}

	i.logger.Info("MQTT ingress started",
		zap.String("topic", topic),
		zap.String("stream", i.config.Ingest.Stream),
	)
	return nil
}

// handleMessage 校验帧并转发到 Stream
// 非法帧直接丢弃（记日志），不进入摄取通道
func (i *MQTTIngress) handleMessage(ctx context.Context, topic string, payload []byte) error {
	frame, err := ParseReadingFrame(payload)
	if err != nil {
		i.logger.Warn("Dropping malformed pressure frame",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return err
	}

	id, err := rediscommon.PublishJSONToStream(ctx, i.redisClient, i.config.Ingest.Stream, frame)
	if err != nil {
		i.logger.Error("Failed to forward pressure frame to stream",
			zap.String("sensor_id", frame.SensorID),
			zap.Error(err),
		)
		return err
	}

	i.logger.Debug("Pressure frame forwarded",
		zap.String("sensor_id", frame.SensorID),
		zap.String("stream_id", id),
	)
	return nil
}
