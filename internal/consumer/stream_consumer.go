package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"bedwatch-engine/internal/config"
	"bedwatch-engine/internal/derive"
	"bedwatch-engine/internal/engine"
	"bedwatch-engine/internal/models"
	rediscommon "bedwatch-engine/internal/redis"
)

// Metrics 消费者监控指标
type Metrics struct {
	mu sync.RWMutex

	// 消息处理统计
	MessagesProcessed int64 // 处理的消息总数
	MessagesIngested  int64 // 成功摄取的消息数
	MessagesRejected  int64 // 领域拒绝的消息数（无打开会话、矩阵非法）
	MessagesFailed    int64 // 瞬时错误待重投的消息数

	// 错误分类统计
	ErrorsParse int64 // 帧解析错误

	// 性能指标
	TotalProcessingTime time.Duration
	LastProcessTime     time.Time

	StartTime time.Time
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		MessagesProcessed:   m.MessagesProcessed,
		MessagesIngested:    m.MessagesIngested,
		MessagesRejected:    m.MessagesRejected,
		MessagesFailed:      m.MessagesFailed,
		ErrorsParse:         m.ErrorsParse,
		TotalProcessingTime: m.TotalProcessingTime,
		LastProcessTime:     m.LastProcessTime,
		StartTime:           m.StartTime,
	}
}

// IncrementProcessed 增加处理计数
func (m *Metrics) IncrementProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesProcessed++
}

// IncrementIngested 增加摄取成功计数
func (m *Metrics) IncrementIngested(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesIngested++
	m.TotalProcessingTime += duration
	m.LastProcessTime = time.Now()
}

// IncrementRejected 增加领域拒绝计数
func (m *Metrics) IncrementRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesRejected++
}

// IncrementFailed 增加瞬时失败计数
func (m *Metrics) IncrementFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesFailed++
}

// IncrementParseError 增加解析错误计数
func (m *Metrics) IncrementParseError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorsParse++
}

// Ingestor 摄取入口（引擎在测试中可替换）
type Ingestor interface {
	Ingest(ctx context.Context, sensorID string, recordedAt time.Time, matrix models.PressureMatrix) (*engine.IngestResult, error)
}

// StreamConsumer Redis Streams 消费者：压力帧 → 引擎摄取
// 多个 worker 并行消费；同一传感器的写入顺序由引擎的传感器锁保证
type StreamConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	ingestor    Ingestor
	logger      *zap.Logger
	metrics     *Metrics
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(cfg *config.Config, redisClient *redis.Client, ingestor Ingestor, logger *zap.Logger) *StreamConsumer {
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		ingestor:    ingestor,
		logger:      logger,
		metrics: &Metrics{
			StartTime: time.Now(),
		},
	}
}

// MetricsSnapshot 当前消费指标
func (c *StreamConsumer) MetricsSnapshot() Metrics {
	return c.metrics.GetSnapshot()
}

// Start 启动消费者（阻塞直到 ctx 取消）
func (c *StreamConsumer) Start(ctx context.Context) error {
	stream := c.config.Ingest.Stream
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, stream, c.config.Ingest.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
	}

	workers := c.config.Ingest.Workers
	if workers <= 0 {
		workers = 1
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", stream),
		zap.String("consumer_group", c.config.Ingest.ConsumerGroup),
		zap.String("consumer_name", c.config.Ingest.ConsumerName),
		zap.Int("workers", workers),
	)

	// 启动指标报告协程
	metricsCtx, metricsCancel := context.WithCancel(ctx)
	defer metricsCancel()
	go c.reportMetrics(metricsCtx)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		consumerName := fmt.Sprintf("%s-%d", c.config.Ingest.ConsumerName, i)
		go func() {
			defer wg.Done()
			c.consumeLoop(ctx, consumerName)
		}()
	}
	wg.Wait()

	return nil
}

// consumeLoop 单个 worker 的消费循环（流错误指数退避）
func (c *StreamConsumer) consumeLoop(ctx context.Context, consumerName string) {
	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := c.consumeOnce(ctx, consumerName); err != nil {
				c.logger.Error("Failed to consume stream",
					zap.String("consumer", consumerName),
					zap.Error(err),
					zap.Duration("backoff", backoffDuration),
				)

				select {
				case <-ctx.Done():
					return
				case <-time.After(backoffDuration):
					backoffDuration *= 2
					if backoffDuration > maxBackoff {
						backoffDuration = maxBackoff
					}
				}
			} else {
				backoffDuration = time.Second
			}
		}
	}
}

// consumeOnce 读取并处理一批消息
func (c *StreamConsumer) consumeOnce(ctx context.Context, consumerName string) error {
	messages, err := rediscommon.ReadFromStream(
		ctx,
		c.redisClient,
		c.config.Ingest.Stream,
		c.config.Ingest.ConsumerGroup,
		consumerName,
		int64(c.config.Ingest.BatchSize),
	)
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, msg := range messages {
		c.metrics.IncrementProcessed()
		if err := c.processMessage(ctx, msg); err != nil {
			c.logger.Error("Failed to process message",
				zap.String("stream_id", msg.ID),
				zap.Error(err),
			)
			// 继续处理下一条消息，不中断
		}
	}

	return nil
}

// processMessage 处理单条消息
// 解析失败和领域拒绝都会 ACK（重投不可能成功）；
// 瞬时存储错误不 ACK，留在 pending 列表等待重投
func (c *StreamConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) error {
	startTime := time.Now()

	dataStr, ok := msg.Values["data"].(string)
	if !ok {
		c.metrics.IncrementParseError()
		c.ack(ctx, msg.ID)
		return fmt.Errorf("missing data field in message %s", msg.ID)
	}

	frame, err := ParseReadingFrame([]byte(dataStr))
	if err != nil {
		c.metrics.IncrementParseError()
		c.ack(ctx, msg.ID)
		return fmt.Errorf("failed to parse frame in message %s: %w", msg.ID, err)
	}

	result, err := c.ingestor.Ingest(ctx, frame.SensorID, frame.RecordedAt(), frame.Matrix)
	if err != nil {
		if isPermanentIngestError(err) {
			c.metrics.IncrementRejected()
			c.ack(ctx, msg.ID)
			c.logger.Warn("Reading rejected",
				zap.String("stream_id", msg.ID),
				zap.String("sensor_id", frame.SensorID),
				zap.Error(err),
			)
			return nil
		}
		c.metrics.IncrementFailed()
		return fmt.Errorf("failed to ingest reading from message %s: %w", msg.ID, err)
	}

	c.ack(ctx, msg.ID)
	c.metrics.IncrementIngested(time.Since(startTime))

	c.logger.Debug("Message ingested",
		zap.String("stream_id", msg.ID),
		zap.String("reading_id", result.ReadingID),
		zap.String("alert_status", string(result.AlertStatus)),
	)
	return nil
}

func (c *StreamConsumer) ack(ctx context.Context, id string) {
	if err := rediscommon.AckMessage(ctx, c.redisClient, c.config.Ingest.Stream, c.config.Ingest.ConsumerGroup, id); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("stream_id", id),
			zap.Error(err),
		)
	}
}

// isPermanentIngestError 重投不可能成功的摄取错误
func isPermanentIngestError(err error) bool {
	return errors.Is(err, models.ErrNoOpenSession) ||
		errors.Is(err, derive.ErrInvalidMatrix)
}

// reportMetrics 定期报告指标（每60秒）
func (c *StreamConsumer) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := c.metrics.GetSnapshot()
			uptime := time.Since(snapshot.StartTime)

			var avgProcessingTime time.Duration
			if snapshot.MessagesIngested > 0 {
				avgProcessingTime = snapshot.TotalProcessingTime / time.Duration(snapshot.MessagesIngested)
			}

			c.logger.Info("Metrics report",
				zap.Int64("messages_processed", snapshot.MessagesProcessed),
				zap.Int64("messages_ingested", snapshot.MessagesIngested),
				zap.Int64("messages_rejected", snapshot.MessagesRejected),
				zap.Int64("messages_failed", snapshot.MessagesFailed),
				zap.Int64("errors_parse", snapshot.ErrorsParse),
				zap.Duration("avg_processing_time", avgProcessingTime),
				zap.Duration("uptime", uptime),
			)
		}
	}
}
