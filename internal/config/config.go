package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config 压力监测引擎配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// Engine 引擎调优参数
	Engine struct {
		ContactThreshold float64 // 接触判定阈值（严格大于，默认 0）
		QuietWindowSec   int     // 同类型未确认报警的静默窗口（秒），默认 300
		RetryAttempts    int     // 瞬时存储错误的最大重试次数，默认 3
		RetryBackoffMs   int     // 首次重试退避（毫秒），默认 100，指数递增
		// 报警类型 → 严重度（warning / critical），可被环境变量覆盖
		Severity map[string]string
		// 阈值配置的 Redis 缓存 TTL（秒），默认 60
		ThresholdCacheTTLSec int
		// DBDisabled 为 true 时使用内存存储（本地调试 / 无数据库环境）
		DBDisabled bool
	}

	// Ingest 摄取通道配置（MQTT → Redis Streams → 引擎）
	Ingest struct {
		Stream        string // Redis Stream 名称
		ConsumerGroup string
		ConsumerName  string
		BatchSize     int    // 每次 XREADGROUP 读取的消息数，默认 10
		Workers       int    // 并行消费协程数，默认 2（传感器级顺序由引擎锁保证）
		MQTTTopic     string // 压力帧上报主题
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（代码默认值 + 环境变量覆盖）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "bedwatch")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "bedwatch-engine")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))

	cfg.Engine.ContactThreshold = getEnvFloat("ENGINE_CONTACT_THRESHOLD", 0)
	cfg.Engine.QuietWindowSec = getEnvInt("ENGINE_QUIET_WINDOW_SEC", 300)
	cfg.Engine.RetryAttempts = getEnvInt("ENGINE_RETRY_ATTEMPTS", 3)
	cfg.Engine.RetryBackoffMs = getEnvInt("ENGINE_RETRY_BACKOFF_MS", 100)
	cfg.Engine.ThresholdCacheTTLSec = getEnvInt("ENGINE_THRESHOLD_CACHE_TTL_SEC", 60)
	cfg.Engine.DBDisabled = getEnvBool("ENGINE_DB_DISABLED", false)
	cfg.Engine.Severity = map[string]string{
		"high-pressure":      getEnv("ENGINE_SEVERITY_HIGH_PRESSURE", "critical"),
		"sensor-fault":       getEnv("ENGINE_SEVERITY_SENSOR_FAULT", "warning"),
		"prolonged-exposure": getEnv("ENGINE_SEVERITY_PROLONGED_EXPOSURE", "warning"),
	}

	cfg.Ingest.Stream = getEnv("INGEST_STREAM", "bedwatch:readings")
	cfg.Ingest.ConsumerGroup = getEnv("INGEST_CONSUMER_GROUP", "bedwatch-engine")
	cfg.Ingest.ConsumerName = getEnv("INGEST_CONSUMER_NAME", "bedwatch-engine-1")
	cfg.Ingest.BatchSize = getEnvInt("INGEST_BATCH_SIZE", 10)
	cfg.Ingest.Workers = getEnvInt("INGEST_WORKERS", 2)
	cfg.Ingest.MQTTTopic = getEnv("INGEST_MQTT_TOPIC", "bedwatch/+/pressure")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// getEnv 读取环境变量，不存在时返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
