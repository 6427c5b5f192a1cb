package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/AnishVcode/senior-launcher/common/config"
	"github.com/AnishVcode/senior-launcher/internal/detector"
)

// Config 跌倒监测服务配置
type Config struct {
	TenantID string

	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig
	NATS     config.NATSConfig

	// 跌倒监测服务特定配置
	Fall struct {
		// 采样数据通道："mqtt"（默认）或 "nats"
		SampleTransport string

		// 默认检测阈值（设备未单独配置时使用）
		Detector detector.Config

		Topics struct {
			Accel     string // 采样订阅主题，如 "launcher/+/accel"
			Response  string // 用户响应主题，如 "launcher/+/response"
			Haptic    string // 振动命令主题模板，如 "launcher/%s/haptic"
			Notify    string // 通知主题模板
			Emergency string // 紧急流程主题模板
			NATSAccel string // NATS 采样主题，如 "accel.*"
		}

		Cache struct {
			DebounceKeyPrefix string // 去抖状态键前缀，如 "fall:state:"
			DebounceSec       int    // 同一设备同类事件去抖时间（秒），默认 30
			AlarmKeyPrefix    string // 报警缓存键前缀，如 "fall:device:"
			AlarmSuffix       string // 报警缓存键后缀，如 ":alarms"
			AlarmTTL          int    // 报警缓存 TTL（秒），默认 300
			AlarmStream       string // 报警事件 stream，如 "fall:alarm:stream"
			StreamMaxLen      int64  // stream 近似最大长度
		}

		Escalation struct {
			QueueSize  int    // 升级队列长度，默认 256
			Workers    int    // 升级 worker 数量，默认 4
			WebhookURL string // 紧急联系人 webhook（可选）
		}

		DeviceQueueSize int // 每个设备采样通道长度，默认 128
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TenantID = getEnv("TENANT_ID", "")

	// 数据库
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.LoadFromEnv("DB")

	// Redis
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0
	cfg.Redis.LoadFromEnv("REDIS")

	// MQTT
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "fall-monitor")
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	// NATS
	cfg.NATS.URL = "nats://127.0.0.1:4222"
	cfg.NATS.Name = "fall-monitor"
	cfg.NATS.LoadFromEnv("NATS")

	cfg.Fall.SampleTransport = getEnv("SAMPLE_TRANSPORT", "mqtt")
	if cfg.Fall.SampleTransport != "mqtt" && cfg.Fall.SampleTransport != "nats" {
		return nil, fmt.Errorf("invalid SAMPLE_TRANSPORT %q: must be mqtt or nats", cfg.Fall.SampleTransport)
	}

	// 检测阈值
	var err error
	d := detector.DefaultConfig()
	if d.FallThreshold, err = getEnvFloat("FALL_THRESHOLD", d.FallThreshold); err != nil {
		return nil, err
	}
	if d.ImpactThreshold, err = getEnvFloat("IMPACT_THRESHOLD", d.ImpactThreshold); err != nil {
		return nil, err
	}
	if d.FallWindowMs, err = getEnvInt64("FALL_WINDOW_MS", d.FallWindowMs); err != nil {
		return nil, err
	}
	if d.JerkThreshold, err = getEnvFloat("JERK_THRESHOLD", d.JerkThreshold); err != nil {
		return nil, err
	}
	if d.MinSampleIntervalMs, err = getEnvInt64("MIN_SAMPLE_INTERVAL_MS", d.MinSampleIntervalMs); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector thresholds: %w", err)
	}
	cfg.Fall.Detector = d

	cfg.Fall.Topics.Accel = getEnv("TOPIC_ACCEL", "launcher/+/accel")
	cfg.Fall.Topics.Response = getEnv("TOPIC_RESPONSE", "launcher/+/response")
	cfg.Fall.Topics.Haptic = "launcher/%s/haptic"
	cfg.Fall.Topics.Notify = "launcher/%s/notify"
	cfg.Fall.Topics.Emergency = "launcher/%s/emergency"
	cfg.Fall.Topics.NATSAccel = getEnv("NATS_SUBJECT_ACCEL", "accel.*")

	cfg.Fall.Cache.DebounceKeyPrefix = getEnv("CACHE_STATE_PREFIX", "fall:state:")
	cfg.Fall.Cache.AlarmKeyPrefix = getEnv("CACHE_ALARM_PREFIX", "fall:device:")
	cfg.Fall.Cache.AlarmSuffix = ":alarms"
	cfg.Fall.Cache.AlarmStream = getEnv("ALARM_STREAM", "fall:alarm:stream")
	cfg.Fall.Cache.StreamMaxLen = 10000
	if cfg.Fall.Cache.DebounceSec, err = getEnvInt("FALL_DEBOUNCE_SEC", 30); err != nil {
		return nil, err
	}
	if cfg.Fall.Cache.AlarmTTL, err = getEnvInt("ALARM_CACHE_TTL_SEC", 300); err != nil {
		return nil, err
	}

	if cfg.Fall.Escalation.QueueSize, err = getEnvInt("ESCALATION_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.Fall.Escalation.Workers, err = getEnvInt("ESCALATION_WORKERS", 4); err != nil {
		return nil, err
	}
	cfg.Fall.Escalation.WebhookURL = getEnv("EMERGENCY_WEBHOOK_URL", "")

	if cfg.Fall.DeviceQueueSize, err = getEnvInt("DEVICE_QUEUE_SIZE", 128); err != nil {
		return nil, err
	}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}
