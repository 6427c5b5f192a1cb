package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AnishVcode/senior-launcher/common/database"
	mqttcommon "github.com/AnishVcode/senior-launcher/common/mqtt"
	rediscommon "github.com/AnishVcode/senior-launcher/common/redis"
	"github.com/AnishVcode/senior-launcher/common/stream"
	"github.com/AnishVcode/senior-launcher/internal/config"
	"github.com/AnishVcode/senior-launcher/internal/consumer"
	"github.com/AnishVcode/senior-launcher/internal/evaluator"
	"github.com/AnishVcode/senior-launcher/internal/observability"
	"github.com/AnishVcode/senior-launcher/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// FallService 跌倒监测服务（整合各层）
type FallService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	natsConn    *nats.Conn
	natsSub     *nats.Subscription
	metrics     *observability.Metrics
	logger      *zap.Logger

	// 各层组件
	alarmEventsRepo  *repository.AlarmEventsRepository
	settingsRepo     *repository.MonitorSettingsRepository
	cacheManager     *consumer.CacheManager
	stateManager     *consumer.StateManager
	escalator        *evaluator.Escalator
	monitors         *MonitorManager
	sampleConsumer   *consumer.SampleConsumer
	responseConsumer *consumer.ResponseConsumer
	alarmEvents      *AlarmEventService
	settings         *SettingsService
}

// NewFallService 创建跌倒监测服务（连接 PostgreSQL / Redis / MQTT，可选 NATS）
func NewFallService(cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) (*FallService, error) {
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 1. 连接数据库
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	// 2. 连接 Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT（命令下发 + 用户响应，默认也承载采样）
	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, err
	}

	// 4. 可选：NATS 采样通道
	var natsConn *nats.Conn
	if cfg.Fall.SampleTransport == "nats" {
		natsConn, err = stream.Connect(&cfg.NATS)
		if err != nil {
			mqttClient.Disconnect()
			db.Close()
			redisClient.Close()
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
	}

	s := &FallService{
		config:      cfg,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		natsConn:    natsConn,
		metrics:     metrics,
		logger:      logger,
	}
	s.wire(mqttClient)
	return s, nil
}

// wire 创建各层组件
func (s *FallService) wire(publisher evaluator.Publisher) {
	cfg := s.config
	logger := s.logger

	// Repository 层
	s.alarmEventsRepo = repository.NewAlarmEventsRepository(s.db, logger)
	s.settingsRepo = repository.NewMonitorSettingsRepository(s.db, cfg.Fall.Detector, logger)

	// Consumer 层（Redis）
	s.cacheManager = consumer.NewCacheManager(cfg, s.redisClient, logger)
	s.stateManager = consumer.NewStateManager(cfg, s.redisClient, logger)

	// 升级层
	var webhook evaluator.EmergencyNotifier
	if cfg.Fall.Escalation.WebhookURL != "" {
		webhook = evaluator.NewWebhookClient(cfg.Fall.Escalation.WebhookURL, logger)
	}
	s.escalator = evaluator.NewEscalator(
		cfg,
		publisher,
		s.alarmEventsRepo,
		s.stateManager,
		s.cacheManager,
		webhook,
		s.metrics,
		logger,
	)

	// 检测层
	s.monitors = NewMonitorManager(
		cfg.TenantID,
		cfg.Fall.Detector,
		cfg.Fall.DeviceQueueSize,
		s.settingsRepo,
		s.escalator,
		s.metrics,
		logger,
	)

	// 服务层
	s.alarmEvents = NewAlarmEventService(cfg.TenantID, s.alarmEventsRepo, s.escalator, s.cacheManager, s.stateManager, logger)
	s.settings = NewSettingsService(cfg.TenantID, s.settingsRepo, s.monitors, logger)

	// 消息消费
	s.sampleConsumer = consumer.NewSampleConsumer(cfg, s.monitors, s.metrics, logger)
	s.responseConsumer = consumer.NewResponseConsumer(s.alarmEvents, logger)
}

// AlarmEvents 报警事件服务（HTTP 层使用）
func (s *FallService) AlarmEvents() *AlarmEventService { return s.alarmEvents }

// Settings 设置服务（HTTP 层使用）
func (s *FallService) Settings() *SettingsService { return s.settings }

// Ready 依赖是否可用（/health）
func (s *FallService) Ready(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if !s.mqttClient.IsConnected() {
		return fmt.Errorf("mqtt: not connected")
	}
	if s.natsConn != nil && !s.natsConn.IsConnected() {
		return fmt.Errorf("nats: not connected")
	}
	return nil
}

// Start 启动服务
func (s *FallService) Start(ctx context.Context) error {
	s.logger.Info("Starting fall monitor service",
		zap.String("tenant_id", s.config.TenantID),
		zap.String("sample_transport", s.config.Fall.SampleTransport),
	)

	// 1. 升级 worker
	s.escalator.Start(ctx)

	// 2. 为已启用设备预先启动检测
	devices, err := s.settings.ListEnabledDevices(ctx)
	if err != nil {
		s.logger.Warn("Failed to list enabled devices, monitors start on first sample",
			zap.Error(err),
		)
	} else {
		s.monitors.Preload(devices)
	}

	// 3. 订阅用户响应
	if err := s.mqttClient.Subscribe(s.config.Fall.Topics.Response, s.config.MQTT.QoS, s.responseConsumer.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe responses: %w", err)
	}

	// 4. 订阅采样
	switch s.config.Fall.SampleTransport {
	case "nats":
		sub, err := s.sampleConsumer.SubscribeNATS(s.natsConn)
		if err != nil {
			return err
		}
		s.natsSub = sub
	default:
		if err := s.mqttClient.Subscribe(s.config.Fall.Topics.Accel, s.config.MQTT.QoS, s.sampleConsumer.HandleMessage); err != nil {
			return fmt.Errorf("failed to subscribe samples: %w", err)
		}
	}

	s.logger.Info("Fall monitor service started",
		zap.Int("preloaded_devices", len(devices)),
	)
	return nil
}

// Stop 停止服务
func (s *FallService) Stop() error {
	s.logger.Info("Stopping fall monitor service")

	// 先停止输入，再停止检测，最后排空升级队列
	if s.natsSub != nil {
		if err := s.natsSub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe nats", zap.Error(err))
		}
	}
	if s.mqttClient.IsConnected() {
		if err := s.mqttClient.Unsubscribe(s.config.Fall.Topics.Accel, s.config.Fall.Topics.Response); err != nil {
			s.logger.Warn("Failed to unsubscribe mqtt", zap.Error(err))
		}
	}

	s.monitors.StopAll()
	s.escalator.Stop()

	if s.natsConn != nil {
		s.natsConn.Close()
	}
	s.mqttClient.Disconnect()

	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}
	return nil
}
