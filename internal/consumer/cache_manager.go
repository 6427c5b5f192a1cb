package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	rediscommon "github.com/AnishVcode/senior-launcher/common/redis"
	"github.com/AnishVcode/senior-launcher/internal/config"
	"github.com/AnishVcode/senior-launcher/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CacheManager Redis 缓存管理器（活跃报警缓存 + 报警 stream）
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

func (c *CacheManager) alarmKey(deviceID string) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Fall.Cache.AlarmKeyPrefix,
		deviceID,
		c.config.Fall.Cache.AlarmSuffix,
	)
}

// GetAlarmCache 读取设备活跃报警缓存；不存在时返回空列表
func (c *CacheManager) GetAlarmCache(ctx context.Context, deviceID string) ([]models.AlarmEvent, error) {
	val, err := c.redisClient.Get(ctx, c.alarmKey(deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return []models.AlarmEvent{}, nil
		}
		return nil, fmt.Errorf("failed to get alarm cache: %w", err)
	}

	var alarms []models.AlarmEvent
	if err := json.Unmarshal([]byte(val), &alarms); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alarm cache: %w", err)
	}
	return alarms, nil
}

// UpdateAlarmCache 覆盖写入设备活跃报警缓存（带 TTL）
func (c *CacheManager) UpdateAlarmCache(ctx context.Context, deviceID string, alarms []models.AlarmEvent) error {
	key := c.alarmKey(deviceID)

	if len(alarms) == 0 {
		if err := c.redisClient.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to clear alarm cache: %w", err)
		}
		return nil
	}

	jsonData, err := json.Marshal(alarms)
	if err != nil {
		return fmt.Errorf("failed to marshal alarm data: %w", err)
	}

	err = c.redisClient.Set(
		ctx,
		key,
		jsonData,
		time.Duration(c.config.Fall.Cache.AlarmTTL)*time.Second,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set alarm cache: %w", err)
	}

	c.logger.Debug("Updated alarm cache",
		zap.String("device_id", deviceID),
		zap.String("key", key),
		zap.Int("alarm_count", len(alarms)),
	)
	return nil
}

// AddActiveAlarm 将报警加入设备缓存（同 event_id 覆盖）
func (c *CacheManager) AddActiveAlarm(ctx context.Context, event *models.AlarmEvent) error {
	alarms, err := c.GetAlarmCache(ctx, event.DeviceID)
	if err != nil {
		return err
	}

	replaced := false
	for i := range alarms {
		if alarms[i].EventID == event.EventID {
			alarms[i] = *event
			replaced = true
			break
		}
	}
	if !replaced {
		alarms = append(alarms, *event)
	}
	return c.UpdateAlarmCache(ctx, event.DeviceID, alarms)
}

// RemoveAlarm 从设备缓存中移除报警（已确认 / 已处理）
func (c *CacheManager) RemoveAlarm(ctx context.Context, deviceID, eventID string) error {
	alarms, err := c.GetAlarmCache(ctx, deviceID)
	if err != nil {
		return err
	}

	kept := alarms[:0]
	for _, a := range alarms {
		if a.EventID != eventID {
			kept = append(kept, a)
		}
	}
	return c.UpdateAlarmCache(ctx, deviceID, kept)
}

// StreamEntry 报警 stream 消息体
type StreamEntry struct {
	EventID    string  `json:"event_id,omitempty"`
	TenantID   string  `json:"tenant_id"`
	DeviceID   string  `json:"device_id"`
	EventType  string  `json:"event_type"`
	AlarmLevel string  `json:"alarm_level"`
	Kind       string  `json:"detector_event"`
	Timestamp  int64   `json:"sample_timestamp"`
	Magnitude  float64 `json:"magnitude_g"`
	Delta      float64 `json:"delta_magnitude_g"`
}

// PublishAlarm 发布报警到 Redis stream（供下游通知 / 看板消费）
func (c *CacheManager) PublishAlarm(ctx context.Context, entry StreamEntry) (string, error) {
	id, err := rediscommon.PublishJSONToStream(ctx, c.redisClient,
		c.config.Fall.Cache.AlarmStream,
		c.config.Fall.Cache.StreamMaxLen,
		entry,
	)
	if err != nil {
		return "", fmt.Errorf("failed to publish alarm to stream: %w", err)
	}
	return id, nil
}
