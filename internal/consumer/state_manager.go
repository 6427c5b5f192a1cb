package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/AnishVcode/senior-launcher/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StateManager 跌倒升级去抖状态（Redis）
// 同一设备同类事件在去抖窗口内只升级一次，多实例部署时共享
type StateManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewStateManager 创建状态管理器
func NewStateManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *StateManager {
	return &StateManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// GetStateKey 构建去抖键，如 fall:state:launcher-01:IMPACT_CONFIRMED
func (s *StateManager) GetStateKey(deviceID, kind string) string {
	return fmt.Sprintf("%s%s:%s",
		s.config.Fall.Cache.DebounceKeyPrefix,
		deviceID,
		kind,
	)
}

// DebounceWindow 配置的去抖时间
func (s *StateManager) DebounceWindow() time.Duration {
	return time.Duration(s.config.Fall.Cache.DebounceSec) * time.Second
}

// Acquire 尝试占用去抖窗口（SETNX + TTL）
// 返回 true 表示本次应当升级；false 表示窗口内已经升级过
func (s *StateManager) Acquire(ctx context.Context, deviceID, kind string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return true, nil
	}

	key := s.GetStateKey(deviceID, kind)
	ok, err := s.redisClient.SetNX(ctx, key, time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire debounce state: %w", err)
	}

	if !ok {
		s.logger.Debug("Escalation debounced",
			zap.String("device_id", deviceID),
			zap.String("kind", kind),
		)
	}
	return ok, nil
}

// Release 清除去抖状态（用户确认 "I'm OK" 后允许下一次跌倒立即升级）
func (s *StateManager) Release(ctx context.Context, deviceID, kind string) error {
	if err := s.redisClient.Del(ctx, s.GetStateKey(deviceID, kind)).Err(); err != nil {
		return fmt.Errorf("failed to delete debounce state: %w", err)
	}
	return nil
}
