package service

import (
	"context"
	"fmt"

	"github.com/AnishVcode/senior-launcher/internal/consumer"
	"github.com/AnishVcode/senior-launcher/internal/detector"
	"github.com/AnishVcode/senior-launcher/internal/models"
	"github.com/AnishVcode/senior-launcher/internal/repository"

	"go.uber.org/zap"
)

// LauncherCommands 下发到 launcher 的命令（Escalator 实现）
type LauncherCommands interface {
	CancelNotification(deviceID, eventID string) error
	LaunchEmergency(ctx context.Context, alarm *models.AlarmEvent, reason string) error
}

// AlarmEventService 报警事件服务层
// 职责：
// 1. 查询（租户校验、分页默认值）
// 2. 处理用户对跌倒通知的响应（I'm OK / Get Help）
type AlarmEventService struct {
	tenantID        string
	alarmEventsRepo *repository.AlarmEventsRepository
	commands        LauncherCommands
	cache           *consumer.CacheManager
	stateManager    *consumer.StateManager
	logger          *zap.Logger
}

// NewAlarmEventService 创建报警事件服务；cache 和 stateManager 可为 nil
func NewAlarmEventService(
	tenantID string,
	alarmEventsRepo *repository.AlarmEventsRepository,
	commands LauncherCommands,
	cache *consumer.CacheManager,
	stateManager *consumer.StateManager,
	logger *zap.Logger,
) *AlarmEventService {
	return &AlarmEventService{
		tenantID:        tenantID,
		alarmEventsRepo: alarmEventsRepo,
		commands:        commands,
		cache:           cache,
		stateManager:    stateManager,
		logger:          logger,
	}
}

// ListAlarmEvents 查询报警事件列表
// 业务规则：
// - page 默认 1
// - size 默认 20，最大 100
func (s *AlarmEventService) ListAlarmEvents(
	ctx context.Context,
	filters repository.AlarmEventFilters,
	page, size int,
) ([]*models.AlarmEvent, int, error) {
	if s.tenantID == "" {
		return nil, 0, fmt.Errorf("tenant_id is required")
	}
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	events, total, err := s.alarmEventsRepo.ListAlarmEvents(ctx, s.tenantID, filters, page, size)
	if err != nil {
		s.logger.Error("Failed to list alarm events",
			zap.String("tenant_id", s.tenantID),
			zap.Error(err),
		)
		return nil, 0, fmt.Errorf("failed to list alarm events: %w", err)
	}
	return events, total, nil
}

// GetAlarmEvent 获取单个报警事件
func (s *AlarmEventService) GetAlarmEvent(ctx context.Context, eventID string) (*models.AlarmEvent, error) {
	if s.tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if eventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}
	return s.alarmEventsRepo.GetAlarmEvent(ctx, s.tenantID, eventID)
}

// HandleResponse 处理用户响应
// deviceID 为空表示来自 HTTP API（不校验设备归属）
// - im_ok：只能处理 active 报警 → acknowledged + false_alarm，取消通知
// - get_help：可处理 active / acknowledged 报警 → acknowledged + escalated，清除活跃缓存，重新启动紧急流程
func (s *AlarmEventService) HandleResponse(ctx context.Context, deviceID string, resp models.UserResponse) error {
	event, err := s.GetAlarmEvent(ctx, resp.EventID)
	if err != nil {
		return err
	}
	if deviceID != "" && event.DeviceID != deviceID {
		return fmt.Errorf("alarm event %s does not belong to device %s", resp.EventID, deviceID)
	}

	handler := "api"
	if deviceID != "" {
		handler = "device:" + deviceID
	}

	switch resp.Action {
	case models.ActionImOK:
		return s.acknowledge(ctx, event, handler)
	case models.ActionGetHelp:
		return s.escalate(ctx, event, handler)
	default:
		return fmt.Errorf("invalid action: %s", resp.Action)
	}
}

func (s *AlarmEventService) acknowledge(ctx context.Context, event *models.AlarmEvent, handler string) error {
	if event.AlarmStatus != models.AlarmStatusActive {
		return fmt.Errorf("alarm event %s is not active (status=%s)", event.EventID, event.AlarmStatus)
	}

	// 1. 更新报警状态
	if err := s.alarmEventsRepo.AcknowledgeAlarmEvent(ctx, s.tenantID, event.EventID, handler); err != nil {
		return fmt.Errorf("failed to acknowledge alarm event: %w", err)
	}

	// 2. 取消设备上的通知
	if err := s.commands.CancelNotification(event.DeviceID, event.EventID); err != nil {
		s.logger.Warn("Failed to cancel fall notification",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}

	// 3. 清理缓存和去抖状态（下一次跌倒立即升级）
	s.clearActive(ctx, event)
	if s.stateManager != nil {
		if err := s.stateManager.Release(ctx, event.DeviceID, string(detector.ImpactConfirmed)); err != nil {
			s.logger.Warn("Failed to release debounce state",
				zap.String("device_id", event.DeviceID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Fall alarm acknowledged as false alarm",
		zap.String("event_id", event.EventID),
		zap.String("device_id", event.DeviceID),
		zap.String("handler", handler),
	)
	return nil
}

func (s *AlarmEventService) escalate(ctx context.Context, event *models.AlarmEvent, handler string) error {
	if event.AlarmStatus != models.AlarmStatusActive && event.AlarmStatus != models.AlarmStatusAcknowledged {
		return fmt.Errorf("alarm event %s cannot be escalated (status=%s)", event.EventID, event.AlarmStatus)
	}

	// 1. 状态改为 acknowledged + escalated，之后的 im_ok 会被拒绝
	if err := s.alarmEventsRepo.EscalateAlarmEvent(ctx, s.tenantID, event.EventID,
		handler, "user requested help"); err != nil {
		return fmt.Errorf("failed to escalate alarm event: %w", err)
	}
	s.clearActive(ctx, event)

	// 2. 取消通知并启动紧急流程

	if err := s.commands.CancelNotification(event.DeviceID, event.EventID); err != nil {
		s.logger.Warn("Failed to cancel fall notification",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}

	if err := s.commands.LaunchEmergency(ctx, event, "user_requested_help"); err != nil {
		return fmt.Errorf("failed to launch emergency flow: %w", err)
	}

	s.logger.Info("Fall alarm escalated by user",
		zap.String("event_id", event.EventID),
		zap.String("device_id", event.DeviceID),
		zap.String("handler", handler),
	)
	return nil
}

func (s *AlarmEventService) clearActive(ctx context.Context, event *models.AlarmEvent) {
	if s.cache == nil {
		return
	}
	if err := s.cache.RemoveAlarm(ctx, event.DeviceID, event.EventID); err != nil {
		s.logger.Warn("Failed to remove alarm from cache",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}
