package service

import (
	"context"
	"fmt"

	"github.com/AnishVcode/senior-launcher/internal/models"
	"github.com/AnishVcode/senior-launcher/internal/repository"

	"go.uber.org/zap"
)

// MonitorRestarter 设置变更后重启设备检测
type MonitorRestarter interface {
	Restart(deviceID string)
}

// SettingsService 设备跌倒监测设置服务
type SettingsService struct {
	tenantID     string
	settingsRepo *repository.MonitorSettingsRepository
	monitors     MonitorRestarter
	logger       *zap.Logger
}

// NewSettingsService 创建设置服务
func NewSettingsService(
	tenantID string,
	settingsRepo *repository.MonitorSettingsRepository,
	monitors MonitorRestarter,
	logger *zap.Logger,
) *SettingsService {
	return &SettingsService{
		tenantID:     tenantID,
		settingsRepo: settingsRepo,
		monitors:     monitors,
		logger:       logger,
	}
}

// GetSettings 获取设备设置（没有记录时返回默认值）
func (s *SettingsService) GetSettings(ctx context.Context, deviceID string) (*models.MonitorSettings, error) {
	if s.tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	return s.settingsRepo.GetSettings(ctx, s.tenantID, deviceID)
}

// UpdateSettings 保存设备设置并重启该设备的检测（状态清零）
func (s *SettingsService) UpdateSettings(ctx context.Context, settings *models.MonitorSettings) error {
	if s.tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	settings.TenantID = s.tenantID

	if err := s.settingsRepo.UpsertSettings(ctx, settings); err != nil {
		return err
	}

	if s.monitors != nil {
		s.monitors.Restart(settings.DeviceID)
	}
	return nil
}

// ListEnabledDevices 列出启用的设备
func (s *SettingsService) ListEnabledDevices(ctx context.Context) ([]string, error) {
	if s.tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	return s.settingsRepo.ListEnabledDevices(ctx, s.tenantID)
}
