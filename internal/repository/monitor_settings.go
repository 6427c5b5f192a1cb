package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AnishVcode/senior-launcher/internal/detector"
	"github.com/AnishVcode/senior-launcher/internal/models"

	"go.uber.org/zap"
)

// MonitorSettingsRepository 设备跌倒监测设置仓库（fall_monitor_settings 表）
type MonitorSettingsRepository struct {
	db       *sql.DB
	defaults detector.Config
	logger   *zap.Logger
}

// NewMonitorSettingsRepository 创建设置仓库；defaults 用于没有记录的设备
func NewMonitorSettingsRepository(db *sql.DB, defaults detector.Config, logger *zap.Logger) *MonitorSettingsRepository {
	return &MonitorSettingsRepository{
		db:       db,
		defaults: defaults.WithDefaults(),
		logger:   logger,
	}
}

// GetSettings 获取设备设置；没有记录时返回服务默认阈值（启用）
func (r *MonitorSettingsRepository) GetSettings(ctx context.Context, tenantID, deviceID string) (*models.MonitorSettings, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `
		SELECT
			enabled,
			fall_threshold,
			impact_threshold,
			fall_window_ms,
			jerk_threshold,
			min_sample_interval_ms,
			updated_at
		FROM fall_monitor_settings
		WHERE tenant_id = $1 AND device_id = $2
	`

	settings := &models.MonitorSettings{
		TenantID: tenantID,
		DeviceID: deviceID,
	}
	var d detector.Config
	err := r.db.QueryRowContext(ctx, query, tenantID, deviceID).Scan(
		&settings.Enabled,
		&d.FallThreshold,
		&d.ImpactThreshold,
		&d.FallWindowMs,
		&d.JerkThreshold,
		&d.MinSampleIntervalMs,
		&settings.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			settings.Enabled = true
			settings.Detector = r.defaults
			return settings, nil
		}
		return nil, fmt.Errorf("failed to get monitor settings: %w", err)
	}

	// 数据库中为 0 的阈值回退到服务默认
	settings.Detector = fillFrom(d, r.defaults)
	return settings, nil
}

// UpsertSettings 写入设备设置（阈值需通过校验）
func (r *MonitorSettingsRepository) UpsertSettings(ctx context.Context, settings *models.MonitorSettings) error {
	if settings == nil {
		return fmt.Errorf("settings is required")
	}
	if settings.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if settings.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	d := fillFrom(settings.Detector, r.defaults)
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid detector thresholds: %w", err)
	}
	settings.Detector = d

	query := `
		INSERT INTO fall_monitor_settings (
			tenant_id, device_id, enabled,
			fall_threshold, impact_threshold, fall_window_ms,
			jerk_threshold, min_sample_interval_ms, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (tenant_id, device_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			fall_threshold = EXCLUDED.fall_threshold,
			impact_threshold = EXCLUDED.impact_threshold,
			fall_window_ms = EXCLUDED.fall_window_ms,
			jerk_threshold = EXCLUDED.jerk_threshold,
			min_sample_interval_ms = EXCLUDED.min_sample_interval_ms,
			updated_at = NOW()
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		settings.TenantID,
		settings.DeviceID,
		settings.Enabled,
		d.FallThreshold,
		d.ImpactThreshold,
		d.FallWindowMs,
		d.JerkThreshold,
		d.MinSampleIntervalMs,
	).Scan(&settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert monitor settings: %w", err)
	}

	r.logger.Info("Monitor settings updated",
		zap.String("tenant_id", settings.TenantID),
		zap.String("device_id", settings.DeviceID),
		zap.Bool("enabled", settings.Enabled),
	)
	return nil
}

// ListEnabledDevices 列出启用了跌倒监测的设备
func (r *MonitorSettingsRepository) ListEnabledDevices(ctx context.Context, tenantID string) ([]string, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `
		SELECT device_id
		FROM fall_monitor_settings
		WHERE tenant_id = $1 AND enabled = TRUE
		ORDER BY device_id
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled devices: %w", err)
	}
	defer rows.Close()

	devices := []string{}
	for rows.Next() {
		var deviceID string
		if err := rows.Scan(&deviceID); err != nil {
			return nil, fmt.Errorf("failed to scan device_id: %w", err)
		}
		devices = append(devices, deviceID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return devices, nil
}

// fillFrom 用 defaults 填充 c 中为 0 的字段
func fillFrom(c, defaults detector.Config) detector.Config {
	if c.FallThreshold == 0 {
		c.FallThreshold = defaults.FallThreshold
	}
	if c.ImpactThreshold == 0 {
		c.ImpactThreshold = defaults.ImpactThreshold
	}
	if c.FallWindowMs == 0 {
		c.FallWindowMs = defaults.FallWindowMs
	}
	if c.JerkThreshold == 0 {
		c.JerkThreshold = defaults.JerkThreshold
	}
	if c.MinSampleIntervalMs == 0 {
		c.MinSampleIntervalMs = defaults.MinSampleIntervalMs
	}
	if c.MaxAbsAcceleration == 0 {
		c.MaxAbsAcceleration = defaults.MaxAbsAcceleration
	}
	return c
}
