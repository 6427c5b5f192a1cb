package models

import (
	"time"

	"github.com/AnishVcode/senior-launcher/internal/detector"
)

// MonitorSettings 设备跌倒监测设置（对应 fall_monitor_settings 表）
type MonitorSettings struct {
	TenantID  string          `json:"tenant_id" db:"tenant_id"`
	DeviceID  string          `json:"device_id" db:"device_id"`
	Enabled   bool            `json:"enabled" db:"enabled"`
	Detector  detector.Config `json:"detector"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
