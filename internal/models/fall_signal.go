package models

import (
	"time"

	"github.com/AnishVcode/senior-launcher/internal/detector"
)

// FallSignal 检测器事件 + 设备上下文（交给升级队列）
type FallSignal struct {
	TenantID   string
	DeviceID   string
	Event      detector.Event
	Thresholds detector.Config
	ReceivedAt time.Time
}
