package models

import (
	"encoding/json"
	"time"
)

// 报警状态
const (
	AlarmStatusActive       = "active"
	AlarmStatusAcknowledged = "acknowledged"
)

// 报警级别
const (
	AlarmLevelAlert   = "ALERT"
	AlarmLevelWarning = "WARNING"
)

// 报警事件类型
const (
	EventTypeFall         = "Fall"
	EventTypePossibleFall = "PossibleFall"
)

// 处理结果（operation）
const (
	OperationFalseAlarm = "false_alarm"
	OperationEscalated  = "escalated"
	OperationResolved   = "resolved"
)

// AlarmEvent 报警事件（对应 alarm_events 表）
type AlarmEvent struct {
	EventID       string          `json:"event_id" db:"event_id"`
	TenantID      string          `json:"tenant_id" db:"tenant_id"`
	DeviceID      string          `json:"device_id" db:"device_id"`
	EventType     string          `json:"event_type" db:"event_type"`
	Category      string          `json:"category" db:"category"`         // safety
	AlarmLevel    string          `json:"alarm_level" db:"alarm_level"`   // ALERT, WARNING
	AlarmStatus   string          `json:"alarm_status" db:"alarm_status"` // active, acknowledged
	TriggeredAt   time.Time       `json:"triggered_at" db:"triggered_at"`
	HandTime      *time.Time      `json:"hand_time,omitempty" db:"hand_time"`
	TriggerData   json.RawMessage `json:"trigger_data" db:"trigger_data"` // JSONB
	Handler       *string         `json:"handler,omitempty" db:"handler"`
	Operation     *string         `json:"operation,omitempty" db:"operation"`
	Notes         *string         `json:"notes,omitempty" db:"notes"`
	NotifiedUsers json.RawMessage `json:"notified_users" db:"notified_users"` // JSONB
	Metadata      json.RawMessage `json:"metadata" db:"metadata"`             // JSONB
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// TriggerData 触发数据快照（JSONB 结构）
type TriggerData struct {
	EventType          string  `json:"event_type"`
	Source             string  `json:"source"` // "Accelerometer"
	DetectorEvent      string  `json:"detector_event"`
	SampleTimestamp    int64   `json:"sample_timestamp"`
	Magnitude          float64 `json:"magnitude_g"`
	DeltaMagnitude     float64 `json:"delta_magnitude_g"`
	FreeFallDurationMs *int64  `json:"free_fall_duration_ms,omitempty"`
	ImpactThreshold    float64 `json:"impact_threshold_g,omitempty"`
	JerkThreshold      float64 `json:"jerk_threshold_g,omitempty"`
}
