package evaluator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AnishVcode/senior-launcher/internal/detector"
	"github.com/AnishVcode/senior-launcher/internal/models"

	"github.com/google/uuid"
)

// CategorySafety 跌倒报警类别
const CategorySafety = "safety"

// SourceAccelerometer 触发数据来源
const SourceAccelerometer = "Accelerometer"

// AlarmEventBuilder 报警事件构建器
type AlarmEventBuilder struct {
	tenantID string
	deviceID string
}

// NewAlarmEventBuilder 创建报警事件构建器
func NewAlarmEventBuilder(tenantID, deviceID string) *AlarmEventBuilder {
	return &AlarmEventBuilder{
		tenantID: tenantID,
		deviceID: deviceID,
	}
}

// BuildAlarmEvent 构建报警事件（状态 active）
func (b *AlarmEventBuilder) BuildAlarmEvent(
	eventType string,
	category string,
	alarmLevel string,
	triggerData *models.TriggerData,
	metadata map[string]interface{},
) (*models.AlarmEvent, error) {
	now := time.Now()

	triggerDataJSON, err := json.Marshal(triggerData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	metadataJSON := json.RawMessage("{}")
	if metadata != nil {
		metadataBytes, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = metadataBytes
	}

	event := &models.AlarmEvent{
		EventID:       uuid.New().String(),
		TenantID:      b.tenantID,
		DeviceID:      b.deviceID,
		EventType:     eventType,
		Category:      category,
		AlarmLevel:    alarmLevel,
		AlarmStatus:   models.AlarmStatusActive,
		TriggeredAt:   now,
		TriggerData:   triggerDataJSON,
		NotifiedUsers: json.RawMessage("[]"),
		Metadata:      metadataJSON,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	return event, nil
}

// BuildTriggerData 从检测器事件构建触发数据快照
func BuildTriggerData(eventType string, ev detector.Event, thresholds detector.Config) *models.TriggerData {
	td := &models.TriggerData{
		EventType:       eventType,
		Source:          SourceAccelerometer,
		DetectorEvent:   string(ev.Kind),
		SampleTimestamp: ev.Timestamp,
		Magnitude:       ev.Magnitude,
		DeltaMagnitude:  ev.DeltaMagnitude,
	}

	switch ev.Kind {
	case detector.ImpactConfirmed:
		d := ev.FreeFallDurationMs()
		td.FreeFallDurationMs = &d
		td.ImpactThreshold = thresholds.ImpactThreshold
	case detector.PossibleFall:
		td.JerkThreshold = thresholds.JerkThreshold
	}
	return td
}

// EventTypeFor 检测器事件对应的报警事件类型和级别
func EventTypeFor(kind detector.EventKind) (eventType, alarmLevel string) {
	if kind == detector.ImpactConfirmed {
		return models.EventTypeFall, models.AlarmLevelAlert
	}
	return models.EventTypePossibleFall, models.AlarmLevelWarning
}
