package evaluator

import (
	"encoding/json"
	"testing"

	"github.com/AnishVcode/senior-launcher/internal/detector"
	"github.com/AnishVcode/senior-launcher/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlarmEventBuilder_BuildAlarmEvent(t *testing.T) {
	builder := NewAlarmEventBuilder("tenant-123", "launcher-456")

	ev := detector.Event{
		Kind:           detector.ImpactConfirmed,
		Timestamp:      1100,
		Magnitude:      38.4,
		DeltaMagnitude: 37.9,
		FreeFallStart:  1000,
	}
	triggerData := BuildTriggerData(models.EventTypeFall, ev, detector.DefaultConfig())

	event, err := builder.BuildAlarmEvent(
		models.EventTypeFall,
		CategorySafety,
		models.AlarmLevelAlert,
		triggerData,
		map[string]interface{}{"app_version": "1.4.0"},
	)

	require.NoError(t, err)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "tenant-123", event.TenantID)
	assert.Equal(t, "launcher-456", event.DeviceID)
	assert.Equal(t, "Fall", event.EventType)
	assert.Equal(t, "safety", event.Category)
	assert.Equal(t, "ALERT", event.AlarmLevel)
	assert.Equal(t, "active", event.AlarmStatus)
	assert.JSONEq(t, `[]`, string(event.NotifiedUsers))

	var parsed models.TriggerData
	require.NoError(t, json.Unmarshal(event.TriggerData, &parsed))
	assert.Equal(t, "IMPACT_CONFIRMED", parsed.DetectorEvent)
	assert.Equal(t, SourceAccelerometer, parsed.Source)
	require.NotNil(t, parsed.FreeFallDurationMs)
	assert.Equal(t, int64(100), *parsed.FreeFallDurationMs)
	assert.Equal(t, detector.DefaultImpactThreshold, parsed.ImpactThreshold)

	var metadata map[string]interface{}
	require.NoError(t, json.Unmarshal(event.Metadata, &metadata))
	assert.Equal(t, "1.4.0", metadata["app_version"])
}

func TestAlarmEventBuilder_UniqueIDs(t *testing.T) {
	builder := NewAlarmEventBuilder("tenant-123", "launcher-456")

	a, err := builder.BuildAlarmEvent(models.EventTypeFall, CategorySafety, models.AlarmLevelAlert, &models.TriggerData{}, nil)
	require.NoError(t, err)
	b, err := builder.BuildAlarmEvent(models.EventTypeFall, CategorySafety, models.AlarmLevelAlert, &models.TriggerData{}, nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.EventID, b.EventID)
	assert.JSONEq(t, `{}`, string(a.Metadata))
}

func TestBuildTriggerData_PossibleFall(t *testing.T) {
	td := BuildTriggerData(models.EventTypePossibleFall, detector.Event{
		Kind:           detector.PossibleFall,
		Timestamp:      40,
		DeltaMagnitude: 30,
	}, detector.DefaultConfig())

	assert.Nil(t, td.FreeFallDurationMs)
	assert.Equal(t, detector.DefaultJerkThreshold, td.JerkThreshold)
	assert.Zero(t, td.ImpactThreshold)
}

func TestEventTypeFor(t *testing.T) {
	typ, level := EventTypeFor(detector.ImpactConfirmed)
	assert.Equal(t, models.EventTypeFall, typ)
	assert.Equal(t, models.AlarmLevelAlert, level)

	typ, level = EventTypeFor(detector.PossibleFall)
	assert.Equal(t, models.EventTypePossibleFall, typ)
	assert.Equal(t, models.AlarmLevelWarning, level)
}
