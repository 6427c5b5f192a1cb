package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AnishVcode/senior-launcher/internal/config"
	"github.com/AnishVcode/senior-launcher/internal/consumer"
	"github.com/AnishVcode/senior-launcher/internal/detector"
	"github.com/AnishVcode/senior-launcher/internal/models"
	"github.com/AnishVcode/senior-launcher/internal/observability"
	"github.com/AnishVcode/senior-launcher/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, payload})
	return p.err
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.topic)
	}
	return out
}

func (p *fakePublisher) find(topic string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.msgs {
		if m.topic == topic {
			return m.payload
		}
	}
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.TenantID = "tenant-1"
	cfg.MQTT.QoS = 1
	cfg.Fall.Topics.Haptic = "launcher/%s/haptic"
	cfg.Fall.Topics.Notify = "launcher/%s/notify"
	cfg.Fall.Topics.Emergency = "launcher/%s/emergency"
	cfg.Fall.Cache.DebounceKeyPrefix = "fall:state:"
	cfg.Fall.Cache.DebounceSec = 30
	cfg.Fall.Cache.AlarmKeyPrefix = "fall:device:"
	cfg.Fall.Cache.AlarmSuffix = ":alarms"
	cfg.Fall.Cache.AlarmTTL = 300
	cfg.Fall.Cache.AlarmStream = "fall:alarm:stream"
	cfg.Fall.Cache.StreamMaxLen = 100
	cfg.Fall.Escalation.QueueSize = 2
	cfg.Fall.Escalation.Workers = 1
	return cfg
}

type testEnv struct {
	escalator *Escalator
	publisher *fakePublisher
	mock      sqlmock.Sqlmock
	redis     *redis.Client
	mr        *miniredis.Miniredis
	metrics   *observability.Metrics
}

func setupEscalator(t *testing.T, webhook EmergencyNotifier) *testEnv {
	cfg := testConfig()
	logger := zap.NewNop()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	pub := &fakePublisher{}
	metrics := observability.NewMetrics()
	esc := NewEscalator(
		cfg,
		pub,
		repository.NewAlarmEventsRepository(db, logger),
		consumer.NewStateManager(cfg, rc, logger),
		consumer.NewCacheManager(cfg, rc, logger),
		webhook,
		metrics,
		logger,
	)
	return &testEnv{escalator: esc, publisher: pub, mock: mock, redis: rc, mr: mr, metrics: metrics}
}

func impactSignal() models.FallSignal {
	return models.FallSignal{
		TenantID: "tenant-1",
		DeviceID: "launcher-01",
		Event: detector.Event{
			Kind:           detector.ImpactConfirmed,
			Timestamp:      100,
			Magnitude:      38,
			DeltaMagnitude: 36.5,
			FreeFallStart:  50,
		},
		Thresholds: detector.DefaultConfig(),
		ReceivedAt: time.Now(),
	}
}

func possibleSignal() models.FallSignal {
	return models.FallSignal{
		TenantID: "tenant-1",
		DeviceID: "launcher-01",
		Event: detector.Event{
			Kind:           detector.PossibleFall,
			Timestamp:      100,
			Magnitude:      38,
			DeltaMagnitude: 36.5,
		},
		Thresholds: detector.DefaultConfig(),
		ReceivedAt: time.Now(),
	}
}

func TestEscalator_ImpactConfirmed(t *testing.T) {
	env := setupEscalator(t, nil)
	ctx := context.Background()

	env.mock.ExpectExec(`INSERT INTO alarm_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := env.escalator.Process(ctx, impactSignal())
	require.NoError(t, err)
	require.NoError(t, env.mock.ExpectationsWereMet())

	assert.Equal(t, []string{
		"launcher/launcher-01/haptic",
		"launcher/launcher-01/notify",
		"launcher/launcher-01/emergency",
	}, env.publisher.topics())

	var haptic models.HapticCommand
	require.NoError(t, json.Unmarshal(env.publisher.find("launcher/launcher-01/haptic"), &haptic))
	assert.Equal(t, []int64{0, 500, 200, 500, 200, 500}, haptic.Pattern)
	assert.Equal(t, -1, haptic.Repeat)

	var notification models.FallNotification
	require.NoError(t, json.Unmarshal(env.publisher.find("launcher/launcher-01/notify"), &notification))
	assert.Equal(t, models.FallNotificationID, notification.ID)
	assert.Equal(t, "Fall Detected!", notification.Title)
	require.Len(t, notification.Actions, 2)
	assert.Equal(t, models.ActionImOK, notification.Actions[0].Action)
	assert.Equal(t, models.ActionGetHelp, notification.Actions[1].Action)
	assert.NotEmpty(t, notification.EventID)

	var emergency models.EmergencyLaunch
	require.NoError(t, json.Unmarshal(env.publisher.find("launcher/launcher-01/emergency"), &emergency))
	assert.True(t, emergency.FallDetected)
	assert.Equal(t, notification.EventID, emergency.EventID)

	// stream entry + active alarm cache
	msgs, err := env.redis.XRange(ctx, "fall:alarm:stream", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, env.mr.Exists("fall:device:launcher-01:alarms"))
}

func TestEscalator_DebouncesRepeatedImpact(t *testing.T) {
	env := setupEscalator(t, nil)
	ctx := context.Background()

	env.mock.ExpectExec(`INSERT INTO alarm_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, env.escalator.Process(ctx, impactSignal()))
	require.NoError(t, env.escalator.Process(ctx, impactSignal()))

	// only one round of commands and one INSERT
	assert.Len(t, env.publisher.topics(), 3)
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestEscalator_PossibleFall_HapticOnly(t *testing.T) {
	env := setupEscalator(t, nil)
	ctx := context.Background()

	require.NoError(t, env.escalator.Process(ctx, possibleSignal()))

	assert.Equal(t, []string{"launcher/launcher-01/haptic"}, env.publisher.topics())
	require.NoError(t, env.mock.ExpectationsWereMet())

	msgs, err := env.redis.XRange(ctx, "fall:alarm:stream", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var entry consumer.StreamEntry
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &entry))
	assert.Equal(t, models.AlarmLevelWarning, entry.AlarmLevel)
	assert.Equal(t, models.EventTypePossibleFall, entry.EventType)
	assert.False(t, env.mr.Exists("fall:device:launcher-01:alarms"))
}

func TestEscalator_StepFailuresDoNotAbort(t *testing.T) {
	env := setupEscalator(t, nil)
	env.publisher.err = errors.New("broker down")

	env.mock.ExpectExec(`INSERT INTO alarm_events`).
		WillReturnError(errors.New("db down"))

	err := env.escalator.Process(context.Background(), impactSignal())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Contains(t, err.Error(), "db down")
	// every command was still attempted
	assert.Len(t, env.publisher.topics(), 3)
	assert.True(t, env.mr.Exists("fall:device:launcher-01:alarms"))
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestEscalator_Webhook(t *testing.T) {
	var calls int32
	received := make(chan EmergencyPayload, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var p EmergencyPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		received <- p
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	env := setupEscalator(t, NewWebhookClient(srv.URL, zap.NewNop()))
	env.mock.ExpectExec(`INSERT INTO alarm_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, env.escalator.Process(context.Background(), impactSignal()))

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	got := <-received
	assert.Equal(t, "fall_detected", got.Reason)
	require.NotNil(t, got.Alarm)
	assert.Equal(t, "launcher-01", got.Alarm.DeviceID)
	assert.Equal(t, models.EventTypeFall, got.Alarm.EventType)
}

func TestWebhookClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewWebhookClient(srv.URL, zap.NewNop())
	err := c.NotifyEmergency(context.Background(), &models.AlarmEvent{EventID: "evt-1"}, "fall_detected")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestEscalator_SubmitDropsWhenFull(t *testing.T) {
	env := setupEscalator(t, nil)

	// workers not started: queue of 2 fills up
	assert.True(t, env.escalator.Submit(possibleSignal()))
	assert.True(t, env.escalator.Submit(possibleSignal()))
	assert.False(t, env.escalator.Submit(possibleSignal()))
}

func TestEscalator_WorkersDrainQueue(t *testing.T) {
	env := setupEscalator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env.escalator.Start(ctx)
	require.True(t, env.escalator.Submit(possibleSignal()))
	env.escalator.Stop()

	assert.Equal(t, []string{"launcher/launcher-01/haptic"}, env.publisher.topics())
	assert.False(t, env.escalator.Submit(possibleSignal()), "stopped escalator rejects signals")
}

func TestEscalator_CancelNotification(t *testing.T) {
	env := setupEscalator(t, nil)

	require.NoError(t, env.escalator.CancelNotification("launcher-01", "evt-1"))

	var n models.FallNotification
	require.NoError(t, json.Unmarshal(env.publisher.find("launcher/launcher-01/notify"), &n))
	assert.True(t, n.Cancel)
	assert.Equal(t, models.FallNotificationID, n.ID)
	assert.Equal(t, "evt-1", n.EventID)
}

func TestEscalator_RedisDown_RecentAlarmInDatabaseDebounces(t *testing.T) {
	env := setupEscalator(t, nil)
	env.mr.Close()

	now := time.Now()
	env.mock.ExpectQuery(`SELECT`).
		WithArgs("tenant-1", "launcher-01", models.EventTypeFall, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "tenant_id", "device_id", "event_type", "category",
			"alarm_level", "alarm_status", "triggered_at", "hand_time",
			"trigger_data", "handler", "operation",
			"notes", "notified_users", "metadata", "created_at", "updated_at",
		}).AddRow(
			"evt-1", "tenant-1", "launcher-01", models.EventTypeFall, CategorySafety,
			models.AlarmLevelAlert, models.AlarmStatusActive, now, nil,
			`{}`, nil, nil, nil, `[]`, `{}`, now, now,
		))

	require.NoError(t, env.escalator.Process(context.Background(), impactSignal()))

	assert.Empty(t, env.publisher.topics())
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestEscalator_RedisDown_NoRecentAlarmEscalates(t *testing.T) {
	env := setupEscalator(t, nil)
	env.mr.Close()

	env.mock.ExpectQuery(`SELECT`).
		WithArgs("tenant-1", "launcher-01", models.EventTypeFall, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}))
	env.mock.ExpectExec(`INSERT INTO alarm_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := env.escalator.Process(context.Background(), impactSignal())

	// stream and cache writes fail with redis down; the device commands still go out
	require.Error(t, err)
	assert.Equal(t, []string{
		"launcher/launcher-01/haptic",
		"launcher/launcher-01/notify",
		"launcher/launcher-01/emergency",
	}, env.publisher.topics())
	require.NoError(t, env.mock.ExpectationsWereMet())
}
