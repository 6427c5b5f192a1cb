package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AnishVcode/senior-launcher/internal/config"
	"github.com/AnishVcode/senior-launcher/internal/consumer"
	"github.com/AnishVcode/senior-launcher/internal/detector"
	"github.com/AnishVcode/senior-launcher/internal/models"
	"github.com/AnishVcode/senior-launcher/internal/observability"
	"github.com/AnishVcode/senior-launcher/internal/repository"

	"go.uber.org/zap"
)

// Publisher 向 launcher 下发命令（MQTT 客户端实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Escalator 跌倒事件升级器
// 检测 goroutine 通过 Submit 非阻塞投递，worker 池负责 I/O
type Escalator struct {
	config          *config.Config
	publisher       Publisher
	alarmEventsRepo *repository.AlarmEventsRepository
	stateManager    *consumer.StateManager
	cache           *consumer.CacheManager
	webhook         EmergencyNotifier
	metrics         *observability.Metrics
	logger          *zap.Logger

	queue   chan models.FallSignal
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewEscalator 创建升级器；webhook 和 metrics 可为 nil
func NewEscalator(
	cfg *config.Config,
	publisher Publisher,
	alarmEventsRepo *repository.AlarmEventsRepository,
	stateManager *consumer.StateManager,
	cache *consumer.CacheManager,
	webhook EmergencyNotifier,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Escalator {
	size := cfg.Fall.Escalation.QueueSize
	if size <= 0 {
		size = 256
	}
	return &Escalator{
		config:          cfg,
		publisher:       publisher,
		alarmEventsRepo: alarmEventsRepo,
		stateManager:    stateManager,
		cache:           cache,
		webhook:         webhook,
		metrics:         metrics,
		logger:          logger,
		queue:           make(chan models.FallSignal, size),
	}
}

// Start 启动 worker；ctx 取消或 Stop 后退出
func (e *Escalator) Start(ctx context.Context) {
	workers := e.config.Fall.Escalation.Workers
	if workers <= 0 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go func(id int) {
			defer e.wg.Done()
			e.worker(ctx, id)
		}(i)
	}

	e.logger.Info("Escalator started",
		zap.Int("workers", workers),
		zap.Int("queue_size", cap(e.queue)),
	)
}

func (e *Escalator) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-e.queue:
			if !ok {
				return
			}
			if err := e.Process(ctx, sig); err != nil {
				e.logger.Error("Escalation finished with errors",
					zap.Int("worker", id),
					zap.String("device_id", sig.DeviceID),
					zap.String("kind", string(sig.Event.Kind)),
					zap.Error(err),
				)
			}
		}
	}
}

// Submit 非阻塞投递；队列已满或已停止时丢弃并返回 false
func (e *Escalator) Submit(sig models.FallSignal) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.stopped {
		return false
	}

	select {
	case e.queue <- sig:
		return true
	default:
		e.metrics.EscalationDropped()
		e.logger.Warn("Escalation queue full, dropping fall signal",
			zap.String("device_id", sig.DeviceID),
			zap.String("kind", string(sig.Event.Kind)),
			zap.Int64("timestamp", sig.Event.Timestamp),
		)
		return false
	}
}

// Stop 停止接收并等待 worker 处理完队列
func (e *Escalator) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.queue)
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("Escalator stopped")
}

// Process 同步处理一个跌倒信号
// 各步骤失败只记录日志，不中断后续步骤；返回所有步骤的错误
func (e *Escalator) Process(ctx context.Context, sig models.FallSignal) error {
	kind := string(sig.Event.Kind)

	// 1. 去抖
	if e.debounced(ctx, sig) {
		e.metrics.Escalation(kind, "debounced")
		return nil
	}

	var err error
	switch sig.Event.Kind {
	case detector.ImpactConfirmed:
		err = e.escalateImpact(ctx, sig)
	case detector.PossibleFall:
		err = e.escalatePossibleFall(ctx, sig)
	default:
		return fmt.Errorf("unknown detector event: %s", kind)
	}

	if err != nil {
		e.metrics.Escalation(kind, "failed")
	} else {
		e.metrics.Escalation(kind, "escalated")
	}
	return err
}

// debounced 同一设备同类事件在去抖窗口内只升级一次
// Redis 不可用时，IMPACT_CONFIRMED 退回到数据库中最近的活跃报警判断；两者都失败则照常升级
func (e *Escalator) debounced(ctx context.Context, sig models.FallSignal) bool {
	if e.stateManager == nil {
		return false
	}
	kind := string(sig.Event.Kind)
	window := e.stateManager.DebounceWindow()

	ok, err := e.stateManager.Acquire(ctx, sig.DeviceID, kind, window)
	if err == nil {
		return !ok
	}
	e.logger.Warn("Debounce check failed",
		zap.String("device_id", sig.DeviceID),
		zap.String("kind", kind),
		zap.Error(err),
	)

	if sig.Event.Kind != detector.ImpactConfirmed || e.alarmEventsRepo == nil {
		return false
	}
	eventType, _ := EventTypeFor(sig.Event.Kind)
	recent, err := e.alarmEventsRepo.GetRecentAlarmEvent(ctx, sig.TenantID, sig.DeviceID, eventType, window)
	if err != nil {
		e.logger.Warn("Recent alarm lookup failed, escalating anyway",
			zap.String("device_id", sig.DeviceID),
			zap.Error(err),
		)
		return false
	}
	return recent != nil
}

// escalateImpact 高置信度跌倒：振动、报警记录、通知、紧急流程、stream + 缓存
func (e *Escalator) escalateImpact(ctx context.Context, sig models.FallSignal) error {
	var errs []error

	// 1. 振动提醒
	if err := e.SendHaptic(sig.DeviceID, sig.Event.Kind); err != nil {
		errs = append(errs, err)
	}

	// 2. 报警记录
	eventType, level := EventTypeFor(sig.Event.Kind)
	builder := NewAlarmEventBuilder(sig.TenantID, sig.DeviceID)
	alarm, err := builder.BuildAlarmEvent(
		eventType,
		CategorySafety,
		level,
		BuildTriggerData(eventType, sig.Event, sig.Thresholds),
		map[string]interface{}{
			"received_at": sig.ReceivedAt.UTC().Format(time.RFC3339Nano),
		},
	)
	if err != nil {
		// 构建失败无法生成 event_id，通知按钮无法回传，直接返回
		return errors.Join(append(errs, err)...)
	}

	if e.alarmEventsRepo != nil {
		if err := e.alarmEventsRepo.CreateAlarmEvent(ctx, sig.TenantID, alarm); err != nil {
			e.logger.Error("Failed to persist alarm event",
				zap.String("event_id", alarm.EventID),
				zap.String("device_id", sig.DeviceID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}

	// 3. 可取消通知（I'm OK / Get Help）
	if err := e.publishJSON(fmt.Sprintf(e.config.Fall.Topics.Notify, sig.DeviceID),
		models.NewFallNotification(alarm.EventID)); err != nil {
		errs = append(errs, err)
	}

	// 4. 紧急流程
	if err := e.LaunchEmergency(ctx, alarm, "fall_detected"); err != nil {
		errs = append(errs, err)
	}

	// 5. stream + 活跃报警缓存
	if err := e.publishStream(ctx, sig, alarm.EventID, eventType, level); err != nil {
		errs = append(errs, err)
	}
	if e.cache != nil {
		if err := e.cache.AddActiveAlarm(ctx, alarm); err != nil {
			e.logger.Warn("Failed to update alarm cache",
				zap.String("device_id", sig.DeviceID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}

	e.logger.Info("Fall escalated",
		zap.String("event_id", alarm.EventID),
		zap.String("device_id", sig.DeviceID),
		zap.Int64("timestamp", sig.Event.Timestamp),
		zap.Float64("magnitude", sig.Event.Magnitude),
		zap.Int64("free_fall_ms", sig.Event.FreeFallDurationMs()),
	)

	return errors.Join(errs...)
}

// escalatePossibleFall 低置信度：只振动提醒 + stream 记录
func (e *Escalator) escalatePossibleFall(ctx context.Context, sig models.FallSignal) error {
	var errs []error

	if err := e.SendHaptic(sig.DeviceID, sig.Event.Kind); err != nil {
		errs = append(errs, err)
	}

	eventType, level := EventTypeFor(sig.Event.Kind)
	if err := e.publishStream(ctx, sig, "", eventType, level); err != nil {
		errs = append(errs, err)
	}

	e.logger.Info("Possible fall reported",
		zap.String("device_id", sig.DeviceID),
		zap.Int64("timestamp", sig.Event.Timestamp),
		zap.Float64("delta_magnitude", sig.Event.DeltaMagnitude),
	)

	return errors.Join(errs...)
}

// SendHaptic 下发振动提醒
func (e *Escalator) SendHaptic(deviceID string, kind detector.EventKind) error {
	return e.publishJSON(fmt.Sprintf(e.config.Fall.Topics.Haptic, deviceID), models.HapticCommand{
		Pattern: models.HapticPattern,
		Repeat:  -1,
		Reason:  string(kind),
	})
}

// LaunchEmergency 下发紧急流程命令，并通知 webhook（如已配置）
func (e *Escalator) LaunchEmergency(ctx context.Context, alarm *models.AlarmEvent, reason string) error {
	var errs []error

	if err := e.publishJSON(fmt.Sprintf(e.config.Fall.Topics.Emergency, alarm.DeviceID), models.EmergencyLaunch{
		EventID:      alarm.EventID,
		FallDetected: true,
		Reason:       reason,
	}); err != nil {
		errs = append(errs, err)
	}

	if e.webhook != nil {
		if err := e.webhook.NotifyEmergency(ctx, alarm, reason); err != nil {
			e.logger.Error("Emergency webhook failed",
				zap.String("event_id", alarm.EventID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// CancelNotification 取消设备上的跌倒通知
func (e *Escalator) CancelNotification(deviceID, eventID string) error {
	return e.publishJSON(fmt.Sprintf(e.config.Fall.Topics.Notify, deviceID), models.NewCancelNotification(eventID))
}

func (e *Escalator) publishStream(ctx context.Context, sig models.FallSignal, eventID, eventType, level string) error {
	if e.cache == nil {
		return nil
	}
	_, err := e.cache.PublishAlarm(ctx, consumer.StreamEntry{
		EventID:    eventID,
		TenantID:   sig.TenantID,
		DeviceID:   sig.DeviceID,
		EventType:  eventType,
		AlarmLevel: level,
		Kind:       string(sig.Event.Kind),
		Timestamp:  sig.Event.Timestamp,
		Magnitude:  sig.Event.Magnitude,
		Delta:      sig.Event.DeltaMagnitude,
	})
	if err != nil {
		e.logger.Warn("Failed to publish alarm stream entry",
			zap.String("device_id", sig.DeviceID),
			zap.Error(err),
		)
	}
	return err
}

func (e *Escalator) publishJSON(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	if err := e.publisher.Publish(topic, e.config.MQTT.QoS, false, payload); err != nil {
		e.logger.Error("Failed to publish launcher command",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return err
	}
	return nil
}
