package service

import (
	"context"
	"sync"
	"time"

	"github.com/AnishVcode/senior-launcher/internal/detector"
	"github.com/AnishVcode/senior-launcher/internal/models"
	"github.com/AnishVcode/senior-launcher/internal/observability"

	"go.uber.org/zap"
)

// SettingsProvider 设备设置来源（MonitorSettingsRepository 实现）
type SettingsProvider interface {
	GetSettings(ctx context.Context, tenantID, deviceID string) (*models.MonitorSettings, error)
}

// SignalSink 跌倒信号接收方（Escalator 实现），必须非阻塞
type SignalSink interface {
	Submit(sig models.FallSignal) bool
}

// monitor 单设备检测 goroutine
// samples 只在持有 MonitorManager.mu 且 monitor 仍在 map 中时写入，
// 从 map 移除后即可安全关闭
type monitor struct {
	samples    chan detector.Sample
	done       chan struct{}
	enabled    bool
	thresholds detector.Config
}

// MonitorManager 每个设备一个检测 goroutine
// 同一设备的采样按到达顺序处理，设备之间互不影响
type MonitorManager struct {
	tenantID  string
	queueSize int
	defaults  detector.Config
	settings  SettingsProvider
	sink      SignalSink
	metrics   *observability.Metrics
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	monitors map[string]*monitor
	wg       sync.WaitGroup
	stopped  bool
}

// NewMonitorManager 创建监测管理器；settings 为 nil 时所有设备使用 defaults
func NewMonitorManager(
	tenantID string,
	defaults detector.Config,
	queueSize int,
	settings SettingsProvider,
	sink SignalSink,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *MonitorManager {
	if queueSize <= 0 {
		queueSize = 128
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MonitorManager{
		tenantID:  tenantID,
		queueSize: queueSize,
		defaults:  defaults.WithDefaults(),
		settings:  settings,
		sink:      sink,
		metrics:   metrics,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		monitors:  make(map[string]*monitor),
	}
}

// Dispatch 投递一个采样；设备禁用、队列已满或已停止时返回 false
func (m *MonitorManager) Dispatch(deviceID string, sample detector.Sample) bool {
	for {
		mon := m.getOrStart(deviceID)
		if mon == nil {
			return false
		}
		if !mon.enabled {
			m.metrics.Sample("disabled")
			return false
		}

		sent, current := m.send(deviceID, mon, sample)
		if !current {
			// 查找之后被 Restart 替换，交给新的 monitor
			continue
		}
		if !sent {
			m.metrics.Sample("dropped")
			m.logger.Warn("Device sample queue full, dropping sample",
				zap.String("device_id", deviceID),
				zap.Int64("timestamp", sample.Timestamp),
			)
		}
		return sent
	}
}

// send 在锁内确认 mon 仍是当前 monitor 后非阻塞写入
func (m *MonitorManager) send(deviceID string, mon *monitor, sample detector.Sample) (sent, current bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.monitors[deviceID] != mon {
		return false, false
	}
	select {
	case mon.samples <- sample:
		return true, true
	default:
		return false, true
	}
}

// Preload 为已启用的设备提前启动检测（服务启动时）
func (m *MonitorManager) Preload(deviceIDs []string) {
	for _, id := range deviceIDs {
		m.getOrStart(id)
	}
}

// Restart 停止设备检测并清除状态；已排队的采样先处理完，下一个采样会按最新设置重新启动
func (m *MonitorManager) Restart(deviceID string) {
	m.mu.Lock()
	mon := m.monitors[deviceID]
	delete(m.monitors, deviceID)
	m.mu.Unlock()

	if mon == nil {
		return
	}
	m.stopMonitor(mon)
	m.logger.Info("Device monitor restarted",
		zap.String("device_id", deviceID),
	)
}

// Devices 当前运行中的设备
func (m *MonitorManager) Devices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.monitors))
	for id := range m.monitors {
		ids = append(ids, id)
	}
	return ids
}

// Thresholds 设备当前使用的阈值
func (m *MonitorManager) Thresholds(deviceID string) (detector.Config, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mon, ok := m.monitors[deviceID]
	if !ok {
		return detector.Config{}, false
	}
	return mon.thresholds, true
}

// StopAll 停止所有设备检测（处理完已排队的采样）
func (m *MonitorManager) StopAll() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	monitors := m.monitors
	m.monitors = make(map[string]*monitor)
	m.mu.Unlock()

	for _, mon := range monitors {
		close(mon.samples)
	}
	m.wg.Wait()
	m.cancel()
	m.logger.Info("All device monitors stopped")
}

func (m *MonitorManager) getOrStart(deviceID string) *monitor {
	m.mu.Lock()
	mon, ok := m.monitors[deviceID]
	stopped := m.stopped
	m.mu.Unlock()
	if ok {
		return mon
	}
	if stopped {
		return nil
	}

	// 在锁外读取设置，避免阻塞其他设备
	enabled, thresholds := m.loadSettings(deviceID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil
	}
	if existing, ok := m.monitors[deviceID]; ok {
		return existing
	}

	mon = m.startMonitor(deviceID, enabled, thresholds)
	m.monitors[deviceID] = mon
	return mon
}

func (m *MonitorManager) loadSettings(deviceID string) (bool, detector.Config) {
	if m.settings == nil {
		return true, m.defaults
	}

	ctx, cancel := context.WithTimeout(m.ctx, 3*time.Second)
	defer cancel()

	st, err := m.settings.GetSettings(ctx, m.tenantID, deviceID)
	if err != nil {
		m.logger.Warn("Failed to load monitor settings, using defaults",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return true, m.defaults
	}

	thresholds := st.Detector.WithDefaults()
	if err := thresholds.Validate(); err != nil {
		m.logger.Warn("Invalid stored thresholds, using defaults",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		thresholds = m.defaults
	}
	return st.Enabled, thresholds
}

// startMonitor 调用方持有 m.mu
func (m *MonitorManager) startMonitor(deviceID string, enabled bool, thresholds detector.Config) *monitor {
	mon := &monitor{
		samples:    make(chan detector.Sample, m.queueSize),
		done:       make(chan struct{}),
		enabled:    enabled,
		thresholds: thresholds,
	}

	if !enabled {
		// 禁用设备不启动 goroutine，只记录设置
		close(mon.done)
		m.logger.Info("Fall monitoring disabled for device",
			zap.String("device_id", deviceID),
		)
		return mon
	}

	det := detector.New(thresholds)
	emit := func(ev detector.Event) {
		m.metrics.FallEvent(string(ev.Kind))
		m.logger.Info("Fall event detected",
			zap.String("device_id", deviceID),
			zap.String("kind", string(ev.Kind)),
			zap.Int64("timestamp", ev.Timestamp),
			zap.Float64("magnitude", ev.Magnitude),
			zap.Float64("delta_magnitude", ev.DeltaMagnitude),
		)
		m.sink.Submit(models.FallSignal{
			TenantID:   m.tenantID,
			DeviceID:   deviceID,
			Event:      ev,
			Thresholds: thresholds,
			ReceivedAt: time.Now(),
		})
	}
	observe := func(r detector.RejectReason) {
		m.metrics.Sample(r.String())
	}

	m.wg.Add(1)
	m.metrics.MonitorStarted()
	go func() {
		defer m.wg.Done()
		defer close(mon.done)
		defer m.metrics.MonitorStopped()
		det.RunObserved(m.ctx, mon.samples, emit, observe)
	}()

	m.logger.Info("Device monitor started",
		zap.String("device_id", deviceID),
		zap.Float64("fall_threshold", thresholds.FallThreshold),
		zap.Float64("impact_threshold", thresholds.ImpactThreshold),
		zap.Int64("fall_window_ms", thresholds.FallWindowMs),
		zap.Float64("jerk_threshold", thresholds.JerkThreshold),
	)
	return mon
}

// stopMonitor 调用方已将 mon 从 map 移除
func (m *MonitorManager) stopMonitor(mon *monitor) {
	close(mon.samples)
	<-mon.done
}
