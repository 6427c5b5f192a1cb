package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/AnishVcode/senior-launcher/internal/detector"
	"github.com/AnishVcode/senior-launcher/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSink struct {
	signals chan models.FallSignal
}

func newFakeSink() *fakeSink {
	return &fakeSink{signals: make(chan models.FallSignal, 64)}
}

func (f *fakeSink) Submit(sig models.FallSignal) bool {
	select {
	case f.signals <- sig:
		return true
	default:
		return false
	}
}

func (f *fakeSink) next(t *testing.T) models.FallSignal {
	t.Helper()
	select {
	case sig := <-f.signals:
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fall signal")
		return models.FallSignal{}
	}
}

func (f *fakeSink) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case sig := <-f.signals:
		t.Fatalf("unexpected fall signal: %+v", sig)
	case <-time.After(wait):
	}
}

type fakeSettings struct {
	mu       sync.Mutex
	byDevice map[string]*models.MonitorSettings
	err      error
	calls    int
}

func (f *fakeSettings) GetSettings(_ context.Context, tenantID, deviceID string) (*models.MonitorSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if st, ok := f.byDevice[deviceID]; ok {
		return st, nil
	}
	return &models.MonitorSettings{TenantID: tenantID, DeviceID: deviceID, Enabled: true, Detector: detector.DefaultConfig()}, nil
}

func (f *fakeSettings) set(deviceID string, st *models.MonitorSettings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byDevice[deviceID] = st
}

const g = detector.GravityEarth

func zSample(ts int64, gs float64) detector.Sample {
	return detector.Sample{Timestamp: ts, Z: gs * g}
}

func TestMonitorManager_ImpactReachesSink(t *testing.T) {
	sink := newFakeSink()
	settings := &fakeSettings{byDevice: map[string]*models.MonitorSettings{}}
	settings.set("launcher-01", &models.MonitorSettings{
		Enabled:  true,
		Detector: detector.Config{FallThreshold: 0.5},
	})
	m := NewMonitorManager("tenant-1", detector.DefaultConfig(), 16, settings, sink, nil, zap.NewNop())
	defer m.StopAll()

	// rest, free fall, impact inside the window
	require.True(t, m.Dispatch("launcher-01", zSample(0, 1.0)))
	require.True(t, m.Dispatch("launcher-01", zSample(40, 0.1)))
	require.True(t, m.Dispatch("launcher-01", zSample(140, 38)))

	sig := sink.next(t)
	assert.Equal(t, detector.ImpactConfirmed, sig.Event.Kind)
	assert.Equal(t, "tenant-1", sig.TenantID)
	assert.Equal(t, "launcher-01", sig.DeviceID)
	assert.Equal(t, int64(40), sig.Event.FreeFallStart)
	assert.Equal(t, 0.5, sig.Thresholds.FallThreshold)

	sig = sink.next(t)
	assert.Equal(t, detector.PossibleFall, sig.Event.Kind)

	thresholds, ok := m.Thresholds("launcher-01")
	require.True(t, ok)
	assert.Equal(t, detector.DefaultImpactThreshold, thresholds.ImpactThreshold)
}

func TestMonitorManager_DevicesAreIndependent(t *testing.T) {
	sink := newFakeSink()
	m := NewMonitorManager("tenant-1", detector.Config{FallThreshold: 0.5}, 16, nil, sink, nil, zap.NewNop())
	defer m.StopAll()

	// device A enters free fall; device B's impact must not complete A's fall
	require.True(t, m.Dispatch("a", zSample(0, 1.0)))
	require.True(t, m.Dispatch("a", zSample(40, 0.1)))
	require.True(t, m.Dispatch("b", zSample(0, 1.0)))
	require.True(t, m.Dispatch("b", zSample(60, 1.5)))

	sink.none(t, 100*time.Millisecond)

	devices := m.Devices()
	sort.Strings(devices)
	assert.Equal(t, []string{"a", "b"}, devices)
}

func TestMonitorManager_DisabledDeviceDropsSamples(t *testing.T) {
	sink := newFakeSink()
	settings := &fakeSettings{byDevice: map[string]*models.MonitorSettings{}}
	settings.set("launcher-02", &models.MonitorSettings{Enabled: false})
	m := NewMonitorManager("tenant-1", detector.DefaultConfig(), 16, settings, sink, nil, zap.NewNop())
	defer m.StopAll()

	assert.False(t, m.Dispatch("launcher-02", zSample(0, 0.1)))
	assert.False(t, m.Dispatch("launcher-02", zSample(40, 38)))
	sink.none(t, 50*time.Millisecond)

	// settings are read once per monitor
	assert.Equal(t, 1, settings.calls)
}

func TestMonitorManager_SettingsErrorUsesDefaults(t *testing.T) {
	sink := newFakeSink()
	settings := &fakeSettings{err: errors.New("db down")}
	m := NewMonitorManager("tenant-1", detector.DefaultConfig(), 16, settings, sink, nil, zap.NewNop())
	defer m.StopAll()

	require.True(t, m.Dispatch("launcher-03", zSample(0, 1.0)))

	thresholds, ok := m.Thresholds("launcher-03")
	require.True(t, ok)
	assert.Equal(t, detector.DefaultConfig(), thresholds)
}

func TestMonitorManager_RestartReloadsSettingsAndResetsState(t *testing.T) {
	sink := newFakeSink()
	settings := &fakeSettings{byDevice: map[string]*models.MonitorSettings{}}
	settings.set("launcher-01", &models.MonitorSettings{Enabled: true, Detector: detector.Config{FallThreshold: 0.5}})
	m := NewMonitorManager("tenant-1", detector.DefaultConfig(), 16, settings, sink, nil, zap.NewNop())
	defer m.StopAll()

	require.True(t, m.Dispatch("launcher-01", zSample(0, 1.0)))
	require.True(t, m.Dispatch("launcher-01", zSample(40, 0.1)))

	settings.set("launcher-01", &models.MonitorSettings{Enabled: true, Detector: detector.Config{FallThreshold: 0.4}})
	m.Restart("launcher-01")

	_, ok := m.Thresholds("launcher-01")
	assert.False(t, ok)

	// free-fall episode was discarded: an impact now only trips the jerk rule
	require.True(t, m.Dispatch("launcher-01", zSample(100, 38)))
	sig := sink.next(t)
	assert.Equal(t, detector.PossibleFall, sig.Event.Kind)
	sink.none(t, 50*time.Millisecond)

	thresholds, ok := m.Thresholds("launcher-01")
	require.True(t, ok)
	assert.Equal(t, 0.4, thresholds.FallThreshold)
}

func TestMonitorManager_QueueFullDrops(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block, entered: make(chan struct{})}
	m := NewMonitorManager("tenant-1", detector.Config{FallThreshold: 0.5}, 1, nil, sink, nil, zap.NewNop())
	defer func() {
		close(block)
		m.StopAll()
	}()

	// the jerk on the first sample (delta from zero cache) blocks the goroutine in emit
	require.True(t, m.Dispatch("d", zSample(0, 30)))
	<-sink.entered

	require.True(t, m.Dispatch("d", zSample(20, 1.0)))
	assert.False(t, m.Dispatch("d", zSample(40, 1.0)), "queue of one is full")
}

type blockingSink struct {
	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (b *blockingSink) Submit(models.FallSignal) bool {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return true
}

func TestMonitorManager_StopAll(t *testing.T) {
	sink := newFakeSink()
	m := NewMonitorManager("tenant-1", detector.DefaultConfig(), 16, nil, sink, nil, zap.NewNop())

	require.True(t, m.Dispatch("launcher-01", zSample(0, 1.0)))
	m.StopAll()
	m.StopAll()

	assert.False(t, m.Dispatch("launcher-01", zSample(20, 1.0)))
	assert.Empty(t, m.Devices())
}

// gateSink 第一次 Submit 阻塞到 release 关闭，之后的信号全部记录
type gateSink struct {
	release chan struct{}
	entered chan struct{}
	once    sync.Once
	signals chan models.FallSignal
}

func (g *gateSink) Submit(sig models.FallSignal) bool {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	g.signals <- sig
	return true
}

func TestMonitorManager_RestartProcessesQueuedSamples(t *testing.T) {
	sink := &gateSink{
		release: make(chan struct{}),
		entered: make(chan struct{}),
		signals: make(chan models.FallSignal, 8),
	}
	m := NewMonitorManager("tenant-1", detector.Config{FallThreshold: 0.5}, 4, nil, sink, nil, zap.NewNop())
	defer m.StopAll()

	// 第一个采样触发 jerk，goroutine 停在 emit 中
	require.True(t, m.Dispatch("launcher-01", zSample(0, 30)))
	<-sink.entered
	require.True(t, m.Dispatch("launcher-01", zSample(20, 1.0)))

	restarted := make(chan struct{})
	go func() {
		m.Restart("launcher-01")
		close(restarted)
	}()
	close(sink.release)

	select {
	case <-restarted:
	case <-time.After(2 * time.Second):
		t.Fatal("Restart did not return")
	}

	require.Len(t, sink.signals, 2)
	first, second := <-sink.signals, <-sink.signals
	assert.Equal(t, int64(0), first.Event.Timestamp)
	assert.Equal(t, int64(20), second.Event.Timestamp)
	assert.Equal(t, detector.PossibleFall, second.Event.Kind)
}

func TestMonitorManager_StopAllProcessesQueuedSamples(t *testing.T) {
	sink := &gateSink{
		release: make(chan struct{}),
		entered: make(chan struct{}),
		signals: make(chan models.FallSignal, 8),
	}
	m := NewMonitorManager("tenant-1", detector.Config{FallThreshold: 0.5}, 4, nil, sink, nil, zap.NewNop())

	require.True(t, m.Dispatch("launcher-01", zSample(0, 30)))
	<-sink.entered
	require.True(t, m.Dispatch("launcher-01", zSample(20, 1.0)))

	close(sink.release)
	m.StopAll()

	assert.Len(t, sink.signals, 2)
	assert.False(t, m.Dispatch("launcher-01", zSample(40, 1.0)))
}
