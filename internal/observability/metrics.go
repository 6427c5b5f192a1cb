package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics Prometheus 指标（跌倒监测服务）
// 所有方法在 nil 接收者上安全，测试中可直接传 nil
type Metrics struct {
	registry *prometheus.Registry

	samplesTotal      *prometheus.CounterVec
	fallEventsTotal   *prometheus.CounterVec
	escalationsTotal  *prometheus.CounterVec
	escalationDropped prometheus.Counter
	activeMonitors    prometheus.Gauge
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewMetrics 创建并注册指标（独立 registry，便于测试多次创建）
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		samplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fall_samples_total",
			Help: "Accelerometer samples by ingest result (accepted, rate_limited, invalid, dropped, malformed, disabled).",
		}, []string{"result"}),
		fallEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fall_events_total",
			Help: "Detector events by kind.",
		}, []string{"kind"}),
		escalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fall_escalations_total",
			Help: "Escalations handled by workers, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		escalationDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fall_escalations_dropped_total",
			Help: "Escalations dropped because the queue was full.",
		}),
		activeMonitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fall_active_monitors",
			Help: "Devices with a running detector goroutine.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.samplesTotal,
		m.fallEventsTotal,
		m.escalationsTotal,
		m.escalationDropped,
		m.activeMonitors,
		m.httpRequestsTotal,
		m.httpDuration,
	)

	return m
}

// Registry 返回底层 registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler 记录 HTTP 请求数和耗时
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Sample 记录一个采样的处理结果
func (m *Metrics) Sample(result string) {
	if m == nil {
		return
	}
	m.samplesTotal.WithLabelValues(result).Inc()
}

// FallEvent 记录检测器事件
func (m *Metrics) FallEvent(kind string) {
	if m == nil {
		return
	}
	m.fallEventsTotal.WithLabelValues(kind).Inc()
}

// Escalation 记录一次升级处理结果（escalated, debounced, failed）
func (m *Metrics) Escalation(kind, outcome string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(kind, outcome).Inc()
}

// EscalationDropped 升级队列已满
func (m *Metrics) EscalationDropped() {
	if m == nil {
		return
	}
	m.escalationDropped.Inc()
}

// MonitorStarted / MonitorStopped 维护活跃监测数
func (m *Metrics) MonitorStarted() {
	if m == nil {
		return
	}
	m.activeMonitors.Inc()
}

func (m *Metrics) MonitorStopped() {
	if m == nil {
		return
	}
	m.activeMonitors.Dec()
}
