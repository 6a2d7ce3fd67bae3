// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlineSessions    prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	MessagesReceived  *prometheus.CounterVec
	MessageLatency    prometheus.Histogram
	ActionErrors      *prometheus.CounterVec
	Settlements       *prometheus.CounterVec
	BroadcastsDropped prometheus.Counter
	PendingRemovals   prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		OnlineSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_sessions",
			Help:      "Number of open client connections",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of active rooms",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received, by action",
		}, []string{"action"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		ActionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_errors_total",
			Help:      "Rejected actions, by error code",
		}, []string{"code"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Rounds settled, by mode (auto or declared)",
		}, []string{"mode"}),
		BroadcastsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_dropped_total",
			Help:      "Messages dropped because a client queue was full",
		}),
		PendingRemovals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_removals",
			Help:      "Disconnected participants inside their grace period",
		}),
	}
}

func (m *Metrics) all() []prometheus.Collector {
	return []prometheus.Collector{
		m.OnlineSessions,
		m.ActiveRooms,
		m.MessagesReceived,
		m.MessageLatency,
		m.ActionErrors,
		m.Settlements,
		m.BroadcastsDropped,
		m.PendingRemovals,
	}
}

type Monitor struct {
	metrics   *Metrics
	registry  *prometheus.Registry
	startTime time.Time
}

// NewMonitor registers the collectors on a private registry, so several
// monitors can coexist in one process (tests in particular).
func NewMonitor(namespace string) *Monitor {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(namespace)
	registry.MustRegister(metrics.all()...)
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Monitor{
		metrics:   metrics,
		registry:  registry,
		startTime: time.Now(),
	}
}

// Handler serves the metrics in the prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Monitor) Uptime() time.Duration {
	return time.Since(m.startTime)
}

func (m *Monitor) IncOnlineSessions() {
	m.metrics.OnlineSessions.Inc()
}

func (m *Monitor) DecOnlineSessions() {
	m.metrics.OnlineSessions.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) SetPendingRemovals(count int) {
	m.metrics.PendingRemovals.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived(action string) {
	m.metrics.MessagesReceived.WithLabelValues(action).Inc()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

func (m *Monitor) IncActionError(code string) {
	m.metrics.ActionErrors.WithLabelValues(code).Inc()
}

func (m *Monitor) IncSettlement(auto bool) {
	mode := "declared"
	if auto {
		mode = "auto"
	}
	m.metrics.Settlements.WithLabelValues(mode).Inc()
}

func (m *Monitor) IncBroadcastDropped() {
	m.metrics.BroadcastsDropped.Inc()
}
