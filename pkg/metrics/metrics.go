// Package metrics exposes the client's Prometheus instrumentation. A nil
// *Metrics is valid and records nothing, so callers never need to guard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors on a private registry so parallel test
// instances never collide.
type Metrics struct {
	registry *prometheus.Registry

	reconnects     prometheus.Counter
	connectionUp   prometheus.Gauge
	callActive     prometheus.Gauge
	callDuration   prometheus.Histogram
	audioBytes     *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	envelopesTotal *prometheus.CounterVec
}

// New builds a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_reconnects_total",
			Help: "Number of reconnect attempts scheduled.",
		}),
		connectionUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connection_up",
			Help: "1 while the realtime channel is connected.",
		}),
		callActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_call_active",
			Help: "1 while a voice call is active.",
		}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_call_duration_seconds",
			Help:    "Completed voice call durations.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		audioBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_audio_bytes_total",
			Help: "PCM bytes moved, labeled by direction.",
		}, []string{"direction"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_errors_total",
			Help: "Errors observed, labeled by taxonomy type.",
		}, []string{"type"}),
		envelopesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_envelopes_total",
			Help: "Inbound envelopes decoded, labeled by wire type.",
		}, []string{"type"}),
	}
	m.registry.MustRegister(
		m.reconnects,
		m.connectionUp,
		m.callActive,
		m.callDuration,
		m.audioBytes,
		m.errorsTotal,
		m.envelopesTotal,
	)
	return m
}

// Registry returns the backing registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connectionUp.Set(1)
	} else {
		m.connectionUp.Set(0)
	}
}

func (m *Metrics) SetCallActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.callActive.Set(1)
	} else {
		m.callActive.Set(0)
	}
}

func (m *Metrics) ObserveCallDuration(seconds float64) {
	if m == nil {
		return
	}
	m.callDuration.Observe(seconds)
}

func (m *Metrics) AddAudioBytes(direction string, n int) {
	if m == nil {
		return
	}
	m.audioBytes.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) RecordError(errType string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(errType).Inc()
}

func (m *Metrics) RecordEnvelope(wireType string) {
	if m == nil {
		return
	}
	m.envelopesTotal.WithLabelValues(wireType).Inc()
}
