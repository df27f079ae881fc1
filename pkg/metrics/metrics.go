// Package metrics exposes Prometheus instrumentation for the bridge.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bridge process.
type Metrics struct {
	registry *prometheus.Registry

	CallsActive  prometheus.Gauge
	CallsTotal   *prometheus.CounterVec
	CallDuration prometheus.Histogram

	AudioFramesTotal *prometheus.CounterVec
	AudioBytesTotal  *prometheus.CounterVec

	InterruptionsTotal   prometheus.Counter
	MalformedFramesTotal *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered on a private
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicelink"
	}

	registry := prometheus.NewRegistry()

	callsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "calls_active",
		Help:      "Number of bridged calls currently active",
	})

	callsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calls_total",
		Help:      "Total number of bridged calls",
	}, []string{"status"})

	callDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "call_duration_seconds",
		Help:      "Bridged call duration in seconds",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
	})

	audioFramesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_frames_total",
		Help:      "Total audio frames relayed",
	}, []string{"direction"})

	audioBytesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_bytes_total",
		Help:      "Total audio payload bytes relayed (base64-encoded size)",
	}, []string{"direction"})

	interruptionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interruptions_total",
		Help:      "Total barge-in interruptions handled",
	})

	malformedFramesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_frames_total",
		Help:      "Total inbound frames dropped as malformed",
	}, []string{"link"})

	registry.MustRegister(
		callsActive,
		callsTotal,
		callDuration,
		audioFramesTotal,
		audioBytesTotal,
		interruptionsTotal,
		malformedFramesTotal,
	)

	return &Metrics{
		registry:             registry,
		CallsActive:          callsActive,
		CallsTotal:           callsTotal,
		CallDuration:         callDuration,
		AudioFramesTotal:     audioFramesTotal,
		AudioBytesTotal:      audioBytesTotal,
		InterruptionsTotal:   interruptionsTotal,
		MalformedFramesTotal: malformedFramesTotal,
	}
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCallStart records a new bridged call starting.
func (m *Metrics) RecordCallStart() {
	if m == nil {
		return
	}
	m.CallsActive.Inc()
}

// RecordCallEnd records a bridged call ending.
func (m *Metrics) RecordCallEnd(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CallsActive.Dec()
	m.CallsTotal.WithLabelValues(status).Inc()
	m.CallDuration.Observe(duration.Seconds())
}

// RecordAudio records one relayed audio frame.
func (m *Metrics) RecordAudio(direction string, payloadBytes int) {
	if m == nil {
		return
	}
	m.AudioFramesTotal.WithLabelValues(direction).Inc()
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(payloadBytes))
}

// RecordInterruption records one handled barge-in.
func (m *Metrics) RecordInterruption() {
	if m == nil {
		return
	}
	m.InterruptionsTotal.Inc()
}

// RecordMalformedFrame records one dropped inbound frame.
func (m *Metrics) RecordMalformedFrame(link string) {
	if m == nil {
		return
	}
	m.MalformedFramesTotal.WithLabelValues(link).Inc()
}
