package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionsTotal    *prometheus.CounterVec
	FramesReceived   prometheus.Counter
	InferencePasses  *prometheus.CounterVec
	InferenceLatency prometheus.Histogram
	ResultsDelivered *prometheus.CounterVec
	ReapedSessions   prometheus.Counter
	ProviderErrors   *prometheus.CounterVec
}

// New registers and returns the instrument set under the given namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live voice sessions.",
		}),
		SessionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions by transport kind.",
		}, []string{"transport"}),
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Inbound audio frames accepted by the registry.",
		}),
		InferencePasses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_passes_total",
			Help:      "Transcription passes by outcome.",
		}, []string{"outcome"}),
		InferenceLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_pass_seconds",
			Help:      "Latency of one transcription pass.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		ResultsDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_delivered_total",
			Help:      "Transcript results delivered to adapters, by finality.",
		}, []string{"final"}),
		ReapedSessions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaped_sessions_total",
			Help:      "Sessions evicted by the idle reaper.",
		}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Collaborator errors by provider kind.",
		}, []string{"provider"}),
	}
}

// ObserveInference records one pass outcome and its latency.
func (m *Metrics) ObserveInference(d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.InferencePasses.WithLabelValues(outcome).Inc()
	m.InferenceLatency.Observe(d.Seconds())
}

// ResultDelivered records one transcript result reaching its adapter.
func (m *Metrics) ResultDelivered(final bool) {
	label := "false"
	if final {
		label = "true"
	}
	m.ResultsDelivered.WithLabelValues(label).Inc()
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
