package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

type EngineMetrics struct {
	service string

	loadTotal     *prometheus.CounterVec
	loadDuration  *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	genDuration   *prometheus.HistogramVec
	tokensTotal   *prometheus.CounterVec
	truncations   prometheus.Counter
	generateTotal *prometheus.CounterVec
}

// NewEngineMetrics registers the generation engine collectors on reg.
func NewEngineMetrics(service string, reg prometheus.Registerer) *EngineMetrics {
	loadTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "load_total",
			Help:      "Model load attempts by status and device.",
		},
		[]string{"service", "status", "device"},
	)
	loadDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "load_duration_seconds",
			Help:      "Model load duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "generations_in_flight",
			Help:      "Number of generation calls currently running against the model.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	genDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "generation_duration_seconds",
			Help:      "Generation duration in seconds by status.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"service", "status"},
	)
	tokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tokens_total",
			Help:      "Tokens sent to and produced by the model by direction.",
		},
		[]string{"service", "direction"},
	)
	truncations := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "truncations_total",
			Help:      "Prompts cut to the input token limit.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	generateTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "generations_total",
			Help:      "Completed generation calls by status.",
		},
		[]string{"service", "status"},
	)

	reg.MustRegister(loadTotal, loadDuration, inFlight, genDuration, tokensTotal, truncations, generateTotal)

	return &EngineMetrics{
		service:       service,
		loadTotal:     loadTotal,
		loadDuration:  loadDuration,
		inFlight:      inFlight,
		genDuration:   genDuration,
		tokensTotal:   tokensTotal,
		truncations:   truncations,
		generateTotal: generateTotal,
	}
}

func (m *EngineMetrics) ObserveModelLoad(device domain.Device, duration time.Duration, err error) {
	status := statusLabel(err)
	if device == "" {
		device = "unknown"
	}
	m.loadTotal.WithLabelValues(m.service, status, string(device)).Inc()
	m.loadDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *EngineMetrics) StartGeneration() {
	m.inFlight.Inc()
}

func (m *EngineMetrics) FinishGeneration(duration time.Duration, promptTokens, outputTokens int, truncated bool, err error) {
	m.inFlight.Dec()

	status := statusLabel(err)
	m.generateTotal.WithLabelValues(m.service, status).Inc()
	m.genDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
	if promptTokens > 0 {
		m.tokensTotal.WithLabelValues(m.service, "in").Add(float64(promptTokens))
	}
	if outputTokens > 0 {
		m.tokensTotal.WithLabelValues(m.service, "out").Add(float64(outputTokens))
	}
	if truncated {
		m.truncations.Inc()
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
