// Package metrics exposes Prometheus metrics for the diagnosis and voice
// pipelines.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	pipelineRequests     *prometheus.CounterVec
	classifyDuration     prometheus.Histogram
	predictions          *prometheus.CounterVec
	llmRequests          *prometheus.CounterVec
	llmDuration          prometheus.Histogram
	llmAvailable         prometheus.Gauge
	transcriptionRetries prometheus.Counter
	audioFiles           *prometheus.CounterVec
}

// New creates a registry with process and Go runtime collectors plus the
// application metrics.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.pipelineRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrox_pipeline_requests_total",
			Help: "Pipeline requests by pipeline and outcome",
		},
		[]string{"pipeline", "outcome"},
	)
	m.classifyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agrox_classification_duration_seconds",
			Help:    "Time spent running the image model",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)
	m.predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrox_predictions_total",
			Help: "Predicted disease labels",
		},
		[]string{"label"},
	)
	m.llmRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrox_llm_requests_total",
			Help: "Advisory service calls by outcome",
		},
		[]string{"outcome"},
	)
	m.llmDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agrox_llm_request_duration_seconds",
			Help:    "Advisory service call latency",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)
	m.llmAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agrox_llm_available",
			Help: "1 when the last advisory service probe succeeded",
		},
	)
	m.transcriptionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agrox_transcription_retries_total",
			Help: "Transcriptions that needed the normalized retry",
		},
	)
	m.audioFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrox_answer_audio_files_total",
			Help: "Answer audio file lifecycle events",
		},
		[]string{"event"},
	)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.pipelineRequests,
		m.classifyDuration,
		m.predictions,
		m.llmRequests,
		m.llmDuration,
		m.llmAvailable,
		m.transcriptionRetries,
		m.audioFiles,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:      m.registry,
		ErrorHandling: promhttp.ContinueOnError,
	})
}

func (m *Metrics) RecordPipeline(pipeline, outcome string) {
	if m == nil {
		return
	}
	m.pipelineRequests.WithLabelValues(pipeline, outcome).Inc()
}

func (m *Metrics) ObserveClassification(d time.Duration, label string) {
	if m == nil {
		return
	}
	m.classifyDuration.Observe(d.Seconds())
	m.predictions.WithLabelValues(label).Inc()
}

func (m *Metrics) RecordLLM(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.llmDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) SetLLMAvailable(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.llmAvailable.Set(1)
	} else {
		m.llmAvailable.Set(0)
	}
}

func (m *Metrics) RecordTranscriptionRetry() {
	if m == nil {
		return
	}
	m.transcriptionRetries.Inc()
}

// RecordAudioFile counts answer audio events: created, served, expired.
func (m *Metrics) RecordAudioFile(event string) {
	if m == nil {
		return
	}
	m.audioFiles.WithLabelValues(event).Inc()
}
