// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hrassist"

var (
	questionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_total",
			Help:      "Questions answered, by classified intent and outcome.",
		},
		[]string{"intent", "outcome"}, // outcome: answered, forced, failed
	)

	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls parsed from model output, by tool and outcome.",
		},
		[]string{"tool", "outcome"}, // outcome: ok, invalid, failed
	)

	documentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Documents processed by the ingestion pipeline, by outcome stage.",
		},
		[]string{"outcome"}, // ok or the failing stage
	)

	modelLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_duration_seconds",
			Help:      "Latency of generative and embedding model calls.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind", "status"}, // kind: chat, embed
	)
)

// ObserveQuestion counts one answered (or failed) question.
func ObserveQuestion(intent, outcome string) {
	questionsTotal.WithLabelValues(intent, outcome).Inc()
}

// ObserveToolCall counts one tool call attempt.
func ObserveToolCall(tool, outcome string) {
	toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// ObserveIngestion counts one document ingestion. outcome is "ok" or the
// stage the document failed in.
func ObserveIngestion(outcome string) {
	documentsIngested.WithLabelValues(outcome).Inc()
}

// ObserveModelCall records the latency of a model call started at start.
func ObserveModelCall(kind string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	modelLatency.WithLabelValues(kind, status).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
