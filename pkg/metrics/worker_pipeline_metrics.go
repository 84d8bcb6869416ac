// Package metrics exposes pipeline and connection pool metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages returned by the mailbox search.
	MessagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sponsor_messages_fetched_total",
			Help: "Messages returned by the mailbox search",
		},
	)

	// Messages dropped by the keyword and spam filters.
	MessagesFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sponsor_messages_filtered_total",
			Help: "Messages excluded before thread resolution",
		},
		[]string{"reason"}, // reason: irrelevant, spam
	)

	// Thread saves by store outcome.
	ThreadsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sponsor_threads_saved_total",
			Help: "Threads saved, by upsert outcome",
		},
		[]string{"outcome"}, // outcome: inserted, updated_by_thread_id, updated_by_signature
	)

	// Threads dropped during identity resolution.
	ThreadsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sponsor_threads_dropped_total",
			Help: "Threads dropped during resolution",
		},
	)

	// LLM processing outcomes.
	ThreadsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sponsor_threads_processed_total",
			Help: "Threads run through extraction",
		},
		[]string{"status"}, // status: success, miss, failed
	)

	// Extraction latency (seconds).
	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sponsor_extraction_duration_seconds",
			Help:    "Sponsor info extraction latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
	)

	// Pipeline stage duration (seconds).
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sponsor_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
		},
		[]string{"stage"}, // stage: collect, process
	)

	// Errors accumulated into run results.
	PipelineErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sponsor_pipeline_errors_total",
			Help: "Per-item errors collected during pipeline runs",
		},
		[]string{"stage"},
	)

	// Language model token usage.
	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sponsor_llm_tokens_total",
			Help: "Language model tokens consumed",
		},
		[]string{"model", "kind"}, // kind: prompt, completion
	)

	// Estimated language model spend (USD).
	LLMCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sponsor_llm_cost_usd_total",
			Help: "Estimated language model cost in USD",
		},
		[]string{"model"},
	)

	// HTTP request latency (seconds).
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sponsor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordThreadSaved counts a thread save by outcome.
func RecordThreadSaved(outcome string) {
	ThreadsSaved.WithLabelValues(outcome).Inc()
}

// RecordProcessed counts an extraction outcome and its latency.
func RecordProcessed(status string, d time.Duration) {
	ThreadsProcessed.WithLabelValues(status).Inc()
	ExtractionDuration.Observe(d.Seconds())
}

// RecordErrors adds n per-item errors for a stage.
func RecordErrors(stage string, n int) {
	if n > 0 {
		PipelineErrors.WithLabelValues(stage).Add(float64(n))
	}
}

// RecordHTTPRequestDuration records an HTTP request.
func RecordHTTPRequestDuration(method, path, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

// RecordLLMUsage records token usage and estimated cost for one completion.
func RecordLLMUsage(model string, promptTokens, completionTokens int, cost float64) {
	LLMTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	LLMTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	if cost > 0 {
		LLMCost.WithLabelValues(model).Add(cost)
	}
}
