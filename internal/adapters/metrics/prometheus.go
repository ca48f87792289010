package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blackbox_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blackbox_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	PipelineRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blackbox_pipeline_requests_total",
		Help: "Total pipeline requests",
	}, []string{"mode", "status"})

	PipelineStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blackbox_pipeline_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 7.5, 13},
	}, []string{"stage"})

	PipelineThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blackbox_pipeline_throttled_total",
		Help: "Requests processed while the platform was thermally throttled",
	})

	LLMTokensPerSecond = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blackbox_llm_tokens_per_second",
		Help: "Token rate of the most recent LLM generation",
	})

	IPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blackbox_ipc_calls_total",
		Help: "Total IPC calls to inference workers",
	}, []string{"service", "method", "status"})

	IPCCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blackbox_ipc_call_duration_seconds",
		Help:    "Round-trip duration of IPC calls",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 7.5},
	}, []string{"service"})

	ThermalMaxTemperature = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blackbox_thermal_max_celsius",
		Help: "Maximum temperature across all thermal zones",
	})

	ThermalStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blackbox_thermal_transitions_total",
		Help: "Thermal state machine transitions",
	}, []string{"to"})
)
