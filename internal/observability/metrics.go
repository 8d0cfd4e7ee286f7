package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var WorkflowOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wada_workflow_outcomes_total",
	Help: "Analysis workflow calls by workflow and outcome kind",
}, []string{"workflow", "outcome"})

var LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wada_llm_tokens_total",
	Help: "Tokens consumed by LLM calls",
}, []string{"call_type"})

var LLMCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "wada_llm_call_seconds",
	Help:    "Duration of LLM calls",
	Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
}, []string{"call_type", "status"})

var MLCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "wada_ml_call_seconds",
	Help:    "Duration of ML execution service calls",
	Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
}, []string{"model_choice", "status"})

var IngestedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wada_ingested_files_total",
	Help: "Uploaded files processed by the ingestion pipeline",
}, []string{"status"})

// ObserveOutcome records the result of one workflow call.
func ObserveOutcome(workflow, outcome string) {
	WorkflowOutcomes.WithLabelValues(workflow, outcome).Inc()
}
