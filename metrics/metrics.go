// Package metrics exposes the pipeline's prometheus counters. The malformed
// LLM response counter exists so the lenient empty-object fallback stays
// observable and is never mistaken for a genuine low score.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StageExtract  = "extract"
	StageEvaluate = "evaluate"

	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeRequeued  = "requeued"
)

var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluator_jobs_processed_total",
		Help: "Queue messages handled, by pipeline stage and outcome.",
	}, []string{"stage", "outcome"})

	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluator_retry_attempts_total",
		Help: "Retry attempts against external capabilities, by call kind.",
	}, []string{"call"})

	MalformedLLMResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evaluator_llm_malformed_responses_total",
		Help: "Reasoning responses that failed JSON decoding and degraded to an empty object.",
	})

	StaleJobsRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evaluator_stale_jobs_requeued_total",
		Help: "Jobs stuck in processing that the reaper pushed back to queued.",
	})
)
