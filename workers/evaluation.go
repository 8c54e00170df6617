package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"candidate-evaluator/ai"
	"candidate-evaluator/domain"
	"candidate-evaluator/metrics"
	"candidate-evaluator/retry"
)

const (
	contextDescriptionLimit = 2
	contextRubricLimit      = 1
)

// errAlreadyClaimed marks deliveries for jobs another consumer (or a prior
// delivery of the same message) already moved out of queued.
var errAlreadyClaimed = errors.New("job not in queued state")

// EvaluationWorker consumes the evaluation queue and runs the scoring chain:
// claim the job, gather retrieval context, profile the CV, score CV and
// project against the rubric, summarize, and persist the aggregate result.
type EvaluationWorker struct {
	store     JobStore
	llm       ai.Client
	retriever Retriever
	policy    retry.Policy
	log       *zap.Logger
}

func NewEvaluationWorker(store JobStore, llm ai.Client, retriever Retriever, policy retry.Policy, log *zap.Logger) *EvaluationWorker {
	return &EvaluationWorker{
		store:     store,
		llm:       llm,
		retriever: retriever,
		policy:    policy,
		log:       log.With(zap.String("worker", "evaluation")),
	}
}

// Handle processes one delivery and settles it. A delivery whose job is no
// longer queued is acked without work, which makes duplicate deliveries and
// broker redeliveries after a completed run harmless.
func (w *EvaluationWorker) Handle(ctx context.Context, d amqp.Delivery) {
	var msg domain.EvaluateMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		w.log.Error("dropping undecodable evaluate message", zap.Error(err))
		metrics.JobsProcessed.WithLabelValues(metrics.StageEvaluate, metrics.OutcomeSkipped).Inc()
		w.ack(d)
		return
	}
	if err := msg.Validate(); err != nil {
		w.log.Error("dropping invalid evaluate message", zap.Error(err))
		metrics.JobsProcessed.WithLabelValues(metrics.StageEvaluate, metrics.OutcomeSkipped).Inc()
		w.ack(d)
		return
	}

	log := w.log.With(zap.String("job_id", msg.JobID))

	err := w.process(ctx, log, msg)
	switch {
	case err == nil:
		metrics.JobsProcessed.WithLabelValues(metrics.StageEvaluate, metrics.OutcomeCompleted).Inc()
		w.ack(d)
	case errors.Is(err, errAlreadyClaimed):
		log.Info("skipping delivery, job already claimed")
		metrics.JobsProcessed.WithLabelValues(metrics.StageEvaluate, metrics.OutcomeSkipped).Inc()
		w.ack(d)
	case errors.Is(err, ErrRequeue):
		log.Warn("evaluation needs redelivery", zap.Error(err))
		metrics.JobsProcessed.WithLabelValues(metrics.StageEvaluate, metrics.OutcomeRequeued).Inc()
		w.nack(d)
	default:
		log.Error("evaluation failed", zap.Error(err))
		metrics.JobsProcessed.WithLabelValues(metrics.StageEvaluate, metrics.OutcomeFailed).Inc()
		w.ack(d)
	}
}

func (w *EvaluationWorker) process(ctx context.Context, log *zap.Logger, msg domain.EvaluateMessage) error {
	claimed, err := w.store.ClaimProcessing(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("%w: claim job: %v", ErrRequeue, err)
	}
	if !claimed {
		return errAlreadyClaimed
	}

	jobContext, err := w.buildContext(ctx)
	if err != nil {
		return w.fail(ctx, msg.JobID, fmt.Errorf("build scoring context: %w", err))
	}

	cvText := msg.CVText
	if !hasText(cvText) {
		log.Warn("no cv text extracted, scoring against placeholder")
		cvText = fallbackCVText
	}

	profile, err := w.structured(ctx, "cv_profile", cvProfilePrompt(cvText), cvProfileSchema())
	if err != nil {
		return w.fail(ctx, msg.JobID, fmt.Errorf("profile cv: %w", err))
	}

	cvRaw, err := w.structured(ctx, "cv_scoring", cvScoringPrompt(profile, jobContext), cvScoringSchema())
	if err != nil {
		return w.fail(ctx, msg.JobID, fmt.Errorf("score cv: %w", err))
	}
	cvScores, cvFeedback, found := parseCVScores(cvRaw)
	if !found {
		log.Warn("cv scoring response carried no component scores, using minimum scores")
	}
	cv := domain.AggregateCV(cvScores, cvFeedback)

	project := domain.EmptyProjectAssessment()
	if hasText(msg.ProjectText) {
		raw, err := w.structured(ctx, "project_scoring", projectScoringPrompt(msg.ProjectText, jobContext), projectScoringSchema())
		if err != nil {
			return w.fail(ctx, msg.JobID, fmt.Errorf("score project: %w", err))
		}
		scores, feedback, found := parseProjectScores(raw)
		if !found {
			log.Warn("project scoring response carried no component scores, using minimum scores")
		}
		project = domain.AggregateProject(scores, feedback)
	}

	summary, err := retry.Do(ctx, w.policy, func(ctx context.Context) (string, error) {
		metrics.RetryAttempts.WithLabelValues("summary").Inc()
		return w.llm.GenerateText(ctx, summaryPrompt(cv, project))
	})
	if err != nil {
		return w.fail(ctx, msg.JobID, fmt.Errorf("summarize: %w", err))
	}

	result := domain.BuildResult(cv, project, strings.TrimSpace(summary))

	ok, err := w.store.Complete(ctx, msg.JobID, result)
	if err != nil {
		return fmt.Errorf("%w: persist result: %v", ErrRequeue, err)
	}
	if !ok {
		// The job left processing under us (reaper or operator). The other
		// path owns the row now; this run's result is discarded.
		log.Warn("job no longer processing, result discarded")
		return nil
	}

	log.Info("evaluation completed",
		zap.Float64("cv_match_rate", result.CVMatchRate),
		zap.Float64("project_score", result.ProjectScore))
	return nil
}

// buildContext pulls the job description and rubric snippets from the
// retrieval store and joins them into one grounding block.
func (w *EvaluationWorker) buildContext(ctx context.Context) (string, error) {
	snippets, err := retry.Do(ctx, w.policy, func(ctx context.Context) ([]string, error) {
		metrics.RetryAttempts.WithLabelValues("retrieve_context").Inc()

		desc, err := w.retriever.Query(ctx, contextDescriptionQuery, contextDescriptionLimit)
		if err != nil {
			return nil, err
		}
		rubric, err := w.retriever.Query(ctx, contextRubricQuery, contextRubricLimit)
		if err != nil {
			return nil, err
		}
		return append(desc, rubric...), nil
	})
	if err != nil {
		return "", err
	}
	return strings.Join(snippets, "\n\n"), nil
}

func (w *EvaluationWorker) structured(ctx context.Context, call, prompt string, schema *ai.Schema) (map[string]any, error) {
	return retry.Do(ctx, w.policy, func(ctx context.Context) (map[string]any, error) {
		metrics.RetryAttempts.WithLabelValues(call).Inc()
		return w.llm.GenerateStructured(ctx, prompt, schema)
	})
}

// fail resolves a terminal evaluation error into the failed job state. If
// even that write is unreachable the delivery goes back to the queue.
func (w *EvaluationWorker) fail(ctx context.Context, jobID string, cause error) error {
	if err := w.store.MarkFailed(ctx, jobID); err != nil {
		return fmt.Errorf("%w: mark failed after %v: %v", ErrRequeue, cause, err)
	}
	return cause
}

func (w *EvaluationWorker) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		w.log.Warn("ack failed", zap.Error(err))
	}
}

func (w *EvaluationWorker) nack(d amqp.Delivery) {
	if err := d.Nack(false, true); err != nil {
		w.log.Warn("nack failed", zap.Error(err))
	}
}
