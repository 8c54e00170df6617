package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"candidate-evaluator/domain"
	"candidate-evaluator/metrics"
)

// ExtractionWorker consumes the extract queue, converts the uploaded files
// to plain text and persists the result on the job row. It never advances
// the job status; that stays with the evaluate request.
type ExtractionWorker struct {
	store     JobStore
	extractor Extractor
	log       *zap.Logger
}

func NewExtractionWorker(store JobStore, extractor Extractor, log *zap.Logger) *ExtractionWorker {
	return &ExtractionWorker{
		store:     store,
		extractor: extractor,
		log:       log.With(zap.String("worker", "extraction")),
	}
}

// Handle processes one delivery and settles it. Undecodable payloads are
// acked and dropped; redelivering them can never succeed.
func (w *ExtractionWorker) Handle(ctx context.Context, d amqp.Delivery) {
	var msg domain.ExtractMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		w.log.Error("dropping undecodable extract message", zap.Error(err))
		metrics.JobsProcessed.WithLabelValues(metrics.StageExtract, metrics.OutcomeSkipped).Inc()
		w.ack(d)
		return
	}
	if err := msg.Validate(); err != nil {
		w.log.Error("dropping invalid extract message", zap.Error(err))
		metrics.JobsProcessed.WithLabelValues(metrics.StageExtract, metrics.OutcomeSkipped).Inc()
		w.removeFiles(msg)
		w.ack(d)
		return
	}

	log := w.log.With(zap.String("job_id", msg.JobID))

	err := w.process(ctx, msg)
	switch {
	case err == nil:
		metrics.JobsProcessed.WithLabelValues(metrics.StageExtract, metrics.OutcomeCompleted).Inc()
		w.removeFiles(msg)
		w.ack(d)
	case errors.Is(err, ErrRequeue):
		// The redelivered message re-reads the files, so they stay on disk
		// until the delivery resolves into a terminal outcome.
		log.Warn("extraction needs redelivery", zap.Error(err))
		metrics.JobsProcessed.WithLabelValues(metrics.StageExtract, metrics.OutcomeRequeued).Inc()
		w.nack(d)
	default:
		log.Error("extraction failed", zap.Error(err))
		metrics.JobsProcessed.WithLabelValues(metrics.StageExtract, metrics.OutcomeFailed).Inc()
		w.removeFiles(msg)
		w.ack(d)
	}
}

func (w *ExtractionWorker) process(ctx context.Context, msg domain.ExtractMessage) error {
	cvText, err := w.extractor.ExtractText(msg.CVFile)
	if err != nil {
		return w.fail(ctx, msg.JobID, fmt.Errorf("extract cv: %w", err))
	}

	var projectText string
	if msg.ProjectFile != "" {
		projectText, err = w.extractor.ExtractText(msg.ProjectFile)
		if err != nil {
			return w.fail(ctx, msg.JobID, fmt.Errorf("extract project report: %w", err))
		}
	}

	if err := w.store.SaveTexts(ctx, msg.JobID, cvText, projectText); err != nil {
		return fmt.Errorf("%w: save texts: %v", ErrRequeue, err)
	}

	w.log.Info("texts extracted",
		zap.String("job_id", msg.JobID),
		zap.Int("cv_chars", len(cvText)),
		zap.Int("project_chars", len(projectText)))
	return nil
}

// fail resolves a terminal extraction error into the failed job state. If
// even that write is unreachable the delivery goes back to the queue.
func (w *ExtractionWorker) fail(ctx context.Context, jobID string, cause error) error {
	if err := w.store.MarkFailed(ctx, jobID); err != nil {
		return fmt.Errorf("%w: mark failed after %v: %v", ErrRequeue, cause, err)
	}
	return cause
}

// removeFiles deletes the single-use upload files so the uploads dir does
// not grow without bound.
func (w *ExtractionWorker) removeFiles(msg domain.ExtractMessage) {
	for _, path := range []string{msg.CVFile, msg.ProjectFile} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.log.Warn("could not remove uploaded file", zap.String("file", path), zap.Error(err))
		}
	}
}

func (w *ExtractionWorker) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		w.log.Warn("ack failed", zap.Error(err))
	}
}

func (w *ExtractionWorker) nack(d amqp.Delivery) {
	if err := d.Nack(false, true); err != nil {
		w.log.Warn("nack failed", zap.Error(err))
	}
}
