// Package workers implements the two consumer families of the pipeline: the
// extraction worker turning uploaded files into text, and the evaluation
// worker orchestrating the scoring calls. All shared state lives behind the
// JobStore and the queue broker; workers keep nothing in memory between
// deliveries.
package workers

import (
	"context"
	"errors"

	"candidate-evaluator/domain"
)

// ErrRequeue marks failures that should leave the message unacknowledged so
// the broker redelivers it, as opposed to failures resolved into a terminal
// job state. Job Store unavailability is the main member of this class.
var ErrRequeue = errors.New("requeue delivery")

// JobStore is the slice of the store the workers need.
type JobStore interface {
	Get(ctx context.Context, id string) (*domain.Job, error)
	SaveTexts(ctx context.Context, id, cvText, projectText string) error
	ClaimProcessing(ctx context.Context, id string) (bool, error)
	MarkFailed(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, result domain.EvaluationResult) (bool, error)
}

// Extractor converts a stored document into plain text. Empty output with a
// nil error means the document had no extractable text.
type Extractor interface {
	ExtractText(path string) (string, error)
}

// Retriever fetches scoring context snippets, most relevant first.
type Retriever interface {
	Query(ctx context.Context, query string, limit int) ([]string, error)
}
