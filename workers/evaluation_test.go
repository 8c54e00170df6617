package workers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"candidate-evaluator/ai"
	"candidate-evaluator/domain"
	"candidate-evaluator/retry"
)

func testPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}
}

func queuedJob(id string) *domain.Job {
	return &domain.Job{ID: id, Status: domain.StatusQueued}
}

// scriptedLLM answers the three structured prompts of the scoring chain.
func scriptedLLM() *fakeLLM {
	return &fakeLLM{
		generateStructured: func(prompt string, _ *ai.Schema) (map[string]any, error) {
			switch {
			case strings.Contains(prompt, "Extract structured information"):
				return map[string]any{"skills": []any{"go", "sql"}}, nil
			case strings.Contains(prompt, "Compare this candidate profile"):
				return map[string]any{
					"technical_skills": 4.0,
					"experience":       5.0,
					"achievements":     4.0,
					"cultural_fit":     3.0,
					"feedback":         "strong backend profile",
				}, nil
			case strings.Contains(prompt, "Evaluate the project report"):
				return map[string]any{
					"correctness":   4.0,
					"code_quality":  5.0,
					"resilience":    3.0,
					"documentation": 4.0,
					"creativity":    2.0,
					"feedback":      "well structured",
				}, nil
			default:
				return nil, errors.New("unexpected prompt")
			}
		},
		generateText: func(string) (string, error) {
			return "Hire.", nil
		},
	}
}

func TestEvaluationHandleCompletesJob(t *testing.T) {
	store := newFakeStore(queuedJob("job-1"))
	llm := scriptedLLM()
	acker := &fakeAcker{}

	w := NewEvaluationWorker(store, llm, &fakeRetriever{snippets: []string{"job description", "rubric"}}, testPolicy(), zap.NewNop())
	w.Handle(context.Background(), delivery(t, domain.EvaluateMessage{
		JobID: "job-1", CVText: "cv body", ProjectText: "project body",
	}, acker))

	assert.Equal(t, 1, acker.acked)
	assert.Zero(t, acker.nacked)
	assert.Equal(t, 3, llm.calls())

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, 82.0, job.CVMatchRate)
	assert.Equal(t, "strong backend profile", job.CVFeedback)
	assert.Equal(t, 3.85, job.ProjectScore)
	assert.Equal(t, "well structured", job.ProjectFeedback)
	assert.Equal(t, "Hire.", job.OverallSummary)
}

func TestEvaluationHandleMissingProjectUsesSentinel(t *testing.T) {
	store := newFakeStore(queuedJob("job-1"))
	llm := scriptedLLM()
	acker := &fakeAcker{}

	w := NewEvaluationWorker(store, llm, &fakeRetriever{snippets: []string{"context"}}, testPolicy(), zap.NewNop())
	w.Handle(context.Background(), delivery(t, domain.EvaluateMessage{JobID: "job-1", CVText: "cv body"}, acker))

	assert.Equal(t, 1, acker.acked)
	// Only profile and cv scoring; the project call is skipped entirely.
	assert.Equal(t, 2, llm.calls())

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Zero(t, job.ProjectScore)
	assert.Equal(t, domain.NoProjectFeedback, job.ProjectFeedback)
}

func TestEvaluationHandleRetryExhaustionFailsJob(t *testing.T) {
	store := newFakeStore(queuedJob("job-1"))
	llm := &fakeLLM{
		generateStructured: func(string, *ai.Schema) (map[string]any, error) {
			return nil, errors.New("503 from provider")
		},
	}
	acker := &fakeAcker{}

	w := NewEvaluationWorker(store, llm, &fakeRetriever{snippets: []string{"context"}}, testPolicy(), zap.NewNop())
	w.Handle(context.Background(), delivery(t, domain.EvaluateMessage{JobID: "job-1", CVText: "cv body"}, acker))

	// MaxRetries=1 means two attempts at the first call, then terminal failure.
	assert.Equal(t, 2, llm.calls())
	assert.Equal(t, 1, acker.acked)
	assert.Zero(t, acker.nacked)

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Zero(t, job.CVMatchRate)
}

func TestEvaluationHandleDuplicateDeliveryIsNoOp(t *testing.T) {
	store := newFakeStore(&domain.Job{ID: "job-1", Status: domain.StatusProcessing})
	llm := scriptedLLM()
	acker := &fakeAcker{}

	w := NewEvaluationWorker(store, llm, &fakeRetriever{}, testPolicy(), zap.NewNop())
	w.Handle(context.Background(), delivery(t, domain.EvaluateMessage{JobID: "job-1", CVText: "cv body"}, acker))

	assert.Equal(t, 1, acker.acked)
	assert.Zero(t, llm.calls())
	assert.Equal(t, domain.StatusProcessing, store.status(t, "job-1"))
}

func TestEvaluationHandleCompletedJobIsNotRescored(t *testing.T) {
	store := newFakeStore(&domain.Job{ID: "job-1", Status: domain.StatusCompleted, CVMatchRate: 82})
	llm := scriptedLLM()
	acker := &fakeAcker{}

	w := NewEvaluationWorker(store, llm, &fakeRetriever{}, testPolicy(), zap.NewNop())
	w.Handle(context.Background(), delivery(t, domain.EvaluateMessage{JobID: "job-1", CVText: "cv body"}, acker))

	assert.Equal(t, 1, acker.acked)
	assert.Zero(t, llm.calls())

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 82.0, job.CVMatchRate)
}

func TestEvaluationHandleStoreOutageRequeues(t *testing.T) {
	store := newFakeStore(queuedJob("job-1"))
	store.claimErr = errors.New("connection refused")
	acker := &fakeAcker{}

	w := NewEvaluationWorker(store, scriptedLLM(), &fakeRetriever{}, testPolicy(), zap.NewNop())
	w.Handle(context.Background(), delivery(t, domain.EvaluateMessage{JobID: "job-1", CVText: "cv body"}, acker))

	assert.Zero(t, acker.acked)
	assert.Equal(t, 1, acker.nacked)
	assert.True(t, acker.requeue)
}

func TestEvaluationHandleRetrieverFailureFailsJob(t *testing.T) {
	store := newFakeStore(queuedJob("job-1"))
	acker := &fakeAcker{}

	w := NewEvaluationWorker(store, scriptedLLM(), &fakeRetriever{err: errors.New("chroma down")}, testPolicy(), zap.NewNop())
	w.Handle(context.Background(), delivery(t, domain.EvaluateMessage{JobID: "job-1", CVText: "cv body"}, acker))

	assert.Equal(t, 1, acker.acked)
	assert.Equal(t, domain.StatusFailed, store.status(t, "job-1"))
}

func TestEvaluationHandleMalformedScoresDegradeToMinimum(t *testing.T) {
	store := newFakeStore(queuedJob("job-1"))
	llm := &fakeLLM{
		// The lenient decode path surfaces malformed provider output as an
		// empty object, never as an error.
		generateStructured: func(string, *ai.Schema) (map[string]any, error) {
			return map[string]any{}, nil
		},
		generateText: func(string) (string, error) { return "", nil },
	}
	acker := &fakeAcker{}

	w := NewEvaluationWorker(store, llm, &fakeRetriever{snippets: []string{"context"}}, testPolicy(), zap.NewNop())
	w.Handle(context.Background(), delivery(t, domain.EvaluateMessage{JobID: "job-1", CVText: "cv body"}, acker))

	assert.Equal(t, 1, acker.acked)

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	// All-zero components clamp to the scale floor: 1.0 weighted, 20 of 100.
	assert.Equal(t, 20.0, job.CVMatchRate)
	assert.Equal(t, domain.DefaultCVFeedback, job.CVFeedback)
	assert.Equal(t, domain.DefaultSummary, job.OverallSummary)
}

func TestEvaluationHandleEmptyCVTextUsesPlaceholder(t *testing.T) {
	store := newFakeStore(queuedJob("job-1"))

	var profilePrompt string
	llm := scriptedLLM()
	inner := llm.generateStructured
	llm.generateStructured = func(prompt string, schema *ai.Schema) (map[string]any, error) {
		if strings.Contains(prompt, "Extract structured information") {
			profilePrompt = prompt
		}
		return inner(prompt, schema)
	}
	acker := &fakeAcker{}

	w := NewEvaluationWorker(store, llm, &fakeRetriever{snippets: []string{"context"}}, testPolicy(), zap.NewNop())
	w.Handle(context.Background(), delivery(t, domain.EvaluateMessage{JobID: "job-1", CVText: "   "}, acker))

	assert.Contains(t, profilePrompt, fallbackCVText)
	assert.Equal(t, domain.StatusCompleted, store.status(t, "job-1"))
}

func TestEvaluationHandleDropsInvalidPayloads(t *testing.T) {
	store := newFakeStore()
	w := NewEvaluationWorker(store, &fakeLLM{}, &fakeRetriever{}, testPolicy(), zap.NewNop())

	acker := &fakeAcker{}
	w.Handle(context.Background(), rawDelivery("{not json", acker))
	assert.Equal(t, 1, acker.acked)

	acker = &fakeAcker{}
	w.Handle(context.Background(), delivery(t, domain.EvaluateMessage{CVText: "cv"}, acker))
	assert.Equal(t, 1, acker.acked)
	assert.Zero(t, acker.nacked)
}
