package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"candidate-evaluator/ai"
	"candidate-evaluator/domain"
)

// fakeStore is an in-memory JobStore with the same guarded-transition
// semantics as the real one, plus error injection per method.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job

	saveTextsErr  error
	claimErr      error
	markFailedErr error
	completeErr   error
}

func newFakeStore(jobs ...*domain.Job) *fakeStore {
	s := &fakeStore{jobs: make(map[string]*domain.Job)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *job
	return &copied, nil
}

func (s *fakeStore) SaveTexts(_ context.Context, id, cvText, projectText string) error {
	if s.saveTextsErr != nil {
		return s.saveTextsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return errors.New("not found")
	}
	job.CVText, job.ProjectText = nil, nil
	if cvText != "" {
		job.CVText = &cvText
	}
	if projectText != "" {
		job.ProjectText = &projectText
	}
	return nil
}

func (s *fakeStore) ClaimProcessing(_ context.Context, id string) (bool, error) {
	if s.claimErr != nil {
		return false, s.claimErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != domain.StatusQueued {
		return false, nil
	}
	job.Status = domain.StatusProcessing
	return true, nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id string) error {
	if s.markFailedErr != nil {
		return s.markFailedErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok && job.Status != domain.StatusCompleted {
		job.Status = domain.StatusFailed
	}
	return nil
}

func (s *fakeStore) Complete(_ context.Context, id string, result domain.EvaluationResult) (bool, error) {
	if s.completeErr != nil {
		return false, s.completeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != domain.StatusProcessing {
		return false, nil
	}
	job.Status = domain.StatusCompleted
	job.CVMatchRate = result.CVMatchRate
	job.CVFeedback = result.CVFeedback
	job.ProjectScore = result.ProjectScore
	job.ProjectFeedback = result.ProjectFeedback
	job.OverallSummary = result.OverallSummary
	return true, nil
}

func (s *fakeStore) status(t *testing.T, id string) domain.Status {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	require.True(t, ok)
	return job.Status
}

// fakeExtractor dispatches on the full path.
type fakeExtractor struct {
	texts map[string]string
	errs  map[string]error
}

func (e *fakeExtractor) ExtractText(path string) (string, error) {
	if err := e.errs[path]; err != nil {
		return "", err
	}
	return e.texts[path], nil
}

// fakeLLM scripts responses via function fields; unset fields fail the call.
type fakeLLM struct {
	mu              sync.Mutex
	structuredCalls []string

	generateStructured func(prompt string, schema *ai.Schema) (map[string]any, error)
	generateText       func(prompt string) (string, error)
}

func (f *fakeLLM) GenerateStructured(_ context.Context, prompt string, schema *ai.Schema) (map[string]any, error) {
	f.mu.Lock()
	f.structuredCalls = append(f.structuredCalls, prompt)
	f.mu.Unlock()
	if f.generateStructured == nil {
		return nil, errors.New("unexpected structured call")
	}
	return f.generateStructured(prompt, schema)
}

func (f *fakeLLM) GenerateText(_ context.Context, prompt string) (string, error) {
	if f.generateText == nil {
		return "", errors.New("unexpected text call")
	}
	return f.generateText(prompt)
}

func (f *fakeLLM) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("unexpected embed call")
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.structuredCalls)
}

type fakeRetriever struct {
	snippets []string
	err      error
}

func (r *fakeRetriever) Query(context.Context, string, int) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.snippets, nil
}

// fakeAcker records how the worker settled the delivery.
type fakeAcker struct {
	mu      sync.Mutex
	acked   int
	nacked  int
	requeue bool
}

func (a *fakeAcker) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked++
	return nil
}

func (a *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *fakeAcker) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

func delivery(t *testing.T, payload any, acker *fakeAcker) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: body}
}

func rawDelivery(body string, acker *fakeAcker) amqp.Delivery {
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte(body)}
}
