package workers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"candidate-evaluator/domain"
)

func writeUpload(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))
	return path
}

func TestExtractionHandleSavesTextsAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	cvPath := writeUpload(t, dir, "cv.txt")
	projectPath := writeUpload(t, dir, "report.txt")

	store := newFakeStore(&domain.Job{ID: "job-1", Status: domain.StatusUploaded})
	extractor := &fakeExtractor{texts: map[string]string{
		cvPath:      "cv body",
		projectPath: "project body",
	}}
	acker := &fakeAcker{}

	w := NewExtractionWorker(store, extractor, zap.NewNop())
	w.Handle(context.Background(), delivery(t, domain.ExtractMessage{
		JobID: "job-1", CVFile: cvPath, ProjectFile: projectPath,
	}, acker))

	assert.Equal(t, 1, acker.acked)
	assert.Zero(t, acker.nacked)

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, job.CVText)
	assert.Equal(t, "cv body", *job.CVText)
	require.NotNil(t, job.ProjectText)
	assert.Equal(t, "project body", *job.ProjectText)
	// Extraction never advances the status; only /evaluate does.
	assert.Equal(t, domain.StatusUploaded, job.Status)

	_, err = os.Stat(cvPath)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(projectPath)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtractionHandleWithoutProjectFile(t *testing.T) {
	dir := t.TempDir()
	cvPath := writeUpload(t, dir, "cv.txt")

	store := newFakeStore(&domain.Job{ID: "job-1", Status: domain.StatusUploaded})
	extractor := &fakeExtractor{texts: map[string]string{cvPath: "cv body"}}
	acker := &fakeAcker{}

	w := NewExtractionWorker(store, extractor, zap.NewNop())
	w.Handle(context.Background(), delivery(t, domain.ExtractMessage{JobID: "job-1", CVFile: cvPath}, acker))

	assert.Equal(t, 1, acker.acked)

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, job.CVText)
	assert.Nil(t, job.ProjectText)
}

func TestExtractionHandleIOErrorFailsJob(t *testing.T) {
	store := newFakeStore(&domain.Job{ID: "job-1", Status: domain.StatusUploaded})
	extractor := &fakeExtractor{errs: map[string]error{"/missing/cv.pdf": errors.New("read file: gone")}}
	acker := &fakeAcker{}

	w := NewExtractionWorker(store, extractor, zap.NewNop())
	w.Handle(context.Background(), delivery(t, domain.ExtractMessage{JobID: "job-1", CVFile: "/missing/cv.pdf"}, acker))

	// Terminal failure: the job is failed and the message is consumed.
	assert.Equal(t, 1, acker.acked)
	assert.Zero(t, acker.nacked)
	assert.Equal(t, domain.StatusFailed, store.status(t, "job-1"))
}

func TestExtractionHandleStoreOutageRequeues(t *testing.T) {
	dir := t.TempDir()
	cvPath := writeUpload(t, dir, "cv.txt")

	store := newFakeStore(&domain.Job{ID: "job-1", Status: domain.StatusUploaded})
	store.saveTextsErr = errors.New("connection refused")
	extractor := &fakeExtractor{texts: map[string]string{cvPath: "cv body"}}
	acker := &fakeAcker{}

	w := NewExtractionWorker(store, extractor, zap.NewNop())
	w.Handle(context.Background(), delivery(t, domain.ExtractMessage{JobID: "job-1", CVFile: cvPath}, acker))

	assert.Zero(t, acker.acked)
	assert.Equal(t, 1, acker.nacked)
	assert.True(t, acker.requeue)
	assert.Equal(t, domain.StatusUploaded, store.status(t, "job-1"))

	// The redelivered message must still find the upload on disk.
	_, err := os.Stat(cvPath)
	assert.NoError(t, err)
}

func TestExtractionHandleDropsInvalidPayloads(t *testing.T) {
	store := newFakeStore()
	w := NewExtractionWorker(store, &fakeExtractor{}, zap.NewNop())

	acker := &fakeAcker{}
	w.Handle(context.Background(), rawDelivery("{not json", acker))
	assert.Equal(t, 1, acker.acked)

	acker = &fakeAcker{}
	w.Handle(context.Background(), delivery(t, domain.ExtractMessage{CVFile: "cv.txt"}, acker))
	assert.Equal(t, 1, acker.acked)
	assert.Zero(t, acker.nacked)
}
