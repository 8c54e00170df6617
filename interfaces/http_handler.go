// Package interfaces holds the HTTP producer surface: upload the documents,
// request the evaluation, poll for the result. All heavy work happens in the
// queue consumers; every endpoint here returns promptly.
package interfaces

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"candidate-evaluator/domain"
	"candidate-evaluator/infrastructure"
)

// allowedExtensions is the upload allow-list; everything else is rejected
// before it touches disk.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
	".md":   true,
}

// JobStore is the slice of the store the HTTP layer needs.
type JobStore interface {
	Create(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	Enqueue(ctx context.Context, id string) (bool, error)
	MarkFailed(ctx context.Context, id string) error
}

// Publisher sends a message to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

type HTTPHandler struct {
	store      JobStore
	publisher  Publisher
	uploadsDir string
	log        *zap.Logger
}

func NewHTTPHandler(router *gin.Engine, store JobStore, publisher Publisher, uploadsDir string, log *zap.Logger) {
	h := &HTTPHandler{
		store:      store,
		publisher:  publisher,
		uploadsDir: uploadsDir,
		log:        log.With(zap.String("component", "http")),
	}

	router.POST("/upload", h.Upload)
	router.POST("/evaluate", h.Evaluate)
	router.GET("/result/:id", h.GetResult)
	router.GET("/healthz", h.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Upload accepts the CV (required) and the project report (optional), stores
// them under job-scoped names and queues the extraction.
func (h *HTTPHandler) Upload(c *gin.Context) {
	cvHeader, err := c.FormFile("cv_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cv_file is required"})
		return
	}
	cvExt := strings.ToLower(filepath.Ext(cvHeader.Filename))
	if !allowedExtensions[cvExt] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported cv_file type, use pdf, docx, txt or md"})
		return
	}

	projectHeader, err := c.FormFile("project_file")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_file"})
		return
	}
	var projectExt string
	if projectHeader != nil {
		projectExt = strings.ToLower(filepath.Ext(projectHeader.Filename))
		if !allowedExtensions[projectExt] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported project_file type, use pdf, docx, txt or md"})
			return
		}
	}

	jobID := uuid.NewString()

	cvPath := filepath.Join(h.uploadsDir, jobID+"_cv"+cvExt)
	if err := c.SaveUploadedFile(cvHeader, cvPath); err != nil {
		h.log.Error("saving cv upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store cv_file"})
		return
	}

	var projectPath string
	if projectHeader != nil {
		projectPath = filepath.Join(h.uploadsDir, jobID+"_project"+projectExt)
		if err := c.SaveUploadedFile(projectHeader, projectPath); err != nil {
			h.log.Error("saving project upload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store project_file"})
			return
		}
	}

	ctx := c.Request.Context()

	if err := h.store.Create(ctx, jobID); err != nil {
		h.log.Error("creating job failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	msg := domain.ExtractMessage{JobID: jobID, CVFile: cvPath, ProjectFile: projectPath}
	if err := h.publisher.Publish(ctx, infrastructure.QueueExtract, msg); err != nil {
		h.log.Error("queueing extraction failed", zap.String("job_id", jobID), zap.Error(err))
		if err := h.store.MarkFailed(ctx, jobID); err != nil {
			h.log.Error("marking job failed failed", zap.String("job_id", jobID), zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue extraction"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": jobID, "status": domain.StatusUploaded})
}

// Evaluate moves the job to queued and publishes the scoring message. A job
// already processing or completed is left alone and its current status is
// returned, so repeated requests never restart a running evaluation.
func (h *HTTPHandler) Evaluate(c *gin.Context) {
	var req struct {
		ID string `json:"id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	ctx := c.Request.Context()

	job, err := h.store.Get(ctx, req.ID)
	if err != nil {
		if errors.Is(err, infrastructure.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.log.Error("loading job failed", zap.String("job_id", req.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}

	ok, err := h.store.Enqueue(ctx, req.ID)
	if err != nil {
		h.log.Error("enqueueing job failed", zap.String("job_id", req.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue evaluation"})
		return
	}
	if !ok {
		// Lost the guarded transition: the job is processing or completed.
		current, err := h.store.Get(ctx, req.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": current.ID, "status": current.Status})
		return
	}

	msg := domain.EvaluateMessage{
		JobID:       job.ID,
		CVText:      domain.Text(job.CVText),
		ProjectText: domain.Text(job.ProjectText),
	}
	if err := h.publisher.Publish(ctx, infrastructure.QueueEvaluate, msg); err != nil {
		h.log.Error("queueing evaluation failed", zap.String("job_id", req.ID), zap.Error(err))
		if err := h.store.MarkFailed(ctx, req.ID); err != nil {
			h.log.Error("marking job failed failed", zap.String("job_id", req.ID), zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue evaluation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": job.ID, "status": domain.StatusQueued})
}

// GetResult reports the job status, with the result payload attached once
// the job completed.
func (h *HTTPHandler) GetResult(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	job, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, infrastructure.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.log.Error("loading job failed", zap.String("job_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}

	resp := gin.H{
		"id":         job.ID,
		"status":     job.Status,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}
	if job.Status == domain.StatusCompleted {
		resp["result"] = gin.H{
			"cv_match_rate":    job.CVMatchRate,
			"cv_feedback":      job.CVFeedback,
			"project_score":    job.ProjectScore,
			"project_feedback": job.ProjectFeedback,
			"overall_summary":  job.OverallSummary,
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
