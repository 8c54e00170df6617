package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"candidate-evaluator/domain"
)

// ErrNotFound is returned when a job id has no record.
var ErrNotFound = errors.New("job not found")

// NewMySQL opens the MySQL connection and migrates the schema.
func NewMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Job{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}

// Store is the durable keyed record of job state and results. Every
// transition is a single guarded UPDATE so a concurrent reader can never
// observe a half-written state, and a lost race shows up as zero affected
// rows instead of a silent overwrite.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new job in the uploaded state.
func (s *Store) Create(ctx context.Context, id string) error {
	job := domain.Job{ID: id, Status: domain.StatusUploaded}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get fetches a job by id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// SaveTexts persists both extracted text fields in one update. Empty text is
// stored as NULL so "extraction yielded nothing" stays distinguishable from
// an empty document.
func (s *Store) SaveTexts(ctx context.Context, id, cvText, projectText string) error {
	err := s.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"cv_text":      nullable(cvText),
			"project_text": nullable(projectText),
			"updated_at":   time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("save texts: %w", err)
	}
	return nil
}

// Enqueue moves a job to queued if it is in an enqueue-eligible state.
// Returns false when the job is processing, completed or missing, which the
// caller treats as "report current status, do not publish".
func (s *Store) Enqueue(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status IN ?", id, domain.EnqueueableFrom()).
		Updates(map[string]any{"status": domain.StatusQueued, "updated_at": time.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("enqueue job: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ClaimProcessing is the queue-exclusivity guard: only a job still in queued
// can move to processing, so a duplicate evaluate delivery claims nothing
// and is skipped.
func (s *Store) ClaimProcessing(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.StatusQueued).
		Updates(map[string]any{"status": domain.StatusProcessing, "updated_at": time.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("claim job: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed moves a job to the failed state unless it already completed.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status <> ?", id, domain.StatusCompleted).
		Updates(map[string]any{"status": domain.StatusFailed, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Complete writes the terminal state and the full result in one atomic
// update, guarded on processing. Zero affected rows means another consumer
// already finished the job; under at-least-once delivery that is a no-op,
// not an error.
func (s *Store) Complete(ctx context.Context, id string, result domain.EvaluationResult) (bool, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}
	rawStr := string(raw)

	res := s.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]any{
			"status":           domain.StatusCompleted,
			"cv_match_rate":    result.CVMatchRate,
			"cv_feedback":      result.CVFeedback,
			"project_score":    result.ProjectScore,
			"project_feedback": result.ProjectFeedback,
			"overall_summary":  result.OverallSummary,
			"result_json":      &rawStr,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("complete job: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// RequeueStale finds jobs stuck in processing beyond the threshold and moves
// them back to queued, returning the recovered jobs so the caller can
// re-publish their evaluate messages. Covers workers that died between claim
// and terminal write.
func (s *Store) RequeueStale(ctx context.Context, olderThan time.Duration) ([]domain.Job, error) {
	cutoff := time.Now().Add(-olderThan)

	var stuck []domain.Job
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.StatusProcessing, cutoff).
		Find(&stuck).Error
	if err != nil {
		return nil, fmt.Errorf("find stale jobs: %w", err)
	}

	var recovered []domain.Job
	for _, job := range stuck {
		res := s.db.WithContext(ctx).Model(&domain.Job{}).
			Where("id = ? AND status = ?", job.ID, domain.StatusProcessing).
			Updates(map[string]any{"status": domain.StatusQueued, "updated_at": time.Now()})
		if res.Error != nil {
			return recovered, fmt.Errorf("requeue stale job %s: %w", job.ID, res.Error)
		}
		if res.RowsAffected > 0 {
			recovered = append(recovered, job)
		}
	}

	return recovered, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
