package domain

import "time"

// Status is the lifecycle state of a Job. Transitions are monotonic:
// uploaded -> queued -> processing -> completed, with failed reachable from
// any pre-terminal state. A failed job may be re-queued by an explicit
// evaluate request.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is one candidate's end-to-end evaluation request.
// CVText and ProjectText stay NULL until the extraction stage persists them.
// Result columns are populated only together with the completed status.
type Job struct {
	ID              string  `gorm:"primaryKey;size:36"`
	CVText          *string `gorm:"column:cv_text;type:longtext"`
	ProjectText     *string `gorm:"column:project_text;type:longtext"`
	Status          Status  `gorm:"size:32;not null;default:'uploaded';index"`
	CVMatchRate     float64 `gorm:"column:cv_match_rate"`
	CVFeedback      string  `gorm:"column:cv_feedback;type:text"`
	ProjectScore    float64
	ProjectFeedback string  `gorm:"type:text"`
	OverallSummary  string  `gorm:"type:text"`
	ResultJSON      *string `gorm:"column:result_json;type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EnqueueableFrom lists the states an evaluate request may move to queued.
// processing and completed are excluded so duplicate requests are a no-op;
// failed is included so a job can be retried explicitly.
func EnqueueableFrom() []Status {
	return []Status{StatusUploaded, StatusQueued, StatusFailed}
}

// Text returns the stored text field or the empty string when absent.
func Text(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
