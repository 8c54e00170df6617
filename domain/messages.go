package domain

import "errors"

// Queue message payloads. Each queue carries exactly one message kind and a
// malformed payload is rejected at deserialization, before any handler runs.

// ExtractMessage asks the extraction worker to turn the uploaded files into
// plain text. File fields are paths on shared storage.
type ExtractMessage struct {
	JobID       string `json:"job_id"`
	CVFile      string `json:"cv_file"`
	ProjectFile string `json:"project_file"`
}

func (m ExtractMessage) Validate() error {
	if m.JobID == "" {
		return errors.New("extract message: job_id is required")
	}
	if m.CVFile == "" {
		return errors.New("extract message: cv_file is required")
	}
	return nil
}

// EvaluateMessage asks the evaluation worker to score the extracted text.
// Text fields may be empty when extraction yielded nothing; the worker treats
// that as "no data provided" rather than an error.
type EvaluateMessage struct {
	JobID       string `json:"job_id"`
	CVText      string `json:"cv_text"`
	ProjectText string `json:"project_text"`
}

func (m EvaluateMessage) Validate() error {
	if m.JobID == "" {
		return errors.New("evaluate message: job_id is required")
	}
	return nil
}
