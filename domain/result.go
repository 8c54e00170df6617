package domain

// Fallback strings used when the reasoning service yields nothing usable.
// They are part of the stored result contract, so tests compare them literally.
const (
	NoProjectFeedback      = "No project report provided for evaluation."
	DefaultCVFeedback      = "No feedback available"
	DefaultProjectFeedback = "No project feedback available"
	DefaultSummary         = "No summary available"
)

// CVScores holds the four rubric component scores for the CV assessment,
// each expected on a 1-5 scale.
type CVScores struct {
	TechnicalSkills float64 `json:"technical_skills"`
	Experience      float64 `json:"experience"`
	Achievements    float64 `json:"achievements"`
	CulturalFit     float64 `json:"cultural_fit"`
}

// ProjectScores holds the five rubric component scores for the project
// report assessment, each expected on a 1-5 scale.
type ProjectScores struct {
	Correctness   float64 `json:"correctness"`
	CodeQuality   float64 `json:"code_quality"`
	Resilience    float64 `json:"resilience"`
	Documentation float64 `json:"documentation"`
	Creativity    float64 `json:"creativity"`
}

// CVAssessment is the scored CV evaluation before aggregation into the
// final result.
type CVAssessment struct {
	Scores    CVScores `json:"scores"`
	MatchRate float64  `json:"match_rate"`
	Feedback  string   `json:"feedback"`
}

// ProjectAssessment is the scored project evaluation. When no project text
// was supplied WeightedAverage is exactly 0 and Feedback carries the fixed
// sentinel.
type ProjectAssessment struct {
	Scores          ProjectScores `json:"scores"`
	WeightedAverage float64       `json:"weighted_average"`
	Feedback        string        `json:"feedback"`
}

// EvaluationResult is the payload persisted with the completed status and
// returned by the result endpoint.
type EvaluationResult struct {
	CVMatchRate     float64 `json:"cv_match_rate"`
	CVFeedback      string  `json:"cv_feedback"`
	ProjectScore    float64 `json:"project_score"`
	ProjectFeedback string  `json:"project_feedback"`
	OverallSummary  string  `json:"overall_summary"`
}

// EmptyProjectAssessment is the assessment recorded when the candidate never
// supplied a project report.
func EmptyProjectAssessment() ProjectAssessment {
	return ProjectAssessment{Feedback: NoProjectFeedback}
}

// BuildResult combines both assessments and the summary text into the final
// result, substituting the fixed fallbacks for missing feedback.
func BuildResult(cv CVAssessment, project ProjectAssessment, summary string) EvaluationResult {
	if cv.Feedback == "" {
		cv.Feedback = DefaultCVFeedback
	}
	if project.Feedback == "" {
		project.Feedback = DefaultProjectFeedback
	}
	if summary == "" {
		summary = DefaultSummary
	}

	return EvaluationResult{
		CVMatchRate:     cv.MatchRate,
		CVFeedback:      cv.Feedback,
		ProjectScore:    project.WeightedAverage,
		ProjectFeedback: project.Feedback,
		OverallSummary:  summary,
	}
}
