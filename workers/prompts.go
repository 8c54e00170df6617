package workers

import (
	"encoding/json"
	"fmt"
	"strings"

	"candidate-evaluator/ai"
	"candidate-evaluator/domain"
)

const (
	contextDescriptionQuery = "Backend engineer job description"
	contextRubricQuery      = "Project evaluation rubric for a backend role"

	fallbackCVText = "No CV data provided"
)

func cvProfileSchema() *ai.Schema {
	return &ai.Schema{Fields: []ai.Field{
		{
			Name: "skills", Type: ai.TypeArray, Required: true,
			Description: "Technical and non-technical skills listed in the CV.",
			Items:       &ai.Field{Type: ai.TypeString},
		},
		{
			Name: "experiences", Type: ai.TypeArray, Required: true,
			Description: "Work experience entries.",
			Items: &ai.Field{Type: ai.TypeObject, Fields: []ai.Field{
				{Name: "title", Type: ai.TypeString, Description: "Role held.", Required: true},
				{Name: "company", Type: ai.TypeString, Description: "Company or organization.", Required: true},
				{Name: "duration", Type: ai.TypeString, Description: "Time range in the role.", Required: true},
				{Name: "description", Type: ai.TypeString, Description: "Responsibilities and achievements."},
			}},
		},
		{
			Name: "projects", Type: ai.TypeArray, Required: true,
			Description: "Notable projects from the CV.",
			Items: &ai.Field{Type: ai.TypeObject, Fields: []ai.Field{
				{Name: "name", Type: ai.TypeString, Description: "Project name.", Required: true},
				{Name: "technologies", Type: ai.TypeArray, Description: "Technology stack.", Items: &ai.Field{Type: ai.TypeString}},
				{Name: "summary", Type: ai.TypeString, Description: "What the project does.", Required: true},
			}},
		},
	}}
}

func cvScoringSchema() *ai.Schema {
	return &ai.Schema{Fields: []ai.Field{
		{Name: "technical_skills", Type: ai.TypeNumber, Required: true,
			Description: "Score 1-5 for backend languages, databases, APIs, cloud and AI/LLM exposure."},
		{Name: "experience", Type: ai.TypeNumber, Required: true,
			Description: "Score 1-5 for years of experience and project complexity."},
		{Name: "achievements", Type: ai.TypeNumber, Required: true,
			Description: "Score 1-5 for impact and scale of past work."},
		{Name: "cultural_fit", Type: ai.TypeNumber, Required: true,
			Description: "Score 1-5 for communication and learning attitude."},
		{Name: "feedback", Type: ai.TypeString, Required: true,
			Description: "Feedback on strengths and gaps relative to the job requirements."},
	}}
}

func projectScoringSchema() *ai.Schema {
	return &ai.Schema{Fields: []ai.Field{
		{Name: "correctness", Type: ai.TypeNumber, Required: true,
			Description: "Score 1-5 for prompt design, chaining and context injection per the rubric."},
		{Name: "code_quality", Type: ai.TypeNumber, Required: true,
			Description: "Score 1-5 for structure, modularity, reusability and testing."},
		{Name: "resilience", Type: ai.TypeNumber, Required: true,
			Description: "Score 1-5 for error handling, retries and robustness on long jobs."},
		{Name: "documentation", Type: ai.TypeNumber, Required: true,
			Description: "Score 1-5 for README clarity, setup steps and trade-off discussion."},
		{Name: "creativity", Type: ai.TypeNumber, Required: true,
			Description: "Score 1-5 for improvements beyond the core requirements."},
		{Name: "feedback", Type: ai.TypeString, Required: true,
			Description: "Feedback justifying each of the five scores."},
	}}
}

func cvProfilePrompt(cvText string) string {
	return "Extract structured information (skills, experiences, projects) from this CV. " +
		"Adhere strictly to the provided schema and add no text outside the JSON object.\n\nCV:\n" + cvText
}

func cvScoringPrompt(profile map[string]any, jobContext string) string {
	profileJSON, _ := json.Marshal(profile)
	return fmt.Sprintf(`You are an evaluator. Compare this candidate profile with the job requirements for a backend role.
Score each rubric component from 1 to 5 and explain the reasoning in the feedback field.

Candidate profile:
%s

Job requirements:
%s`, profileJSON, jobContext)
}

func projectScoringPrompt(projectText, jobContext string) string {
	return fmt.Sprintf(`You are a technical evaluator for a backend engineering role.
Evaluate the project report against the rubric. Score each component from 1 to 5 and justify every score in the feedback field.

Project report:
%s

Rubric and job requirements:
%s`, projectText, jobContext)
}

func summaryPrompt(cv domain.CVAssessment, project domain.ProjectAssessment) string {
	cvJSON, _ := json.Marshal(cv)
	projectJSON, _ := json.Marshal(project)
	return fmt.Sprintf(`Summarize the candidate evaluation in 3-5 sentences.
Mention strengths, gaps, and a recommendation (hire, further assessment, or pass).

Candidate match:
%s

Project evaluation:
%s`, cvJSON, projectJSON)
}

// parseCVScores reads the four component scores from a structured response.
// ok is false when the response carried no usable component at all, which is
// the lenient malformed-output path.
func parseCVScores(m map[string]any) (domain.CVScores, string, bool) {
	var s domain.CVScores
	found := false

	if v, ok := ai.Number(m, "technical_skills"); ok {
		s.TechnicalSkills, found = v, true
	}
	if v, ok := ai.Number(m, "experience"); ok {
		s.Experience, found = v, true
	}
	if v, ok := ai.Number(m, "achievements"); ok {
		s.Achievements, found = v, true
	}
	if v, ok := ai.Number(m, "cultural_fit"); ok {
		s.CulturalFit, found = v, true
	}

	return s, ai.Str(m, "feedback"), found
}

func parseProjectScores(m map[string]any) (domain.ProjectScores, string, bool) {
	var s domain.ProjectScores
	found := false

	if v, ok := ai.Number(m, "correctness"); ok {
		s.Correctness, found = v, true
	}
	if v, ok := ai.Number(m, "code_quality"); ok {
		s.CodeQuality, found = v, true
	}
	if v, ok := ai.Number(m, "resilience"); ok {
		s.Resilience, found = v, true
	}
	if v, ok := ai.Number(m, "documentation"); ok {
		s.Documentation, found = v, true
	}
	if v, ok := ai.Number(m, "creativity"); ok {
		s.Creativity, found = v, true
	}

	return s, ai.Str(m, "feedback"), found
}

func hasText(s string) bool {
	return strings.TrimSpace(s) != ""
}
