package domain

import "math"

// Rubric weights. Each set sums to 1.0, so a weighted sum over clamped
// component scores always lands back in [1,5].
const (
	WeightTechnicalSkills = 0.40
	WeightExperience      = 0.25
	WeightAchievements    = 0.20
	WeightCulturalFit     = 0.15

	WeightCorrectness   = 0.30
	WeightCodeQuality   = 0.25
	WeightResilience    = 0.20
	WeightDocumentation = 0.15
	WeightCreativity    = 0.10
)

// clampScore bounds a raw component score to the 1-5 rubric scale. Clamping
// happens before weighting; rounding happens only on the final sum.
func clampScore(v float64) float64 {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// WeightedCVScore returns the weighted CV rubric sum on the native 1-5
// scale, unrounded.
func WeightedCVScore(s CVScores) float64 {
	return WeightTechnicalSkills*clampScore(s.TechnicalSkills) +
		WeightExperience*clampScore(s.Experience) +
		WeightAchievements*clampScore(s.Achievements) +
		WeightCulturalFit*clampScore(s.CulturalFit)
}

// CVMatchRate normalizes the weighted CV score to the 0-100 reporting scale
// with two-decimal rounding.
func CVMatchRate(s CVScores) float64 {
	return round2(WeightedCVScore(s) * 20)
}

// WeightedProjectScore returns the weighted project rubric average on the
// native 1-5 scale, rounded to two decimals.
func WeightedProjectScore(s ProjectScores) float64 {
	sum := WeightCorrectness*clampScore(s.Correctness) +
		WeightCodeQuality*clampScore(s.CodeQuality) +
		WeightResilience*clampScore(s.Resilience) +
		WeightDocumentation*clampScore(s.Documentation) +
		WeightCreativity*clampScore(s.Creativity)
	return round2(sum)
}

// AggregateCV builds a CV assessment from raw component scores and feedback.
func AggregateCV(scores CVScores, feedback string) CVAssessment {
	return CVAssessment{
		Scores:    scores,
		MatchRate: CVMatchRate(scores),
		Feedback:  feedback,
	}
}

// AggregateProject builds a project assessment from raw component scores and
// feedback.
func AggregateProject(scores ProjectScores, feedback string) ProjectAssessment {
	return ProjectAssessment{
		Scores:          scores,
		WeightedAverage: WeightedProjectScore(scores),
		Feedback:        feedback,
	}
}
