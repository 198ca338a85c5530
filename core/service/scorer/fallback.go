package scorer

import (
	"fmt"

	"github.com/benchscope/benchscope/core/domain"
)

// fallbackScore produces heuristic scores when the LLM is unavailable so a
// run still completes end to end.
func (s *Scorer) fallbackScore(c domain.RawCandidate) domain.ScoredCandidate {
	activity := 5.0
	switch {
	case c.GitHubStars >= 1000:
		activity = 9.0
	case c.GitHubStars >= 500:
		activity = 7.5
	case c.GitHubStars >= 100:
		activity = 6.0
	}

	repro := 3.0
	if c.GitHubURL != "" {
		repro += 3.0
	}
	if c.DatasetURL != "" {
		repro += 3.0
	}

	taskDomain := c.TaskType
	if !domain.IsValidTaskDomain(taskDomain) {
		taskDomain = domain.DefaultTaskDomain
	}

	return domain.ScoredCandidate{
		RawCandidate: c,

		ActivityScore:        activity,
		ReproducibilityScore: repro,
		LicenseScore:         5.0,
		NoveltyScore:         5.0,
		RelevanceScore:       5.0,

		ActivityReasoning: fmt.Sprintf(
			"Heuristic: %d GitHub stars mapped onto the activity bands.", c.GitHubStars),
		ReproducibilityReasoning: "Heuristic: scored from repository and dataset link presence only.",
		LicenseReasoning:         "Heuristic: license terms unverified, neutral midpoint assigned.",
		NoveltyReasoning:         "Heuristic: novelty needs model judgment, neutral midpoint assigned.",
		RelevanceReasoning:       "Heuristic: relevance needs model judgment, neutral midpoint assigned.",

		ScoreReasoning: fmt.Sprintf(
			"Rule-based fallback score: LLM scoring was unavailable. Activity derived from "+
				"%d GitHub stars, reproducibility from repository and dataset link presence, "+
				"remaining dimensions set to the neutral midpoint pending a re-score.",
			c.GitHubStars),
		ToolReasoning: "Fallback scoring cannot assess adoption fit; the candidate is kept " +
			"for manual review and will be re-scored on the next run with the LLM available.",

		TaskDomain:  taskDomain,
		Metrics:     c.RawMetrics,
		Baselines:   c.RawBaselines,
		Institution: c.RawInstitutions,
		DatasetSize: c.RawDatasetSize,
		License:     c.RawMetadata["license"],

		Fallback: true,
	}
}
