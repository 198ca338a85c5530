// Package domain holds the candidate model shared by every pipeline stage.
package domain

import "time"

// Source names emitted by the collectors.
const (
	SourceArxiv           = "arxiv"
	SourceGitHub          = "github"
	SourceHuggingFace     = "huggingface"
	SourceHELM            = "helm"
	SourceSemanticScholar = "semantic_scholar"
	SourceTechEmpower     = "techempower"
	SourceDBEngines       = "dbengines"
)

// ValidSources is the allow-list checked by the prefilter.
var ValidSources = map[string]struct{}{
	SourceArxiv:           {},
	SourceGitHub:          {},
	SourceHuggingFace:     {},
	SourceHELM:            {},
	SourceSemanticScholar: {},
	SourceTechEmpower:     {},
	SourceDBEngines:       {},
}

// Dedup lookback windows per source. Sources that publish slowly get wider
// windows so re-collected items still match existing rows.
const (
	DedupWindowArxiv       = 7 * 24 * time.Hour
	DedupWindowHuggingFace = 14 * 24 * time.Hour
	DedupWindowGitHub      = 30 * 24 * time.Hour
	DedupWindowDefault     = 60 * 24 * time.Hour
)

// DedupWindow returns the primary-store lookback window for a source.
func DedupWindow(source string) time.Duration {
	switch source {
	case SourceArxiv:
		return DedupWindowArxiv
	case SourceHuggingFace:
		return DedupWindowHuggingFace
	case SourceGitHub:
		return DedupWindowGitHub
	default:
		return DedupWindowDefault
	}
}

// RawCandidate is a benchmark candidate as produced by a collector, before
// scoring.
type RawCandidate struct {
	Title       string
	URL         string
	Source      string
	Abstract    string
	Authors     []string
	PublishDate *time.Time

	GitHubStars int
	GitHubURL   string
	DatasetURL  string
	PaperURL    string
	TaskType    string

	HeroImageURL string
	HeroImageKey string

	// Raw extraction results carried through to storage.
	RawMetadata     map[string]string
	RawMetrics      string
	RawBaselines    string
	RawAuthors      string
	RawInstitutions string
	RawDatasetSize  string
}

// Score weights. Reproducibility and relevance dominate because they decide
// whether a benchmark is actually usable.
const (
	WeightActivity        = 0.15
	WeightReproducibility = 0.30
	WeightLicense         = 0.15
	WeightNovelty         = 0.15
	WeightRelevance       = 0.25
)

// Penalties applied to the weighted total.
const (
	PenaltyAlgorithmPaper = 5.0
	PenaltyNotBenchmark   = 3.0
)

// Priority thresholds on the total score.
const (
	PriorityHighThreshold   = 8.0
	PriorityMediumThreshold = 6.0
)

// MinTotalScore is the persistence floor: anything below is dropped.
const MinTotalScore = PriorityMediumThreshold

// Priority levels.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Reasoning length floors enforced on LLM output: 150 per dimension, 200 for
// the backend specialty dimensions, 100 for the classification justification
// and 50 for the overall summary.
const (
	ReasoningMinChars        = 150
	BackendReasoningMinChars = 200
	ToolReasoningMinChars    = 100
	OverallReasoningMinChars = 50
)

// Non-benchmark categories assigned by the scorer. Empty means the candidate
// is a real benchmark.
const (
	NonBenchmarkAlgorithmPaper  = "algorithm_paper"
	NonBenchmarkSystemFramework = "system_framework"
	NonBenchmarkToolSDK         = "tool_sdk"
	NonBenchmarkModelRelease    = "model_release"
)

// NonBenchmarkCategories is the closed set of category values.
var NonBenchmarkCategories = []string{
	NonBenchmarkAlgorithmPaper,
	NonBenchmarkSystemFramework,
	NonBenchmarkToolSDK,
	NonBenchmarkModelRelease,
}

// IsValidNonBenchmarkCategory reports whether category is empty or one of
// NonBenchmarkCategories.
func IsValidNonBenchmarkCategory(category string) bool {
	if category == "" {
		return true
	}
	for _, opt := range NonBenchmarkCategories {
		if opt == category {
			return true
		}
	}
	return false
}

// TaskDomainOptions is the closed set of task domains a candidate may be
// assigned to.
var TaskDomainOptions = []string{
	"Coding",
	"WebDev",
	"Backend",
	"GUI",
	"ToolUse",
	"Collaboration",
	"LLM/AgentOps",
	"Reasoning",
	"DeepResearch",
	"Other",
}

// DefaultTaskDomain is used when the model returns an unknown domain.
const DefaultTaskDomain = "Other"

// IsValidTaskDomain reports whether domain is one of TaskDomainOptions.
func IsValidTaskDomain(domain string) bool {
	for _, opt := range TaskDomainOptions {
		if opt == domain {
			return true
		}
	}
	return false
}

// ScoredCandidate is a candidate with LLM (or fallback) dimension scores.
type ScoredCandidate struct {
	RawCandidate

	ActivityScore        float64
	ReproducibilityScore float64
	LicenseScore         float64
	NoveltyScore         float64
	RelevanceScore       float64

	ActivityReasoning        string
	ReproducibilityReasoning string
	LicenseReasoning         string
	NoveltyReasoning         string
	RelevanceReasoning       string

	// Backend specialty dimensions, populated only for Backend-domain
	// candidates.
	BackendMGXRelevance         float64
	BackendMGXReasoning         string
	BackendEngineeringValue     float64
	BackendEngineeringReasoning string

	ScoreReasoning string
	ToolReasoning  string

	TaskDomain             string
	Metrics                string
	Baselines              string
	Institution            string
	DatasetSize            string
	DatasetSizeDescription string
	License                string

	// Classification set by the scorer. NonBenchmarkCategory is one of
	// NonBenchmarkCategories, or empty for a real benchmark.
	IsNotBenchmark       bool
	NonBenchmarkCategory string
	Fallback             bool

	// Optional manual override; zero means "use the computed total".
	CustomTotalScore float64
}

// TotalScore returns the weighted dimension sum minus penalties, clamped to
// [0, 10]. It is always computed, never stored.
func (c *ScoredCandidate) TotalScore() float64 {
	if c.CustomTotalScore > 0 {
		return clampScore(c.CustomTotalScore)
	}

	total := c.ActivityScore*WeightActivity +
		c.ReproducibilityScore*WeightReproducibility +
		c.LicenseScore*WeightLicense +
		c.NoveltyScore*WeightNovelty +
		c.RelevanceScore*WeightRelevance

	switch {
	case c.NonBenchmarkCategory == NonBenchmarkAlgorithmPaper:
		total -= PenaltyAlgorithmPaper
	case c.IsNotBenchmark:
		total -= PenaltyNotBenchmark
	}

	return clampScore(total)
}

// Priority maps the total score to a priority bucket.
func (c *ScoredCandidate) Priority() string {
	total := c.TotalScore()
	switch {
	case total >= PriorityHighThreshold:
		return PriorityHigh
	case total >= PriorityMediumThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ClampScore bounds a single dimension score to [0, 10].
func ClampScore(v float64) float64 {
	return clampScore(v)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
