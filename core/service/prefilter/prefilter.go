// Package prefilter removes obvious non-benchmarks before the LLM sees them.
package prefilter

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/pkg/logger"
)

// Filter reasons reported in stats and logs.
const (
	ReasonPass               = "pass"
	ReasonTitleShort         = "title_short"
	ReasonAbstractShort      = "abstract_short"
	ReasonInvalidURL         = "invalid_url"
	ReasonInvalidSource      = "invalid_source"
	ReasonKeywordRule        = "keyword_rule"
	ReasonNoBenchmarkFeature = "no_benchmark_feature"
	ReasonGitHubQuality      = "github_quality"
	ReasonToolRepo           = "tool_repo"
	ReasonAlgoPaper          = "algo_paper"
	ReasonTechReport         = "tech_report"
	ReasonNonMgxApp          = "non_mgx_app"
)

// Stats aggregates one batch run of the prefilter.
type Stats struct {
	Input   int
	Output  int
	Reasons map[string]int
	// Per-source input/output counts.
	Sources map[string][2]int
}

// Engine applies the ordered rule chain.
type Engine struct {
	log *logger.Logger
	now func() time.Time
}

// New creates a prefilter engine.
func New(log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	return &Engine{log: log, now: time.Now}
}

// Check runs the rule chain for one candidate and returns whether it passed
// plus the first matching filter reason.
func (e *Engine) Check(c domain.RawCandidate) (bool, string) {
	if len(strings.TrimSpace(c.Title)) < MinTitleLength {
		return false, ReasonTitleShort
	}

	if _, exempt := abstractLengthExempt[c.Source]; !exempt {
		if len(strings.TrimSpace(c.Abstract)) < MinAbstractLength {
			return false, ReasonAbstractShort
		}
	}

	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return false, ReasonInvalidURL
	}

	if _, ok := domain.ValidSources[c.Source]; !ok {
		return false, ReasonInvalidSource
	}

	// Curated feeds skip the keyword heuristics: anything HELM, TechEmpower
	// or DB-Engines emit already went through their own scenario filters.
	if _, trusted := trustedSources[c.Source]; trusted {
		return true, ReasonPass
	}

	text := strings.ToLower(c.Title + " " + c.Abstract)

	if !e.passesKeywordRules(text) {
		return false, ReasonKeywordRule
	}

	if c.Source != domain.SourceGitHub && !e.hasBenchmarkCharacteristics(text) {
		return false, ReasonNoBenchmarkFeature
	}

	if c.Source == domain.SourceGitHub {
		if !e.isQualityGitHubRepo(c) {
			return false, ReasonGitHubQuality
		}
		if e.looksLikeToolRepo(c, text) {
			return false, ReasonToolRepo
		}
	}

	if c.Source == domain.SourceArxiv {
		if e.looksLikeAlgoPaper(text) {
			return false, ReasonAlgoPaper
		}
		if e.looksLikeTechnicalReport(c.Title) {
			return false, ReasonTechReport
		}
		if e.looksLikeNonMgxApplication(text) {
			return false, ReasonNonMgxApp
		}
	}

	return true, ReasonPass
}

// FilterBatch applies Check to every candidate, keeping passers and logging
// reason/source stats.
func (e *Engine) FilterBatch(candidates []domain.RawCandidate) ([]domain.RawCandidate, Stats) {
	stats := Stats{
		Input:   len(candidates),
		Reasons: make(map[string]int),
		Sources: make(map[string][2]int),
	}
	if len(candidates) == 0 {
		return nil, stats
	}

	var kept []domain.RawCandidate
	for _, c := range candidates {
		counts := stats.Sources[c.Source]
		counts[0]++

		passed, reason := e.Check(c)
		stats.Reasons[reason]++
		if passed {
			kept = append(kept, c)
			counts[1]++
		}
		stats.Sources[c.Source] = counts
	}
	stats.Output = len(kept)

	dropRate := 100 * (1 - float64(stats.Output)/float64(stats.Input))
	e.log.WithStage("prefilter").Info(
		"prefilter done: input=%d output=%d drop_rate=%.1f%% reasons=%s",
		stats.Input, stats.Output, dropRate, formatReasons(stats.Reasons),
	)
	for _, source := range sortedKeys(stats.Sources) {
		counts := stats.Sources[source]
		e.log.WithStage("prefilter").WithSource(source).Info(
			"prefilter source stats: %d/%d kept", counts[1], counts[0],
		)
	}

	return kept, stats
}

func (e *Engine) passesKeywordRules(text string) bool {
	if containsAny(text, excludedKeywords) {
		return false
	}
	return containsAny(text, requiredKeywords)
}

func (e *Engine) hasBenchmarkCharacteristics(text string) bool {
	if containsAny(text, characteristicExcludePatterns) {
		// Exclusion patterns need a strong benchmark signal to survive.
		if !containsAny(text, strongBenchmarkSignals) {
			return false
		}
	}
	return containsAny(text, benchmarkPositiveSignals)
}

// isQualityGitHubRepo enforces dynamic star floors by repo age plus README
// and freshness requirements. Young repos get a lower bar so brand-new
// benchmarks are not starved out by the fixed floor.
func (e *Engine) isQualityGitHubRepo(c domain.RawCandidate) bool {
	if c.GitHubStars < e.starThreshold(c) {
		return false
	}

	if c.PublishDate == nil {
		return false
	}
	if e.now().Sub(*c.PublishDate) > RecentDays*24*time.Hour {
		return false
	}

	readme := strings.ToLower(c.Abstract)
	if len(c.Abstract) < MinReadmeLength {
		return false
	}

	titleLower := strings.ToLower(c.Title)
	if strings.Contains(titleLower, "awesome-") || strings.Contains(titleLower, "awesome ") {
		return false
	}
	if containsAny(readme, curatedListPatterns) {
		return false
	}

	return containsAny(readme, githubBenchmarkFeatures)
}

// starThreshold returns the minimum star count for a repo of the given age.
func (e *Engine) starThreshold(c domain.RawCandidate) int {
	created := repoCreatedAt(c)
	if created == nil {
		return 50
	}
	age := e.now().Sub(*created)
	switch {
	case age <= 7*24*time.Hour:
		return 5
	case age <= 30*24*time.Hour:
		return 15
	case age <= 90*24*time.Hour:
		return 30
	default:
		return 50
	}
}

func repoCreatedAt(c domain.RawCandidate) *time.Time {
	raw, ok := c.RawMetadata["created_at"]
	if !ok || raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

func (e *Engine) looksLikeToolRepo(c domain.RawCandidate, text string) bool {
	if containsAny(text, strongToolOverrideSignals) {
		return false
	}

	if hasToolSuffix(c.Title) {
		return true
	}
	if containsAny(text, toolDeclarationPhrases) {
		return true
	}
	if containsAny(text, toolLikeKeywords) && !containsAny(text, benchmarkDatasetKeywords) {
		return true
	}
	return false
}

func (e *Engine) looksLikeAlgoPaper(text string) bool {
	return containsAny(text, algoMethodPhrases) && !containsAny(text, benchmarkDatasetKeywords)
}

func (e *Engine) looksLikeTechnicalReport(title string) bool {
	titleLower := strings.ToLower(title)
	if containsAny(titleLower, benchmarkTitleSignals) {
		return false
	}
	if containsAny(titleLower, technicalReportPatterns) {
		return true
	}
	return containsAny(titleLower, modelReleaseKeywords) &&
		strings.Contains(titleLower, "technical report")
}

func (e *Engine) looksLikeNonMgxApplication(text string) bool {
	if !containsAny(text, nonMgxApplicationKeywords) {
		return false
	}
	return !containsAny(text, mgxCoreKeywords)
}

func hasToolSuffix(title string) bool {
	normalized := strings.ToLower(title)
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.ReplaceAll(normalized, "_", "-")
	for _, suffix := range toolTitleSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func formatReasons(reasons map[string]int) string {
	type pair struct {
		reason string
		count  int
	}
	var pairs []pair
	for reason, count := range reasons {
		if reason == ReasonPass || count == 0 {
			continue
		}
		pairs = append(pairs, pair{reason, count})
	}
	if len(pairs) == 0 {
		return "none"
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].reason < pairs[j].reason
	})

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.reason + ":" + strconv.Itoa(p.count)
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string][2]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
