package scorer

import (
	"math"
	"strconv"
	"strings"

	"github.com/benchscope/benchscope/core/domain"
)

// Backend specialty weights. Engineering value and performance coverage
// dominate because they decide whether a backend benchmark is worth running.
const (
	backendWeightEngineering     = 0.30
	backendWeightPerformance     = 0.25
	backendWeightReproducibility = 0.20
	backendWeightAdoption        = 0.15
	backendWeightRelevance       = 0.10
)

var backendKeywords = []string{
	"backend", "api", "database", "microservice", "microservices", "rest",
	"graphql", "latency", "throughput", "qps", "rps", "scalability",
	"distributed", "server", "system design",
}

// performanceDimensions maps a coverage dimension to the terms that signal it.
var performanceDimensions = map[string][]string{
	"latency":     {"latency", "p99", "p95", "response time"},
	"throughput":  {"throughput", "qps", "rps", "requests per second"},
	"concurrency": {"concurrency", "parallel", "async", "goroutine"},
	"memory":      {"memory", "heap", "gc", "allocation"},
	"database":    {"sql", "query", "database", "transaction", "orm"},
}

var backendMGXKeywords = []string{"ai", "code generation", "agent", "automation", "tool"}

// applyBackendScore layers the heuristic backend specialty total onto a
// Backend-domain candidate. The weighted heuristic becomes the custom total,
// and the two specialty dimensions are filled when the LLM left them empty.
func (s *Scorer) applyBackendScore(c *domain.ScoredCandidate) {
	engineering := backendEngineeringValue(c)
	performance := backendPerformanceCoverage(c)
	repro := backendReproducibility(c)
	adoption := backendIndustryAdoption(c)
	relevance := backendRelevance(c)

	total := engineering*backendWeightEngineering +
		performance*backendWeightPerformance +
		repro*backendWeightReproducibility +
		adoption*backendWeightAdoption +
		relevance*backendWeightRelevance
	c.CustomTotalScore = math.Round(total*100) / 100

	if c.BackendEngineeringValue == 0 {
		c.BackendEngineeringValue = engineering
	}
	if c.BackendMGXRelevance == 0 {
		c.BackendMGXRelevance = relevance
	}

	s.log.WithStage("score").Debug("backend specialty total %.2f for %s",
		c.CustomTotalScore, c.Title)
}

func backendEngineeringValue(c *domain.ScoredCandidate) float64 {
	score := 5.0
	if c.Source == domain.SourceTechEmpower || c.Source == domain.SourceDBEngines {
		score = 7.0
	}
	switch {
	case c.GitHubStars >= 500:
		score += 1.0
	case c.GitHubStars >= 100:
		score += 0.5
	}

	text := strings.ToLower(c.Title + " " + c.Abstract)
	for _, kw := range backendKeywords {
		if strings.Contains(text, kw) {
			score += 0.4
		}
	}
	return domain.ClampScore(score)
}

func backendPerformanceCoverage(c *domain.ScoredCandidate) float64 {
	text := strings.ToLower(c.Title + " " + c.Abstract + " " + c.RawMetrics)
	covered := 0.0
	for _, terms := range performanceDimensions {
		for _, term := range terms {
			if strings.Contains(text, term) {
				covered += 2.0
				break
			}
		}
	}
	return domain.ClampScore(covered)
}

func backendReproducibility(c *domain.ScoredCandidate) float64 {
	score := 3.0
	if c.GitHubURL != "" {
		score += 3.0
	}
	if c.DatasetURL != "" {
		score += 2.0
	}
	license := strings.ToLower(c.License)
	switch {
	case strings.Contains(license, "mit"),
		strings.Contains(license, "apache"),
		strings.Contains(license, "bsd"):
		score += 1.5
	case license != "":
		score += 0.5
	}
	if len(c.Abstract) > 800 {
		score += 0.5
	}
	return domain.ClampScore(score)
}

func backendIndustryAdoption(c *domain.ScoredCandidate) float64 {
	switch c.Source {
	case domain.SourceTechEmpower:
		return 9.0
	case domain.SourceDBEngines:
		return 7.5
	}
	switch {
	case c.GitHubStars >= 5000:
		return 10.0
	case c.GitHubStars >= 1000:
		return 8.0
	case c.GitHubStars >= 500:
		return 6.5
	case c.GitHubStars >= 100:
		return 5.0
	}
	if ranking, err := strconv.ParseFloat(c.RawMetadata["score"], 64); err == nil && ranking > 20 {
		return 6.0
	}
	return 4.0
}

func backendRelevance(c *domain.ScoredCandidate) float64 {
	score := 6.0
	text := strings.ToLower(c.Title + " " + c.Abstract)
	for _, kw := range backendMGXKeywords {
		if strings.Contains(text, kw) {
			score += 1.0
		}
	}
	return domain.ClampScore(score)
}
