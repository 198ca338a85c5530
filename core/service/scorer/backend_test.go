package scorer

import (
	"context"
	"strings"
	"testing"

	"github.com/benchscope/benchscope/core/domain"
)

func backendCandidate() domain.ScoredCandidate {
	return domain.ScoredCandidate{
		RawCandidate: domain.RawCandidate{
			Title:       "FrameworkBench - Web API benchmark",
			URL:         "https://www.techempower.com/benchmarks/",
			Source:      domain.SourceTechEmpower,
			Abstract:    "Latency and throughput comparison of backend web frameworks, measuring qps under database query workloads.",
			GitHubURL:   "https://github.com/TechEmpower/FrameworkBenchmarks",
			GitHubStars: 7000,
		},
		TaskDomain: "Backend",
		License:    "BSD-3-Clause",
	}
}

func TestBackendSubScores(t *testing.T) {
	c := backendCandidate()

	t.Run("engineering value", func(t *testing.T) {
		// TechEmpower base 7.0, stars >= 500 adds 1.0, keyword hits add 0.4
		// each: latency, throughput, qps, database, backend, api.
		got := backendEngineeringValue(&c)
		if got != 10.0 {
			t.Errorf("engineering value = %v, want clamp to 10", got)
		}
	})

	t.Run("performance coverage", func(t *testing.T) {
		// Covers latency, throughput and database dimensions.
		if got := backendPerformanceCoverage(&c); got != 6.0 {
			t.Errorf("performance coverage = %v, want 6.0", got)
		}
	})

	t.Run("reproducibility", func(t *testing.T) {
		// 3.0 base, +3.0 repo link, +1.5 permissive license.
		if got := backendReproducibility(&c); got != 7.5 {
			t.Errorf("reproducibility = %v, want 7.5", got)
		}
	})

	t.Run("industry adoption by source", func(t *testing.T) {
		if got := backendIndustryAdoption(&c); got != 9.0 {
			t.Errorf("techempower adoption = %v, want 9.0", got)
		}
		db := c
		db.Source = domain.SourceDBEngines
		if got := backendIndustryAdoption(&db); got != 7.5 {
			t.Errorf("dbengines adoption = %v, want 7.5", got)
		}
	})

	t.Run("industry adoption by stars", func(t *testing.T) {
		gh := c
		gh.Source = domain.SourceGitHub
		tests := []struct {
			stars int
			want  float64
		}{
			{7000, 10.0},
			{1500, 8.0},
			{600, 6.5},
			{150, 5.0},
			{10, 4.0},
		}
		for _, tt := range tests {
			gh.GitHubStars = tt.stars
			if got := backendIndustryAdoption(&gh); got != tt.want {
				t.Errorf("adoption with %d stars = %v, want %v", tt.stars, got, tt.want)
			}
		}
	})

	t.Run("industry adoption by ranking score", func(t *testing.T) {
		db := domain.ScoredCandidate{RawCandidate: domain.RawCandidate{
			Source:      domain.SourceHELM,
			RawMetadata: map[string]string{"score": "45.2"},
		}}
		if got := backendIndustryAdoption(&db); got != 6.0 {
			t.Errorf("adoption with ranking score = %v, want 6.0", got)
		}
	})
}

func TestApplyBackendScoreSetsCustomTotal(t *testing.T) {
	s := New(&fakeChat{}, nil, testConfig(), testLogger())
	c := backendCandidate()

	s.applyBackendScore(&c)

	// 10*.30 + 6*.25 + 7.5*.20 + 9*.15 + 6*.10 = 7.95
	if c.CustomTotalScore != 7.95 {
		t.Errorf("CustomTotalScore = %v, want 7.95", c.CustomTotalScore)
	}
	if c.TotalScore() != 7.95 {
		t.Errorf("TotalScore = %v, want the custom total", c.TotalScore())
	}
	if c.BackendEngineeringValue != 10.0 {
		t.Errorf("BackendEngineeringValue = %v, want heuristic fill", c.BackendEngineeringValue)
	}
	if c.BackendMGXRelevance != 6.0 {
		t.Errorf("BackendMGXRelevance = %v, want heuristic fill", c.BackendMGXRelevance)
	}
}

func TestApplyBackendScoreKeepsLLMDimensions(t *testing.T) {
	s := New(&fakeChat{}, nil, testConfig(), testLogger())
	c := backendCandidate()
	c.BackendEngineeringValue = 8.5
	c.BackendMGXRelevance = 7.0

	s.applyBackendScore(&c)

	if c.BackendEngineeringValue != 8.5 || c.BackendMGXRelevance != 7.0 {
		t.Errorf("LLM backend dimensions overwritten: %v, %v",
			c.BackendEngineeringValue, c.BackendMGXRelevance)
	}
}

func TestScoreBatchAppliesBackendSpecialty(t *testing.T) {
	resp := strings.Replace(validResponse(), `"task_domain": "ToolUse"`, `"task_domain": "Backend"`, 1)
	resp = strings.Replace(resp,
		`"relevance_reasoning": "`+longReasoning("Direct agent-task coverage")+`"`,
		`"relevance_reasoning": "`+longReasoning("Direct agent-task coverage")+`",
		"backend_mgx_relevance": 7.0,
		"backend_mgx_reasoning": "`+strings.Repeat(longReasoning("MGX relevance"), 2)+`",
		"backend_engineering_value": 8.0,
		"backend_engineering_reasoning": "`+strings.Repeat(longReasoning("Engineering value"), 2)+`"`, 1)
	chat := &fakeChat{responses: []string{resp}}
	s := New(chat, nil, testConfig(), testLogger())

	c := backendCandidate().RawCandidate
	got := s.ScoreBatch(context.Background(), []domain.RawCandidate{c})
	if len(got) != 1 {
		t.Fatalf("scored = %d", len(got))
	}
	if got[0].CustomTotalScore == 0 {
		t.Error("expected backend specialty total for a Backend-domain candidate")
	}
	if got[0].BackendMGXRelevance != 7.0 || got[0].BackendEngineeringValue != 8.0 {
		t.Errorf("backend dimensions = %v, %v, want LLM values kept",
			got[0].BackendMGXRelevance, got[0].BackendEngineeringValue)
	}
}

func TestScoreBatchSkipsBackendSpecialtyForOtherDomains(t *testing.T) {
	chat := &fakeChat{responses: []string{validResponse()}}
	s := New(chat, nil, testConfig(), testLogger())

	got := s.ScoreBatch(context.Background(), []domain.RawCandidate{rawCandidate()})
	if got[0].CustomTotalScore != 0 {
		t.Errorf("CustomTotalScore = %v, want 0 for non-Backend domain", got[0].CustomTotalScore)
	}
}
