// Package scorer assigns dimension scores to candidates with an LLM, falling
// back to heuristic rules when the model is unavailable.
package scorer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"

	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/core/port/out"
	"github.com/benchscope/benchscope/pkg/cache"
	"github.com/benchscope/benchscope/pkg/logger"
	"github.com/benchscope/benchscope/pkg/metrics"
	"github.com/benchscope/benchscope/pkg/urlutil"
)

const scoreCachePrefix = cache.KeyPrefix + "score:"

// maxRepairs bounds re-prompts for under-length reasoning.
const maxRepairs = 2

// ChatCompleter is the slice of the OpenAI client the scorer needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config tunes the scorer.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float32
	Concurrency int
	CacheTTL    time.Duration
}

// Scorer scores candidates via chat completions with a Redis result cache.
type Scorer struct {
	client  ChatCompleter
	cache   *cache.RedisCache
	cfg     Config
	log     *logger.Logger
	latency *metrics.LatencyTracker
}

// New creates a scorer. cache may be nil to disable result caching.
func New(client ChatCompleter, scoreCache *cache.RedisCache, cfg Config, log *logger.Logger) *Scorer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 50
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 7 * 24 * time.Hour
	}
	if log == nil {
		log = logger.Default()
	}
	return &Scorer{
		client:  client,
		cache:   scoreCache,
		cfg:     cfg,
		log:     log,
		latency: metrics.NewLatencyTracker(1000),
	}
}

var _ out.Scorer = (*Scorer)(nil)

// scoreResponse is the JSON contract requested from the model.
type scoreResponse struct {
	ActivityScore        float64 `json:"activity_score"`
	ReproducibilityScore float64 `json:"reproducibility_score"`
	LicenseScore         float64 `json:"license_score"`
	NoveltyScore         float64 `json:"novelty_score"`
	RelevanceScore       float64 `json:"relevance_score"`

	ActivityReasoning        string `json:"activity_reasoning"`
	ReproducibilityReasoning string `json:"reproducibility_reasoning"`
	LicenseReasoning         string `json:"license_reasoning"`
	NoveltyReasoning         string `json:"novelty_reasoning"`
	RelevanceReasoning       string `json:"relevance_reasoning"`

	BackendMGXRelevance         float64 `json:"backend_mgx_relevance"`
	BackendMGXReasoning         string  `json:"backend_mgx_reasoning"`
	BackendEngineeringValue     float64 `json:"backend_engineering_value"`
	BackendEngineeringReasoning string  `json:"backend_engineering_reasoning"`

	ScoreReasoning string `json:"score_reasoning"`
	ToolReasoning  string `json:"tool_reasoning"`

	TaskDomain             string `json:"task_domain"`
	Metrics                string `json:"metrics"`
	Baselines              string `json:"baselines"`
	Institution            string `json:"institution"`
	DatasetSize            string `json:"dataset_size"`
	DatasetSizeDescription string `json:"dataset_size_description"`
	License                string `json:"license"`

	IsNotBenchmark       bool   `json:"is_not_benchmark"`
	NonBenchmarkCategory string `json:"non_benchmark_category"`
}

// ScoreBatch scores all candidates concurrently, preserving input order.
// Individual failures degrade to rule-based scores instead of failing the
// batch.
func (s *Scorer) ScoreBatch(ctx context.Context, candidates []domain.RawCandidate) []domain.ScoredCandidate {
	result := make([]domain.ScoredCandidate, len(candidates))

	sem := semaphore.NewWeighted(int64(s.cfg.Concurrency))
	var wg sync.WaitGroup
	for i := range candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context gone: fill the rest with fallback scores.
			for j := i; j < len(candidates); j++ {
				result[j] = s.fallbackScore(candidates[j])
			}
			break
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer sem.Release(1)
			scored, err := s.Score(ctx, candidates[idx])
			if err != nil {
				s.log.WithStage("score").WithError(err).Warn(
					"llm scoring failed, using rule fallback: %s", candidates[idx].Title)
				scored = s.fallbackScore(candidates[idx])
			}
			if scored.TaskDomain == "Backend" {
				s.applyBackendScore(&scored)
			}
			result[idx] = scored
		}(i)
	}
	wg.Wait()

	fallbacks := 0
	for _, c := range result {
		if c.Fallback {
			fallbacks++
		}
	}
	s.log.WithStage("score").Info("scoring done: %d candidates, %d rule fallbacks",
		len(result), fallbacks)
	if stats := s.latency.Stats(); stats.Count > 0 {
		s.log.WithStage("score").Info("llm latency: avg=%s p50=%s p95=%s",
			stats.Avg.Round(time.Millisecond), stats.P50.Round(time.Millisecond), stats.P95.Round(time.Millisecond))
	}
	return result
}

// Score scores one candidate, serving repeats from the fingerprint cache.
func (s *Scorer) Score(ctx context.Context, c domain.RawCandidate) (domain.ScoredCandidate, error) {
	key := scoreCachePrefix + fingerprint(c)

	if s.cache != nil {
		var cached domain.ScoredCandidate
		if found, err := s.cache.GetJSON(ctx, key, &cached); err == nil && found {
			// The candidate payload may have been enriched since caching, so
			// keep the fresh raw fields and reuse only the scores.
			cached.RawCandidate = c
			return cached, nil
		}
	}

	scored, err := s.scoreWithLLM(ctx, c)
	if err != nil {
		return domain.ScoredCandidate{}, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, scored, s.cfg.CacheTTL); err != nil {
			s.log.WithStage("score").WithError(err).Debug("score cache write failed")
		}
	}
	return scored, nil
}

func (s *Scorer) scoreWithLLM(ctx context.Context, c domain.RawCandidate) (domain.ScoredCandidate, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(c)},
	}

	var parsed scoreResponse
	for attempt := 0; ; attempt++ {
		started := time.Now()
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       s.cfg.Model,
			Messages:    messages,
			MaxTokens:   s.cfg.MaxTokens,
			Temperature: s.cfg.Temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		s.latency.Record(time.Since(started))
		if err != nil {
			return domain.ScoredCandidate{}, fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return domain.ScoredCandidate{}, fmt.Errorf("chat completion returned no choices")
		}

		content := stripMarkdownFences(resp.Choices[0].Message.Content)
		if err := json.Unmarshal([]byte(content), &parsed); err != nil {
			return domain.ScoredCandidate{}, fmt.Errorf("parse score response: %w", err)
		}

		problems := reasoningProblems(parsed)
		if len(problems) == 0 {
			break
		}
		if attempt >= maxRepairs {
			// Repair budget spent: this is a validation failure, never a
			// silently accepted under-length result.
			return domain.ScoredCandidate{}, fmt.Errorf(
				"reasoning below minimum after %d repairs: %s", maxRepairs, strings.Join(problems, "; "))
		}

		// Feed the short answer back and ask for expanded reasoning only.
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleUser,
				Content: "Your reasoning fields are too short: " + strings.Join(problems, "; ") +
					". Return the same JSON object with expanded reasoning. Keep all scores unchanged.",
			},
		)
	}

	return s.toScored(c, parsed), nil
}

// reasoningProblems lists length-floor violations in the parsed response.
func reasoningProblems(r scoreResponse) []string {
	var problems []string
	dims := []struct {
		field string
		text  string
	}{
		{"activity_reasoning", r.ActivityReasoning},
		{"reproducibility_reasoning", r.ReproducibilityReasoning},
		{"license_reasoning", r.LicenseReasoning},
		{"novelty_reasoning", r.NoveltyReasoning},
		{"relevance_reasoning", r.RelevanceReasoning},
	}
	for _, d := range dims {
		if len(d.text) < domain.ReasoningMinChars {
			problems = append(problems, fmt.Sprintf("%s needs at least %d characters", d.field, domain.ReasoningMinChars))
		}
	}
	if r.TaskDomain == "Backend" {
		if len(r.BackendMGXReasoning) < domain.BackendReasoningMinChars {
			problems = append(problems, fmt.Sprintf("backend_mgx_reasoning needs at least %d characters", domain.BackendReasoningMinChars))
		}
		if len(r.BackendEngineeringReasoning) < domain.BackendReasoningMinChars {
			problems = append(problems, fmt.Sprintf("backend_engineering_reasoning needs at least %d characters", domain.BackendReasoningMinChars))
		}
	}
	if len(r.ScoreReasoning) < domain.OverallReasoningMinChars {
		problems = append(problems, fmt.Sprintf("score_reasoning needs at least %d characters", domain.OverallReasoningMinChars))
	}
	if len(r.ToolReasoning) < domain.ToolReasoningMinChars {
		problems = append(problems, fmt.Sprintf("tool_reasoning needs at least %d characters", domain.ToolReasoningMinChars))
	}
	return problems
}

func (s *Scorer) toScored(c domain.RawCandidate, r scoreResponse) domain.ScoredCandidate {
	taskDomain := r.TaskDomain
	if !domain.IsValidTaskDomain(taskDomain) {
		taskDomain = domain.DefaultTaskDomain
	}
	category := r.NonBenchmarkCategory
	if !domain.IsValidNonBenchmarkCategory(category) {
		category = ""
	}

	return domain.ScoredCandidate{
		RawCandidate: c,

		ActivityScore:        domain.ClampScore(r.ActivityScore),
		ReproducibilityScore: domain.ClampScore(r.ReproducibilityScore),
		LicenseScore:         domain.ClampScore(r.LicenseScore),
		NoveltyScore:         domain.ClampScore(r.NoveltyScore),
		RelevanceScore:       domain.ClampScore(r.RelevanceScore),

		ActivityReasoning:        r.ActivityReasoning,
		ReproducibilityReasoning: r.ReproducibilityReasoning,
		LicenseReasoning:         r.LicenseReasoning,
		NoveltyReasoning:         r.NoveltyReasoning,
		RelevanceReasoning:       r.RelevanceReasoning,

		BackendMGXRelevance:         domain.ClampScore(r.BackendMGXRelevance),
		BackendMGXReasoning:         r.BackendMGXReasoning,
		BackendEngineeringValue:     domain.ClampScore(r.BackendEngineeringValue),
		BackendEngineeringReasoning: r.BackendEngineeringReasoning,

		ScoreReasoning: r.ScoreReasoning,
		ToolReasoning:  r.ToolReasoning,

		TaskDomain:             taskDomain,
		Metrics:                firstNonEmpty(r.Metrics, c.RawMetrics),
		Baselines:              firstNonEmpty(r.Baselines, c.RawBaselines),
		Institution:            firstNonEmpty(r.Institution, c.RawInstitutions),
		DatasetSize:            firstNonEmpty(r.DatasetSize, c.RawDatasetSize),
		DatasetSizeDescription: r.DatasetSizeDescription,
		License:                firstNonEmpty(r.License, c.RawMetadata["license"]),

		IsNotBenchmark:       r.IsNotBenchmark,
		NonBenchmarkCategory: category,
	}
}

// fingerprint identifies a candidate for score caching: same title and
// canonical URL means same score.
func fingerprint(c domain.RawCandidate) string {
	sum := md5.Sum([]byte(c.Title + ":" + urlutil.Canonicalize(c.URL)))
	return hex.EncodeToString(sum[:])
}

// stripMarkdownFences removes a ```json ... ``` wrapper some models insist on
// even in JSON mode.
func stripMarkdownFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
