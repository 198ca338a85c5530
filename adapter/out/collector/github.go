package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/benchscope/benchscope/config"
	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/pkg/cache"
	"github.com/benchscope/benchscope/pkg/logger"
)

const (
	readmeMaxChars     = 10000
	readmeCacheTTL     = 24 * time.Hour
	readmeCachePrefix  = cache.KeyPrefix + "readme:"
	githubMaxStaleDays = 90
	githubTopicFanOut  = 5
)

// Extraction patterns applied to README text.
var (
	metricPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(pass@\d+)\b`),
		regexp.MustCompile(`(?i)\b(accuracy|precision|recall|f1[- ]score|bleu|rouge|exact match|success rate|win rate|resolve[d]? rate)\b`),
		regexp.MustCompile(`(?i)\b(latency|throughput|requests per second|qps|rps|p9[059] latency)\b`),
	}
	baselinePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(gpt-[45][\w.-]*)\b`),
		regexp.MustCompile(`(?i)\b(claude[\w.-]*)\b`),
		regexp.MustCompile(`(?i)\b(llama[\w.-]*|qwen[\w.-]*|deepseek[\w.-]*|gemini[\w.-]*|mistral[\w.-]*)\b`),
	}
	datasetSizePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b([\d,]+(?:\.\d+)?[km]?)\s*(?:tasks|problems|instances|examples|samples|test cases|questions)\b`),
	}
)

// taskTypeByTopic maps repo topics to coarse task types.
var taskTypeByTopic = map[string]string{
	"code-generation":         "Coding",
	"code-benchmark":          "Coding",
	"program-synthesis":       "Coding",
	"software-testing":        "Coding",
	"web-automation":          "WebDev",
	"browser-automation":      "WebDev",
	"web-agent":               "WebDev",
	"gui-automation":          "GUI",
	"agent-benchmark":         "ToolUse",
	"multi-agent":             "Collaboration",
	"llm-agent":               "ToolUse",
	"backend-benchmark":       "Backend",
	"api-benchmark":           "Backend",
	"database-benchmark":      "Backend",
	"distributed-systems":     "Backend",
	"performance-testing":     "Backend",
	"load-testing":            "Backend",
	"web-framework-benchmark": "Backend",
	"database-performance":    "Backend",
}

// GitHubCollector searches repositories per topic and enriches hits with
// README content.
type GitHubCollector struct {
	cfg    config.GitHubSource
	client *http.Client
	cache  *cache.RedisCache
	log    *logger.Logger
	now    func() time.Time
}

// NewGitHubCollector creates the GitHub collector. cache may be nil; README
// caching is then skipped.
func NewGitHubCollector(cfg config.GitHubSource, client *http.Client, readmeCache *cache.RedisCache, log *logger.Logger) *GitHubCollector {
	if log == nil {
		log = logger.Default()
	}
	return &GitHubCollector{cfg: cfg, client: client, cache: readmeCache, log: log, now: time.Now}
}

func (c *GitHubCollector) Name() string { return domain.SourceGitHub }

type githubSearchResponse struct {
	Items []githubRepo `json:"items"`
}

type githubRepo struct {
	FullName    string   `json:"full_name"`
	HTMLURL     string   `json:"html_url"`
	Description string   `json:"description"`
	Stars       int      `json:"stargazers_count"`
	Language    string   `json:"language"`
	Fork        bool     `json:"fork"`
	PushedAt    string   `json:"pushed_at"`
	CreatedAt   string   `json:"created_at"`
	Topics      []string `json:"topics"`
	Owner       struct {
		AvatarURL string `json:"avatar_url"`
	} `json:"owner"`
	License struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
}

// Collect fans out one search per configured topic, merges and dedups by
// repository, then applies quality filters and README enrichment.
func (c *GitHubCollector) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	if !c.cfg.Enabled {
		c.log.WithSource(c.Name()).Info("collector disabled, skipping")
		return nil, nil
	}

	var (
		mu    sync.Mutex
		seen  = make(map[string]struct{})
		repos []githubRepo
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(githubTopicFanOut)
	for _, topic := range c.cfg.Topics {
		topic := topic
		g.Go(func() error {
			found, err := c.searchTopic(gctx, topic)
			if err != nil {
				// One topic failing should not sink the whole source.
				c.log.WithSource(c.Name()).WithError(err).Warn("topic search failed: %s", topic)
				return nil
			}
			mu.Lock()
			for _, repo := range found {
				if _, dup := seen[repo.FullName]; dup {
					continue
				}
				seen[repo.FullName] = struct{}{}
				repos = append(repos, repo)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var candidates []domain.RawCandidate
	for _, repo := range repos {
		if !c.passesBasicFilters(repo) {
			continue
		}
		readme, err := c.fetchReadme(ctx, repo.FullName)
		if err != nil {
			c.log.WithSource(c.Name()).WithError(err).Debug("readme fetch failed: %s", repo.FullName)
			continue
		}
		if !c.readmeLooksLikeBenchmark(readme) {
			continue
		}
		candidates = append(candidates, c.toCandidate(repo, readme))
	}

	c.log.WithSource(c.Name()).Info(
		"github collect done: %d repos searched, %d candidates", len(repos), len(candidates))
	return candidates, nil
}

func (c *GitHubCollector) setHeaders(req *http.Request, accept string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}

func (c *GitHubCollector) searchTopic(ctx context.Context, topic string) ([]githubRepo, error) {
	since := c.now().AddDate(0, 0, -c.cfg.LookbackDays).Format("2006-01-02")
	query := fmt.Sprintf("%s benchmark in:name,description,readme pushed:>=%s", topic, since)

	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", "30")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.APIURL+"/search/repositories?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result githubSearchResponse
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	return result.Items, nil
}

// topicBlacklist rejects repository flavors that score well on stars but are
// never benchmarks: resource lists, course material and developer tooling.
var topicBlacklist = map[string]struct{}{
	"awesome":          {},
	"awesome-list":     {},
	"curated-list":     {},
	"resources":        {},
	"tutorial":         {},
	"course":           {},
	"learning":         {},
	"interview":        {},
	"roadmap":          {},
	"cheatsheet":       {},
	"boilerplate":      {},
	"template":         {},
	"sdk":              {},
	"api-wrapper":      {},
	"api-client":       {},
	"cli":              {},
	"chrome-extension": {},
	"vscode-extension": {},
}

// passesBasicFilters applies the metadata gate: no forks, no blacklisted
// topics, the star floor, a language match and a recent push.
func (c *GitHubCollector) passesBasicFilters(repo githubRepo) bool {
	if repo.Fork {
		return false
	}
	for _, topic := range repo.Topics {
		if _, banned := topicBlacklist[strings.ToLower(topic)]; banned {
			return false
		}
	}
	if repo.Stars < c.cfg.MinStars {
		return false
	}
	if len(c.cfg.Languages) > 0 && repo.Language != "" {
		match := false
		for _, lang := range c.cfg.Languages {
			if strings.EqualFold(lang, repo.Language) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	pushed, err := time.Parse(time.RFC3339, repo.PushedAt)
	if err != nil {
		return false
	}
	return c.now().Sub(pushed) <= githubMaxStaleDays*24*time.Hour
}

// fetchReadme returns the raw README capped to readmeMaxChars, served from
// Redis when possible.
func (c *GitHubCollector) fetchReadme(ctx context.Context, fullName string) (string, error) {
	cacheKey := readmeCachePrefix + fullName
	if c.cache != nil {
		if cached, ok, err := c.cache.Get(ctx, cacheKey); err == nil && ok {
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.APIURL+"/repos/"+fullName+"/readme", nil)
	if err != nil {
		return "", err
	}
	c.setHeaders(req, "application/vnd.github.raw")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusNotFound {
		readBody(resp)
		return "", nil
	}
	if err := checkStatus(resp); err != nil {
		return "", err
	}

	body, err := readBody(resp)
	if err != nil {
		return "", err
	}

	readme := string(body)
	if len(readme) > readmeMaxChars {
		readme = readme[:readmeMaxChars]
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, readme, readmeCacheTTL); err != nil {
			c.log.WithSource(c.Name()).WithError(err).Debug("readme cache write failed")
		}
	}
	return readme, nil
}

func (c *GitHubCollector) readmeLooksLikeBenchmark(readme string) bool {
	if readme == "" {
		return false
	}
	lowered := strings.ToLower(readme)

	excluded := []string{
		"awesome list", "curated list", "collection of", "resources list",
		"list of tools", "tutorial", "course", "guide for", "learning path",
		"sdk wrapper", "api wrapper",
	}
	for _, kw := range excluded {
		if strings.Contains(lowered, kw) {
			return false
		}
	}

	required := []string{
		"benchmark", "evaluation", "eval", "dataset", "leaderboard",
		"test set", "baseline", "metric",
	}
	for _, kw := range required {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func (c *GitHubCollector) toCandidate(repo githubRepo, readme string) domain.RawCandidate {
	pushed, _ := time.Parse(time.RFC3339, repo.PushedAt)

	abstract := readme
	if abstract == "" {
		abstract = repo.Description
	}

	metadata := map[string]string{
		"full_name":  repo.FullName,
		"language":   repo.Language,
		"topics":     strings.Join(repo.Topics, ","),
		"created_at": repo.CreatedAt,
	}
	if repo.License.SPDXID != "" && repo.License.SPDXID != "NOASSERTION" {
		metadata["license"] = repo.License.SPDXID
	}

	return domain.RawCandidate{
		Title:          repo.FullName,
		URL:            repo.HTMLURL,
		Source:         domain.SourceGitHub,
		Abstract:       abstract,
		PublishDate:    timePtr(pushed),
		GitHubStars:    repo.Stars,
		GitHubURL:      repo.HTMLURL,
		TaskType:       taskTypeFromTopics(repo.Topics),
		HeroImageURL:   repo.Owner.AvatarURL,
		RawMetadata:    metadata,
		RawMetrics:     extractMatches(readme, metricPatterns, 5),
		RawBaselines:   extractMatches(readme, baselinePatterns, 5),
		RawDatasetSize: extractMatches(readme, datasetSizePatterns, 1),
	}
}

func taskTypeFromTopics(topics []string) string {
	for _, topic := range topics {
		if taskType, ok := taskTypeByTopic[topic]; ok {
			return taskType
		}
	}
	return ""
}

// extractMatches collects unique pattern hits (case-folded) up to max.
func extractMatches(text string, patterns []*regexp.Regexp, max int) string {
	seen := make(map[string]struct{})
	var matches []string
	for _, pattern := range patterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			hit := strings.ToLower(strings.TrimSpace(m[1]))
			if hit == "" {
				continue
			}
			if _, dup := seen[hit]; dup {
				continue
			}
			seen[hit] = struct{}{}
			matches = append(matches, hit)
			if len(matches) >= max {
				sort.Strings(matches)
				return strings.Join(matches, ", ")
			}
		}
	}
	sort.Strings(matches)
	return strings.Join(matches, ", ")
}
