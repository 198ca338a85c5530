// Package bootstrap assembles the application dependency graph from config.
package bootstrap

import (
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/benchscope/benchscope/adapter/out/collector"
	"github.com/benchscope/benchscope/adapter/out/grobid"
	"github.com/benchscope/benchscope/adapter/out/notify"
	"github.com/benchscope/benchscope/adapter/out/persistence"
	"github.com/benchscope/benchscope/config"
	"github.com/benchscope/benchscope/core/port/in"
	"github.com/benchscope/benchscope/core/port/out"
	"github.com/benchscope/benchscope/core/service/enhancer"
	"github.com/benchscope/benchscope/core/service/pipeline"
	"github.com/benchscope/benchscope/core/service/prefilter"
	"github.com/benchscope/benchscope/core/service/scorer"
	"github.com/benchscope/benchscope/infra/database"
	"github.com/benchscope/benchscope/pkg/cache"
	"github.com/benchscope/benchscope/pkg/httputil"
	"github.com/benchscope/benchscope/pkg/logger"
	"github.com/benchscope/benchscope/pkg/metrics"
)

// Dependencies holds everything the daily run needs.
type Dependencies struct {
	Config *config.Config
	Redis  *redis.Client

	Collectors []out.Collector

	Prefilter *prefilter.Engine
	Enhancer  *enhancer.Enhancer
	Scorer    *scorer.Scorer

	Store    out.CandidateStore
	Fallback out.FallbackStore
	History  out.NotificationHistory
	Notifier out.Notifier

	Pools    *metrics.PoolMonitor
	Pipeline in.PipelineRunner
}

// NewDependencies builds the full graph. Redis is optional: without it the
// README and score caches are disabled but the run still works.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg, Pools: metrics.NewPoolMonitor()}
	var cleanups []func()
	log := logger.Default()

	// Redis (caches)
	var readmeCache, scoreCache *cache.RedisCache
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, running without caches")
	} else {
		deps.Redis = redisClient
		cleanups = append(cleanups, func() { redisClient.Close() })
		readmeCache = cache.NewRedisCache(redisClient)
		scoreCache = readmeCache
		log.Info("redis connected, caches enabled")
	}

	// Collectors. Tokens come from the environment, tuning from sources.yaml.
	sources := *cfg.Sources
	if cfg.GitHubToken != "" {
		sources.GitHub.Token = cfg.GitHubToken
	}
	if cfg.HuggingFaceToken != "" {
		sources.HuggingFace.Token = cfg.HuggingFaceToken
	}
	if cfg.SemanticScholarAPIKey != "" {
		sources.SemanticScholar.APIKey = cfg.SemanticScholarAPIKey
	}

	defaultClient := httputil.NewOptimizedClient(nil)
	deps.Collectors = []out.Collector{
		collector.NewArxivCollector(sources.Arxiv, httputil.NewOptimizedClient(httputil.ArxivClientConfig()), log),
		collector.NewGitHubCollector(sources.GitHub, httputil.NewOptimizedClient(httputil.GitHubClientConfig()), readmeCache, log),
		collector.NewHuggingFaceCollector(sources.HuggingFace, defaultClient, log),
		collector.NewHelmCollector(sources.Helm, defaultClient, log),
		collector.NewTechEmpowerCollector(sources.TechEmpower, defaultClient, log),
		collector.NewDBEnginesCollector(sources.DBEngines, defaultClient, log),
		collector.NewSemanticScholarCollector(sources.SemanticScholar, defaultClient, log),
	}

	// Prefilter
	deps.Prefilter = prefilter.New(log)

	// PDF enhancement (GROBID)
	grobidClient := grobid.NewClient(cfg.GrobidURL, httputil.NewOptimizedClient(httputil.GrobidClientConfig()), log)
	deps.Enhancer = enhancer.New(grobidClient, httputil.NewOptimizedClient(httputil.ArxivClientConfig()), cfg.PDFCacheDir, cfg.PDFConcurrency, log)

	// LLM scorer
	llmConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		llmConfig.BaseURL = cfg.OpenAIBaseURL
	}
	deps.Scorer = scorer.New(openai.NewClientWithConfig(llmConfig), scoreCache, scorer.Config{
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: float32(cfg.LLMTemperature),
		Concurrency: cfg.ScoreConcurrency,
		CacheTTL:    cfg.ScoreCacheTTL,
	}, log)

	// Primary store (Feishu Bitable)
	bitableClient := persistence.NewBitableClient(cfg.FeishuAppID, cfg.FeishuAppSecret,
		httputil.NewOptimizedClient(httputil.FeishuClientConfig()), log)
	deps.Store = persistence.NewBitableStore(bitableClient, cfg.FeishuBitableAppToken, cfg.FeishuBitableTableID, log)

	// Cover images ride on the same Feishu app credentials.
	if cfg.FeishuAppID != "" && cfg.FeishuAppSecret != "" {
		deps.Enhancer.EnableCoverImages(bitableClient, readmeCache)
	}

	// Fallback store (SQLite)
	if err := database.EnsureDir(cfg.SQLitePath); err != nil {
		return nil, nil, err
	}
	fallbackStore, err := persistence.NewSQLiteFallbackStore(cfg.SQLitePath, log)
	if err != nil {
		return nil, nil, err
	}
	deps.Fallback = fallbackStore
	deps.Pools.Register("fallback", fallbackStore.DB())
	cleanups = append(cleanups, func() { fallbackStore.Close() })

	// Notification history (SQLite)
	if err := database.EnsureDir(cfg.HistoryDBPath); err != nil {
		return nil, nil, err
	}
	historyStore, err := persistence.NewSQLiteHistoryStore(cfg.HistoryDBPath, log)
	if err != nil {
		return nil, nil, err
	}
	deps.History = historyStore
	deps.Pools.Register("history", historyStore.DB())
	cleanups = append(cleanups, func() { historyStore.Close() })

	// Webhook notifier
	deps.Notifier = notify.NewFeishuNotifier(cfg.FeishuWebhookURL, cfg.FeishuWebhookSecret,
		deps.History, cfg.NotifyTopK, cfg.NotifyMaxRepeats,
		httputil.NewOptimizedClient(httputil.FeishuClientConfig()), log)

	deps.Pipeline = pipeline.New(pipeline.Config{
		Collectors: deps.Collectors,
		Prefilter:  deps.Prefilter,
		Enhancer:   deps.Enhancer,
		Scorer:     deps.Scorer,
		Store:      deps.Store,
		Fallback:   deps.Fallback,
		History:    deps.History,
		Notifier:   deps.Notifier,
		Retention:  cfg.FallbackRetention,
		Log:        log,
	})

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	return deps, cleanup, nil
}
