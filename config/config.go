package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Environment string

	// OpenAI
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int
	LLMMaxRetries  int

	// Scoring
	ScoreConcurrency int
	ScoreCacheTTL    time.Duration

	// Redis
	RedisURL string

	// Feishu
	FeishuAppID           string
	FeishuAppSecret       string
	FeishuBitableAppToken string
	FeishuBitableTableID  string
	FeishuWebhookURL      string
	FeishuWebhookSecret   string

	// Source tokens
	GitHubToken            string
	HuggingFaceToken       string
	SemanticScholarAPIKey  string

	// PDF enhancement
	GrobidURL      string
	PDFCacheDir    string
	PDFConcurrency int

	// Local storage
	SQLitePath        string
	HistoryDBPath     string
	FallbackRetention time.Duration

	// Notification
	NotifyTopK        int
	NotifyMaxRepeats  int

	// Logging
	LogLevel string
	LogDir   string

	// Sources (per-source tuning from sources.yaml)
	Sources *Sources
}

func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENV", "production"),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		LLMModel:       getEnv("OPENAI_MODEL", "gpt-4o"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2000),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 30),
		LLMMaxRetries:  getEnvInt("LLM_MAX_RETRIES", 3),

		// Scoring
		ScoreConcurrency: getEnvInt("SCORE_CONCURRENCY", 50),
		ScoreCacheTTL:    time.Duration(getEnvInt("SCORE_CACHE_TTL_DAYS", 7)) * 24 * time.Hour,

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Feishu
		FeishuAppID:           getEnv("FEISHU_APP_ID", ""),
		FeishuAppSecret:       getEnv("FEISHU_APP_SECRET", ""),
		FeishuBitableAppToken: getEnv("FEISHU_BITABLE_APP_TOKEN", ""),
		FeishuBitableTableID:  getEnv("FEISHU_BITABLE_TABLE_ID", ""),
		FeishuWebhookURL:      getEnv("FEISHU_WEBHOOK_URL", ""),
		FeishuWebhookSecret:   getEnv("FEISHU_WEBHOOK_SECRET", ""),

		// Source tokens
		GitHubToken:           getEnv("GITHUB_TOKEN", ""),
		HuggingFaceToken:      getEnv("HUGGINGFACE_TOKEN", ""),
		SemanticScholarAPIKey: getEnv("SEMANTIC_SCHOLAR_API_KEY", ""),

		// PDF enhancement
		GrobidURL:      getEnv("GROBID_URL", "http://localhost:8070"),
		PDFCacheDir:    getEnv("PDF_CACHE_DIR", "/tmp/arxiv_pdf_cache"),
		PDFConcurrency: getEnvInt("PDF_CONCURRENCY", 3),

		// Local storage
		SQLitePath:        getEnv("SQLITE_DB_PATH", "fallback.db"),
		HistoryDBPath:     getEnv("HISTORY_DB_PATH", "notification_history.db"),
		FallbackRetention: time.Duration(getEnvInt("FALLBACK_RETENTION_DAYS", 7)) * 24 * time.Hour,

		// Notification
		NotifyTopK:       getEnvInt("NOTIFY_TOP_K", 3),
		NotifyMaxRepeats: getEnvInt("NOTIFY_MAX_REPEATS", 3),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogDir:   getEnv("LOG_DIR", "logs"),
	}

	sources, err := LoadSources(getEnv("SOURCES_CONFIG_PATH", "config/sources.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.Sources = sources

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
