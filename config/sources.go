package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Sources holds per-source collector tuning loaded from sources.yaml.
// A missing file yields the built-in defaults so the pipeline can run from
// environment variables alone.
type Sources struct {
	Arxiv           ArxivSource           `yaml:"arxiv"`
	GitHub          GitHubSource          `yaml:"github"`
	HuggingFace     HuggingFaceSource     `yaml:"huggingface"`
	Helm            HelmSource            `yaml:"helm"`
	TechEmpower     TechEmpowerSource     `yaml:"techempower"`
	DBEngines       DBEnginesSource       `yaml:"dbengines"`
	SemanticScholar SemanticScholarSource `yaml:"semantic_scholar"`
}

type ArxivSource struct {
	Enabled        bool     `yaml:"enabled"`
	BaseURL        string   `yaml:"base_url"`
	Keywords       []string `yaml:"keywords"`
	Categories     []string `yaml:"categories"`
	MaxResults     int      `yaml:"max_results"`
	LookbackHours  int      `yaml:"lookback_hours"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	MaxRetries     int      `yaml:"max_retries"`
}

type GitHubSource struct {
	Enabled        bool     `yaml:"enabled"`
	APIURL         string   `yaml:"api_url"`
	Token          string   `yaml:"token"`
	Topics         []string `yaml:"topics"`
	Languages      []string `yaml:"languages"`
	MinStars       int      `yaml:"min_stars"`
	LookbackDays   int      `yaml:"lookback_days"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	MaxRetries     int      `yaml:"max_retries"`
}

type HuggingFaceSource struct {
	Enabled        bool     `yaml:"enabled"`
	APIURL         string   `yaml:"api_url"`
	Token          string   `yaml:"token"`
	Keywords       []string `yaml:"keywords"`
	MinDownloads   int      `yaml:"min_downloads"`
	LookbackDays   int      `yaml:"lookback_days"`
	Limit          int      `yaml:"limit"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	MaxRetries     int      `yaml:"max_retries"`
}

type HelmSource struct {
	Enabled           bool     `yaml:"enabled"`
	BaseURL           string   `yaml:"base_url"`
	StorageBase       string   `yaml:"storage_base"`
	DefaultRelease    string   `yaml:"default_release"`
	AllowedScenarios  []string `yaml:"allowed_scenarios"`
	ExcludedScenarios []string `yaml:"excluded_scenarios"`
	TimeoutSeconds    int      `yaml:"timeout_seconds"`
}

type TechEmpowerSource struct {
	Enabled           bool    `yaml:"enabled"`
	BaseURL           string  `yaml:"base_url"`
	MinCompositeScore float64 `yaml:"min_composite_score"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
}

type DBEnginesSource struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	MaxResults     int    `yaml:"max_results"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type SemanticScholarSource struct {
	Enabled        bool     `yaml:"enabled"`
	APIURL         string   `yaml:"api_url"`
	APIKey         string   `yaml:"api_key"`
	Venues         []string `yaml:"venues"`
	Keywords       []string `yaml:"keywords"`
	LookbackYears  int      `yaml:"lookback_years"`
	MaxResults     int      `yaml:"max_results"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// DefaultSources returns the built-in source tuning.
func DefaultSources() *Sources {
	return &Sources{
		Arxiv: ArxivSource{
			Enabled: true,
			BaseURL: "https://export.arxiv.org/api/query",
			Keywords: []string{
				"code generation benchmark",
				"code evaluation",
				"programming benchmark",
				"software engineering benchmark",
				"program synthesis evaluation",
				"code completion benchmark",
				"web agent benchmark",
				"browser automation benchmark",
				"web navigation evaluation",
				"gui automation benchmark",
				"multi-agent benchmark",
				"agent collaboration evaluation",
				"tool use benchmark",
				"api usage benchmark",
				"backend development benchmark",
				"api design benchmark",
				"database query benchmark",
				"microservices benchmark",
				"distributed systems benchmark",
				"system design evaluation",
				"server performance benchmark",
				"web framework comparison",
			},
			Categories:     []string{"cs.SE", "cs.AI", "cs.CL", "cs.DC", "cs.DB", "cs.NI"},
			MaxResults:     50,
			LookbackHours:  168,
			TimeoutSeconds: 10,
			MaxRetries:     3,
		},
		GitHub: GitHubSource{
			Enabled: true,
			APIURL:  "https://api.github.com",
			Topics: []string{
				"code-generation",
				"code-benchmark",
				"program-synthesis",
				"software-testing",
				"web-automation",
				"browser-automation",
				"web-agent",
				"gui-automation",
				"agent-benchmark",
				"multi-agent",
				"llm-agent",
				"backend-benchmark",
				"api-benchmark",
				"database-benchmark",
				"distributed-systems",
				"performance-testing",
				"load-testing",
				"web-framework-benchmark",
				"database-performance",
			},
			Languages:      []string{"Python", "JavaScript", "TypeScript", "Go", "Java", "Rust"},
			MinStars:       50,
			LookbackDays:   30,
			TimeoutSeconds: 10,
			MaxRetries:     3,
		},
		HuggingFace: HuggingFaceSource{
			Enabled: true,
			APIURL:  "https://huggingface.co/api/datasets",
			Keywords: []string{
				"code", "programming", "software", "benchmark", "backend",
				"api", "database", "sql", "microservices", "system-design",
			},
			MinDownloads:   100,
			LookbackDays:   14,
			Limit:          50,
			TimeoutSeconds: 15,
			MaxRetries:     3,
		},
		Helm: HelmSource{
			Enabled:        true,
			BaseURL:        "https://crfm.stanford.edu/helm/classic/latest/",
			StorageBase:    "https://storage.googleapis.com/crfm-helm-public/benchmark_output",
			DefaultRelease: "v0.4.0",
			AllowedScenarios: []string{
				"code", "coding", "program", "reasoning", "math", "logic",
				"tool", "api", "agent", "web", "browser", "gui",
			},
			ExcludedScenarios: []string{
				"qa", "question", "answer", "reading", "comprehension",
				"dialogue", "conversation", "summarization", "summary",
				"translation", "sentiment", "classification",
				"image", "vision", "video",
			},
			TimeoutSeconds: 15,
		},
		TechEmpower: TechEmpowerSource{
			Enabled:           true,
			BaseURL:           "https://tfb-status.techempower.com",
			MinCompositeScore: 50.0,
			TimeoutSeconds:    15,
		},
		DBEngines: DBEnginesSource{
			Enabled:        true,
			BaseURL:        "https://db-engines.com/en",
			MaxResults:     50,
			TimeoutSeconds: 15,
		},
		SemanticScholar: SemanticScholarSource{
			Enabled: true,
			APIURL:  "https://api.semanticscholar.org/graph/v1/paper/search",
			Venues: []string{
				"NeurIPS", "ICLR", "ICML", "ACL", "EMNLP", "CVPR", "ICCV", "KDD", "WWW",
			},
			Keywords:       []string{"benchmark", "evaluation", "dataset", "leaderboard", "test set"},
			LookbackYears:  2,
			MaxResults:     100,
			TimeoutSeconds: 15,
		},
	}
}

var envPlaceholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadSources reads sources.yaml from path, overlaying the defaults.
// ${VAR} placeholders in the file resolve against the environment so secrets
// never live in the YAML itself.
func LoadSources(path string) (*Sources, error) {
	sources := DefaultSources()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return sources, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sources config: %w", err)
	}

	resolved := envPlaceholderRe.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPlaceholderRe.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})

	if err := yaml.Unmarshal(resolved, sources); err != nil {
		return nil, fmt.Errorf("parse sources config: %w", err)
	}
	return sources, nil
}
