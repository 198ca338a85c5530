package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benchscope/benchscope/config"
	"github.com/benchscope/benchscope/pkg/logger"
)

const s2SearchPayload = `{"data": [
	{
		"paperId": "abc123",
		"title": "AgentBench: Evaluating LLMs as Agents",
		"abstract": "We present a benchmark for evaluating language model agents across environments.",
		"url": "https://www.semanticscholar.org/paper/abc123",
		"year": 2025,
		"publicationDate": "2025-10-02",
		"venue": "ICLR",
		"authors": [{"name": "A. Researcher"}, {"name": "B. Scholar"}],
		"externalIds": {"ArXiv": "2510.01234", "DOI": "10.1000/agentbench"}
	},
	{
		"paperId": "abc123",
		"title": "AgentBench: Evaluating LLMs as Agents",
		"url": "https://www.semanticscholar.org/paper/abc123",
		"year": 2025,
		"venue": "ICLR",
		"externalIds": {}
	},
	{
		"paperId": "",
		"title": "Broken record",
		"externalIds": {}
	}
]}`

func s2TestConfig(apiURL string) config.SemanticScholarSource {
	return config.SemanticScholarSource{
		Enabled:       true,
		APIURL:        apiURL,
		APIKey:        "s2-key",
		Venues:        []string{"ICLR"},
		Keywords:      []string{"benchmark", "evaluation"},
		LookbackYears: 2,
		MaxResults:    100,
	}
}

func TestSemanticScholarCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "s2-key" {
			t.Errorf("x-api-key = %q", got)
		}
		q := r.URL.Query().Get("query")
		if !strings.Contains(q, `venue:"ICLR"`) || !strings.Contains(q, "benchmark OR evaluation") {
			t.Errorf("query = %q", q)
		}
		if !strings.Contains(r.URL.Query().Get("fields"), "abstract") {
			t.Errorf("fields = %q", r.URL.Query().Get("fields"))
		}
		w.Write([]byte(s2SearchPayload))
	}))
	defer srv.Close()

	c := NewSemanticScholarCollector(s2TestConfig(srv.URL), srv.Client(),
		logger.New(logger.Config{Level: logger.LevelError, Service: "test"}))

	got, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1 (dedup by paper id, drop empty id)", len(got))
	}

	cand := got[0]
	if cand.Title != "AgentBench: Evaluating LLMs as Agents" {
		t.Errorf("Title = %q", cand.Title)
	}
	if len(cand.Authors) != 2 {
		t.Errorf("Authors = %v", cand.Authors)
	}
	if cand.PaperURL != "https://arxiv.org/abs/2510.01234" {
		t.Errorf("PaperURL = %q", cand.PaperURL)
	}
	if cand.RawMetadata["doi"] != "10.1000/agentbench" {
		t.Errorf("doi = %q", cand.RawMetadata["doi"])
	}
	if cand.PublishDate == nil || cand.PublishDate.Format("2006-01-02") != "2025-10-02" {
		t.Errorf("PublishDate = %v", cand.PublishDate)
	}
}

func TestSemanticScholarSkipsWithoutAPIKey(t *testing.T) {
	cfg := s2TestConfig("http://unused")
	cfg.APIKey = ""
	c := NewSemanticScholarCollector(cfg, http.DefaultClient,
		logger.New(logger.Config{Level: logger.LevelError, Service: "test"}))

	got, err := c.Collect(context.Background())
	if err != nil || got != nil {
		t.Errorf("keyless collect: got=%v err=%v", got, err)
	}
}
