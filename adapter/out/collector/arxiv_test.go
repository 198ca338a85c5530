package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benchscope/benchscope/config"
	"github.com/benchscope/benchscope/pkg/logger"
)

var arxivTestNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

const arxivFeedPayload = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2603.04567v2</id>
    <title>SWE-Gauntlet: A Repository-Level
      Code Benchmark</title>
    <summary>We introduce a benchmark of 800 repository-level
      coding tasks with execution-based evaluation.</summary>
    <published>2026-03-09T04:00:00Z</published>
    <author><name>Ada Example</name></author>
    <author><name>Lin Sample</name></author>
    <link href="http://arxiv.org/abs/2603.04567v2" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/2603.04567v2" rel="related" title="pdf" type="application/pdf"/>
    <category term="cs.SE"/>
    <category term="cs.AI"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2601.00001v1</id>
    <title>Stale Paper</title>
    <summary>Published before the lookback window.</summary>
    <published>2026-01-01T00:00:00Z</published>
    <author><name>Old Author</name></author>
  </entry>
</feed>`

func arxivTestConfig(baseURL string) config.ArxivSource {
	return config.ArxivSource{
		Enabled:       true,
		BaseURL:       baseURL,
		Keywords:      []string{"code generation benchmark", "agent benchmark"},
		Categories:    []string{"cs.SE", "cs.AI"},
		MaxResults:    100,
		LookbackHours: 48,
		MaxRetries:    3,
	}
}

func TestArxivCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		search := q.Get("search_query")
		if !strings.Contains(search, `all:"code generation benchmark" OR all:"agent benchmark"`) {
			t.Errorf("search_query = %q", search)
		}
		if !strings.Contains(search, "cat:cs.SE OR cat:cs.AI") {
			t.Errorf("search_query missing categories: %q", search)
		}
		if q.Get("sortBy") != "submittedDate" || q.Get("sortOrder") != "descending" {
			t.Errorf("sort params = %q/%q", q.Get("sortBy"), q.Get("sortOrder"))
		}
		w.Write([]byte(arxivFeedPayload))
	}))
	defer srv.Close()

	c := NewArxivCollector(arxivTestConfig(srv.URL), srv.Client(),
		logger.New(logger.Config{Level: logger.LevelError, Service: "test"}))
	c.now = func() time.Time { return arxivTestNow }

	got, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1 (stale entry outside lookback)", len(got))
	}

	cand := got[0]
	if cand.Title != "SWE-Gauntlet: A Repository-Level Code Benchmark" {
		t.Errorf("Title = %q", cand.Title)
	}
	if cand.URL != "http://arxiv.org/abs/2603.04567v2" {
		t.Errorf("URL = %q", cand.URL)
	}
	if len(cand.Authors) != 2 || cand.Authors[0] != "Ada Example" {
		t.Errorf("Authors = %v", cand.Authors)
	}
	if cand.RawMetadata["arxiv_id"] != "2603.04567" {
		t.Errorf("arxiv_id = %q", cand.RawMetadata["arxiv_id"])
	}
	if cand.RawMetadata["pdf_url"] != "http://arxiv.org/pdf/2603.04567v2" {
		t.Errorf("pdf_url = %q", cand.RawMetadata["pdf_url"])
	}
	if cand.RawMetadata["categories"] != "cs.SE,cs.AI" {
		t.Errorf("categories = %q", cand.RawMetadata["categories"])
	}
}

func TestArxivCollectRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(arxivFeedPayload))
	}))
	defer srv.Close()

	c := NewArxivCollector(arxivTestConfig(srv.URL), srv.Client(),
		logger.New(logger.Config{Level: logger.LevelError, Service: "test"}))
	c.now = func() time.Time { return arxivTestNow }

	got, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(got) != 1 {
		t.Errorf("candidates = %d, want 1", len(got))
	}
}

func TestArxivIDFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://arxiv.org/abs/2603.04567v2", "2603.04567"},
		{"http://arxiv.org/abs/2603.04567", "2603.04567"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := arxivIDFromURL(tt.url); got != tt.want {
			t.Errorf("arxivIDFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
