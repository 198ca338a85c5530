// Package enhancer enriches arXiv candidates with full-text PDF content.
package enhancer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/core/port/out"
	"github.com/benchscope/benchscope/pkg/cache"
	"github.com/benchscope/benchscope/pkg/logger"
)

// arxivIDRe matches a modern arXiv identifier with optional version.
var arxivIDRe = regexp.MustCompile(`(\d{4}\.\d{4,5}(?:v\d+)?)`)

// Section caps keep the later LLM prompt within budget.
const (
	evaluationSummaryCap = 2000
	datasetSummaryCap    = 1000
	baselinesSummaryCap  = 1000
)

const (
	maxInstitutions = 3
	downloadPacing  = 500 * time.Millisecond
)

// Heading keyword groups routed into each summary bucket.
var (
	evaluationHeadings = []string{"evaluation", "experiments", "results", "performance"}
	datasetHeadings    = []string{"dataset", "data", "benchmark", "corpus"}
	baselinesHeadings  = []string{"baselines", "comparison", "related work", "prior work"}
)

// Enhancer downloads arXiv PDFs and merges parsed full-text into candidates.
// Every failure degrades to the unmodified candidate.
type Enhancer struct {
	parser      out.PDFParser
	client      *http.Client
	cacheDir    string
	concurrency int
	log         *logger.Logger

	// Optional cover-image pipeline, see EnableCoverImages.
	uploader  out.ImageUploader
	imageKeys *cache.RedisCache
	renderPNG func(pdf []byte) ([]byte, error)

	pdfBaseURL string
}

// New creates an enhancer. concurrency bounds parallel PDF fetches.
func New(parser out.PDFParser, client *http.Client, cacheDir string, concurrency int, log *logger.Logger) *Enhancer {
	if concurrency <= 0 {
		concurrency = 3
	}
	if log == nil {
		log = logger.Default()
	}
	return &Enhancer{
		parser:      parser,
		client:      client,
		cacheDir:    cacheDir,
		concurrency: concurrency,
		log:         log,
		pdfBaseURL:  "https://arxiv.org/pdf/",
	}
}

// EnhanceBatch processes arXiv candidates concurrently, passing everything
// else through untouched. Order is preserved.
func (e *Enhancer) EnhanceBatch(ctx context.Context, candidates []domain.RawCandidate) []domain.RawCandidate {
	if e.parser == nil || len(candidates) == 0 {
		return candidates
	}

	result := make([]domain.RawCandidate, len(candidates))
	copy(result, candidates)

	sem := semaphore.NewWeighted(int64(e.concurrency))
	var wg sync.WaitGroup
	enhanced := 0
	var mu sync.Mutex

	for i := range result {
		if result[i].Source != domain.SourceArxiv {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer sem.Release(1)
			candidate, ok := e.enhance(ctx, result[idx])
			if ok {
				mu.Lock()
				result[idx] = candidate
				enhanced++
				mu.Unlock()
			}
			// Pace downloads so arXiv does not throttle the whole batch.
			select {
			case <-ctx.Done():
			case <-time.After(downloadPacing):
			}
		}(i)
	}
	wg.Wait()

	e.log.WithStage("enhance").Info("pdf enhancement done: %d/%d arxiv candidates enriched",
		enhanced, countSource(candidates, domain.SourceArxiv))
	return result
}

// enhance returns the enriched candidate, or ok=false when anything fails.
func (e *Enhancer) enhance(ctx context.Context, c domain.RawCandidate) (domain.RawCandidate, bool) {
	id := e.arxivID(c)
	if id == "" {
		return c, false
	}

	pdf, err := e.fetchPDF(ctx, id)
	if err != nil {
		e.log.WithStage("enhance").WithError(err).Warn("pdf fetch failed: %s", id)
		return c, false
	}

	paper, err := e.parser.Parse(ctx, pdf)
	if err != nil {
		e.log.WithStage("enhance").WithError(err).Warn("pdf parse failed: %s", id)
		return c, false
	}

	merged := e.merge(c, paper)
	if e.uploader != nil {
		if key := e.coverImageKey(ctx, id, pdf); key != "" {
			merged.HeroImageKey = key
		}
	}
	return merged, true
}

// arxivID resolves the version-stripped identifier from metadata or the URL.
func (e *Enhancer) arxivID(c domain.RawCandidate) string {
	raw := c.RawMetadata["arxiv_id"]
	if raw == "" {
		raw = c.URL
	}
	m := arxivIDRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	id := m[1]
	if v := strings.IndexByte(id, 'v'); v > 0 {
		id = id[:v]
	}
	return id
}

// fetchPDF downloads the paper, serving repeats from the on-disk cache.
func (e *Enhancer) fetchPDF(ctx context.Context, id string) ([]byte, error) {
	cachePath := filepath.Join(e.cacheDir, id+".pdf")
	if data, err := os.ReadFile(cachePath); err == nil && len(data) > 0 {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.pdfBaseURL+id+".pdf", nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pdf download status %d", resp.StatusCode)
	}

	data, err := readAllBounded(resp)
	if err != nil {
		return nil, err
	}

	if e.cacheDir != "" {
		if err := os.MkdirAll(e.cacheDir, 0o755); err == nil {
			if err := os.WriteFile(cachePath, data, 0o644); err != nil {
				e.log.WithStage("enhance").WithError(err).Debug("pdf cache write failed: %s", id)
			}
		}
	}
	return data, nil
}

// merge folds parsed full-text into the candidate.
func (e *Enhancer) merge(c domain.RawCandidate, paper out.ParsedPaper) domain.RawCandidate {
	if len(paper.Abstract) > len(c.Abstract) {
		c.Abstract = paper.Abstract
	}

	if len(paper.Institutions) > 0 {
		top := paper.Institutions
		if len(top) > maxInstitutions {
			top = top[:maxInstitutions]
		}
		c.RawInstitutions = strings.Join(top, ", ")
	}

	if c.RawMetadata == nil {
		c.RawMetadata = make(map[string]string)
	}
	if summary := summarizeSections(paper.Sections, evaluationHeadings, evaluationSummaryCap); summary != "" {
		c.RawMetadata["evaluation_summary"] = summary
	}
	if summary := summarizeSections(paper.Sections, datasetHeadings, datasetSummaryCap); summary != "" {
		c.RawMetadata["dataset_summary"] = summary
	}
	if summary := summarizeSections(paper.Sections, baselinesHeadings, baselinesSummaryCap); summary != "" {
		c.RawMetadata["baselines_summary"] = summary
	}
	c.RawMetadata["pdf_sections"] = strconv.Itoa(len(paper.Sections))
	c.RawMetadata["pdf_references_count"] = strconv.Itoa(paper.ReferencesCount)

	return c
}

// summarizeSections concatenates text from sections whose heading mentions
// any of the keywords, capped at maxChars.
func summarizeSections(sections []out.PaperSection, headings []string, maxChars int) string {
	var parts []string
	total := 0
	for _, section := range sections {
		heading := strings.ToLower(section.Heading)
		matched := false
		for _, kw := range headings {
			if strings.Contains(heading, kw) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		parts = append(parts, section.Text)
		total += len(section.Text)
		if total >= maxChars {
			break
		}
	}

	summary := strings.Join(parts, " ")
	if len(summary) > maxChars {
		summary = summary[:maxChars]
	}
	return summary
}

func countSource(candidates []domain.RawCandidate, source string) int {
	n := 0
	for _, c := range candidates {
		if c.Source == source {
			n++
		}
	}
	return n
}

// maxPDFBytes caps a single download; arXiv papers rarely exceed a few MB.
const maxPDFBytes = 50 << 20

func readAllBounded(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
}
