package collector

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benchscope/benchscope/config"
	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/pkg/logger"
)

// ArxivCollector pulls recent papers from the arXiv Atom API, constrained to
// benchmark-flavored phrase queries within a category allow-list.
type ArxivCollector struct {
	cfg    config.ArxivSource
	client *http.Client
	log    *logger.Logger
	now    func() time.Time
}

// NewArxivCollector creates the arXiv collector.
func NewArxivCollector(cfg config.ArxivSource, client *http.Client, log *logger.Logger) *ArxivCollector {
	if log == nil {
		log = logger.Default()
	}
	return &ArxivCollector{cfg: cfg, client: client, log: log, now: time.Now}
}

func (c *ArxivCollector) Name() string { return domain.SourceArxiv }

// atomFeed models the subset of the arXiv Atom response we consume.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Published  string         `xml:"published"`
	Authors    []atomAuthor   `xml:"author"`
	Links      []atomLink     `xml:"link"`
	Categories []atomCategory `xml:"category"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Title string `xml:"title,attr"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// Collect queries the Atom API with retries and returns candidates published
// within the lookback window.
func (c *ArxivCollector) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	if !c.cfg.Enabled {
		c.log.WithSource(c.Name()).Info("collector disabled, skipping")
		return nil, nil
	}

	queryURL := c.buildQueryURL()

	var feed atomFeed
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		feed, lastErr = c.fetchFeed(ctx, queryURL)
		if lastErr == nil {
			break
		}
		if attempt < c.cfg.MaxRetries {
			c.log.WithSource(c.Name()).WithError(lastErr).Warn(
				"arxiv fetch failed, retrying (%d/%d)", attempt, c.cfg.MaxRetries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("arxiv query: %w", lastErr)
	}

	cutoff := c.now().Add(-time.Duration(c.cfg.LookbackHours) * time.Hour)
	candidates := make([]domain.RawCandidate, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		candidate, ok := c.toCandidate(entry, cutoff)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate)
	}

	c.log.WithSource(c.Name()).Info("arxiv collect done: %d candidates", len(candidates))
	return candidates, nil
}

// buildQueryURL joins keyword phrases with OR and restricts to the category
// list, newest submissions first.
func (c *ArxivCollector) buildQueryURL() string {
	phrases := make([]string, 0, len(c.cfg.Keywords))
	for _, kw := range c.cfg.Keywords {
		phrases = append(phrases, fmt.Sprintf("all:%q", kw))
	}
	cats := make([]string, 0, len(c.cfg.Categories))
	for _, cat := range c.cfg.Categories {
		cats = append(cats, "cat:"+cat)
	}

	query := "(" + strings.Join(phrases, " OR ") + ")"
	if len(cats) > 0 {
		query += " AND (" + strings.Join(cats, " OR ") + ")"
	}

	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", c.cfg.MaxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	return c.cfg.BaseURL + "?" + params.Encode()
}

func (c *ArxivCollector) fetchFeed(ctx context.Context, queryURL string) (atomFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return atomFeed{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return atomFeed{}, err
	}
	if err := checkStatus(resp); err != nil {
		return atomFeed{}, err
	}

	body, err := readBody(resp)
	if err != nil {
		return atomFeed{}, err
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return atomFeed{}, fmt.Errorf("parse atom feed: %w", err)
	}
	return feed, nil
}

func (c *ArxivCollector) toCandidate(entry atomEntry, cutoff time.Time) (domain.RawCandidate, bool) {
	published, err := time.Parse(time.RFC3339, entry.Published)
	if err != nil || published.Before(cutoff) {
		return domain.RawCandidate{}, false
	}

	absURL := strings.TrimSpace(entry.ID)
	pdfURL := ""
	for _, link := range entry.Links {
		if link.Title == "pdf" {
			pdfURL = link.Href
		}
	}
	if absURL == "" {
		return domain.RawCandidate{}, false
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	categories := make([]string, 0, len(entry.Categories))
	for _, cat := range entry.Categories {
		if cat.Term != "" {
			categories = append(categories, cat.Term)
		}
	}

	metadata := map[string]string{
		"arxiv_id":   arxivIDFromURL(absURL),
		"categories": strings.Join(categories, ","),
	}
	if pdfURL != "" {
		metadata["pdf_url"] = pdfURL
	}

	return domain.RawCandidate{
		Title:       collapseWhitespace(entry.Title),
		URL:         absURL,
		Source:      domain.SourceArxiv,
		Abstract:    collapseWhitespace(entry.Summary),
		Authors:     authors,
		PublishDate: timePtr(published),
		PaperURL:    absURL,
		RawMetadata: metadata,
	}, true
}

// arxivIDFromURL extracts "2401.12345" from an abs URL, dropping any version
// suffix.
func arxivIDFromURL(absURL string) string {
	idx := strings.LastIndex(absURL, "/")
	if idx < 0 {
		return ""
	}
	id := absURL[idx+1:]
	if v := strings.IndexByte(id, 'v'); v > 0 {
		id = id[:v]
	}
	return id
}
