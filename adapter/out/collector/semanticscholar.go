package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/benchscope/benchscope/config"
	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/pkg/logger"
)

const semanticScholarFields = "title,abstract,url,year,publicationDate,venue,authors,externalIds"

// SemanticScholarCollector searches recent benchmark papers per top venue via
// the Graph API. Without an API key the public tier throttles too hard to be
// useful, so the collector skips itself.
type SemanticScholarCollector struct {
	cfg    config.SemanticScholarSource
	client *http.Client
	log    *logger.Logger
	now    func() time.Time
}

// NewSemanticScholarCollector creates the Semantic Scholar collector.
func NewSemanticScholarCollector(cfg config.SemanticScholarSource, client *http.Client, log *logger.Logger) *SemanticScholarCollector {
	if log == nil {
		log = logger.Default()
	}
	return &SemanticScholarCollector{cfg: cfg, client: client, log: log, now: time.Now}
}

func (c *SemanticScholarCollector) Name() string { return domain.SourceSemanticScholar }

type s2SearchResponse struct {
	Data []s2Paper `json:"data"`
}

type s2Paper struct {
	PaperID         string     `json:"paperId"`
	Title           string     `json:"title"`
	Abstract        string     `json:"abstract"`
	URL             string     `json:"url"`
	Year            int        `json:"year"`
	PublicationDate string     `json:"publicationDate"`
	Venue           string     `json:"venue"`
	Authors         []s2Author `json:"authors"`
	ExternalIDs     struct {
		ArXiv string `json:"ArXiv"`
		DOI   string `json:"DOI"`
	} `json:"externalIds"`
}

type s2Author struct {
	Name string `json:"name"`
}

// Collect runs one search per venue within the lookback year window, deduping
// by paper id.
func (c *SemanticScholarCollector) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	if !c.cfg.Enabled {
		c.log.WithSource(c.Name()).Info("collector disabled, skipping")
		return nil, nil
	}
	if c.cfg.APIKey == "" {
		c.log.WithSource(c.Name()).Info("no api key configured, skipping")
		return nil, nil
	}

	seen := make(map[string]struct{})
	var candidates []domain.RawCandidate
	for _, venue := range c.cfg.Venues {
		papers, err := c.searchVenue(ctx, venue)
		if err != nil {
			c.log.WithSource(c.Name()).WithError(err).Warn("venue search failed: %s", venue)
			continue
		}
		for _, paper := range papers {
			if paper.PaperID == "" || paper.Title == "" {
				continue
			}
			if _, dup := seen[paper.PaperID]; dup {
				continue
			}
			seen[paper.PaperID] = struct{}{}
			candidates = append(candidates, c.toCandidate(paper))
		}
	}

	c.log.WithSource(c.Name()).Info("semantic scholar collect done: %d candidates", len(candidates))
	return candidates, nil
}

func (c *SemanticScholarCollector) searchVenue(ctx context.Context, venue string) ([]s2Paper, error) {
	keywords := make([]string, 0, len(c.cfg.Keywords))
	for _, kw := range c.cfg.Keywords {
		keywords = append(keywords, kw)
	}
	query := fmt.Sprintf("venue:%q AND (%s)", venue, strings.Join(keywords, " OR "))

	currentYear := c.now().Year()
	params := url.Values{}
	params.Set("query", query)
	params.Set("year", fmt.Sprintf("%d-%d", currentYear-c.cfg.LookbackYears, currentYear))
	params.Set("fields", semanticScholarFields)
	params.Set("limit", strconv.Itoa(c.cfg.MaxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result s2SearchResponse
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (c *SemanticScholarCollector) toCandidate(paper s2Paper) domain.RawCandidate {
	var published *time.Time
	if t, err := time.Parse("2006-01-02", paper.PublicationDate); err == nil {
		published = timePtr(t)
	} else if paper.Year > 0 {
		published = timePtr(time.Date(paper.Year, 1, 1, 0, 0, 0, 0, time.UTC))
	}

	authors := make([]string, 0, len(paper.Authors))
	for _, a := range paper.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	metadata := map[string]string{
		"paper_id": paper.PaperID,
		"venue":    paper.Venue,
	}
	paperURL := paper.URL
	if paper.ExternalIDs.ArXiv != "" {
		metadata["arxiv_id"] = paper.ExternalIDs.ArXiv
		paperURL = "https://arxiv.org/abs/" + paper.ExternalIDs.ArXiv
	}
	if paper.ExternalIDs.DOI != "" {
		metadata["doi"] = paper.ExternalIDs.DOI
	}

	return domain.RawCandidate{
		Title:       collapseWhitespace(paper.Title),
		URL:         paper.URL,
		Source:      domain.SourceSemanticScholar,
		Abstract:    collapseWhitespace(paper.Abstract),
		Authors:     authors,
		PublishDate: published,
		PaperURL:    paperURL,
		RawMetadata: metadata,
	}
}
