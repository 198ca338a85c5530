package collector

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/benchscope/benchscope/config"
	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/pkg/logger"
)

// HuggingFaceCollector searches the datasets API per keyword and keeps
// datasets that actually mention the keyword in their card.
type HuggingFaceCollector struct {
	cfg    config.HuggingFaceSource
	client *http.Client
	log    *logger.Logger
	now    func() time.Time
}

// hfDefaultLookbackDays bounds dataset age when the config leaves it unset.
const hfDefaultLookbackDays = 14

// NewHuggingFaceCollector creates the Hugging Face collector.
func NewHuggingFaceCollector(cfg config.HuggingFaceSource, client *http.Client, log *logger.Logger) *HuggingFaceCollector {
	if log == nil {
		log = logger.Default()
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = hfDefaultLookbackDays
	}
	return &HuggingFaceCollector{cfg: cfg, client: client, log: log, now: time.Now}
}

func (c *HuggingFaceCollector) Name() string { return domain.SourceHuggingFace }

type hfDataset struct {
	ID           string   `json:"id"`
	Author       string   `json:"author"`
	Description  string   `json:"description"`
	Downloads    int      `json:"downloads"`
	Likes        int      `json:"likes"`
	LastModified string   `json:"lastModified"`
	Tags         []string `json:"tags"`
}

// Collect runs one search per configured keyword and merges results, deduping
// by dataset id.
func (c *HuggingFaceCollector) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	if !c.cfg.Enabled {
		c.log.WithSource(c.Name()).Info("collector disabled, skipping")
		return nil, nil
	}

	seen := make(map[string]struct{})
	var candidates []domain.RawCandidate
	cutoff := c.now().AddDate(0, 0, -c.cfg.LookbackDays)

	for _, keyword := range c.cfg.Keywords {
		datasets, err := c.search(ctx, keyword)
		if err != nil {
			c.log.WithSource(c.Name()).WithError(err).Warn("keyword search failed: %s", keyword)
			continue
		}
		for _, ds := range datasets {
			if _, dup := seen[ds.ID]; dup {
				continue
			}
			if ds.Downloads < c.cfg.MinDownloads {
				continue
			}
			// Datasets without a parsable timestamp stay in; dated ones must
			// fall inside the lookback window.
			if modified, err := time.Parse(time.RFC3339, ds.LastModified); err == nil && modified.Before(cutoff) {
				continue
			}
			if !c.matchesKeyword(ds, keyword) {
				continue
			}
			seen[ds.ID] = struct{}{}
			candidates = append(candidates, c.toCandidate(ds))
		}
	}

	c.log.WithSource(c.Name()).Info("huggingface collect done: %d candidates", len(candidates))
	return candidates, nil
}

func (c *HuggingFaceCollector) search(ctx context.Context, keyword string) ([]hfDataset, error) {
	params := url.Values{}
	params.Set("search", keyword)
	params.Set("sort", "lastModified")
	params.Set("direction", "-1")
	params.Set("limit", strconv.Itoa(c.cfg.Limit))
	params.Set("full", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.APIURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var datasets []hfDataset
	if err := decodeJSON(resp, &datasets); err != nil {
		return nil, err
	}
	return datasets, nil
}

// matchesKeyword requires the keyword to appear in the card text, tags or id.
// The search endpoint fuzzy-matches, so this keeps only real hits.
func (c *HuggingFaceCollector) matchesKeyword(ds hfDataset, keyword string) bool {
	kw := strings.ToLower(keyword)
	if strings.Contains(strings.ToLower(ds.Description), kw) {
		return true
	}
	if strings.Contains(strings.ToLower(ds.ID), kw) {
		return true
	}
	for _, tag := range ds.Tags {
		if strings.Contains(strings.ToLower(tag), kw) {
			return true
		}
	}
	return false
}

func (c *HuggingFaceCollector) toCandidate(ds hfDataset) domain.RawCandidate {
	var published *time.Time
	if t, err := time.Parse(time.RFC3339, ds.LastModified); err == nil {
		published = timePtr(t)
	}

	var authors []string
	if ds.Author != "" {
		authors = []string{ds.Author}
	}

	datasetURL := "https://huggingface.co/datasets/" + ds.ID
	return domain.RawCandidate{
		Title:       ds.ID,
		URL:         datasetURL,
		Source:      domain.SourceHuggingFace,
		Abstract:    collapseWhitespace(ds.Description),
		Authors:     authors,
		PublishDate: published,
		DatasetURL:  datasetURL,
		RawMetadata: map[string]string{
			"downloads": strconv.Itoa(ds.Downloads),
			"likes":     strconv.Itoa(ds.Likes),
			"tags":      strings.Join(ds.Tags, ","),
		},
	}
}
