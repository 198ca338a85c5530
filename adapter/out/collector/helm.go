package collector

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/benchscope/benchscope/config"
	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/pkg/logger"
)

// helmReleaseRe pulls the current release tag out of the site's config.js.
var helmReleaseRe = regexp.MustCompile(`window\.RELEASE\s*=\s*"([^"]+)"`)

// helmSlugRe strips characters that do not belong in a scenario slug.
var helmSlugRe = regexp.MustCompile(`[^a-z0-9_]+`)

// HelmCollector scrapes scenario groups from a published HELM release.
type HelmCollector struct {
	cfg    config.HelmSource
	client *http.Client
	log    *logger.Logger
}

// NewHelmCollector creates the HELM collector.
func NewHelmCollector(cfg config.HelmSource, client *http.Client, log *logger.Logger) *HelmCollector {
	if log == nil {
		log = logger.Default()
	}
	return &HelmCollector{cfg: cfg, client: client, log: log}
}

func (c *HelmCollector) Name() string { return domain.SourceHELM }

type helmSummary struct {
	Release string `json:"release"`
	Date    string `json:"date"`
}

type helmGroupTable struct {
	Title  string           `json:"title"`
	Header []helmCell       `json:"header"`
	Rows   [][]helmCell     `json:"rows"`
	Links  []map[string]any `json:"links"`
}

type helmCell struct {
	Value       any    `json:"value"`
	Href        string `json:"href"`
	Description string `json:"description"`
}

func (c helmCell) text() string {
	switch v := c.Value.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}

// Collect resolves the current release, then walks every scenario group table
// and emits one candidate per allowed scenario.
func (c *HelmCollector) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	if !c.cfg.Enabled {
		c.log.WithSource(c.Name()).Info("collector disabled, skipping")
		return nil, nil
	}

	release := c.resolveRelease(ctx)
	publishDate := c.fetchReleaseDate(ctx, release)

	tables, err := c.fetchGroups(ctx, release)
	if err != nil {
		return nil, fmt.Errorf("helm groups: %w", err)
	}

	seen := make(map[string]struct{})
	var candidates []domain.RawCandidate
	for _, table := range tables {
		if strings.EqualFold(strings.TrimSpace(table.Title), "All scenarios") {
			continue
		}
		for _, row := range table.Rows {
			candidate, ok := c.rowToCandidate(table, row, release, publishDate)
			if !ok {
				continue
			}
			slug := candidate.RawMetadata["scenario_slug"]
			if _, dup := seen[slug]; dup {
				continue
			}
			seen[slug] = struct{}{}
			candidates = append(candidates, candidate)
		}
	}

	c.log.WithSource(c.Name()).Info(
		"helm collect done: release=%s candidates=%d", release, len(candidates))
	return candidates, nil
}

// resolveRelease reads window.RELEASE from config.js, falling back to the
// configured default when the site layout changes.
func (c *HelmCollector) resolveRelease(ctx context.Context) string {
	configURL := strings.TrimRight(c.cfg.BaseURL, "/") + "/config.js"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, configURL, nil)
	if err != nil {
		return c.cfg.DefaultRelease
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.WithSource(c.Name()).WithError(err).Warn("config.js fetch failed, using default release")
		return c.cfg.DefaultRelease
	}
	body, err := readBody(resp)
	if err != nil || resp.StatusCode != http.StatusOK {
		return c.cfg.DefaultRelease
	}

	if m := helmReleaseRe.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	return c.cfg.DefaultRelease
}

func (c *HelmCollector) fetchReleaseDate(ctx context.Context, release string) *time.Time {
	url := fmt.Sprintf("%s/releases/%s/summary.json", c.cfg.StorageBase, release)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	var summary helmSummary
	if err := decodeJSON(resp, &summary); err != nil {
		return nil
	}
	t, err := time.Parse("2006-01-02", summary.Date)
	if err != nil {
		return nil
	}
	return timePtr(t)
}

func (c *HelmCollector) fetchGroups(ctx context.Context, release string) ([]helmGroupTable, error) {
	url := fmt.Sprintf("%s/releases/%s/groups.json", c.cfg.StorageBase, release)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var tables []helmGroupTable
	if err := decodeJSON(resp, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

func (c *HelmCollector) rowToCandidate(table helmGroupTable, row []helmCell, release string, publishDate *time.Time) (domain.RawCandidate, bool) {
	if len(row) == 0 {
		return domain.RawCandidate{}, false
	}
	name := strings.TrimSpace(row[0].text())
	if name == "" {
		return domain.RawCandidate{}, false
	}
	if !c.scenarioAllowed(name) {
		return domain.RawCandidate{}, false
	}

	slug := slugFromHref(row[0].Href)
	if slug == "" {
		slug = slugify(name)
	}

	parts := []string{}
	if desc := strings.TrimSpace(row[0].Description); desc != "" {
		parts = append(parts, truncate(desc, 200))
	}
	for i, header := range table.Header {
		if i == 0 || i >= len(row) {
			continue
		}
		label := strings.ToLower(header.text())
		value := strings.TrimSpace(row[i].text())
		if value == "" {
			continue
		}
		switch {
		case strings.Contains(label, "adaptation"):
			parts = append(parts, "Adaptation: "+value)
		case strings.Contains(label, "model"):
			parts = append(parts, "Models: "+value)
		}
	}

	return domain.RawCandidate{
		Title:       "HELM - " + name,
		URL:         c.cfg.BaseURL + "?group=" + slug,
		Source:      domain.SourceHELM,
		Abstract:    strings.Join(parts, " | "),
		PublishDate: publishDate,
		RawMetadata: map[string]string{
			"release":       release,
			"group_table":   table.Title,
			"scenario_slug": slug,
		},
	}, true
}

// scenarioAllowed applies the allow list first, then the deny list.
func (c *HelmCollector) scenarioAllowed(name string) bool {
	lowered := strings.ToLower(name)
	if len(c.cfg.AllowedScenarios) > 0 && !containsAnyOf(lowered, c.cfg.AllowedScenarios) {
		return false
	}
	return !containsAnyOf(lowered, c.cfg.ExcludedScenarios)
}

func containsAnyOf(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// slugFromHref extracts the group= query value from a scenario link.
func slugFromHref(href string) string {
	idx := strings.Index(href, "group=")
	if idx < 0 {
		return ""
	}
	slug := href[idx+len("group="):]
	if amp := strings.IndexByte(slug, '&'); amp >= 0 {
		slug = slug[:amp]
	}
	return slug
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "_")
	slug = strings.ReplaceAll(slug, "-", "_")
	return helmSlugRe.ReplaceAllString(slug, "")
}
