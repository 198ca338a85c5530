package collector

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/benchscope/benchscope/config"
	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/pkg/logger"
)

// techempowerRunLimit caps how many recent runs we inspect per collection.
const techempowerRunLimit = 3

// techempowerRPSUnit converts peak requests-per-second into the composite
// score scale.
const techempowerRPSUnit = 100000.0

// TechEmpowerCollector scrapes recent continuous-benchmarking runs from the
// tfb-status dashboard and turns the strongest frameworks into candidates.
type TechEmpowerCollector struct {
	cfg    config.TechEmpowerSource
	client *http.Client
	log    *logger.Logger
}

// NewTechEmpowerCollector creates the TechEmpower collector.
func NewTechEmpowerCollector(cfg config.TechEmpowerSource, client *http.Client, log *logger.Logger) *TechEmpowerCollector {
	if log == nil {
		log = logger.Default()
	}
	return &TechEmpowerCollector{cfg: cfg, client: client, log: log}
}

func (c *TechEmpowerCollector) Name() string { return domain.SourceTechEmpower }

type techempowerRunInfo struct {
	Result struct {
		JSON struct {
			FileName string `json:"fileName"`
		} `json:"json"`
	} `json:"result"`
}

type techempowerPayload struct {
	Frameworks   []string                                     `json:"frameworks"`
	Duration     float64                                      `json:"duration"`
	RawData      map[string]map[string][]techempowerTestEntry `json:"rawData"`
	TestMetadata []techempowerMetadata                        `json:"testMetadata"`
}

type techempowerTestEntry struct {
	TotalRequests float64 `json:"totalRequests"`
}

type techempowerMetadata struct {
	Name           string `json:"name"`
	Language       string `json:"language"`
	Framework      string `json:"framework"`
	Classification string `json:"classification"`
}

type techempowerScore struct {
	framework string
	composite float64
	tests     int
	meta      *techempowerMetadata
}

// Collect walks the most recent runs and emits one candidate per framework
// whose composite score clears the configured floor.
func (c *TechEmpowerCollector) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	if !c.cfg.Enabled {
		c.log.WithSource(c.Name()).Info("collector disabled, skipping")
		return nil, nil
	}

	uuids, err := c.fetchRunUUIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("techempower run list: %w", err)
	}

	seen := make(map[string]struct{})
	var candidates []domain.RawCandidate
	for _, uuid := range uuids {
		scores, err := c.fetchRunScores(ctx, uuid)
		if err != nil {
			c.log.WithSource(c.Name()).WithError(err).Warn("run fetch failed: %s", uuid)
			continue
		}
		for _, score := range scores {
			if score.composite < c.cfg.MinCompositeScore {
				continue
			}
			if _, dup := seen[score.framework]; dup {
				continue
			}
			seen[score.framework] = struct{}{}
			candidates = append(candidates, c.toCandidate(score, uuid))
		}
	}

	c.log.WithSource(c.Name()).Info("techempower collect done: %d candidates", len(candidates))
	return candidates, nil
}

// fetchRunUUIDs scrapes data-uuid attributes off the status table, newest
// first.
func (c *TechEmpowerCollector) fetchRunUUIDs(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL, nil)
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
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse status page: %w", err)
	}

	table := findFirst(doc, "table", "resultsTable")
	if table == nil {
		return nil, fmt.Errorf("status page has no resultsTable")
	}

	var uuids []string
	for _, row := range findAll(table, "tr", "") {
		uuid := attrValue(row, "data-uuid")
		if uuid == "" {
			continue
		}
		uuids = append(uuids, uuid)
		if len(uuids) >= techempowerRunLimit {
			break
		}
	}
	return uuids, nil
}

// fetchRunScores resolves a run's raw results file and computes per-framework
// composite scores.
func (c *TechEmpowerCollector) fetchRunScores(ctx context.Context, uuid string) ([]techempowerScore, error) {
	var info techempowerRunInfo
	if err := c.getJSON(ctx, c.cfg.BaseURL+"/results/"+uuid+".json", &info); err != nil {
		return nil, err
	}
	fileName := info.Result.JSON.FileName
	if fileName == "" {
		return nil, fmt.Errorf("run %s has no results file", uuid)
	}

	var payload techempowerPayload
	if err := c.getJSON(ctx, c.cfg.BaseURL+"/raw/"+fileName, &payload); err != nil {
		return nil, err
	}
	if payload.Duration <= 0 {
		return nil, fmt.Errorf("run %s has invalid duration", uuid)
	}

	metaByFramework := make(map[string]*techempowerMetadata, len(payload.TestMetadata))
	for i := range payload.TestMetadata {
		meta := &payload.TestMetadata[i]
		metaByFramework[meta.Name] = meta
	}

	scores := make([]techempowerScore, 0, len(payload.Frameworks))
	for _, framework := range payload.Frameworks {
		var sum float64
		var tests int
		for _, byFramework := range payload.RawData {
			entries, ok := byFramework[framework]
			if !ok || len(entries) == 0 {
				continue
			}
			var peak float64
			for _, entry := range entries {
				if rps := entry.TotalRequests / payload.Duration; rps > peak {
					peak = rps
				}
			}
			sum += peak
			tests++
		}
		if tests == 0 {
			continue
		}
		scores = append(scores, techempowerScore{
			framework: framework,
			composite: sum / float64(tests) / techempowerRPSUnit,
			tests:     tests,
			meta:      metaByFramework[framework],
		})
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].composite > scores[j].composite })
	return scores, nil
}

func (c *TechEmpowerCollector) getJSON(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	return decodeJSON(resp, dest)
}

func (c *TechEmpowerCollector) toCandidate(score techempowerScore, uuid string) domain.RawCandidate {
	parts := []string{
		fmt.Sprintf("TechEmpower web framework benchmark result: composite score %.1f across %d test types.",
			score.composite, score.tests),
	}
	metadata := map[string]string{
		"run_uuid":        uuid,
		"composite_score": fmt.Sprintf("%.2f", score.composite),
	}
	if score.meta != nil {
		parts = append(parts, fmt.Sprintf("Language: %s. Classification: %s.",
			score.meta.Language, score.meta.Classification))
		metadata["language"] = score.meta.Language
		metadata["classification"] = score.meta.Classification
	}

	return domain.RawCandidate{
		Title:    "TechEmpower - " + score.framework,
		URL:      "https://www.techempower.com/benchmarks/#framework=" + score.framework,
		Source:   domain.SourceTechEmpower,
		Abstract: strings.Join(parts, " "),
		TaskType: "Backend",
		RawMetrics: fmt.Sprintf("composite score %.1f (peak requests per second / %.0f)",
			score.composite, techempowerRPSUnit),
		RawMetadata: metadata,
	}
}
