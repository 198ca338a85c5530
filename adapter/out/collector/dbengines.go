package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/benchscope/benchscope/config"
	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/pkg/logger"
)

// DBEnginesCollector scrapes the monthly popularity ranking table.
type DBEnginesCollector struct {
	cfg    config.DBEnginesSource
	client *http.Client
	log    *logger.Logger
	now    func() time.Time
}

// NewDBEnginesCollector creates the DB-Engines collector.
func NewDBEnginesCollector(cfg config.DBEnginesSource, client *http.Client, log *logger.Logger) *DBEnginesCollector {
	if log == nil {
		log = logger.Default()
	}
	return &DBEnginesCollector{cfg: cfg, client: client, log: log, now: time.Now}
}

func (c *DBEnginesCollector) Name() string { return domain.SourceDBEngines }

type dbEnginesEntry struct {
	rank   string
	name   string
	href   string
	dbType string
	score  string
}

// Collect parses the ranking table and emits up to MaxResults entries. The
// ranking refreshes monthly, so the publish date is pinned to the first of
// the current month.
func (c *DBEnginesCollector) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	if !c.cfg.Enabled {
		c.log.WithSource(c.Name()).Info("collector disabled, skipping")
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/ranking", nil)
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
		return nil, fmt.Errorf("parse ranking page: %w", err)
	}

	table := findFirst(doc, "table", "dbi")
	if table == nil {
		return nil, fmt.Errorf("ranking page has no dbi table")
	}

	nowT := c.now()
	publish := time.Date(nowT.Year(), nowT.Month(), 1, 0, 0, 0, 0, time.UTC)

	var candidates []domain.RawCandidate
	for _, row := range findAll(table, "tr", "") {
		entry, ok := parseRankingRow(row)
		if !ok {
			continue
		}
		candidates = append(candidates, c.toCandidate(entry, publish))
		if len(candidates) >= c.cfg.MaxResults {
			break
		}
	}

	c.log.WithSource(c.Name()).Info("dbengines collect done: %d candidates", len(candidates))
	return candidates, nil
}

// parseRankingRow reads one ranking row: rank in the first td, name link in
// th.pad-l, type in th.pad-r, score in td.pad-l.
func parseRankingRow(row *html.Node) (dbEnginesEntry, bool) {
	nameCells := findAll(row, "th", "pad-l")
	if len(nameCells) == 0 {
		return dbEnginesEntry{}, false
	}
	link := findFirst(nameCells[0], "a", "")
	if link == nil {
		return dbEnginesEntry{}, false
	}

	entry := dbEnginesEntry{
		name: nodeText(link),
		href: attrValue(link, "href"),
	}
	if entry.name == "" {
		return dbEnginesEntry{}, false
	}

	if rankCells := findAll(row, "td", ""); len(rankCells) > 0 {
		entry.rank = nodeText(rankCells[0])
	}
	if typeCells := findAll(row, "th", "pad-r"); len(typeCells) > 0 {
		entry.dbType = nodeText(typeCells[0])
	}
	if scoreCells := findAll(row, "td", "pad-l"); len(scoreCells) > 0 {
		entry.score = nodeText(scoreCells[0])
	}
	return entry, true
}

func (c *DBEnginesCollector) toCandidate(entry dbEnginesEntry, publish time.Time) domain.RawCandidate {
	url := entry.href
	if strings.HasPrefix(url, "/") {
		url = "https://db-engines.com" + url
	}

	abstract := fmt.Sprintf(
		"DB-Engines popularity ranking entry: %s (%s) ranked #%s with score %s. "+
			"The ranking measures database system popularity from search, discussion and job signals.",
		entry.name, entry.dbType, entry.rank, entry.score)

	return domain.RawCandidate{
		Title:       "DB-Engines - " + entry.name,
		URL:         url,
		Source:      domain.SourceDBEngines,
		Abstract:    abstract,
		PublishDate: timePtr(publish),
		TaskType:    "Backend",
		RawMetrics:  "popularity score " + entry.score,
		RawMetadata: map[string]string{
			"rank":  entry.rank,
			"type":  entry.dbType,
			"score": entry.score,
		},
	}
}
