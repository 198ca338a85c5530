package persistence

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/core/port/out"
	"github.com/benchscope/benchscope/pkg/apperr"
	"github.com/benchscope/benchscope/pkg/logger"
	"github.com/benchscope/benchscope/pkg/urlutil"
)

// Spreadsheet column names. The Bitable is maintained in Chinese by the
// review team; these names are part of the table contract.
const (
	colTitle           = "标题"
	colSource          = "来源"
	colURL             = "URL"
	colAbstract        = "摘要"
	colPublishDate     = "发布日期"
	colActivity        = "活跃度"
	colReproducibility = "可复现性"
	colLicenseScore    = "许可合规"
	colNovelty         = "新颖性"
	colRelevance       = "MGX适配度"
	colTotalScore      = "总分"
	colPriority        = "优先级"
	colReasoning       = "评分依据"
	colTaskDomain      = "任务领域"
	colMetrics         = "评估指标"
	colBaselines       = "基准模型"
	colInstitution     = "机构"
	colAuthors         = "作者"
	colDatasetSize     = "数据集规模"
	colDatasetSizeDesc = "数据集规模描述"
	colDatasetURL      = "数据集URL"
	colGitHubStars     = "GitHub Stars"
	colGitHubURL       = "GitHub URL"
	colLicense         = "许可证"
)

const (
	saveBatchSize  = 20
	batchPacing    = 600 * time.Millisecond
	searchPageSize = 500
)

// coreColumns must exist in the table; a batch cannot be represented without
// them and is rejected instead of silently truncated.
var coreColumns = []string{colTitle, colSource, colURL, colTotalScore, colPriority}

// optionalColumns are written when present and logged once per batch when the
// table lacks them.
var optionalColumns = []string{
	colAbstract, colPublishDate, colActivity, colReproducibility,
	colLicenseScore, colNovelty, colRelevance, colReasoning, colTaskDomain,
	colMetrics, colBaselines, colInstitution, colAuthors, colDatasetSize,
	colDatasetSizeDesc, colDatasetURL, colGitHubStars, colGitHubURL, colLicense,
}

// BitableStore persists scored candidates into one Feishu Bitable table.
type BitableStore struct {
	client   *BitableClient
	appToken string
	tableID  string
	log      *logger.Logger

	fieldsMu sync.Mutex
	fields   map[string]struct{}
}

// NewBitableStore creates the primary candidate store.
func NewBitableStore(client *BitableClient, appToken, tableID string, log *logger.Logger) *BitableStore {
	if log == nil {
		log = logger.Default()
	}
	return &BitableStore{client: client, appToken: appToken, tableID: tableID, log: log}
}

var _ out.CandidateStore = (*BitableStore)(nil)

type bitableField struct {
	FieldName string `json:"field_name"`
	Type      int    `json:"type"`
}

type fieldListData struct {
	Items     []bitableField `json:"items"`
	HasMore   bool           `json:"has_more"`
	PageToken string         `json:"page_token"`
}

// tableFields returns the table's column names, discovered once and cached.
func (s *BitableStore) tableFields(ctx context.Context) (map[string]struct{}, error) {
	s.fieldsMu.Lock()
	defer s.fieldsMu.Unlock()
	if s.fields != nil {
		return s.fields, nil
	}

	fields := make(map[string]struct{})
	pageToken := ""
	seen := make(map[string]struct{})
	for {
		path := bitablePath(s.appToken, s.tableID, "fields") + "?page_size=100"
		if pageToken != "" {
			path += "&page_token=" + url.QueryEscape(pageToken)
		}
		var data fieldListData
		if err := s.client.call(ctx, "GET", path, nil, &data); err != nil {
			return nil, fmt.Errorf("list table fields: %w", err)
		}
		for _, field := range data.Items {
			fields[field.FieldName] = struct{}{}
		}
		if !data.HasMore || data.PageToken == "" {
			break
		}
		// A repeated page token would loop forever on a misbehaving server.
		if _, dup := seen[data.PageToken]; dup {
			break
		}
		seen[data.PageToken] = struct{}{}
		pageToken = data.PageToken
	}

	s.fields = fields
	return fields, nil
}

type batchCreateRequest struct {
	Records []recordPayload `json:"records"`
}

type recordPayload struct {
	Fields map[string]any `json:"fields"`
}

type batchCreateData struct {
	Records []struct {
		RecordID string `json:"record_id"`
	} `json:"records"`
}

// SaveBatch writes candidates in paced batches and returns how many records
// the API confirmed created.
func (s *BitableStore) SaveBatch(ctx context.Context, candidates []domain.ScoredCandidate) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	fields, err := s.tableFields(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.checkColumns(fields); err != nil {
		return 0, err
	}

	created := 0
	for start := 0; start < len(candidates); start += saveBatchSize {
		end := start + saveBatchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		records := make([]recordPayload, 0, end-start)
		for _, c := range candidates[start:end] {
			records = append(records, recordPayload{Fields: s.toFields(c, fields)})
		}

		var data batchCreateData
		path := bitablePath(s.appToken, s.tableID, "records/batch_create")
		if err := s.client.call(ctx, "POST", path, batchCreateRequest{Records: records}, &data); err != nil {
			return created, fmt.Errorf("batch create records: %w", err)
		}
		if len(data.Records) != len(records) {
			s.log.WithStage("persist").Warn("batch create mismatch: sent %d, created %d",
				len(records), len(data.Records))
		}
		created += len(data.Records)

		if end < len(candidates) {
			select {
			case <-ctx.Done():
				return created, ctx.Err()
			case <-time.After(batchPacing):
			}
		}
	}

	s.log.WithStage("persist").Info("saved %d/%d candidates to bitable", created, len(candidates))
	return created, nil
}

// checkColumns compares the table schema against the columns we write.
// Missing core columns reject the batch with a mapping error so it diverts to
// the fallback store; missing optional columns are logged and skipped.
func (s *BitableStore) checkColumns(tableFields map[string]struct{}) error {
	var missingCore []string
	for _, name := range coreColumns {
		if _, ok := tableFields[name]; !ok {
			missingCore = append(missingCore, name)
		}
	}
	if len(missingCore) > 0 {
		return apperr.SpreadsheetUnavailable("map record columns",
			fmt.Errorf("table is missing core columns: %s", strings.Join(missingCore, ", ")))
	}

	var missingOptional []string
	for _, name := range optionalColumns {
		if _, ok := tableFields[name]; !ok {
			missingOptional = append(missingOptional, name)
		}
	}
	if len(missingOptional) > 0 {
		s.log.WithStage("persist").Warn("table lacks columns, values dropped: %s",
			strings.Join(missingOptional, ", "))
	}
	return nil
}

// toFields renders one candidate as a Bitable record, writing only columns
// the table actually has.
func (s *BitableStore) toFields(c domain.ScoredCandidate, tableFields map[string]struct{}) map[string]any {
	fields := map[string]any{
		colTitle:           c.Title,
		colSource:          c.Source,
		colURL:             linkValue(c.URL),
		colAbstract:        c.Abstract,
		colActivity:        c.ActivityScore,
		colReproducibility: c.ReproducibilityScore,
		colLicenseScore:    c.LicenseScore,
		colNovelty:         c.NoveltyScore,
		colRelevance:       c.RelevanceScore,
		colTotalScore:      c.TotalScore(),
		colPriority:        c.Priority(),
		colReasoning:       c.ScoreReasoning,
		colTaskDomain:      c.TaskDomain,
		colMetrics:         c.Metrics,
		colBaselines:       c.Baselines,
		colInstitution:     c.Institution,
		colAuthors:         strings.Join(c.Authors, ", "),
		colDatasetSize:     c.DatasetSize,
		colDatasetSizeDesc: c.DatasetSizeDescription,
		colLicense:         c.License,
	}
	if c.PublishDate != nil {
		fields[colPublishDate] = c.PublishDate.UnixMilli()
	}
	if c.DatasetURL != "" {
		fields[colDatasetURL] = linkValue(c.DatasetURL)
	}
	if c.GitHubURL != "" {
		fields[colGitHubURL] = linkValue(c.GitHubURL)
		fields[colGitHubStars] = c.GitHubStars
	}

	for name := range fields {
		if _, ok := tableFields[name]; !ok {
			delete(fields, name)
		}
	}
	return fields
}

// linkValue wraps a URL the way Bitable hyperlink columns expect.
func linkValue(rawURL string) map[string]string {
	return map[string]string{"link": rawURL, "text": rawURL}
}

type searchRequest struct {
	Filter   *searchFilter `json:"filter,omitempty"`
	PageSize int           `json:"page_size"`
}

type searchFilter struct {
	Conjunction string            `json:"conjunction"`
	Conditions  []searchCondition `json:"conditions"`
}

type searchCondition struct {
	FieldName string   `json:"field_name"`
	Operator  string   `json:"operator"`
	Value     []string `json:"value"`
}

type searchData struct {
	Items []struct {
		Fields map[string]json.RawMessage `json:"fields"`
	} `json:"items"`
	HasMore   bool   `json:"has_more"`
	PageToken string `json:"page_token"`
}

// ExistingURLs returns canonical URLs already stored for the source whose
// publish date falls on or after since. Rows without a publish date are
// always included so undated entries never duplicate.
func (s *BitableStore) ExistingURLs(ctx context.Context, source string, since time.Time) (map[string]struct{}, error) {
	urls := make(map[string]struct{})
	pageToken := ""
	seen := make(map[string]struct{})
	for {
		path := bitablePath(s.appToken, s.tableID, "records/search")
		if pageToken != "" {
			path += "?page_token=" + url.QueryEscape(pageToken)
		}
		body := searchRequest{
			Filter: &searchFilter{
				Conjunction: "and",
				Conditions: []searchCondition{
					{FieldName: colSource, Operator: "is", Value: []string{source}},
				},
			},
			PageSize: searchPageSize,
		}

		var data searchData
		if err := s.client.call(ctx, "POST", path, body, &data); err != nil {
			return nil, fmt.Errorf("search records: %w", err)
		}

		for _, item := range data.Items {
			if publish, ok := fieldTimestamp(item.Fields[colPublishDate]); ok && publish.Before(since) {
				continue
			}
			rawURL := fieldURL(item.Fields[colURL])
			if rawURL == "" {
				continue
			}
			if canonical := urlutil.Canonicalize(rawURL); canonical != "" {
				urls[canonical] = struct{}{}
			}
		}

		if !data.HasMore || data.PageToken == "" {
			break
		}
		if _, dup := seen[data.PageToken]; dup {
			break
		}
		seen[data.PageToken] = struct{}{}
		pageToken = data.PageToken
	}
	return urls, nil
}

// fieldURL extracts the link from a hyperlink cell, tolerating plain-text
// columns.
func fieldURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var link struct {
		Link string `json:"link"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &link); err == nil && link.Link != "" {
		return link.Link
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return ""
}

func fieldTimestamp(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	var millis int64
	if err := json.Unmarshal(raw, &millis); err != nil || millis <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}
