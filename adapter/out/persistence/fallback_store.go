package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/core/port/out"
	"github.com/benchscope/benchscope/pkg/apperr"
	"github.com/benchscope/benchscope/pkg/logger"
)

const fallbackSchema = `
CREATE TABLE IF NOT EXISTS fallback_candidates (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL,
	source     TEXT NOT NULL,
	url        TEXT NOT NULL UNIQUE,
	score_json TEXT NOT NULL,
	raw_json   TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	synced     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_fallback_synced ON fallback_candidates(synced, created_at);
`

// SQLiteFallbackStore buffers candidates locally while the spreadsheet is
// unreachable and feeds the backfill on later runs.
type SQLiteFallbackStore struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewSQLiteFallbackStore opens (and migrates) the fallback database at path.
// Use ":memory:" for tests.
func NewSQLiteFallbackStore(path string, log *logger.Logger) (*SQLiteFallbackStore, error) {
	if log == nil {
		log = logger.Default()
	}
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, apperr.DatabaseError("open fallback db", err)
	}
	if _, err := db.Exec(fallbackSchema); err != nil {
		db.Close()
		return nil, apperr.DatabaseError("migrate fallback db", err)
	}
	return &SQLiteFallbackStore{db: db, log: log}, nil
}

var _ out.FallbackStore = (*SQLiteFallbackStore)(nil)

// Close closes the underlying database.
func (s *SQLiteFallbackStore) Close() error { return s.db.Close() }

// DB exposes the underlying pool for monitoring.
func (s *SQLiteFallbackStore) DB() *sql.DB { return s.db.DB }

type fallbackRow struct {
	ID        int64     `db:"id"`
	Title     string    `db:"title"`
	Source    string    `db:"source"`
	URL       string    `db:"url"`
	ScoreJSON string    `db:"score_json"`
	RawJSON   string    `db:"raw_json"`
	CreatedAt time.Time `db:"created_at"`
	Synced    int       `db:"synced"`
}

// scorePayload is the dimension data serialized into score_json.
type scorePayload struct {
	Activity        float64 `json:"activity_score"`
	Reproducibility float64 `json:"reproducibility_score"`
	License         float64 `json:"license_score"`
	Novelty         float64 `json:"novelty_score"`
	Relevance       float64 `json:"relevance_score"`

	ActivityReasoning        string `json:"activity_reasoning"`
	ReproducibilityReasoning string `json:"reproducibility_reasoning"`
	LicenseReasoning         string `json:"license_reasoning"`
	NoveltyReasoning         string `json:"novelty_reasoning"`
	RelevanceReasoning       string `json:"relevance_reasoning"`

	BackendMGXRelevance float64 `json:"backend_mgx_relevance"`
	BackendMGXReasoning string  `json:"backend_mgx_reasoning"`
	BackendEngValue     float64 `json:"backend_engineering_value"`
	BackendEngReasoning string  `json:"backend_engineering_reasoning"`

	ScoreReasoning  string  `json:"score_reasoning"`
	ToolReasoning   string  `json:"tool_reasoning"`
	TaskDomain      string  `json:"task_domain"`
	Metrics         string  `json:"metrics"`
	Baselines       string  `json:"baselines"`
	Institution     string  `json:"institution"`
	DatasetSize     string  `json:"dataset_size"`
	DatasetSizeDesc string  `json:"dataset_size_description"`
	LicenseName     string  `json:"license"`
	IsNotBenchmark  bool    `json:"is_not_benchmark"`
	Category        string  `json:"non_benchmark_category"`
	Fallback        bool    `json:"fallback"`
	CustomTotal     float64 `json:"custom_total_score"`
}

// Save inserts candidates, silently skipping URLs already buffered.
func (s *SQLiteFallbackStore) Save(ctx context.Context, candidates []domain.ScoredCandidate) error {
	if len(candidates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin fallback tx", err)
	}
	defer tx.Rollback()

	const insert = `INSERT OR IGNORE INTO fallback_candidates
		(title, source, url, score_json, raw_json) VALUES (?, ?, ?, ?, ?)`
	for _, c := range candidates {
		scoreJSON, rawJSON, err := encodeCandidate(c)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insert, c.Title, c.Source, c.URL, scoreJSON, rawJSON); err != nil {
			return apperr.DatabaseError("insert fallback row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit fallback tx", err)
	}
	s.log.WithStage("persist").Info("buffered %d candidates in fallback store", len(candidates))
	return nil
}

// Unsynced returns buffered candidates that never made it to the primary
// store, oldest first.
func (s *SQLiteFallbackStore) Unsynced(ctx context.Context) ([]domain.ScoredCandidate, error) {
	var rows []fallbackRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM fallback_candidates WHERE synced = 0 ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperr.DatabaseError("select unsynced", err)
	}

	candidates := make([]domain.ScoredCandidate, 0, len(rows))
	for _, row := range rows {
		c, err := decodeCandidate(row)
		if err != nil {
			s.log.WithStage("persist").WithError(err).Warn("skipping corrupt fallback row: %s", row.URL)
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// MarkSynced flags the given URLs as pushed.
func (s *SQLiteFallbackStore) MarkSynced(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE fallback_candidates SET synced = 1 WHERE url IN (?)`, urls)
	if err != nil {
		return apperr.DatabaseError("build mark synced query", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return apperr.DatabaseError("mark synced", err)
	}
	return nil
}

// Purge deletes synced rows older than the retention window.
func (s *SQLiteFallbackStore) Purge(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM fallback_candidates WHERE synced = 1 AND created_at < ?`, cutoff)
	if err != nil {
		return apperr.DatabaseError("purge fallback rows", err)
	}
	if deleted, err := result.RowsAffected(); err == nil && deleted > 0 {
		s.log.WithStage("persist").Info("purged %d synced fallback rows", deleted)
	}
	return nil
}

func encodeCandidate(c domain.ScoredCandidate) (string, string, error) {
	score := scorePayload{
		Activity:        c.ActivityScore,
		Reproducibility: c.ReproducibilityScore,
		License:         c.LicenseScore,
		Novelty:         c.NoveltyScore,
		Relevance:       c.RelevanceScore,

		ActivityReasoning:        c.ActivityReasoning,
		ReproducibilityReasoning: c.ReproducibilityReasoning,
		LicenseReasoning:         c.LicenseReasoning,
		NoveltyReasoning:         c.NoveltyReasoning,
		RelevanceReasoning:       c.RelevanceReasoning,

		BackendMGXRelevance: c.BackendMGXRelevance,
		BackendMGXReasoning: c.BackendMGXReasoning,
		BackendEngValue:     c.BackendEngineeringValue,
		BackendEngReasoning: c.BackendEngineeringReasoning,

		ScoreReasoning:  c.ScoreReasoning,
		ToolReasoning:   c.ToolReasoning,
		TaskDomain:      c.TaskDomain,
		Metrics:         c.Metrics,
		Baselines:       c.Baselines,
		Institution:     c.Institution,
		DatasetSize:     c.DatasetSize,
		DatasetSizeDesc: c.DatasetSizeDescription,
		LicenseName:     c.License,
		IsNotBenchmark:  c.IsNotBenchmark,
		Category:        c.NonBenchmarkCategory,
		Fallback:        c.Fallback,
		CustomTotal:     c.CustomTotalScore,
	}
	scoreJSON, err := json.Marshal(score)
	if err != nil {
		return "", "", fmt.Errorf("encode score payload: %w", err)
	}
	rawJSON, err := json.Marshal(c.RawCandidate)
	if err != nil {
		return "", "", fmt.Errorf("encode raw payload: %w", err)
	}
	return string(scoreJSON), string(rawJSON), nil
}

func decodeCandidate(row fallbackRow) (domain.ScoredCandidate, error) {
	var raw domain.RawCandidate
	if err := json.Unmarshal([]byte(row.RawJSON), &raw); err != nil {
		return domain.ScoredCandidate{}, fmt.Errorf("decode raw payload: %w", err)
	}
	var score scorePayload
	if err := json.Unmarshal([]byte(row.ScoreJSON), &score); err != nil {
		return domain.ScoredCandidate{}, fmt.Errorf("decode score payload: %w", err)
	}

	return domain.ScoredCandidate{
		RawCandidate:         raw,
		ActivityScore:        score.Activity,
		ReproducibilityScore: score.Reproducibility,
		LicenseScore:         score.License,
		NoveltyScore:         score.Novelty,
		RelevanceScore:       score.Relevance,

		ActivityReasoning:        score.ActivityReasoning,
		ReproducibilityReasoning: score.ReproducibilityReasoning,
		LicenseReasoning:         score.LicenseReasoning,
		NoveltyReasoning:         score.NoveltyReasoning,
		RelevanceReasoning:       score.RelevanceReasoning,

		BackendMGXRelevance:         score.BackendMGXRelevance,
		BackendMGXReasoning:         score.BackendMGXReasoning,
		BackendEngineeringValue:     score.BackendEngValue,
		BackendEngineeringReasoning: score.BackendEngReasoning,

		ScoreReasoning:         score.ScoreReasoning,
		ToolReasoning:          score.ToolReasoning,
		TaskDomain:             score.TaskDomain,
		Metrics:                score.Metrics,
		Baselines:              score.Baselines,
		Institution:            score.Institution,
		DatasetSize:            score.DatasetSize,
		DatasetSizeDescription: score.DatasetSizeDesc,
		License:                score.LicenseName,
		IsNotBenchmark:         score.IsNotBenchmark,
		NonBenchmarkCategory:   score.Category,
		Fallback:               score.Fallback,
		CustomTotalScore:       score.CustomTotal,
	}, nil
}
