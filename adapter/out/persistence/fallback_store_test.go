package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/core/port/out"
	"github.com/benchscope/benchscope/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.LevelError, Service: "test"})
}

func newTestFallbackStore(t *testing.T) *SQLiteFallbackStore {
	t.Helper()
	store, err := NewSQLiteFallbackStore(":memory:", testLogger())
	if err != nil {
		t.Fatalf("open fallback store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func scoredCandidate(url string) domain.ScoredCandidate {
	published := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	return domain.ScoredCandidate{
		RawCandidate: domain.RawCandidate{
			Title:       "AgentGauntlet: An Agent Benchmark",
			URL:         url,
			Source:      domain.SourceArxiv,
			Abstract:    "A benchmark of 800 agent tasks.",
			Authors:     []string{"Ada Example"},
			PublishDate: &published,
			GitHubStars: 250,
			GitHubURL:   "https://github.com/acme/agent-gauntlet",
		},
		ActivityScore:        8.0,
		ReproducibilityScore: 9.0,
		LicenseScore:         7.0,
		NoveltyScore:         8.0,
		RelevanceScore:       9.0,
		ActivityReasoning:    "Frequent commits and a steady release cadence.",
		RelevanceReasoning:   "Agent task coverage maps onto the team roadmap.",
		ScoreReasoning:       "Strong scores across the board.",
		TaskDomain:           "ToolUse",
		License:              "MIT",
	}
}

func TestFallbackSaveAndUnsynced(t *testing.T) {
	store := newTestFallbackStore(t)
	ctx := context.Background()

	c := scoredCandidate("https://arxiv.org/abs/2603.04567")
	if err := store.Save(ctx, []domain.ScoredCandidate{c}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Unsynced(ctx)
	if err != nil {
		t.Fatalf("Unsynced: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("unsynced = %d, want 1", len(got))
	}

	round := got[0]
	if round.Title != c.Title || round.URL != c.URL {
		t.Errorf("identity fields = %+v", round.RawCandidate)
	}
	if round.ActivityScore != 8.0 || round.RelevanceScore != 9.0 {
		t.Errorf("scores = %+v", round)
	}
	if round.TaskDomain != "ToolUse" || round.License != "MIT" {
		t.Errorf("classification = %+v", round)
	}
	if round.ActivityReasoning != c.ActivityReasoning || round.RelevanceReasoning != c.RelevanceReasoning {
		t.Errorf("dimension reasoning = %+v", round)
	}
	if round.PublishDate == nil || !round.PublishDate.Equal(*c.PublishDate) {
		t.Errorf("PublishDate = %v", round.PublishDate)
	}
	if round.TotalScore() != c.TotalScore() {
		t.Errorf("TotalScore = %v, want %v", round.TotalScore(), c.TotalScore())
	}
}

func TestFallbackRoundTripsClassification(t *testing.T) {
	store := newTestFallbackStore(t)
	ctx := context.Background()

	c := scoredCandidate("https://arxiv.org/abs/2603.07777")
	c.IsNotBenchmark = true
	c.NonBenchmarkCategory = domain.NonBenchmarkAlgorithmPaper
	c.BackendMGXRelevance = 7.0
	c.BackendEngineeringValue = 8.0
	if err := store.Save(ctx, []domain.ScoredCandidate{c}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Unsynced(ctx)
	if err != nil {
		t.Fatalf("Unsynced: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("unsynced = %d, want 1", len(got))
	}
	round := got[0]
	if !round.IsNotBenchmark || round.NonBenchmarkCategory != domain.NonBenchmarkAlgorithmPaper {
		t.Errorf("classification = %+v", round)
	}
	if round.BackendMGXRelevance != 7.0 || round.BackendEngineeringValue != 8.0 {
		t.Errorf("backend dimensions = %v, %v", round.BackendMGXRelevance, round.BackendEngineeringValue)
	}
}

func TestFallbackSaveIgnoresDuplicateURL(t *testing.T) {
	store := newTestFallbackStore(t)
	ctx := context.Background()

	c := scoredCandidate("https://arxiv.org/abs/2603.04567")
	for i := 0; i < 2; i++ {
		if err := store.Save(ctx, []domain.ScoredCandidate{c}); err != nil {
			t.Fatalf("Save #%d: %v", i+1, err)
		}
	}

	got, err := store.Unsynced(ctx)
	if err != nil {
		t.Fatalf("Unsynced: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("unsynced = %d, want 1 (duplicate ignored)", len(got))
	}
}

func TestFallbackMarkSyncedAndPurge(t *testing.T) {
	store := newTestFallbackStore(t)
	ctx := context.Background()

	first := scoredCandidate("https://arxiv.org/abs/2603.04567")
	second := scoredCandidate("https://arxiv.org/abs/2603.09999")
	if err := store.Save(ctx, []domain.ScoredCandidate{first, second}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := store.MarkSynced(ctx, []string{first.URL}); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	got, err := store.Unsynced(ctx)
	if err != nil {
		t.Fatalf("Unsynced: %v", err)
	}
	if len(got) != 1 || got[0].URL != second.URL {
		t.Fatalf("unsynced after sync = %+v", got)
	}

	// Backdate the synced row so the purge window catches it.
	if _, err := store.db.Exec(
		`UPDATE fallback_candidates SET created_at = datetime('now', '-10 days') WHERE url = ?`,
		first.URL); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	if err := store.Purge(ctx, 7*24*time.Hour); err != nil {
		t.Fatalf("Purge: %v", err)
	}

	var remaining int
	if err := store.db.Get(&remaining, `SELECT COUNT(*) FROM fallback_candidates`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 1 {
		t.Errorf("rows after purge = %d, want 1 (unsynced row kept)", remaining)
	}
}

func TestHistoryStoreCounts(t *testing.T) {
	store, err := NewSQLiteHistoryStore(":memory:", testLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	url := "https://arxiv.org/abs/2603.04567"
	count, err := store.NotifyCount(ctx, url)
	if err != nil || count != 0 {
		t.Fatalf("fresh count = %d, err = %v", count, err)
	}

	items := []out.NotifiedItem{{URL: url, Title: "AgentGauntlet"}}
	for i := 1; i <= 3; i++ {
		updated, err := store.IncrementBatch(ctx, items)
		if err != nil {
			t.Fatalf("IncrementBatch #%d: %v", i, err)
		}
		if updated != 1 {
			t.Errorf("updated = %d, want 1", updated)
		}
	}

	count, err = store.NotifyCount(ctx, url)
	if err != nil || count != 3 {
		t.Errorf("count = %d, err = %v, want 3", count, err)
	}

	// Tracking-param variants share the canonical key.
	count, err = store.NotifyCount(ctx, url+"?utm_source=feed")
	if err != nil || count != 3 {
		t.Errorf("canonical count = %d, err = %v, want 3", count, err)
	}
}
