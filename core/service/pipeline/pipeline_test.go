package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/core/port/out"
	"github.com/benchscope/benchscope/core/service/prefilter"
	"github.com/benchscope/benchscope/pkg/apperr"
	"github.com/benchscope/benchscope/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.LevelError, Service: "test"})
}

// rawCandidate builds a candidate that passes the prefilter (curated source,
// long enough title, https URL).
func rawCandidate(url string) domain.RawCandidate {
	return domain.RawCandidate{
		Title:    "HELM - Holistic Scenario " + url,
		URL:      url,
		Source:   domain.SourceHELM,
		Abstract: "Scenario description.",
	}
}

type fakeCollector struct {
	name       string
	candidates []domain.RawCandidate
	err        error
}

func (c *fakeCollector) Name() string { return c.name }

func (c *fakeCollector) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	return c.candidates, c.err
}

type fakeStore struct {
	mu       sync.Mutex
	existing map[string]map[string]struct{}
	saved    [][]domain.ScoredCandidate
	saveErr  error
	sinceByS map[string]time.Time
}

func (s *fakeStore) SaveBatch(ctx context.Context, candidates []domain.ScoredCandidate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	s.saved = append(s.saved, candidates)
	return len(candidates), nil
}

func (s *fakeStore) ExistingURLs(ctx context.Context, source string, since time.Time) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sinceByS == nil {
		s.sinceByS = make(map[string]time.Time)
	}
	s.sinceByS[source] = since
	return s.existing[source], nil
}

type fakeFallback struct {
	buffered []domain.ScoredCandidate
	saved    []domain.ScoredCandidate
	synced   []string
	purged   time.Duration
}

func (f *fakeFallback) Save(ctx context.Context, candidates []domain.ScoredCandidate) error {
	f.saved = append(f.saved, candidates...)
	return nil
}

func (f *fakeFallback) Unsynced(ctx context.Context) ([]domain.ScoredCandidate, error) {
	return f.buffered, nil
}

func (f *fakeFallback) MarkSynced(ctx context.Context, urls []string) error {
	f.synced = append(f.synced, urls...)
	return nil
}

func (f *fakeFallback) Purge(ctx context.Context, olderThan time.Duration) error {
	f.purged = olderThan
	return nil
}

type fakeHistory struct {
	incremented []out.NotifiedItem
}

func (h *fakeHistory) NotifyCount(ctx context.Context, url string) (int, error) { return 0, nil }

func (h *fakeHistory) IncrementBatch(ctx context.Context, items []out.NotifiedItem) (int, error) {
	h.incremented = append(h.incremented, items...)
	return len(items), nil
}

type fakeNotifier struct {
	got   []domain.ScoredCandidate
	stats out.RunStats
	err   error
}

func (n *fakeNotifier) Notify(ctx context.Context, candidates []domain.ScoredCandidate, stats out.RunStats) ([]domain.ScoredCandidate, error) {
	n.got = candidates
	n.stats = stats
	if n.err != nil {
		return nil, n.err
	}
	return candidates, nil
}

// scoreAll scores every candidate with the given total.
type scoreAll struct {
	total    float64
	fallback bool
	got      []domain.RawCandidate
}

func (s *scoreAll) ScoreBatch(ctx context.Context, candidates []domain.RawCandidate) []domain.ScoredCandidate {
	s.got = candidates
	scored := make([]domain.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, domain.ScoredCandidate{
			RawCandidate:     c,
			TaskDomain:       domain.DefaultTaskDomain,
			CustomTotalScore: s.total,
			Fallback:         s.fallback,
		})
	}
	return scored
}

type passthroughEnhancer struct{ calls int }

func (e *passthroughEnhancer) EnhanceBatch(ctx context.Context, candidates []domain.RawCandidate) []domain.RawCandidate {
	e.calls++
	return candidates
}

func newTestPipeline(store *fakeStore, fallback *fakeFallback, collectors ...out.Collector) (*Pipeline, *scoreAll, *fakeNotifier, *fakeHistory) {
	scorer := &scoreAll{total: 8.5}
	notifier := &fakeNotifier{}
	history := &fakeHistory{}
	p := New(Config{
		Collectors: collectors,
		Prefilter:  prefilter.New(testLogger()),
		Enhancer:   &passthroughEnhancer{},
		Scorer:     scorer,
		Store:      store,
		Fallback:   fallback,
		History:    history,
		Notifier:   notifier,
		Retention:  7 * 24 * time.Hour,
		Log:        testLogger(),
	})
	return p, scorer, notifier, history
}

func TestRunHappyPath(t *testing.T) {
	store := &fakeStore{}
	fallback := &fakeFallback{}
	p, scorer, notifier, history := newTestPipeline(store, fallback,
		&fakeCollector{name: "helm", candidates: []domain.RawCandidate{
			rawCandidate("https://crfm.stanford.edu/helm/latest/?group=mmlu"),
			rawCandidate("https://crfm.stanford.edu/helm/latest/?group=gsm8k"),
		}},
	)

	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.RunID == "" {
		t.Error("run id missing")
	}
	if stats.Collected != 2 || stats.Deduped != 2 || stats.Prefiltered != 2 || stats.Scored != 2 {
		t.Errorf("funnel = %+v", stats)
	}
	if stats.Saved != 2 {
		t.Errorf("saved = %d, want 2", stats.Saved)
	}
	if stats.Notified != 2 {
		t.Errorf("notified = %d, want 2", stats.Notified)
	}
	if len(scorer.got) != 2 {
		t.Errorf("scorer received %d candidates", len(scorer.got))
	}
	if counts := stats.SourceCounts["helm"]; counts != [2]int{2, 2} {
		t.Errorf("source counts = %v, want [2 2]", counts)
	}
	if notifier.stats.RunID != stats.RunID {
		t.Error("notifier should receive the run stats")
	}
	if len(history.incremented) != 2 {
		t.Errorf("history increments = %d, want 2", len(history.incremented))
	}
}

// trackingCollector records invocation order and flags any overlap with
// another collector's Collect call.
type trackingCollector struct {
	name    string
	active  *atomic.Int32
	overlap *atomic.Bool
	order   *[]string
	mu      *sync.Mutex
}

func (c *trackingCollector) Name() string { return c.name }

func (c *trackingCollector) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	if c.active.Add(1) > 1 {
		c.overlap.Store(true)
	}
	time.Sleep(10 * time.Millisecond)
	c.mu.Lock()
	*c.order = append(*c.order, c.name)
	c.mu.Unlock()
	c.active.Add(-1)
	return []domain.RawCandidate{rawCandidate("https://crfm.stanford.edu/helm/latest/?group=" + c.name)}, nil
}

func TestRunCollectsSequentially(t *testing.T) {
	var active atomic.Int32
	var overlap atomic.Bool
	var order []string
	var mu sync.Mutex

	names := []string{"arxiv", "github", "huggingface", "helm"}
	collectors := make([]out.Collector, 0, len(names))
	for _, name := range names {
		collectors = append(collectors, &trackingCollector{
			name: name, active: &active, overlap: &overlap, order: &order, mu: &mu,
		})
	}

	p, _, _, _ := newTestPipeline(&fakeStore{}, &fakeFallback{}, collectors...)
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if overlap.Load() {
		t.Error("collectors ran concurrently, want one source at a time")
	}
	if len(order) != len(names) {
		t.Fatalf("collect calls = %d, want %d", len(order), len(names))
	}
	for i, name := range names {
		if order[i] != name {
			t.Errorf("collect order = %v, want registration order %v", order, names)
			break
		}
	}
}

func TestRunCollectorFailureIsIsolated(t *testing.T) {
	store := &fakeStore{}
	p, _, _, _ := newTestPipeline(store, &fakeFallback{},
		&fakeCollector{name: "arxiv", err: errors.New("feed down")},
		&fakeCollector{name: "helm", candidates: []domain.RawCandidate{
			rawCandidate("https://crfm.stanford.edu/helm/latest/?group=mmlu"),
		}},
	)

	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Collected != 1 || stats.Saved != 1 {
		t.Errorf("stats = %+v, want the healthy source to survive", stats)
	}
}

func TestRunDedupInRunAndAgainstStore(t *testing.T) {
	store := &fakeStore{existing: map[string]map[string]struct{}{
		"helm": {"https://crfm.stanford.edu/helm/latest?group=known": {}},
	}}
	p, _, _, _ := newTestPipeline(store, &fakeFallback{},
		&fakeCollector{name: "helm", candidates: []domain.RawCandidate{
			rawCandidate("https://crfm.stanford.edu/helm/latest/?group=mmlu"),
			rawCandidate("https://crfm.stanford.edu/helm/latest/?group=mmlu&utm_source=feed"),
			rawCandidate("https://crfm.stanford.edu/helm/latest/?group=known"),
		}},
	)

	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Collected != 3 {
		t.Errorf("collected = %d", stats.Collected)
	}
	// utm variant is an in-run dup, "known" is already stored.
	if stats.Deduped != 1 {
		t.Errorf("deduped = %d, want 1", stats.Deduped)
	}
	since, ok := store.sinceByS["helm"]
	if !ok {
		t.Fatal("store dedup never queried")
	}
	wantSince := time.Now().Add(-domain.DedupWindowDefault)
	if since.Before(wantSince.Add(-time.Minute)) || since.After(wantSince.Add(time.Minute)) {
		t.Errorf("since = %v, want about %v", since, wantSince)
	}
}

func TestRunDropsLowPriority(t *testing.T) {
	store := &fakeStore{}
	p, scorer, notifier, _ := newTestPipeline(store, &fakeFallback{},
		&fakeCollector{name: "helm", candidates: []domain.RawCandidate{
			rawCandidate("https://crfm.stanford.edu/helm/latest/?group=mmlu"),
		}},
	)
	scorer.total = 4.0

	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Scored != 1 || stats.Saved != 0 {
		t.Errorf("stats = %+v, low-priority candidates must not persist", stats)
	}
	if len(notifier.got) != 0 {
		t.Errorf("notifier received %d candidates, want 0", len(notifier.got))
	}
	if len(store.saved) != 0 {
		t.Error("store should not be called with an empty batch")
	}
}

func TestRunFallsBackWhenStoreUnavailable(t *testing.T) {
	store := &fakeStore{saveErr: apperr.SpreadsheetUnavailable("batch create", errors.New("circuit open"))}
	fallback := &fakeFallback{}
	p, _, _, _ := newTestPipeline(store, fallback,
		&fakeCollector{name: "helm", candidates: []domain.RawCandidate{
			rawCandidate("https://crfm.stanford.edu/helm/latest/?group=mmlu"),
			rawCandidate("https://crfm.stanford.edu/helm/latest/?group=gsm8k"),
		}},
	)

	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run should succeed when the fallback absorbs the batch: %v", err)
	}
	if stats.Saved != 0 {
		t.Errorf("saved = %d, want 0", stats.Saved)
	}
	if len(fallback.saved) != 2 {
		t.Errorf("fallback received %d candidates, want 2", len(fallback.saved))
	}
}

func TestRunBackfillsBufferedRows(t *testing.T) {
	buffered := []domain.ScoredCandidate{
		{
			RawCandidate:     rawCandidate("https://crfm.stanford.edu/helm/latest/?group=old"),
			TaskDomain:       domain.DefaultTaskDomain,
			CustomTotalScore: 7.0,
		},
	}
	store := &fakeStore{}
	fallback := &fakeFallback{buffered: buffered}
	p, _, _, _ := newTestPipeline(store, fallback)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.saved) != 1 || len(store.saved[0]) != 1 {
		t.Fatalf("backfill should push buffered rows, saved=%v", store.saved)
	}
	if len(fallback.synced) != 1 || fallback.synced[0] != buffered[0].URL {
		t.Errorf("synced = %v", fallback.synced)
	}
	if fallback.purged != 7*24*time.Hour {
		t.Errorf("purge retention = %v", fallback.purged)
	}
}

func TestRunFallbackScoringCounted(t *testing.T) {
	store := &fakeStore{}
	p, scorer, _, _ := newTestPipeline(store, &fakeFallback{},
		&fakeCollector{name: "helm", candidates: []domain.RawCandidate{
			rawCandidate("https://crfm.stanford.edu/helm/latest/?group=mmlu"),
		}},
	)
	scorer.fallback = true

	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FallbackN != 1 {
		t.Errorf("fallback count = %d, want 1", stats.FallbackN)
	}
}
