// Package pipeline orchestrates one full collection run: collect, dedup,
// prefilter, enhance, score, persist, notify.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/core/port/out"
	"github.com/benchscope/benchscope/core/service/prefilter"
	"github.com/benchscope/benchscope/pkg/apperr"
	"github.com/benchscope/benchscope/pkg/logger"
	"github.com/benchscope/benchscope/pkg/urlutil"
)

// BatchEnhancer enriches candidates in place; failures degrade per item.
type BatchEnhancer interface {
	EnhanceBatch(ctx context.Context, candidates []domain.RawCandidate) []domain.RawCandidate
}

// BatchScorer scores candidates, falling back to rules per item.
type BatchScorer interface {
	ScoreBatch(ctx context.Context, candidates []domain.RawCandidate) []domain.ScoredCandidate
}

// Pipeline wires the run stages together.
type Pipeline struct {
	collectors []out.Collector
	prefilter  *prefilter.Engine
	enhancer   BatchEnhancer
	scorer     BatchScorer
	store      out.CandidateStore
	fallback   out.FallbackStore
	history    out.NotificationHistory
	notifier   out.Notifier

	retention time.Duration
	log       *logger.Logger
	now       func() time.Time
}

// Config bundles the pipeline dependencies.
type Config struct {
	Collectors []out.Collector
	Prefilter  *prefilter.Engine
	Enhancer   BatchEnhancer
	Scorer     BatchScorer
	Store      out.CandidateStore
	Fallback   out.FallbackStore
	History    out.NotificationHistory
	Notifier   out.Notifier
	Retention  time.Duration
	Log        *logger.Logger
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.Log == nil {
		cfg.Log = logger.Default()
	}
	return &Pipeline{
		collectors: cfg.Collectors,
		prefilter:  cfg.Prefilter,
		enhancer:   cfg.Enhancer,
		scorer:     cfg.Scorer,
		store:      cfg.Store,
		fallback:   cfg.Fallback,
		history:    cfg.History,
		notifier:   cfg.Notifier,
		retention:  cfg.Retention,
		log:        cfg.Log,
		now:        time.Now,
	}
}

// Run executes one complete pipeline pass and returns its stats. Stage
// failures in collection, enhancement, scoring and notification degrade; a
// run only fails when neither the primary store nor the fallback accepts the
// results.
func (p *Pipeline) Run(ctx context.Context) (out.RunStats, error) {
	runID := uuid.NewString()
	log := p.log.WithRunID(runID)
	started := p.now()
	log.Info("pipeline run started")

	stats := out.RunStats{RunID: runID, SourceCounts: make(map[string][2]int)}

	p.backfill(ctx, log)

	collected := p.collect(ctx, log, &stats)
	stats.Collected = len(collected)

	deduped := p.dedupInRun(log, collected)
	deduped = p.dedupAgainstStore(ctx, log, deduped)
	stats.Deduped = len(deduped)

	kept, filterStats := p.prefilter.FilterBatch(deduped)
	stats.Prefiltered = len(kept)
	for source, counts := range filterStats.Sources {
		entry := stats.SourceCounts[source]
		entry[1] = counts[1]
		stats.SourceCounts[source] = entry
	}

	if p.enhancer != nil {
		kept = p.enhancer.EnhanceBatch(ctx, kept)
	}

	scored := p.scorer.ScoreBatch(ctx, kept)
	stats.Scored = len(scored)
	for _, c := range scored {
		if c.Fallback {
			stats.FallbackN++
		}
	}

	persistable := make([]domain.ScoredCandidate, 0, len(scored))
	for _, c := range scored {
		if c.Priority() == domain.PriorityLow {
			continue
		}
		persistable = append(persistable, c)
	}
	log.WithStage("persist").Info("dropping %d low-priority candidates, persisting %d",
		len(scored)-len(persistable), len(persistable))

	saved, persistErr := p.persist(ctx, log, persistable)
	stats.Saved = saved

	notified := p.notify(ctx, log, persistable, &stats)
	stats.Notified = notified

	log.WithDuration(p.now().Sub(started)).Info(
		"pipeline run finished: collected=%d deduped=%d prefiltered=%d scored=%d saved=%d notified=%d",
		stats.Collected, stats.Deduped, stats.Prefiltered, stats.Scored, stats.Saved, stats.Notified)
	return stats, persistErr
}

// backfill pushes buffered fallback rows into the primary store before the
// new run adds more.
func (p *Pipeline) backfill(ctx context.Context, log *logger.Logger) {
	if p.fallback == nil || p.store == nil {
		return
	}
	log = log.WithStage("backfill")

	buffered, err := p.fallback.Unsynced(ctx)
	if err != nil {
		log.WithError(err).Warn("fallback read failed, skipping backfill")
		return
	}
	if len(buffered) > 0 {
		saved, err := p.store.SaveBatch(ctx, buffered)
		if err != nil {
			log.WithError(err).Warn("backfill save failed, rows stay buffered")
		} else {
			urls := make([]string, 0, saved)
			for _, c := range buffered[:saved] {
				urls = append(urls, c.URL)
			}
			if err := p.fallback.MarkSynced(ctx, urls); err != nil {
				log.WithError(err).Warn("mark synced failed")
			}
			log.Info("backfilled %d buffered candidates", saved)
		}
	}

	if err := p.fallback.Purge(ctx, p.retention); err != nil {
		log.WithError(err).Warn("fallback purge failed")
	}
}

// collect runs the collectors one at a time so upstream rate limits never
// compound across sources; fan-out happens inside each collector. A failing
// source logs and contributes nothing; it never fails the run.
func (p *Pipeline) collect(ctx context.Context, log *logger.Logger, stats *out.RunStats) []domain.RawCandidate {
	log = log.WithStage("collect")

	var all []domain.RawCandidate
	for _, c := range p.collectors {
		candidates, err := c.Collect(ctx)
		if err != nil {
			log.WithSource(c.Name()).WithError(apperr.CollectorError(c.Name(), err)).
				Warn("collector failed, continuing without it")
			continue
		}
		all = append(all, candidates...)
		entry := stats.SourceCounts[c.Name()]
		entry[0] = len(candidates)
		stats.SourceCounts[c.Name()] = entry
	}

	log.Info("collection done: %d candidates from %d sources", len(all), len(p.collectors))
	return all
}

// dedupInRun keeps the first candidate per canonical URL within this run.
func (p *Pipeline) dedupInRun(log *logger.Logger, candidates []domain.RawCandidate) []domain.RawCandidate {
	seen := make(map[string]struct{}, len(candidates))
	kept := make([]domain.RawCandidate, 0, len(candidates))
	for _, c := range candidates {
		key := urlutil.Canonicalize(c.URL)
		if key == "" {
			key = c.URL
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, c)
	}
	if dropped := len(candidates) - len(kept); dropped > 0 {
		log.WithStage("dedup").Info("in-run dedup dropped %d duplicates", dropped)
	}
	return kept
}

// dedupAgainstStore drops candidates already present in the primary store
// within each source's lookback window. A store read failure skips dedup for
// that source rather than losing the run.
func (p *Pipeline) dedupAgainstStore(ctx context.Context, log *logger.Logger, candidates []domain.RawCandidate) []domain.RawCandidate {
	if p.store == nil || len(candidates) == 0 {
		return candidates
	}
	log = log.WithStage("dedup")

	sources := make(map[string]struct{})
	for _, c := range candidates {
		sources[c.Source] = struct{}{}
	}

	existing := make(map[string]map[string]struct{}, len(sources))
	for source := range sources {
		since := p.now().Add(-domain.DedupWindow(source))
		urls, err := p.store.ExistingURLs(ctx, source, since)
		if err != nil {
			log.WithSource(source).WithError(err).Warn("existing-url lookup failed, skipping store dedup")
			continue
		}
		existing[source] = urls
	}

	kept := make([]domain.RawCandidate, 0, len(candidates))
	for _, c := range candidates {
		urls, ok := existing[c.Source]
		if ok {
			if _, dup := urls[urlutil.Canonicalize(c.URL)]; dup {
				continue
			}
		}
		kept = append(kept, c)
	}
	if dropped := len(candidates) - len(kept); dropped > 0 {
		log.Info("store dedup dropped %d known candidates", dropped)
	}
	return kept
}

// persist writes to the primary store, buffering everything in the fallback
// when the spreadsheet is unavailable.
func (p *Pipeline) persist(ctx context.Context, log *logger.Logger, candidates []domain.ScoredCandidate) (int, error) {
	if len(candidates) == 0 || p.store == nil {
		return 0, nil
	}
	log = log.WithStage("persist")

	saved, err := p.store.SaveBatch(ctx, candidates)
	if err == nil {
		return saved, nil
	}
	log.WithError(err).Warn("primary store failed, buffering %d candidates", len(candidates)-saved)

	if p.fallback == nil {
		return saved, err
	}
	if fbErr := p.fallback.Save(ctx, candidates[saved:]); fbErr != nil {
		log.WithError(fbErr).Error("fallback store failed too, candidates lost")
		return saved, apperr.DatabaseError("persist candidates", fbErr)
	}
	// Buffered for the next run's backfill; the run itself succeeded.
	return saved, nil
}

// notify sends cards and records history for what went out.
func (p *Pipeline) notify(ctx context.Context, log *logger.Logger, candidates []domain.ScoredCandidate, stats *out.RunStats) int {
	if p.notifier == nil {
		return 0
	}
	log = log.WithStage("notify")

	notified, err := p.notifier.Notify(ctx, candidates, *stats)
	if err != nil {
		log.WithError(err).Warn("notification failed")
	}
	if len(notified) == 0 {
		return 0
	}

	if p.history != nil {
		items := make([]out.NotifiedItem, 0, len(notified))
		for _, c := range notified {
			items = append(items, out.NotifiedItem{URL: c.URL, Title: c.Title})
		}
		if _, err := p.history.IncrementBatch(ctx, items); err != nil {
			log.WithError(err).Warn("history update failed")
		}
	}
	return len(notified)
}
