package out

import (
	"context"

	"github.com/benchscope/benchscope/core/domain"
)

// RunStats summarizes one pipeline run for the aggregate notification card.
type RunStats struct {
	RunID       string
	Collected   int
	Deduped     int
	Prefiltered int
	Scored      int
	FallbackN   int
	Saved       int
	Notified    int

	// Per-source collected/kept counts.
	SourceCounts map[string][2]int
}

// Notifier defines the outbound port for run notifications.
type Notifier interface {
	// Notify pushes detailed cards for the top high-priority candidates plus
	// one aggregate summary card. It returns the candidates that were
	// actually announced so history counters can be updated.
	Notify(ctx context.Context, candidates []domain.ScoredCandidate, stats RunStats) ([]domain.ScoredCandidate, error)
}
