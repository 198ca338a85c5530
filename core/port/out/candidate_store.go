package out

import (
	"context"
	"time"

	"github.com/benchscope/benchscope/core/domain"
)

// CandidateStore defines the outbound port for the primary spreadsheet store.
type CandidateStore interface {
	// SaveBatch writes candidates in rate-limited batches and returns the
	// number of rows actually created. Candidates whose canonical URL is
	// already present are skipped.
	SaveBatch(ctx context.Context, candidates []domain.ScoredCandidate) (int, error)

	// ExistingURLs returns the canonical URLs of rows for the given source
	// created after since. Used for cross-run dedup.
	ExistingURLs(ctx context.Context, source string, since time.Time) (map[string]struct{}, error)
}

// FallbackStore defines the outbound port for the local backup store used
// when the spreadsheet is unavailable.
type FallbackStore interface {
	Save(ctx context.Context, candidates []domain.ScoredCandidate) error

	// Unsynced returns rows not yet pushed to the primary store.
	Unsynced(ctx context.Context) ([]domain.ScoredCandidate, error)

	// MarkSynced flags the given URLs as pushed to the primary store.
	MarkSynced(ctx context.Context, urls []string) error

	// Purge removes synced rows older than the retention window.
	Purge(ctx context.Context, olderThan time.Duration) error
}

// NotificationHistory tracks how often a URL has been pushed so repeat
// notifications can be suppressed.
type NotificationHistory interface {
	NotifyCount(ctx context.Context, url string) (int, error)

	// IncrementBatch bumps counters for successfully notified items and
	// returns the number of rows updated.
	IncrementBatch(ctx context.Context, items []NotifiedItem) (int, error)
}

// NotifiedItem pairs a notified URL with its display title.
type NotifiedItem struct {
	URL   string
	Title string
}
