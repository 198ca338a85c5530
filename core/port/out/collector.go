package out

import (
	"context"

	"github.com/benchscope/benchscope/core/domain"
)

// Collector defines the outbound port for a candidate source.
type Collector interface {
	// Name returns the source name attached to collected candidates.
	Name() string

	// Collect fetches fresh candidates. Implementations isolate failures:
	// an unreachable upstream returns an error and the pipeline carries on
	// with the other sources.
	Collect(ctx context.Context) ([]domain.RawCandidate, error)
}
