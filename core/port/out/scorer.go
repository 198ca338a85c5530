package out

import (
	"context"

	"github.com/benchscope/benchscope/core/domain"
)

// Scorer defines the outbound port for candidate scoring.
type Scorer interface {
	// Score evaluates one candidate. A degraded implementation may return a
	// rule-based result with Fallback set instead of an error.
	Score(ctx context.Context, candidate domain.RawCandidate) (domain.ScoredCandidate, error)
}
