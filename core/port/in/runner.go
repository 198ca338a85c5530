// Package in defines the inbound ports driving the application core.
package in

import (
	"context"

	"github.com/benchscope/benchscope/core/port/out"
)

// PipelineRunner is the inbound port for executing one collection run. The
// CLI entrypoint drives the core exclusively through it.
type PipelineRunner interface {
	Run(ctx context.Context) (out.RunStats, error)
}
