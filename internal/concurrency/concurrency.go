package concurrency

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// NewPool returns a pool whose tasks all receive ctx. A failing task does not cancel its
// siblings, and Wait() joins every task before returning the combined errors.
// maxGoroutines <= 0 means one goroutine per task.
func NewPool(ctx context.Context, maxGoroutines int) *pool.ContextPool {
	p := pool.New().WithContext(ctx)
	if maxGoroutines > 0 {
		p = p.WithMaxGoroutines(maxGoroutines)
	}
	return p
}
