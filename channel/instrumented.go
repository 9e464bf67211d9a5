package channel

import (
	"context"

	"github.com/BrendanGleason/cloud-bigtable-client/internal/metrics"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// Instrumented records call counts, failures and latency for every call.
type Instrumented struct {
	next    types.Channel
	metrics types.MetricsCollector
	clock   types.Clock
}

// Compile-time assertion that Instrumented implements types.Channel.
var _ types.Channel = (*Instrumented)(nil)

// NewInstrumented wraps next with call metrics.
//
// Parameters:
//   - next: The channel calls are issued on
//   - m: Metrics collector (no-op if nil)
//
// Returns:
//   - *Instrumented: The wrapping channel
func NewInstrumented(next types.Channel, m types.MetricsCollector) *Instrumented {
	return &Instrumented{next: next, metrics: metrics.OrNop(m), clock: types.SystemClock{}}
}

// Call forwards req and records its outcome.
func (c *Instrumented) Call(ctx context.Context, req types.Request) *types.Future {
	start := c.clock.Now()
	c.metrics.IncCallTotal(req.Method)

	fut := c.next.Call(ctx, req)
	fut.OnComplete(func(r types.Result) {
		c.metrics.ObserveCallDuration(req.Method, c.clock.Now().Sub(start).Seconds())
		if r.Err != nil {
			c.metrics.IncCallError(req.Method)
		}
	})

	return fut
}
