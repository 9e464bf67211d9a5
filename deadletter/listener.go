package deadletter

import (
	"context"
	"time"

	"github.com/BrendanGleason/cloud-bigtable-client/buffer"
	"github.com/BrendanGleason/cloud-bigtable-client/internal/logging"
	"github.com/BrendanGleason/cloud-bigtable-client/internal/metrics"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// DefaultPublishTimeout bounds the time a Listener spends publishing one report.
const DefaultPublishTimeout = 10 * time.Second

// Listener is a buffer.ExceptionListener that stores failed mutations in a
// Sink and lets the writer continue.
//
// Only replayable mutations are stored (see Entry.Replayable). The others go
// to the fallback listener when one is set; otherwise they are logged and
// counted as dropped, like failures the sink cannot store.
type Listener struct {
	sink     Sink
	table    string
	fallback buffer.ExceptionListener
	timeout  time.Duration
	clock    types.Clock
	logger   types.Logger
	metrics  types.MetricsCollector
}

// Compile-time assertion that Listener implements buffer.ExceptionListener.
var _ buffer.ExceptionListener = (*Listener)(nil)

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithListenerLogger sets the logger.
func WithListenerLogger(l types.Logger) ListenerOption {
	return func(li *Listener) {
		li.logger = l
	}
}

// WithListenerMetrics sets the metrics collector.
func WithListenerMetrics(m types.MetricsCollector) ListenerOption {
	return func(li *Listener) {
		li.metrics = m
	}
}

// WithListenerClock sets the clock used to stamp entries.
func WithListenerClock(c types.Clock) ListenerOption {
	return func(li *Listener) {
		li.clock = c
	}
}

// WithFallback sets the listener that receives failures which cannot be
// dead-lettered because their mutation is not replayable.
//
// The fallback's result becomes the result of OnException.
func WithFallback(fallback buffer.ExceptionListener) ListenerOption {
	return func(li *Listener) {
		li.fallback = fallback
	}
}

// WithListenerTimeout bounds how long one report may spend publishing.
func WithListenerTimeout(d time.Duration) ListenerOption {
	return func(li *Listener) {
		li.timeout = d
	}
}

// NewListener creates a listener that dead-letters failures of table into sink.
//
// Parameters:
//   - sink: Where failed mutations are stored
//   - table: The table the write buffer writes to
//   - opts: Optional configuration options
//
// Returns:
//   - *Listener: A new listener
func NewListener(sink Sink, table string, opts ...ListenerOption) *Listener {
	l := &Listener{
		sink:    sink,
		table:   table,
		timeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.clock == nil {
		l.clock = types.SystemClock{}
	}
	l.logger = logging.OrNop(l.logger)
	l.metrics = metrics.OrNop(l.metrics)

	return l
}

// OnException publishes each replayable failure in agg.
//
// Returns:
//   - error: The fallback listener's result for unreplayable failures, or nil
func (l *Listener) OnException(agg *types.AggregateError, b *buffer.WriteBuffer) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	now := l.clock.Now()
	dropped := 0
	var unreplayable []*types.MutationError
	for _, f := range agg.Failures {
		e := NewEntry(l.table, f, now)
		if !e.Replayable() {
			unreplayable = append(unreplayable, f)

			continue
		}
		if err := l.sink.Publish(ctx, e); err != nil {
			dropped++
			l.metrics.IncDeadLetterDropped()
			l.logger.Error("dead letter publish failed",
				"table", l.table,
				"id", e.ID.String(),
				"cause", e.Cause,
				"error", err,
			)

			continue
		}
		l.metrics.IncDeadLetterPublished()
	}

	l.logger.Warn("mutations dead-lettered",
		"table", l.table,
		"failed", agg.Len(),
		"dropped", dropped,
		"unreplayable", len(unreplayable),
	)

	if len(unreplayable) == 0 {
		return nil
	}
	if l.fallback != nil {
		return l.fallback.OnException(&types.AggregateError{Failures: unreplayable}, b)
	}
	for _, f := range unreplayable {
		l.metrics.IncDeadLetterDropped()
		l.logger.Error("mutation with server-assigned timestamps not dead-lettered",
			"table", l.table,
			"error", f.Cause,
		)
	}

	return nil
}
