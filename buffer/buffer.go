package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BrendanGleason/cloud-bigtable-client/internal/logging"
	"github.com/BrendanGleason/cloud-bigtable-client/internal/metrics"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// Default flow-control ceilings.
const (
	DefaultMaxHeapBytes    int64 = 32 << 20
	DefaultMaxInFlightRPCs       = 50
)

// Option configures a WriteBuffer.
type Option func(*WriteBuffer)

// WithMaxHeapBytes sets the ceiling on the estimated memory of in-flight mutations.
//
// Default: 32 MiB
//
// Parameters:
//   - n: Maximum summed mutation size in bytes
//
// Returns:
//   - Option: Configuration option
func WithMaxHeapBytes(n int64) Option {
	return func(b *WriteBuffer) {
		b.maxHeapBytes = n
	}
}

// WithMaxInFlightRPCs sets the ceiling on concurrently outstanding mutations.
//
// Default: 50
//
// Parameters:
//   - n: Maximum number of in-flight RPCs
//
// Returns:
//   - Option: Configuration option
func WithMaxInFlightRPCs(n int) Option {
	return func(b *WriteBuffer) {
		b.maxInFlightRPCs = n
	}
}

// WithExceptionListener sets the listener that receives aggregated failures.
//
// Default: RethrowListener
//
// Parameters:
//   - l: Exception listener
//
// Returns:
//   - Option: Configuration option
func WithExceptionListener(l ExceptionListener) Option {
	return func(b *WriteBuffer) {
		if l != nil {
			b.listener = l
		}
	}
}

// WithReportOnMutate also reports accumulated failures at the start of every Mutate.
//
// Default: false (failures are reported by Flush and Close only)
//
// Parameters:
//   - enabled: Whether Mutate consults the listener
//
// Returns:
//   - Option: Configuration option
func WithReportOnMutate(enabled bool) Option {
	return func(b *WriteBuffer) {
		b.reportOnMutate = enabled
	}
}

// WithLogger sets the logger.
//
// Parameters:
//   - logger: Logger implementation
//
// Returns:
//   - Option: Configuration option
func WithLogger(logger types.Logger) Option {
	return func(b *WriteBuffer) {
		b.logger = logging.OrNop(logger)
	}
}

// WithMetrics sets the metrics collector.
//
// Parameters:
//   - m: Metrics collector implementation
//
// Returns:
//   - Option: Configuration option
func WithMetrics(m types.MetricsCollector) Option {
	return func(b *WriteBuffer) {
		b.metrics = metrics.OrNop(m)
	}
}

// WriteBuffer is an asynchronous mutation sink with backpressure.
//
// Mutate admits a mutation once it fits under the memory and in-flight limits,
// issues it, and returns without waiting for the RPC. Failures are collected
// and reported together by Flush or Close through the ExceptionListener.
//
// WriteBuffer is safe for concurrent use. Mutations are issued in the order
// Mutate was called.
type WriteBuffer struct {
	executor        Executor
	flow            *FlowController
	listener        ExceptionListener
	reportOnMutate  bool
	maxHeapBytes    int64
	maxInFlightRPCs int
	logger          types.Logger
	metrics         types.MetricsCollector

	closed atomic.Bool
	// submitMu serializes admission and issue so issue order matches call order.
	submitMu sync.Mutex

	excMu         sync.Mutex
	exceptions    []*types.MutationError
	hasExceptions atomic.Bool
}

// New creates a write buffer issuing mutations through executor.
//
// Parameters:
//   - executor: Issues one RPC per mutation
//   - opts: Optional configuration
//
// Returns:
//   - *WriteBuffer: A new, open buffer
//   - error: types.ErrInvalidConfig if executor is nil or a limit is not positive
func New(executor Executor, opts ...Option) (*WriteBuffer, error) {
	if executor == nil {
		return nil, fmt.Errorf("%w: nil executor", types.ErrInvalidConfig)
	}

	b := &WriteBuffer{
		executor:        executor,
		listener:        RethrowListener{},
		maxHeapBytes:    DefaultMaxHeapBytes,
		maxInFlightRPCs: DefaultMaxInFlightRPCs,
		logger:          logging.NewNopLogger(),
		metrics:         metrics.NewNopMetrics(),
	}
	for _, opt := range opts {
		opt(b)
	}

	var errs []error
	if b.maxHeapBytes <= 0 {
		errs = append(errs, fmt.Errorf("max heap bytes must be positive, got %d", b.maxHeapBytes))
	}
	if b.maxInFlightRPCs <= 0 {
		errs = append(errs, fmt.Errorf("max in-flight RPCs must be positive, got %d", b.maxInFlightRPCs))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidConfig, errors.Join(errs...))
	}

	b.flow = NewFlowController(b.maxHeapBytes, b.maxInFlightRPCs)

	return b, nil
}

// Mutate submits m for asynchronous delivery.
//
// Mutate blocks while the buffer is at its memory or in-flight limit, then
// issues m and returns without waiting for the RPC to complete. An invalid
// mutation is rejected before it takes any capacity.
//
// Parameters:
//   - ctx: Cancels the wait for capacity; the RPC keeps its values but not its
//     cancellation, so it outlives Mutate
//   - m: The mutation; must not be modified afterwards
//
// Returns:
//   - error: types.ErrUnsupportedMutation, types.ErrBufferClosed, a context
//     error, an issue failure, or the listener's result when reporting on Mutate
func (b *WriteBuffer) Mutate(ctx context.Context, m *types.Mutation) error {
	if b.closed.Load() {
		return types.ErrBufferClosed
	}
	if b.reportOnMutate {
		if err := b.handleExceptions(); err != nil {
			return err
		}
	}
	if err := m.Validate(); err != nil {
		b.metrics.IncMutationRejected()

		return err
	}
	size := m.HeapSize()

	b.submitMu.Lock()
	defer b.submitMu.Unlock()

	if b.closed.Load() {
		return types.ErrBufferClosed
	}

	id, err := b.admit(ctx, size)
	if err != nil {
		return err
	}

	fut, err := b.executor.IssueRequest(context.WithoutCancel(ctx), m)
	if err == nil && fut == nil {
		err = errors.New("executor returned no future")
	}
	if err != nil {
		b.flow.Release(id)
		b.updateGauges()

		return fmt.Errorf("bigtable: issue mutation: %w", err)
	}

	fut.OnComplete(func(r types.Result) {
		b.complete(id, m, r.Err)
	})

	return nil
}

func (b *WriteBuffer) admit(ctx context.Context, size int64) (uint64, error) {
	id, ok := b.flow.TryAcquire(size)
	if !ok {
		b.logger.Debug("write buffer full, waiting for capacity",
			"heap_bytes", b.flow.HeapSize(), "in_flight", b.flow.InFlight(), "size", size)

		start := time.Now()
		var err error
		id, err = b.flow.Acquire(ctx, size)
		b.metrics.ObserveAdmissionWait(time.Since(start).Seconds())
		if err != nil {
			return 0, fmt.Errorf("bigtable: waiting for write capacity: %w", err)
		}
	}

	b.metrics.IncMutationAdmitted()
	b.updateGauges()

	return id, nil
}

// complete runs when the RPC of an admitted mutation finishes.
//
// The failure is recorded before capacity is released so a Flush that sees the
// buffer drained also sees every failure.
func (b *WriteBuffer) complete(id uint64, m *types.Mutation, err error) {
	if err != nil {
		b.metrics.IncMutationFailed()
		b.excMu.Lock()
		b.exceptions = append(b.exceptions, &types.MutationError{Mutation: m, Cause: err})
		b.hasExceptions.Store(true)
		b.excMu.Unlock()
	}

	if !b.flow.Release(id) {
		b.logger.Warn("completion for unknown pending mutation", "id", id)
	}
	b.updateGauges()
}

func (b *WriteBuffer) updateGauges() {
	b.metrics.SetPendingBytes(b.flow.HeapSize())
	b.metrics.SetPendingRPCs(b.flow.InFlight())
}

// Flush waits until every in-flight mutation has completed, then reports failures.
//
// If any mutation failed since the last report, the failures are handed to the
// ExceptionListener as one *types.AggregateError and the list is cleared; the
// listener's return value is returned. A later Flush with no new failures
// returns nil.
//
// Parameters:
//   - ctx: Cancels the wait for in-flight mutations
//
// Returns:
//   - error: The listener's result, or a context error
func (b *WriteBuffer) Flush(ctx context.Context) error {
	if err := b.flow.WaitDrained(ctx); err != nil {
		return fmt.Errorf("bigtable: flush: %w", err)
	}

	return b.handleExceptions()
}

// Close stops accepting mutations and flushes.
//
// In-flight RPCs are not cancelled; Close waits for them. Calling Close again
// flushes again.
//
// Parameters:
//   - ctx: Cancels the wait for in-flight mutations
//
// Returns:
//   - error: Same as Flush
func (b *WriteBuffer) Close(ctx context.Context) error {
	b.closed.Store(true)

	b.submitMu.Lock()
	b.submitMu.Unlock() //nolint:staticcheck // waits out a Mutate that passed the closed check

	return b.Flush(ctx)
}

// handleExceptions hands accumulated failures to the listener.
func (b *WriteBuffer) handleExceptions() error {
	if !b.hasExceptions.Load() {
		return nil
	}

	b.excMu.Lock()
	failures := b.exceptions
	b.exceptions = nil
	b.hasExceptions.Store(false)
	b.excMu.Unlock()

	if len(failures) == 0 {
		return nil
	}

	return b.listener.OnException(&types.AggregateError{Failures: failures}, b)
}

// HasInflightRequests reports whether any admitted mutation is still pending.
func (b *WriteBuffer) HasInflightRequests() bool {
	return b.flow.HasInflight()
}

// HeapSize returns the estimated memory of in-flight mutations.
func (b *WriteBuffer) HeapSize() int64 {
	return b.flow.HeapSize()
}

// InFlight returns the number of in-flight mutations.
func (b *WriteBuffer) InFlight() int {
	return b.flow.InFlight()
}

// PendingExceptions returns the number of failures not yet reported.
func (b *WriteBuffer) PendingExceptions() int {
	b.excMu.Lock()
	defer b.excMu.Unlock()

	return len(b.exceptions)
}

// IsClosed reports whether Close has been called.
func (b *WriteBuffer) IsClosed() bool {
	return b.closed.Load()
}
