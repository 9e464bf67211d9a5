package deadletter

import (
	"context"
	"sync/atomic"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// Sink stores dead-lettered mutations.
type Sink interface {
	// Publish stores e. It must not block indefinitely.
	Publish(ctx context.Context, e Entry) error
}

// DefaultQueueCapacity is the default capacity of a MemorySink.
const DefaultQueueCapacity = 10000

// MemorySink is a bounded in-process dead-letter queue.
//
// Entries are lost if the process exits. Use NATSSink when failed mutations
// must survive a restart.
type MemorySink struct {
	queue  chan Entry
	closed atomic.Bool
}

// Compile-time assertion that MemorySink implements Sink.
var _ Sink = (*MemorySink)(nil)

// MemorySinkOption configures a MemorySink.
type MemorySinkOption func(*memoryConfig)

type memoryConfig struct {
	capacity int
}

// WithQueueCapacity sets the maximum number of queued entries.
//
// Parameters:
//   - n: Queue capacity (values below 1 are raised to 1)
//
// Returns:
//   - MemorySinkOption: Configuration option
func WithQueueCapacity(n int) MemorySinkOption {
	return func(c *memoryConfig) {
		c.capacity = n
	}
}

// NewMemorySink creates a new in-memory dead-letter queue.
//
// Parameters:
//   - opts: Optional configuration options
//
// Returns:
//   - *MemorySink: A new, empty sink
func NewMemorySink(opts ...MemorySinkOption) *MemorySink {
	cfg := memoryConfig{capacity: DefaultQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &MemorySink{queue: make(chan Entry, max(cfg.capacity, 1))}
}

// Publish adds e to the queue without blocking.
//
// Parameters:
//   - ctx: Context for cancellation
//   - e: The entry to store
//
// Returns:
//   - error: ErrDeadLetterFull if the queue is at capacity, ErrDeadLetterClosed
//     after Close, or the context error
func (m *MemorySink) Publish(ctx context.Context, e Entry) error {
	if m.closed.Load() {
		return types.ErrDeadLetterClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.queue <- e:
		return nil
	default:
		return types.ErrDeadLetterFull
	}
}

// Dequeue blocks until an entry is available or ctx is done.
//
// Returns:
//   - Entry: The oldest queued entry
//   - bool: false if ctx was cancelled
func (m *MemorySink) Dequeue(ctx context.Context) (Entry, bool) {
	select {
	case <-ctx.Done():
		return Entry{}, false
	case e := <-m.queue:
		return e, true
	}
}

// TryDequeue returns the oldest entry without blocking.
//
// Returns:
//   - Entry: The oldest queued entry
//   - bool: false if the queue is empty
func (m *MemorySink) TryDequeue() (Entry, bool) {
	select {
	case e := <-m.queue:
		return e, true
	default:
		return Entry{}, false
	}
}

// Len returns the number of queued entries.
func (m *MemorySink) Len() int {
	return len(m.queue)
}

// Cap returns the queue capacity.
func (m *MemorySink) Cap() int {
	return cap(m.queue)
}

// Close rejects further publishes. Queued entries stay available to
// TryDequeue and DrainAll. The channel itself is never closed so a concurrent
// Publish cannot panic.
func (m *MemorySink) Close() {
	m.closed.Store(true)
}

// IsClosed reports whether Close has been called.
func (m *MemorySink) IsClosed() bool {
	return m.closed.Load()
}

// requeue puts e back for a later attempt, even after Close.
func (m *MemorySink) requeue(e Entry) bool {
	select {
	case m.queue <- e:
		return true
	default:
		return false
	}
}

// DrainAll removes and returns every queued entry, oldest first.
func (m *MemorySink) DrainAll() []Entry {
	var entries []Entry
	for {
		select {
		case e := <-m.queue:
			entries = append(entries, e)
		default:
			return entries
		}
	}
}
