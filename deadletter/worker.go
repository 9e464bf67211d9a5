package deadletter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/BrendanGleason/cloud-bigtable-client/internal/logging"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// Resubmitter writes a dead-lettered mutation again.
type Resubmitter interface {
	Resubmit(ctx context.Context, e Entry) error
}

// ResubmitterFunc adapts a function to the Resubmitter interface.
type ResubmitterFunc func(ctx context.Context, e Entry) error

// Resubmit calls f(ctx, e).
func (f ResubmitterFunc) Resubmit(ctx context.Context, e Entry) error {
	return f(ctx, e)
}

// ChannelResubmitter reissues entries as MutateRow calls and waits for the result.
type ChannelResubmitter struct {
	ch types.Channel
}

// Compile-time assertion that ChannelResubmitter implements Resubmitter.
var _ Resubmitter = (*ChannelResubmitter)(nil)

// NewChannelResubmitter creates a resubmitter issuing calls on ch.
func NewChannelResubmitter(ch types.Channel) *ChannelResubmitter {
	return &ChannelResubmitter{ch: ch}
}

// Resubmit issues e.Mutation against e.Table and blocks until it completes.
//
// Entries that are not replayable are refused with ErrNotReplayable.
func (r *ChannelResubmitter) Resubmit(ctx context.Context, e Entry) error {
	if !e.Replayable() {
		return ErrNotReplayable
	}
	_, err := r.ch.Call(ctx, e.Request()).Wait(ctx)

	return err
}

// ErrWorkerRunning is returned by Start on a worker that is already running.
var ErrWorkerRunning = errors.New("bigtable: dead letter worker already running")

// WorkerConfig configures the dead-letter worker.
type WorkerConfig struct {
	// BatchSize is the number of entries fetched per poll (NATS only).
	// Default: 100
	BatchSize int

	// PollInterval is the wait between polls when the queue is empty.
	// Default: 100ms
	PollInterval time.Duration

	// RetryDelay is the delay before the second resubmission; it doubles
	// on every further failure.
	// Default: 100ms
	RetryDelay time.Duration

	// MaxRetryDelay caps the delay between resubmissions.
	// Default: 30 seconds
	MaxRetryDelay time.Duration

	// MaxAttempts is the number of resubmissions after which a memory-queued
	// entry is dropped. Zero retries forever. NATS workers use the sink's
	// MaxDeliver instead.
	// Default: 10
	MaxAttempts int

	// ExecuteTimeout bounds each resubmission.
	// Default: 30 seconds
	ExecuteTimeout time.Duration

	// Logger is the structured logger for worker events.
	// If nil, no logs are emitted.
	Logger types.Logger

	// OnSuccess is called after a successful resubmission (optional).
	OnSuccess func(e Entry)

	// OnError is called after a failed resubmission with its attempt number (optional).
	OnError func(e Entry, err error, attempt int)

	// OnDrop is called when an entry is abandoned (optional).
	OnDrop func(e Entry, err error)
}

// DefaultWorkerConfig returns the default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:      100,
		PollInterval:   100 * time.Millisecond,
		RetryDelay:     100 * time.Millisecond,
		MaxRetryDelay:  30 * time.Second,
		MaxAttempts:    10,
		ExecuteTimeout: 30 * time.Second,
	}
}

// WorkerOption configures a Worker.
type WorkerOption func(*WorkerConfig)

// WithBatchSize sets the number of entries fetched per poll.
func WithBatchSize(n int) WorkerOption {
	return func(c *WorkerConfig) {
		c.BatchSize = n
	}
}

// WithPollInterval sets the polling interval when the queue is empty.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.PollInterval = d
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.RetryDelay = d
	}
}

// WithMaxRetryDelay sets the maximum retry delay.
func WithMaxRetryDelay(d time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.MaxRetryDelay = d
	}
}

// WithMaxAttempts sets how many resubmissions a memory-queued entry gets.
//
// Parameters:
//   - n: Attempt limit, or 0 to retry forever
//
// Returns:
//   - WorkerOption: Configuration option
func WithMaxAttempts(n int) WorkerOption {
	return func(c *WorkerConfig) {
		c.MaxAttempts = n
	}
}

// WithExecuteTimeout sets the timeout of each resubmission.
func WithExecuteTimeout(d time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.ExecuteTimeout = d
	}
}

// WithWorkerLogger sets the logger for worker events.
func WithWorkerLogger(l types.Logger) WorkerOption {
	return func(c *WorkerConfig) {
		c.Logger = l
	}
}

// WithOnSuccess sets the success callback.
func WithOnSuccess(fn func(Entry)) WorkerOption {
	return func(c *WorkerConfig) {
		c.OnSuccess = fn
	}
}

// WithOnError sets the failure callback.
func WithOnError(fn func(Entry, error, int)) WorkerOption {
	return func(c *WorkerConfig) {
		c.OnError = fn
	}
}

// WithOnDrop sets the drop callback.
func WithOnDrop(fn func(Entry, error)) WorkerOption {
	return func(c *WorkerConfig) {
		c.OnDrop = fn
	}
}

// Worker drains a dead-letter queue by resubmitting each entry.
//
// The queue-specific loop lives in a backend; Worker owns the lifecycle.
type Worker struct {
	config   WorkerConfig
	resubmit Resubmitter
	backend  workerBackend

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// workerBackend abstracts queue-specific processing.
type workerBackend interface {
	// run processes entries until ctx is done.
	run(ctx context.Context)

	// backendType returns "memory" or "nats".
	backendType() string
}

func newWorker(resubmit Resubmitter, opts []WorkerOption) *Worker {
	config := DefaultWorkerConfig()
	for _, opt := range opts {
		opt(&config)
	}
	config.Logger = logging.OrNop(config.Logger)

	return &Worker{config: config, resubmit: resubmit}
}

// NewMemoryWorker creates a worker that drains a MemorySink.
//
// Failed entries are requeued after a capped exponential backoff and dropped
// after MaxAttempts resubmissions.
//
// Parameters:
//   - sink: The queue to consume from
//   - resubmit: Writes each entry again
//   - opts: Optional configuration options
//
// Returns:
//   - *Worker: A new, stopped worker
func NewMemoryWorker(sink *MemorySink, resubmit Resubmitter, opts ...WorkerOption) *Worker {
	w := newWorker(resubmit, opts)
	w.backend = &memoryBackend{w: w, sink: sink, attempts: make(map[uuid.UUID]int)}

	return w
}

// NewNATSWorker creates a worker that drains a NATSSink.
//
// Failed entries are redelivered by JetStream after a capped exponential
// backoff and terminated once the sink's MaxDeliver is reached.
//
// Parameters:
//   - sink: The stream to consume from
//   - resubmit: Writes each entry again
//   - opts: Optional configuration options
//
// Returns:
//   - *Worker: A new, stopped worker
func NewNATSWorker(sink *NATSSink, resubmit Resubmitter, opts ...WorkerOption) *Worker {
	w := newWorker(resubmit, opts)
	w.backend = &natsBackend{w: w, sink: sink}

	return w
}

// Start begins processing in a background goroutine.
//
// Returns:
//   - error: ErrWorkerRunning if already started
func (w *Worker) Start() error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrWorkerRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Go(func() {
		w.backend.run(ctx)
	})

	return nil
}

// Stop signals the worker to stop and waits for the current entry to finish.
func (w *Worker) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}

	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

// IsRunning reports whether the worker is running.
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

// BackendType returns the type of backend being used ("memory" or "nats").
func (w *Worker) BackendType() string {
	return w.backend.backendType()
}

// execute resubmits e once under ExecuteTimeout.
func (w *Worker) execute(ctx context.Context, e Entry) error {
	ctx, cancel := context.WithTimeout(ctx, w.config.ExecuteTimeout)
	defer cancel()

	return w.resubmit.Resubmit(ctx, e)
}

func (w *Worker) succeeded(e Entry, attempt int) {
	w.config.Logger.Debug("dead letter entry resubmitted",
		"id", e.ID.String(),
		"table", e.Table,
		"attempt", attempt,
	)
	if w.config.OnSuccess != nil {
		w.config.OnSuccess(e)
	}
}

func (w *Worker) failed(e Entry, err error, attempt int) {
	w.config.Logger.Warn("dead letter resubmission failed",
		"id", e.ID.String(),
		"table", e.Table,
		"attempt", attempt,
		"error", err,
	)
	if w.config.OnError != nil {
		w.config.OnError(e, err, attempt)
	}
}

func (w *Worker) dropped(e Entry, err error) {
	w.config.Logger.Error("dead letter entry dropped",
		"id", e.ID.String(),
		"table", e.Table,
		"error", err,
	)
	if w.config.OnDrop != nil {
		w.config.OnDrop(e, err)
	}
}

// sleep waits for d or ctx, reporting whether the full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// calculateBackoff returns retryDelay * 2^(attempt-1), capped at maxRetryDelay.
func calculateBackoff(attempt int, retryDelay, maxRetryDelay time.Duration) time.Duration {
	delay := retryDelay

	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	return delay
}

// memoryBackend consumes a MemorySink on a single goroutine.
type memoryBackend struct {
	w    *Worker
	sink *MemorySink

	// attempts counts resubmissions per entry. Only touched by run.
	attempts map[uuid.UUID]int
}

func (b *memoryBackend) backendType() string {
	return "memory"
}

func (b *memoryBackend) run(ctx context.Context) {
	cfg := &b.w.config

	for ctx.Err() == nil {
		e, ok := b.sink.TryDequeue()
		if !ok {
			sleep(ctx, cfg.PollInterval)

			continue
		}

		if !e.Replayable() {
			b.w.dropped(e, ErrNotReplayable)

			continue
		}

		b.attempts[e.ID]++
		attempt := b.attempts[e.ID]

		err := b.w.execute(ctx, e)
		if errors.Is(err, ErrNotReplayable) {
			delete(b.attempts, e.ID)
			b.w.dropped(e, err)

			continue
		}
		if err == nil {
			delete(b.attempts, e.ID)
			b.w.succeeded(e, attempt)

			continue
		}
		b.w.failed(e, err, attempt)

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			delete(b.attempts, e.ID)
			b.w.dropped(e, err)

			continue
		}

		// On stop the entry goes straight back so it is not lost.
		sleep(ctx, calculateBackoff(attempt, cfg.RetryDelay, cfg.MaxRetryDelay))
		if !b.sink.requeue(e) {
			delete(b.attempts, e.ID)
			b.w.dropped(e, types.ErrDeadLetterFull)
		}
	}
}

// natsBackend consumes a NATSSink; JetStream owns redelivery.
type natsBackend struct {
	w    *Worker
	sink *NATSSink
}

func (b *natsBackend) backendType() string {
	return "nats"
}

func (b *natsBackend) run(ctx context.Context) {
	cfg := &b.w.config

	for ctx.Err() == nil {
		deliveries, err := b.sink.Fetch(ctx, cfg.BatchSize)
		if err != nil {
			if errors.Is(err, types.ErrDeadLetterClosed) {
				return
			}
			cfg.Logger.Warn("dead letter fetch failed", "error", err)
			sleep(ctx, cfg.PollInterval)

			continue
		}

		for _, d := range deliveries {
			b.process(ctx, d)
		}
	}
}

func (b *natsBackend) process(ctx context.Context, d *Delivery) {
	cfg := &b.w.config
	attempt := d.NumDelivered

	if !d.Entry.Replayable() {
		_ = d.Drop()
		b.w.dropped(d.Entry, ErrNotReplayable)

		return
	}

	err := b.w.execute(ctx, d.Entry)
	if errors.Is(err, ErrNotReplayable) {
		_ = d.Drop()
		b.w.dropped(d.Entry, err)

		return
	}
	if err == nil {
		if ackErr := d.Ack(); ackErr != nil {
			cfg.Logger.Warn("dead letter ack failed", "id", d.Entry.ID.String(), "error", ackErr)
		}
		b.w.succeeded(d.Entry, attempt)

		return
	}
	b.w.failed(d.Entry, err, attempt)

	if attempt >= b.sink.MaxDeliver() {
		_ = d.Drop()
		b.w.dropped(d.Entry, err)

		return
	}
	if nakErr := d.Retry(calculateBackoff(attempt, cfg.RetryDelay, cfg.MaxRetryDelay)); nakErr != nil {
		cfg.Logger.Warn("dead letter nak failed", "id", d.Entry.ID.String(), "error", nakErr)
	}
}
