package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BrendanGleason/cloud-bigtable-client/internal/logging"
	"github.com/BrendanGleason/cloud-bigtable-client/internal/metrics"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// DefaultTerminationPollTimeout bounds each wait for a closing transport to terminate.
const DefaultTerminationPollTimeout = 5000 * time.Millisecond

// DefaultConnectTimeout bounds a single factory call. The channel lock is held
// while the factory runs.
const DefaultConnectTimeout = 10 * time.Second

// terminationPollInterval is how often IsTerminated is polled for transports
// that offer no termination signal.
const terminationPollInterval = 10 * time.Millisecond

// ReconnectingChannel owns one logical connection backed by at most one live transport.
//
// The transport is created lazily on the first call. A connection-level failure
// discards the transport: it is shut down in the background, never reused, and a
// fresh one is created from the factory. Callers see the same Channel contract
// throughout.
//
// ReconnectingChannel is safe for concurrent use.
type ReconnectingChannel struct {
	factory     types.TransportFactory
	endpoint    string
	classify    func(error) bool
	timeout     time.Duration
	connTimeout time.Duration
	pollTimeout time.Duration
	logger      types.Logger
	metrics     types.MetricsCollector

	mu         sync.Mutex
	state      types.ChannelState
	transport  types.Transport
	generation uint64
	// closing holds the transport that was active when Close was called, so a
	// later ShutdownNow can force it.
	closing types.Transport

	retired sync.WaitGroup
}

// Compile-time assertion that ReconnectingChannel implements types.Channel.
var _ types.Channel = (*ReconnectingChannel)(nil)

// ReconnectOption configures a ReconnectingChannel.
type ReconnectOption func(*ReconnectingChannel)

// WithEndpoint sets the endpoint reported in logs and connection errors.
//
// Parameters:
//   - endpoint: The host:port the factory connects to
//
// Returns:
//   - ReconnectOption: Configuration option
func WithEndpoint(endpoint string) ReconnectOption {
	return func(c *ReconnectingChannel) {
		c.endpoint = endpoint
	}
}

// WithConnectionClassifier sets the function that decides whether a call
// failure is connection-level.
//
// Default: types.IsConnectionError
//
// Parameters:
//   - fn: Classifier returning true for failures that require a new transport
//
// Returns:
//   - ReconnectOption: Configuration option
func WithConnectionClassifier(fn func(error) bool) ReconnectOption {
	return func(c *ReconnectingChannel) {
		if fn != nil {
			c.classify = fn
		}
	}
}

// WithCallTimeout applies a deadline to every call.
//
// Zero or negative means no timeout.
//
// Parameters:
//   - d: Per-call timeout
//
// Returns:
//   - ReconnectOption: Configuration option
func WithCallTimeout(d time.Duration) ReconnectOption {
	return func(c *ReconnectingChannel) {
		c.timeout = d
	}
}

// WithConnectTimeout bounds every transport creation, including reconnects
// triggered by a failed call.
//
// Default: 10s. Zero or negative keeps the default.
//
// Parameters:
//   - d: Maximum time one factory call may take
//
// Returns:
//   - ReconnectOption: Configuration option
func WithConnectTimeout(d time.Duration) ReconnectOption {
	return func(c *ReconnectingChannel) {
		if d > 0 {
			c.connTimeout = d
		}
	}
}

// WithTerminationPollTimeout bounds each wait attempt in Close.
//
// Default: 5s
//
// Parameters:
//   - d: Duration of a single wait attempt
//
// Returns:
//   - ReconnectOption: Configuration option
func WithTerminationPollTimeout(d time.Duration) ReconnectOption {
	return func(c *ReconnectingChannel) {
		if d > 0 {
			c.pollTimeout = d
		}
	}
}

// WithChannelLogger sets the logger.
//
// Parameters:
//   - logger: Logger implementation
//
// Returns:
//   - ReconnectOption: Configuration option
func WithChannelLogger(logger types.Logger) ReconnectOption {
	return func(c *ReconnectingChannel) {
		c.logger = logging.OrNop(logger)
	}
}

// WithChannelMetrics sets the metrics collector.
//
// Parameters:
//   - m: Metrics collector implementation
//
// Returns:
//   - ReconnectOption: Configuration option
func WithChannelMetrics(m types.MetricsCollector) ReconnectOption {
	return func(c *ReconnectingChannel) {
		c.metrics = metrics.OrNop(m)
	}
}

// NewReconnectingChannel creates a disconnected channel.
//
// No transport is created until the first call.
//
// Parameters:
//   - factory: Creates a new transport on every (re)connect
//   - opts: Optional configuration
//
// Returns:
//   - *ReconnectingChannel: A new channel in the DISCONNECTED state
//   - error: types.ErrNilTransport if factory is nil
func NewReconnectingChannel(factory types.TransportFactory, opts ...ReconnectOption) (*ReconnectingChannel, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: nil factory", types.ErrNilTransport)
	}

	c := &ReconnectingChannel{
		factory:     factory,
		classify:    types.IsConnectionError,
		connTimeout: DefaultConnectTimeout,
		pollTimeout: DefaultTerminationPollTimeout,
		logger:      logging.NewNopLogger(),
		metrics:     metrics.NewNopMetrics(),
		state:       types.StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// State returns the current connection state.
func (c *ReconnectingChannel) State() types.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Call issues req on the current transport, connecting first if needed.
//
// A failure to create the transport fails the returned future with a
// *types.ConnectionError. A connection-level failure of the call itself
// triggers a reconnect before the future completes, so a follow-up call on
// this channel already uses the new transport. If that reconnect fails too,
// its error is joined into the call's result.
//
// Parameters:
//   - ctx: Context for the call
//   - req: The request to issue
//
// Returns:
//   - *types.Future: Completes with the call's result
func (c *ReconnectingChannel) Call(ctx context.Context, req types.Request) *types.Future {
	tr, gen, err := c.acquire(ctx)
	if err != nil {
		return types.FailedFuture(err)
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	out := types.NewFuture()
	tr.Call(callCtx, req).OnComplete(func(r types.Result) {
		cancel()
		if r.Err != nil && c.classify(r.Err) {
			if err := c.reconnect(gen, r.Err); err != nil {
				r.Err = errors.Join(r.Err, err)
			}
		}
		out.CompleteWith(r)
	})

	return out
}

// acquire returns the live transport, creating one if the channel is disconnected.
func (c *ReconnectingChannel) acquire(ctx context.Context) (types.Transport, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == types.StateClosed:
		return nil, 0, types.ErrChannelClosed
	case c.transport != nil:
		return c.transport, c.generation, nil
	}

	if err := c.connectLocked(ctx); err != nil {
		return nil, 0, err
	}

	return c.transport, c.generation, nil
}

// connectLocked creates a new transport under the connect timeout. Caller must hold c.mu.
func (c *ReconnectingChannel) connectLocked(ctx context.Context) error {
	c.state = types.StateConnecting

	ctx, cancel := context.WithTimeout(ctx, c.connTimeout)
	defer cancel()

	tr, err := c.factory.Create(ctx)
	if err == nil && tr == nil {
		err = types.ErrNilTransport
	}
	if err != nil {
		c.state = types.StateDisconnected
		c.metrics.IncConnectError()
		c.logger.Warn("failed to create transport", "endpoint", c.endpoint, "error", err)

		return &types.ConnectionError{Endpoint: c.endpoint, Cause: err}
	}

	c.transport = tr
	c.generation++
	c.state = types.StateConnected
	c.logger.Debug("transport connected", "endpoint", c.endpoint, "generation", c.generation)

	return nil
}

// reconnect replaces the transport of generation gen after a connection failure.
//
// Failures reported by calls on an already replaced transport are ignored.
// A factory failure leaves the channel DISCONNECTED and is returned; the next
// call tries the factory again.
func (c *ReconnectingChannel) reconnect(gen uint64, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == types.StateClosed || gen != c.generation || c.transport == nil {
		return nil
	}

	old := c.transport
	c.transport = nil
	c.retire(old)
	c.metrics.IncReconnect()
	c.logger.Info("connection failure, reconnecting", "endpoint", c.endpoint, "error", cause)

	return c.connectLocked(context.Background())
}

// retire shuts a replaced transport down in the background.
func (c *ReconnectingChannel) retire(tr types.Transport) {
	c.retired.Go(func() {
		if err := tr.Shutdown(); err != nil {
			c.logger.Warn("failed to shut down replaced transport", "endpoint", c.endpoint, "error", err)
		}
	})
}

// Close moves the channel to CLOSED and gracefully shuts down its transport.
//
// Close blocks until the transport reports terminated. The wait proceeds in
// attempts bounded by the termination poll timeout; a cancelled ctx ends it
// with an error, after which ShutdownNow must be called to force termination.
// Calls issued after Close fail with types.ErrChannelClosed. Closing an
// already closed channel returns nil.
//
// Parameters:
//   - ctx: Bounds the total wait for termination
//
// Returns:
//   - error: Shutdown failure or the context error if the wait was interrupted
func (c *ReconnectingChannel) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.state == types.StateClosed {
		c.mu.Unlock()

		return nil
	}
	c.state = types.StateClosed
	tr := c.transport
	c.transport = nil
	c.closing = tr
	c.mu.Unlock()

	c.retired.Wait()

	if tr == nil {
		return nil
	}
	if err := tr.Shutdown(); err != nil {
		return fmt.Errorf("bigtable: shut down transport to %s: %w", c.endpoint, err)
	}

	return c.awaitTermination(ctx, tr)
}

// ShutdownNow forces the transport to stop, failing its in-flight calls.
//
// It also closes the channel if Close was never called.
//
// Returns:
//   - error: Failure reported by the transport
func (c *ReconnectingChannel) ShutdownNow() error {
	c.mu.Lock()
	c.state = types.StateClosed
	tr := c.transport
	if tr == nil {
		tr = c.closing
	}
	c.transport = nil
	c.closing = tr
	c.mu.Unlock()

	if tr == nil {
		return nil
	}

	return tr.ShutdownNow()
}

func (c *ReconnectingChannel) awaitTermination(ctx context.Context, tr types.Transport) error {
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
		terminated := waitTerminated(attemptCtx, tr)
		cancel()

		if terminated {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("bigtable: waiting for transport to %s to terminate: %w", c.endpoint, err)
		}
		c.logger.Warn("transport has not terminated yet", "endpoint", c.endpoint, "attempt", attempt, "wait", c.pollTimeout)
	}
}

// waitTerminated waits until tr terminates or ctx is done.
//
// Transports implementing types.TerminationNotifier are waited on directly;
// others are polled.
func waitTerminated(ctx context.Context, tr types.Transport) bool {
	if tr.IsTerminated() {
		return true
	}

	if n, ok := tr.(types.TerminationNotifier); ok {
		select {
		case <-n.Terminated():
			return true
		case <-ctx.Done():
			return tr.IsTerminated()
		}
	}

	ticker := time.NewTicker(terminationPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if tr.IsTerminated() {
				return true
			}
		case <-ctx.Done():
			return tr.IsTerminated()
		}
	}
}
