package bigtable

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	grpcadapter "github.com/BrendanGleason/cloud-bigtable-client/adapter/grpc"
	"github.com/BrendanGleason/cloud-bigtable-client/buffer"
	"github.com/BrendanGleason/cloud-bigtable-client/callstatus"
	"github.com/BrendanGleason/cloud-bigtable-client/channel"
	"github.com/BrendanGleason/cloud-bigtable-client/internal/scheduler"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// Session owns the connections to one endpoint and the channel stack built on them.
//
// Calls flow through, outermost first:
//
//	metrics -> post-retry tally -> retrying channel -> pre-retry tally -> pool -> reconnecting channels
//
// The retrying layer is absent when Config.Retry.Enabled is false.
// Session is safe for concurrent use.
type Session struct {
	cfg  Config
	opts sessionOptions

	pool      *channel.Pool
	sched     *scheduler.Scheduler
	retrying  *channel.RetryingChannel
	preRetry  *callstatus.Tally
	postRetry *callstatus.Tally
	data      types.Channel

	mu      sync.Mutex
	closed  bool
	buffers []*buffer.WriteBuffer
}

// NewSession validates cfg and builds the channel stack.
//
// No connection is opened until the first call.
//
// Parameters:
//   - cfg: Session configuration
//   - opts: Optional dependencies
//
// Returns:
//   - *Session: A ready session
//   - error: Validation error wrapping types.ErrInvalidConfig
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultSessionOptions()
	for _, opt := range opts {
		opt(&o)
	}

	addr, err := cfg.Address()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}

	factory := o.factory
	if factory == nil {
		factory, err = grpcadapter.NewFactory(grpcadapter.FactoryConfig{
			Endpoint:   addr,
			OverrideIP: net.ParseIP(cfg.OverrideEndpointIP),
			UserAgent:  cfg.UserAgent,
		})
		if err != nil {
			return nil, err
		}
	}

	members := make([]channel.Member, 0, cfg.ChannelCount)
	for range cfg.ChannelCount {
		ch, err := channel.NewReconnectingChannel(factory,
			channel.WithEndpoint(addr),
			channel.WithCallTimeout(cfg.CallTimeout()),
			channel.WithChannelLogger(o.logger),
			channel.WithChannelMetrics(o.metrics),
		)
		if err != nil {
			return nil, err
		}
		members = append(members, ch)
	}

	pool, err := channel.NewPool(members...)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:      cfg,
		opts:     o,
		pool:     pool,
		preRetry: callstatus.NewTally(pool, callstatus.PreRetry),
	}

	var next types.Channel = s.preRetry
	if cfg.Retry.Enabled {
		s.sched = scheduler.New(o.retryWorkers)
		s.retrying, err = channel.NewRetryingChannel(s.preRetry,
			channel.WithPredicates(o.predicates),
			channel.WithBackoff(cfg.Retry.Backoff()),
			channel.WithScheduler(s.sched),
			channel.WithClock(o.clock),
			channel.WithRetryLogger(o.logger),
			channel.WithRetryMetrics(o.metrics),
		)
		if err != nil {
			s.sched.Close()

			return nil, err
		}
		next = s.retrying
	}

	s.postRetry = callstatus.NewTally(next, callstatus.PostRetry)
	s.data = channel.NewInstrumented(s.postRetry, o.metrics)

	o.logger.Info("bigtable session created",
		"endpoint", addr,
		"channels", cfg.ChannelCount,
		"retries", cfg.Retry.Enabled,
	)

	return s, nil
}

// Config returns the validated configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// DataChannel returns the channel for data calls.
//
// Calls on it after Close fail through the closed reconnecting channels.
func (s *Session) DataChannel() types.Channel {
	return s.data
}

// CallStatus returns the pre-retry and post-retry tallies.
func (s *Session) CallStatus() (preRetry, postRetry *callstatus.Tally) {
	return s.preRetry, s.postRetry
}

// NewWriteBuffer creates a write buffer for table on the data channel.
//
// The buffer starts with the session's flow-control limits, logger and
// metrics; opts are applied after them. The session closes the buffer on Close.
//
// Parameters:
//   - table: Fully qualified table name
//   - opts: Buffer options overriding the session defaults
//
// Returns:
//   - *buffer.WriteBuffer: A new buffer
//   - error: types.ErrSessionClosed, or a buffer validation error
func (s *Session) NewWriteBuffer(table string, opts ...buffer.Option) (*buffer.WriteBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, types.ErrSessionClosed
	}

	base := []buffer.Option{
		buffer.WithMaxHeapBytes(s.cfg.MaxHeapBytes),
		buffer.WithMaxInFlightRPCs(s.cfg.MaxInFlightRPCs),
		buffer.WithLogger(s.opts.logger),
		buffer.WithMetrics(s.opts.metrics),
	}

	b, err := buffer.New(buffer.NewChannelExecutor(s.data, table), append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	s.buffers = append(s.buffers, b)

	return b, nil
}

// Close shuts the session down in order: write buffers are flushed, the retry
// scheduler is stopped, the channels are closed and the call status report is
// written.
//
// Every step runs even if an earlier one fails; all failures are joined.
// When ctx has no deadline, the session's close timeout applies.
//
// Parameters:
//   - ctx: Bounds the flush and the wait for connection termination
//
// Returns:
//   - error: Joined shutdown errors, or nil
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return nil
	}
	s.closed = true
	buffers := s.buffers
	s.buffers = nil
	s.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.closeTimeout)
		defer cancel()
	}

	var errs []error
	for _, b := range buffers {
		if err := b.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("write buffer: %w", err))
		}
	}

	if s.retrying != nil {
		s.retrying.Close()
		s.sched.Close()
	}

	if err := s.pool.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	if s.cfg.CallStatusReportPath != "" {
		if err := callstatus.WriteReport(s.cfg.CallStatusReportPath, s.preRetry, s.postRetry); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		s.opts.logger.Error("bigtable session closed with errors", "error", err)
	} else {
		s.opts.logger.Info("bigtable session closed")
	}

	return err
}

// ShutdownNow stops retries and forces every connection closed, failing
// in-flight calls. Write buffers are not flushed.
//
// Returns:
//   - error: Joined transport shutdown errors, or nil
func (s *Session) ShutdownNow() error {
	s.mu.Lock()
	s.closed = true
	s.buffers = nil
	s.mu.Unlock()

	if s.sched != nil {
		s.sched.Close()
	}

	return s.pool.ShutdownNow()
}
