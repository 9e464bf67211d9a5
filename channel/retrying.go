package channel

import (
	"context"
	"fmt"

	"github.com/BrendanGleason/cloud-bigtable-client/internal/logging"
	"github.com/BrendanGleason/cloud-bigtable-client/internal/metrics"
	"github.com/BrendanGleason/cloud-bigtable-client/internal/scheduler"
	"github.com/BrendanGleason/cloud-bigtable-client/policy"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// RetryingChannel resubmits failed calls that are safe to repeat.
//
// A call is retried only if its method has a registered predicate that accepts
// the request and the failure is transient. Resubmissions run on a dedicated
// scheduler after an exponential backoff; once the elapsed-time budget is spent
// the last failure is returned wrapped in *types.RetryError. Every other call
// is issued exactly once.
type RetryingChannel struct {
	next       types.Channel
	predicates policy.MethodPredicates
	backoff    policy.BackoffConfig
	transient  func(error) bool
	sched      *scheduler.Scheduler
	ownsSched  bool
	clock      types.Clock
	logger     types.Logger
	metrics    types.MetricsCollector
}

// Compile-time assertion that RetryingChannel implements types.Channel.
var _ types.Channel = (*RetryingChannel)(nil)

// RetryOption configures a RetryingChannel.
type RetryOption func(*RetryingChannel)

// WithPredicates sets the per-method retry predicates.
//
// Default: policy.DefaultMethodPredicates()
//
// Parameters:
//   - p: Method to predicate map; methods not present are never retried
//
// Returns:
//   - RetryOption: Configuration option
func WithPredicates(p policy.MethodPredicates) RetryOption {
	return func(c *RetryingChannel) {
		if p != nil {
			c.predicates = p.Clone()
		}
	}
}

// WithBackoff sets the backoff policy.
//
// Default: policy.DefaultBackoffConfig()
//
// Parameters:
//   - cfg: Backoff timing
//
// Returns:
//   - RetryOption: Configuration option
func WithBackoff(cfg policy.BackoffConfig) RetryOption {
	return func(c *RetryingChannel) {
		c.backoff = cfg
	}
}

// WithTransientClassifier sets the function that decides whether a failure is
// worth retrying.
//
// Default: policy.IsTransient
//
// Parameters:
//   - fn: Returns true for retryable failures
//
// Returns:
//   - RetryOption: Configuration option
func WithTransientClassifier(fn func(error) bool) RetryOption {
	return func(c *RetryingChannel) {
		if fn != nil {
			c.transient = fn
		}
	}
}

// WithScheduler runs retries on a shared scheduler.
//
// The caller keeps ownership and must close it. Without this option the
// channel starts its own scheduler with scheduler.DefaultWorkers workers and
// closes it in Close.
//
// Parameters:
//   - s: The retry scheduler
//
// Returns:
//   - RetryOption: Configuration option
func WithScheduler(s *scheduler.Scheduler) RetryOption {
	return func(c *RetryingChannel) {
		c.sched = s
	}
}

// WithClock sets the time source of the elapsed-time budget.
//
// Parameters:
//   - clock: Time source
//
// Returns:
//   - RetryOption: Configuration option
func WithClock(clock types.Clock) RetryOption {
	return func(c *RetryingChannel) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithRetryLogger sets the logger.
//
// Parameters:
//   - logger: Logger implementation
//
// Returns:
//   - RetryOption: Configuration option
func WithRetryLogger(logger types.Logger) RetryOption {
	return func(c *RetryingChannel) {
		c.logger = logging.OrNop(logger)
	}
}

// WithRetryMetrics sets the metrics collector.
//
// Parameters:
//   - m: Metrics collector implementation
//
// Returns:
//   - RetryOption: Configuration option
func WithRetryMetrics(m types.MetricsCollector) RetryOption {
	return func(c *RetryingChannel) {
		c.metrics = metrics.OrNop(m)
	}
}

// NewRetryingChannel wraps next with retry handling.
//
// Parameters:
//   - next: The channel calls are issued on
//   - opts: Optional configuration
//
// Returns:
//   - *RetryingChannel: A new retrying channel
//   - error: Validation error for a nil channel or an invalid backoff policy
func NewRetryingChannel(next types.Channel, opts ...RetryOption) (*RetryingChannel, error) {
	if next == nil {
		return nil, fmt.Errorf("%w: nil channel", types.ErrInvalidConfig)
	}

	c := &RetryingChannel{
		next:       next,
		predicates: policy.DefaultMethodPredicates(),
		backoff:    policy.DefaultBackoffConfig(),
		transient:  policy.IsTransient,
		clock:      types.SystemClock{},
		logger:     logging.NewNopLogger(),
		metrics:    metrics.NewNopMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.backoff.Validate(); err != nil {
		return nil, err
	}
	if c.sched == nil {
		c.sched = scheduler.New(scheduler.DefaultWorkers)
		c.ownsSched = true
	}

	return c, nil
}

// Call issues req, retrying transient failures when req is eligible.
//
// Parameters:
//   - ctx: Context for every attempt; a done context stops further retries
//   - req: The request to issue
//
// Returns:
//   - *types.Future: Completes with the first success or the terminal failure
func (c *RetryingChannel) Call(ctx context.Context, req types.Request) *types.Future {
	if !c.predicates.Eligible(req) {
		return c.next.Call(ctx, req)
	}

	a := &retryAttempt{
		c:       c,
		ctx:     ctx,
		req:     req,
		out:     types.NewFuture(),
		backoff: policy.NewBackoff(c.backoff, c.clock),
	}
	a.issue()

	return a.out
}

// Close stops the scheduler if the channel owns it.
//
// Retries still waiting for their backoff fail with their last error.
func (c *RetryingChannel) Close() {
	if c.ownsSched {
		c.sched.Close()
	}
}

// retryAttempt carries the state of one logical call across its attempts.
type retryAttempt struct {
	c        *RetryingChannel
	ctx      context.Context
	req      types.Request
	out      *types.Future
	backoff  *policy.Backoff
	attempts int
}

func (a *retryAttempt) issue() {
	a.attempts++
	a.c.next.Call(a.ctx, a.req).OnComplete(a.handle)
}

func (a *retryAttempt) handle(r types.Result) {
	if r.Err == nil || !a.c.transient(r.Err) || a.ctx.Err() != nil {
		a.out.CompleteWith(r)

		return
	}

	method := a.req.Method
	delay, ok := a.backoff.Next()
	if !ok {
		a.c.metrics.IncRetryExhausted(method)
		a.c.logger.Warn("retry budget exhausted",
			"method", method.Name(), "attempts", a.attempts, "elapsed", a.backoff.Elapsed(), "error", r.Err)
		a.out.Complete(nil, a.terminal(r.Err))

		return
	}

	a.c.metrics.IncRetryAttempt(method)
	a.c.logger.Debug("retrying call",
		"method", method.Name(), "attempt", a.attempts+1, "delay", delay, "error", r.Err)

	scheduled := a.c.sched.Schedule(delay, a.issue, func(err error) {
		a.out.Complete(nil, a.terminal(fmt.Errorf("%w (retry abandoned: %w)", r.Err, err)))
	})
	if !scheduled {
		a.out.Complete(nil, a.terminal(fmt.Errorf("%w (retry abandoned: %w)", r.Err, scheduler.ErrClosed)))
	}
}

func (a *retryAttempt) terminal(cause error) error {
	return &types.RetryError{
		Method:   a.req.Method,
		Attempts: a.attempts,
		Elapsed:  a.backoff.Elapsed(),
		Cause:    cause,
	}
}
