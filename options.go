package bigtable

import (
	"time"

	"github.com/BrendanGleason/cloud-bigtable-client/internal/logging"
	"github.com/BrendanGleason/cloud-bigtable-client/internal/metrics"
	"github.com/BrendanGleason/cloud-bigtable-client/internal/scheduler"
	"github.com/BrendanGleason/cloud-bigtable-client/policy"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// DefaultCloseTimeout bounds Close when the caller's context has no deadline.
const DefaultCloseTimeout = 30 * time.Second

// sessionOptions holds the dependencies of a Session that are not plain settings.
type sessionOptions struct {
	logger       types.Logger
	metrics      types.MetricsCollector
	factory      types.TransportFactory
	predicates   policy.MethodPredicates
	retryWorkers int
	closeTimeout time.Duration
	clock        types.Clock
}

func defaultSessionOptions() sessionOptions {
	return sessionOptions{
		logger:       logging.NewNopLogger(),
		metrics:      metrics.NewNopMetrics(),
		predicates:   policy.DefaultMethodPredicates(),
		retryWorkers: scheduler.DefaultWorkers,
		closeTimeout: DefaultCloseTimeout,
		clock:        types.SystemClock{},
	}
}

// Option configures a Session.
type Option func(*sessionOptions)

// WithLogger sets the logger.
//
// If not set, a no-op logger is used.
// Use contrib/logging/zerolog.New() for a zerolog backend.
//
// Parameters:
//   - logger: Logger implementation
//
// Returns:
//   - Option: Configuration option
func WithLogger(logger types.Logger) Option {
	return func(o *sessionOptions) {
		o.logger = logging.OrNop(logger)
	}
}

// WithMetrics sets the metrics collector.
//
// If not set, a no-op collector is used that discards all metrics.
// Use contrib/metrics/vm.New() for VictoriaMetrics integration.
//
// Parameters:
//   - collector: The metrics collector implementation
//
// Returns:
//   - Option: Configuration option
//
// Example:
//
//	collector := vm.New(vm.WithPrefix("ingest"))
//	session, err := bigtable.NewSession(cfg, bigtable.WithMetrics(collector))
func WithMetrics(collector types.MetricsCollector) Option {
	return func(o *sessionOptions) {
		o.metrics = metrics.OrNop(collector)
	}
}

// WithTransportFactory replaces the default gRPC transport factory.
//
// Every channel of the pool creates its transports from factory, e.g. a
// adapter/cql Factory for a Cassandra-compatible backend.
//
// Parameters:
//   - factory: Creates one transport per (re)connect
//
// Returns:
//   - Option: Configuration option
func WithTransportFactory(factory types.TransportFactory) Option {
	return func(o *sessionOptions) {
		o.factory = factory
	}
}

// WithRetryPredicates replaces the per-method retry eligibility rules.
//
// Default: policy.DefaultMethodPredicates()
func WithRetryPredicates(p policy.MethodPredicates) Option {
	return func(o *sessionOptions) {
		if p != nil {
			o.predicates = p.Clone()
		}
	}
}

// WithRetryWorkers sets the number of goroutines that fire retry timers.
//
// Default: 4
func WithRetryWorkers(n int) Option {
	return func(o *sessionOptions) {
		if n > 0 {
			o.retryWorkers = n
		}
	}
}

// WithCloseTimeout bounds Close when its context carries no deadline.
//
// Default: 30s
func WithCloseTimeout(d time.Duration) Option {
	return func(o *sessionOptions) {
		if d > 0 {
			o.closeTimeout = d
		}
	}
}

// WithClock sets the clock used for retry backoff.
func WithClock(clock types.Clock) Option {
	return func(o *sessionOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}
