package vm

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// Option configures a Collector.
type Option func(*Collector)

// WithPrefix sets the metric name prefix.
//
// Default: "bigtable"
//
// Parameters:
//   - prefix: The prefix to use for all metric names
//
// Returns:
//   - Option: A configuration option
func WithPrefix(prefix string) Option {
	return func(c *Collector) {
		c.prefix = prefix
	}
}

// WithMetricsSet sets the metrics set to use.
//
// If provided, the collector will register metrics with this set instead of
// creating a new one. The caller is responsible for exposing this set
// (e.g., via metrics.WritePrometheus or a custom handler).
//
// Parameters:
//   - set: The metrics set to use
//
// Returns:
//   - Option: A configuration option
func WithMetricsSet(set *metrics.Set) Option {
	return func(c *Collector) {
		c.set = set
	}
}

// methodMetrics holds the per-method series.
type methodMetrics struct {
	total          *metrics.Counter
	errors         *metrics.Counter
	duration       *metrics.Histogram
	retryAttempts  *metrics.Counter
	retryExhausted *metrics.Counter
}

// knownMethods get their series created up front.
var knownMethods = []types.Method{
	types.MethodMutateRow,
	types.MethodCheckAndMutateRow,
	types.MethodReadModifyWrite,
}

// Collector implements types.MetricsCollector using VictoriaMetrics.
//
// Series for the well-known data methods are pre-created at initialization
// time; other methods are created on first use.
// Thread-safe for concurrent use.
type Collector struct {
	set    *metrics.Set
	prefix string

	methods map[types.Method]*methodMetrics

	// Connection metrics
	reconnects    *metrics.Counter
	connectErrors *metrics.Counter

	// Write buffer metrics
	mutationsAdmitted *metrics.Counter
	mutationsFailed   *metrics.Counter
	mutationsRejected *metrics.Counter
	admissionWait     *metrics.Histogram
	pendingBytes      atomic.Int64
	pendingRPCs       atomic.Int64

	// Dead letter metrics
	deadLetterPublished *metrics.Counter
	deadLetterDropped   *metrics.Counter
}

// Compile-time assertion that Collector implements types.MetricsCollector.
var _ types.MetricsCollector = (*Collector)(nil)

// New creates a new VictoriaMetrics-based metrics collector.
//
// The collector creates its own metrics.Set and registers it globally.
//
// Parameters:
//   - opts: Configuration options (e.g., WithPrefix)
//
// Returns:
//   - *Collector: A new metrics collector ready for use
//
// Example:
//
//	collector := vm.New(vm.WithPrefix("myapp"))
//	session, _ := bigtable.NewSession(cfg,
//	    bigtable.WithMetrics(collector),
//	)
func New(opts ...Option) *Collector {
	c := &Collector{
		prefix:  "bigtable",
		methods: make(map[types.Method]*methodMetrics, len(knownMethods)),
	}

	for _, opt := range opts {
		opt(c)
	}

	// If no set is provided, create a new one and register it globally.
	// If a set is provided, we assume the caller manages it.
	if c.set == nil {
		c.set = metrics.NewSet()
		metrics.RegisterSet(c.set)
	}

	c.initMetrics()

	return c
}

// initMetrics pre-creates all metrics with the configured prefix.
func (c *Collector) initMetrics() {
	p := c.prefix

	for _, m := range knownMethods {
		c.methods[m] = c.newMethodMetrics(m, c.set.NewCounter, c.set.NewHistogram)
	}

	// Connection metrics
	c.reconnects = c.set.NewCounter(p + "_reconnects_total")
	c.connectErrors = c.set.NewCounter(p + "_connect_errors_total")

	// Write buffer metrics
	c.mutationsAdmitted = c.set.NewCounter(p + "_mutations_admitted_total")
	c.mutationsFailed = c.set.NewCounter(p + "_mutations_failed_total")
	c.mutationsRejected = c.set.NewCounter(p + "_mutations_rejected_total")
	c.admissionWait = c.set.NewHistogram(p + "_admission_wait_seconds")
	c.set.NewGauge(p+"_pending_bytes", func() float64 {
		return float64(c.pendingBytes.Load())
	})
	c.set.NewGauge(p+"_pending_rpcs", func() float64 {
		return float64(c.pendingRPCs.Load())
	})

	// Dead letter metrics
	c.deadLetterPublished = c.set.NewCounter(p + "_dead_letter_published_total")
	c.deadLetterDropped = c.set.NewCounter(p + "_dead_letter_dropped_total")
}

func (c *Collector) newMethodMetrics(
	method types.Method,
	counter func(string) *metrics.Counter,
	histogram func(string) *metrics.Histogram,
) *methodMetrics {
	p, name := c.prefix, method.Name()

	return &methodMetrics{
		total:          counter(fmt.Sprintf(`%s_calls_total{method="%s"}`, p, name)),
		errors:         counter(fmt.Sprintf(`%s_call_errors_total{method="%s"}`, p, name)),
		duration:       histogram(fmt.Sprintf(`%s_call_duration_seconds{method="%s"}`, p, name)),
		retryAttempts:  counter(fmt.Sprintf(`%s_retry_attempts_total{method="%s"}`, p, name)),
		retryExhausted: counter(fmt.Sprintf(`%s_retry_exhausted_total{method="%s"}`, p, name)),
	}
}

// forMethod returns the series of method, creating them on first use.
func (c *Collector) forMethod(method types.Method) *methodMetrics {
	if m, ok := c.methods[method]; ok {
		return m
	}

	return c.newMethodMetrics(method, c.set.GetOrCreateCounter, c.set.GetOrCreateHistogram)
}

// Set returns the underlying metrics set.
func (c *Collector) Set() *metrics.Set {
	return c.set
}

// Handler returns an HTTP handler that exposes metrics in Prometheus format.
//
// Example:
//
//	http.HandleFunc("/metrics", collector.Handler)
func (c *Collector) Handler(w http.ResponseWriter, _ *http.Request) {
	c.set.WritePrometheus(w)
}

// WritePrometheus writes all metrics in Prometheus format to the given writer.
//
// Parameters:
//   - w: The writer to write metrics to
func (c *Collector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}

// ----------------------
// Calls
// ----------------------

// IncCallTotal increments the call counter of method.
func (c *Collector) IncCallTotal(method types.Method) {
	c.forMethod(method).total.Inc()
}

// IncCallError increments the failed call counter of method.
func (c *Collector) IncCallError(method types.Method) {
	c.forMethod(method).errors.Inc()
}

// ObserveCallDuration records the latency of a completed call.
func (c *Collector) ObserveCallDuration(method types.Method, seconds float64) {
	c.forMethod(method).duration.Update(seconds)
}

// ----------------------
// Retries
// ----------------------

// IncRetryAttempt increments the retry counter of method.
func (c *Collector) IncRetryAttempt(method types.Method) {
	c.forMethod(method).retryAttempts.Inc()
}

// IncRetryExhausted increments the exhausted retry counter of method.
func (c *Collector) IncRetryExhausted(method types.Method) {
	c.forMethod(method).retryExhausted.Inc()
}

// ----------------------
// Connections
// ----------------------

// IncReconnect increments the reconnect counter.
func (c *Collector) IncReconnect() {
	c.reconnects.Inc()
}

// IncConnectError increments the transport creation failure counter.
func (c *Collector) IncConnectError() {
	c.connectErrors.Inc()
}

// ----------------------
// Write Buffer
// ----------------------

// IncMutationAdmitted increments the admitted mutation counter.
func (c *Collector) IncMutationAdmitted() {
	c.mutationsAdmitted.Inc()
}

// IncMutationFailed increments the failed mutation counter.
func (c *Collector) IncMutationFailed() {
	c.mutationsFailed.Inc()
}

// IncMutationRejected increments the rejected mutation counter.
func (c *Collector) IncMutationRejected() {
	c.mutationsRejected.Inc()
}

// ObserveAdmissionWait records how long a producer waited for capacity.
func (c *Collector) ObserveAdmissionWait(seconds float64) {
	c.admissionWait.Update(seconds)
}

// SetPendingBytes sets the in-flight memory gauge.
func (c *Collector) SetPendingBytes(n int64) {
	c.pendingBytes.Store(n)
}

// SetPendingRPCs sets the in-flight RPC gauge.
func (c *Collector) SetPendingRPCs(n int) {
	c.pendingRPCs.Store(int64(n))
}

// ----------------------
// Dead Letter
// ----------------------

// IncDeadLetterPublished increments the dead-lettered mutation counter.
func (c *Collector) IncDeadLetterPublished() {
	c.deadLetterPublished.Inc()
}

// IncDeadLetterDropped increments the counter of mutations the dead-letter sink could not store.
func (c *Collector) IncDeadLetterDropped() {
	c.deadLetterDropped.Inc()
}
