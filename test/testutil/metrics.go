package testutil

import (
	"sync"
	"sync/atomic"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// TestMetricsCollector is a test implementation of types.MetricsCollector
// that tracks method calls for assertion.
type TestMetricsCollector struct {
	mu sync.RWMutex

	// Calls
	CallTotal    map[types.Method]int64
	CallErrors   map[types.Method]int64
	CallDuration map[types.Method][]float64

	// Retries
	RetryAttempts  map[types.Method]int64
	RetryExhausted map[types.Method]int64

	// Write buffer
	AdmissionWaits []float64
	PendingBytes   int64
	PendingRPCs    int

	reconnects        atomic.Int64
	connectErrors     atomic.Int64
	admitted          atomic.Int64
	failed            atomic.Int64
	rejected          atomic.Int64
	deadLetterPublish atomic.Int64
	deadLetterDropped atomic.Int64
}

// Compile-time assertion that TestMetricsCollector implements types.MetricsCollector.
var _ types.MetricsCollector = (*TestMetricsCollector)(nil)

// NewTestMetricsCollector creates a new test metrics collector.
func NewTestMetricsCollector() *TestMetricsCollector {
	return &TestMetricsCollector{
		CallTotal:      make(map[types.Method]int64),
		CallErrors:     make(map[types.Method]int64),
		CallDuration:   make(map[types.Method][]float64),
		RetryAttempts:  make(map[types.Method]int64),
		RetryExhausted: make(map[types.Method]int64),
	}
}

func (c *TestMetricsCollector) IncCallTotal(method types.Method) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallTotal[method]++
}

func (c *TestMetricsCollector) IncCallError(method types.Method) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallErrors[method]++
}

func (c *TestMetricsCollector) ObserveCallDuration(method types.Method, seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallDuration[method] = append(c.CallDuration[method], seconds)
}

func (c *TestMetricsCollector) IncRetryAttempt(method types.Method) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RetryAttempts[method]++
}

func (c *TestMetricsCollector) IncRetryExhausted(method types.Method) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RetryExhausted[method]++
}

func (c *TestMetricsCollector) IncReconnect()        { c.reconnects.Add(1) }
func (c *TestMetricsCollector) IncConnectError()     { c.connectErrors.Add(1) }
func (c *TestMetricsCollector) IncMutationAdmitted() { c.admitted.Add(1) }
func (c *TestMetricsCollector) IncMutationFailed()   { c.failed.Add(1) }
func (c *TestMetricsCollector) IncMutationRejected() { c.rejected.Add(1) }

func (c *TestMetricsCollector) ObserveAdmissionWait(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AdmissionWaits = append(c.AdmissionWaits, seconds)
}

func (c *TestMetricsCollector) SetPendingBytes(bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PendingBytes = bytes
}

func (c *TestMetricsCollector) SetPendingRPCs(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PendingRPCs = count
}

func (c *TestMetricsCollector) IncDeadLetterPublished() { c.deadLetterPublish.Add(1) }
func (c *TestMetricsCollector) IncDeadLetterDropped()   { c.deadLetterDropped.Add(1) }

// ----------------------
// Accessors
// ----------------------

// GetCallTotal returns the call count for method.
func (c *TestMetricsCollector) GetCallTotal(method types.Method) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.CallTotal[method]
}

// GetCallErrors returns the failed call count for method.
func (c *TestMetricsCollector) GetCallErrors(method types.Method) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.CallErrors[method]
}

// GetCallDurations returns a copy of the durations observed for method.
func (c *TestMetricsCollector) GetCallDurations(method types.Method) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]float64(nil), c.CallDuration[method]...)
}

// GetRetryAttempts returns the retry count for method.
func (c *TestMetricsCollector) GetRetryAttempts(method types.Method) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.RetryAttempts[method]
}

// GetRetryExhausted returns the exhausted retry count for method.
func (c *TestMetricsCollector) GetRetryExhausted(method types.Method) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.RetryExhausted[method]
}

// GetPendingRPCs returns the last in-flight RPC gauge value.
func (c *TestMetricsCollector) GetPendingRPCs() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.PendingRPCs
}

// GetPendingBytes returns the last in-flight bytes gauge value.
func (c *TestMetricsCollector) GetPendingBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.PendingBytes
}

func (c *TestMetricsCollector) Reconnects() int64        { return c.reconnects.Load() }
func (c *TestMetricsCollector) ConnectErrors() int64     { return c.connectErrors.Load() }
func (c *TestMetricsCollector) MutationsAdmitted() int64 { return c.admitted.Load() }
func (c *TestMetricsCollector) MutationsFailed() int64   { return c.failed.Load() }
func (c *TestMetricsCollector) MutationsRejected() int64 { return c.rejected.Load() }
func (c *TestMetricsCollector) DeadLettersPublished() int64 {
	return c.deadLetterPublish.Load()
}
func (c *TestMetricsCollector) DeadLettersDropped() int64 { return c.deadLetterDropped.Load() }

// Reset clears all recorded metrics.
func (c *TestMetricsCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.CallTotal)
	clear(c.CallErrors)
	clear(c.CallDuration)
	clear(c.RetryAttempts)
	clear(c.RetryExhausted)
	c.AdmissionWaits = nil
	c.PendingBytes = 0
	c.PendingRPCs = 0

	c.reconnects.Store(0)
	c.connectErrors.Store(0)
	c.admitted.Store(0)
	c.failed.Store(0)
	c.rejected.Store(0)
	c.deadLetterPublish.Store(0)
	c.deadLetterDropped.Store(0)
}
