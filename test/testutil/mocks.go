package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// MockTransport is an in-memory implementation of types.Transport.
//
// By default every call succeeds immediately with the request payload as the
// response. Set OnCall to script other behavior.
type MockTransport struct {
	// ID is the creation index assigned by MockTransportFactory.
	ID int

	// OnCall, when set, produces the future for each call.
	OnCall func(ctx context.Context, req types.Request) *types.Future

	// HoldTermination keeps the transport running after Shutdown until
	// ShutdownNow or Terminate is called.
	HoldTermination bool

	// ShutdownErr is returned by Shutdown.
	ShutdownErr error

	mu            sync.Mutex
	calls         []types.Request
	shutdown      bool
	shutdownCount int
	forced        bool
	terminated    chan struct{}
	termOnce      sync.Once
}

// Compile-time assertions for MockTransport.
var (
	_ types.Transport           = (*MockTransport)(nil)
	_ types.TerminationNotifier = (*MockTransport)(nil)
)

// NewMockTransport creates a running mock transport.
func NewMockTransport(id int) *MockTransport {
	return &MockTransport{ID: id, terminated: make(chan struct{})}
}

// Call records req and returns its scripted result.
func (m *MockTransport) Call(ctx context.Context, req types.Request) *types.Future {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()

		return types.FailedFuture(types.ErrTransportTerminated)
	}
	m.calls = append(m.calls, req)
	hook := m.OnCall
	m.mu.Unlock()

	if hook != nil {
		return hook(ctx, req)
	}

	return types.CompletedFuture(req.Payload, nil)
}

// Shutdown stops accepting calls and terminates unless HoldTermination is set.
func (m *MockTransport) Shutdown() error {
	m.mu.Lock()
	m.shutdown = true
	m.shutdownCount++
	hold := m.HoldTermination
	err := m.ShutdownErr
	m.mu.Unlock()

	if !hold {
		m.Terminate()
	}

	return err
}

// ShutdownNow terminates the transport immediately.
func (m *MockTransport) ShutdownNow() error {
	m.mu.Lock()
	m.shutdown = true
	m.forced = true
	m.mu.Unlock()
	m.Terminate()

	return nil
}

// Terminate marks the transport terminated.
func (m *MockTransport) Terminate() {
	m.termOnce.Do(func() { close(m.terminated) })
}

// IsTerminated reports whether the transport has terminated.
func (m *MockTransport) IsTerminated() bool {
	select {
	case <-m.terminated:
		return true
	default:
		return false
	}
}

// Terminated returns a channel closed on termination.
func (m *MockTransport) Terminated() <-chan struct{} {
	return m.terminated
}

// IsShutdown reports whether Shutdown or ShutdownNow was called.
func (m *MockTransport) IsShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.shutdown
}

// ShutdownCount returns how many times Shutdown was called.
func (m *MockTransport) ShutdownCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.shutdownCount
}

// WasForced reports whether ShutdownNow was called.
func (m *MockTransport) WasForced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.forced
}

// Calls returns a copy of the recorded requests.
func (m *MockTransport) Calls() []types.Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]types.Request(nil), m.calls...)
}

// CallCount returns the number of recorded requests.
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.calls)
}

// WithoutNotifier hides the termination signal so callers must poll IsTerminated.
func (m *MockTransport) WithoutNotifier() types.Transport {
	return pollingTransport{m: m}
}

type pollingTransport struct {
	m *MockTransport
}

func (p pollingTransport) Call(ctx context.Context, req types.Request) *types.Future {
	return p.m.Call(ctx, req)
}

func (p pollingTransport) Shutdown() error    { return p.m.Shutdown() }
func (p pollingTransport) ShutdownNow() error { return p.m.ShutdownNow() }
func (p pollingTransport) IsTerminated() bool { return p.m.IsTerminated() }

// MockTransportFactory creates MockTransports and records them.
type MockTransportFactory struct {
	// Configure, when set, is applied to every new transport.
	Configure func(t *MockTransport)

	// Polling makes created transports hide their termination signal.
	Polling bool

	mu       sync.Mutex
	created  []*MockTransport
	failures int
	failErr  error
}

// Compile-time assertion that MockTransportFactory implements types.TransportFactory.
var _ types.TransportFactory = (*MockTransportFactory)(nil)

// NewMockTransportFactory creates a factory that always succeeds.
func NewMockTransportFactory() *MockTransportFactory {
	return &MockTransportFactory{}
}

// FailNext makes the next n Create calls fail with err.
func (f *MockTransportFactory) FailNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures = n
	f.failErr = err
}

// Create returns a new MockTransport or a scripted failure.
func (f *MockTransportFactory) Create(_ context.Context) (types.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--

		return nil, f.failErr
	}

	t := NewMockTransport(len(f.created))
	if f.Configure != nil {
		f.Configure(t)
	}
	f.created = append(f.created, t)

	if f.Polling {
		return t.WithoutNotifier(), nil
	}

	return t, nil
}

// Created returns the transports created so far, in order.
func (f *MockTransportFactory) Created() []*MockTransport {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*MockTransport(nil), f.created...)
}

// Count returns the number of transports created.
func (f *MockTransportFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.created)
}

// Last returns the most recently created transport, or nil.
func (f *MockTransportFactory) Last() *MockTransport {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.created) == 0 {
		return nil
	}

	return f.created[len(f.created)-1]
}

// MockChannel is a scripted types.Channel.
//
// Each call consumes the next scripted error; once the script is exhausted
// calls succeed with the request payload.
type MockChannel struct {
	mu     sync.Mutex
	script []error
	calls  []types.Request
}

// Compile-time assertion that MockChannel implements types.Channel.
var _ types.Channel = (*MockChannel)(nil)

// NewMockChannel creates a channel that fails with errs in order.
func NewMockChannel(errs ...error) *MockChannel {
	return &MockChannel{script: errs}
}

// Call records req and completes with the next scripted result.
func (c *MockChannel) Call(_ context.Context, req types.Request) *types.Future {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	var err error
	if len(c.script) > 0 {
		err = c.script[0]
		c.script = c.script[1:]
	}
	c.mu.Unlock()

	return types.CompletedFuture(req.Payload, err)
}

// CallCount returns the number of calls received.
func (c *MockChannel) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.calls)
}

// MockExecutor records issued mutations and leaves their futures pending
// until completed by the test.
type MockExecutor struct {
	// OnIssue, when set, replaces the default pending-future behavior.
	OnIssue func(ctx context.Context, m *types.Mutation) (*types.Future, error)

	mu      sync.Mutex
	issued  []*types.Mutation
	futures []*types.Future
	signal  chan struct{}
}

// NewMockExecutor creates an executor whose futures stay pending.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{signal: make(chan struct{}, 1024)}
}

// IssueRequest records m and returns a pending future.
func (e *MockExecutor) IssueRequest(ctx context.Context, m *types.Mutation) (*types.Future, error) {
	if e.OnIssue != nil {
		e.mu.Lock()
		e.issued = append(e.issued, m)
		e.mu.Unlock()

		return e.OnIssue(ctx, m)
	}

	f := types.NewFuture()
	e.mu.Lock()
	e.issued = append(e.issued, m)
	e.futures = append(e.futures, f)
	e.mu.Unlock()

	select {
	case e.signal <- struct{}{}:
	default:
	}

	return f, nil
}

// Issued returns the mutations issued so far, in issue order.
func (e *MockExecutor) Issued() []*types.Mutation {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]*types.Mutation(nil), e.issued...)
}

// IssuedCount returns the number of issued mutations.
func (e *MockExecutor) IssuedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.issued)
}

// Complete completes the i-th issued future.
func (e *MockExecutor) Complete(i int, err error) {
	e.mu.Lock()
	f := e.futures[i]
	e.mu.Unlock()

	f.Complete("ok", err)
}

// CompleteAll completes every pending future with err.
func (e *MockExecutor) CompleteAll(err error) {
	e.mu.Lock()
	futures := append([]*types.Future(nil), e.futures...)
	e.mu.Unlock()

	for _, f := range futures {
		f.Complete("ok", err)
	}
}

// WaitIssued blocks until at least n mutations have been issued or timeout elapses.
func (e *MockExecutor) WaitIssued(n int, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		if e.IssuedCount() >= n {
			return nil
		}
		select {
		case <-e.signal:
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			return errors.New("testutil: timed out waiting for issued mutations")
		}
	}
}

// ManualClock is a types.Clock advanced explicitly by the test.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock fixed at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current fake time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// Mutation builds a single-edit set mutation for row with the given timestamp.
func Mutation(row string, ts int64) *types.Mutation {
	return &types.Mutation{
		RowKey: []byte(row),
		Edits: []types.Edit{
			{Kind: types.KindSet, Family: "cf", Qualifier: []byte("q"), Value: []byte("v"), Timestamp: ts},
		},
	}
}
