package types

import (
	"context"
	"sync"
)

// Result is the outcome of a completed call.
type Result struct {
	// Response is the response message, nil on failure.
	Response Response

	// Err is the failure, nil on success.
	Err error
}

// Future is a one-shot handle to the eventual result of an RPC.
//
// A Future is completed exactly once; later completions are ignored.
// Failures are always delivered through the Future, never by panicking.
// Futures are safe for concurrent use.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	result    Result
	completed bool
	callbacks []func(Result)
}

// NewFuture creates an incomplete Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// CompletedFuture creates a Future that is already complete.
func CompletedFuture(resp Response, err error) *Future {
	f := NewFuture()
	f.Complete(resp, err)

	return f
}

// FailedFuture creates a Future that already failed with err.
func FailedFuture(err error) *Future {
	return CompletedFuture(nil, err)
}

// Complete sets the result and runs registered callbacks in the calling goroutine.
//
// Parameters:
//   - resp: The response message (ignored when err is non-nil)
//   - err: The failure, or nil on success
//
// Returns:
//   - bool: false if the future had already been completed
func (f *Future) Complete(resp Response, err error) bool {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()

		return false
	}
	if err != nil {
		resp = nil
	}
	f.completed = true
	f.result = Result{Response: resp, Err: err}
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(f.result)
	}

	return true
}

// CompleteWith copies the result of another completed call.
func (f *Future) CompleteWith(r Result) bool {
	return f.Complete(r.Response, r.Err)
}

// OnComplete registers fn to run once the future completes.
//
// If the future is already complete, fn runs immediately in the calling
// goroutine. Otherwise it runs in the goroutine that completes the future.
// Callbacks must not block.
func (f *Future) OnComplete(fn func(Result)) {
	f.mu.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()

		return
	}
	r := f.result
	f.mu.Unlock()

	fn(r)
}

// Done returns a channel that is closed when the future completes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has completed.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the result and whether the future has completed.
func (f *Future) Result() (Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.result, f.completed
}

// Wait blocks until the future completes or ctx is done.
//
// Parameters:
//   - ctx: Context bounding the wait; cancelling it does not cancel the call
//
// Returns:
//   - Response: The response message
//   - error: The call failure, or ctx.Err() if the wait was abandoned
func (f *Future) Wait(ctx context.Context) (Response, error) {
	select {
	case <-f.done:
		return f.result.Response, f.result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
