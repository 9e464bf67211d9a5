package buffer

import (
	"context"
	"sync"
)

// FlowController bounds the memory and number of outstanding operations.
//
// Every admitted operation is tracked by id with its estimated size, so the
// totals always equal the sum over live operations and return to exactly
// zero once everything is released. A single mutex guards the totals; waiters
// block on a condition variable and re-check their admission condition after
// every wake-up.
type FlowController struct {
	maxHeapBytes    int64
	maxInFlightRPCs int

	mu        sync.Mutex
	cond      *sync.Cond
	pending   map[uint64]int64
	heapBytes int64
	nextID    uint64
}

// NewFlowController creates a controller with the given ceilings.
//
// Parameters:
//   - maxHeapBytes: Ceiling on the summed size of live operations
//   - maxInFlightRPCs: Ceiling on the number of live operations
//
// Returns:
//   - *FlowController: A new controller with nothing in flight
func NewFlowController(maxHeapBytes int64, maxInFlightRPCs int) *FlowController {
	f := &FlowController{
		maxHeapBytes:    maxHeapBytes,
		maxInFlightRPCs: maxInFlightRPCs,
		pending:         make(map[uint64]int64),
	}
	f.cond = sync.NewCond(&f.mu)

	return f
}

// admissibleLocked reports whether an operation of size fits now.
//
// An operation is always admitted when nothing is in flight, so a single
// operation larger than maxHeapBytes cannot block forever.
func (f *FlowController) admissibleLocked(size int64) bool {
	if len(f.pending) == 0 {
		return true
	}

	return f.heapBytes+size <= f.maxHeapBytes && len(f.pending) < f.maxInFlightRPCs
}

// Acquire blocks until an operation of size fits, then records it.
//
// Parameters:
//   - ctx: Cancels the wait
//   - size: Estimated size of the operation in bytes
//
// Returns:
//   - uint64: Id to pass to Release when the operation completes
//   - error: The context error if ctx ended before admission
func (f *FlowController) Acquire(ctx context.Context, size int64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.waitLocked(ctx, func() bool { return f.admissibleLocked(size) }); err != nil {
		return 0, err
	}

	f.nextID++
	id := f.nextID
	f.pending[id] = size
	f.heapBytes += size

	return id, nil
}

// TryAcquire records an operation of size only if it fits without waiting.
//
// Returns:
//   - uint64: Id to pass to Release
//   - bool: false if the operation does not fit
func (f *FlowController) TryAcquire(size int64) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.admissibleLocked(size) {
		return 0, false
	}
	f.nextID++
	f.pending[f.nextID] = size
	f.heapBytes += size

	return f.nextID, true
}

// Release removes a completed operation and wakes waiters.
//
// Parameters:
//   - id: The id returned by Acquire
//
// Returns:
//   - bool: false if id was unknown or already released
func (f *FlowController) Release(id uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	size, ok := f.pending[id]
	if !ok {
		return false
	}
	delete(f.pending, id)
	f.heapBytes -= size
	f.cond.Broadcast()

	return true
}

// WaitDrained blocks until no operation is in flight.
//
// Parameters:
//   - ctx: Cancels the wait
//
// Returns:
//   - error: The context error if ctx ended first
func (f *FlowController) WaitDrained(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.waitLocked(ctx, func() bool { return len(f.pending) == 0 })
}

// waitLocked waits on the condition until ready returns true or ctx ends.
// Caller must hold f.mu.
func (f *FlowController) waitLocked(ctx context.Context, ready func() bool) error {
	if ready() {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	for !ready() {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.cond.Wait()
	}

	return nil
}

// HeapSize returns the summed estimated size of live operations.
func (f *FlowController) HeapSize() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.heapBytes
}

// InFlight returns the number of live operations.
func (f *FlowController) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.pending)
}

// HasInflight reports whether at least one operation is live.
func (f *FlowController) HasInflight() bool {
	return f.InFlight() > 0
}

// Limits returns the configured ceilings.
func (f *FlowController) Limits() (maxHeapBytes int64, maxInFlightRPCs int) {
	return f.maxHeapBytes, f.maxInFlightRPCs
}
