// Package scheduler provides the small, dedicated timer pool that drives retry backoff.
//
// Retry timers run on their own fixed set of goroutines so that resubmissions
// never queue behind data-path work.
package scheduler

import (
	"errors"
	"sync"
	"time"
)

// DefaultWorkers is the default number of goroutines executing scheduled tasks.
const DefaultWorkers = 4

// ErrClosed is passed to cancel callbacks of tasks dropped by Close.
var ErrClosed = errors.New("bigtable: retry scheduler is closed")

type task struct {
	run    func()
	cancel func(error)
}

type pending struct {
	timer *time.Timer
	task  task
}

// Scheduler runs delayed tasks on a fixed number of worker goroutines.
//
// Every scheduled task either runs or has its cancel callback invoked exactly once.
type Scheduler struct {
	tasks  chan task
	stopCh chan struct{}
	wg     sync.WaitGroup
	firing sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	pending map[*pending]struct{}
}

// New creates a Scheduler and starts its workers.
//
// Parameters:
//   - workers: Number of worker goroutines (DefaultWorkers if <= 0)
//
// Returns:
//   - *Scheduler: A running scheduler
func New(workers int) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	s := &Scheduler{
		tasks:   make(chan task, workers*16),
		stopCh:  make(chan struct{}),
		pending: make(map[*pending]struct{}),
	}

	for range workers {
		s.wg.Go(s.work)
	}

	return s
}

func (s *Scheduler) work() {
	for {
		select {
		case <-s.stopCh:
			// Drain whatever made it into the queue before the stop.
			for {
				select {
				case t := <-s.tasks:
					t.cancel(ErrClosed)
				default:
					return
				}
			}
		case t := <-s.tasks:
			t.run()
		}
	}
}

// Schedule runs fn after delay on a worker goroutine.
//
// If the scheduler is closed before fn runs, cancel is called with ErrClosed
// instead. cancel may be nil.
//
// Parameters:
//   - delay: Time to wait before running fn
//   - fn: The task to run
//   - cancel: Called instead of fn if the task is dropped
//
// Returns:
//   - bool: false if the scheduler is already closed (neither callback runs)
func (s *Scheduler) Schedule(delay time.Duration, fn func(), cancel func(error)) bool {
	if cancel == nil {
		cancel = func(error) {}
	}
	t := task{run: fn, cancel: cancel}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	p := &pending{task: t}
	// The timer callback takes s.mu first, so it cannot observe p before
	// p.timer is assigned below.
	p.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if _, ok := s.pending[p]; !ok {
			s.mu.Unlock()

			return
		}
		delete(s.pending, p)
		if s.closed {
			s.mu.Unlock()
			t.cancel(ErrClosed)

			return
		}
		s.firing.Add(1)
		s.mu.Unlock()

		defer s.firing.Done()
		s.tasks <- t
	})
	s.pending[p] = struct{}{}

	return true
}

// Pending returns the number of tasks waiting for their timer to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending)
}

// Close stops the scheduler.
//
// Timers that have not fired are stopped and their cancel callbacks invoked.
// Close waits for running tasks to return. It is safe to call multiple times.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return
	}
	s.closed = true
	var dropped []task
	for p := range s.pending {
		// A timer that already fired finds closed set and cancels itself.
		if p.timer.Stop() {
			dropped = append(dropped, p.task)
			delete(s.pending, p)
		}
	}
	s.mu.Unlock()

	s.firing.Wait()
	close(s.stopCh)
	s.wg.Wait()

	for _, t := range dropped {
		t.cancel(ErrClosed)
	}
}
