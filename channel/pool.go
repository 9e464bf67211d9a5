package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// Member is a channel that can be owned by a Pool.
type Member interface {
	types.Channel

	// Close gracefully shuts the channel down, waiting for termination.
	Close(ctx context.Context) error

	// ShutdownNow forces the channel to stop.
	ShutdownNow() error
}

// Compile-time assertion that ReconnectingChannel can join a Pool.
var _ Member = (*ReconnectingChannel)(nil)

// Pool spreads calls across a fixed set of channels to the same endpoint.
//
// Channels are selected round-robin with a shared atomic cursor; selection
// does not look at the request. Pool is safe for concurrent use.
type Pool struct {
	members []Member
	cursor  atomic.Uint64
}

// Compile-time assertion that Pool implements types.Channel.
var _ types.Channel = (*Pool)(nil)

// NewPool creates a pool that owns members.
//
// Parameters:
//   - members: The channels to balance across; must not be empty
//
// Returns:
//   - *Pool: A new pool
//   - error: types.ErrInvalidConfig if members is empty or contains nil
func NewPool(members ...Member) (*Pool, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: channel pool needs at least one channel", types.ErrInvalidConfig)
	}
	for i, m := range members {
		if m == nil {
			return nil, fmt.Errorf("%w: channel %d is nil", types.ErrInvalidConfig, i)
		}
	}

	return &Pool{members: append([]Member(nil), members...)}, nil
}

// Size returns the number of channels in the pool.
func (p *Pool) Size() int {
	return len(p.members)
}

// Next returns the channel the next call will use and advances the cursor.
func (p *Pool) Next() Member {
	n := uint64(len(p.members))

	return p.members[(p.cursor.Add(1)-1)%n]
}

// Call issues req on the next channel in rotation.
//
// Parameters:
//   - ctx: Context for the call
//   - req: The request to issue
//
// Returns:
//   - *types.Future: Completes with the call's result
func (p *Pool) Call(ctx context.Context, req types.Request) *types.Future {
	return p.Next().Call(ctx, req)
}

// Close closes every channel concurrently.
//
// A failure on one channel does not stop the others from closing; all
// failures are joined into the returned error.
//
// Parameters:
//   - ctx: Bounds the wait for each channel's termination
//
// Returns:
//   - error: Joined close errors, or nil
func (p *Pool) Close(ctx context.Context) error {
	errs := make([]error, len(p.members))

	var wg sync.WaitGroup
	for i, m := range p.members {
		wg.Go(func() {
			if err := m.Close(ctx); err != nil {
				errs[i] = fmt.Errorf("channel %d: %w", i, err)
			}
		})
	}
	wg.Wait()

	return errors.Join(errs...)
}

// ShutdownNow forces every channel to stop.
//
// Returns:
//   - error: Joined shutdown errors, or nil
func (p *Pool) ShutdownNow() error {
	var errs []error
	for i, m := range p.members {
		if err := m.ShutdownNow(); err != nil {
			errs = append(errs, fmt.Errorf("channel %d: %w", i, err))
		}
	}

	return errors.Join(errs...)
}
