package types

import (
	"context"
	"time"
)

// Channel issues unary RPCs against one logical endpoint.
//
// Raw transports, reconnecting channels, pools and retrying wrappers all
// implement Channel, so they compose freely. Implementations MUST be safe for
// concurrent use and MUST report every failure through the returned Future.
type Channel interface {
	// Call issues req and returns a handle to its eventual result.
	//
	// Parameters:
	//   - ctx: Context for the call; its deadline bounds the RPC
	//   - req: The request to issue
	//
	// Returns:
	//   - *Future: Never nil
	Call(ctx context.Context, req Request) *Future
}

// Transport is one physical connection to an endpoint.
//
// A Transport is owned by exactly one ReconnectingChannel and is never reused
// after it has been shut down.
type Transport interface {
	Channel

	// Shutdown requests a graceful shutdown and returns without waiting.
	// In-flight calls are allowed to finish.
	Shutdown() error

	// ShutdownNow forces termination, failing in-flight calls.
	ShutdownNow() error

	// IsTerminated reports whether the transport has fully terminated.
	IsTerminated() bool
}

// TerminationNotifier is an optional Transport extension that signals termination.
//
// Channels closing a transport that implements TerminationNotifier wait on the
// signal instead of polling IsTerminated.
type TerminationNotifier interface {
	// Terminated returns a channel that is closed once the transport has terminated.
	Terminated() <-chan struct{}
}

// TransportFactory creates new transports for a ReconnectingChannel.
type TransportFactory interface {
	// Create dials a fresh transport.
	//
	// Parameters:
	//   - ctx: Context bounding connection setup
	//
	// Returns:
	//   - Transport: A new transport, exclusively owned by the caller
	//   - error: Connection setup failure
	Create(ctx context.Context) (Transport, error)
}

// TransportFactoryFunc adapts a function to the TransportFactory interface.
type TransportFactoryFunc func(ctx context.Context) (Transport, error)

// Create calls f(ctx).
func (f TransportFactoryFunc) Create(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// ChannelFunc adapts a function to the Channel interface.
type ChannelFunc func(ctx context.Context, req Request) *Future

// Call calls f(ctx, req).
func (f ChannelFunc) Call(ctx context.Context, req Request) *Future {
	return f(ctx, req)
}

// ChannelState is the lifecycle state of a reconnecting channel.
type ChannelState int32

const (
	// StateDisconnected means no transport exists; the next call connects.
	StateDisconnected ChannelState = iota
	// StateConnecting means a transport is being created.
	StateConnecting
	// StateConnected means a live transport is serving calls.
	StateConnected
	// StateClosed is terminal; every call fails with ErrChannelClosed.
	StateClosed
)

// String returns the string representation of the ChannelState.
func (s ChannelState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Clock abstracts time for backoff computations so tests can control it.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}
