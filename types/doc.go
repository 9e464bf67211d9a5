// Package types provides shared types and error definitions for the bigtable client.
//
// This is a leaf package with zero imports from the rest of the module to
// prevent import cycles. All packages can safely import it.
//
// # Mutations
//
// A Mutation is a row key plus an ordered list of cell edits:
//
//	m := &types.Mutation{
//	    RowKey: []byte("user#42"),
//	    Edits: []types.Edit{
//	        {Kind: types.KindSet, Family: "cf", Qualifier: []byte("name"), Value: []byte("ada"), Timestamp: ts},
//	        {Kind: types.KindIncrement, Family: "cf", Qualifier: []byte("visits"), Amount: 1, Timestamp: types.ServerTimestamp},
//	    },
//	}
//
// Edits stamped with ServerTimestamp get their version assigned by the server,
// which makes the mutation unsafe to retry.
//
// # Channels and Futures
//
// Every layer of the transport stack implements Channel:
//
//	type Channel interface {
//	    Call(ctx context.Context, req Request) *Future
//	}
//
// A Future completes exactly once with a Result; failures are delivered through
// the Future and never panic across the call boundary.
//
// # Errors
//
// Sentinel errors are provided for common failure scenarios:
//
//   - ErrChannelClosed: Call issued on a closed channel
//   - ErrBufferClosed: Mutation submitted to a closed write buffer
//   - ErrSessionClosed: Operation attempted on a closed session
//   - ErrUnsupportedMutation: Mutation rejected before admission
//   - ErrInvalidConfig: Configuration failed validation
//
// Typed errors carry context and unwrap to their cause:
//
//   - ConnectionError: Connection-level failure, triggers reconnect
//   - RetryError: Retry budget exhausted
//   - MutationError: One failed mutation and its cause
//   - AggregateError: Every mutation that failed since the last drain
package types
