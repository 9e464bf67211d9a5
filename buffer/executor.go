package buffer

import (
	"context"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// Executor turns one mutation into one RPC.
//
// Asynchronous failures must be reported through the returned future. A
// returned error means the request was never issued.
type Executor interface {
	IssueRequest(ctx context.Context, m *types.Mutation) (*types.Future, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, m *types.Mutation) (*types.Future, error)

// IssueRequest calls f(ctx, m).
func (f ExecutorFunc) IssueRequest(ctx context.Context, m *types.Mutation) (*types.Future, error) {
	return f(ctx, m)
}

// ChannelExecutor issues each mutation as a MutateRow call on a channel.
type ChannelExecutor struct {
	ch    types.Channel
	table string
}

// Compile-time assertion that ChannelExecutor implements Executor.
var _ Executor = (*ChannelExecutor)(nil)

// NewChannelExecutor creates an executor writing to table through ch.
//
// Parameters:
//   - ch: The channel the calls are issued on
//   - table: Fully qualified table name
//
// Returns:
//   - *ChannelExecutor: A new executor
func NewChannelExecutor(ch types.Channel, table string) *ChannelExecutor {
	return &ChannelExecutor{ch: ch, table: table}
}

// IssueRequest sends m as a MutateRow request.
func (e *ChannelExecutor) IssueRequest(ctx context.Context, m *types.Mutation) (*types.Future, error) {
	return e.ch.Call(ctx, types.Request{
		Method:  types.MethodMutateRow,
		Payload: &types.MutateRowRequest{Table: e.table, Mutation: m},
	}), nil
}

// Table returns the target table name.
func (e *ChannelExecutor) Table() string {
	return e.table
}
