package buffer

import (
	"github.com/BrendanGleason/cloud-bigtable-client/internal/logging"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// ExceptionListener receives the aggregate of failed mutations.
//
// The error returned by OnException becomes the result of the Flush, Close or
// Mutate call that reported the failures: returning agg propagates it to the
// caller, returning nil suppresses it.
type ExceptionListener interface {
	OnException(agg *types.AggregateError, b *WriteBuffer) error
}

// ExceptionListenerFunc adapts a function to the ExceptionListener interface.
type ExceptionListenerFunc func(agg *types.AggregateError, b *WriteBuffer) error

// OnException calls f(agg, b).
func (f ExceptionListenerFunc) OnException(agg *types.AggregateError, b *WriteBuffer) error {
	return f(agg, b)
}

// RethrowListener propagates every aggregate to the caller.
type RethrowListener struct{}

// OnException returns agg.
func (RethrowListener) OnException(agg *types.AggregateError, _ *WriteBuffer) error {
	return agg
}

// LoggingListener logs every failure and lets the caller continue.
type LoggingListener struct {
	Logger types.Logger
}

// OnException logs each failed mutation and returns nil.
func (l LoggingListener) OnException(agg *types.AggregateError, _ *WriteBuffer) error {
	logger := logging.OrNop(l.Logger)
	logger.Error("mutations failed", "count", agg.Len(), "error", agg)
	for _, f := range agg.Failures {
		var row []byte
		if f.Mutation != nil {
			row = f.Mutation.RowKey
		}
		logger.Debug("mutation failed", "row", string(row), "error", f.Cause)
	}

	return nil
}
