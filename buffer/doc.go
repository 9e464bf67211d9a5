// Package buffer provides the write buffer of the bigtable client: an
// asynchronous mutation sink with memory and concurrency backpressure.
//
// # Flow Control
//
// A [FlowController] tracks every in-flight mutation by id together with its
// estimated size. [WriteBuffer.Mutate] blocks while admitting the mutation
// would exceed the memory ceiling, or while the number of in-flight RPCs is at
// its ceiling. Capacity is returned when the RPC completes, successfully or not.
//
// # Failure Reporting
//
// Failed mutations never interrupt the producer. They are collected and
// reported together as one [types.AggregateError] by [WriteBuffer.Flush] or
// [WriteBuffer.Close], through an [ExceptionListener]:
//
//   - [RethrowListener] (the default) returns the aggregate to the caller.
//   - [LoggingListener] logs it and lets the caller continue.
//
// Example:
//
//	buf, _ := buffer.New(buffer.NewChannelExecutor(ch, "projects/p/tables/t"),
//	    buffer.WithMaxInFlightRPCs(100),
//	)
//	for _, m := range mutations {
//	    if err := buf.Mutate(ctx, m); err != nil {
//	        return err
//	    }
//	}
//	if err := buf.Close(ctx); err != nil {
//	    var agg *types.AggregateError
//	    if errors.As(err, &agg) {
//	        // agg.Failures lists every failed mutation with its cause
//	    }
//	}
package buffer
