// Package deadletter stores mutations that a write buffer could not apply and
// replays them later.
//
// A Listener plugged into a write buffer as its ExceptionListener turns every
// reported failure into an Entry and publishes it to a Sink instead of
// surfacing the aggregate error to the writer. Two sinks are provided:
//
//   - MemorySink: a bounded in-process queue, lost on exit
//   - NATSSink: a durable NATS JetStream stream; entries are deduplicated by ID
//
// A Worker drains a sink and resubmits each entry through a Resubmitter,
// typically a ChannelResubmitter over the session's data channel. Failed
// resubmissions back off exponentially up to a cap.
//
// Mutations with server-assigned timestamps are never replayed: the original
// write may have been applied, and writing it again would add cell versions.
// The Listener does not store them (they go to WithFallback, or are counted as
// dropped), and the Worker and ChannelResubmitter refuse them with
// ErrNotReplayable.
//
// Example:
//
//	sink := deadletter.NewMemorySink()
//	buf, _ := session.NewWriteBuffer(table,
//	    buffer.WithExceptionListener(deadletter.NewListener(sink, table)),
//	)
//	worker := deadletter.NewMemoryWorker(sink, deadletter.NewChannelResubmitter(session.DataChannel()))
//	_ = worker.Start()
//	defer worker.Stop()
//
// Entries travel as MessagePack; the encoding is stable across releases and
// skips unknown keys.
package deadletter
