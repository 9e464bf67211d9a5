// Package types provides shared types and errors for the bigtable client.
//
// This is a "leaf" package with no imports from other packages in this module,
// allowing it to be imported by any package without causing import cycles.
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ServerTimestamp is the sentinel timestamp that asks the server to assign
// the cell version at write time.
//
// Mutations carrying this value on any edit are not safe to retry: a
// resubmission could write a second cell under a different server-assigned
// timestamp.
const ServerTimestamp int64 = -1

// EditKind identifies the operation carried by a single cell edit.
type EditKind uint8

const (
	// KindUnknown is the zero value and is always rejected.
	KindUnknown EditKind = iota
	// KindSet writes a cell value.
	KindSet
	// KindDelete removes cells. An empty family deletes the whole row.
	KindDelete
	// KindIncrement adds Amount to a 64-bit big-endian counter cell.
	KindIncrement
	// KindAppend appends Value to the existing cell value.
	KindAppend
)

// String returns the string representation of the EditKind.
func (k EditKind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindDelete:
		return "delete"
	case KindIncrement:
		return "increment"
	case KindAppend:
		return "append"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Valid reports whether k is one of the supported edit kinds.
func (k EditKind) Valid() bool {
	return k >= KindSet && k <= KindAppend
}

// Edit is a single cell-level change inside a Mutation.
type Edit struct {
	// Kind is the operation applied to the cell.
	Kind EditKind

	// Family is the column family. Empty only for a whole-row delete.
	Family string

	// Qualifier is the column qualifier.
	Qualifier []byte

	// Value is the cell value for set and append edits.
	Value []byte

	// Timestamp is the cell version in microseconds, or ServerTimestamp.
	Timestamp int64

	// Amount is the delta for increment edits.
	Amount int64
}

// HasExplicitTimestamp reports whether the edit carries a client-assigned timestamp.
func (e Edit) HasExplicitTimestamp() bool {
	return e.Timestamp != ServerTimestamp
}

// Mutation is a logical write against one row.
//
// A Mutation must not be modified after it has been submitted.
type Mutation struct {
	// RowKey identifies the row.
	RowKey []byte

	// Edits are applied atomically to the row, in order.
	Edits []Edit
}

// editOverhead approximates the fixed per-edit cost of a mutation held in memory
// (slice headers, kind, timestamps).
const editOverhead = 64

// mutationOverhead approximates the fixed cost of the mutation itself.
const mutationOverhead = 48

// HeapSize returns the estimated in-memory footprint of the mutation in bytes.
func (m *Mutation) HeapSize() int64 {
	if m == nil {
		return 0
	}

	size := int64(mutationOverhead + len(m.RowKey))
	for i := range m.Edits {
		e := &m.Edits[i]
		size += int64(editOverhead + len(e.Family) + len(e.Qualifier) + len(e.Value))
	}

	return size
}

// Validate checks that the mutation can be submitted.
//
// Returns:
//   - error: an error wrapping ErrUnsupportedMutation, or nil if valid
func (m *Mutation) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil mutation", ErrUnsupportedMutation)
	}
	if len(m.RowKey) == 0 {
		return fmt.Errorf("%w: empty row key", ErrUnsupportedMutation)
	}
	if len(m.Edits) == 0 {
		return fmt.Errorf("%w: no edits", ErrUnsupportedMutation)
	}
	for i, e := range m.Edits {
		if !e.Kind.Valid() {
			return fmt.Errorf("%w: edit %d has kind %s", ErrUnsupportedMutation, i, e.Kind)
		}
		if e.Kind != KindDelete && e.Family == "" {
			return fmt.Errorf("%w: edit %d (%s) has no column family", ErrUnsupportedMutation, i, e.Kind)
		}
		if e.Timestamp < ServerTimestamp {
			return fmt.Errorf("%w: edit %d has negative timestamp %d", ErrUnsupportedMutation, i, e.Timestamp)
		}
	}

	return nil
}

// AllTimestampsExplicit reports whether every edit carries an explicit timestamp.
func AllTimestampsExplicit(edits []Edit) bool {
	for _, e := range edits {
		if !e.HasExplicitTimestamp() {
			return false
		}
	}

	return true
}

// Method identifies an RPC method, e.g. "/google.bigtable.v1.BigtableService/MutateRow".
type Method string

// String returns the string representation of the Method.
func (m Method) String() string {
	return string(m)
}

// Name returns the short method name (the part after the last '/').
func (m Method) Name() string {
	s := string(m)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}

	return s
}

// Well-known data service methods.
const (
	MethodMutateRow         Method = "/google.bigtable.v1.BigtableService/MutateRow"
	MethodCheckAndMutateRow Method = "/google.bigtable.v1.BigtableService/CheckAndMutateRow"
	MethodReadModifyWrite   Method = "/google.bigtable.v1.BigtableService/ReadModifyWriteRow"
)

// Request is a single unary RPC issued through a Channel.
type Request struct {
	// Method is the RPC method identity, used for retry and status accounting.
	Method Method

	// Payload is the request message. Its concrete type is defined by the
	// wire contract of the transport.
	Payload any
}

// Response is the result message of a unary RPC.
type Response any

// MutateRowRequest is the payload of a MethodMutateRow call.
type MutateRowRequest struct {
	// Table is the fully qualified table name.
	Table string

	// Mutation is the row mutation to apply.
	Mutation *Mutation
}

// CheckAndMutateRowRequest is the payload of a MethodCheckAndMutateRow call.
type CheckAndMutateRowRequest struct {
	// Table is the fully qualified table name.
	Table string

	// RowKey identifies the row.
	RowKey []byte

	// Filter is the opaque predicate evaluated by the server.
	Filter []byte

	// TrueMutations are applied when the predicate matches.
	TrueMutations []Edit

	// FalseMutations are applied when the predicate does not match.
	FalseMutations []Edit
}

// CheckAndMutateRowResponse is the response of a MethodCheckAndMutateRow call.
type CheckAndMutateRowResponse struct {
	// PredicateMatched reports whether the filter matched, i.e. whether the
	// true mutations were applied.
	PredicateMatched bool
}

// Sentinel errors for common failure scenarios.
var (
	// ErrChannelClosed indicates a call was issued on a closed channel.
	ErrChannelClosed = errors.New("bigtable: channel is closed")

	// ErrBufferClosed indicates a mutation was submitted to a closed write buffer.
	ErrBufferClosed = errors.New("bigtable: write buffer is closed")

	// ErrSessionClosed indicates an operation was attempted on a closed session.
	ErrSessionClosed = errors.New("bigtable: session is closed")

	// ErrUnsupportedMutation indicates a mutation was rejected before admission.
	ErrUnsupportedMutation = errors.New("bigtable: unsupported mutation")

	// ErrNilTransport indicates a transport factory returned no transport.
	ErrNilTransport = errors.New("bigtable: transport factory returned nil transport")

	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = errors.New("bigtable: invalid configuration")

	// ErrUnsupportedPayload indicates a transport received a payload type it cannot send.
	ErrUnsupportedPayload = errors.New("bigtable: unsupported request payload")

	// ErrTransportTerminated indicates a call was issued on a transport that was shut down.
	ErrTransportTerminated = errors.New("bigtable: transport terminated")

	// ErrDeadLetterFull indicates the dead-letter queue is at capacity.
	ErrDeadLetterFull = errors.New("bigtable: dead letter queue is full")

	// ErrDeadLetterClosed indicates an entry was published to a closed dead-letter sink.
	ErrDeadLetterClosed = errors.New("bigtable: dead letter sink is closed")
)

// ConnectionError marks a connection-level failure.
//
// Channels that see a ConnectionError discard their transport and reconnect.
type ConnectionError struct {
	// Endpoint is the address the transport was connected to.
	Endpoint string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Endpoint == "" {
		return "bigtable: connection failure: " + e.Cause.Error()
	}

	return "bigtable: connection to " + e.Endpoint + " failed: " + e.Cause.Error()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// IsConnectionError reports whether err is a connection-level failure.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var connErr *ConnectionError

	return errors.As(err, &connErr) || errors.Is(err, ErrTransportTerminated)
}

// RetryError is the terminal failure of a call that exhausted its retry budget.
type RetryError struct {
	// Method is the method that was retried.
	Method Method

	// Attempts is the number of times the call was issued.
	Attempts int

	// Elapsed is the time between the first attempt and the terminal failure.
	Elapsed time.Duration

	// Cause is the failure of the last attempt.
	Cause error
}

// Error implements the error interface.
func (e *RetryError) Error() string {
	return "bigtable: " + e.Method.Name() + " failed after " + strconv.Itoa(e.Attempts) +
		" attempts in " + e.Elapsed.String() + ": " + e.Cause.Error()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *RetryError) Unwrap() error {
	return e.Cause
}

// MutationError pairs a failed mutation with the cause of its failure.
type MutationError struct {
	// Mutation is the mutation that failed. May be nil.
	Mutation *Mutation

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *MutationError) Error() string {
	if e.Mutation == nil {
		return "bigtable: mutation failed: " + e.Cause.Error()
	}

	return "bigtable: mutation of row " + strconv.Quote(string(e.Mutation.RowKey)) + " failed: " + e.Cause.Error()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *MutationError) Unwrap() error {
	return e.Cause
}

// AggregateError summarizes every mutation that failed since the last successful drain.
type AggregateError struct {
	// Failures lists each failed mutation with its cause, in completion order.
	Failures []*MutationError
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	var sb strings.Builder
	sb.WriteString("bigtable: ")
	sb.WriteString(strconv.Itoa(len(e.Failures)))
	sb.WriteString(" mutation(s) failed")

	// Summarize causes by message so large batches stay readable.
	counts := make(map[string]int)
	var order []string
	for _, f := range e.Failures {
		msg := f.Cause.Error()
		if _, ok := counts[msg]; !ok {
			order = append(order, msg)
		}
		counts[msg]++
	}
	for i, msg := range order {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString("; ")
		}
		sb.WriteString(msg)
		if n := counts[msg]; n > 1 {
			sb.WriteString(" (x")
			sb.WriteString(strconv.Itoa(n))
			sb.WriteString(")")
		}
	}

	return sb.String()
}

// Unwrap returns every failure for errors.Is/As compatibility.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}

	return errs
}

// Len returns the number of failed mutations.
func (e *AggregateError) Len() int {
	return len(e.Failures)
}
