package deadletter

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tinylib/msgp/msgp"

	"github.com/BrendanGleason/cloud-bigtable-client/internal/wire"
	"github.com/BrendanGleason/cloud-bigtable-client/policy"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// ErrNotReplayable is returned for entries whose mutation relies on
// server-assigned timestamps. Writing such a mutation again would add cell
// versions if the original write was applied.
var ErrNotReplayable = errors.New("bigtable: mutation with server-assigned timestamps cannot be replayed")

// UUIDExtensionType is the MessagePack extension type used for entry IDs.
// Types 3, 4 and 5 are taken by msgp for complex64, complex128 and time.Time.
const UUIDExtensionType int8 = 10

func init() {
	msgp.RegisterExtension(UUIDExtensionType, func() msgp.Extension {
		return new(uuidExt)
	})
}

// uuidExt carries a uuid.UUID through MessagePack as a fixed 16-byte extension.
type uuidExt uuid.UUID

func (u *uuidExt) ExtensionType() int8 {
	return UUIDExtensionType
}

func (u *uuidExt) Len() int {
	return len(u)
}

func (u *uuidExt) MarshalBinaryTo(b []byte) error {
	copy(b, u[:])

	return nil
}

func (u *uuidExt) UnmarshalBinary(b []byte) error {
	if len(b) != len(u) {
		return errors.New("bigtable: invalid uuid extension length")
	}
	copy(u[:], b)

	return nil
}

// Entry is a mutation that could not be applied, stored for later replay.
type Entry struct {
	// ID uniquely identifies the entry. It doubles as the JetStream
	// deduplication ID so a republished entry is stored once.
	ID uuid.UUID

	// Table is the table the mutation was written to.
	Table string

	// Mutation is the failed mutation.
	Mutation *types.Mutation

	// Cause is the error message of the failure.
	Cause string

	// Attempts is how many times the mutation was issued before it was dead-lettered.
	Attempts int

	// FailedAt is when the failure was reported.
	FailedAt time.Time
}

// NewEntry builds an entry for a failed mutation of table.
//
// Attempts is taken from a *types.RetryError in the cause chain, or 1 when the
// call was not retried.
//
// Parameters:
//   - table: The table the mutation targeted
//   - f: The failed mutation and its cause
//   - now: The failure time
//
// Returns:
//   - Entry: A new entry with a random ID
func NewEntry(table string, f *types.MutationError, now time.Time) Entry {
	attempts := 1
	var retryErr *types.RetryError
	if errors.As(f.Cause, &retryErr) {
		attempts = retryErr.Attempts
	}

	cause := ""
	if f.Cause != nil {
		cause = f.Cause.Error()
	}

	return Entry{
		ID:       uuid.New(),
		Table:    table,
		Mutation: f.Mutation,
		Cause:    cause,
		Attempts: attempts,
		FailedAt: now,
	}
}

// Request returns the MutateRow request that replays e.
func (e *Entry) Request() types.Request {
	return types.Request{
		Method:  types.MethodMutateRow,
		Payload: &types.MutateRowRequest{Table: e.Table, Mutation: e.Mutation},
	}
}

// Replayable reports whether e may be written again. It applies the same rule
// as MutateRow retries: every edit must carry an explicit timestamp.
func (e *Entry) Replayable() bool {
	return policy.MutateRowPredicate.Retryable(e.Request())
}

// Compile-time assertions for the msgp codec.
var (
	_ msgp.Marshaler   = (*Entry)(nil)
	_ msgp.Unmarshaler = (*Entry)(nil)
	_ msgp.Sizer       = (*Entry)(nil)
)

// entryFields is the number of keys written by MarshalMsg.
const entryFields = 7

// MarshalMsg appends the MessagePack encoding of e to b.
func (e *Entry) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.Require(b, e.Msgsize())
	b = msgp.AppendMapHeader(b, entryFields)

	b = msgp.AppendString(b, "id")
	id := uuidExt(e.ID)
	b, err := msgp.AppendExtension(b, &id)
	if err != nil {
		return b, msgp.WrapError(err, "ID")
	}

	b = msgp.AppendString(b, "table")
	b = msgp.AppendString(b, e.Table)

	var row []byte
	var edits []types.Edit
	if e.Mutation != nil {
		row, edits = e.Mutation.RowKey, e.Mutation.Edits
	}

	b = msgp.AppendString(b, "row")
	b = msgp.AppendBytes(b, row)

	b = msgp.AppendString(b, "edits")
	b = wire.AppendEdits(b, edits)

	b = msgp.AppendString(b, "cause")
	b = msgp.AppendString(b, e.Cause)

	b = msgp.AppendString(b, "attempts")
	b = msgp.AppendInt(b, e.Attempts)

	b = msgp.AppendString(b, "failed_at")
	b = msgp.AppendInt64(b, e.FailedAt.UnixNano())

	return b, nil
}

// UnmarshalMsg decodes e from the front of bts and returns the remaining bytes.
// Unknown keys are skipped.
func (e *Entry) UnmarshalMsg(bts []byte) ([]byte, error) {
	n, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, msgp.WrapError(err)
	}

	m := &types.Mutation{}
	*e = Entry{Mutation: m}

	for range n {
		var key string
		key, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, msgp.WrapError(err)
		}

		switch key {
		case "id":
			var id uuidExt
			bts, err = msgp.ReadExtensionBytes(bts, &id)
			if err != nil {
				return bts, msgp.WrapError(err, "ID")
			}
			e.ID = uuid.UUID(id)
		case "table":
			e.Table, bts, err = msgp.ReadStringBytes(bts)
			if err != nil {
				return bts, msgp.WrapError(err, "Table")
			}
		case "row":
			m.RowKey, bts, err = wire.ReadBytes(bts)
			if err != nil {
				return bts, msgp.WrapError(err, "Row")
			}
		case "edits":
			m.Edits, bts, err = wire.ReadEdits(bts)
			if err != nil {
				return bts, msgp.WrapError(err, "Edits")
			}
		case "cause":
			e.Cause, bts, err = msgp.ReadStringBytes(bts)
			if err != nil {
				return bts, msgp.WrapError(err, "Cause")
			}
		case "attempts":
			e.Attempts, bts, err = msgp.ReadIntBytes(bts)
			if err != nil {
				return bts, msgp.WrapError(err, "Attempts")
			}
		case "failed_at":
			var nanos int64
			nanos, bts, err = msgp.ReadInt64Bytes(bts)
			if err != nil {
				return bts, msgp.WrapError(err, "FailedAt")
			}
			e.FailedAt = time.Unix(0, nanos).UTC()
		default:
			bts, err = msgp.Skip(bts)
			if err != nil {
				return bts, msgp.WrapError(err, key)
			}
		}
	}

	return bts, nil
}

// Msgsize returns an upper bound estimate of the encoded size of e.
func (e *Entry) Msgsize() int {
	s := msgp.MapHeaderSize +
		msgp.StringPrefixSize + 2 + msgp.ExtensionPrefixSize + len(e.ID) +
		msgp.StringPrefixSize + 5 + msgp.StringPrefixSize + len(e.Table) +
		msgp.StringPrefixSize + 3 + msgp.BytesPrefixSize +
		msgp.StringPrefixSize + 5 + msgp.ArrayHeaderSize +
		msgp.StringPrefixSize + 5 + msgp.StringPrefixSize + len(e.Cause) +
		msgp.StringPrefixSize + 8 + msgp.IntSize +
		msgp.StringPrefixSize + 9 + msgp.Int64Size

	if e.Mutation != nil {
		s += len(e.Mutation.RowKey) + wire.EditsSize(e.Mutation.Edits)
	}

	return s
}
