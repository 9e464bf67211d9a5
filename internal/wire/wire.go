// Package wire provides the MessagePack encoding of row mutations shared by
// the gRPC codec and the dead-letter entry format.
package wire

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
	"google.golang.org/grpc/encoding"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// CodecName is the gRPC content subtype of Codec ("application/grpc+msgpack").
const CodecName = "msgpack"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec is a gRPC codec for msgp-encodable messages.
type Codec struct{}

// Compile-time assertion that Codec implements encoding.Codec.
var _ encoding.Codec = Codec{}

// Marshal encodes v, which must implement msgp.Marshaler.
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(msgp.Marshaler)
	if !ok {
		return nil, fmt.Errorf("wire: cannot marshal %T", v)
	}

	return m.MarshalMsg(nil)
}

// Unmarshal decodes data into v, which must implement msgp.Unmarshaler.
func (Codec) Unmarshal(data []byte, v any) error {
	u, ok := v.(msgp.Unmarshaler)
	if !ok {
		return fmt.Errorf("wire: cannot unmarshal into %T", v)
	}
	_, err := u.UnmarshalMsg(data)

	return err
}

// Name returns CodecName.
func (Codec) Name() string {
	return CodecName
}

// editFields is the number of array elements per encoded edit.
const editFields = 6

// AppendEdits appends edits as an array of fixed-size arrays.
func AppendEdits(b []byte, edits []types.Edit) []byte {
	b = msgp.AppendArrayHeader(b, uint32(len(edits))) //nolint:gosec // edit count is far below 2^32
	for i := range edits {
		ed := &edits[i]
		b = msgp.AppendArrayHeader(b, editFields)
		b = msgp.AppendUint8(b, uint8(ed.Kind))
		b = msgp.AppendString(b, ed.Family)
		b = msgp.AppendBytes(b, ed.Qualifier)
		b = msgp.AppendBytes(b, ed.Value)
		b = msgp.AppendInt64(b, ed.Timestamp)
		b = msgp.AppendInt64(b, ed.Amount)
	}

	return b
}

// EditsSize returns an upper bound of the encoded size of edits.
func EditsSize(edits []types.Edit) int {
	s := msgp.ArrayHeaderSize
	for i := range edits {
		ed := &edits[i]
		s += msgp.ArrayHeaderSize + msgp.Uint8Size +
			msgp.StringPrefixSize + len(ed.Family) +
			msgp.BytesPrefixSize + len(ed.Qualifier) +
			msgp.BytesPrefixSize + len(ed.Value) +
			2*msgp.Int64Size
	}

	return s
}

// ReadEdits reads an array written by AppendEdits. An empty array reads as nil.
func ReadEdits(bts []byte) ([]types.Edit, []byte, error) {
	n, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return nil, bts, err
	}
	if n == 0 {
		return nil, bts, nil
	}

	edits := make([]types.Edit, n)
	for i := range edits {
		var fields uint32
		fields, bts, err = msgp.ReadArrayHeaderBytes(bts)
		if err != nil {
			return nil, bts, msgp.WrapError(err, i)
		}
		if fields != editFields {
			return nil, bts, msgp.WrapError(msgp.ArrayError{Wanted: editFields, Got: fields}, i)
		}

		ed := &edits[i]
		var kind uint8
		if kind, bts, err = msgp.ReadUint8Bytes(bts); err != nil {
			return nil, bts, msgp.WrapError(err, i, "Kind")
		}
		ed.Kind = types.EditKind(kind)
		if ed.Family, bts, err = msgp.ReadStringBytes(bts); err != nil {
			return nil, bts, msgp.WrapError(err, i, "Family")
		}
		if ed.Qualifier, bts, err = ReadBytes(bts); err != nil {
			return nil, bts, msgp.WrapError(err, i, "Qualifier")
		}
		if ed.Value, bts, err = ReadBytes(bts); err != nil {
			return nil, bts, msgp.WrapError(err, i, "Value")
		}
		if ed.Timestamp, bts, err = msgp.ReadInt64Bytes(bts); err != nil {
			return nil, bts, msgp.WrapError(err, i, "Timestamp")
		}
		if ed.Amount, bts, err = msgp.ReadInt64Bytes(bts); err != nil {
			return nil, bts, msgp.WrapError(err, i, "Amount")
		}
	}

	return edits, bts, nil
}

// ReadBytes reads a bin value into a fresh slice. An empty value reads as nil.
func ReadBytes(bts []byte) ([]byte, []byte, error) {
	v, bts, err := msgp.ReadBytesBytes(bts, nil)
	if err != nil {
		return nil, bts, err
	}
	if len(v) == 0 {
		v = nil
	}

	return v, bts, nil
}
