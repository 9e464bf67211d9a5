package wire

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// RPC messages are encoded as fixed-length arrays.

// MutateRowRequest is the wire form of types.MutateRowRequest.
type MutateRowRequest types.MutateRowRequest

// MarshalMsg appends [table, row, edits].
func (r *MutateRowRequest) MarshalMsg(b []byte) ([]byte, error) {
	var row []byte
	var edits []types.Edit
	if r.Mutation != nil {
		row, edits = r.Mutation.RowKey, r.Mutation.Edits
	}

	b = msgp.Require(b, msgp.ArrayHeaderSize+msgp.StringPrefixSize+len(r.Table)+
		msgp.BytesPrefixSize+len(row)+EditsSize(edits))
	b = msgp.AppendArrayHeader(b, 3)
	b = msgp.AppendString(b, r.Table)
	b = msgp.AppendBytes(b, row)
	b = AppendEdits(b, edits)

	return b, nil
}

// UnmarshalMsg decodes r from the front of bts.
func (r *MutateRowRequest) UnmarshalMsg(bts []byte) ([]byte, error) {
	bts, err := readArrayHeader(bts, 3)
	if err != nil {
		return bts, err
	}

	m := &types.Mutation{}
	*r = MutateRowRequest{Mutation: m}
	if r.Table, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return bts, msgp.WrapError(err, "Table")
	}
	if m.RowKey, bts, err = ReadBytes(bts); err != nil {
		return bts, msgp.WrapError(err, "RowKey")
	}
	if m.Edits, bts, err = ReadEdits(bts); err != nil {
		return bts, msgp.WrapError(err, "Edits")
	}

	return bts, nil
}

// CheckAndMutateRowRequest is the wire form of types.CheckAndMutateRowRequest.
type CheckAndMutateRowRequest types.CheckAndMutateRowRequest

// MarshalMsg appends [table, row, filter, true edits, false edits].
func (r *CheckAndMutateRowRequest) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.Require(b, msgp.ArrayHeaderSize+msgp.StringPrefixSize+len(r.Table)+
		2*msgp.BytesPrefixSize+len(r.RowKey)+len(r.Filter)+
		EditsSize(r.TrueMutations)+EditsSize(r.FalseMutations))
	b = msgp.AppendArrayHeader(b, 5)
	b = msgp.AppendString(b, r.Table)
	b = msgp.AppendBytes(b, r.RowKey)
	b = msgp.AppendBytes(b, r.Filter)
	b = AppendEdits(b, r.TrueMutations)
	b = AppendEdits(b, r.FalseMutations)

	return b, nil
}

// UnmarshalMsg decodes r from the front of bts.
func (r *CheckAndMutateRowRequest) UnmarshalMsg(bts []byte) ([]byte, error) {
	bts, err := readArrayHeader(bts, 5)
	if err != nil {
		return bts, err
	}

	*r = CheckAndMutateRowRequest{}
	if r.Table, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return bts, msgp.WrapError(err, "Table")
	}
	if r.RowKey, bts, err = ReadBytes(bts); err != nil {
		return bts, msgp.WrapError(err, "RowKey")
	}
	if r.Filter, bts, err = ReadBytes(bts); err != nil {
		return bts, msgp.WrapError(err, "Filter")
	}
	if r.TrueMutations, bts, err = ReadEdits(bts); err != nil {
		return bts, msgp.WrapError(err, "TrueMutations")
	}
	if r.FalseMutations, bts, err = ReadEdits(bts); err != nil {
		return bts, msgp.WrapError(err, "FalseMutations")
	}

	return bts, nil
}

// CheckAndMutateRowResponse is the wire form of types.CheckAndMutateRowResponse.
type CheckAndMutateRowResponse types.CheckAndMutateRowResponse

// MarshalMsg appends [predicate matched].
func (r *CheckAndMutateRowResponse) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendArrayHeader(b, 1)

	return msgp.AppendBool(b, r.PredicateMatched), nil
}

// UnmarshalMsg decodes r from the front of bts.
func (r *CheckAndMutateRowResponse) UnmarshalMsg(bts []byte) ([]byte, error) {
	bts, err := readArrayHeader(bts, 1)
	if err != nil {
		return bts, err
	}
	if r.PredicateMatched, bts, err = msgp.ReadBoolBytes(bts); err != nil {
		return bts, msgp.WrapError(err, "PredicateMatched")
	}

	return bts, nil
}

// Empty is a message without fields, encoded as an empty array.
type Empty struct{}

// MarshalMsg appends an empty array.
func (*Empty) MarshalMsg(b []byte) ([]byte, error) {
	return msgp.AppendArrayHeader(b, 0), nil
}

// UnmarshalMsg skips one value.
func (*Empty) UnmarshalMsg(bts []byte) ([]byte, error) {
	return msgp.Skip(bts)
}

func readArrayHeader(bts []byte, want uint32) ([]byte, error) {
	n, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return bts, msgp.WrapError(err)
	}
	if n != want {
		return bts, msgp.ArrayError{Wanted: want, Got: n}
	}

	return bts, nil
}
