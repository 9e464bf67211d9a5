package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	require.Equal(t, CodecName, c.Name())
}

func TestMutateRowRequest(t *testing.T) {
	in := &types.MutateRowRequest{
		Table: "projects/p/instances/i/tables/t",
		Mutation: &types.Mutation{
			RowKey: []byte("r1"),
			Edits: []types.Edit{
				{Kind: types.KindSet, Family: "cf", Qualifier: []byte("q"), Value: []byte("v"), Timestamp: 10},
				{Kind: types.KindAppend, Family: "cf", Qualifier: []byte("log"), Value: []byte("+"), Timestamp: types.ServerTimestamp},
			},
		},
	}

	data, err := Codec{}.Marshal((*MutateRowRequest)(in))
	require.NoError(t, err)

	var out MutateRowRequest
	require.NoError(t, Codec{}.Unmarshal(data, &out))
	require.Equal(t, *in, types.MutateRowRequest(out))
}

func TestCheckAndMutateRowRequest(t *testing.T) {
	in := &CheckAndMutateRowRequest{
		Table:          "t",
		RowKey:         []byte("r"),
		Filter:         []byte{0x01},
		TrueMutations:  []types.Edit{{Kind: types.KindDelete, Timestamp: 5}},
		FalseMutations: []types.Edit{{Kind: types.KindIncrement, Family: "c", Qualifier: []byte("n"), Amount: 2, Timestamp: 5}},
	}

	data, err := in.MarshalMsg(nil)
	require.NoError(t, err)

	var out CheckAndMutateRowRequest
	rest, err := out.UnmarshalMsg(data)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, *in, out)

	resp := &CheckAndMutateRowResponse{PredicateMatched: true}
	data, err = resp.MarshalMsg(nil)
	require.NoError(t, err)
	var gotResp CheckAndMutateRowResponse
	_, err = gotResp.UnmarshalMsg(data)
	require.NoError(t, err)
	require.True(t, gotResp.PredicateMatched)
}

func TestCodecRejectsForeignTypes(t *testing.T) {
	_, err := Codec{}.Marshal("plain string")
	require.Error(t, err)

	var s string
	require.Error(t, Codec{}.Unmarshal([]byte{0x90}, &s))
}

func TestUnmarshalWrongArity(t *testing.T) {
	data, err := (&Empty{}).MarshalMsg(nil)
	require.NoError(t, err)

	var out MutateRowRequest
	_, err = out.UnmarshalMsg(data)
	require.Error(t, err)
}
