package callstatus

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/BrendanGleason/cloud-bigtable-client/test/testutil"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

func TestTallyCountsOutcomes(t *testing.T) {
	next := testutil.NewMockChannel(
		status.Error(codes.Unavailable, "down"),
		nil,
		status.Error(codes.Unavailable, "down"),
	)
	tally := NewTally(next, PreRetry)
	ctx := context.Background()

	for range 4 {
		tally.Call(ctx, types.Request{Method: types.MethodMutateRow})
	}
	tally.Call(ctx, types.Request{Method: types.MethodCheckAndMutateRow})

	require.Equal(t, int64(2), tally.Count(types.MethodMutateRow, codes.Unavailable))
	require.Equal(t, int64(2), tally.Count(types.MethodMutateRow, codes.OK))
	require.Equal(t, int64(1), tally.Count(types.MethodCheckAndMutateRow, codes.OK))

	entries := tally.Entries()
	require.Equal(t, []Entry{
		{Method: types.MethodCheckAndMutateRow, Code: codes.OK, Count: 1},
		{Method: types.MethodMutateRow, Code: codes.OK, Count: 2},
		{Method: types.MethodMutateRow, Code: codes.Unavailable, Count: 2},
	}, entries)
}

func TestWriteTo(t *testing.T) {
	pre := NewTally(testutil.NewMockChannel(), PreRetry)
	post := NewTally(testutil.NewMockChannel(), PostRetry)
	pre.Record(types.MethodMutateRow, codes.Unavailable)
	pre.Record(types.MethodMutateRow, codes.OK)
	post.Record(types.MethodMutateRow, codes.OK)

	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, pre, nil, post))

	require.Equal(t, strings.Join([]string{
		"PreRetry,google.bigtable.v1.BigtableService/MutateRow,OK,1",
		"PreRetry,google.bigtable.v1.BigtableService/MutateRow,Unavailable,1",
		"PostRetry,google.bigtable.v1.BigtableService/MutateRow,OK,1",
	}, "\n")+"\n", buf.String())
}

func TestWriteReportAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.csv")
	tally := NewTally(testutil.NewMockChannel(), PostRetry)
	tally.Record(types.MethodMutateRow, codes.OK)

	require.NoError(t, WriteReport(path, tally))
	require.NoError(t, WriteReport(path, tally))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, lines[0], lines[1])
}

func TestWriteReportBadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "calls.csv")
	require.Error(t, WriteReport(path, NewTally(testutil.NewMockChannel(), PreRetry)))
}
