package cql

import (
	"errors"
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/BrendanGleason/cloud-bigtable-client/policy"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// requestErr implements gocql.RequestError.
type requestErr struct {
	code int
}

func (e requestErr) Code() int       { return e.code }
func (e requestErr) Message() string { return "server said no" }
func (e requestErr) Error() string   { return e.Message() }

func TestTableName(t *testing.T) {
	name, err := TableName("projects/p/instances/i/tables/users")
	require.NoError(t, err)
	require.Equal(t, "users", name)

	name, err = TableName("events")
	require.NoError(t, err)
	require.Equal(t, "events", name)

	for _, bad := range []string{"", "tables/", "tables/drop table;", "tables/9lives"} {
		_, err := TableName(bad)
		require.ErrorIs(t, err, types.ErrUnsupportedPayload, bad)
	}
}

func TestCellTableSchema(t *testing.T) {
	stmt, err := CellTableSchema("tables/users")
	require.NoError(t, err)
	require.Contains(t, stmt, "CREATE TABLE IF NOT EXISTS users")
	require.Contains(t, stmt, "PRIMARY KEY (row_key, family, qualifier)")
}

func TestMutationStatements(t *testing.T) {
	row := []byte("r1")
	m := &types.Mutation{
		RowKey: row,
		Edits: []types.Edit{
			{Kind: types.KindSet, Family: "cf", Qualifier: []byte("q"), Value: []byte("v"), Timestamp: 10},
			{Kind: types.KindSet, Family: "cf", Qualifier: []byte("q2"), Value: []byte("w"), Timestamp: types.ServerTimestamp},
			{Kind: types.KindDelete, Family: "cf", Qualifier: []byte("old"), Timestamp: 11},
			{Kind: types.KindDelete, Family: "stale", Timestamp: 12},
			{Kind: types.KindDelete, Timestamp: types.ServerTimestamp},
		},
	}

	stmts, err := mutationStatements("tables/users", m)
	require.NoError(t, err)
	require.Len(t, stmts, 5)

	require.Equal(t, "INSERT INTO users (row_key, family, qualifier, value) VALUES (?, ?, ?, ?) USING TIMESTAMP ?", stmts[0].query)
	require.Equal(t, []any{row, "cf", []byte("q"), []byte("v"), int64(10)}, stmts[0].args)

	require.Equal(t, "INSERT INTO users (row_key, family, qualifier, value) VALUES (?, ?, ?, ?)", stmts[1].query)
	require.Len(t, stmts[1].args, 4)

	require.Equal(t, "DELETE FROM users USING TIMESTAMP ? WHERE row_key = ? AND family = ? AND qualifier = ?", stmts[2].query)
	require.Equal(t, []any{int64(11), row, "cf", []byte("old")}, stmts[2].args)

	require.Equal(t, "DELETE FROM users USING TIMESTAMP ? WHERE row_key = ? AND family = ?", stmts[3].query)
	require.Equal(t, []any{int64(12), row, "stale"}, stmts[3].args)

	require.Equal(t, "DELETE FROM users WHERE row_key = ?", stmts[4].query)
	require.Equal(t, []any{row}, stmts[4].args)
}

func TestMutationStatementsRejectsReadModifyWrite(t *testing.T) {
	for _, kind := range []types.EditKind{types.KindIncrement, types.KindAppend} {
		_, err := mutationStatements("users", &types.Mutation{
			RowKey: []byte("r"),
			Edits:  []types.Edit{{Kind: kind, Family: "cf", Qualifier: []byte("n"), Timestamp: 1}},
		})
		require.ErrorIs(t, err, types.ErrUnsupportedPayload)
		require.False(t, policy.IsTransient(err))
	}

	_, err := mutationStatements("users", nil)
	require.ErrorIs(t, err, types.ErrUnsupportedPayload)
}

func TestWithStatus(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		want      codes.Code
		transient bool
	}{
		{"unavailable", gocql.ErrCodeUnavailable, codes.Unavailable, true},
		{"overloaded", gocql.ErrCodeOverloaded, codes.Unavailable, true},
		{"write timeout", gocql.ErrCodeWriteTimeout, codes.DeadlineExceeded, true},
		{"syntax", gocql.ErrCodeSyntax, codes.InvalidArgument, false},
		{"unauthorized", gocql.ErrCodeUnauthorized, codes.PermissionDenied, false},
		{"already exists", gocql.ErrCodeAlreadyExists, codes.AlreadyExists, false},
		{"server", gocql.ErrCodeServer, codes.Internal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cause := requestErr{code: tt.code}
			err := withStatus(cause)

			require.Equal(t, tt.want, policy.Code(err))
			require.Equal(t, tt.transient, policy.IsTransient(err))
			require.ErrorIs(t, err, cause)
			require.Equal(t, cause.Error(), err.Error())
		})
	}

	require.Equal(t, codes.DeadlineExceeded, policy.Code(withStatus(gocql.ErrTimeoutNoResponse)))

	plain := errors.New("plain")
	require.Same(t, plain, withStatus(plain))
}

func TestClassifyConnectionErrors(t *testing.T) {
	tr := &Transport{endpoint: "10.0.0.1", terminated: make(chan struct{})}

	for _, cause := range []error{gocql.ErrNoConnections, gocql.ErrConnectionClosed, gocql.ErrSessionClosed} {
		err := tr.classify(cause)
		require.True(t, types.IsConnectionError(err), cause.Error())
		require.ErrorIs(t, err, cause)
	}

	require.False(t, types.IsConnectionError(tr.classify(requestErr{code: gocql.ErrCodeInvalid})))
}

func TestCallRejectsUnsupportedPayload(t *testing.T) {
	tr := &Transport{terminated: make(chan struct{})}

	r, ok := tr.Call(t.Context(), types.Request{Method: types.MethodMutateRow, Payload: 42}).Result()
	require.True(t, ok)
	require.ErrorIs(t, r.Err, types.ErrUnsupportedPayload)

	r, ok = tr.Call(t.Context(), types.Request{
		Method:  types.MethodMutateRow,
		Payload: &types.MutateRowRequest{Table: "bad name", Mutation: &types.Mutation{RowKey: []byte("r")}},
	}).Result()
	require.True(t, ok)
	require.ErrorIs(t, r.Err, types.ErrUnsupportedPayload)
}

func TestNewFactoryValidates(t *testing.T) {
	_, err := NewFactory(nil)
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = NewFactory(&gocql.ClusterConfig{})
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	f, err := NewFactory(gocql.NewCluster("127.0.0.1"))
	require.NoError(t, err)
	require.NotNil(t, f)
}
