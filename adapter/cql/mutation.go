package cql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gocql/gocql"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableName returns the CQL table backing a fully qualified table name: its
// last path segment, e.g. "users" for "projects/p/instances/i/tables/users".
//
// Returns:
//   - string: The CQL table name
//   - error: ErrUnsupportedPayload if the segment is not a plain identifier
func TableName(table string) (string, error) {
	name := table[strings.LastIndexByte(table, '/')+1:]
	if !identifier.MatchString(name) {
		return "", fmt.Errorf("%w: table %q is not a CQL identifier", types.ErrUnsupportedPayload, table)
	}

	return name, nil
}

// CellTableSchema returns the CREATE TABLE statement of the cell table for table.
func CellTableSchema(table string) (string, error) {
	name, err := TableName(table)
	if err != nil {
		return "", err
	}

	return "CREATE TABLE IF NOT EXISTS " + name + ` (
		row_key blob,
		family text,
		qualifier blob,
		value blob,
		PRIMARY KEY (row_key, family, qualifier)
	)`, nil
}

// statement is one CQL statement with its bound values.
type statement struct {
	query string
	args  []any
}

// mutationStatements translates m into one statement per edit.
//
// Set edits become inserts and delete edits become row, family or cell
// deletes. Explicit timestamps are kept as write timestamps. Increment and
// append edits have no equivalent on a blob cell table.
func mutationStatements(table string, m *types.Mutation) ([]statement, error) {
	name, err := TableName(table)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: nil mutation", types.ErrUnsupportedPayload)
	}

	stmts := make([]statement, 0, len(m.Edits))
	for i, e := range m.Edits {
		using, tsArgs := "", []any(nil)
		if e.HasExplicitTimestamp() {
			using, tsArgs = " USING TIMESTAMP ?", []any{e.Timestamp}
		}

		switch e.Kind {
		case types.KindSet:
			args := append([]any{m.RowKey, e.Family, e.Qualifier, e.Value}, tsArgs...)
			stmts = append(stmts, statement{
				query: "INSERT INTO " + name + " (row_key, family, qualifier, value) VALUES (?, ?, ?, ?)" + using,
				args:  args,
			})
		case types.KindDelete:
			where, keys := " WHERE row_key = ?", []any{m.RowKey}
			if e.Family != "" {
				where += " AND family = ?"
				keys = append(keys, e.Family)
				if e.Qualifier != nil {
					where += " AND qualifier = ?"
					keys = append(keys, e.Qualifier)
				}
			}
			stmts = append(stmts, statement{
				query: "DELETE FROM " + name + using + where,
				args:  append(tsArgs, keys...),
			})
		default:
			return nil, fmt.Errorf("%w: edit %d (%s) is not supported over CQL", types.ErrUnsupportedPayload, i, e.Kind)
		}
	}

	return stmts, nil
}

// buildMutation returns a logged batch applying m atomically.
func buildMutation(session *gocql.Session, table string, m *types.Mutation) (*gocql.Batch, error) {
	stmts, err := mutationStatements(table, m)
	if err != nil {
		return nil, err
	}

	b := session.NewBatch(gocql.LoggedBatch)
	for _, s := range stmts {
		b.Query(s.query, s.args...)
	}

	return b, nil
}

// statusError attaches a status code to a driver error.
type statusError struct {
	code codes.Code
	err  error
}

func (e *statusError) Error() string {
	return e.err.Error()
}

func (e *statusError) Unwrap() error {
	return e.err
}

// GRPCStatus exposes the code to status.Code and the retry policy.
func (e *statusError) GRPCStatus() *status.Status {
	return status.New(e.code, e.err.Error())
}

// withStatus maps Cassandra error codes onto status codes.
func withStatus(err error) error {
	if errors.Is(err, gocql.ErrTimeoutNoResponse) {
		return &statusError{code: codes.DeadlineExceeded, err: err}
	}

	var reqErr gocql.RequestError
	if !errors.As(err, &reqErr) {
		return err
	}

	var code codes.Code
	switch reqErr.Code() {
	case gocql.ErrCodeUnavailable, gocql.ErrCodeOverloaded, gocql.ErrCodeBootstrapping:
		code = codes.Unavailable
	case gocql.ErrCodeWriteTimeout, gocql.ErrCodeReadTimeout:
		code = codes.DeadlineExceeded
	case gocql.ErrCodeUnprepared:
		code = codes.Aborted
	case gocql.ErrCodeSyntax, gocql.ErrCodeInvalid, gocql.ErrCodeConfig:
		code = codes.InvalidArgument
	case gocql.ErrCodeUnauthorized, gocql.ErrCodeCredentials:
		code = codes.PermissionDenied
	case gocql.ErrCodeAlreadyExists:
		code = codes.AlreadyExists
	default:
		code = codes.Internal
	}

	return &statusError{code: code, err: err}
}
