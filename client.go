package bigtable

import "github.com/BrendanGleason/cloud-bigtable-client/types"

// Type aliases for convenience - re-export from types package.
type (
	Channel          = types.Channel
	Method           = types.Method
	Request          = types.Request
	Response         = types.Response
	Mutation         = types.Mutation
	Edit             = types.Edit
	EditKind         = types.EditKind
	Logger           = types.Logger
	MetricsCollector = types.MetricsCollector
)

// Re-export method constants for convenience.
const (
	MethodMutateRow         = types.MethodMutateRow
	MethodCheckAndMutateRow = types.MethodCheckAndMutateRow
	MethodReadModifyWrite   = types.MethodReadModifyWrite
)

// Re-export edit kinds for convenience.
const (
	KindSet       = types.KindSet
	KindDelete    = types.KindDelete
	KindIncrement = types.KindIncrement
	KindAppend    = types.KindAppend
)

// ServerTimestamp asks the server to assign a cell timestamp. Mutations
// carrying it are never retried.
const ServerTimestamp = types.ServerTimestamp
