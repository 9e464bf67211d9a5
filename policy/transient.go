package policy

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// transientCodes are the status codes a retry can reasonably recover from.
var transientCodes = map[codes.Code]struct{}{
	codes.Unavailable:      {},
	codes.DeadlineExceeded: {},
	codes.Aborted:          {},
}

// IsTransient reports whether err is a failure worth retrying.
//
// Connection-level failures, per-attempt deadlines and the Unavailable,
// DeadlineExceeded and Aborted status codes are transient. A cancelled
// context is never transient.
//
// Parameters:
//   - err: The failure of an attempt
//
// Returns:
//   - bool: true if resubmitting may succeed
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if types.IsConnectionError(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	_, ok := transientCodes[Code(err)]

	return ok
}

// Code extracts the status code carried by err.
//
// Wrapped status errors are found through errors.As. Context errors map to
// their canonical codes and connection failures to Unavailable.
//
// Parameters:
//   - err: Any error, may be nil
//
// Returns:
//   - codes.Code: OK for nil, Unknown when no code can be derived
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}

	var se interface{ GRPCStatus() *status.Status }
	if errors.As(err, &se) {
		return se.GRPCStatus().Code()
	}
	if s := status.FromContextError(err); s.Code() != codes.Unknown {
		return s.Code()
	}
	if types.IsConnectionError(err) {
		return codes.Unavailable
	}
	if errors.Is(err, types.ErrUnsupportedMutation) || errors.Is(err, types.ErrUnsupportedPayload) {
		return codes.InvalidArgument
	}

	return codes.Unknown
}
