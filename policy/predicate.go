package policy

import (
	"maps"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// RetryPredicate decides whether a specific request is safe to resubmit.
//
// Predicates only inspect the request; whether the failure itself is worth
// retrying is decided separately by IsTransient.
type RetryPredicate interface {
	// Retryable reports whether req may be issued more than once.
	Retryable(req types.Request) bool
}

// RetryPredicateFunc adapts a function to the RetryPredicate interface.
type RetryPredicateFunc func(req types.Request) bool

// Retryable implements RetryPredicate.
func (f RetryPredicateFunc) Retryable(req types.Request) bool {
	return f(req)
}

// Always is a predicate for idempotent methods.
var Always RetryPredicate = RetryPredicateFunc(func(types.Request) bool { return true })

// MutateRowPredicate allows a MutateRow retry only when every edit carries an
// explicit timestamp.
//
// A server-assigned timestamp would give a resubmitted edit a new cell version,
// so such mutations are issued once.
var MutateRowPredicate RetryPredicate = RetryPredicateFunc(func(req types.Request) bool {
	var m *types.Mutation
	switch p := req.Payload.(type) {
	case *types.MutateRowRequest:
		if p == nil {
			return false
		}
		m = p.Mutation
	case *types.Mutation:
		m = p
	default:
		return false
	}
	if m == nil {
		return false
	}

	return types.AllTimestampsExplicit(m.Edits)
})

// CheckAndMutateRowPredicate allows a CheckAndMutateRow retry only when every
// true and false edit carries an explicit timestamp.
var CheckAndMutateRowPredicate RetryPredicate = RetryPredicateFunc(func(req types.Request) bool {
	p, ok := req.Payload.(*types.CheckAndMutateRowRequest)
	if !ok || p == nil {
		return false
	}

	return types.AllTimestampsExplicit(p.TrueMutations) && types.AllTimestampsExplicit(p.FalseMutations)
})

// MethodPredicates maps a method to the predicate that gates its retries.
//
// Methods absent from the map are never retried.
type MethodPredicates map[types.Method]RetryPredicate

// DefaultMethodPredicates returns the predicates for the retryable data methods.
//
// Returns:
//   - MethodPredicates: A fresh map safe to modify
func DefaultMethodPredicates() MethodPredicates {
	return MethodPredicates{
		types.MethodMutateRow:         MutateRowPredicate,
		types.MethodCheckAndMutateRow: CheckAndMutateRowPredicate,
	}
}

// Clone returns a shallow copy of the map.
func (p MethodPredicates) Clone() MethodPredicates {
	return maps.Clone(p)
}

// Eligible reports whether req may be retried.
//
// Parameters:
//   - req: The request about to be issued
//
// Returns:
//   - bool: true if the method is registered and its predicate accepts req
func (p MethodPredicates) Eligible(req types.Request) bool {
	pred, ok := p[req.Method]
	if !ok || pred == nil {
		return false
	}

	return pred.Retryable(req)
}
