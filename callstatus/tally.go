// Package callstatus counts completed calls by method and status code and
// writes the counts to a report file.
//
// A session with a report path keeps two tallies: one below the retrying
// channel, which sees every attempt, and one above it, which sees only the
// final outcome of each call. Comparing the two shows how much work retries
// absorbed.
package callstatus

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"google.golang.org/grpc/codes"

	"github.com/BrendanGleason/cloud-bigtable-client/policy"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// Report line prefixes.
const (
	PreRetry  = "PreRetry"
	PostRetry = "PostRetry"
)

// Entry is the number of calls to one method that ended with one status code.
type Entry struct {
	Method types.Method
	Code   codes.Code
	Count  int64
}

type key struct {
	method types.Method
	code   codes.Code
}

// Tally is a channel wrapper that counts call outcomes.
//
// Tally is safe for concurrent use.
type Tally struct {
	next   types.Channel
	prefix string

	mu     sync.Mutex
	counts map[key]int64
}

// Compile-time assertion that Tally implements types.Channel.
var _ types.Channel = (*Tally)(nil)

// NewTally wraps next.
//
// Parameters:
//   - next: The channel whose completions are counted
//   - prefix: Line prefix used in the report, e.g. PreRetry
//
// Returns:
//   - *Tally: A new, empty tally
func NewTally(next types.Channel, prefix string) *Tally {
	return &Tally{
		next:   next,
		prefix: prefix,
		counts: make(map[key]int64),
	}
}

// Call forwards req and counts its outcome when it completes.
func (t *Tally) Call(ctx context.Context, req types.Request) *types.Future {
	fut := t.next.Call(ctx, req)
	fut.OnComplete(func(r types.Result) {
		t.Record(req.Method, policy.Code(r.Err))
	})

	return fut
}

// Record counts one completion.
func (t *Tally) Record(method types.Method, code codes.Code) {
	t.mu.Lock()
	t.counts[key{method: method, code: code}]++
	t.mu.Unlock()
}

// Prefix returns the report line prefix.
func (t *Tally) Prefix() string {
	return t.prefix
}

// Entries returns the counts ordered by method, then code.
func (t *Tally) Entries() []Entry {
	t.mu.Lock()
	entries := make([]Entry, 0, len(t.counts))
	for k, n := range t.counts {
		entries = append(entries, Entry{Method: k.method, Code: k.code, Count: n})
	}
	t.mu.Unlock()

	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Or(
			strings.Compare(string(a.Method), string(b.Method)),
			cmp.Compare(a.Code, b.Code),
		)
	})

	return entries
}

// Count returns the number of completions recorded for method and code.
func (t *Tally) Count(method types.Method, code codes.Code) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.counts[key{method: method, code: code}]
}
