package executor

import (
	"context"
	"sync"

	"github.com/vektah/gqlparser/v2/gqlerror"

	language "github.com/hanpama/gqlhttp/internal/language"
)

// Result is one GraphQL response payload. For incremental delivery HasNext is
// set on every payload and later payloads carry Incremental entries.
type Result struct {
	Data        any            `json:"data,omitempty"`
	Errors      gqlerror.List  `json:"errors,omitempty"`
	Extensions  map[string]any `json:"extensions,omitempty"`
	Incremental []*Incremental `json:"incremental,omitempty"`
	HasNext     *bool          `json:"hasNext,omitempty"`
}

// Incremental is a deferred fragment's payload.
type Incremental struct {
	Data   any           `json:"data"`
	Errors gqlerror.List `json:"errors,omitempty"`
	Path   language.Path `json:"path"`
	Label  string        `json:"label,omitempty"`
}

// More reports whether further payloads follow r.
func (r *Result) More() bool { return r != nil && r.HasNext != nil && *r.HasNext }

// ErrorResult wraps errs into a Result without data.
func ErrorResult(errs ...*gqlerror.Error) *Result {
	return &Result{Errors: gqlerror.List(errs)}
}

func hasNext(b bool) *bool { return &b }

// Outcome is what Execute and Subscribe produce: exactly one of Result or
// Stream is set.
type Outcome struct {
	Result *Result
	Stream Sequence
}

// IsStream reports whether the outcome is an asynchronous sequence.
func (o Outcome) IsStream() bool { return o.Stream != nil }

// Sequence is a pull-based iterator of results.
//
// Next blocks until the next result is available, the sequence is exhausted
// (ok == false) or ctx is done. Close releases upstream resources; it is safe
// to call more than once and after exhaustion.
type Sequence interface {
	Next(ctx context.Context) (res *Result, ok bool, err error)
	Close() error
}

// Single returns a one-shot sequence yielding r.
func Single(r *Result) Sequence { return FromResults(r) }

// FromResults returns a sequence yielding rs in order.
func FromResults(rs ...*Result) Sequence {
	return &sliceSequence{results: rs}
}

type sliceSequence struct {
	mu      sync.Mutex
	results []*Result
	closed  bool
}

func (s *sliceSequence) Next(ctx context.Context) (*Result, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.results) == 0 {
		return nil, false, nil
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r, true, nil
}

func (s *sliceSequence) Close() error {
	s.mu.Lock()
	s.closed = true
	s.results = nil
	s.mu.Unlock()
	return nil
}

// MapSequence returns a sequence applying fn to every result of src.
// Closing it closes src.
func MapSequence(src Sequence, fn func(*Result) *Result) Sequence {
	return &mappedSequence{src: src, fn: fn}
}

type mappedSequence struct {
	src Sequence
	fn  func(*Result) *Result
}

func (m *mappedSequence) Next(ctx context.Context) (*Result, bool, error) {
	r, ok, err := m.src.Next(ctx)
	if !ok || err != nil {
		return r, ok, err
	}
	return m.fn(r), true, nil
}

func (m *mappedSequence) Close() error { return m.src.Close() }
