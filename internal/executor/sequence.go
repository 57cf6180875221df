package executor

import (
	"context"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
)

// deferSequence yields the initial payload of an operation and then one
// incremental payload per deferred fragment, in discovery order.
type deferSequence struct {
	mu      sync.Mutex
	state   *executionState
	initial *Result
	closed  bool
}

func (d *deferSequence) Next(ctx context.Context) (*Result, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, false, nil
	}
	if d.initial != nil {
		r := d.initial
		d.initial = nil
		return r, true, nil
	}
	if len(d.state.pending) == 0 {
		return nil, false, nil
	}
	work := d.state.pending[0]
	d.state.pending = d.state.pending[1:]

	data, bubbled := d.state.executeSelectionSet(work.objectType, work.selections, work.source, work.path)
	inc := &Incremental{Errors: d.state.takeErrors(), Path: append(ast.Path{}, work.path...), Label: work.label}
	if !bubbled {
		inc.Data = data
	}
	return &Result{Incremental: []*Incremental{inc}, HasNext: hasNext(len(d.state.pending) > 0)}, true, nil
}

func (d *deferSequence) Close() error {
	d.mu.Lock()
	d.closed = true
	d.state.pending = nil
	d.mu.Unlock()
	return nil
}

// eventSequence maps subscription source events to execution results.
type eventSequence struct {
	events  <-chan any
	cancel  context.CancelFunc
	execute func(event any) *Result
	once    sync.Once
}

func (e *eventSequence) Next(ctx context.Context) (*Result, bool, error) {
	select {
	case ev, ok := <-e.events:
		if !ok {
			return nil, false, nil
		}
		return e.execute(ev), true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (e *eventSequence) Close() error {
	e.once.Do(e.cancel)
	return nil
}
