package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"

	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	events "github.com/hanpama/gqlhttp/internal/events"
	executor "github.com/hanpama/gqlhttp/internal/executor"
	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
	language "github.com/hanpama/gqlhttp/internal/language"
	params "github.com/hanpama/gqlhttp/internal/params"
	plugin "github.com/hanpama/gqlhttp/internal/plugin"
)

// operation is the outcome of one pipeline run. Exactly one of response and
// outcome is meaningful.
type operation struct {
	op       *plugin.OperationContext
	outcome  executor.Outcome
	response *plugin.Response
	// failure marks error results produced before execution.
	failure bool
}

func (o operation) close() {
	if o.outcome.Stream != nil {
		_ = o.outcome.Stream.Close()
	}
}

func (o operation) isSubscription() bool {
	return o.op != nil && o.op.OperationType() == language.Subscription
}

func (h *Handler) newOperation(ctx context.Context, r *http.Request, p *params.RequestParams, index int, batched bool) *plugin.OperationContext {
	return &plugin.OperationContext{Context: ctx, Request: r, Params: p, BatchIndex: index, Batched: batched}
}

func (h *Handler) failed(op *plugin.OperationContext, err error) operation {
	return operation{op: op, outcome: executor.Outcome{Result: errorResult(err)}, failure: true}
}

func errorResult(err error) *executor.Result {
	var list gqlerror.List
	if errors.As(err, &list) && len(list) > 0 {
		return &executor.Result{Errors: list}
	}
	return executor.ErrorResult(gqlerrors.FromError(err))
}

// runOperation drives op through the per-operation stages and OnResult.
// Hooks see ctx; the engine sees op.Context.
func (h *Handler) runOperation(ctx context.Context, op *plugin.OperationContext) operation {
	ev := &plugin.Event{Request: op.Request, Op: op}
	res := h.pipeline(ctx, ev)
	if res.response != nil {
		return res
	}
	ev.Outcome = res.outcome
	resp, err := h.plugins.Result(ctx, ev)
	switch {
	case resp != nil:
		closeOutcome(ev.Outcome)
		return operation{op: op, response: resp}
	case err != nil:
		closeOutcome(ev.Outcome)
		return h.failed(op, err)
	}
	res.outcome = withExtensions(ev.Outcome, op.Extensions())
	return res
}

func (h *Handler) pipeline(ctx context.Context, ev *plugin.Event) operation {
	op := ev.Op
	stage := func(run func(context.Context, *plugin.Event) (*plugin.Response, error)) (operation, bool) {
		resp, err := run(ctx, ev)
		switch {
		case resp != nil:
			return operation{op: op, response: resp}, true
		case err != nil:
			return h.failed(op, err), true
		case ev.Ended():
			return operation{op: op, outcome: executor.Outcome{Result: ev.Result()}}, true
		}
		return operation{}, false
	}

	if res, done := stage(h.plugins.Params); done {
		return res
	}
	if res, done := stage(h.plugins.Parse); done {
		return res
	}
	if op.Document == nil {
		doc, errs := h.engine.Parse(op.Params.Query)
		if len(errs) > 0 {
			return operation{op: op, outcome: executor.Outcome{Result: &executor.Result{Errors: errs}}, failure: true}
		}
		op.Document = doc
	}
	if res, done := stage(h.plugins.Validate); done {
		return res
	}
	if errs := h.engine.Validate(op.Document); len(errs) > 0 {
		return operation{op: op, outcome: executor.Outcome{Result: &executor.Result{Errors: errs}}, failure: true}
	}
	if res, done := stage(h.plugins.ContextBuild); done {
		return res
	}

	subscription := op.OperationType() == language.Subscription
	run := h.plugins.Execute
	if subscription {
		run = h.plugins.Subscribe
	}
	if res, done := stage(run); done {
		return res
	}
	return operation{op: op, outcome: h.execute(ctx, op, subscription)}
}

func (h *Handler) execute(ctx context.Context, op *plugin.OperationContext, subscription bool) executor.Outcome {
	args := executor.ExecuteArgs{
		Document:      op.Document,
		OperationName: op.Params.OperationName,
		Variables:     op.Params.Variables,
		RootValue:     op.RootValue,
	}
	started := events.OperationStart{
		BatchIndex:    op.BatchIndex,
		OperationName: op.Params.OperationName,
		OperationType: string(op.OperationType()),
	}
	start := time.Now()
	eventbus.Publish(ctx, started)

	var out executor.Outcome
	if subscription {
		out = h.engine.Subscribe(op.Context, args)
	} else {
		execCtx, cancel := h.withTimeout(op.Context)
		out = h.engine.Execute(execCtx, args)
		switch {
		case out.IsStream():
			out.Stream = &cancelOnClose{Sequence: out.Stream, cancel: cancel}
		default:
			if errors.Is(execCtx.Err(), context.DeadlineExceeded) && op.Context.Err() == nil && out.Result != nil {
				out.Result.Errors = append(out.Result.Errors, &gqlerror.Error{Message: "Execution timed out."})
			}
			cancel()
		}
	}

	finished := events.OperationFinish{
		BatchIndex:    started.BatchIndex,
		OperationName: started.OperationName,
		OperationType: started.OperationType,
		Stream:        out.IsStream(),
		Duration:      time.Since(start),
	}
	if out.Result != nil {
		for _, e := range out.Result.Errors {
			finished.Errors = append(finished.Errors, e)
		}
	}
	eventbus.Publish(ctx, finished)
	return out
}

// withExtensions adds ext to the result, or to the first payload of a
// stream.
func withExtensions(out executor.Outcome, ext map[string]any) executor.Outcome {
	if len(ext) == 0 {
		return out
	}
	merge := func(r *executor.Result) *executor.Result {
		if r == nil {
			return r
		}
		if r.Extensions == nil {
			r.Extensions = make(map[string]any, len(ext))
		}
		for k, v := range ext {
			r.Extensions[k] = v
		}
		return r
	}
	if out.Stream != nil {
		first := true
		out.Stream = executor.MapSequence(out.Stream, func(r *executor.Result) *executor.Result {
			if first {
				first = false
				return merge(r)
			}
			return r
		})
		return out
	}
	out.Result = merge(out.Result)
	return out
}

func closeOutcome(o executor.Outcome) {
	if o.Stream != nil {
		_ = o.Stream.Close()
	}
}
