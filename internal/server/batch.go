package server

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	executor "github.com/hanpama/gqlhttp/internal/executor"
	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
	negotiate "github.com/hanpama/gqlhttp/internal/negotiate"
	params "github.com/hanpama/gqlhttp/internal/params"
)

// serveBatch runs the operations of a JSON array concurrently and answers
// with their results in request order.
func (h *Handler) serveBatch(ctx context.Context, w http.ResponseWriter, r *http.Request, accepted []negotiate.MediaType, ps []*params.RequestParams) {
	b := h.opt.Batching
	switch {
	case !b.Enabled:
		h.respondFailure(ctx, w, r, accepted, gqlerrors.New("Batching is not supported.", http.StatusBadRequest, nil))
		return
	case len(ps) == 0:
		h.respondFailure(ctx, w, r, accepted, gqlerrors.New("Received an empty list in the batch request.", http.StatusBadRequest, nil))
		return
	case len(ps) > b.limit():
		h.respondFailure(ctx, w, r, accepted, gqlerrors.Newf(http.StatusRequestEntityTooLarge, "Batching is limited to %d operations.", b.limit()))
		return
	}

	results := make([]operation, len(ps))
	var g errgroup.Group
	for i, p := range ps {
		i, p := i, p
		g.Go(func() error {
			results[i] = h.runOperation(ctx, h.newOperation(ctx, r, p, i, true))
			return nil
		})
	}
	_ = g.Wait()

	closeAll := func() {
		for _, res := range results {
			res.close()
		}
	}
	if h.aborted(ctx, r) {
		closeAll()
		return
	}
	for _, res := range results {
		if res.response != nil {
			closeAll()
			res.response.Write(w)
			return
		}
	}
	for _, res := range results {
		if res.outcome.IsStream() {
			closeAll()
			h.respondFailure(ctx, w, r, accepted,
				gqlerrors.New("Streaming results are not supported in batched requests.", http.StatusBadRequest, nil))
			return
		}
	}

	mt, ok := negotiate.Choose(accepted, negotiate.Single)
	if !ok {
		h.writeNotAcceptable(w)
		return
	}
	out := make([]*executor.Result, len(results))
	status := http.StatusOK
	var merged gqlerrors.Report
	for i, res := range results {
		out[i] = res.outcome.Result
		if out[i] == nil {
			out[i] = &executor.Result{}
		}
		rep := gqlerrors.Finalize(out[i], h.opt.Errors)
		if s := rep.Status(mt.Strict()); s > status {
			status = s
		}
		merged.Merge(rep)
	}
	h.logInternal(ctx, merged)
	merged.Apply(w.Header())
	h.writeJSON(ctx, w, r, mt, status, out, merged.Internals)
}
