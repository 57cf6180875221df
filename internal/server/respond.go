package server

import (
	"context"
	"net/http"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	events "github.com/hanpama/gqlhttp/internal/events"
	executor "github.com/hanpama/gqlhttp/internal/executor"
	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
	negotiate "github.com/hanpama/gqlhttp/internal/negotiate"
	plugin "github.com/hanpama/gqlhttp/internal/plugin"
	reqid "github.com/hanpama/gqlhttp/internal/reqid"
	wire "github.com/hanpama/gqlhttp/internal/wire"
)

func (h *Handler) respond(ctx context.Context, w http.ResponseWriter, r *http.Request, accepted []negotiate.MediaType, res operation) {
	switch {
	case res.response != nil:
		res.response.Write(w)
	case res.outcome.IsStream():
		shape := negotiate.Incremental
		if res.isSubscription() {
			shape = negotiate.Subscription
		}
		mt, ok := negotiate.Choose(accepted, shape)
		if !ok {
			res.close()
			h.writeNotAcceptable(w)
			return
		}
		h.writeStream(ctx, w, r, mt, h.finalizing(ctx, res.outcome.Stream))
	default:
		h.respondResult(ctx, w, r, accepted, res.outcome.Result, res.failure)
	}
}

func (h *Handler) respondFailure(ctx context.Context, w http.ResponseWriter, r *http.Request, accepted []negotiate.MediaType, err error) {
	h.respondResult(ctx, w, r, accepted, errorResult(err), true)
}

func (h *Handler) respondResult(ctx context.Context, w http.ResponseWriter, r *http.Request, accepted []negotiate.MediaType, res *executor.Result, failure bool) {
	if res == nil {
		res = &executor.Result{}
	}
	rep := gqlerrors.Finalize(res, h.opt.Errors)
	h.logInternal(ctx, rep)

	shape := negotiate.Single
	if failure {
		shape = negotiate.Failure
	}
	mt, ok := negotiate.Choose(accepted, shape)
	if !ok {
		h.writeNotAcceptable(w)
		return
	}
	if mt.IsStreaming() {
		h.writeStream(ctx, w, r, mt, executor.Single(res))
		return
	}
	rep.Apply(w.Header())
	h.writeJSON(ctx, w, r, mt, rep.Status(mt.Strict()), res, rep.Internals)
}

// finalizing maps every payload of seq through the error mapper.
func (h *Handler) finalizing(ctx context.Context, seq executor.Sequence) executor.Sequence {
	return executor.MapSequence(seq, func(res *executor.Result) *executor.Result {
		h.logInternal(ctx, gqlerrors.Finalize(res, h.opt.Errors))
		return res
	})
}

// responseStage runs OnResponse. ok is false when a hook answered or failed,
// in which case the response has been written.
func (h *Handler) responseStage(ctx context.Context, w http.ResponseWriter, r *http.Request, status int) (int, bool) {
	ev := &plugin.Event{Request: r, Status: status, Header: w.Header()}
	resp, err := h.plugins.Response(ctx, ev)
	switch {
	case resp != nil:
		resp.Write(w)
		return 0, false
	case err != nil:
		res := errorResult(err)
		rep := gqlerrors.Finalize(res, h.opt.Errors)
		h.logInternal(ctx, rep)
		status := rep.Status(false)
		if status == http.StatusOK {
			status = http.StatusInternalServerError
		}
		_ = wire.WriteJSON(w, status, string(negotiate.JSON), res, h.opt.Pretty)
		return 0, false
	}
	return ev.Status, true
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, mt negotiate.MediaType, status int, v any, internal []error) {
	status, ok := h.responseStage(ctx, w, r, status)
	if !ok {
		return
	}
	if err := wire.WriteJSON(w, status, string(mt), v, h.opt.Pretty); err != nil && !h.aborted(ctx, r) {
		h.log.Warn("writing response", zap.Error(err))
	}
	eventbus.Publish(ctx, events.ResponseWritten{MediaType: string(mt), Status: status, Internal: internal})
}

func (h *Handler) writeStream(ctx context.Context, w http.ResponseWriter, r *http.Request, mt negotiate.MediaType, seq executor.Sequence) {
	if _, ok := h.responseStage(ctx, w, r, http.StatusOK); !ok {
		_ = seq.Close()
		return
	}
	opt := wire.Options{Pretty: h.opt.Pretty, KeepAlive: h.opt.KeepAlive}
	var err error
	if mt == negotiate.Multipart {
		err = wire.WriteMultipart(ctx, w, seq, opt)
	} else {
		err = wire.WriteEventStream(ctx, w, seq, opt)
	}
	if err != nil && !h.aborted(ctx, r) {
		h.log.Warn("writing stream", zap.String("media_type", string(mt)), zap.Error(err))
	}
	eventbus.Publish(ctx, events.ResponseWritten{MediaType: string(mt), Status: http.StatusOK})
}

func (h *Handler) writeNotAcceptable(w http.ResponseWriter) {
	res := executor.ErrorResult(&gqlerror.Error{Message: "The Accept header does not allow any media type able to carry the response."})
	_ = wire.WriteJSON(w, http.StatusNotAcceptable, string(negotiate.JSON), res, h.opt.Pretty)
}

func (h *Handler) logInternal(ctx context.Context, rep gqlerrors.Report) {
	if len(rep.Internals) == 0 {
		return
	}
	rid, _ := reqid.FromContext(ctx)
	for _, err := range rep.Internals {
		h.log.Error("unexpected error", zap.String("request_id", rid), zap.Error(err))
	}
}
