package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	events "github.com/hanpama/gqlhttp/internal/events"
	eventstream "github.com/hanpama/gqlhttp/internal/eventstream"
	executor "github.com/hanpama/gqlhttp/internal/executor"
	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
	negotiate "github.com/hanpama/gqlhttp/internal/negotiate"
	params "github.com/hanpama/gqlhttp/internal/params"
	plugin "github.com/hanpama/gqlhttp/internal/plugin"
	wire "github.com/hanpama/gqlhttp/internal/wire"
)

// TokenHeader carries the event stream token. The token query parameter is
// accepted as well.
const TokenHeader = "X-GraphQL-Event-Stream-Token"

func streamToken(r *http.Request) string {
	if t := r.Header.Get(TokenHeader); t != "" {
		return t
	}
	return r.URL.Query().Get("token")
}

// serveMultiplex handles the single connection mode and reports whether it
// answered r:
//
//	PUT                          issues a token
//	GET    token                 opens the stream reserved for token
//	GET|POST token + operation   runs the operation onto the stream
//	DELETE token + operationId   stops a running operation
func (h *Handler) serveMultiplex(ctx context.Context, w http.ResponseWriter, r *http.Request) bool {
	token := streamToken(r)
	switch r.Method {
	case http.MethodPut:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, h.hub.Issue())
		return true
	case http.MethodDelete:
		h.stopOperation(ctx, w, r, token)
		return true
	}
	if token == "" {
		return false
	}
	q := r.URL.Query()
	if r.Method == http.MethodGet && !q.Has("query") && !q.Has("extensions") {
		h.openStream(ctx, w, r, token)
		return true
	}
	h.publishOperation(ctx, w, r, token)
	return true
}

func (h *Handler) openStream(ctx context.Context, w http.ResponseWriter, r *http.Request, token string) {
	if !slices.Contains(negotiate.ParseAccept(r.Header.Get("Accept")), negotiate.EventStream) {
		h.writeNotAcceptable(w)
		return
	}
	s, err := h.hub.Reserve(token)
	if err != nil {
		eventbus.Publish(ctx, events.StreamRejected{Token: token})
		h.log.Debug("event stream token in use", zap.String("token", token))
		w.WriteHeader(http.StatusConflict)
		return
	}
	start := time.Now()
	eventbus.Publish(ctx, events.StreamReserved{Token: token})
	h.log.Debug("event stream opened", zap.String("token", token))
	defer func() {
		h.hub.Release(s)
		d := time.Since(start)
		eventbus.Publish(ctx, events.StreamClosed{Token: token, Duration: d})
		h.log.Debug("event stream closed", zap.String("token", token), zap.Duration("duration", d))
	}()

	if err := wire.StartEventStream(w); err != nil {
		return
	}
	if err := wire.WriteFrame(w, wire.ReadyFrame()); err != nil {
		return
	}
	var tick <-chan time.Time
	if h.opt.KeepAlive > 0 {
		t := time.NewTicker(h.opt.KeepAlive)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			h.aborted(ctx, r)
			return
		case frame := <-s.Frames():
			if err := wire.WriteFrame(w, frame); err != nil {
				return
			}
		case <-tick:
			if err := wire.WriteFrame(w, wire.KeepAliveFrame); err != nil {
				return
			}
		}
	}
}

// publishOperation runs the operation of r and delivers its results on the
// stream reserved for token. r itself is answered with 202.
func (h *Handler) publishOperation(ctx context.Context, w http.ResponseWriter, r *http.Request, token string) {
	accepted := negotiate.ParseAccept(r.Header.Get("Accept"))
	if len(accepted) == 0 {
		accepted = []negotiate.MediaType{negotiate.JSON}
	}
	s, err := h.hub.Lookup(token)
	if err != nil {
		h.respondFailure(ctx, w, r, accepted, gqlerrors.New("Event stream not found.", http.StatusNotFound, nil))
		return
	}
	ps, batched, err := params.Extract(r, h.paramsOptions())
	if err != nil {
		h.respondFailure(ctx, w, r, accepted, err)
		return
	}
	ev := &plugin.Event{Request: r, Params: ps, Batched: batched}
	if resp, err := h.plugins.RequestParse(ctx, ev); resp != nil || err != nil {
		h.respondHook(ctx, w, r, accepted, resp, err)
		return
	}
	if ev.Batched || len(ev.Params) != 1 {
		h.respondFailure(ctx, w, r, accepted,
			gqlerrors.New("Streaming results are not supported in batched requests.", http.StatusBadRequest, nil))
		return
	}
	p := ev.Params[0]
	id, _ := p.Extensions["operationId"].(string)
	opCtx, finish, err := s.Start(ctx, id)
	switch {
	case errors.Is(err, eventstream.ErrOperationIDMissing):
		h.respondFailure(ctx, w, r, accepted, gqlerrors.New("Missing extensions.operationId.", http.StatusBadRequest, nil))
		return
	case errors.Is(err, eventstream.ErrOperationExists):
		h.respondFailure(ctx, w, r, accepted, gqlerrors.Newf(http.StatusConflict, "Operation %q is already running.", id))
		return
	case err != nil:
		h.respondFailure(ctx, w, r, accepted, gqlerrors.New("Event stream not found.", http.StatusNotFound, nil))
		return
	}

	res := h.runOperation(ctx, h.newOperation(opCtx, r, p, 0, false))
	if res.response != nil {
		finish()
		res.response.Write(w)
		return
	}
	if h.aborted(ctx, r) {
		res.close()
		finish()
		return
	}
	if res.outcome.IsStream() {
		go h.publish(opCtx, s, id, h.finalizing(opCtx, res.outcome.Stream), finish)
	} else {
		h.publish(opCtx, s, id, h.finalizing(opCtx, executor.Single(res.outcome.Result)), finish)
	}
	w.WriteHeader(http.StatusAccepted)
}

// publish forwards the results of seq as next frames followed by a complete
// frame. A failing sequence publishes its error as a last next frame. Frames
// stop once the stream is released or the operation stopped.
func (h *Handler) publish(ctx context.Context, s *eventstream.Stream, id string, seq executor.Sequence, finish func()) {
	defer finish()
	defer seq.Close()
	for {
		res, ok, err := seq.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			res = errorResult(err)
			h.logInternal(ctx, gqlerrors.Finalize(res, h.opt.Errors))
		} else if !ok {
			break
		}
		frame, ferr := wire.NextFrame(id, res)
		if ferr != nil {
			h.log.Error("encoding event stream frame", zap.String("operation_id", id), zap.Error(ferr))
			break
		}
		if perr := s.Publish(ctx, frame); perr != nil {
			return
		}
		if err != nil {
			break
		}
	}
	_ = s.Publish(ctx, wire.CompleteFrame(id))
}

func (h *Handler) stopOperation(ctx context.Context, w http.ResponseWriter, r *http.Request, token string) {
	accepted := []negotiate.MediaType{negotiate.JSON}
	id := r.URL.Query().Get("operationId")
	if id == "" {
		h.respondFailure(ctx, w, r, accepted, gqlerrors.New("Missing operationId.", http.StatusBadRequest, nil))
		return
	}
	s, err := h.hub.Lookup(token)
	if err != nil || !s.Stop(id) {
		h.respondFailure(ctx, w, r, accepted, gqlerrors.Newf(http.StatusNotFound, "Operation %q is not running.", id))
		return
	}
	w.WriteHeader(http.StatusOK)
}
