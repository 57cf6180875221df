// Package server serves GraphQL over HTTP on top of an execution engine.
//
// A Handler extracts the operation parameters, runs every operation through
// the plugin pipeline and the engine, and encodes the outcome as JSON, a
// multipart/mixed stream or an event stream depending on the Accept header
// and on what the engine produced.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	events "github.com/hanpama/gqlhttp/internal/events"
	eventstream "github.com/hanpama/gqlhttp/internal/eventstream"
	executor "github.com/hanpama/gqlhttp/internal/executor"
	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
	negotiate "github.com/hanpama/gqlhttp/internal/negotiate"
	params "github.com/hanpama/gqlhttp/internal/params"
	plugin "github.com/hanpama/gqlhttp/internal/plugin"
	reqid "github.com/hanpama/gqlhttp/internal/reqid"
)

// Handler is an http.Handler that serves a GraphQL endpoint.
type Handler struct {
	engine  executor.Engine
	opt     Options
	plugins *plugin.Registry
	hub     *eventstream.Hub
	log     *zap.Logger
}

// New creates a new GraphQL HTTP handler driving engine.
func New(engine executor.Engine, opts ...Option) (*Handler, error) {
	op := Options{
		Timeout:   10 * time.Second,
		Errors:    gqlerrors.Options{Mask: true},
		KeepAlive: 12 * time.Second,
	}
	for _, f := range opts {
		f(&op)
	}
	if op.Logger == nil {
		op.Logger = zap.NewNop()
	}
	plugins := append([]any{newMetadataForwarder(op.MetadataHeaders)}, op.Plugins...)

	h := &Handler{
		engine:  engine,
		opt:     op,
		plugins: plugin.NewRegistry(plugins...),
		log:     op.Logger,
	}
	if op.SSESingleConnection {
		h.hub = eventstream.NewHub()
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, rid := reqid.NewContext(r.Context(), r.Header.Get(reqid.Header))
	r = r.WithContext(ctx)
	// net/http only cleans up the form of the request it created.
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	rec := &statusRecorder{ResponseWriter: w}
	rec.Header().Set(reqid.Header, rid)

	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: rec.Status(), Duration: time.Since(start)})
	}()

	if h.opt.CORS.enabled() {
		setCORSHeaders(rec, r, h.opt.CORS)
	}
	if r.Method == http.MethodOptions {
		rec.WriteHeader(http.StatusNoContent)
		return
	}
	h.serve(ctx, rec, r)
	if rec.status == 0 && ctx.Err() != nil {
		rec.status = statusClientClosed
	}
}

func (h *Handler) serve(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	ev := &plugin.Event{Request: r}
	if resp, err := h.plugins.Request(ctx, ev); resp != nil || err != nil {
		h.respondHook(ctx, w, r, nil, resp, err)
		return
	}

	if h.hub != nil && h.serveMultiplex(ctx, w, r) {
		return
	}

	accepted := negotiate.ParseAccept(r.Header.Get("Accept"))
	if len(accepted) == 0 {
		h.writeNotAcceptable(w)
		return
	}

	ps, batched, err := params.Extract(r, h.paramsOptions())
	if err != nil {
		h.respondFailure(ctx, w, r, accepted, err)
		return
	}
	ev = &plugin.Event{Request: r, Params: ps, Batched: batched}
	if resp, err := h.plugins.RequestParse(ctx, ev); resp != nil || err != nil {
		h.respondHook(ctx, w, r, accepted, resp, err)
		return
	}
	if ev.Batched {
		h.serveBatch(ctx, w, r, accepted, ev.Params)
		return
	}
	if len(ev.Params) != 1 {
		h.respondFailure(ctx, w, r, accepted, errNotValid())
		return
	}

	op := h.newOperation(ctx, r, ev.Params[0], 0, false)
	res := h.runOperation(ctx, op)
	if h.aborted(ctx, r) {
		res.close()
		return
	}
	h.respond(ctx, w, r, accepted, res)
}

func (h *Handler) paramsOptions() params.Options {
	return params.Options{MaxBodyBytes: h.opt.MaxBodyBytes, MaxMemory: h.opt.MaxMemory}
}

// respondHook answers with a hook's response, or with the error it failed
// with.
func (h *Handler) respondHook(ctx context.Context, w http.ResponseWriter, r *http.Request, accepted []negotiate.MediaType, resp *plugin.Response, err error) {
	if resp != nil {
		resp.Write(w)
		return
	}
	if accepted == nil {
		accepted = negotiate.ParseAccept(r.Header.Get("Accept"))
	}
	h.respondFailure(ctx, w, r, accepted, err)
}

func errNotValid() *gqlerror.Error {
	return gqlerrors.New("Request is not valid", http.StatusBadRequest, nil)
}

// statusClientClosed is reported for requests abandoned before an answer was
// written.
const statusClientClosed = 499

// statusRecorder remembers the status written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusRecorder) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
