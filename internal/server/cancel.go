package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	events "github.com/hanpama/gqlhttp/internal/events"
	executor "github.com/hanpama/gqlhttp/internal/executor"
	reqid "github.com/hanpama/gqlhttp/internal/reqid"
)

// aborted reports whether the client abandoned r. An abandoned request is
// logged and published, and nothing more is written to it.
func (h *Handler) aborted(ctx context.Context, r *http.Request) bool {
	if ctx.Err() == nil {
		return false
	}
	cause := context.Cause(ctx)
	rid, _ := reqid.FromContext(ctx)
	h.log.Debug("request aborted",
		zap.String("request_id", rid),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(cause),
	)
	eventbus.Publish(ctx, events.RequestAborted{Request: r, Cause: cause})
	return true
}

// withTimeout applies the configured execution timeout unless ctx already
// has a deadline.
func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || h.opt.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.opt.Timeout)
}

// cancelOnClose releases the execution context of a streamed result once
// the stream is closed.
type cancelOnClose struct {
	executor.Sequence
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.Sequence.Close()
	c.cancel()
	return err
}
