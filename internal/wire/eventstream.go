package wire

import (
	"bytes"
	"context"
	"net/http"
	"time"

	executor "github.com/hanpama/gqlhttp/internal/executor"
)

// EventStreamContentType is the response type of event streams.
const EventStreamContentType = "text/event-stream; charset=utf-8"

// KeepAliveFrame is an SSE comment frame that keeps idle connections open.
var KeepAliveFrame = []byte(":\n\n")

// ReadyFrame announces an open multiplexed stream.
func ReadyFrame() []byte { return []byte("event: ready\n\n") }

// DataFrame renders r as a bare data frame.
func DataFrame(r *executor.Result) ([]byte, error) {
	b, err := Marshal(r, false)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(b) + 8)
	buf.WriteString("data: ")
	buf.Write(b)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// NextFrame renders r as a multiplexed result of operation id.
func NextFrame(id string, r *executor.Result) ([]byte, error) {
	b, err := Marshal(r, false)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(b) + len(id) + 24)
	buf.WriteString("event: next\nid: ")
	buf.WriteString(id)
	buf.WriteString("\ndata: ")
	buf.Write(b)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// CompleteFrame ends the results of a multiplexed operation id.
func CompleteFrame(id string) []byte {
	return []byte("event: complete\nid: " + id + "\ndata: \n\n")
}

// StartEventStream writes the event stream response head.
func StartEventStream(w http.ResponseWriter) error {
	h := w.Header()
	h.Set("Content-Type", EventStreamContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return flush(w)
}

// WriteFrame writes one frame and flushes it.
func WriteFrame(w http.ResponseWriter, frame []byte) error {
	if _, err := w.Write(frame); err != nil {
		return err
	}
	return flush(w)
}

// WriteEventStream streams seq as data frames. The end of the response ends
// the stream.
func WriteEventStream(ctx context.Context, w http.ResponseWriter, seq executor.Sequence, opt Options) error {
	if err := StartEventStream(w); err != nil {
		seq.Close()
		return err
	}
	var tick <-chan time.Time
	if opt.KeepAlive > 0 {
		t := time.NewTicker(opt.KeepAlive)
		defer t.Stop()
		tick = t.C
	}
	return drain(ctx, seq, tick,
		func() error { return WriteFrame(w, KeepAliveFrame) },
		func(r *executor.Result) error {
			frame, err := DataFrame(r)
			if err != nil {
				return err
			}
			return WriteFrame(w, frame)
		})
}
