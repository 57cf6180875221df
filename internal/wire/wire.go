// Package wire serializes GraphQL results onto HTTP responses.
//
// Three framings exist: a single JSON document, multipart/mixed parts and
// server-sent events. Sequences are always closed once writing stops, whether
// because they were exhausted, the client went away or a write failed.
package wire

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	executor "github.com/hanpama/gqlhttp/internal/executor"
)

// Options tunes encoding.
type Options struct {
	// Pretty indents JSON documents.
	Pretty bool
	// KeepAlive is the interval of comment frames on event streams. 0 disables
	// them.
	KeepAlive time.Duration
}

// Marshal renders v as JSON.
func Marshal(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// WriteJSON writes v as a complete response with a Content-Length.
func WriteJSON(w http.ResponseWriter, status int, mediaType string, v any, pretty bool) error {
	b, err := Marshal(v, pretty)
	if err != nil {
		return err
	}
	h := w.Header()
	h.Set("Content-Type", mediaType+"; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(status)
	_, err = w.Write(b)
	return err
}

type item struct {
	res *executor.Result
	err error
}

// pump pulls seq in its own goroutine so that writers can interleave other
// frames while waiting. The returned channel is closed when the sequence ends
// or ctx is done; the terminal error, if any, is delivered before closing.
func pump(ctx context.Context, seq executor.Sequence) <-chan item {
	out := make(chan item)
	go func() {
		defer close(out)
		for {
			r, ok, err := seq.Next(ctx)
			if err != nil {
				select {
				case out <- item{err: err}:
				case <-ctx.Done():
				}
				return
			}
			if !ok {
				return
			}
			select {
			case out <- item{res: r}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// drain feeds every result of seq to emit until the sequence ends, ctx is
// done or emit fails. tick, when non-nil, fires between results. seq is
// closed before drain returns.
func drain(ctx context.Context, seq executor.Sequence, tick <-chan time.Time, onTick func() error, emit func(*executor.Result) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer seq.Close()

	items := pump(ctx, seq)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			if err := onTick(); err != nil {
				return err
			}
		case it, ok := <-items:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return nil
			}
			if it.err != nil {
				if errors.Is(it.err, context.Canceled) && ctx.Err() != nil {
					return ctx.Err()
				}
				return it.err
			}
			if err := emit(it.res); err != nil {
				return err
			}
		}
	}
}

func flush(w http.ResponseWriter) error {
	err := http.NewResponseController(w).Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}
