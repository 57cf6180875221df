package wire

import (
	"context"
	"fmt"
	"net/http"

	executor "github.com/hanpama/gqlhttp/internal/executor"
)

const (
	// MultipartContentType is the response type of multipart streams.
	MultipartContentType = `multipart/mixed; boundary="-"`

	boundary       = "\r\n---"
	closeBoundary  = "\r\n-----\r\n"
	partHeaderTmpl = "\r\nContent-Type: application/json; charset=utf-8\r\nContent-Length: %d\r\n\r\n"
)

// WriteMultipart streams seq as multipart/mixed parts, one JSON document per
// part, flushing after each.
func WriteMultipart(ctx context.Context, w http.ResponseWriter, seq executor.Sequence, opt Options) error {
	h := w.Header()
	h.Set("Content-Type", MultipartContentType)
	h.Set("Connection", "keep-alive")
	h.Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(boundary)); err != nil {
		seq.Close()
		return err
	}
	if err := flush(w); err != nil {
		seq.Close()
		return err
	}

	parts := 0
	err := drain(ctx, seq, nil, nil, func(r *executor.Result) error {
		b, err := Marshal(r, opt.Pretty)
		if err != nil {
			return err
		}
		if parts > 0 {
			if _, err := w.Write([]byte(boundary)); err != nil {
				return err
			}
		}
		parts++
		if _, err := fmt.Fprintf(w, partHeaderTmpl, len(b)); err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		return flush(w)
	})
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(closeBoundary)); err != nil {
		return err
	}
	return flush(w)
}
