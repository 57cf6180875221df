package gqlerrors

import (
	"net/http"

	"github.com/vektah/gqlparser/v2/gqlerror"

	executor "github.com/hanpama/gqlhttp/internal/executor"
)

// Options controls how errors are rendered.
type Options struct {
	// Mask replaces the message of errors carrying an underlying Go error
	// with MaskedMessage.
	Mask bool
	// Dev adds extensions.originalError.message to masked errors.
	Dev bool
}

// Report summarizes what Finalize learned about a result's errors.
type Report struct {
	// Hint is the highest http.status hint, 0 when none.
	Hint int
	// Headers holds the http.headers hints; the last value of a name wins.
	Headers http.Header
	// Internal is set when an internal error was present.
	Internal bool
	// RequestError is set when the result has errors but no data and none of
	// the errors is located in the response, i.e. the request itself failed.
	RequestError bool
	// Internals lists the original Go errors, for logging.
	Internals []error
}

// Finalize masks the errors of res, collects their HTTP hints and strips the
// http extension. It replaces the error values instead of mutating them, so
// errors shared between results are left untouched.
func Finalize(res *executor.Result, opt Options) Report {
	rep := Report{Headers: http.Header{}}
	if res == nil {
		return rep
	}
	res.Errors = rep.finalizeList(res.Errors, opt)
	for _, inc := range res.Incremental {
		inc.Errors = rep.finalizeList(inc.Errors, opt)
	}
	if res.Data == nil && len(res.Errors) > 0 {
		rep.RequestError = true
		for _, e := range res.Errors {
			if len(e.Path) > 0 {
				rep.RequestError = false
				break
			}
		}
	}
	return rep
}

func (rep *Report) finalizeList(errs gqlerror.List, opt Options) gqlerror.List {
	if len(errs) == 0 {
		return errs
	}
	out := make(gqlerror.List, 0, len(errs))
	for _, e := range errs {
		if e == nil {
			continue
		}
		out = append(out, rep.finalizeOne(e, opt))
	}
	return out
}

func (rep *Report) finalizeOne(e *gqlerror.Error, opt Options) *gqlerror.Error {
	if s, ok := HTTPStatus(e); ok && s > rep.Hint {
		rep.Hint = s
	}
	for k, v := range httpHeaders(e) {
		rep.Headers.Set(k, v)
	}
	cp := *e
	if IsInternal(e) {
		rep.Internal = true
	}
	if orig := Original(e); orig != nil {
		rep.Internals = append(rep.Internals, orig)
		if opt.Mask {
			cp.Message = MaskedMessage
			if opt.Dev {
				cp.Extensions = copyExtensions(cp.Extensions)
				cp.Extensions[originalKey] = map[string]any{"message": orig.Error()}
			}
		}
	}
	if _, ok := cp.Extensions[httpKey]; ok {
		cp.Extensions = copyExtensions(cp.Extensions)
		delete(cp.Extensions, httpKey)
	}
	if len(cp.Extensions) == 0 {
		cp.Extensions = nil
	}
	return &cp
}

func copyExtensions(ext map[string]any) map[string]any {
	out := make(map[string]any, len(ext)+1)
	for k, v := range ext {
		out[k] = v
	}
	return out
}

// Merge folds other into rep. Hints keep the highest status and headers keep
// the last value, so merging in result order preserves last-wins.
func (rep *Report) Merge(other Report) {
	if other.Hint > rep.Hint {
		rep.Hint = other.Hint
	}
	if rep.Headers == nil {
		rep.Headers = http.Header{}
	}
	for k, vs := range other.Headers {
		rep.Headers[k] = append([]string(nil), vs...)
	}
	rep.Internal = rep.Internal || other.Internal
	rep.RequestError = rep.RequestError || other.RequestError
	rep.Internals = append(rep.Internals, other.Internals...)
}

// Status computes the response status. strict selects the
// application/graphql-response+json rules, under which a failed request is a
// 400; legacy application/json answers 200.
func (rep Report) Status(strict bool) int {
	switch {
	case rep.Hint != 0:
		return rep.Hint
	case rep.Internal:
		return http.StatusInternalServerError
	case rep.RequestError && strict:
		return http.StatusBadRequest
	}
	return http.StatusOK
}

// Apply copies the header hints onto h.
func (rep Report) Apply(h http.Header) {
	for k, vs := range rep.Headers {
		h[k] = append([]string(nil), vs...)
	}
}
