// Package plugin defines the extension points around a GraphQL request.
//
// A plugin is any value implementing one or more stage interfaces. Stages run
// in this order:
//
//	OnRequest → OnRequestParse → OnParams → OnParse → OnValidate →
//	OnContextBuild → OnExecute | OnSubscribe → OnResult → OnResponse
//
// OnRequest, OnRequestParse and OnResponse run once per HTTP request. The other
// stages run once per operation, concurrently for the elements of a batch.
//
// Every hook receives the request context and the stage's *Event. A hook may
// change the event, return a *Response to answer the request immediately, or
// fail with an error. Per-operation hooks may also end the operation with a
// ready result through Event.SetResult, in which case the remaining stages up
// to OnResult are skipped.
package plugin

import (
	"context"
	"net/http"

	executor "github.com/hanpama/gqlhttp/internal/executor"
	language "github.com/hanpama/gqlhttp/internal/language"
	params "github.com/hanpama/gqlhttp/internal/params"
)

// Response is a complete HTTP answer produced by a hook.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Write sends r to w.
func (r *Response) Write(w http.ResponseWriter) {
	for k, vs := range r.Header {
		w.Header()[k] = append([]string(nil), vs...)
	}
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(r.Body) > 0 {
		_, _ = w.Write(r.Body)
	}
}

// OperationContext is the state of one operation as it moves through the
// per-operation stages.
type OperationContext struct {
	// Context is handed to the engine. It starts as the request context and
	// OnContextBuild hooks may derive from it; it must stay a descendant so
	// that aborting the request stops the operation.
	Context context.Context
	Request *http.Request
	Params  *params.RequestParams
	// BatchIndex is the position of the operation in a batch, 0 otherwise.
	BatchIndex int
	Batched    bool

	// Document is set after OnParse. A hook may set it to skip parsing.
	Document *language.QueryDocument
	// RootValue is passed to the engine as the root object.
	RootValue any

	extensions map[string]any
}

// Operation returns the operation selected by the parameters, or nil when the
// document is not parsed yet or no operation matches.
func (o *OperationContext) Operation() *language.OperationDefinition {
	name := ""
	if o.Params != nil {
		name = o.Params.OperationName
	}
	return language.OperationFor(o.Document, name)
}

// OperationType returns the kind of the selected operation, empty when
// unknown.
func (o *OperationContext) OperationType() language.Operation {
	if op := o.Operation(); op != nil {
		return op.Operation
	}
	return ""
}

// SetExtension records a value for the result's extensions.
func (o *OperationContext) SetExtension(key string, value any) {
	if o.extensions == nil {
		o.extensions = map[string]any{}
	}
	o.extensions[key] = value
}

// Extensions returns the values recorded with SetExtension.
func (o *OperationContext) Extensions() map[string]any { return o.extensions }

// Event is the payload of a stage.
type Event struct {
	Request *http.Request

	// Params holds the extracted parameter sets during OnRequestParse. Hooks
	// may replace them.
	Params  []*params.RequestParams
	Batched bool

	// Op is set for per-operation stages.
	Op *OperationContext

	// Outcome is set during OnResult; hooks may replace it.
	Outcome executor.Outcome

	// Status and Header are set during OnResponse and may be changed before
	// the response is written.
	Status int
	Header http.Header

	result *executor.Result
}

// SetResult ends the operation with r.
func (e *Event) SetResult(r *executor.Result) { e.result = r }

// Result returns the result set through SetResult.
func (e *Event) Result() *executor.Result { return e.result }

// Ended reports whether a hook ended the operation.
func (e *Event) Ended() bool { return e.result != nil }

// Stage interfaces.
type (
	RequestHook interface {
		OnRequest(ctx context.Context, ev *Event) (*Response, error)
	}
	RequestParseHook interface {
		OnRequestParse(ctx context.Context, ev *Event) (*Response, error)
	}
	ParamsHook interface {
		OnParams(ctx context.Context, ev *Event) (*Response, error)
	}
	ParseHook interface {
		OnParse(ctx context.Context, ev *Event) (*Response, error)
	}
	ValidateHook interface {
		OnValidate(ctx context.Context, ev *Event) (*Response, error)
	}
	ContextBuildHook interface {
		OnContextBuild(ctx context.Context, ev *Event) (*Response, error)
	}
	ExecuteHook interface {
		OnExecute(ctx context.Context, ev *Event) (*Response, error)
	}
	SubscribeHook interface {
		OnSubscribe(ctx context.Context, ev *Event) (*Response, error)
	}
	ResultHook interface {
		OnResult(ctx context.Context, ev *Event) (*Response, error)
	}
	ResponseHook interface {
		OnResponse(ctx context.Context, ev *Event) (*Response, error)
	}
)
