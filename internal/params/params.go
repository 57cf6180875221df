// Package params extracts GraphQL request parameters from HTTP requests.
//
// Four encodings are understood: URL query strings (GET), JSON bodies,
// multipart uploads following the GraphQL multipart request convention and
// url-encoded forms. A raw application/graphql body is accepted as the query.
package params

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"

	"github.com/vektah/gqlparser/v2/gqlerror"

	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
)

// RequestParams are the inputs of one GraphQL operation. Absent keys stay
// zero.
type RequestParams struct {
	OperationName string         `json:"operationName,omitempty"`
	Query         string         `json:"query,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// Options tunes extraction.
type Options struct {
	// MaxBodyBytes limits the request body. 0 means unlimited.
	MaxBodyBytes int64
	// MaxMemory is the part of a multipart body kept in memory, the rest is
	// spooled to disk. 0 means 32 MiB.
	MaxMemory int64
}

const defaultMaxMemory = 32 << 20

const (
	ctJSON          = "application/json"
	ctGraphQLJSON   = "application/graphql+json"
	ctGraphQLRespJS = "application/graphql-response+json"
	ctGraphQL       = "application/graphql"
	ctMultipart     = "multipart/form-data"
	ctForm          = "application/x-www-form-urlencoded"
)

func errInvalidJSON() *gqlerror.Error {
	return gqlerrors.New("POST body sent invalid JSON.", http.StatusBadRequest, nil)
}

func errNotValid() *gqlerror.Error {
	return gqlerrors.New("Request is not valid", http.StatusBadRequest, nil)
}

func errMissingQuery() *gqlerror.Error {
	return gqlerrors.New("Must provide query string.", http.StatusBadRequest, nil)
}

func errMethodNotAllowed() *gqlerror.Error {
	return gqlerrors.New("GraphQL only supports GET and POST requests.", http.StatusMethodNotAllowed, map[string]string{"Allow": "GET, POST"})
}

// Extract reads the operation parameters of r. batched reports whether the
// body was a JSON array; an empty array yields batched with no params.
func Extract(r *http.Request, opt Options) (ps []*RequestParams, batched bool, err error) {
	switch r.Method {
	case http.MethodGet:
		p, err := fromValues(r.URL.Query())
		if err != nil {
			return nil, false, err
		}
		return []*RequestParams{p}, false, nil
	case http.MethodPost:
	default:
		return nil, false, errMethodNotAllowed()
	}

	if opt.MaxBodyBytes > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(nil, r.Body, opt.MaxBodyBytes)
	}

	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, perr := mime.ParseMediaType(ct)
		if perr != nil {
			return nil, false, errNotValid()
		}
		mediaType = mt
	}

	switch mediaType {
	case "", ctJSON, ctGraphQLJSON, ctGraphQLRespJS:
		body, err := readBody(r)
		if err != nil {
			return nil, false, err
		}
		return decodeBody(body)
	case ctMultipart:
		return fromMultipart(r, opt)
	case ctForm:
		if err := r.ParseForm(); err != nil {
			return nil, false, bodyError(err)
		}
		p, err := fromValues(r.PostForm)
		if err != nil {
			return nil, false, err
		}
		return []*RequestParams{p}, false, nil
	case ctGraphQL:
		body, err := readBody(r)
		if err != nil {
			return nil, false, err
		}
		p, err := fromValues(r.URL.Query())
		if err != nil {
			return nil, false, err
		}
		p.Query = string(body)
		return []*RequestParams{p}, false, nil
	}
	return nil, false, errNotValid()
}

// Validate checks the parameters after extensions had their chance to fill
// them in.
func Validate(p *RequestParams) error {
	if p == nil || p.Query == "" {
		return errMissingQuery()
	}
	return nil
}

// fromValues reads the GET parameter set from a query string or form.
func fromValues(v url.Values) (*RequestParams, error) {
	p := &RequestParams{
		Query:         v.Get("query"),
		OperationName: v.Get("operationName"),
	}
	if raw := v.Get("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Variables); err != nil {
			return nil, gqlerrors.New("Variables are invalid JSON.", http.StatusBadRequest, nil)
		}
	}
	if raw := v.Get("extensions"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Extensions); err != nil {
			return nil, gqlerrors.New("Extensions are invalid JSON.", http.StatusBadRequest, nil)
		}
	}
	return p, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return gqlerrors.New("Request body is too large.", http.StatusRequestEntityTooLarge, nil)
	}
	return errNotValid()
}
