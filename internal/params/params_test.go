package params

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"

	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
)

func requireStatus(t *testing.T, err error, status int, message string) {
	t.Helper()
	require.Error(t, err)
	gerr, ok := err.(*gqlerror.Error)
	require.True(t, ok, "expected *gqlerror.Error, got %T", err)
	got, _ := gqlerrors.HTTPStatus(gerr)
	require.Equal(t, status, got)
	if message != "" {
		require.Equal(t, message, gerr.Message)
	}
}

func postJSON(body, contentType string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return r
}

func TestExtract_GET(t *testing.T) {
	q := url.Values{}
	q.Set("query", "{ ping }")
	q.Set("operationName", "P")
	q.Set("variables", `{"a":1}`)
	r := httptest.NewRequest(http.MethodGet, "/graphql?"+q.Encode(), nil)

	ps, batched, err := Extract(r, Options{})
	require.NoError(t, err)
	require.False(t, batched)
	want := []*RequestParams{{Query: "{ ping }", OperationName: "P", Variables: map[string]any{"a": float64(1)}}}
	if diff := cmp.Diff(want, ps); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_GETAbsentKeysAreZero(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	ps, _, err := Extract(r, Options{})
	require.NoError(t, err)
	require.Equal(t, &RequestParams{}, ps[0])
	requireStatus(t, Validate(ps[0]), http.StatusBadRequest, "Must provide query string.")
}

func TestExtract_GETInvalidVariables(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/graphql?query=x&variables=%7Bnope", nil)
	_, _, err := Extract(r, Options{})
	requireStatus(t, err, http.StatusBadRequest, "Variables are invalid JSON.")
}

func TestExtract_JSON(t *testing.T) {
	for _, ct := range []string{"", "application/json", "application/json; charset=utf-8", "application/graphql+json"} {
		t.Run(ct, func(t *testing.T) {
			ps, batched, err := Extract(postJSON(`{"query":"{ ping }","variables":null,"extensions":{"k":"v"}}`, ct), Options{})
			require.NoError(t, err)
			require.False(t, batched)
			require.Equal(t, &RequestParams{Query: "{ ping }", Extensions: map[string]any{"k": "v"}}, ps[0])
		})
	}
}

func TestExtract_JSONBatch(t *testing.T) {
	ps, batched, err := Extract(postJSON(`[{"query":"{ a }"},{"query":"{ b }"}]`, "application/json"), Options{})
	require.NoError(t, err)
	require.True(t, batched)
	require.Len(t, ps, 2)
	require.Equal(t, "{ a }", ps[0].Query)
	require.Equal(t, "{ b }", ps[1].Query)

	ps, batched, err = Extract(postJSON(`[]`, "application/json"), Options{})
	require.NoError(t, err)
	require.True(t, batched)
	require.Empty(t, ps)
}

func TestExtract_JSONErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"invalid", `{"query":`, http.StatusBadRequest, "POST body sent invalid JSON."},
		{"unexpected key", `{"query":"{ a }","foo":1}`, http.StatusBadRequest, `Unexpected parameter "foo" in the request body.`},
		{"query type", `{"query":1}`, http.StatusBadRequest, `Expected "query" param to be a string, but given number.`},
		{"variables type", `{"query":"{ a }","variables":[]}`, http.StatusBadRequest, `Expected "variables" param to be an object, but given array.`},
		{"scalar body", `"hello"`, http.StatusBadRequest, "POST body is expected to be object but received string."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Extract(postJSON(tt.body, "application/json"), Options{})
			requireStatus(t, err, tt.status, tt.message)
		})
	}
}

func TestExtract_UnsupportedContentType(t *testing.T) {
	_, _, err := Extract(postJSON(`x`, "text/plain"), Options{})
	requireStatus(t, err, http.StatusBadRequest, "Request is not valid")
}

func TestExtract_MethodNotAllowed(t *testing.T) {
	_, _, err := Extract(httptest.NewRequest(http.MethodPatch, "/graphql", nil), Options{})
	requireStatus(t, err, http.StatusMethodNotAllowed, "")
}

func TestExtract_MaxBodyBytes(t *testing.T) {
	_, _, err := Extract(postJSON(`{"query":"1234567890"}`, "application/json"), Options{MaxBodyBytes: 10})
	requireStatus(t, err, http.StatusRequestEntityTooLarge, "")
}

func TestExtract_FormAndRawGraphQL(t *testing.T) {
	form := url.Values{}
	form.Set("query", "{ ping }")
	form.Set("variables", `{"x":"y"}`)
	r := postJSON(form.Encode(), "application/x-www-form-urlencoded")
	ps, _, err := Extract(r, Options{})
	require.NoError(t, err)
	require.Equal(t, &RequestParams{Query: "{ ping }", Variables: map[string]any{"x": "y"}}, ps[0])

	r = httptest.NewRequest(http.MethodPost, "/graphql?operationName=Q", strings.NewReader("query Q { ping }"))
	r.Header.Set("Content-Type", "application/graphql")
	ps, _, err = Extract(r, Options{})
	require.NoError(t, err)
	require.Equal(t, &RequestParams{Query: "query Q { ping }", OperationName: "Q"}, ps[0])
}

func multipartRequest(t *testing.T, operations, fileMap string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("operations", operations))
	require.NoError(t, w.WriteField("map", fileMap))
	for field, content := range files {
		fw, err := w.CreateFormFile(field, field+".txt")
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	r := httptest.NewRequest(http.MethodPost, "/graphql", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())
	return r
}

func TestExtract_MultipartInjectsUploads(t *testing.T) {
	r := multipartRequest(t,
		`{"query":"mutation($f: Upload!, $fs: [Upload!]!) { a }","variables":{"f":null,"fs":[null,null]}}`,
		`{"0":["variables.f"],"1":"variables.fs.1"}`,
		map[string]string{"0": "zero", "1": "one"},
	)
	ps, batched, err := Extract(r, Options{})
	require.NoError(t, err)
	require.False(t, batched)

	f, ok := ps[0].Variables["f"].(*Upload)
	require.True(t, ok)
	require.Equal(t, "0.txt", f.Filename)
	rc, err := f.Open()
	require.NoError(t, err)
	content, _ := io.ReadAll(rc)
	require.Equal(t, "zero", string(content))

	fs := ps[0].Variables["fs"].([]any)
	require.Nil(t, fs[0])
	require.Equal(t, "1.txt", fs[1].(*Upload).Filename)
}

func TestExtract_MultipartBatchPaths(t *testing.T) {
	r := multipartRequest(t,
		`[{"query":"{ a }"},{"query":"{ b }","variables":{"f":null}}]`,
		`{"file":["1.variables.f"]}`,
		map[string]string{"file": "x"},
	)
	ps, batched, err := Extract(r, Options{})
	require.NoError(t, err)
	require.True(t, batched)
	require.Nil(t, ps[0].Variables)
	require.IsType(t, &Upload{}, ps[1].Variables["f"])
}

func TestExtract_MultipartErrors(t *testing.T) {
	r := multipartRequest(t, `{"query":"{ a }"}`, `{"0":"query"}`, map[string]string{"0": "x"})
	_, _, err := Extract(r, Options{})
	requireStatus(t, err, http.StatusBadRequest, `Invalid upload path "query".`)

	r = multipartRequest(t, `{"query":"{ a }"}`, `{"missing":"variables.f"}`, nil)
	_, _, err = Extract(r, Options{})
	requireStatus(t, err, http.StatusBadRequest, `Missing multipart file "missing".`)
}

func TestRequestParamsValues(t *testing.T) {
	p := &RequestParams{Query: "{ ping }", Variables: map[string]any{"a": "b"}}
	v, err := p.Values()
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodGet, "/graphql?"+v.Encode(), nil)
	ps, _, err := Extract(r, Options{})
	require.NoError(t, err)
	require.Equal(t, p, ps[0])
}
