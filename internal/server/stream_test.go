package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/r3labs/sse/v2"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	executor "github.com/hanpama/gqlhttp/internal/executor"
	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
	language "github.com/hanpama/gqlhttp/internal/language"
)

func readEvents(t *testing.T, body io.Reader) []string {
	t.Helper()
	reader := sse.NewEventStreamReader(body, 1<<16)
	var out []string
	for {
		ev, err := reader.ReadEvent()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, string(bytes.TrimSpace(ev)))
	}
}

func TestDeferOverMultipart(t *testing.T) {
	h := newTestHandler(t, testRuntime())
	req := postJSON(`{"query":"{ ping ... @defer { hello } }"}`)
	req.Header.Set("Accept", "multipart/mixed")
	w := serve(h, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `multipart/mixed; boundary="-"`, w.Header().Get("Content-Type"))

	body := w.Body.String()
	require.True(t, strings.HasPrefix(body, "\r\n---\r\nContent-Type: application/json; charset=utf-8\r\n"), body)
	require.True(t, strings.HasSuffix(body, "\r\n-----\r\n"), body)
	require.Contains(t, body, `{"data":{"ping":"pong"},"hasNext":true}`)
	require.Contains(t, body, `"data":{"hello":"world"}`)
	require.Contains(t, body, `"hasNext":false}`)
}

func TestSubscriptionOverEventStream(t *testing.T) {
	h := newTestHandler(t, testRuntime())
	req := postJSON(`{"query":"subscription { ticks(count: 2) }"}`)
	req.Header.Set("Accept", "text/event-stream")
	w := serve(h, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/event-stream; charset=utf-8", w.Header().Get("Content-Type"))
	require.Equal(t, []string{
		`data: {"data":{"ticks":0}}`,
		`data: {"data":{"ticks":1}}`,
	}, readEvents(t, w.Body))
}

func TestSubscriptionNeedsEventStream(t *testing.T) {
	h := newTestHandler(t, testRuntime())
	req := postJSON(`{"query":"subscription { ticks(count: 1) }"}`)
	req.Header.Set("Accept", "multipart/mixed")
	w := serve(h, req)
	require.Equal(t, http.StatusNotAcceptable, w.Code)

	req = postJSON(`{"query":"subscription { ticks(count: 1) }"}`)
	req.Header.Set("Accept", "multipart/mixed, text/event-stream;q=0.5")
	w = serve(h, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/event-stream; charset=utf-8", w.Header().Get("Content-Type"))
	require.Equal(t, []string{`data: {"data":{"ticks":0}}`}, readEvents(t, w.Body))
}

func TestFailureOverStreamOnlyAccept(t *testing.T) {
	h := newTestHandler(t, testRuntime())
	req := postJSON(`{"query":"subscription { unknownField }"}`)
	req.Header.Set("Accept", "text/event-stream")
	w := serve(h, req)
	require.Equal(t, http.StatusOK, w.Code)
	events := readEvents(t, w.Body)
	require.Len(t, events, 1)
	require.Contains(t, events[0], "unknownField")
}

func openStream(t *testing.T, ctx context.Context, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set(TokenHeader, token)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func postOperation(t *testing.T, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TokenHeader, token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestEventStreamMultiplexing(t *testing.T) {
	h := newTestHandler(t, testRuntime(), WithSSESingleConnection())
	srv := httptest.NewServer(h)
	defer srv.Close()
	url := srv.URL + "/graphql"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := openStream(t, ctx, url, "tok")
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	reader := sse.NewEventStreamReader(stream.Body, 1<<16)
	next := func() string {
		ev, err := reader.ReadEvent()
		require.NoError(t, err)
		return string(bytes.TrimSpace(ev))
	}
	require.Equal(t, "event: ready", next())

	second := openStream(t, context.Background(), url, "tok")
	body, _ := io.ReadAll(second.Body)
	second.Body.Close()
	require.Equal(t, http.StatusConflict, second.StatusCode)
	require.Empty(t, body)

	resp := postOperation(t, url, "tok", `{"query":"{ ping }","extensions":{"operationId":"op1"}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, "event: next\nid: op1\ndata: {\"data\":{\"ping\":\"pong\"}}", next())
	require.Equal(t, "event: complete\nid: op1\ndata:", next())

	resp = postOperation(t, url, "tok", `{"query":"subscription { ticks(count: 2) }","extensions":{"operationId":"sub"}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, "event: next\nid: sub\ndata: {\"data\":{\"ticks\":0}}", next())
	require.Equal(t, "event: next\nid: sub\ndata: {\"data\":{\"ticks\":1}}", next())
	require.Equal(t, "event: complete\nid: sub\ndata:", next())

	resp = postOperation(t, url, "tok", `{"query":"{ ping }"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postOperation(t, url, "other", `{"query":"{ ping }","extensions":{"operationId":"op2"}}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	require.Eventually(t, func() bool { return h.hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

// brokenSource yields its results and then fails.
type brokenSource struct {
	results []*executor.Result
	err     error
}

func (b *brokenSource) Next(ctx context.Context) (*executor.Result, bool, error) {
	if len(b.results) == 0 {
		return nil, false, b.err
	}
	r := b.results[0]
	b.results = b.results[1:]
	return r, true, nil
}

func (b *brokenSource) Close() error { return nil }

// brokenSubscriptions serves every subscription from a brokenSource.
type brokenSubscriptions struct {
	executor.Engine
}

func (e brokenSubscriptions) Subscribe(ctx context.Context, args executor.ExecuteArgs) executor.Outcome {
	return executor.Outcome{Stream: &brokenSource{
		results: []*executor.Result{{Data: map[string]any{"ticks": int64(0)}}},
		err:     errors.New("upstream dropped"),
	}}
}

func TestEventStreamPublishesSequenceErrors(t *testing.T) {
	sch, err := language.LoadSchema(&ast.Source{Name: "test.graphql", Input: testSDL})
	require.NoError(t, err)
	h, err := New(brokenSubscriptions{executor.NewExecutor(sch, testRuntime())},
		WithKeepAlive(0), WithSSESingleConnection())
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()
	url := srv.URL + "/graphql"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := openStream(t, ctx, url, "tok")
	defer stream.Body.Close()
	reader := sse.NewEventStreamReader(stream.Body, 1<<16)
	next := func() string {
		ev, err := reader.ReadEvent()
		require.NoError(t, err)
		return string(bytes.TrimSpace(ev))
	}
	require.Equal(t, "event: ready", next())

	resp := postOperation(t, url, "tok", `{"query":"subscription { ticks(count: 5) }","extensions":{"operationId":"sub"}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, "event: next\nid: sub\ndata: {\"data\":{\"ticks\":0}}", next())

	failed := next()
	require.True(t, strings.HasPrefix(failed, "event: next\nid: sub\ndata: "), failed)
	require.Contains(t, failed, `"errors":[{"message":"`+gqlerrors.MaskedMessage+`"`)
	require.NotContains(t, failed, "upstream dropped")
	require.Equal(t, "event: complete\nid: sub\ndata:", next())
}

func TestEventStreamStopOperation(t *testing.T) {
	h := newTestHandler(t, testRuntime(), WithSSESingleConnection())
	srv := httptest.NewServer(h)
	defer srv.Close()
	url := srv.URL + "/graphql"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := openStream(t, ctx, url, "tok")
	defer stream.Body.Close()

	resp := postOperation(t, url, "tok", `{"query":"subscription { forever }","extensions":{"operationId":"f"}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	stop := func() int {
		req, _ := http.NewRequest(http.MethodDelete, url+"?operationId=f", nil)
		req.Header.Set(TokenHeader, "tok")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	require.Equal(t, http.StatusOK, stop())
	require.Eventually(t, func() bool { return stop() == http.StatusNotFound }, time.Second, 10*time.Millisecond)
}

func TestIssueToken(t *testing.T) {
	h := newTestHandler(t, testRuntime(), WithSSESingleConnection())
	w := serve(h, httptest.NewRequest(http.MethodPut, "/graphql", nil))
	require.Equal(t, http.StatusCreated, w.Code)
	_, err := uuid.Parse(w.Body.String())
	require.NoError(t, err)
}

func TestStreamOpenRequiresEventStreamAccept(t *testing.T) {
	h := newTestHandler(t, testRuntime(), WithSSESingleConnection())
	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set(TokenHeader, "tok")
	req.Header.Set("Accept", "application/json")
	w := serve(h, req)
	require.Equal(t, http.StatusNotAcceptable, w.Code)
	require.Zero(t, h.hub.Len())
}

func TestRequestsWithoutTokenBypassMultiplexer(t *testing.T) {
	h := newTestHandler(t, testRuntime(), WithSSESingleConnection())
	w := serve(h, get("{ ping }"))
	require.Equal(t, `{"data":{"ping":"pong"}}`, w.Body.String())
}
