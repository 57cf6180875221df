package persisted

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"

	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
	params "github.com/hanpama/gqlhttp/internal/params"
	plugin "github.com/hanpama/gqlhttp/internal/plugin"
)

func event(query, hash string) *plugin.Event {
	p := &params.RequestParams{Query: query}
	if hash != "" {
		p.Extensions = map[string]any{"persistedQuery": map[string]any{"version": float64(1), "sha256Hash": hash}}
	}
	return &plugin.Event{Op: &plugin.OperationContext{Params: p}}
}

func requireCode(t *testing.T, err error, status int, code string) {
	t.Helper()
	gerr, ok := err.(*gqlerror.Error)
	require.True(t, ok, "got %T", err)
	got, _ := gqlerrors.HTTPStatus(gerr)
	require.Equal(t, status, got)
	require.Equal(t, code, gerr.Extensions["code"])
}

func newPlugin(t *testing.T, only bool) *Plugin {
	t.Helper()
	store, err := NewLRUStore(8)
	require.NoError(t, err)
	return New(store, only)
}

func TestRegisterThenLookup(t *testing.T) {
	p := newPlugin(t, false)
	ctx := context.Background()
	query := "{ ping }"

	ev := event("", Hash(query))
	_, err := p.OnParams(ctx, ev)
	requireCode(t, err, http.StatusNotFound, "PERSISTED_QUERY_NOT_FOUND")
	require.Equal(t, "PersistedQueryNotFound", err.(*gqlerror.Error).Message)

	_, err = p.OnParams(ctx, event(query, Hash(query)))
	require.NoError(t, err)

	ev = event("", Hash(query))
	_, err = p.OnParams(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, query, ev.Op.Params.Query)
}

func TestHashMismatch(t *testing.T) {
	p := newPlugin(t, false)
	_, err := p.OnParams(context.Background(), event("{ ping }", Hash("{ other }")))
	requireCode(t, err, http.StatusBadRequest, "PERSISTED_QUERY_MISMATCH")
}

func TestPlainQueriesPassThrough(t *testing.T) {
	p := newPlugin(t, false)
	ev := event("{ ping }", "")
	_, err := p.OnParams(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, "{ ping }", ev.Op.Params.Query)
}

func TestOnlyMode(t *testing.T) {
	p := newPlugin(t, true)
	ctx := context.Background()
	query := "{ ping }"

	_, err := p.OnParams(ctx, event(query, ""))
	requireCode(t, err, http.StatusBadRequest, "PERSISTED_QUERY_ONLY")

	// Sending the text does not register it.
	_, err = p.OnParams(ctx, event(query, Hash(query)))
	requireCode(t, err, http.StatusNotFound, "PERSISTED_QUERY_NOT_FOUND")

	require.NoError(t, p.Store.Put(ctx, Hash(query), query))
	ev := event("", Hash(query))
	_, err = p.OnParams(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, query, ev.Op.Params.Query)
}

func TestLRUStoreEvicts(t *testing.T) {
	s, err := NewLRUStore(1)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", "A"))
	require.NoError(t, s.Put(ctx, "b", "B"))
	_, ok, _ := s.Get(ctx, "a")
	require.False(t, ok)
	q, ok, _ := s.Get(ctx, "b")
	require.True(t, ok)
	require.Equal(t, "B", q)

	_, err = NewLRUStore(0)
	require.Error(t, err)
}
