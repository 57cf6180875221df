package server

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	plugin "github.com/hanpama/gqlhttp/internal/plugin"
)

// stageLog records the stages it sees. Request level stages are kept under
// -1, operation stages under their batch index.
type stageLog struct {
	mu     sync.Mutex
	stages map[int][]string
}

func newStageLog() *stageLog { return &stageLog{stages: map[int][]string{}} }

func (l *stageLog) add(ev *plugin.Event, stage string) (*plugin.Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := -1
	if ev.Op != nil {
		idx = ev.Op.BatchIndex
	}
	l.stages[idx] = append(l.stages[idx], stage)
	return nil, nil
}

func (l *stageLog) OnRequest(_ context.Context, ev *plugin.Event) (*plugin.Response, error) {
	return l.add(ev, "request")
}
func (l *stageLog) OnRequestParse(_ context.Context, ev *plugin.Event) (*plugin.Response, error) {
	return l.add(ev, "requestParse")
}
func (l *stageLog) OnParams(_ context.Context, ev *plugin.Event) (*plugin.Response, error) {
	return l.add(ev, "params")
}
func (l *stageLog) OnParse(_ context.Context, ev *plugin.Event) (*plugin.Response, error) {
	return l.add(ev, "parse")
}
func (l *stageLog) OnValidate(_ context.Context, ev *plugin.Event) (*plugin.Response, error) {
	return l.add(ev, "validate")
}
func (l *stageLog) OnContextBuild(_ context.Context, ev *plugin.Event) (*plugin.Response, error) {
	return l.add(ev, "context")
}
func (l *stageLog) OnExecute(_ context.Context, ev *plugin.Event) (*plugin.Response, error) {
	return l.add(ev, "execute")
}
func (l *stageLog) OnSubscribe(_ context.Context, ev *plugin.Event) (*plugin.Response, error) {
	return l.add(ev, "subscribe")
}
func (l *stageLog) OnResult(_ context.Context, ev *plugin.Event) (*plugin.Response, error) {
	return l.add(ev, "result")
}
func (l *stageLog) OnResponse(_ context.Context, ev *plugin.Event) (*plugin.Response, error) {
	return l.add(ev, "response")
}

var operationStages = []string{"params", "parse", "validate", "context", "execute", "result"}

func TestStageOrder(t *testing.T) {
	log := newStageLog()
	h := newTestHandler(t, testRuntime(), WithPlugins(log))
	w := serve(h, postJSON(`{"query":"{ ping }"}`))
	require.Equal(t, http.StatusOK, w.Code)

	want := map[int][]string{
		-1: {"request", "requestParse", "response"},
		0:  operationStages,
	}
	if diff := cmp.Diff(want, log.stages); diff != "" {
		t.Fatalf("stages mismatch (-want +got):\n%s", diff)
	}
}

func TestStageOrderSubscription(t *testing.T) {
	log := newStageLog()
	h := newTestHandler(t, testRuntime(), WithPlugins(log))
	req := postJSON(`{"query":"subscription { ticks(count: 1) }"}`)
	req.Header.Set("Accept", "text/event-stream")
	w := serve(h, req)
	require.Equal(t, http.StatusOK, w.Code)

	want := map[int][]string{
		-1: {"request", "requestParse", "response"},
		0:  {"params", "parse", "validate", "context", "subscribe", "result"},
	}
	if diff := cmp.Diff(want, log.stages); diff != "" {
		t.Fatalf("stages mismatch (-want +got):\n%s", diff)
	}
}

func TestStageOrderBatch(t *testing.T) {
	log := newStageLog()
	h := newTestHandler(t, testRuntime(), WithBatching(BatchingOptions{Enabled: true}), WithPlugins(log))
	w := serve(h, postJSON(`[{"query":"{ ping }"},{"query":"{ hello }"},{"query":"{ wait(ms: 5) }"}]`))
	require.Equal(t, http.StatusOK, w.Code)

	want := map[int][]string{
		-1: {"request", "requestParse", "response"},
		0:  operationStages,
		1:  operationStages,
		2:  operationStages,
	}
	if diff := cmp.Diff(want, log.stages); diff != "" {
		t.Fatalf("stages mismatch (-want +got):\n%s", diff)
	}
}
