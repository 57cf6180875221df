package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	language "github.com/hanpama/gqlhttp/internal/language"
)

const testSDL = `
type Query {
  ping: String
  greeting(name: String! = "world"): String
  required: String!
  user: User
  nodes: [Node]
}
type Mutation { touch: Int }
type Subscription { ticks(count: Int!): Int }
type User { id: ID!, name: String, friend: User }
interface Node { id: ID! }
type Post implements Node { id: ID!, title: String }
`

func newTestExecutor(t *testing.T, rt *Runtime) *Executor {
	t.Helper()
	sch, err := language.LoadSchema(&ast.Source{Name: "test.graphql", Input: testSDL})
	require.NoError(t, err)
	return NewExecutor(sch, rt)
}

func execute(t *testing.T, e *Executor, query string, vars map[string]any) Outcome {
	t.Helper()
	doc, errs := e.Parse(query)
	require.Empty(t, errs)
	require.Empty(t, e.Validate(doc))
	return e.Execute(context.Background(), ExecuteArgs{Document: doc, Variables: vars})
}

func TestExecute_Simple(t *testing.T) {
	rt := NewRuntime(map[string]Resolver{"Query.ping": NewValueResolver("pong")})
	out := execute(t, newTestExecutor(t, rt), "{ ping }", nil)
	require.False(t, out.IsStream())
	want := &Result{Data: map[string]any{"ping": "pong"}}
	if diff := cmp.Diff(want, out.Result); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_ArgumentsAndDefaults(t *testing.T) {
	rt := NewRuntime(nil).SetResolver("Query", "greeting", func(ctx context.Context, p ResolveParams) (any, error) {
		return "hello " + p.Args["name"].(string), nil
	})
	e := newTestExecutor(t, rt)

	out := execute(t, e, "{ greeting }", nil)
	require.Equal(t, map[string]any{"greeting": "hello world"}, out.Result.Data)

	out = execute(t, e, "query($n: String!) { greeting(name: $n) }", map[string]any{"n": "gopher"})
	require.Equal(t, map[string]any{"greeting": "hello gopher"}, out.Result.Data)
}

func TestExecute_VariableCoercionError(t *testing.T) {
	e := newTestExecutor(t, NewRuntime(nil))
	out := execute(t, e, "query($n: String!) { greeting(name: $n) }", nil)
	require.Nil(t, out.Result.Data)
	require.Len(t, out.Result.Errors, 1)
}

func TestExecute_FieldErrorIsLocated(t *testing.T) {
	boom := errors.New("boom")
	rt := NewRuntime(map[string]Resolver{
		"Query.ping": NewErrorResolver(boom),
		"Query.user": NewValueResolver(map[string]any{"id": "1", "name": "Ann"}),
	})
	out := execute(t, newTestExecutor(t, rt), "{ ping user { name } }", nil)
	require.Equal(t, map[string]any{"ping": nil, "user": map[string]any{"name": "Ann"}}, out.Result.Data)
	require.Len(t, out.Result.Errors, 1)
	got := out.Result.Errors[0]
	require.Equal(t, "boom", got.Message)
	require.Equal(t, ast.Path{ast.PathName("ping")}, got.Path)
	require.ErrorIs(t, got.Err, boom)
	require.Equal(t, []gqlerror.Location{{Line: 1, Column: 3}}, got.Locations)
}

func TestExecute_GraphQLErrorKeepsExtensions(t *testing.T) {
	rt := NewRuntime(map[string]Resolver{
		"Query.ping": NewErrorResolver(&gqlerror.Error{Message: "nope", Extensions: map[string]any{"code": "NOPE"}}),
	})
	out := execute(t, newTestExecutor(t, rt), "{ ping }", nil)
	require.Len(t, out.Result.Errors, 1)
	require.Nil(t, out.Result.Errors[0].Err)
	require.Equal(t, "NOPE", out.Result.Errors[0].Extensions["code"])
}

func TestExecute_NonNullPropagation(t *testing.T) {
	rt := NewRuntime(map[string]Resolver{
		"Query.user": NewValueResolver(map[string]any{"name": "Ann", "friend": map[string]any{"name": "Bob"}}),
	})
	out := execute(t, newTestExecutor(t, rt), "{ user { name friend { id name } } }", nil)
	// friend.id is Non-Null and missing: friend becomes null, user survives.
	require.Equal(t, map[string]any{"user": map[string]any{"name": "Ann", "friend": nil}}, out.Result.Data)
	require.Len(t, out.Result.Errors, 1)
	require.Equal(t, ast.Path{ast.PathName("user"), ast.PathName("friend"), ast.PathName("id")}, out.Result.Errors[0].Path)

	out = execute(t, newTestExecutor(t, NewRuntime(nil)), "{ required }", nil)
	require.Nil(t, out.Result.Data)
	require.Len(t, out.Result.Errors, 1)
}

func TestExecute_AbstractTypes(t *testing.T) {
	rt := NewRuntime(map[string]Resolver{
		"Query.nodes": NewValueResolver([]any{map[string]any{"__typename": "Post", "id": "p1", "title": "Hi"}}),
	})
	out := execute(t, newTestExecutor(t, rt), "{ nodes { id ... on Post { title } __typename } }", nil)
	want := map[string]any{"nodes": []any{map[string]any{"id": "p1", "title": "Hi", "__typename": "Post"}}}
	require.Equal(t, want, out.Result.Data)
}

func TestExecute_Defer(t *testing.T) {
	rt := NewRuntime(map[string]Resolver{
		"Query.ping": NewValueResolver("pong"),
		"Query.user": NewValueResolver(map[string]any{"id": "1", "name": "Ann"}),
	})
	out := execute(t, newTestExecutor(t, rt), `{ ping ... @defer(label: "u") { user { name } } }`, nil)
	require.True(t, out.IsStream())
	defer out.Stream.Close()

	ctx := context.Background()
	first, ok, err := out.Stream.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, first.More())
	require.Equal(t, map[string]any{"ping": "pong"}, first.Data)

	second, ok, err := out.Stream.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, second.More())
	require.Len(t, second.Incremental, 1)
	require.Equal(t, "u", second.Incremental[0].Label)
	require.Equal(t, map[string]any{"user": map[string]any{"name": "Ann"}}, second.Incremental[0].Data)

	_, ok, err = out.Stream.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSubscribe_YieldsEventsAndClosesSource(t *testing.T) {
	cancelled := make(chan struct{})
	rt := NewRuntime(nil).SetSubscription("Subscription", "ticks", func(ctx context.Context, p ResolveParams) (<-chan any, error) {
		ch := make(chan any)
		go func() {
			defer close(ch)
			n := p.Args["count"].(int64)
			for i := int64(0); i < n+100; i++ {
				select {
				case ch <- i:
				case <-ctx.Done():
					close(cancelled)
					return
				}
			}
		}()
		return ch, nil
	})
	e := newTestExecutor(t, rt)
	doc, errs := e.Parse("subscription { ticks(count: 2) }")
	require.Empty(t, errs)
	out := e.Subscribe(context.Background(), ExecuteArgs{Document: doc})
	require.True(t, out.IsStream())

	for i := int64(0); i < 2; i++ {
		r, ok, err := out.Stream.Next(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, map[string]any{"ticks": i}, r.Data)
	}
	require.NoError(t, out.Stream.Close())
	<-cancelled
}

func TestExecute_StopsResolvingAfterAbort(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	rt := NewRuntime(map[string]Resolver{
		"Query.ping": func(context.Context, ResolveParams) (any, error) {
			calls.Add(1)
			cancel()
			return "pong", nil
		},
		"Query.user": func(context.Context, ResolveParams) (any, error) {
			calls.Add(1)
			return map[string]any{"id": "1"}, nil
		},
	})
	e := newTestExecutor(t, rt)
	doc, _ := e.Parse("{ ping user { id } }")
	require.Empty(t, e.Validate(doc))
	e.Execute(ctx, ExecuteArgs{Document: doc})
	require.Equal(t, int32(1), calls.Load())
}

func TestExecute_UnknownOperationName(t *testing.T) {
	e := newTestExecutor(t, NewRuntime(nil))
	doc, _ := e.Parse("query A { ping } query B { ping }")
	out := e.Execute(context.Background(), ExecuteArgs{Document: doc})
	require.Len(t, out.Result.Errors, 1)
	out = e.Execute(context.Background(), ExecuteArgs{Document: doc, OperationName: "C"})
	require.Equal(t, `Unknown operation named "C".`, out.Result.Errors[0].Message)
}
