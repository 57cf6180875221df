// Package demo is a small schema served by the gqlhttp command. It covers
// each response shape: plain queries, mutations, @defer and subscriptions.
package demo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"google.golang.org/grpc/metadata"

	executor "github.com/hanpama/gqlhttp/internal/executor"
	language "github.com/hanpama/gqlhttp/internal/language"
)

const SDL = `
type Query {
  ping: String!
  echo(message: String!): String!
  greeting: String!
  "Resolves after the given delay; useful with @defer."
  slow(ms: Int! = 100): String!
  "Value of a forwarded request header, see server.metadata-header."
  header(name: String!): String
  fail: String
}

type Mutation {
  setGreeting(greeting: String!): String!
}

type Subscription {
  countdown(from: Int! = 3, intervalMs: Int! = 0): Int!
}
`

type state struct {
	mu       sync.RWMutex
	greeting string
}

// New returns an executor serving the demo schema.
func New() (*executor.Executor, error) {
	sch, err := language.LoadSchema(&ast.Source{Name: "demo.graphql", Input: SDL})
	if err != nil {
		return nil, err
	}
	s := &state{greeting: "Hello"}
	rt := executor.NewRuntime(map[string]executor.Resolver{
		"Query.ping":           executor.NewValueResolver("pong"),
		"Query.echo":           echo,
		"Query.greeting":       s.getGreeting,
		"Query.slow":           slow,
		"Query.header":         header,
		"Query.fail":           executor.NewErrorResolver(errors.New("demo failure")),
		"Mutation.setGreeting": s.setGreeting,
	})
	rt.SetSubscription("Subscription", "countdown", countdown)
	return executor.NewExecutor(sch, rt), nil
}

func echo(_ context.Context, p executor.ResolveParams) (any, error) {
	return p.Args["message"], nil
}

func (s *state) getGreeting(context.Context, executor.ResolveParams) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.greeting, nil
}

func (s *state) setGreeting(_ context.Context, p executor.ResolveParams) (any, error) {
	g, _ := p.Args["greeting"].(string)
	s.mu.Lock()
	s.greeting = g
	s.mu.Unlock()
	return g, nil
}

func slow(ctx context.Context, p executor.ResolveParams) (any, error) {
	ms := intArg(p.Args["ms"])
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return "done", nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func header(ctx context.Context, p executor.ResolveParams) (any, error) {
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		return nil, nil
	}
	name, _ := p.Args["name"].(string)
	if vs := md.Get(name); len(vs) > 0 {
		return vs[0], nil
	}
	return nil, nil
}

func countdown(ctx context.Context, p executor.ResolveParams) (<-chan any, error) {
	from := intArg(p.Args["from"])
	interval := intArg(p.Args["intervalMs"])
	if from < 0 {
		return nil, errors.New("from must not be negative")
	}
	ch := make(chan any)
	go func() {
		defer close(ch)
		for i := from; i >= 0; i-- {
			if i != from && interval > 0 {
				select {
				case <-time.After(time.Duration(interval) * time.Millisecond):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- i:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// intArg reads an Int argument, which is int64 when written inline and
// float64 when it came from JSON variables.
func intArg(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
