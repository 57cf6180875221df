package executor

import (
	"context"
	"fmt"
	"sync"

	language "github.com/hanpama/gqlhttp/internal/language"
)

// ResolveParams describes the field being resolved.
type ResolveParams struct {
	ObjectType string
	Field      *language.Field
	Source     any
	Args       map[string]any
	Path       language.Path
}

// Resolver produces the raw value of a field prior to completion.
// Return (nil, nil) for a GraphQL null.
type Resolver func(ctx context.Context, p ResolveParams) (any, error)

// SubscriptionResolver produces the source event stream of a subscription
// root field. The stream ends when the channel is closed; ctx is cancelled
// when the consumer stops listening.
type SubscriptionResolver func(ctx context.Context, p ResolveParams) (<-chan any, error)

// TypeResolver returns the concrete object type name of an abstract value.
type TypeResolver func(value any) (string, error)

// Runtime is a concurrency-safe resolver registry keyed by "Type.field".
type Runtime struct {
	mu            sync.RWMutex
	resolvers     map[string]Resolver
	subscriptions map[string]SubscriptionResolver
	typeResolver  TypeResolver
}

// NewRuntime creates a Runtime with the provided resolvers.
func NewRuntime(resolvers map[string]Resolver) *Runtime {
	rt := &Runtime{
		resolvers:     make(map[string]Resolver, len(resolvers)),
		subscriptions: make(map[string]SubscriptionResolver),
		typeResolver:  typenameResolver,
	}
	for k, v := range resolvers {
		rt.resolvers[k] = v
	}
	return rt
}

// SetResolver registers or replaces the resolver of objectType.field.
func (r *Runtime) SetResolver(objectType, field string, fn Resolver) *Runtime {
	r.mu.Lock()
	r.resolvers[objectType+"."+field] = fn
	r.mu.Unlock()
	return r
}

// SetSubscription registers the source stream of a subscription root field.
func (r *Runtime) SetSubscription(objectType, field string, fn SubscriptionResolver) *Runtime {
	r.mu.Lock()
	r.subscriptions[objectType+"."+field] = fn
	r.mu.Unlock()
	return r
}

// SetTypeResolver replaces the abstract type resolver.
func (r *Runtime) SetTypeResolver(fn TypeResolver) *Runtime {
	r.mu.Lock()
	r.typeResolver = fn
	r.mu.Unlock()
	return r
}

func (r *Runtime) resolver(objectType, field string) Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolvers[objectType+"."+field]
}

func (r *Runtime) subscription(objectType, field string) SubscriptionResolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subscriptions[objectType+"."+field]
}

func (r *Runtime) resolveType(value any) (string, error) {
	r.mu.RLock()
	fn := r.typeResolver
	r.mu.RUnlock()
	return fn(value)
}

// NewValueResolver returns a Resolver that always returns val.
func NewValueResolver(val any) Resolver {
	return func(ctx context.Context, p ResolveParams) (any, error) { return val, nil }
}

// NewErrorResolver returns a Resolver that always fails with err.
func NewErrorResolver(err error) Resolver {
	return func(ctx context.Context, p ResolveParams) (any, error) { return nil, err }
}

func typenameResolver(value any) (string, error) {
	if m, ok := value.(map[string]any); ok {
		if name, ok := m["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve type of %T", value)
}

func defaultResolve(p ResolveParams) any {
	if m, ok := p.Source.(map[string]any); ok {
		return m[p.Field.Name]
	}
	return nil
}
