package plugin

import "context"

// Registry holds plugins in registration order, indexed by stage.
type Registry struct {
	request      []RequestHook
	requestParse []RequestParseHook
	params       []ParamsHook
	parse        []ParseHook
	validate     []ValidateHook
	contextBuild []ContextBuildHook
	execute      []ExecuteHook
	subscribe    []SubscribeHook
	result       []ResultHook
	response     []ResponseHook
}

// NewRegistry returns a registry holding the built-in plugins followed by
// plugins.
func NewRegistry(plugins ...any) *Registry {
	r := &Registry{}
	r.Use(GETMutationGuard{})
	r.Use(RequireQuery{})
	for _, p := range plugins {
		r.Use(p)
	}
	return r
}

// Use registers p for every stage interface it implements and reports
// whether it implements any.
func (r *Registry) Use(p any) bool {
	used := false
	if h, ok := p.(RequestHook); ok {
		r.request, used = append(r.request, h), true
	}
	if h, ok := p.(RequestParseHook); ok {
		r.requestParse, used = append(r.requestParse, h), true
	}
	if h, ok := p.(ParamsHook); ok {
		r.params, used = append(r.params, h), true
	}
	if h, ok := p.(ParseHook); ok {
		r.parse, used = append(r.parse, h), true
	}
	if h, ok := p.(ValidateHook); ok {
		r.validate, used = append(r.validate, h), true
	}
	if h, ok := p.(ContextBuildHook); ok {
		r.contextBuild, used = append(r.contextBuild, h), true
	}
	if h, ok := p.(ExecuteHook); ok {
		r.execute, used = append(r.execute, h), true
	}
	if h, ok := p.(SubscribeHook); ok {
		r.subscribe, used = append(r.subscribe, h), true
	}
	if h, ok := p.(ResultHook); ok {
		r.result, used = append(r.result, h), true
	}
	if h, ok := p.(ResponseHook); ok {
		r.response, used = append(r.response, h), true
	}
	return used
}

// run calls hooks in order until one answers, fails or ends the operation.
func run[H any](ctx context.Context, ev *Event, hooks []H, call func(H, context.Context, *Event) (*Response, error)) (*Response, error) {
	for _, h := range hooks {
		resp, err := call(h, ctx, ev)
		if err != nil || resp != nil {
			return resp, err
		}
		if ev.Ended() {
			return nil, nil
		}
	}
	return nil, nil
}

// runAll is run for the request-level stages and OnResult, where SetResult
// has no effect.
func runAll[H any](ctx context.Context, ev *Event, hooks []H, call func(H, context.Context, *Event) (*Response, error)) (*Response, error) {
	for _, h := range hooks {
		resp, err := call(h, ctx, ev)
		if err != nil || resp != nil {
			return resp, err
		}
	}
	return nil, nil
}

func (r *Registry) Request(ctx context.Context, ev *Event) (*Response, error) {
	return runAll(ctx, ev, r.request, RequestHook.OnRequest)
}

func (r *Registry) RequestParse(ctx context.Context, ev *Event) (*Response, error) {
	return runAll(ctx, ev, r.requestParse, RequestParseHook.OnRequestParse)
}

func (r *Registry) Params(ctx context.Context, ev *Event) (*Response, error) {
	return run(ctx, ev, r.params, ParamsHook.OnParams)
}

func (r *Registry) Parse(ctx context.Context, ev *Event) (*Response, error) {
	return run(ctx, ev, r.parse, ParseHook.OnParse)
}

func (r *Registry) Validate(ctx context.Context, ev *Event) (*Response, error) {
	return run(ctx, ev, r.validate, ValidateHook.OnValidate)
}

func (r *Registry) ContextBuild(ctx context.Context, ev *Event) (*Response, error) {
	return run(ctx, ev, r.contextBuild, ContextBuildHook.OnContextBuild)
}

func (r *Registry) Execute(ctx context.Context, ev *Event) (*Response, error) {
	return run(ctx, ev, r.execute, ExecuteHook.OnExecute)
}

func (r *Registry) Subscribe(ctx context.Context, ev *Event) (*Response, error) {
	return run(ctx, ev, r.subscribe, SubscribeHook.OnSubscribe)
}

func (r *Registry) Result(ctx context.Context, ev *Event) (*Response, error) {
	return runAll(ctx, ev, r.result, ResultHook.OnResult)
}

func (r *Registry) Response(ctx context.Context, ev *Event) (*Response, error) {
	return runAll(ctx, ev, r.response, ResponseHook.OnResponse)
}
