package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"

	language "github.com/hanpama/gqlhttp/internal/language"
)

// Executor is the reference Engine. It is safe for concurrent use.
type Executor struct {
	schema  *language.Schema
	runtime *Runtime
}

var _ Engine = (*Executor)(nil)

// NewExecutor creates an Executor resolving fields of schema through runtime.
func NewExecutor(schema *language.Schema, runtime *Runtime) *Executor {
	if runtime == nil {
		runtime = NewRuntime(nil)
	}
	return &Executor{schema: schema, runtime: runtime}
}

// Schema returns the executable schema.
func (e *Executor) Schema() *language.Schema { return e.schema }

func (e *Executor) Parse(source string) (*language.QueryDocument, gqlerror.List) {
	return language.ParseQuery(source)
}

func (e *Executor) Validate(doc *language.QueryDocument) gqlerror.List {
	return language.Validate(e.schema, doc)
}

// Execute runs a query or mutation. Operations containing @defer produce a
// Stream; everything else produces a single Result.
func (e *Executor) Execute(ctx context.Context, args ExecuteArgs) Outcome {
	state, op, res := e.prepare(ctx, args)
	if res != nil {
		return Outcome{Result: res}
	}
	var root *ast.Definition
	switch op.Operation {
	case language.Mutation:
		root = e.schema.Mutation
	case language.Subscription:
		return Outcome{Result: ErrorResult(gqlerror.Errorf("Subscription operations must be executed with Subscribe."))}
	default:
		root = e.schema.Query
	}
	if root == nil {
		return Outcome{Result: ErrorResult(gqlerror.Errorf("Schema is not configured for %s operations.", op.Operation))}
	}

	data, bubbled := state.executeSelectionSet(root, op.SelectionSet, args.RootValue, ast.Path{})
	initial := &Result{Errors: state.takeErrors()}
	if !bubbled {
		initial.Data = data
	}
	if len(state.pending) == 0 {
		return Outcome{Result: initial}
	}
	initial.HasNext = hasNext(true)
	return Outcome{Stream: &deferSequence{state: state, initial: initial}}
}

// Subscribe runs a subscription operation. Every source event is executed
// against the operation's selection set and yielded as one Result.
func (e *Executor) Subscribe(ctx context.Context, args ExecuteArgs) Outcome {
	state, op, res := e.prepare(ctx, args)
	if res != nil {
		return Outcome{Result: res}
	}
	root := e.schema.Subscription
	if op.Operation != language.Subscription || root == nil {
		return Outcome{Result: ErrorResult(gqlerror.Errorf("Operation is not a subscription."))}
	}

	fields := state.collectFields(root, op.SelectionSet, map[string]bool{})
	if len(fields.groups) != 1 {
		return Outcome{Result: ErrorResult(gqlerror.Errorf("Subscription operations must select exactly one root field."))}
	}
	group := fields.groups[0]
	field := group.fields[0]
	path := ast.Path{ast.PathName(group.name)}

	subscribe := e.runtime.subscription(root.Name, field.Name)
	if subscribe == nil {
		return Outcome{Result: ErrorResult(locatedError(fmt.Errorf("no event source registered for %s.%s", root.Name, field.Name), field, path))}
	}
	subCtx, cancel := context.WithCancel(ctx)
	events, err := subscribe(subCtx, ResolveParams{
		ObjectType: root.Name,
		Field:      field,
		Source:     args.RootValue,
		Args:       state.argumentValues(root, field),
		Path:       path,
	})
	if err != nil {
		cancel()
		return Outcome{Result: ErrorResult(locatedError(err, field, path))}
	}
	return Outcome{Stream: &eventSequence{
		events: events,
		cancel: cancel,
		execute: func(event any) *Result {
			run := state.fork(subCtx)
			source := map[string]any{field.Name: event}
			data, bubbled := run.executeSelectionSet(root, op.SelectionSet, source, ast.Path{})
			out := &Result{Errors: run.takeErrors()}
			if !bubbled {
				out.Data = data
			}
			return out
		},
	}}
}

func (e *Executor) prepare(ctx context.Context, args ExecuteArgs) (*executionState, *language.OperationDefinition, *Result) {
	if args.Document == nil {
		return nil, nil, ErrorResult(gqlerror.Errorf("Must provide document."))
	}
	op := language.OperationFor(args.Document, args.OperationName)
	if op == nil {
		if args.OperationName != "" {
			return nil, nil, ErrorResult(gqlerror.Errorf("Unknown operation named \"%s\".", args.OperationName))
		}
		return nil, nil, ErrorResult(gqlerror.Errorf("Must provide operation name if query contains multiple operations."))
	}
	vars, err := validator.VariableValues(e.schema, op, args.Variables)
	if err != nil {
		var gerr *gqlerror.Error
		if errors.As(err, &gerr) {
			return nil, nil, ErrorResult(gerr)
		}
		return nil, nil, ErrorResult(gqlerror.Errorf("%s", err.Error()))
	}
	return &executionState{
		ctx:      ctx,
		schema:   e.schema,
		runtime:  e.runtime,
		document: args.Document,
		vars:     vars,
	}, op, nil
}

// executionState holds the state of one execution pass. It is not shared
// between goroutines.
type executionState struct {
	ctx      context.Context
	schema   *language.Schema
	runtime  *Runtime
	document *language.QueryDocument
	vars     map[string]any
	errors   gqlerror.List
	pending  []deferredWork
}

type deferredWork struct {
	objectType *ast.Definition
	selections ast.SelectionSet
	source     any
	path       ast.Path
	label      string
}

func (s *executionState) fork(ctx context.Context) *executionState {
	return &executionState{ctx: ctx, schema: s.schema, runtime: s.runtime, document: s.document, vars: s.vars}
}

func (s *executionState) takeErrors() gqlerror.List {
	errs := s.errors
	s.errors = nil
	return errs
}

func (s *executionState) addError(err *gqlerror.Error) { s.errors = append(s.errors, err) }

// executeSelectionSet executes the fields of selections on source. The second
// return value reports that a Non-Null violation bubbled past this object.
func (s *executionState) executeSelectionSet(objectType *ast.Definition, selections ast.SelectionSet, source any, path ast.Path) (map[string]any, bool) {
	collected := s.collectFields(objectType, selections, map[string]bool{})
	for _, d := range collected.deferred {
		s.pending = append(s.pending, deferredWork{objectType: objectType, selections: d.selections, source: source, path: path, label: d.label})
	}
	out := make(map[string]any, len(collected.groups))
	for _, group := range collected.groups {
		value, bubbled := s.executeField(objectType, source, group.fields, appendPath(path, ast.PathName(group.name)))
		if bubbled {
			return nil, true
		}
		out[group.name] = value
	}
	return out, false
}

func (s *executionState) executeField(objectType *ast.Definition, source any, fields []*ast.Field, path ast.Path) (any, bool) {
	field := fields[0]
	if field.Name == "__typename" {
		return objectType.Name, false
	}
	def := objectType.Fields.ForName(field.Name)
	if def == nil {
		s.addError(locatedError(fmt.Errorf("Cannot query field \"%s\" on type \"%s\".", field.Name, objectType.Name), field, path))
		return nil, false
	}
	// No resolver starts once the request has been aborted.
	if err := s.ctx.Err(); err != nil {
		return nil, false
	}

	params := ResolveParams{
		ObjectType: objectType.Name,
		Field:      field,
		Source:     source,
		Args:       s.argumentValues(objectType, field),
		Path:       path,
	}
	var value any
	if resolve := s.runtime.resolver(objectType.Name, field.Name); resolve != nil {
		v, err := resolve(s.ctx, params)
		if err != nil {
			s.addError(locatedError(err, field, path))
			return nil, def.Type.NonNull
		}
		value = v
	} else {
		value = defaultResolve(params)
	}
	return s.completeValue(def.Type, fields, value, path)
}

func (s *executionState) argumentValues(objectType *ast.Definition, field *ast.Field) map[string]any {
	if field.Definition == nil {
		field.Definition = objectType.Fields.ForName(field.Name)
	}
	if field.Definition == nil {
		return map[string]any{}
	}
	return field.ArgumentMap(s.vars)
}

func (s *executionState) completeValue(t *ast.Type, fields []*ast.Field, value any, path ast.Path) (any, bool) {
	if t.NonNull {
		inner := *t
		inner.NonNull = false
		v, bubbled := s.completeValue(&inner, fields, value, path)
		if bubbled {
			return nil, true
		}
		if v == nil {
			s.addError(locatedError(fmt.Errorf("Cannot return null for non-nullable field %s.", fieldCoordinate(fields[0])), fields[0], path))
			return nil, true
		}
		return v, false
	}
	if isNullish(value) {
		return nil, false
	}

	if t.Elem != nil {
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			s.addError(locatedError(fmt.Errorf("Expected a list for field %s, got %T.", fieldCoordinate(fields[0]), value), fields[0], path))
			return nil, false
		}
		items := make([]any, rv.Len())
		for i := range items {
			v, bubbled := s.completeValue(t.Elem, fields, rv.Index(i).Interface(), appendPath(path, ast.PathIndex(i)))
			if bubbled {
				return nil, false
			}
			items[i] = v
		}
		return items, false
	}

	def := s.schema.Types[t.NamedType]
	if def == nil {
		s.addError(locatedError(fmt.Errorf("Unknown type %s.", t.NamedType), fields[0], path))
		return nil, false
	}
	switch def.Kind {
	case language.Scalar, language.Enum:
		return value, false
	case language.Interface, language.Union:
		name, err := s.runtime.resolveType(value)
		if err != nil {
			s.addError(locatedError(err, fields[0], path))
			return nil, false
		}
		concrete := s.schema.Types[name]
		if concrete == nil || !isPossibleType(s.schema, def, concrete) {
			s.addError(locatedError(fmt.Errorf("Runtime type %q is not a possible type for %q.", name, def.Name), fields[0], path))
			return nil, false
		}
		def = concrete
	}
	obj, bubbled := s.executeSelectionSet(def, mergeSelectionSets(fields), value, path)
	if bubbled {
		return nil, false
	}
	return obj, false
}

type fieldGroup struct {
	name   string
	fields []*ast.Field
}

type deferredFragment struct {
	label      string
	selections ast.SelectionSet
}

type collectedFields struct {
	groups   []*fieldGroup
	index    map[string]*fieldGroup
	deferred []deferredFragment
}

func (s *executionState) collectFields(objectType *ast.Definition, selections ast.SelectionSet, visited map[string]bool) *collectedFields {
	out := &collectedFields{index: map[string]*fieldGroup{}}
	s.collectInto(out, objectType, selections, visited)
	return out
}

func (s *executionState) collectInto(out *collectedFields, objectType *ast.Definition, selections ast.SelectionSet, visited map[string]bool) {
	for _, sel := range selections {
		switch sel := sel.(type) {
		case *ast.Field:
			if !s.included(sel.Directives) {
				continue
			}
			name := sel.Alias
			if name == "" {
				name = sel.Name
			}
			g, ok := out.index[name]
			if !ok {
				g = &fieldGroup{name: name}
				out.index[name] = g
				out.groups = append(out.groups, g)
			}
			g.fields = append(g.fields, sel)
		case *ast.InlineFragment:
			if !s.included(sel.Directives) || !s.applies(objectType, sel.TypeCondition) {
				continue
			}
			if label, ok := s.deferred(sel.Directives); ok {
				out.deferred = append(out.deferred, deferredFragment{label: label, selections: sel.SelectionSet})
				continue
			}
			s.collectInto(out, objectType, sel.SelectionSet, visited)
		case *ast.FragmentSpread:
			if !s.included(sel.Directives) {
				continue
			}
			frag := s.document.Fragments.ForName(sel.Name)
			if frag == nil || !s.applies(objectType, frag.TypeCondition) {
				continue
			}
			if label, ok := s.deferred(sel.Directives); ok {
				out.deferred = append(out.deferred, deferredFragment{label: label, selections: frag.SelectionSet})
				continue
			}
			if visited[sel.Name] {
				continue
			}
			visited[sel.Name] = true
			s.collectInto(out, objectType, frag.SelectionSet, visited)
		}
	}
}

func (s *executionState) included(directives ast.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil {
		if v, _ := d.ArgumentMap(s.vars)["if"].(bool); v {
			return false
		}
	}
	if d := directives.ForName("include"); d != nil {
		if v, _ := d.ArgumentMap(s.vars)["if"].(bool); !v {
			return false
		}
	}
	return true
}

func (s *executionState) deferred(directives ast.DirectiveList) (string, bool) {
	d := directives.ForName("defer")
	if d == nil {
		return "", false
	}
	args := d.ArgumentMap(s.vars)
	if v, ok := args["if"].(bool); ok && !v {
		return "", false
	}
	label, _ := args["label"].(string)
	return label, true
}

func (s *executionState) applies(objectType *ast.Definition, condition string) bool {
	if condition == "" || condition == objectType.Name {
		return true
	}
	cond := s.schema.Types[condition]
	if cond == nil {
		return false
	}
	return isPossibleType(s.schema, cond, objectType)
}

func isPossibleType(schema *language.Schema, abstract, object *ast.Definition) bool {
	for _, t := range schema.GetPossibleTypes(abstract) {
		if t.Name == object.Name {
			return true
		}
	}
	return false
}

func mergeSelectionSets(fields []*ast.Field) ast.SelectionSet {
	if len(fields) == 1 {
		return fields[0].SelectionSet
	}
	var out ast.SelectionSet
	for _, f := range fields {
		out = append(out, f.SelectionSet...)
	}
	return out
}

// locatedError converts a resolver error into a GraphQL error at path.
// Errors that already are GraphQL errors keep their message and extensions;
// anything else keeps the original error for masking.
func locatedError(err error, field *ast.Field, path ast.Path) *gqlerror.Error {
	var out *gqlerror.Error
	var gerr *gqlerror.Error
	if errors.As(err, &gerr) {
		cp := *gerr
		out = &cp
	} else {
		out = &gqlerror.Error{Message: err.Error(), Err: err}
	}
	if out.Path == nil {
		out.Path = append(ast.Path(nil), path...)
	}
	if len(out.Locations) == 0 && field != nil && field.Position != nil {
		out.Locations = []gqlerror.Location{{Line: field.Position.Line, Column: field.Position.Column}}
	}
	return out
}

func fieldCoordinate(f *ast.Field) string {
	if f.ObjectDefinition != nil {
		return f.ObjectDefinition.Name + "." + f.Name
	}
	return f.Name
}

func appendPath(path ast.Path, el ast.PathElement) ast.Path {
	out := make(ast.Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, el)
}

func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
