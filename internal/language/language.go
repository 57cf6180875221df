package language

import (
	"errors"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// deferDirective is appended to schemas whose prelude does not declare @defer.
const deferDirective = `directive @defer(label: String, if: Boolean = true) on FRAGMENT_SPREAD | INLINE_FRAGMENT`

// ParseQuery parses a GraphQL document. Syntax errors are returned as a list
// so they can be reported the same way validation errors are.
func ParseQuery(source string) (*QueryDocument, gqlerror.List) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		var gerr *gqlerror.Error
		if errors.As(err, &gerr) {
			return nil, gqlerror.List{gerr}
		}
		return nil, gqlerror.List{gqlerror.Errorf("Syntax Error: %s", err.Error())}
	}
	return doc, nil
}

// LoadSchema builds an executable schema from SDL sources.
func LoadSchema(sources ...*Source) (*Schema, error) {
	s, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		return nil, err
	}
	if s.Directives["defer"] != nil {
		return s, nil
	}
	extra := append(append([]*Source(nil), sources...), &ast.Source{Name: "defer.graphql", Input: deferDirective, BuiltIn: true})
	withDefer, err := gqlparser.LoadSchema(extra...)
	if err != nil {
		return nil, err
	}
	return withDefer, nil
}

// Validate runs the standard validation rules against doc.
func Validate(schema *Schema, doc *QueryDocument) gqlerror.List {
	return validator.Validate(schema, doc)
}

// OperationFor selects the operation by name, or the only operation when name is empty.
func OperationFor(doc *QueryDocument, name string) *OperationDefinition {
	if doc == nil {
		return nil
	}
	if name == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0]
		}
		return nil
	}
	return doc.Operations.ForName(name)
}
