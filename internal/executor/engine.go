package executor

import (
	"context"

	"github.com/vektah/gqlparser/v2/gqlerror"

	language "github.com/hanpama/gqlhttp/internal/language"
)

// Engine is the execution collaborator driven by the transport.
type Engine interface {
	Parse(source string) (*language.QueryDocument, gqlerror.List)
	Validate(doc *language.QueryDocument) gqlerror.List
	Execute(ctx context.Context, args ExecuteArgs) Outcome
	Subscribe(ctx context.Context, args ExecuteArgs) Outcome
}

// ExecuteArgs carries one operation's inputs into the engine.
type ExecuteArgs struct {
	Document      *language.QueryDocument
	OperationName string
	Variables     map[string]any
	RootValue     any
}
