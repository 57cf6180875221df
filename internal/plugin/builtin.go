package plugin

import (
	"context"
	"net/http"

	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
	language "github.com/hanpama/gqlhttp/internal/language"
	params "github.com/hanpama/gqlhttp/internal/params"
)

// GETMutationGuard rejects mutations sent with GET.
type GETMutationGuard struct{}

func (GETMutationGuard) OnValidate(_ context.Context, ev *Event) (*Response, error) {
	if ev.Op.Request.Method == http.MethodGet && ev.Op.OperationType() == language.Mutation {
		return nil, gqlerrors.New("Can only perform a mutation operation from a POST request.",
			http.StatusMethodNotAllowed, map[string]string{"Allow": "POST"})
	}
	return nil, nil
}

// RequireQuery fails operations without a query once every OnParams hook had
// its chance to supply one.
type RequireQuery struct{}

func (RequireQuery) OnParse(_ context.Context, ev *Event) (*Response, error) {
	if ev.Op.Document != nil {
		return nil, nil
	}
	return nil, params.Validate(ev.Op.Params)
}
