package server

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"

	plugin "github.com/hanpama/gqlhttp/internal/plugin"
	reqid "github.com/hanpama/gqlhttp/internal/reqid"
)

// metadataForwarder copies configured request headers and the request id
// into the outgoing gRPC metadata of the operation context, so resolvers
// calling gRPC services pass them along.
type metadataForwarder struct {
	allowed map[string]struct{}
}

func newMetadataForwarder(headers []string) *metadataForwarder {
	allowed := make(map[string]struct{}, len(headers))
	for _, hdr := range headers {
		allowed[strings.ToLower(hdr)] = struct{}{}
	}
	return &metadataForwarder{allowed: allowed}
}

func (f *metadataForwarder) OnContextBuild(ctx context.Context, ev *plugin.Event) (*plugin.Response, error) {
	md := metadata.MD{}
	for k, v := range ev.Op.Request.Header {
		if _, ok := f.allowed[strings.ToLower(k)]; ok {
			md[strings.ToLower(k)] = append([]string(nil), v...)
		}
	}
	if rid, ok := reqid.FromContext(ctx); ok {
		md["graphql-request-id"] = []string{rid}
	}
	if prev, ok := metadata.FromOutgoingContext(ev.Op.Context); ok {
		md = metadata.Join(prev, md)
	}
	ev.Op.Context = metadata.NewOutgoingContext(ev.Op.Context, md)
	return nil, nil
}
