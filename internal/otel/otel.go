package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	events "github.com/hanpama/gqlhttp/internal/events"
	reqid "github.com/hanpama/gqlhttp/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Subscribe(otel.Tracer("gqlhttp"))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Subscribe attaches span-producing subscribers for tracer to the global bus.
func Subscribe(tracer trace.Tracer) (unsubscribe func()) {
	return (&subscriber{tracer: tracer}).register()
}

type opKey struct {
	rid   string
	index int
}

type subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // rid -> trace.Span
	opSpans   sync.Map // opKey -> trace.Span
}

func (s *subscriber) register() func() {
	var subs []func()
	add := func(u func()) { subs = append(subs, u) }

	add(eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "http.request", trace.WithSpanKind(trace.SpanKindServer))
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
		)
		s.httpSpans.Store(rid, span)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.httpSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		if e.Status >= 500 {
			span.SetStatus(codes.Error, "")
		}
		span.End()
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.RequestAborted) {
		rid, _ := reqid.FromContext(ctx)
		if v, ok := s.httpSpans.Load(rid); ok {
			v.(trace.Span).AddEvent("request.aborted", trace.WithAttributes(attribute.String("cause", errString(e.Cause))))
		}
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.OperationStart) {
		rid, _ := reqid.FromContext(ctx)
		parent := ctx
		if v, ok := s.httpSpans.Load(rid); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "graphql.operation")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("graphql.operation.type", e.OperationType),
			attribute.Int("graphql.batch.index", e.BatchIndex),
		)
		s.opSpans.Store(opKey{rid: rid, index: e.BatchIndex}, span)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.OperationFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.opSpans.LoadAndDelete(opKey{rid: rid, index: e.BatchIndex})
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Int("graphql.error_count", len(e.Errors)),
			attribute.Bool("graphql.stream", e.Stream),
		)
		for _, err := range e.Errors {
			span.RecordError(err)
		}
		span.End()
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.StreamClosed) {
		_, span := s.tracer.Start(ctx, "graphql.event_stream")
		span.SetAttributes(
			attribute.String("graphql.stream.token", e.Token),
			attribute.Float64("graphql.stream.seconds", e.Duration.Seconds()),
		)
		span.End()
	}))

	return func() {
		for _, u := range subs {
			u()
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
