// Package logging builds zap loggers and turns telemetry events into log
// lines.
package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	events "github.com/hanpama/gqlhttp/internal/events"
	reqid "github.com/hanpama/gqlhttp/internal/reqid"
)

// New returns a JSON production logger, or a console development logger when
// dev is set, at the named level.
func New(level string, dev bool) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zapcore.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// Subscribe writes an access line per request and a debug line per operation.
func Subscribe(logger *zap.Logger) (unsubscribe func()) {
	unHTTP := eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		logger.Info("request",
			zap.String("request_id", requestID(ctx)),
			zap.String("method", e.Request.Method),
			zap.String("path", e.Request.URL.Path),
			zap.Int("status", e.Status),
			zap.Duration("duration", e.Duration),
		)
	})
	unOp := eventbus.Subscribe(func(ctx context.Context, e events.OperationFinish) {
		if ce := logger.Check(zap.DebugLevel, "operation"); ce != nil {
			ce.Write(
				zap.String("request_id", requestID(ctx)),
				zap.Int("batch_index", e.BatchIndex),
				zap.String("operation_name", e.OperationName),
				zap.String("operation_type", e.OperationType),
				zap.Bool("stream", e.Stream),
				zap.Int("errors", len(e.Errors)),
				zap.Duration("duration", e.Duration),
			)
		}
	})
	return func() {
		unHTTP()
		unOp()
	}
}

func requestID(ctx context.Context) string {
	id, _ := reqid.FromContext(ctx)
	return id
}
