package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	config "github.com/hanpama/gqlhttp/internal/config"
	demo "github.com/hanpama/gqlhttp/internal/demo"
	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	logging "github.com/hanpama/gqlhttp/internal/logging"
	metrics "github.com/hanpama/gqlhttp/internal/metrics"
	otel "github.com/hanpama/gqlhttp/internal/otel"
	persisted "github.com/hanpama/gqlhttp/internal/persisted"
	server "github.com/hanpama/gqlhttp/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo schema on /graphql",
		Long: `Serve the demo schema on /graphql.

Every flag can also be set through the environment with the GQLHTTP_ prefix,
e.g. GQLHTTP_GRAPHQL_BATCHING=true, or in the file given with --config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.NewViper(cmd.Flags())
			if err != nil {
				return err
			}
			c, err := config.Load(v)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), c)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runServe(ctx context.Context, c config.Config) error {
	logger, err := logging.New(c.LogLevel, c.GraphQL.Dev)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	eventbus.Use(eventbus.New())
	defer logging.Subscribe(logger)()
	shutdown, err := otel.Setup(c.Otel.Endpoint, c.Otel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	mux, cleanup, err := newMux(c, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{Addr: c.Server.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("GraphQL server listening", zap.String("addr", c.Server.Addr))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// newMux wires the demo engine, the plugins and the metrics endpoint. The
// global event bus must be set before calling it for metrics to be fed.
func newMux(c config.Config, logger *zap.Logger) (*http.ServeMux, func(), error) {
	engine, err := demo.New()
	if err != nil {
		return nil, nil, fmt.Errorf("demo schema: %w", err)
	}
	opts := append(c.ServerOptions(), server.WithLogger(logger))
	if c.Persisted.Enabled {
		store, err := persisted.NewLRUStore(c.Persisted.CacheSize)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, server.WithPlugins(persisted.New(store, c.Persisted.Only)))
	}
	h, err := server.New(engine, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("server init: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", h)
	cleanup := func() {}
	if c.Metrics {
		m := metrics.New()
		cleanup = m.Subscribe()
		mux.Handle("/metrics", m.Handler())
	}
	return mux, cleanup, nil
}
