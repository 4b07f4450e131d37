package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rhuss/aython/pkg/auth"
	"github.com/rhuss/aython/pkg/config"
	"github.com/rhuss/aython/pkg/observability"
	"github.com/rhuss/aython/pkg/service"
	"github.com/rhuss/aython/pkg/transport"
	transporthttp "github.com/rhuss/aython/pkg/transport/http"
	transportmcp "github.com/rhuss/aython/pkg/transport/mcp"
)

type serveFlags struct {
	port     int
	initWith string
	mcp      bool
}

func newServeCmd(root *rootFlags) *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC agent server",
		Long: `Run the JSON-RPC 2.0 agent server on POST / and POST /rpc.

Methods: init_agent, generate_and_run, generate, execute, history, cancel.
With MCP enabled the tools generate_code, execute_code and generate_and_run
are served on the MCP path as well.`,
		Example: `  aython serve --port 4000
  curl -s localhost:4000 -d '{"jsonrpc":"2.0","method":"init_agent","params":{"model":"gpt-4o-mini"},"id":1}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = flags.port
			}
			if cmd.Flags().Changed("mcp") {
				cfg.MCP.Enabled = flags.mcp
			}
			return serve(cmd.Context(), cfg, flags.initWith)
		},
	}

	cmd.Flags().IntVarP(&flags.port, "port", "p", 4000, "Listen port (overrides server.port)")
	cmd.Flags().StringVar(&flags.initWith, "init", "", "Initialize the agent with this model at startup")
	cmd.Flags().BoolVar(&flags.mcp, "mcp", false, "Serve MCP tools (overrides mcp.enabled)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, initModel string) error {
	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		Insecure:    cfg.Observability.Tracing.Insecure,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		SampleRatio: cfg.Observability.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}

	comps, err := service.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	if initModel != "" {
		msg, err := comps.Service.Init(ctx, initModel)
		if err != nil {
			return fmt.Errorf("initializing agent: %w", err)
		}
		slog.Info(msg)
	}

	srv, err := newServer(cfg, comps.Service)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		return shutdownTracing(context.WithoutCancel(gctx))
	})
	return g.Wait()
}

// newServer assembles the HTTP server: JSON-RPC methods, cancellation,
// health, metrics, MCP and authentication.
func newServer(cfg *config.Config, svc *service.Service) (*transporthttp.Server, error) {
	router := transport.NewRouter()
	svc.Register(router)

	inflight := transport.NewInFlight()
	router.Handle("cancel", inflight.CancelMethod())

	srv := transporthttp.NewServer(router, []transport.Middleware{inflight.Middleware()},
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
	)
	adapter := srv.Adapter()
	adapter.AddReadinessCheck("history", svc.Ready)

	bypass := append([]string{}, auth.DefaultBypass...)
	if cfg.Observability.Metrics.Enabled {
		adapter.Mount("GET "+cfg.Observability.Metrics.Path, promhttp.Handler())
		bypass = append(bypass, cfg.Observability.Metrics.Path)
		adapter.Use(observability.MetricsMiddleware)
	}
	if cfg.MCP.Enabled {
		mcpServer := transportmcp.NewServer(svc, transportmcp.Options{AutoInit: true})
		adapter.Mount(cfg.MCP.Path, transportmcp.Handler(mcpServer))
		slog.Info("mcp enabled", "path", cfg.MCP.Path)
	}

	chain, limiter, err := service.NewAuth(cfg.Auth)
	if err != nil {
		return nil, err
	}
	adapter.Use(auth.Middleware(auth.MiddlewareConfig{
		Chain:   chain,
		Limiter: limiter,
		Bypass:  bypass,
		OnError: transporthttp.AuthErrorWriter,
	}))
	return srv, nil
}
