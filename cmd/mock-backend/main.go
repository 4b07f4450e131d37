// Command mock-backend runs a deterministic OpenAI-compatible Chat
// Completions server for local end-to-end runs of aython. Replies carry a
// Python snippet picked from the last user message, wrapped as configured.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
//	MOCK_MODE - Reply shape: json, fenced, plain, invalid or error (default: json)
//	MOCK_FAIL_FIRST - Number of leading requests answered with invalid code (default: 0)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type mockConfig struct {
	Port      string `env:"MOCK_PORT, default=9090"`
	Mode      string `env:"MOCK_MODE, default=json"`
	FailFirst int    `env:"MOCK_FAIL_FIRST, default=0"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg mockConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	b, err := newBackend(cfg.Mode, cfg.FailFirst)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: b.routes()}

	go func() {
		slog.Info("mock backend starting", "port", cfg.Port, "mode", cfg.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
