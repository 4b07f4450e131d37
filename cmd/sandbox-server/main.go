// Command sandbox-server executes Python snippets over HTTP for the remote
// sandbox (pkg/sandbox/remote). Each request runs in the local subprocess
// sandbox inside its own temp directory; requirements are installed into
// that directory first.
//
// Configuration (environment):
//
//	SANDBOX_PORT           - Listen port (default: 8080)
//	SANDBOX_PYTHON         - Interpreter (default: python3)
//	SANDBOX_MAX_CONCURRENT - Max concurrent executions (default: 3)
//	SANDBOX_PYTHON_INDEX   - Package index URL (default: https://pypi.org/simple/)
//	SANDBOX_MAX_TIMEOUT    - Upper bound for timeout_seconds (default: 300)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/debug"
	"github.com/rhuss/aython/pkg/sandbox"
	"github.com/rhuss/aython/pkg/sandbox/local"
	"github.com/rhuss/aython/pkg/sandbox/remote"
)

type serverConfig struct {
	Port          string `env:"SANDBOX_PORT, default=8080"`
	Python        string `env:"SANDBOX_PYTHON, default=python3"`
	MaxConcurrent int32  `env:"SANDBOX_MAX_CONCURRENT, default=3"`
	PythonIndex   string `env:"SANDBOX_PYTHON_INDEX, default=https://pypi.org/simple/"`
	MaxTimeout    int    `env:"SANDBOX_MAX_TIMEOUT, default=300"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	debug.Init(debug.Options{})

	var cfg serverConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if _, err := exec.LookPath(cfg.Python); err != nil {
		slog.Error("python interpreter not found", "python", cfg.Python, "error", err)
		os.Exit(1)
	}

	srv := newSandboxServer(cfg)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(cfg.MaxTimeout)*time.Second + 2*time.Minute,
	}

	go func() {
		slog.Info("sandbox server starting", "port", cfg.Port, "runtime", srv.runtimeVersion, "max_concurrent", cfg.MaxConcurrent)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
}

type sandboxServer struct {
	cfg            serverConfig
	runtimeVersion string
	currentLoad    atomic.Int32
	startTime      time.Time

	// install installs requirements into dir. Replaced in tests.
	install func(ctx context.Context, dir string, requirements []string) error
}

func newSandboxServer(cfg serverConfig) *sandboxServer {
	s := &sandboxServer{
		cfg:            cfg,
		runtimeVersion: detectRuntimeVersion(cfg.Python),
		startTime:      time.Now(),
	}
	s.install = s.pipInstall
	return s
}

func (s *sandboxServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *sandboxServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	current := s.currentLoad.Add(1)
	defer s.currentLoad.Add(-1)

	if current > s.cfg.MaxConcurrent {
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("at capacity (%d/%d concurrent executions)", current, s.cfg.MaxConcurrent))
		return
	}

	var req remote.ExecuteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 10*1024*1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if err := api.ValidateDependencies(req.Requirements, api.DefaultValidationConfig()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = sandbox.DefaultTimeout
	}
	if limit := time.Duration(s.cfg.MaxTimeout) * time.Second; timeout > limit {
		timeout = limit
	}

	slog.Info("execute request",
		"code", debug.Truncate(req.Code, 120),
		"timeout", timeout,
		"requirements", len(req.Requirements),
	)

	workDir, err := os.MkdirTemp("", "sandbox-exec-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create temp dir: "+err.Error())
		return
	}
	defer os.RemoveAll(workDir)

	opts := []local.Option{local.WithPython(s.cfg.Python), local.WithTempDir(workDir)}
	if len(req.Requirements) > 0 {
		if err := s.install(r.Context(), workDir, req.Requirements); err != nil {
			writeJSON(w, http.StatusOK, remote.ExecuteResponse{
				Status:   "error",
				Stderr:   "package installation failed: " + err.Error(),
				ExitCode: api.ExitSandboxFailure,
			})
			return
		}
		opts = append(opts, local.WithEnv("PYTHONPATH="+filepath.Join(workDir, ".pylibs")))
	}

	res := local.New(opts...).Execute(r.Context(), &sandbox.Request{Code: req.Code, Timeout: timeout})

	status := "success"
	if res.ExitCode != 0 {
		status = "error"
	}
	slog.Info("execute complete",
		"status", status,
		"exit_code", res.ExitCode,
		"duration_ms", res.Duration.Milliseconds(),
		"stdout_len", len(res.Stdout),
	)

	writeJSON(w, http.StatusOK, remote.ExecuteResponse{
		Status:          status,
		Stdout:          res.Stdout,
		Stderr:          res.Stderr,
		ExitCode:        res.ExitCode,
		ExecutionTimeMs: res.Duration.Milliseconds(),
	})
}

// pipInstall installs requirements into dir/.pylibs.
func (s *sandboxServer) pipInstall(ctx context.Context, dir string, requirements []string) error {
	installCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.MaxTimeout)*time.Second)
	defer cancel()

	args := []string{"-m", "pip", "install", "--quiet", "--disable-pip-version-check",
		"--target", filepath.Join(dir, ".pylibs"), "--index-url", s.cfg.PythonIndex}
	args = append(args, requirements...)

	cmd := exec.CommandContext(installCtx, s.cfg.Python, args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, debug.Truncate(string(output), 2000))
	}
	return nil
}

func (s *sandboxServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, remote.HealthResponse{
		Status:         "healthy",
		RuntimeVersion: s.runtimeVersion,
		Capacity:       int(s.cfg.MaxConcurrent),
		CurrentLoad:    int(s.currentLoad.Load()),
		UptimeSecs:     int64(time.Since(s.startTime).Seconds()),
	})
}

// detectRuntimeVersion returns the first line of "<python> --version".
func detectRuntimeVersion(python string) string {
	output, err := exec.Command(python, "--version").CombinedOutput()
	if err != nil {
		return "unknown"
	}
	version, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n")
	return version
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, remote.ErrorResponse{Error: message})
}
