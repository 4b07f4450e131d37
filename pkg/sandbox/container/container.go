// Package container runs snippets inside throwaway Docker images.
//
// Each Execute call builds a fresh image from an in-memory build context
// (snippet plus Dockerfile), runs one container from it, waits for the
// container to exit under a timeout, reads the exit status the engine
// reports and the demultiplexed stdout and stderr streams, then removes
// the container and, unless KeepImages is set, the image.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/debug"
	"github.com/rhuss/aython/pkg/sandbox"
)

// DefaultRepo is the image repository for built snippets.
const DefaultRepo = "python-script-runner"

// Config configures the container sandbox.
type Config struct {
	// BaseImage is the FROM image (default python:3.11-slim).
	BaseImage string
	// Repo is the repository part of image tags (default python-script-runner).
	Repo string
	// BuildTimeout bounds image builds including pip installs (default 5m).
	BuildTimeout time.Duration
	// KeepImages leaves built images in the engine after the run.
	KeepImages bool
	// MaxOutput caps each captured stream (default sandbox.DefaultMaxOutput).
	MaxOutput int
}

func (c *Config) defaults() {
	if c.BaseImage == "" {
		c.BaseImage = DefaultBaseImage
	}
	if c.Repo == "" {
		c.Repo = DefaultRepo
	}
	if c.BuildTimeout <= 0 {
		c.BuildTimeout = 5 * time.Minute
	}
	if c.MaxOutput <= 0 {
		c.MaxOutput = sandbox.DefaultMaxOutput
	}
}

// ErrTimeout is returned by Run when the container outlives its timeout.
var ErrTimeout = errors.New("container run timed out")

// Sandbox is a sandbox.Executor backed by a Docker engine.
type Sandbox struct {
	cfg      Config
	provider *testcontainers.DockerProvider
	docker   client.APIClient
}

var _ sandbox.Executor = (*Sandbox)(nil)

// New connects to the Docker engine configured in the environment
// (DOCKER_HOST and friends).
func New(cfg Config) (*Sandbox, error) {
	cfg.defaults()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return nil, fmt.Errorf("connecting to container engine: %w", err)
	}

	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	return &Sandbox{cfg: cfg, provider: provider, docker: docker}, nil
}

// Name returns "container".
func (s *Sandbox) Name() string { return "container" }

// Close releases engine connections.
func (s *Sandbox) Close() error {
	return errors.Join(s.provider.Close(), s.docker.Close())
}

// Health pings the engine.
func (s *Sandbox) Health(ctx context.Context) error {
	return s.provider.Health(ctx)
}

// NewTag returns a unique image reference in the configured repository.
func (s *Sandbox) NewTag() string {
	return s.cfg.Repo + ":" + uuid.NewString()
}

// Build builds an image for code and deps. An empty ref generates a
// unique one. It returns the image reference.
func (s *Sandbox) Build(ctx context.Context, code string, deps []string, ref string) (string, error) {
	if ref == "" {
		ref = s.NewTag()
	}
	repo, tag, ok := strings.Cut(ref, ":")
	if !ok {
		tag = uuid.NewString()
	}

	buildCtx, err := BuildContext(s.cfg.BaseImage, code, deps)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.BuildTimeout)
	defer cancel()

	debug.Log("sandbox", "building image", "repo", repo, "tag", tag, "deps", deps)
	built, err := s.provider.BuildImage(ctx, &testcontainers.ContainerRequest{
		FromDockerfile: testcontainers.FromDockerfile{
			ContextArchive: buildCtx,
			Dockerfile:     "Dockerfile",
			Repo:           repo,
			Tag:            tag,
			KeepImage:      true,
		},
	})
	if err != nil {
		return "", fmt.Errorf("building image %s:%s: %w", repo, tag, err)
	}
	return built, nil
}

// Run starts a container from ref, waits up to timeout for it to exit and
// returns the process's exit status and output streams. It returns
// ErrTimeout when the container is still running at the deadline.
func (s *Sandbox) Run(ctx context.Context, ref string, timeout time.Duration) (int, []byte, []byte, error) {
	if timeout <= 0 {
		timeout = sandbox.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := testcontainers.GenericContainer(runCtx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      ref,
			WaitingFor: wait.ForExit().WithExitTimeout(timeout),
		},
		Started: true,
	})
	if c != nil {
		defer func() {
			// The run context may be spent; cleanup gets its own.
			termCtx, termCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer termCancel()
			if err := c.Terminate(termCtx); err != nil {
				slog.Warn("failed to remove container", "image", ref, "error", err)
			}
		}()
	}
	if err != nil {
		if runCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return api.ExitSandboxFailure, nil, nil, ErrTimeout
		}
		return api.ExitSandboxFailure, nil, nil, fmt.Errorf("running container: %w", err)
	}

	state, err := c.State(runCtx)
	if err != nil {
		return api.ExitSandboxFailure, nil, nil, fmt.Errorf("reading container state: %w", err)
	}
	if state.Running {
		return api.ExitSandboxFailure, nil, nil, ErrTimeout
	}

	stdout, stderr, err := s.logs(context.WithoutCancel(ctx), c.GetContainerID())
	if err != nil {
		return state.ExitCode, nil, nil, err
	}
	return state.ExitCode, stdout, stderr, nil
}

// logs reads and demultiplexes a stopped container's output.
func (s *Sandbox) logs(ctx context.Context, id string) ([]byte, []byte, error) {
	rc, err := s.docker.ContainerLogs(ctx, id, dockercontainer.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, nil, fmt.Errorf("reading container logs: %w", err)
	}
	defer rc.Close()

	stdout := &sandbox.LimitedBuffer{Max: s.cfg.MaxOutput}
	stderr := &sandbox.LimitedBuffer{Max: s.cfg.MaxOutput}
	if _, err := stdcopy.StdCopy(stdout, stderr, rc); err != nil {
		return nil, nil, fmt.Errorf("demultiplexing container logs: %w", err)
	}
	return []byte(stdout.String()), []byte(stderr.String()), nil
}

// RemoveImage deletes a built image.
func (s *Sandbox) RemoveImage(ctx context.Context, ref string) error {
	_, err := s.docker.ImageRemove(ctx, ref, image.RemoveOptions{Force: true, PruneChildren: true})
	return err
}

// Execute builds and runs req.Code with req.Dependencies installed.
func (s *Sandbox) Execute(ctx context.Context, req *sandbox.Request) (res *api.ExecutionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = api.SandboxFailure(fmt.Sprintf("execution failed: %v", r))
		}
		res.Duration = time.Since(start)
	}()

	ref, err := s.Build(ctx, req.Code, req.Dependencies, "")
	if err != nil {
		return api.SandboxFailure("execution failed: " + err.Error())
	}
	if !s.cfg.KeepImages {
		defer func() {
			rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if err := s.RemoveImage(rmCtx, ref); err != nil {
				slog.Warn("failed to remove image", "image", ref, "error", err)
			}
		}()
	}

	exitCode, stdout, stderr, err := s.Run(ctx, ref, req.EffectiveTimeout())
	switch {
	case errors.Is(err, ErrTimeout):
		return api.TimedOut()
	case err != nil:
		return api.SandboxFailure("execution failed: " + err.Error())
	}

	return &api.ExecutionResult{
		ExitCode: exitCode,
		Stdout:   string(stdout),
		Stderr:   string(stderr),
	}
}
