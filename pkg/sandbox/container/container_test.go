package container

import (
	"archive/tar"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/sandbox"
)

func TestDockerfile(t *testing.T) {
	got := Dockerfile("", nil)
	want := "FROM python:3.11-slim\nWORKDIR /app\nCOPY script.py .\nCMD [\"python\", \"script.py\"]\n"
	if got != want {
		t.Errorf("Dockerfile() = %q, want %q", got, want)
	}

	withDeps := Dockerfile("python:3.12-alpine", []string{"requests", "numpy>=1.26", "pkg[extra]"})
	if !strings.HasPrefix(withDeps, "FROM python:3.12-alpine\n") {
		t.Errorf("missing base image line:\n%s", withDeps)
	}
	if !strings.Contains(withDeps, "RUN pip install --no-cache-dir requests 'numpy>=1.26' 'pkg[extra]'\n") {
		t.Errorf("missing pip layer:\n%s", withDeps)
	}

	// The pip layer comes after the script is copied and before CMD.
	copyAt, runAt, cmdAt := strings.Index(withDeps, "COPY"), strings.Index(withDeps, "RUN"), strings.Index(withDeps, "CMD")
	if copyAt >= runAt || runAt >= cmdAt {
		t.Errorf("layer order COPY=%d RUN=%d CMD=%d", copyAt, runAt, cmdAt)
	}
}

func TestShellQuote(t *testing.T) {
	tests := map[string]string{
		"requests":    "requests",
		"numpy==1.26": "numpy==1.26",
		"a>=1":        "'a>=1'",
		"x; rm -rf /": "'x; rm -rf /'",
		"it's":        `'it'\''s'`,
		"":            "''",
	}
	for in, want := range tests {
		if got := shellQuote(in); got != want {
			t.Errorf("shellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildContext(t *testing.T) {
	r, err := BuildContext("", "print('hi')\n", []string{"rich"})
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}

	files := map[string]string{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading tar: %v", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("reading %s: %v", hdr.Name, err)
		}
		files[hdr.Name] = string(data)
	}

	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if files[ScriptName] != "print('hi')\n" {
		t.Errorf("script = %q", files[ScriptName])
	}
	if !strings.Contains(files["Dockerfile"], "RUN pip install --no-cache-dir rich") {
		t.Errorf("Dockerfile = %q", files["Dockerfile"])
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.defaults()
	if cfg.BaseImage != DefaultBaseImage {
		t.Errorf("BaseImage = %q", cfg.BaseImage)
	}
	if cfg.Repo != DefaultRepo {
		t.Errorf("Repo = %q", cfg.Repo)
	}
	if cfg.BuildTimeout != 5*time.Minute {
		t.Errorf("BuildTimeout = %v", cfg.BuildTimeout)
	}
	if cfg.MaxOutput != sandbox.DefaultMaxOutput {
		t.Errorf("MaxOutput = %d", cfg.MaxOutput)
	}
}

func newIntegrationSandbox(t *testing.T) *Sandbox {
	t.Helper()
	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping container sandbox tests")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	sb, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { sb.Close() })
	return sb
}

func TestSandbox_ExecuteExitCodes(t *testing.T) {
	sb := newIntegrationSandbox(t)

	ok := sb.Execute(t.Context(), &sandbox.Request{Code: "print('hi')", Timeout: time.Minute})
	if ok.ExitCode != 0 || ok.Stdout != "hi\n" {
		t.Errorf("result = %+v", ok)
	}

	failed := sb.Execute(t.Context(), &sandbox.Request{
		Code:    "import sys\nprint('bad', file=sys.stderr)\nsys.exit(4)",
		Timeout: time.Minute,
	})
	if failed.ExitCode != 4 || failed.Stdout != "" || failed.Stderr != "bad\n" {
		t.Errorf("result = %+v", failed)
	}
}

func TestSandbox_ExecuteTimeout(t *testing.T) {
	sb := newIntegrationSandbox(t)

	res := sb.Execute(t.Context(), &sandbox.Request{Code: "import time\ntime.sleep(120)", Timeout: 3 * time.Second})

	if res.ExitCode != api.ExitSandboxFailure || res.Stderr != api.MessageTimedOut {
		t.Errorf("result = %+v", res)
	}
}

func TestSandbox_UniqueTags(t *testing.T) {
	sb := &Sandbox{cfg: Config{Repo: DefaultRepo}}
	a, b := sb.NewTag(), sb.NewTag()
	if a == b {
		t.Errorf("NewTag returned %q twice", a)
	}
	if !strings.HasPrefix(a, DefaultRepo+":") {
		t.Errorf("tag %q lacks repo prefix", a)
	}
}
