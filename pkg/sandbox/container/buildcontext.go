package container

import (
	"archive/tar"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseImage is the runtime image snippets are built on.
const DefaultBaseImage = "python:3.11-slim"

// ScriptName is the file name of the snippet inside the image.
const ScriptName = "script.py"

// Dockerfile renders the build recipe for a snippet. The pip layer is
// omitted when deps is empty.
func Dockerfile(baseImage string, deps []string) string {
	if baseImage == "" {
		baseImage = DefaultBaseImage
	}
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n", baseImage)
	b.WriteString("WORKDIR /app\n")
	fmt.Fprintf(&b, "COPY %s .\n", ScriptName)
	if len(deps) > 0 {
		quoted := make([]string, len(deps))
		for i, d := range deps {
			quoted[i] = shellQuote(d)
		}
		fmt.Fprintf(&b, "RUN pip install --no-cache-dir %s\n", strings.Join(quoted, " "))
	}
	fmt.Fprintf(&b, "CMD [\"python\", %s]\n", strconv.Quote(ScriptName))
	return b.String()
}

// BuildContext assembles an in-memory tar archive holding the snippet
// and its Dockerfile.
func BuildContext(baseImage, code string, deps []string) (*bytes.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now()

	files := []struct {
		name string
		data string
	}{
		{"Dockerfile", Dockerfile(baseImage, deps)},
		{ScriptName, code},
	}
	for _, f := range files {
		hdr := &tar.Header{
			Name:    f.name,
			Mode:    0o644,
			Size:    int64(len(f.data)),
			ModTime: now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("writing %s header: %w", f.name, err)
		}
		if _, err := tw.Write([]byte(f.data)); err != nil {
			return nil, fmt.Errorf("writing %s: %w", f.name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing build context: %w", err)
	}
	return bytes.NewReader(buf.Bytes()), nil
}

// shellQuote single-quotes s for /bin/sh unless every character is
// safe unquoted.
func shellQuote(s string) string {
	if s != "" && strings.Trim(s, safeChars) == "" {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

const safeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789._-=!~,"
