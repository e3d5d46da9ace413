//go:build integration

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nnsdao/cisync/internal/testutil"
)

const defaultTimeout = 2 * time.Minute

// Harness runs the cisync binary against a throwaway project directory
type Harness struct {
	t      *testing.T
	bin    string
	root   string
	keepOn bool
}

// NewHarness builds the binary and creates an empty project root
func NewHarness(ctx context.Context, t *testing.T) *Harness {
	t.Helper()

	bin, err := testutil.BuildBinary(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("build binary: %v", err)
	}

	return &Harness{
		t:      t,
		bin:    bin,
		root:   t.TempDir(),
		keepOn: os.Getenv("INTEGRATION_KEEP_PROJECT") == "1",
	}
}

// Root returns the project directory
func (h *Harness) Root() string {
	return h.root
}

// Cleanup reports the project directory when the test failed and
// INTEGRATION_KEEP_PROJECT=1 is set.
func (h *Harness) Cleanup() {
	h.t.Helper()
	if h.keepOn && h.t.Failed() {
		kept, err := os.MkdirTemp("", "cisync-project-")
		if err != nil {
			h.t.Logf("Warning: failed to keep project: %v", err)
			return
		}
		if err := os.CopyFS(kept, os.DirFS(h.root)); err != nil {
			h.t.Logf("Warning: failed to keep project: %v", err)
			return
		}
		h.t.Logf("Test failed and INTEGRATION_KEEP_PROJECT=1, project copied to %s", kept)
	}
}

// Run executes cisync with the project root and returns stdout, stderr and
// the exit code.
func (h *Harness) Run(ctx context.Context, args ...string) (string, string, int, error) {
	h.t.Helper()

	full := append([]string{"--root", h.root}, args...)
	cmd := exec.CommandContext(ctx, h.bin, full...)
	cmd.Env = filteredEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdout, &testWriter{t: h.t, prefix: "[cisync] "})
	cmd.Stderr = io.MultiWriter(&stderr, &testWriter{t: h.t, prefix: "[cisync] "})

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, fmt.Errorf("exec failed: %w", err)
		}
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// MustRun executes cisync and fails the test on a non-zero exit code
func (h *Harness) MustRun(ctx context.Context, args ...string) string {
	h.t.Helper()
	stdout, stderr, exitCode, err := h.Run(ctx, args...)
	if err != nil {
		h.t.Fatalf("run failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("command failed with exit code %d\nstdout: %s\nstderr: %s\nargs: %v",
			exitCode, stdout, stderr, args)
	}
	return stdout
}

// WriteFile writes a file relative to the project root
func (h *Harness) WriteFile(path, content string) {
	h.t.Helper()
	full := filepath.Join(h.root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		h.t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		h.t.Fatalf("write file: %v", err)
	}
}

// Mkdir creates a directory relative to the project root
func (h *Harness) Mkdir(path string) {
	h.t.Helper()
	if err := os.MkdirAll(filepath.Join(h.root, path), 0755); err != nil {
		h.t.Fatalf("mkdir: %v", err)
	}
}

// ReadFile reads a file relative to the project root
func (h *Harness) ReadFile(path string) string {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.root, path))
	if err != nil {
		h.t.Fatalf("read file: %v", err)
	}
	return string(data)
}

// FileExists checks if a file exists relative to the project root
func (h *Harness) FileExists(path string) bool {
	_, err := os.Stat(filepath.Join(h.root, path))
	return err == nil
}

// filteredEnv drops CISYNC_ variables from the calling environment
func filteredEnv() []string {
	var env []string
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "CISYNC_") {
			env = append(env, kv)
		}
	}
	return env
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
