package testutil

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
)

// BuildBinary compiles cmd/cisync into dir and returns the binary path.
func BuildBinary(ctx context.Context, dir string) (string, error) {
	root, err := FindProjectRoot()
	if err != nil {
		return "", err
	}

	bin := filepath.Join(dir, "cisync")
	cmd := exec.CommandContext(ctx, "go", "build", "-o", bin, "./cmd/cisync")
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("go build: %w\n%s", err, out)
	}

	return bin, nil
}
