package util

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// RunWithTimeout runs a command and returns its stdout. The command is
// killed when the timeout expires; callers treat a timeout the same as
// any other failure (typically by yielding a null field).
func RunWithTimeout(timeout time.Duration, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
