package containerrt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// LocalRuntime implements Runtime using raw OS processes instead of
// containers. It honors the same contract (temp working directory, timeout,
// output collection) and exists for development and tests; it provides no
// real isolation. The RunSpec image is ignored and Command[0] is resolved
// from PATH.
type LocalRuntime struct{}

// NewLocalRuntime creates a process-based runtime.
func NewLocalRuntime() *LocalRuntime {
	return &LocalRuntime{}
}

// Run implements Runtime.
func (l *LocalRuntime) Run(ctx context.Context, spec RunSpec) (*RawOutput, error) {
	if len(spec.Command) == 0 {
		return nil, &StartError{Image: spec.Image, Err: errors.New("empty command")}
	}

	workDir, err := os.MkdirTemp("", "mdtk-local-*")
	if err != nil {
		return nil, &StartError{Image: spec.Image, Err: fmt.Errorf("create workdir: %w", err)}
	}
	defer os.RemoveAll(workDir)

	for name, data := range spec.InputFiles {
		if err := os.WriteFile(filepath.Join(workDir, name), data, 0o644); err != nil {
			return nil, &StartError{Image: spec.Image, Err: fmt.Errorf("write input %s: %w", name, err)}
		}
	}

	runCtx := ctx
	if spec.Limits.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Limits.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, spec.Command[0], spec.Command[1:]...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), envList(spec.Env)...)
	if len(spec.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(spec.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Kill promptly on deadline instead of waiting for pipes to drain.
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return nil, &StartError{Image: spec.Image, Err: err}
	}

	err = cmd.Wait()
	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return nil, ErrTimedOut
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("wait for process: %w", err)
		}
	}

	return &RawOutput{
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Files:    collectFiles(workDir, spec.OutputFiles),
	}, nil
}
