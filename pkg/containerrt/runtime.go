// Package containerrt wraps the isolated execution environments that
// simulation engines run in. Implementations start an image, feed it the
// serialized engine input, enforce resource limits and a wall-clock timeout,
// and collect stdout/stderr plus named output files. They know nothing about
// chemistry.
package containerrt

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimedOut is returned when a run exceeds its wall-clock budget. The
// environment is forcibly torn down and no partial output is returned.
var ErrTimedOut = errors.New("container run timed out")

// StartError indicates the environment could not be brought up at all
// (image pull, create or start failed). Presumptively transient.
type StartError struct {
	Image string
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start container from image %s: %v", e.Image, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ResourceLimits bounds what the environment may consume.
// Zero values mean "runtime default".
type ResourceLimits struct {
	CPUs        float64       // fractional CPU cores
	MemoryBytes int64         // bytes of RAM
	Timeout     time.Duration // wall clock; enforced by the runtime itself
}

// RunSpec describes one execution: image, command, input payloads and which
// output files to collect from the working directory after exit.
type RunSpec struct {
	Image   string
	Command []string
	Env     map[string]string

	// Stdin is streamed to the process's standard input.
	Stdin []byte

	// InputFiles are materialized in the working directory before start,
	// keyed by relative file name.
	InputFiles map[string][]byte

	// OutputFiles lists relative file names to collect after a clean exit.
	// Missing files are skipped, not errors; adapters decide what is required.
	OutputFiles []string

	Limits ResourceLimits
}

// RawOutput is everything captured from a finished run. It is only produced
// for runs that exited on their own; timeouts and cancellations yield errors
// instead.
type RawOutput struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Files    map[string][]byte
}

// Runtime executes engine processes in isolation. Run blocks until the
// process exits, the timeout elapses or ctx is canceled. Every exit path
// releases the environment's resources (container, temp storage).
type Runtime interface {
	Run(ctx context.Context, spec RunSpec) (*RawOutput, error)
}
