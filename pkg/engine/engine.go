// Package engine defines the adapter contract between the uniform job
// pipeline and specific simulation engines, plus a pattern-keyed adapter
// registry and the reference adapters.
package engine

import (
	"errors"
	"fmt"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
	"github.com/maxbates/molecular-design-toolkit/pkg/containerrt"
)

// ErrUnsupportedMethod is returned when no registered adapter claims the
// requested method, or an adapter is asked to prepare a method/parameter
// combination it does not implement.
var ErrUnsupportedMethod = errors.New("unsupported calculation method")

// InvalidParametersError reports a method parameter set that failed schema
// validation. A caller error; never retried.
type InvalidParametersError struct {
	Method string
	Err    error
}

func (e *InvalidParametersError) Error() string {
	return fmt.Sprintf("invalid parameters for method %s: %v", e.Method, e.Err)
}

func (e *InvalidParametersError) Unwrap() error { return e.Err }

// MalformedOutputError reports engine output the adapter could not interpret:
// missing sections, unparsable numbers. A contract violation; never retried.
type MalformedOutputError struct {
	Method string
	Reason string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed %s output: %s", e.Method, e.Reason)
}

// EngineFailureError reports an explicit failure signaled by the engine
// itself: non-convergence or an internal engine error. This is a scientific
// result, not a transient fault, and is never retried.
type EngineFailureError struct {
	Method string
	Reason string
}

func (e *EngineFailureError) Error() string {
	return fmt.Sprintf("engine %s reported failure: %s", e.Method, e.Reason)
}

// Input is the engine-specific materialization of a calculation: the image
// to run, the command line, stdin payload and input files, and which output
// files to collect afterwards.
type Input struct {
	Image       string
	Command     []string
	Env         map[string]string
	Stdin       []byte
	InputFiles  map[string][]byte
	OutputFiles []string
}

// Adapter translates between the uniform calculation contract and one
// simulation engine's conventions. Adapters are pure and stateless: Prepare
// is deterministic (the same spec always yields the same serialized input,
// which keeps fingerprint-based dedup honest) and Parse performs no I/O
// beyond reading the captured output.
type Adapter interface {
	// Method returns the method-name pattern this adapter registers under.
	// Patterns use glob syntax; a plain name is an exact match.
	Method() string

	// Image returns the container image reference the engine runs in.
	Image() string

	// Prepare serializes the spec into engine input. It fails with
	// ErrUnsupportedMethod for method/parameter combinations the engine
	// does not implement and *InvalidParametersError for schema violations.
	Prepare(spec *calc.Spec) (*Input, error)

	// Parse interprets raw engine output into a uniform ResultSet. It fails
	// with *MalformedOutputError when the output cannot be interpreted and
	// *EngineFailureError when the engine explicitly signals failure.
	Parse(spec *calc.Spec, raw *containerrt.RawOutput) (*calc.ResultSet, error)

	// Transient classifies an error from this adapter's Parse (or the
	// engine's exit status) as retryable or final. Exit-code heuristics
	// differ per engine, so the boundary is adapter-owned.
	Transient(err error) bool
}

// Defaulter is implemented by adapters that expand an empty requested
// property set into their per-method defaults.
type Defaulter interface {
	DefaultProperties() []calc.Property
}
