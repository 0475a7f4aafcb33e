package engine

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
	"github.com/maxbates/molecular-design-toolkit/pkg/containerrt"
)

// toyHF nonzero exit codes. 75 follows the sysexits EX_TEMPFAIL convention:
// the engine could not get resources and wants to be re-run.
const toyHFTempFailExit = 75

const scfNotConvergedMarker = "SCF NOT CONVERGED"

var toyHFBases = []string{"sto-3g", "3-21g", "6-31g"}

type toyHFOptions struct {
	Basis   string `mapstructure:"basis"`
	Charge  int    `mapstructure:"charge"`
	MaxIter int    `mapstructure:"maxiter"`
}

// errTempFail marks toyHF exit statuses that are transient by the engine's
// own convention.
type errTempFail struct{ code int }

func (e *errTempFail) Error() string {
	return fmt.Sprintf("toyhf exited with transient failure code %d", e.code)
}

// ToyHF is the reference adapter for the toy Hartree-Fock engine. The engine
// reads a KEY=VALUE request on stdin and prints ENERGY= / GRADIENT= lines.
type ToyHF struct {
	image string
}

// NewToyHF creates the toyhf adapter. An empty image selects the default.
func NewToyHF(image string) *ToyHF {
	if image == "" {
		image = "ghcr.io/maxbates/mdtk-toyhf:1"
	}
	return &ToyHF{image: image}
}

func (t *ToyHF) Method() string { return "toyhf" }
func (t *ToyHF) Image() string  { return t.image }

// DefaultProperties implements Defaulter.
func (t *ToyHF) DefaultProperties() []calc.Property {
	return []calc.Property{calc.PropertyEnergy}
}

// Prepare implements Adapter.
func (t *ToyHF) Prepare(spec *calc.Spec) (*Input, error) {
	opts, err := decodeParams[toyHFOptions](spec.Method(), spec.Params())
	if err != nil {
		return nil, err
	}
	if opts.Basis == "" {
		return nil, &InvalidParametersError{Method: spec.Method(), Err: errors.New("basis is required")}
	}
	if !containsString(toyHFBases, opts.Basis) {
		return nil, &InvalidParametersError{
			Method: spec.Method(),
			Err:    fmt.Errorf("basis %q not supported (want one of %s)", opts.Basis, strings.Join(toyHFBases, ", ")),
		}
	}
	if opts.MaxIter < 0 {
		return nil, &InvalidParametersError{Method: spec.Method(), Err: errors.New("maxiter must be non-negative")}
	}
	if opts.MaxIter == 0 {
		opts.MaxIter = 50
	}
	for _, p := range spec.Properties() {
		if p != calc.PropertyEnergy && p != calc.PropertyGradient {
			return nil, fmt.Errorf("%w: toyhf cannot compute %q", ErrUnsupportedMethod, p)
		}
	}

	structure := spec.Structure()
	var b strings.Builder
	fmt.Fprintf(&b, "METHOD=toyhf\n")
	fmt.Fprintf(&b, "BASIS=%s\n", opts.Basis)
	fmt.Fprintf(&b, "CHARGE=%d\n", opts.Charge)
	fmt.Fprintf(&b, "MAXITER=%d\n", opts.MaxIter)
	fmt.Fprintf(&b, "PROPS=%s\n", joinProperties(spec.Properties()))
	fmt.Fprintf(&b, "NATOMS=%d\n", structure.NumAtoms())
	for i, el := range structure.Elements {
		fmt.Fprintf(&b, "%s %.10f %.10f %.10f\n",
			el, structure.Coords[3*i], structure.Coords[3*i+1], structure.Coords[3*i+2])
	}

	return &Input{
		Image:   t.image,
		Command: []string{"toyhf"},
		Stdin:   []byte(b.String()),
	}, nil
}

// Parse implements Adapter.
func (t *ToyHF) Parse(spec *calc.Spec, raw *containerrt.RawOutput) (*calc.ResultSet, error) {
	if raw.ExitCode == toyHFTempFailExit {
		return nil, &errTempFail{code: raw.ExitCode}
	}
	combined := string(raw.Stdout) + string(raw.Stderr)
	if strings.Contains(combined, scfNotConvergedMarker) {
		return nil, &EngineFailureError{Method: spec.Method(), Reason: scfNotConvergedMarker}
	}
	if raw.ExitCode != 0 {
		return nil, &EngineFailureError{
			Method: spec.Method(),
			Reason: fmt.Sprintf("exit code %d: %s", raw.ExitCode, firstLine(raw.Stderr)),
		}
	}

	values := make(map[calc.Property]any)
	scanner := bufio.NewScanner(bytes.NewReader(raw.Stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "ENERGY="):
			e, err := strconv.ParseFloat(strings.TrimPrefix(line, "ENERGY="), 64)
			if err != nil {
				return nil, &MalformedOutputError{Method: spec.Method(), Reason: fmt.Sprintf("bad energy line %q", line)}
			}
			values[calc.PropertyEnergy] = e
		case strings.HasPrefix(line, "GRADIENT="):
			grad, err := parseFloats(strings.TrimPrefix(line, "GRADIENT="))
			if err != nil {
				return nil, &MalformedOutputError{Method: spec.Method(), Reason: fmt.Sprintf("bad gradient line %q", line)}
			}
			values[calc.PropertyGradient] = grad
		}
	}

	for _, p := range spec.Properties() {
		if _, ok := values[p]; !ok {
			return nil, &MalformedOutputError{Method: spec.Method(), Reason: fmt.Sprintf("missing requested property %q", p)}
		}
	}
	if grad, ok := values[calc.PropertyGradient].([]float64); ok {
		if want := 3 * spec.Structure().NumAtoms(); len(grad) != want {
			return nil, &MalformedOutputError{
				Method: spec.Method(),
				Reason: fmt.Sprintf("gradient has %d components, want %d", len(grad), want),
			}
		}
	}
	return calc.NewResultSet(values)
}

// Transient implements Adapter: only the engine's own EX_TEMPFAIL convention
// is retryable; everything else toyhf reports is final.
func (t *ToyHF) Transient(err error) bool {
	var tmp *errTempFail
	return errors.As(err, &tmp)
}

func joinProperties(props []calc.Property) string {
	parts := make([]string, len(props))
	for i, p := range props {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, errors.New("empty vector")
	}
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func containsString(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

// decodeParams strictly decodes a parameter map into a typed option struct.
// Unknown keys are schema violations.
func decodeParams[T any](method string, params map[string]any) (T, error) {
	var opts T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &opts,
		ErrorUnused: true,
	})
	if err != nil {
		return opts, fmt.Errorf("build params decoder: %w", err)
	}
	if err := dec.Decode(params); err != nil {
		return opts, &InvalidParametersError{Method: method, Err: err}
	}
	return opts, nil
}
