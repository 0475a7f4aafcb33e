package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
	"github.com/maxbates/molecular-design-toolkit/pkg/containerrt"
)

// OOM-killed containers exit with 128+SIGKILL. The engine did not get a
// chance to report anything scientific, so a re-run is worth attempting.
const pyscfOOMExit = 137

var (
	pyscfTheories    = []string{"rhf", "rks", "mp2"}
	pyscfFunctionals = []string{"b3lyp", "blyp", "pbe0", "x3lyp", "mpw3lyp5"}
)

type pyscfOptions struct {
	Theory       string `mapstructure:"theory"`
	Basis        string `mapstructure:"basis"`
	Functional   string `mapstructure:"functional"`
	Charge       int    `mapstructure:"charge"`
	Multiplicity int    `mapstructure:"multiplicity"`
	MaxCycles    int    `mapstructure:"scf_max_cycles"`
}

// pyscfRequest is the JSON payload streamed to the engine wrapper on stdin.
type pyscfRequest struct {
	Theory       string    `json:"theory"`
	Basis        string    `json:"basis"`
	Functional   string    `json:"functional,omitempty"`
	Charge       int       `json:"charge"`
	Multiplicity int       `json:"multiplicity"`
	MaxCycles    int       `json:"scf_max_cycles,omitempty"`
	Elements     []string  `json:"elements"`
	Coords       []float64 `json:"coords"`
	Properties   []string  `json:"properties"`
}

// pyscfResponse is the engine wrapper's result.json.
type pyscfResponse struct {
	Converged       bool      `json:"converged"`
	Error           string    `json:"error,omitempty"`
	PotentialEnergy *float64  `json:"potential_energy,omitempty"`
	Forces          []float64 `json:"forces,omitempty"`
	Mulliken        []float64 `json:"mulliken,omitempty"`
	Dipole          []float64 `json:"dipole,omitempty"`
	Orbitals        []float64 `json:"orbital_energies,omitempty"`
}

type errOOMKilled struct{}

func (errOOMKilled) Error() string { return "pyscf container killed (exit 137, likely OOM)" }

// PySCF adapts the pyscf quantum chemistry engine through a thin JSON-in,
// JSON-out wrapper baked into the image.
type PySCF struct {
	image string
}

// NewPySCF creates the pyscf adapter. An empty image selects the default.
func NewPySCF(image string) *PySCF {
	if image == "" {
		image = "ghcr.io/maxbates/mdtk-pyscf:2.5"
	}
	return &PySCF{image: image}
}

func (p *PySCF) Method() string { return "pyscf" }
func (p *PySCF) Image() string  { return p.image }

// DefaultProperties implements Defaulter: energy, orbital energies and
// Mulliken charges, matching the engine's own default report.
func (p *PySCF) DefaultProperties() []calc.Property {
	return []calc.Property{calc.PropertyEnergy, calc.PropertyOrbitals, calc.PropertyCharges}
}

// Prepare implements Adapter.
func (p *PySCF) Prepare(spec *calc.Spec) (*Input, error) {
	opts, err := decodeParams[pyscfOptions](spec.Method(), spec.Params())
	if err != nil {
		return nil, err
	}
	if opts.Theory == "" {
		opts.Theory = "rhf"
	}
	opts.Theory = strings.ToLower(opts.Theory)
	if !containsString(pyscfTheories, opts.Theory) {
		return nil, fmt.Errorf("%w: pyscf theory %q", ErrUnsupportedMethod, opts.Theory)
	}
	if opts.Basis == "" {
		return nil, &InvalidParametersError{Method: spec.Method(), Err: errors.New("basis is required")}
	}
	if opts.Theory == "rks" {
		if opts.Functional == "" {
			return nil, &InvalidParametersError{Method: spec.Method(), Err: errors.New("rks requires a functional")}
		}
		if !containsString(pyscfFunctionals, strings.ToLower(opts.Functional)) {
			return nil, &InvalidParametersError{
				Method: spec.Method(),
				Err:    fmt.Errorf("functional %q not supported", opts.Functional),
			}
		}
	} else if opts.Functional != "" {
		return nil, &InvalidParametersError{
			Method: spec.Method(),
			Err:    fmt.Errorf("functional is only valid with theory rks, not %q", opts.Theory),
		}
	}
	if opts.Multiplicity == 0 {
		opts.Multiplicity = 1
	}
	if spec.Wants(calc.PropertyGradient) && opts.Theory == "mp2" {
		return nil, fmt.Errorf("%w: pyscf gradients are not available for mp2", ErrUnsupportedMethod)
	}
	if spec.Wants(calc.PropertyStructure) {
		return nil, fmt.Errorf("%w: pyscf adapter performs single points only", ErrUnsupportedMethod)
	}

	structure := spec.Structure()
	props := make([]string, 0, len(spec.Properties()))
	for _, prop := range spec.Properties() {
		props = append(props, string(prop))
	}
	req := pyscfRequest{
		Theory:       opts.Theory,
		Basis:        opts.Basis,
		Functional:   strings.ToLower(opts.Functional),
		Charge:       opts.Charge,
		Multiplicity: opts.Multiplicity,
		MaxCycles:    opts.MaxCycles,
		Elements:     structure.Elements,
		Coords:       structure.Coords,
		Properties:   props,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal pyscf request: %w", err)
	}

	return &Input{
		Image:       p.image,
		Command:     []string{"python", "-m", "mdtk_pyscf"},
		Stdin:       payload,
		OutputFiles: []string{"result.json"},
	}, nil
}

// Parse implements Adapter.
func (p *PySCF) Parse(spec *calc.Spec, raw *containerrt.RawOutput) (*calc.ResultSet, error) {
	if raw.ExitCode == pyscfOOMExit {
		return nil, errOOMKilled{}
	}

	data, ok := raw.Files["result.json"]
	if !ok {
		if raw.ExitCode != 0 {
			return nil, &EngineFailureError{
				Method: spec.Method(),
				Reason: fmt.Sprintf("exit code %d with no result: %s", raw.ExitCode, firstLine(raw.Stderr)),
			}
		}
		return nil, &MalformedOutputError{Method: spec.Method(), Reason: "result.json missing"}
	}

	var resp pyscfResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &MalformedOutputError{Method: spec.Method(), Reason: fmt.Sprintf("undecodable result.json: %v", err)}
	}
	if resp.Error != "" {
		return nil, &EngineFailureError{Method: spec.Method(), Reason: resp.Error}
	}
	if !resp.Converged {
		return nil, &EngineFailureError{Method: spec.Method(), Reason: "SCF did not converge"}
	}

	values := make(map[calc.Property]any)
	for _, prop := range spec.Properties() {
		switch prop {
		case calc.PropertyEnergy:
			if resp.PotentialEnergy == nil {
				return nil, &MalformedOutputError{Method: spec.Method(), Reason: "potential_energy missing"}
			}
			values[prop] = *resp.PotentialEnergy
		case calc.PropertyGradient:
			if want := 3 * spec.Structure().NumAtoms(); len(resp.Forces) != want {
				return nil, &MalformedOutputError{
					Method: spec.Method(),
					Reason: fmt.Sprintf("forces has %d components, want %d", len(resp.Forces), want),
				}
			}
			// The engine reports forces; the core contract is the gradient.
			grad := make([]float64, len(resp.Forces))
			for i, f := range resp.Forces {
				grad[i] = -f
			}
			values[prop] = grad
		case calc.PropertyCharges:
			if len(resp.Mulliken) != spec.Structure().NumAtoms() {
				return nil, &MalformedOutputError{Method: spec.Method(), Reason: "mulliken charges missing or wrong length"}
			}
			values[prop] = resp.Mulliken
		case calc.PropertyDipole:
			if len(resp.Dipole) != 3 {
				return nil, &MalformedOutputError{Method: spec.Method(), Reason: "dipole missing or wrong length"}
			}
			values[prop] = resp.Dipole
		case calc.PropertyOrbitals:
			if len(resp.Orbitals) == 0 {
				return nil, &MalformedOutputError{Method: spec.Method(), Reason: "orbital energies missing"}
			}
			values[prop] = resp.Orbitals
		}
	}
	return calc.NewResultSet(values)
}

// Transient implements Adapter: an OOM-killed run never produced a scientific
// verdict, so it is retryable; everything else is final.
func (p *PySCF) Transient(err error) bool {
	var oom errOOMKilled
	return errors.As(err, &oom)
}
