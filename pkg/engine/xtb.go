package engine

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
	"github.com/maxbates/molecular-design-toolkit/pkg/containerrt"
)

const (
	xtbInputName    = "mdtk.xyz"
	xtbGradientFile = "gradient"
	// xtb prints this near the end of a healthy run. Its absence means the
	// run died internally even when files look plausible.
	xtbNormalTermination = "normal termination of xtb"
)

type xtbOptions struct {
	Charge       int    `mapstructure:"charge"`
	Multiplicity int    `mapstructure:"multiplicity"`
	Solvent      string `mapstructure:"solvent"`
}

// XTB adapts the semiempirical xtb engine. It registers under the pattern
// "xtb*" so method names select the Hamiltonian: "xtb" and "xtb-gfn2" run
// GFN2, "xtb-gfn0"/"xtb-gfn1" the older parametrizations, "xtb-gfnff" the
// force field.
type XTB struct {
	image string
}

// NewXTB creates the xtb adapter. An empty image selects the default.
func NewXTB(image string) *XTB {
	if image == "" {
		image = "ghcr.io/maxbates/mdtk-xtb:6.6"
	}
	return &XTB{image: image}
}

func (x *XTB) Method() string { return "xtb*" }
func (x *XTB) Image() string  { return x.image }

// DefaultProperties implements Defaulter.
func (x *XTB) DefaultProperties() []calc.Property {
	return []calc.Property{calc.PropertyEnergy, calc.PropertyGradient}
}

// Prepare implements Adapter.
func (x *XTB) Prepare(spec *calc.Spec) (*Input, error) {
	opts, err := decodeParams[xtbOptions](spec.Method(), spec.Params())
	if err != nil {
		return nil, err
	}
	if opts.Multiplicity == 0 {
		opts.Multiplicity = 1
	}
	if opts.Multiplicity < 1 {
		return nil, &InvalidParametersError{Method: spec.Method(), Err: errors.New("multiplicity must be >= 1")}
	}

	gfnArgs, err := xtbHamiltonian(spec.Method())
	if err != nil {
		return nil, err
	}
	for _, p := range spec.Properties() {
		switch p {
		case calc.PropertyEnergy, calc.PropertyGradient, calc.PropertyDipole:
		default:
			return nil, fmt.Errorf("%w: xtb cannot compute %q", ErrUnsupportedMethod, p)
		}
	}

	structure := spec.Structure()
	var xyz strings.Builder
	fmt.Fprintf(&xyz, "%d\n\n", structure.NumAtoms())
	for i, el := range structure.Elements {
		fmt.Fprintf(&xyz, "%s %.10f %.10f %.10f\n",
			el, structure.Coords[3*i], structure.Coords[3*i+1], structure.Coords[3*i+2])
	}

	args := []string{"xtb", xtbInputName,
		"--chrg", strconv.Itoa(opts.Charge),
		"--uhf", strconv.Itoa(opts.Multiplicity - 1),
	}
	args = append(args, gfnArgs...)
	if spec.Wants(calc.PropertyGradient) {
		args = append(args, "--grad")
	}
	if opts.Solvent != "" {
		args = append(args, "--alpb", opts.Solvent)
	}

	return &Input{
		Image:       x.image,
		Command:     args,
		InputFiles:  map[string][]byte{xtbInputName: []byte(xyz.String())},
		OutputFiles: []string{xtbGradientFile},
	}, nil
}

func xtbHamiltonian(method string) ([]string, error) {
	switch method {
	case "xtb", "xtb-gfn2":
		return []string{"--gfn", "2"}, nil
	case "xtb-gfn1":
		return []string{"--gfn", "1"}, nil
	case "xtb-gfn0":
		return []string{"--gfn", "0"}, nil
	case "xtb-gfnff":
		return []string{"--gfnff"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
}

// Parse implements Adapter.
func (x *XTB) Parse(spec *calc.Spec, raw *containerrt.RawOutput) (*calc.ResultSet, error) {
	combined := string(raw.Stdout) + string(raw.Stderr)
	if !strings.Contains(combined, xtbNormalTermination) {
		return nil, &EngineFailureError{
			Method: spec.Method(),
			Reason: fmt.Sprintf("abnormal termination (exit %d): %s", raw.ExitCode, firstLine(raw.Stderr)),
		}
	}

	values := make(map[calc.Property]any)
	if spec.Wants(calc.PropertyEnergy) {
		e, err := xtbTotalEnergy(raw.Stdout)
		if err != nil {
			return nil, &MalformedOutputError{Method: spec.Method(), Reason: err.Error()}
		}
		values[calc.PropertyEnergy] = e
	}
	if spec.Wants(calc.PropertyGradient) {
		gradFile, ok := raw.Files[xtbGradientFile]
		if !ok {
			return nil, &MalformedOutputError{Method: spec.Method(), Reason: "gradient file missing"}
		}
		grad, err := xtbGradient(gradFile, spec.Structure().NumAtoms())
		if err != nil {
			return nil, &MalformedOutputError{Method: spec.Method(), Reason: err.Error()}
		}
		values[calc.PropertyGradient] = grad
	}
	if spec.Wants(calc.PropertyDipole) {
		d, err := xtbDipole(raw.Stdout)
		if err != nil {
			return nil, &MalformedOutputError{Method: spec.Method(), Reason: err.Error()}
		}
		values[calc.PropertyDipole] = d
	}
	return calc.NewResultSet(values)
}

// Transient implements Adapter. xtb has no retryable failure modes of its
// own: its failures are either scientific or malformed output.
func (x *XTB) Transient(err error) bool { return false }

// xtbTotalEnergy scans for the ":: TOTAL ENERGY <value> Eh ::" summary line.
func xtbTotalEnergy(stdout []byte) (float64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	found := false
	var energy float64
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "TOTAL ENERGY") {
			continue
		}
		fields := strings.Fields(line)
		for _, f := range fields {
			if v, err := strconv.ParseFloat(f, 64); err == nil {
				// Last parsable run wins so repeated summaries (e.g. after
				// restarts inside one run) report the final value.
				energy = v
				found = true
			}
		}
	}
	if !found {
		return 0, errors.New("TOTAL ENERGY line not found")
	}
	return energy, nil
}

// xtbGradient reads the Turbomole-style gradient file: a $grad header, natoms
// coordinate lines, then natoms gradient lines of three floats each.
func xtbGradient(data []byte, natoms int) ([]float64, error) {
	var rows [][]float64
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "$") {
			continue
		}
		// xtb writes Fortran doubles; normalize the exponent marker.
		line = strings.ReplaceAll(line, "D", "E")
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		row := make([]float64, 3)
		ok := true
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				ok = false
				break
			}
			row[i] = v
		}
		if ok {
			rows = append(rows, row)
		}
	}
	// Coordinate lines carry 4 fields (xyz + element) and are skipped above;
	// what remains should be exactly the gradient rows.
	if len(rows) < natoms {
		return nil, fmt.Errorf("gradient file has %d rows, want %d", len(rows), natoms)
	}
	rows = rows[len(rows)-natoms:]
	grad := make([]float64, 0, 3*natoms)
	for _, row := range rows {
		grad = append(grad, row...)
	}
	return grad, nil
}

// xtbDipole scans the "molecular dipole" block for the "full:" row.
func xtbDipole(stdout []byte) ([]float64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	inBlock := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.Contains(line, "molecular dipole") {
			inBlock = true
			continue
		}
		if inBlock && strings.HasPrefix(line, "full:") {
			vals, err := parseFloats(strings.TrimPrefix(line, "full:"))
			if err != nil || len(vals) < 3 {
				return nil, errors.New("unparsable dipole row")
			}
			return vals[:3], nil
		}
	}
	return nil, errors.New("molecular dipole block not found")
}
