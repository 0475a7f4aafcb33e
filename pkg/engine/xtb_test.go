package engine

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
	"github.com/maxbates/molecular-design-toolkit/pkg/containerrt"
)

func waterSpec(t *testing.T, method string, params map[string]any, props ...calc.Property) *calc.Spec {
	t.Helper()
	s, err := calc.NewStructure(
		[]string{"O", "H", "H"},
		[]float64{0, 0, 0.119, 0, 0.763, -0.477, 0, -0.763, -0.477},
		nil,
	)
	if err != nil {
		t.Fatalf("NewStructure: %v", err)
	}
	spec, err := calc.NewSpec(s, method, params, props)
	if err != nil {
		t.Fatalf("NewSpec: %v", err)
	}
	return spec
}

func TestXTB_PrepareHamiltonianSelection(t *testing.T) {
	adapter := NewXTB("")
	cases := map[string]string{
		"xtb":       "--gfn 2",
		"xtb-gfn2":  "--gfn 2",
		"xtb-gfn1":  "--gfn 1",
		"xtb-gfn0":  "--gfn 0",
		"xtb-gfnff": "--gfnff",
	}
	for method, want := range cases {
		spec := waterSpec(t, method, nil, calc.PropertyEnergy)
		in, err := adapter.Prepare(spec)
		if err != nil {
			t.Fatalf("Prepare(%s): %v", method, err)
		}
		if cmd := strings.Join(in.Command, " "); !strings.Contains(cmd, want) {
			t.Errorf("Prepare(%s) command %q missing %q", method, cmd, want)
		}
	}

	spec := waterSpec(t, "xtb-unknown", nil, calc.PropertyEnergy)
	if _, err := adapter.Prepare(spec); !errors.Is(err, ErrUnsupportedMethod) {
		t.Errorf("unknown xtb variant: err = %v; want ErrUnsupportedMethod", err)
	}
}

func TestXTB_PrepareFlags(t *testing.T) {
	adapter := NewXTB("")
	spec := waterSpec(t, "xtb",
		map[string]any{"charge": -1, "multiplicity": 2, "solvent": "water"},
		calc.PropertyEnergy, calc.PropertyGradient)
	in, err := adapter.Prepare(spec)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	cmd := strings.Join(in.Command, " ")
	for _, want := range []string{"--chrg -1", "--uhf 1", "--grad", "--alpb water"} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command %q missing %q", cmd, want)
		}
	}
	xyz, ok := in.InputFiles["mdtk.xyz"]
	if !ok || !strings.HasPrefix(string(xyz), "3\n") {
		t.Errorf("input xyz missing or malformed:\n%s", xyz)
	}
}

func TestXTB_ParseRequiresNormalTermination(t *testing.T) {
	adapter := NewXTB("")
	spec := waterSpec(t, "xtb", nil, calc.PropertyEnergy)
	raw := &containerrt.RawOutput{
		ExitCode: 1,
		Stdout:   []byte(":: TOTAL ENERGY -5.070 Eh ::\n"),
		Stderr:   []byte("#ERROR! SCC did not converge\n"),
	}
	_, err := adapter.Parse(spec, raw)
	var fail *EngineFailureError
	if !errors.As(err, &fail) {
		t.Fatalf("err = %v; want EngineFailureError without the termination marker", err)
	}
	if adapter.Transient(err) {
		t.Error("xtb failures must never be transient")
	}
}

func TestXTB_ParseEnergyLastSummaryWins(t *testing.T) {
	adapter := NewXTB("")
	spec := waterSpec(t, "xtb", nil, calc.PropertyEnergy)
	stdout := ":: TOTAL ENERGY -5.000000000 Eh ::\n" +
		":: TOTAL ENERGY -5.070544399893 Eh ::\n" +
		"normal termination of xtb\n"
	rs, err := adapter.Parse(spec, &containerrt.RawOutput{Stdout: []byte(stdout)})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if e, ok := rs.Energy(); !ok || math.Abs(e-(-5.070544399893)) > 1e-12 {
		t.Errorf("Energy() = %v, %v; want final summary value", e, ok)
	}
}

func TestXTB_ParseGradientFile(t *testing.T) {
	adapter := NewXTB("")
	spec := waterSpec(t, "xtb", nil, calc.PropertyGradient)
	gradient := `$grad
  cycle =      1    SCF energy =    -5.07054439989   |dE/dxyz| =  0.000438
    0.00000000000000      0.00000000000000      0.22486443912292      O
    0.00000000000000      1.44191872625461     -0.90146349255716      H
    0.00000000000000     -1.44191872625461     -0.90146349255716      H
   0.1234000000000D-04   0.0000000000000D+00  -0.2191000000000D-03
   0.0000000000000D+00   0.1530000000000D-03   0.1095000000000D-03
   0.0000000000000D+00  -0.1530000000000D-03   0.1095000000000D-03
$end
`
	raw := &containerrt.RawOutput{
		Stdout: []byte("normal termination of xtb\n"),
		Files:  map[string][]byte{"gradient": []byte(gradient)},
	}
	rs, err := adapter.Parse(spec, raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	grad, ok := rs.Gradient()
	if !ok || len(grad) != 9 {
		t.Fatalf("Gradient() = %v, %v; want 9 components", grad, ok)
	}
	if math.Abs(grad[0]-0.1234e-04) > 1e-18 {
		t.Errorf("grad[0] = %g; Fortran D exponents must be normalized", grad[0])
	}
	if math.Abs(grad[2]-(-0.2191e-03)) > 1e-18 {
		t.Errorf("grad[2] = %g", grad[2])
	}
}

func TestXTB_ParseGradientFileMissing(t *testing.T) {
	adapter := NewXTB("")
	spec := waterSpec(t, "xtb", nil, calc.PropertyGradient)
	raw := &containerrt.RawOutput{Stdout: []byte("normal termination of xtb\n")}
	_, err := adapter.Parse(spec, raw)
	var malformed *MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Errorf("err = %v; want MalformedOutputError", err)
	}
}

func TestXTB_ParseDipole(t *testing.T) {
	adapter := NewXTB("")
	spec := waterSpec(t, "xtb", nil, calc.PropertyDipole)
	stdout := `molecular dipole:
                 x           y           z       tot (Debye)
 q only:        0.000      -0.000       0.756
   full:        0.000      -0.000       0.874       2.222
normal termination of xtb
`
	rs, err := adapter.Parse(spec, &containerrt.RawOutput{Stdout: []byte(stdout)})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d, ok := rs.Vector(calc.PropertyDipole)
	if !ok || len(d) != 3 || d[2] != 0.874 {
		t.Errorf("dipole = %v, %v", d, ok)
	}
}
