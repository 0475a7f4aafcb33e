package engine

import (
	"bytes"
	"errors"
	"testing"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
	"github.com/maxbates/molecular-design-toolkit/pkg/containerrt"
)

func h2Spec(t *testing.T, params map[string]any, props ...calc.Property) *calc.Spec {
	t.Helper()
	s, err := calc.NewStructure([]string{"H", "H"}, []float64{0, 0, 0, 0, 0, 0.74}, nil)
	if err != nil {
		t.Fatalf("NewStructure: %v", err)
	}
	spec, err := calc.NewSpec(s, "toyhf", params, props)
	if err != nil {
		t.Fatalf("NewSpec: %v", err)
	}
	return spec
}

func TestToyHF_PrepareDeterministic(t *testing.T) {
	adapter := NewToyHF("")
	spec := h2Spec(t, map[string]any{"basis": "sto-3g"}, calc.PropertyEnergy)

	a, err := adapter.Prepare(spec)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	b, err := adapter.Prepare(spec)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !bytes.Equal(a.Stdin, b.Stdin) {
		t.Errorf("Prepare is not deterministic:\n%s\n---\n%s", a.Stdin, b.Stdin)
	}
	if !bytes.Contains(a.Stdin, []byte("BASIS=sto-3g")) {
		t.Errorf("stdin missing basis line:\n%s", a.Stdin)
	}
	if !bytes.Contains(a.Stdin, []byte("NATOMS=2")) {
		t.Errorf("stdin missing atom count:\n%s", a.Stdin)
	}
}

func TestToyHF_PrepareRejectsBadParams(t *testing.T) {
	adapter := NewToyHF("")
	cases := map[string]map[string]any{
		"missing basis": {},
		"unknown basis": {"basis": "cc-pvtz"},
		"unknown key":   {"basis": "sto-3g", "temperature": 300},
		"bad maxiter":   {"basis": "sto-3g", "maxiter": -1},
	}
	for name, params := range cases {
		spec := h2Spec(t, params, calc.PropertyEnergy)
		_, err := adapter.Prepare(spec)
		var invalid *InvalidParametersError
		if !errors.As(err, &invalid) {
			t.Errorf("%s: err = %v; want InvalidParametersError", name, err)
		}
	}
}

func TestToyHF_PrepareRejectsUnsupportedProperty(t *testing.T) {
	adapter := NewToyHF("")
	spec := h2Spec(t, map[string]any{"basis": "sto-3g"}, calc.PropertyDipole)
	_, err := adapter.Prepare(spec)
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Errorf("err = %v; want ErrUnsupportedMethod", err)
	}
}

func TestToyHF_ParseEnergy(t *testing.T) {
	adapter := NewToyHF("")
	spec := h2Spec(t, map[string]any{"basis": "sto-3g"}, calc.PropertyEnergy)
	raw := &containerrt.RawOutput{
		ExitCode: 0,
		Stdout:   []byte("ITER=12 CONVERGED\nENERGY=-1.117\n"),
	}
	rs, err := adapter.Parse(spec, raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if e, ok := rs.Energy(); !ok || e != -1.117 {
		t.Errorf("Energy() = %v, %v; want -1.117", e, ok)
	}
}

func TestToyHF_ParseGradient(t *testing.T) {
	adapter := NewToyHF("")
	spec := h2Spec(t, map[string]any{"basis": "sto-3g"}, calc.PropertyEnergy, calc.PropertyGradient)
	raw := &containerrt.RawOutput{
		ExitCode: 0,
		Stdout:   []byte("ENERGY=-1.117\nGRADIENT=0.0 0.0 -0.03 0.0 0.0 0.03\n"),
	}
	rs, err := adapter.Parse(spec, raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	grad, ok := rs.Gradient()
	if !ok || len(grad) != 6 || grad[5] != 0.03 {
		t.Errorf("Gradient() = %v, %v", grad, ok)
	}
}

func TestToyHF_ParseNotConverged(t *testing.T) {
	adapter := NewToyHF("")
	spec := h2Spec(t, map[string]any{"basis": "sto-3g"}, calc.PropertyEnergy)
	raw := &containerrt.RawOutput{
		ExitCode: 1,
		Stderr:   []byte("SCF NOT CONVERGED\n"),
	}
	_, err := adapter.Parse(spec, raw)
	var fail *EngineFailureError
	if !errors.As(err, &fail) {
		t.Fatalf("err = %v; want EngineFailureError", err)
	}
	if fail.Reason != "SCF NOT CONVERGED" {
		t.Errorf("Reason = %q; the engine's verbatim message must be preserved", fail.Reason)
	}
	if adapter.Transient(err) {
		t.Error("a non-converged SCF must not be classified transient")
	}
}

func TestToyHF_TempFailTransient(t *testing.T) {
	adapter := NewToyHF("")
	spec := h2Spec(t, map[string]any{"basis": "sto-3g"}, calc.PropertyEnergy)
	raw := &containerrt.RawOutput{ExitCode: 75}
	_, err := adapter.Parse(spec, raw)
	if err == nil {
		t.Fatal("expected an error for exit 75")
	}
	if !adapter.Transient(err) {
		t.Errorf("exit 75 must be classified transient, got %v", err)
	}
}

func TestToyHF_ParseMissingProperty(t *testing.T) {
	adapter := NewToyHF("")
	spec := h2Spec(t, map[string]any{"basis": "sto-3g"}, calc.PropertyEnergy, calc.PropertyGradient)
	raw := &containerrt.RawOutput{ExitCode: 0, Stdout: []byte("ENERGY=-1.117\n")}
	_, err := adapter.Parse(spec, raw)
	var malformed *MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Errorf("err = %v; want MalformedOutputError for the missing gradient", err)
	}
}

func TestToyHF_ParseWrongGradientLength(t *testing.T) {
	adapter := NewToyHF("")
	spec := h2Spec(t, map[string]any{"basis": "sto-3g"}, calc.PropertyGradient)
	raw := &containerrt.RawOutput{ExitCode: 0, Stdout: []byte("GRADIENT=0.0 0.0 0.0\n")}
	_, err := adapter.Parse(spec, raw)
	var malformed *MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Errorf("err = %v; want MalformedOutputError for a truncated gradient", err)
	}
}
