// Package calc defines the data model for computation requests and results:
// structure snapshots, calculation specs, fingerprints and result sets.
package calc

import (
	"fmt"
	"sort"
)

// Property identifies a physical quantity an engine can be asked to compute.
type Property string

const (
	PropertyEnergy    Property = "energy"
	PropertyGradient  Property = "gradient"
	PropertyStructure Property = "structure"
	PropertyDipole    Property = "dipole"
	PropertyOrbitals  Property = "orbitals"
	PropertyCharges   Property = "charges"
)

// KnownProperties lists every property the core understands.
// Adapters may support a subset.
var KnownProperties = []Property{
	PropertyEnergy,
	PropertyGradient,
	PropertyStructure,
	PropertyDipole,
	PropertyOrbitals,
	PropertyCharges,
}

// Structure is a snapshot of a molecular geometry: element symbols and a flat
// xyz coordinate slice in Ångström (len(Coords) == 3*len(Elements)).
// Connectivity is carried as an opaque caller-owned blob; the core only
// includes it in fingerprints and passes it through to adapters.
type Structure struct {
	Elements     []string
	Coords       []float64
	Connectivity []byte
}

// NewStructure validates and deep-copies the given geometry.
func NewStructure(elements []string, coords []float64, connectivity []byte) (*Structure, error) {
	if len(elements) == 0 {
		return nil, fmt.Errorf("structure has no atoms")
	}
	if len(coords) != 3*len(elements) {
		return nil, fmt.Errorf("structure has %d atoms but %d coordinates (want %d)",
			len(elements), len(coords), 3*len(elements))
	}
	s := &Structure{
		Elements: append([]string(nil), elements...),
		Coords:   append([]float64(nil), coords...),
	}
	if len(connectivity) > 0 {
		s.Connectivity = append([]byte(nil), connectivity...)
	}
	return s, nil
}

// NumAtoms returns the atom count.
func (s *Structure) NumAtoms() int { return len(s.Elements) }

// Clone returns an independent deep copy.
func (s *Structure) Clone() *Structure {
	c := &Structure{
		Elements: append([]string(nil), s.Elements...),
		Coords:   append([]float64(nil), s.Coords...),
	}
	if len(s.Connectivity) > 0 {
		c.Connectivity = append([]byte(nil), s.Connectivity...)
	}
	return c
}

// WithCoords returns a copy of s with replaced coordinates.
func (s *Structure) WithCoords(coords []float64) (*Structure, error) {
	if len(coords) != len(s.Coords) {
		return nil, fmt.Errorf("coordinate count changed: got %d, want %d", len(coords), len(s.Coords))
	}
	c := s.Clone()
	copy(c.Coords, coords)
	return c, nil
}

// Spec is an immutable description of what to compute: a structure snapshot,
// a method identifier, method parameters and the requested property set.
// Construct with NewSpec; accessors return copies so a Spec can be shared
// freely across goroutines.
type Spec struct {
	structure  *Structure
	method     string
	params     map[string]any
	properties []Property

	fingerprint string
}

// NewSpec builds a validated, immutable Spec. The structure is snapshotted
// (deep-copied) at construction time. Parameter values must be JSON-encodable;
// schema validation against the chosen method happens in the engine adapter.
func NewSpec(structure *Structure, method string, params map[string]any, properties []Property) (*Spec, error) {
	if structure == nil {
		return nil, fmt.Errorf("spec requires a structure")
	}
	if method == "" {
		return nil, fmt.Errorf("spec requires a method identifier")
	}
	known := make(map[Property]bool, len(KnownProperties))
	for _, p := range KnownProperties {
		known[p] = true
	}
	seen := make(map[Property]bool, len(properties))
	props := make([]Property, 0, len(properties))
	for _, p := range properties {
		if !known[p] {
			return nil, fmt.Errorf("unknown property %q", p)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i] < props[j] })

	cp := make(map[string]any, len(params))
	for k, v := range params {
		cp[k] = v
	}

	s := &Spec{
		structure:  structure.Clone(),
		method:     method,
		params:     cp,
		properties: props,
	}
	fp, err := fingerprint(s)
	if err != nil {
		return nil, fmt.Errorf("fingerprint spec: %w", err)
	}
	s.fingerprint = fp
	return s, nil
}

// Structure returns a copy of the structure snapshot.
func (s *Spec) Structure() *Structure { return s.structure.Clone() }

// Method returns the method identifier.
func (s *Spec) Method() string { return s.method }

// Params returns a copy of the method parameters.
func (s *Spec) Params() map[string]any {
	cp := make(map[string]any, len(s.params))
	for k, v := range s.params {
		cp[k] = v
	}
	return cp
}

// Properties returns the requested property set in canonical order.
func (s *Spec) Properties() []Property {
	return append([]Property(nil), s.properties...)
}

// Wants reports whether the given property was requested.
func (s *Spec) Wants(p Property) bool {
	for _, q := range s.properties {
		if q == p {
			return true
		}
	}
	return false
}

// WithProperties returns a copy of s with the requested property set replaced.
// Used by adapters to expand an empty request into their default set.
func (s *Spec) WithProperties(properties []Property) (*Spec, error) {
	return NewSpec(s.structure, s.method, s.params, properties)
}

// Fingerprint returns the deterministic content digest of this spec.
// Structurally identical specs fingerprint identically.
func (s *Spec) Fingerprint() string { return s.fingerprint }
