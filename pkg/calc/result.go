package calc

import "fmt"

// ResultSet is the uniform, immutable output of one successful calculation:
// a mapping from property to typed value. Values are copied in and out so a
// ResultSet can be shared across goroutines without synchronization.
type ResultSet struct {
	values map[Property]any
}

// NewResultSet builds a ResultSet from parsed engine output. Value types are
// checked against the property they claim to carry.
func NewResultSet(values map[Property]any) (*ResultSet, error) {
	cp := make(map[Property]any, len(values))
	for p, v := range values {
		switch p {
		case PropertyEnergy:
			if _, ok := v.(float64); !ok {
				return nil, fmt.Errorf("property %q: want float64, got %T", p, v)
			}
			cp[p] = v
		case PropertyGradient, PropertyDipole, PropertyCharges, PropertyOrbitals:
			vec, ok := v.([]float64)
			if !ok {
				return nil, fmt.Errorf("property %q: want []float64, got %T", p, v)
			}
			cp[p] = append([]float64(nil), vec...)
		case PropertyStructure:
			st, ok := v.(*Structure)
			if !ok {
				return nil, fmt.Errorf("property %q: want *Structure, got %T", p, v)
			}
			cp[p] = st.Clone()
		default:
			return nil, fmt.Errorf("unknown property %q", p)
		}
	}
	return &ResultSet{values: cp}, nil
}

// Has reports whether the property is present.
func (r *ResultSet) Has(p Property) bool {
	_, ok := r.values[p]
	return ok
}

// Properties returns the properties present, in unspecified order.
func (r *ResultSet) Properties() []Property {
	out := make([]Property, 0, len(r.values))
	for p := range r.values {
		out = append(out, p)
	}
	return out
}

// Energy returns the scalar energy, if present.
func (r *ResultSet) Energy() (float64, bool) {
	v, ok := r.values[PropertyEnergy]
	if !ok {
		return 0, false
	}
	return v.(float64), true
}

// Vector returns a copy of a vector-valued property (gradient, dipole,
// charges, orbitals), if present.
func (r *ResultSet) Vector(p Property) ([]float64, bool) {
	v, ok := r.values[p]
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float64)
	if !ok {
		return nil, false
	}
	return append([]float64(nil), vec...), true
}

// Gradient returns a copy of the energy gradient, if present.
func (r *ResultSet) Gradient() ([]float64, bool) {
	return r.Vector(PropertyGradient)
}

// Structure returns a copy of the updated structure, if present.
func (r *ResultSet) Structure() (*Structure, bool) {
	v, ok := r.values[PropertyStructure]
	if !ok {
		return nil, false
	}
	return v.(*Structure).Clone(), true
}
