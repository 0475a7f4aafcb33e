package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/maxbates/molecular-design-toolkit/pkg/calc"
)

// specFile is the on-disk JSON shape accepted by `mdtk run`.
type specFile struct {
	Method     string         `json:"method"`
	Params     map[string]any `json:"params"`
	Properties []string       `json:"properties"`
	Structure  structureFile  `json:"structure"`
}

type structureFile struct {
	Elements []string  `json:"elements"`
	Coords   []float64 `json:"coords"`
}

func loadSpec(path string) (*calc.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}
	var sf specFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse spec file: %w", err)
	}
	structure, err := calc.NewStructure(sf.Structure.Elements, sf.Structure.Coords, nil)
	if err != nil {
		return nil, err
	}
	props := make([]calc.Property, len(sf.Properties))
	for i, p := range sf.Properties {
		props[i] = calc.Property(p)
	}
	return calc.NewSpec(structure, sf.Method, sf.Params, props)
}

// loadXYZ reads a minimal xyz file: atom count, comment, then element x y z
// lines. Richer format handling belongs to the structure layer, not here.
func loadXYZ(path string) (*calc.Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open structure file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	natoms, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, fmt.Errorf("%s: bad atom count: %w", path, err)
	}
	scanner.Scan() // comment line

	elements := make([]string, 0, natoms)
	coords := make([]float64, 0, 3*natoms)
	for scanner.Scan() && len(elements) < natoms {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		elements = append(elements, fields[0])
		for _, fs := range fields[1:4] {
			v, err := strconv.ParseFloat(fs, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: bad coordinate %q: %w", path, fs, err)
			}
			coords = append(coords, v)
		}
	}
	if len(elements) != natoms {
		return nil, fmt.Errorf("%s: expected %d atoms, found %d", path, natoms, len(elements))
	}
	return calc.NewStructure(elements, coords, nil)
}

func parseParams(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("parse --params: %w", err)
	}
	return params, nil
}
