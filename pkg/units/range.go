package units

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Range is a numeric constraint expressed in a single unit. Nil bounds mean
// "no constraint" and must never be read as zero.
type Range struct {
	Min *float64
	Max *float64
}

// Bounded reports whether at least one bound is set.
func (r Range) Bounded() bool {
	return r.Min != nil || r.Max != nil
}

// Below reports whether value is under the lower bound.
func (r Range) Below(value float64) bool {
	return r.Min != nil && value < *r.Min
}

// Above reports whether value is over the upper bound.
func (r Range) Above(value float64) bool {
	return r.Max != nil && value > *r.Max
}

// Contains reports whether value satisfies both bounds.
func (r Range) Contains(value float64) bool {
	return !r.Below(value) && !r.Above(value)
}

// Bounds describes a field's own range in its canonical unit.
type Bounds struct {
	Key           string
	CanonicalUnit string
	Min           *float64
	Max           *float64
}

// Override replaces a field's declared range for one specialty. Unit is the
// unit Min/Max are expressed in.
type Override struct {
	Unit string   `yaml:"unit" json:"unit"`
	Min  *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max  *float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// Table maps field keys to overrides.
type Table map[string]Override

// Overrides groups override tables by specialty.
type Overrides map[string]Table

// For returns the table registered for specialty, or nil.
func (o Overrides) For(specialty string) Table {
	if len(o) == 0 {
		return nil
	}
	key := strings.ToLower(strings.TrimSpace(specialty))
	if key == "" {
		return nil
	}
	return o[key]
}

type overridesFile struct {
	Specialties map[string]map[string]Override `yaml:"specialties"`
}

// LoadOverrides parses a YAML document of the form
//
//	specialties:
//	  pediatrics:
//	    weight: {unit: kg, min: 0.5, max: 150}
func LoadOverrides(r io.Reader) (Overrides, error) {
	var doc overridesFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return Overrides{}, nil
		}
		return nil, fmt.Errorf("units: decode overrides: %w", err)
	}

	out := make(Overrides, len(doc.Specialties))
	for specialty, fields := range doc.Specialties {
		name := strings.ToLower(strings.TrimSpace(specialty))
		if name == "" {
			return nil, fmt.Errorf("units: overrides define an empty specialty name")
		}
		table := make(Table, len(fields))
		for key, override := range fields {
			if override.Min != nil && override.Max != nil && *override.Min > *override.Max {
				return nil, fmt.Errorf("units: override %s.%s has min greater than max", name, key)
			}
			table[strings.TrimSpace(key)] = override
		}
		out[name] = table
	}
	return out, nil
}

// ResolveRange picks the authoritative range for a field (specialty override
// first, then the field's own bounds) and converts it into displayUnit. An
// empty displayUnit keeps the source unit. When the source unit cannot be
// converted into displayUnit the bounds are returned unconverted.
func ResolveRange(field Bounds, overrides Table, displayUnit string) Range {
	unit := field.CanonicalUnit
	minimum, maximum := field.Min, field.Max

	if override, ok := overrides[field.Key]; ok && (override.Min != nil || override.Max != nil) {
		minimum, maximum = override.Min, override.Max
		if strings.TrimSpace(override.Unit) != "" {
			unit = override.Unit
		}
	}

	if minimum == nil && maximum == nil {
		return Range{}
	}
	if strings.TrimSpace(displayUnit) == "" || Same(unit, displayUnit) {
		return Range{Min: copyFloat(minimum), Max: copyFloat(maximum)}
	}
	return Range{
		Min: convertBound(minimum, unit, displayUnit),
		Max: convertBound(maximum, unit, displayUnit),
	}
}

func convertBound(bound *float64, from, to string) *float64 {
	if bound == nil {
		return nil
	}
	converted, err := Convert(*bound, from, to)
	if err != nil {
		return copyFloat(bound)
	}
	return &converted
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
