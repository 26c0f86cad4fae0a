package schema

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-consultform/pkg/units"
)

// FieldKind is the closed set of input kinds a template may declare.
type FieldKind string

const (
	KindNumber       FieldKind = "number"
	KindText         FieldKind = "text"
	KindSingleSelect FieldKind = "single_select"
	KindMultiSelect  FieldKind = "multi_select"
	KindCalculated   FieldKind = "calculated"
)

// Kinds lists every supported FieldKind in declaration order.
func Kinds() []FieldKind {
	return []FieldKind{KindNumber, KindText, KindSingleSelect, KindMultiSelect, KindCalculated}
}

var kindAliases = map[string]FieldKind{
	"number":        KindNumber,
	"numeric":       KindNumber,
	"integer":       KindNumber,
	"text":          KindText,
	"string":        KindText,
	"textarea":      KindText,
	"single_select": KindSingleSelect,
	"select":        KindSingleSelect,
	"radio":         KindSingleSelect,
	"multi_select":  KindMultiSelect,
	"multiselect":   KindMultiSelect,
	"checkbox":      KindMultiSelect,
	"calculated":    KindCalculated,
	"computed":      KindCalculated,
}

// ParseFieldKind resolves a template type string. Unknown kinds are an error
// rather than a silent fallback.
func ParseFieldKind(raw string) (FieldKind, error) {
	kind, ok := kindAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("schema: unknown field type %q", raw)
	}
	return kind, nil
}

// Option is one choice of a select field.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Pattern carries a regex rule and the message shown when it fails.
type Pattern struct {
	Expr    string `json:"pattern,omitempty"`
	Message string `json:"message,omitempty"`
}

// Field describes one input inside an item.
type Field struct {
	Key            string    `json:"key"`
	Label          string    `json:"label,omitempty"`
	Kind           FieldKind `json:"type"`
	Required       bool      `json:"required,omitempty"`
	Unit           string    `json:"unit,omitempty"`
	CanonicalUnit  string    `json:"canonical_unit,omitempty"`
	SupportedUnits []string  `json:"supported_units,omitempty"`
	Min            *float64  `json:"min,omitempty"`
	Max            *float64  `json:"max,omitempty"`
	Step           float64   `json:"step,omitempty"`
	MinLength      *int      `json:"minLength,omitempty"`
	MaxLength      *int      `json:"maxLength,omitempty"`
	Options        []Option  `json:"options,omitempty"`
	Formula        string    `json:"formula,omitempty"`
	PairWith       string    `json:"pair_with,omitempty"`
	UIGroup        string    `json:"ui_group,omitempty"`
	// TabOrder is kept as sent so templates round-trip. Navigation never
	// reads it; keyboard order is derived from the grouped layout.
	TabOrder    *int    `json:"tab_order,omitempty"`
	Multiline   bool    `json:"multiline,omitempty"`
	Placeholder string  `json:"placeholder,omitempty"`
	Validation  Pattern `json:"validation,omitempty"`
}

// StorageUnit is the unit values are stored in: the canonical unit when one
// is declared, else the display unit.
func (f Field) StorageUnit() string {
	if strings.TrimSpace(f.CanonicalUnit) != "" {
		return f.CanonicalUnit
	}
	return f.Unit
}

// DefaultDisplayUnit is the unit shown before the user toggles anything.
func (f Field) DefaultDisplayUnit() string {
	if strings.TrimSpace(f.Unit) != "" {
		return f.Unit
	}
	return f.CanonicalUnit
}

// Converts reports whether the field participates in unit conversion.
func (f Field) Converts() bool {
	if f.Kind != KindNumber && f.Kind != KindCalculated {
		return false
	}
	if len(f.SupportedUnits) > 1 {
		return true
	}
	return f.CanonicalUnit != "" && f.Unit != "" && !units.Same(f.CanonicalUnit, f.Unit)
}

// SupportsUnit reports whether unit is a valid display unit for the field.
func (f Field) SupportsUnit(unit string) bool {
	if units.Same(unit, f.StorageUnit()) || units.Same(unit, f.Unit) {
		return true
	}
	for _, candidate := range f.SupportedUnits {
		if units.Same(candidate, unit) {
			return true
		}
	}
	return false
}

// Bounds exposes the declared range in the storage unit.
func (f Field) Bounds() units.Bounds {
	return units.Bounds{
		Key:           f.Key,
		CanonicalUnit: f.StorageUnit(),
		Min:           f.Min,
		Max:           f.Max,
	}
}

// HasOption reports whether value is one of the declared option values.
func (f Field) HasOption(value string) bool {
	for _, opt := range f.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// Item is a clinical line item (for example "blood_pressure") holding one
// or more fields.
type Item struct {
	Code   string  `json:"code"`
	Label  string  `json:"label,omitempty"`
	Fields []Field `json:"fields"`
}

// Field returns the field declared under key.
func (it Item) Field(key string) (Field, bool) {
	for _, field := range it.Fields {
		if field.Key == key {
			return field, true
		}
	}
	return Field{}, false
}

// Section codes the engine treats specially.
const (
	SectionVitals         = "vitals"
	SectionChiefComplaint = "chief_complaint"
)

// UI group tags understood by the layout grouper.
const (
	GroupBody  = "body"
	GroupBP    = "bp"
	GroupBasic = "basic"
	GroupRow   = "row"
)

// Section groups the items rendered for one consultation section.
type Section struct {
	Code  string `json:"section"`
	Items []Item `json:"items"`
}

// Item returns the item identified by code.
func (s Section) Item(code string) (Item, bool) {
	for _, item := range s.Items {
		if item.Code == code {
			return item, true
		}
	}
	return Item{}, false
}

// Field resolves an item/field pair.
func (s Section) Field(itemCode, key string) (Field, bool) {
	item, ok := s.Item(itemCode)
	if !ok {
		return Field{}, false
	}
	return item.Field(key)
}

// Relaxed reports whether validation for the section is advisory only.
func (s Section) Relaxed() bool {
	return s.Code == SectionVitals
}

// ItemCodes returns item codes in declaration order.
func (s Section) ItemCodes() []string {
	out := make([]string, 0, len(s.Items))
	for _, item := range s.Items {
		out = append(out, item.Code)
	}
	return out
}

// FieldKeys returns the set of field keys declared anywhere in the section.
func (s Section) FieldKeys() map[string]struct{} {
	keys := make(map[string]struct{})
	for _, item := range s.Items {
		for _, field := range item.Fields {
			keys[field.Key] = struct{}{}
		}
	}
	return keys
}

// Template is the decoded consultation template. It is treated as immutable
// once decoded and is shared across sessions.
type Template struct {
	Sections []Section `json:"sections"`
}

// Section returns the section registered under code.
func (t *Template) Section(code string) (Section, bool) {
	if t == nil {
		return Section{}, false
	}
	for _, section := range t.Sections {
		if section.Code == code {
			return section, true
		}
	}
	return Section{}, false
}

// SectionCodes lists the section codes in template order.
func (t *Template) SectionCodes() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.Sections))
	for _, section := range t.Sections {
		out = append(out, section.Code)
	}
	return out
}
