// Package validation applies per-field rules to stored form values and
// checks template documents before they are used.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/goliatone/go-consultform/internal/coerce"
	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/units"
)

// Outcome is the result of checking one field. Error blocks submission;
// Notice is informational only.
type Outcome struct {
	Error  string `json:"error,omitempty"`
	Notice string `json:"notice,omitempty"`
}

// OK reports whether the outcome carries no blocking error.
func (o Outcome) OK() bool {
	return o.Error == ""
}

// Options carries the context a field is checked in.
type Options struct {
	// Range is the resolved range expressed in DisplayUnit.
	Range units.Range
	// DisplayUnit is the unit the user currently sees. Empty means the
	// field's storage unit.
	DisplayUnit string
	// EnforceRequired is false for items the user has not engaged with.
	EnforceRequired bool
	// Relaxed turns every failure into a notice and skips required checks.
	Relaxed bool
}

// Field checks value, stored in the field's canonical unit, against the
// field's rules.
func Field(field schema.Field, value any, opts Options) Outcome {
	if coerce.Empty(value) {
		if field.Required && opts.EnforceRequired && !opts.Relaxed {
			return Outcome{Error: requiredMessage(field.Kind)}
		}
		return Outcome{}
	}

	var out Outcome
	switch field.Kind {
	case schema.KindNumber:
		out = checkNumber(field, value, opts)
	case schema.KindText:
		out = checkText(field, value)
	case schema.KindSingleSelect:
		out = checkSingle(field, value)
	case schema.KindMultiSelect:
		out = checkMulti(field, value)
	case schema.KindCalculated:
		return Outcome{}
	}

	if opts.Relaxed && out.Error != "" {
		out = Outcome{Notice: out.Error}
	}
	return out
}

func requiredMessage(kind schema.FieldKind) string {
	switch kind {
	case schema.KindSingleSelect:
		return "select an option"
	case schema.KindMultiSelect:
		return "select at least one option"
	default:
		return "is required"
	}
}

func checkNumber(field schema.Field, value any, opts Options) Outcome {
	n, ok := coerce.Number(value)
	if !ok {
		return Outcome{Error: "must be a number"}
	}

	unit := opts.DisplayUnit
	if unit == "" {
		unit = field.StorageUnit()
	}
	if shown, err := units.Convert(n, field.StorageUnit(), unit); err == nil {
		n = shown
	}

	rng := opts.Range
	if rng.Contains(n) {
		return Outcome{}
	}
	if opts.Relaxed {
		return Outcome{Notice: unusual(rng, unit)}
	}
	if rng.Below(n) {
		return Outcome{Error: "must be at least " + units.FormatMin(*rng.Min)}
	}
	return Outcome{Error: "must be at most " + units.FormatMax(*rng.Max)}
}

func unusual(rng units.Range, unit string) string {
	suffix := ""
	if unit != "" {
		suffix = " " + unit
	}
	switch {
	case rng.Min != nil && rng.Max != nil:
		return fmt.Sprintf("Unusual value (expected %s–%s%s)", units.FormatMin(*rng.Min), units.FormatMax(*rng.Max), suffix)
	case rng.Min != nil:
		return fmt.Sprintf("Unusual value (expected at least %s%s)", units.FormatMin(*rng.Min), suffix)
	default:
		return fmt.Sprintf("Unusual value (expected at most %s%s)", units.FormatMax(*rng.Max), suffix)
	}
}

func checkText(field schema.Field, value any) Outcome {
	text := strings.TrimSpace(coerce.String(value))
	length := utf8.RuneCountInString(text)

	if field.MinLength != nil && length < *field.MinLength {
		return Outcome{Error: fmt.Sprintf("must be at least %d characters", *field.MinLength)}
	}
	if field.MaxLength != nil && length > *field.MaxLength {
		return Outcome{Error: fmt.Sprintf("must be at most %d characters", *field.MaxLength)}
	}

	if field.Validation.Expr != "" {
		re, err := compile(field.Validation.Expr)
		if err == nil && !re.MatchString(text) {
			msg := field.Validation.Message
			if msg == "" {
				msg = "has an invalid format"
			}
			return Outcome{Error: msg}
		}
	}
	return Outcome{}
}

func checkSingle(field schema.Field, value any) Outcome {
	if len(field.Options) == 0 {
		return Outcome{}
	}
	if choice := coerce.String(value); !field.HasOption(choice) {
		return Outcome{Error: fmt.Sprintf("%q is not a valid option", choice)}
	}
	return Outcome{}
}

func checkMulti(field schema.Field, value any) Outcome {
	if len(field.Options) == 0 {
		return Outcome{}
	}
	for _, choice := range coerce.Strings(value) {
		if !field.HasOption(choice) {
			return Outcome{Error: fmt.Sprintf("%q is not a valid option", choice)}
		}
	}
	return Outcome{}
}

var patterns sync.Map

func compile(expr string) (*regexp.Regexp, error) {
	if cached, ok := patterns.Load(expr); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patterns.Store(expr, re)
	return re, nil
}
