package schema

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/goliatone/go-consultform/pkg/formula"
	"github.com/goliatone/go-consultform/pkg/units"
)

// ErrInvalidTemplate wraps every invariant violation reported by Validate.
var ErrInvalidTemplate = errors.New("schema: invalid template")

// Validate checks the structural invariants of a decoded template: unique
// section/item/field identifiers, calculated fields with resolvable formulas,
// and canonical units drawn from the supported unit list.
func (t *Template) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: template is nil", ErrInvalidTemplate)
	}

	var problems []error
	sections := make(map[string]struct{}, len(t.Sections))
	for _, section := range t.Sections {
		if _, dup := sections[section.Code]; dup {
			problems = append(problems, fmt.Errorf("duplicate section %q", section.Code))
		}
		sections[section.Code] = struct{}{}
		problems = append(problems, validateSection(section)...)
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidTemplate, errors.Join(problems...))
}

func validateSection(section Section) []error {
	var problems []error
	keys := section.FieldKeys()
	items := make(map[string]struct{}, len(section.Items))

	for _, item := range section.Items {
		if _, dup := items[item.Code]; dup {
			problems = append(problems, fmt.Errorf("%s: duplicate item %q", section.Code, item.Code))
		}
		items[item.Code] = struct{}{}

		fields := make(map[string]struct{}, len(item.Fields))
		for _, field := range item.Fields {
			path := section.Code + "." + item.Code + "." + field.Key
			if _, dup := fields[field.Key]; dup {
				problems = append(problems, fmt.Errorf("%s: duplicate field key", path))
			}
			fields[field.Key] = struct{}{}
			problems = append(problems, validateField(path, field, keys)...)
		}
	}
	return problems
}

func validateField(path string, field Field, sectionKeys map[string]struct{}) []error {
	var problems []error

	switch field.Kind {
	case KindCalculated:
		if field.Formula == "" {
			problems = append(problems, fmt.Errorf("%s: calculated field requires a formula", path))
			break
		}
		for _, ref := range formula.References(field.Formula) {
			if ref == field.Key {
				problems = append(problems, fmt.Errorf("%s: formula references itself", path))
				continue
			}
			if _, ok := sectionKeys[ref]; !ok {
				problems = append(problems, fmt.Errorf("%s: formula references unknown field %q", path, ref))
			}
		}
	case KindSingleSelect, KindMultiSelect:
		if len(field.Options) == 0 {
			problems = append(problems, fmt.Errorf("%s: select field requires options", path))
		}
	case KindNumber, KindText:
	default:
		problems = append(problems, fmt.Errorf("%s: unsupported field kind %q", path, field.Kind))
	}

	if len(field.SupportedUnits) > 1 {
		found := false
		for _, unit := range field.SupportedUnits {
			if units.Same(unit, field.CanonicalUnit) {
				found = true
				break
			}
		}
		if !found {
			problems = append(problems, fmt.Errorf("%s: canonical unit %q is not one of %v", path, field.CanonicalUnit, field.SupportedUnits))
		}
	}

	if field.Validation.Expr != "" {
		if _, err := regexp.Compile(field.Validation.Expr); err != nil {
			problems = append(problems, fmt.Errorf("%s: invalid validation pattern: %w", path, err))
		}
	}
	if field.MinLength != nil && field.MaxLength != nil && *field.MinLength > *field.MaxLength {
		problems = append(problems, fmt.Errorf("%s: minLength exceeds maxLength", path))
	}
	return problems
}
