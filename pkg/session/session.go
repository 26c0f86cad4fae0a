package session

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-consultform/internal/coerce"
	"github.com/goliatone/go-consultform/pkg/formula"
	"github.com/goliatone/go-consultform/pkg/layout"
	"github.com/goliatone/go-consultform/pkg/prefs"
	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/units"
	"github.com/goliatone/go-consultform/pkg/validation"
	"github.com/goliatone/go-consultform/pkg/values"
)

// Session is one open form. It is driven by a single caller and is not safe
// for concurrent use.
type Session struct {
	ID string

	section      schema.Section
	required     map[string]struct{}
	optional     map[string]struct{}
	revealed     []string
	store        *values.Store
	displayUnits map[string]string
	touched      map[string]bool
	errors       validation.Errors
	notices      validation.Errors
	overrides    units.Table
	evaluator    *formula.Evaluator
	prefs        prefs.Store
	logger       zerolog.Logger
	closed       bool
}

// Section returns the section being edited.
func (s *Session) Section() schema.Section {
	return s.section
}

// Closed reports whether Cancel has been called.
func (s *Session) Closed() bool {
	return s.closed
}

func (s *Session) field(item, key string) (schema.Field, error) {
	if s.closed {
		return schema.Field{}, ErrSessionClosed
	}
	field, ok := s.section.Field(item, key)
	if !ok {
		return schema.Field{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, item, key)
	}
	return field, nil
}

// SetField stores a value entered in the field's current display unit.
// Numeric input is parsed and converted to the canonical unit; empty input
// is kept as an explicit clear.
func (s *Session) SetField(item, key string, value any) error {
	field, err := s.field(item, key)
	if err != nil {
		return err
	}
	if field.Kind == schema.KindCalculated {
		return fmt.Errorf("%w: %s.%s", ErrReadOnly, item, key)
	}

	stored, err := s.canonical(item, field, value)
	if err != nil {
		return err
	}
	engaged := s.enforced(item)
	s.store.Set(item, key, stored)
	s.touched[ref(item, key)] = true
	if s.enforced(item) == engaged {
		s.revalidate(item, field)
		return nil
	}

	// The item just started or stopped counting as used, so required
	// checks on its other fields change too.
	if it, ok := s.section.Item(item); ok {
		for _, f := range it.Fields {
			if f.Kind != schema.KindCalculated {
				s.revalidate(item, f)
			}
		}
	}
	return nil
}

func (s *Session) canonical(item string, field schema.Field, value any) (any, error) {
	if coerce.Empty(value) {
		return nil, nil
	}
	switch field.Kind {
	case schema.KindNumber:
		n, ok := coerce.Number(value)
		if !ok {
			// Kept as typed so validation can report it.
			return coerce.String(value), nil
		}
		from := s.DisplayUnit(item, field.Key)
		if field.Converts() && !units.Same(from, field.StorageUnit()) {
			converted, err := units.Convert(n, from, field.StorageUnit())
			if err != nil {
				return nil, fmt.Errorf("session: %s.%s: %w", item, field.Key, err)
			}
			n = converted
		}
		return n, nil
	case schema.KindMultiSelect:
		return coerce.Strings(value), nil
	default:
		return coerce.String(value), nil
	}
}

// SetDisplayUnit switches the unit a field is shown and entered in. The
// stored canonical value is unchanged.
func (s *Session) SetDisplayUnit(item, key, unit string) error {
	field, err := s.field(item, key)
	if err != nil {
		return err
	}
	if !field.SupportsUnit(unit) || !units.Convertible(unit, field.StorageUnit()) {
		return fmt.Errorf("%w: %s.%s cannot be shown in %q", ErrUnsupportedUnit, item, key, unit)
	}
	s.displayUnits[ref(item, key)] = units.Normalize(unit)
	if s.touched[ref(item, key)] {
		s.revalidate(item, field)
	}
	return nil
}

// DisplayUnit returns the unit currently selected for a field.
func (s *Session) DisplayUnit(item, key string) string {
	if unit, ok := s.displayUnits[ref(item, key)]; ok {
		return unit
	}
	field, ok := s.section.Field(item, key)
	if !ok {
		return ""
	}
	return field.DefaultDisplayUnit()
}

// Value returns the stored canonical value.
func (s *Session) Value(item, key string) (any, bool) {
	if s.closed {
		return nil, false
	}
	return s.store.Get(item, key)
}

// DisplayValue returns the stored value converted into the current display
// unit and rounded by the display policy.
func (s *Session) DisplayValue(item, key string) (any, bool) {
	v, ok := s.Value(item, key)
	if !ok || v == nil {
		return v, ok
	}
	field, found := s.section.Field(item, key)
	if !found || field.Kind != schema.KindNumber {
		return v, true
	}
	n, isNumber := coerce.Number(v)
	if !isNumber {
		return v, true
	}
	unit := s.DisplayUnit(item, key)
	if shown, err := units.Convert(n, field.StorageUnit(), unit); err == nil {
		n = shown
	}
	return units.RoundForDisplay(n, unit, field.Step), true
}

// Range returns the field's bounds in its current display unit, with the
// specialty override applied.
func (s *Session) Range(item, key string) units.Range {
	field, ok := s.section.Field(item, key)
	if !ok {
		return units.Range{}
	}
	return units.ResolveRange(field.Bounds(), s.overrides, s.DisplayUnit(item, key))
}

// Calculated evaluates a calculated field against the current values.
func (s *Session) Calculated(item, key string) (formula.Result, error) {
	field, err := s.field(item, key)
	if err != nil {
		return formula.Result{}, err
	}
	if field.Kind != schema.KindCalculated {
		return formula.Result{}, fmt.Errorf("%w: %s.%s is not calculated", ErrUnknownField, item, key)
	}
	return s.evaluator.Evaluate(field.Formula, s.store, item), nil
}

// Touched reports whether the user has written the field.
func (s *Session) Touched(item, key string) bool {
	return s.touched[ref(item, key)]
}

// Errors returns the current blocking messages keyed by "item.key".
func (s *Session) Errors() validation.Errors {
	return s.errors.Clone()
}

// Notices returns the current informational messages keyed by "item.key".
func (s *Session) Notices() validation.Errors {
	return s.notices.Clone()
}

func (s *Session) revalidate(item string, field schema.Field) {
	if s.errors == nil {
		s.errors = validation.Errors{}
		s.notices = validation.Errors{}
	}
	key := ref(item, field.Key)
	delete(s.errors, key)
	delete(s.notices, key)

	outcome := s.check(item, field, s.enforced(item))
	if outcome.Error != "" {
		s.errors[key] = outcome.Error
	}
	if outcome.Notice != "" {
		s.notices[key] = outcome.Notice
	}
}

func (s *Session) check(item string, field schema.Field, enforce bool) validation.Outcome {
	value, _ := s.store.Get(item, field.Key)
	return validation.Field(field, value, validation.Options{
		Range:           s.Range(item, field.Key),
		DisplayUnit:     s.DisplayUnit(item, field.Key),
		EnforceRequired: enforce,
		Relaxed:         s.section.Relaxed(),
	})
}

// enforced reports whether required checks apply to an item: always for the
// required tier, otherwise once the user has entered anything in it.
func (s *Session) enforced(item string) bool {
	if _, ok := s.required[item]; ok {
		return true
	}
	return s.store.Populated(item)
}

// Tiers returns the section's item partition.
func (s *Session) Tiers() layout.Tiers {
	return layout.Tier(s.section, s.required, s.optional)
}

func (s *Session) isHidden(item string) bool {
	if _, ok := s.section.Item(item); !ok {
		return false
	}
	_, r := s.required[item]
	_, o := s.optional[item]
	return !r && !o
}

// Revealed returns the hidden items opted in for display, in reveal order.
func (s *Session) Revealed() []string {
	return slices.Clone(s.revealed)
}

// RevealHidden opts a hidden item into the layout and remembers the choice
// for future sessions of the same section.
func (s *Session) RevealHidden(ctx context.Context, item string) error {
	if s.closed {
		return ErrSessionClosed
	}
	if _, ok := s.section.Item(item); !ok {
		return fmt.Errorf("%w: item %s", ErrUnknownField, item)
	}
	if !s.isHidden(item) || slices.Contains(s.revealed, item) {
		return nil
	}
	s.revealed = append(s.revealed, item)
	return s.persistRevealed(ctx)
}

// HideItem removes a previously revealed item from the layout.
func (s *Session) HideItem(ctx context.Context, item string) error {
	if s.closed {
		return ErrSessionClosed
	}
	idx := slices.Index(s.revealed, item)
	if idx < 0 {
		return nil
	}
	s.revealed = slices.Delete(s.revealed, idx, idx+1)
	return s.persistRevealed(ctx)
}

func (s *Session) persistRevealed(ctx context.Context) error {
	if err := s.prefs.Put(ctx, prefs.RevealedKey(s.section.Code), s.revealed); err != nil {
		s.logger.Warn().Err(err).Msg("persist revealed items failed")
		return fmt.Errorf("session: persist revealed items: %w", err)
	}
	return nil
}

// Layout groups the visible items for display.
func (s *Session) Layout() layout.Layout {
	return layout.Build(s.section, s.required, s.optional, s.revealed)
}

// TabOrder returns the keyboard navigation order matching Layout.
func (s *Session) TabOrder() []layout.FieldRef {
	return layout.TabOrder(s.Layout())
}

// Next returns the field focus moves to when Enter is pressed in current.
func (s *Session) Next(current layout.FieldRef) (layout.FieldRef, bool) {
	return layout.Next(s.TabOrder(), current)
}

// Cancel discards all session state. The caller re-supplies initial data to
// reopen the form.
func (s *Session) Cancel() {
	if s.closed {
		return
	}
	s.closed = true
	s.store = values.New()
	s.displayUnits = nil
	s.touched = nil
	s.errors = nil
	s.notices = nil
	s.revealed = nil
	s.logger.Debug().Msg("session cancelled")
}

func ref(item, key string) string {
	return item + "." + key
}
