package validation_test

import (
	"testing"

	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/units"
	"github.com/goliatone/go-consultform/pkg/validation"
)

func ptr(v float64) *float64 { return &v }
func iptr(v int) *int        { return &v }

func TestFieldRules(t *testing.T) {
	t.Parallel()

	systolic := schema.Field{Key: "systolic", Kind: schema.KindNumber, Required: true, Unit: "mmHg", Min: ptr(70), Max: ptr(200)}
	bpRange := units.Range{Min: ptr(70), Max: ptr(200)}
	complaint := schema.Field{Key: "complaint_text", Kind: schema.KindText, Required: true, MinLength: iptr(3), MaxLength: iptr(10)}
	allergen := schema.Field{Key: "allergen", Kind: schema.KindText, Validation: schema.Pattern{Expr: `^[A-Za-z ]+$`, Message: "Use letters only"}}
	severity := schema.Field{Key: "severity", Kind: schema.KindSingleSelect, Required: true, Options: []schema.Option{{Value: "mild"}, {Value: "severe"}}}
	foods := schema.Field{Key: "foods", Kind: schema.KindMultiSelect, Required: true, Options: []schema.Option{{Value: "egg"}, {Value: "milk"}}}
	bmi := schema.Field{Key: "bmi", Kind: schema.KindCalculated, Formula: "weight"}

	enforce := validation.Options{EnforceRequired: true}
	withRange := validation.Options{EnforceRequired: true, Range: bpRange}

	cases := []struct {
		name  string
		field schema.Field
		value any
		opts  validation.Options
		want  validation.Outcome
	}{
		{"number in range", systolic, 190.0, withRange, validation.Outcome{}},
		{"number above max", systolic, 250.0, withRange, validation.Outcome{Error: "must be at most 200"}},
		{"number below min", systolic, "60", withRange, validation.Outcome{Error: "must be at least 70"}},
		{"number not parseable", systolic, "abc", withRange, validation.Outcome{Error: "must be a number"}},
		{"number required", systolic, nil, withRange, validation.Outcome{Error: "is required"}},
		{"required not enforced", systolic, nil, validation.Options{}, validation.Outcome{}},
		{"text too short", complaint, "ab", enforce, validation.Outcome{Error: "must be at least 3 characters"}},
		{"text too long", complaint, "abcdefghijk", enforce, validation.Outcome{Error: "must be at most 10 characters"}},
		{"text blank is empty", complaint, "   ", enforce, validation.Outcome{Error: "is required"}},
		{"pattern message", allergen, "peni-cillin1", enforce, validation.Outcome{Error: "Use letters only"}},
		{"pattern ok", allergen, "Penicillin", enforce, validation.Outcome{}},
		{"single select required", severity, "", enforce, validation.Outcome{Error: "select an option"}},
		{"single select unknown", severity, "fatal", enforce, validation.Outcome{Error: `"fatal" is not a valid option`}},
		{"multi select required", foods, []string{}, enforce, validation.Outcome{Error: "select at least one option"}},
		{"multi select ok", foods, []any{"egg", "milk"}, enforce, validation.Outcome{}},
		{"calculated ignored", bmi, "anything", enforce, validation.Outcome{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := validation.Field(tc.field, tc.value, tc.opts)
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestFieldRelaxed(t *testing.T) {
	t.Parallel()

	pulse := schema.Field{Key: "pulse", Kind: schema.KindNumber, Required: true, Unit: "bpm", Min: ptr(30), Max: ptr(220)}
	opts := validation.Options{Relaxed: true, EnforceRequired: true, Range: units.Range{Min: ptr(30), Max: ptr(220)}}

	if got := validation.Field(pulse, nil, opts); got != (validation.Outcome{}) {
		t.Fatalf("relaxed fields skip required checks, got %+v", got)
	}

	got := validation.Field(pulse, 300.0, opts)
	if !got.OK() {
		t.Fatalf("relaxed outcome must not block, got %+v", got)
	}
	if got.Notice != "Unusual value (expected 30–220 bpm)" {
		t.Fatalf("unexpected notice %q", got.Notice)
	}

	notes := schema.Field{Key: "notes", Kind: schema.KindText, MaxLength: iptr(2)}
	if got := validation.Field(notes, "long", validation.Options{Relaxed: true}); !got.OK() || got.Notice == "" {
		t.Fatalf("expected non-blocking notice, got %+v", got)
	}
}

func TestFieldChecksInDisplayUnit(t *testing.T) {
	t.Parallel()

	height := schema.Field{
		Key: "height", Kind: schema.KindNumber, Unit: "cm", CanonicalUnit: "cm",
		SupportedUnits: []string{"cm", "ft"}, Min: ptr(50), Max: ptr(250),
	}
	rng := units.ResolveRange(height.Bounds(), nil, "ft")

	got := validation.Field(height, 260.0, validation.Options{Range: rng, DisplayUnit: "ft"})
	if got.Error != "must be at most 8.2" {
		t.Fatalf("expected bound in feet, got %+v", got)
	}
	if got := validation.Field(height, 179.8, validation.Options{Range: rng, DisplayUnit: "ft"}); !got.OK() {
		t.Fatalf("expected 179.8 cm to be within range, got %+v", got)
	}
}

func TestShownBoundsAreInRange(t *testing.T) {
	t.Parallel()

	weight := schema.Field{
		Key: "weight", Kind: schema.KindNumber, Unit: "kg", CanonicalUnit: "kg",
		SupportedUnits: []string{"kg", "lb"}, Min: ptr(2), Max: ptr(300),
	}
	rng := units.ResolveRange(weight.Bounds(), nil, "lb")

	over, err := units.Convert(700, "lb", "kg")
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	got := validation.Field(weight, over, validation.Options{Range: rng, DisplayUnit: "lb", Relaxed: true})
	if got.Notice != "Unusual value (expected 4.41–661.38 lb)" {
		t.Fatalf("unexpected notice %+v", got)
	}

	for _, shown := range []float64{4.41, 661.38} {
		stored, err := units.Convert(shown, "lb", "kg")
		if err != nil {
			t.Fatalf("Convert returned error: %v", err)
		}
		if got := validation.Field(weight, stored, validation.Options{Range: rng, DisplayUnit: "lb", Relaxed: true}); got != (validation.Outcome{}) {
			t.Fatalf("expected %v lb to be accepted, got %+v", shown, got)
		}
	}
}

func TestErrorsSet(t *testing.T) {
	t.Parallel()

	errs := validation.Errors{}
	errs.Add("b.y", "first")
	errs.Add("b.y", "second")
	errs.Add("a.x", "other")

	if errs["b.y"] != "first" {
		t.Fatalf("expected first message to win, got %q", errs["b.y"])
	}
	if keys := errs.Keys(); keys[0] != "a.x" || keys[1] != "b.y" {
		t.Fatalf("unexpected key order %v", keys)
	}
	clone := errs.Clone()
	clone.Add("c.z", "x")
	if errs.Has("c.z") {
		t.Fatalf("clone must be independent")
	}
}
