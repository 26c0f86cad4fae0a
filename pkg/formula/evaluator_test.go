package formula

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func mapResolver(values map[string]any) Resolver {
	return ResolverFunc(func(key, _ string) (any, bool) {
		v, ok := values[key]
		return v, ok
	})
}

const bmiFormula = "weight / ((height / 100) ^ 2)"

func TestEvaluateBodyMassIndex(t *testing.T) {
	t.Parallel()

	eval := New()
	result := eval.Evaluate(bmiFormula, mapResolver(map[string]any{"height": 175, "weight": 70}), "bmi")
	if !result.Available {
		t.Fatalf("expected result, got %+v", result)
	}
	if math.Abs(result.Value-22.857) > 0.001 {
		t.Fatalf("unexpected BMI %v", result.Value)
	}
	if got := result.Classification; got != Normal {
		t.Fatalf("expected Normal, got %s", got)
	}
	if got := result.Display(1); got != "22.9" {
		t.Fatalf("expected display 22.9, got %s", got)
	}
}

func TestEvaluateSanityGate(t *testing.T) {
	t.Parallel()

	eval := New()
	cases := map[string]map[string]any{
		"tall":  {"height": 500, "weight": 70},
		"light": {"height": 170, "weight": 1},
		"heavy": {"height": 170, "weight": 301},
	}
	for name, values := range cases {
		result := eval.Evaluate(bmiFormula, mapResolver(values), "bmi")
		if result.Available || result.Reason != ReasonImplausible {
			t.Fatalf("%s: expected implausible, got %+v", name, result)
		}
		if result.Display(1) != Placeholder {
			t.Fatalf("%s: expected placeholder display", name)
		}
	}
}

func TestEvaluateHeightInFeet(t *testing.T) {
	t.Parallel()

	result := New().Evaluate(bmiFormula, mapResolver(map[string]any{"height": 5.9, "weight": 70}), "bmi")
	if !result.Available {
		t.Fatalf("expected feet heuristic to apply, got %+v", result)
	}
	want := 70 / math.Pow(5.9*30.48/100, 2)
	if math.Abs(result.Value-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, result.Value)
	}
}

func TestEvaluateMissingDependency(t *testing.T) {
	t.Parallel()

	eval := New()
	result := eval.Evaluate(bmiFormula, mapResolver(map[string]any{"height": 175}), "bmi")
	if result.Available {
		t.Fatalf("expected unavailable result")
	}
	if diff := cmp.Diff([]string{"weight"}, result.Missing); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}

	result = eval.Evaluate(bmiFormula, mapResolver(map[string]any{"height": 175, "weight": "heavy"}), "bmi")
	if result.Available || result.Reason != ReasonMissing {
		t.Fatalf("expected non-numeric dependency to be missing, got %+v", result)
	}

	result = eval.Evaluate(bmiFormula, nil, "bmi")
	if result.Available {
		t.Fatalf("expected unavailable without resolver")
	}
}

func TestEvaluateCompleteDependenciesAreFinite(t *testing.T) {
	t.Parallel()

	eval := New()
	formulas := []string{
		"a + b * c",
		"(a - b) / c",
		"Math.pow(a, 2) + sqrt(c)",
		"max(a, b, c) - min(a, b)",
		"a ^ 2 ^ 0.5",
	}
	values := map[string]any{"a": 3, "b": "4.5", "c": 9.0}
	for _, f := range formulas {
		result := eval.Evaluate(f, mapResolver(values), "x")
		if !result.Available || math.IsNaN(result.Value) || math.IsInf(result.Value, 0) {
			t.Fatalf("%q: expected finite result, got %+v", f, result)
		}
	}
}

func TestEvaluateDivisionByZero(t *testing.T) {
	t.Parallel()

	result := New().Evaluate("a / b", mapResolver(map[string]any{"a": 1, "b": 0}), "x")
	if result.Available || result.Reason != ReasonMath {
		t.Fatalf("expected non-finite result to be unavailable, got %+v", result)
	}
}

func TestEvaluateRejectsDisallowedCharacters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	eval := New(WithLogger(zerolog.New(&buf)))

	formulas := []string{
		`a + "1"`,
		"a; b",
		"a + b[0]",
		"a & b",
	}
	for _, f := range formulas {
		result := eval.Evaluate(f, mapResolver(map[string]any{"a": 1, "b": 2}), "x")
		if result.Available || result.Reason != ReasonMalformed {
			t.Fatalf("%q: expected malformed, got %+v", f, result)
		}
	}
	if !strings.Contains(buf.String(), "formula rejected") {
		t.Fatalf("expected rejected formula to be logged, got %q", buf.String())
	}
}

func TestEvaluateUsesCurrentItem(t *testing.T) {
	t.Parallel()

	var seenItem string
	resolver := ResolverFunc(func(key, item string) (any, bool) {
		seenItem = item
		return 2, true
	})
	result := New().Evaluate("x * 2", resolver, "vitals_bmi")
	if !result.Available || result.Value != 4 {
		t.Fatalf("unexpected result %+v", result)
	}
	if seenItem != "vitals_bmi" {
		t.Fatalf("expected current item to be forwarded, got %q", seenItem)
	}
}

func TestReferences(t *testing.T) {
	t.Parallel()

	got := References("Math.pow(height, 2) + weight * height / PI + 3")
	if diff := cmp.Diff([]string{"height", "weight"}, got); diff != "" {
		t.Fatalf("references mismatch (-want +got):\n%s", diff)
	}
	if !IsBodyMassIndex(got) {
		t.Fatalf("expected BMI detection")
	}
	if IsBodyMassIndex([]string{"height_cm"}) {
		t.Fatalf("height alone is not a BMI formula")
	}
}

func TestClassifyBMI(t *testing.T) {
	t.Parallel()

	cases := map[float64]string{
		16:   Underweight,
		18.5: Normal,
		24.9: Normal,
		25:   Overweight,
		29.9: Overweight,
		30:   Obese,
		41:   Obese,
	}
	for value, want := range cases {
		if got := ClassifyBMI(value); got != want {
			t.Fatalf("ClassifyBMI(%v) = %s, want %s", value, got, want)
		}
	}
}

func TestCompute(t *testing.T) {
	t.Parallel()

	cases := map[string]float64{
		"1 + 2 * 3":     7,
		"(1 + 2) * 3":   9,
		"-2 ^ 2":        -4,
		"2 ^ -1":        0.5,
		"2 ** 3":        8,
		"10 / 4":        2.5,
		"round(2.6)":    3,
		"Math.abs(-3)":  3,
		"+5 - -5":       10,
		"2 ^ 3 ^ 2":     512,
		"max(1, 7, 3)":  7,
		"floor(PI * 2)": 6,
	}
	for expr, want := range cases {
		got, err := Compute(expr)
		if err != nil {
			t.Fatalf("Compute(%q) error: %v", expr, err)
		}
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("Compute(%q) = %v, want %v", expr, got, want)
		}
	}

	for _, bad := range []string{"", "1 +", "(1", "sqrt 4", "pow(1)", "1..2", "alert(1)", "max()"} {
		if _, err := Compute(bad); err == nil {
			t.Fatalf("Compute(%q) expected error", bad)
		}
	}
}
