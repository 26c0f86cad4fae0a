package coerce

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNumber(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{42, 42, true},
		{int64(7), 7, true},
		{" 36.6 ", 36.6, true},
		{json.Number("120"), 120, true},
		{"", 0, false},
		{"abc", 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
		{nil, 0, false},
		{[]string{"1"}, 0, false},
	}
	for _, tc := range cases {
		got, ok := Number(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Number(%#v) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestStrings(t *testing.T) {
	t.Parallel()

	if diff := cmp.Diff([]string{"a", "b"}, Strings([]any{"a", " ", "b"})); diff != "" {
		t.Fatalf("Strings([]any) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"peanut", "latex"}, Strings("peanut, latex,")); diff != "" {
		t.Fatalf("Strings(csv) mismatch (-want +got):\n%s", diff)
	}
	if Strings([]string{}) != nil {
		t.Fatalf("expected nil for empty slice")
	}
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	for _, v := range []any{nil, "", "   ", []string{}, []any{}, map[string]any{}} {
		if !Empty(v) {
			t.Fatalf("expected %#v to be empty", v)
		}
	}
	for _, v := range []any{0, false, "x", []string{"a"}} {
		if Empty(v) {
			t.Fatalf("expected %#v to be non-empty", v)
		}
	}
}
