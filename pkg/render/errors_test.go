package render_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-consultform/pkg/render"
)

func sampleView() render.View {
	return render.View{
		Section: "vitals",
		Tiers: []render.TierView{{
			Name: "required",
			Groups: []render.GroupView{
				{Kind: "bp_pair", Cells: []render.CellView{
					{Ref: "blood_pressure.systolic", Item: "blood_pressure", Key: "systolic"},
					{Ref: "blood_pressure.diastolic", Item: "blood_pressure", Key: "diastolic"},
				}},
				{Kind: "single", Cells: []render.CellView{
					{Ref: "pulse.pulse", Item: "pulse", Key: "pulse"},
				}},
			},
		}},
	}
}

func TestMapErrorPayload(t *testing.T) {
	t.Parallel()

	mapping := render.MapErrorPayload(sampleView(), map[string][]string{
		"payload.blood_pressure.systolic": {"too high", " too high "},
		"/blood_pressure/diastolic":       {"missing"},
		"pulse":                           {"out of range"},
		"sections[0].unknown":             {"lost field"},
		"__all__":                         {"try again"},
		"blood_pressure.ignored":          {"  "},
	})

	want := map[string][]string{
		"blood_pressure.systolic":  {"too high"},
		"blood_pressure.diastolic": {"missing"},
		"pulse.pulse":              {"out of range"},
	}
	if diff := cmp.Diff(want, mapping.Fields); diff != "" {
		t.Fatalf("field mapping mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"try again", "lost field"}, mapping.Form); diff != "" {
		t.Fatalf("form errors mismatch (-want +got):\n%s", diff)
	}
}

func TestMapErrorPayloadAmbiguousKey(t *testing.T) {
	t.Parallel()

	view := sampleView()
	view.Tiers[0].Groups = append(view.Tiers[0].Groups, render.GroupView{
		Kind:  "single",
		Cells: []render.CellView{{Ref: "other.systolic", Item: "other", Key: "systolic"}},
	})

	mapping := render.MapErrorPayload(view, map[string][]string{"systolic": {"which one"}})
	if len(mapping.Fields) != 0 {
		t.Fatalf("expected no field mapping for an ambiguous key, got %v", mapping.Fields)
	}
	if diff := cmp.Diff([]string{"which one"}, mapping.Form); diff != "" {
		t.Fatalf("form errors mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyErrors(t *testing.T) {
	t.Parallel()

	view := sampleView()
	view.Tiers[0].Groups[1].Cells[0].Error = "must be at most 220"
	view.Errors = map[string]string{
		"pulse.pulse":             "must be at most 220",
		"pain_score.pain_score":   "must be at most 10",
		"blood_pressure.systolic": "must be a number",
	}

	applied := render.ApplyErrors(view, map[string][]string{
		"blood_pressure.systolic": {"server says no"},
		"pulse.pulse":             {"ignored, session error wins"},
		"form":                    {"save failed"},
	})

	systolic, _ := applied.Cell("blood_pressure.systolic")
	if systolic.Error != "server says no" {
		t.Fatalf("expected server error on systolic, got %q", systolic.Error)
	}
	pulse, _ := applied.Cell("pulse.pulse")
	if pulse.Error != "must be at most 220" {
		t.Fatalf("expected session error to be kept, got %q", pulse.Error)
	}
	want := []string{"pain_score.pain_score: must be at most 10", "save failed"}
	if diff := cmp.Diff(want, applied.FormErrors); diff != "" {
		t.Fatalf("form errors mismatch (-want +got):\n%s", diff)
	}

	original, _ := view.Cell("blood_pressure.systolic")
	if original.Error != "" {
		t.Fatalf("ApplyErrors mutated the source view: %q", original.Error)
	}
}

func TestMergeFormErrors(t *testing.T) {
	t.Parallel()

	got := render.MergeFormErrors([]string{"a", " b "}, "b", "", "c")
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Fatalf("merge mismatch (-want +got):\n%s", diff)
	}
	if render.MergeFormErrors(nil) != nil {
		t.Fatal("expected nil for no messages")
	}
}
