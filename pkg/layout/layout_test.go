package layout_test

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-consultform/pkg/catalog"
	"github.com/goliatone/go-consultform/pkg/layout"
	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/testsupport"
)

func tiers(t *testing.T) catalog.TierConfig {
	t.Helper()
	cfg, err := catalog.LoadTierConfig(bytes.NewReader(testsupport.TiersYAML()))
	if err != nil {
		t.Fatalf("load tiers: %v", err)
	}
	return cfg
}

type shape struct {
	Kind layout.Kind
	Refs []string
}

func shapes(groups []layout.Group) []shape {
	out := make([]shape, 0, len(groups))
	for _, g := range groups {
		s := shape{Kind: g.Kind}
		for _, ref := range g.Refs() {
			s.Refs = append(s.Refs, ref.String())
		}
		out = append(out, s)
	}
	return out
}

func refStrings(refs []layout.FieldRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.String())
	}
	return out
}

func TestTierPartition(t *testing.T) {
	t.Parallel()

	tpl := testsupport.MustTemplate(t)
	rng := rand.New(rand.NewPCG(7, 11))

	for _, section := range tpl.Sections {
		for round := 0; round < 50; round++ {
			required := map[string]struct{}{}
			optional := map[string]struct{}{}
			for _, code := range section.ItemCodes() {
				switch rng.IntN(3) {
				case 0:
					required[code] = struct{}{}
				case 1:
					optional[code] = struct{}{}
				}
			}

			got := layout.Tier(section, required, optional)
			seen := map[string]int{}
			for _, item := range got.Required {
				seen[item.Code]++
				if _, ok := required[item.Code]; !ok {
					t.Fatalf("%s: %s tiered required without being listed", section.Code, item.Code)
				}
			}
			for _, item := range got.Optional {
				seen[item.Code]++
				if _, ok := optional[item.Code]; !ok {
					t.Fatalf("%s: %s tiered optional without being listed", section.Code, item.Code)
				}
			}
			for _, item := range got.Hidden {
				seen[item.Code]++
				_, r := required[item.Code]
				_, o := optional[item.Code]
				if r || o {
					t.Fatalf("%s: listed item %s ended up hidden", section.Code, item.Code)
				}
			}
			if len(seen) != len(section.Items) {
				t.Fatalf("%s: partition covers %d of %d items", section.Code, len(seen), len(section.Items))
			}
			for code, n := range seen {
				if n != 1 {
					t.Fatalf("%s: item %s appears in %d tiers", section.Code, code, n)
				}
			}
		}
	}
}

func TestVitalsLayout(t *testing.T) {
	t.Parallel()

	cfg := tiers(t)
	section := testsupport.MustSection(t, "vitals")

	l := layout.Build(section, cfg.Required("vitals"), cfg.Optional("vitals"), nil)

	want := []shape{
		{Kind: layout.KindRow, Refs: []string{"anthropometry.height", "anthropometry.weight", "anthropometry.bmi"}},
		{Kind: layout.KindBPPair, Refs: []string{"blood_pressure.systolic", "blood_pressure.diastolic"}},
		{Kind: layout.KindBasicRow, Refs: []string{"temperature.temperature", "pulse.pulse", "spo2.spo2"}},
		{Kind: layout.KindSingle, Refs: []string{"respiratory_rate.respiratory_rate"}},
		{Kind: layout.KindRow, Refs: []string{"blood_sugar.blood_sugar", "blood_sugar.sugar_context"}},
		{Kind: layout.KindSingle, Refs: []string{"blood_sugar.sugar_notes"}},
	}
	if diff := cmp.Diff(want, shapes(l.Groups())); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}

	var available []string
	for _, item := range l.Available {
		available = append(available, item.Code)
	}
	if diff := cmp.Diff([]string{"pain_score", "notes"}, available); diff != "" {
		t.Fatalf("available mismatch (-want +got):\n%s", diff)
	}

	wantOrder := []string{
		"anthropometry.height", "anthropometry.weight",
		"blood_pressure.systolic", "blood_pressure.diastolic",
		"temperature.temperature", "pulse.pulse", "spo2.spo2",
		"respiratory_rate.respiratory_rate",
		"blood_sugar.blood_sugar", "blood_sugar.sugar_context", "blood_sugar.sugar_notes",
	}
	if diff := cmp.Diff(wantOrder, refStrings(layout.TabOrder(l))); diff != "" {
		t.Fatalf("tab order mismatch (-want +got):\n%s", diff)
	}
}

func TestRevealedHiddenItemsFollowOptional(t *testing.T) {
	t.Parallel()

	cfg := tiers(t)
	section := testsupport.MustSection(t, "vitals")

	l := layout.Build(section, cfg.Required("vitals"), cfg.Optional("vitals"), []string{"pain_score"})

	last := l.Tiers[len(l.Tiers)-1]
	if last.Tier != layout.TierHidden {
		t.Fatalf("expected revealed tier last, got %s", last.Tier)
	}
	order := refStrings(layout.TabOrder(l))
	if order[len(order)-1] != "pain_score.pain_score" {
		t.Fatalf("revealed field should be tabbed last, got %v", order)
	}
	if len(l.Available) != 1 || l.Available[0].Code != "notes" {
		t.Fatalf("expected notes to remain available, got %v", l.Available)
	}
}

func TestTabOrderMatchesVisualOrder(t *testing.T) {
	t.Parallel()

	cfg := tiers(t)
	tpl := testsupport.MustTemplate(t)
	for _, section := range tpl.Sections {
		l := layout.Build(section, cfg.Required(section.Code), cfg.Optional(section.Code), nil)

		var visual []layout.FieldRef
		for _, g := range l.Groups() {
			for _, cell := range g.Cells {
				if cell.Field.Kind != schema.KindCalculated {
					visual = append(visual, cell.Ref)
				}
			}
		}
		if diff := cmp.Diff(visual, layout.TabOrder(l)); diff != "" {
			t.Fatalf("%s: tab order diverges from layout (-visual +tab):\n%s", section.Code, diff)
		}
	}
}

func TestDeclaredTabOrderIsIgnored(t *testing.T) {
	t.Parallel()

	raw := `{"sections":[{"code":"s","items":[{"code":"x","fields":[
		{"key":"first","type":"number","tab_order":3},
		{"key":"second","type":"text","tab_order":2},
		{"key":"third","type":"text","tab_order":1}
	]}]}]}`
	tpl, err := schema.DecodeBytes([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	section, _ := tpl.Section("s")
	item, _ := section.Item("x")
	if got := item.Fields[0].TabOrder; got == nil || *got != 3 {
		t.Fatalf("expected tab_order to survive decoding, got %v", got)
	}

	l := layout.Build(section, map[string]struct{}{"x": {}}, nil, nil)
	want := []string{"x.first", "x.second", "x.third"}
	if diff := cmp.Diff(want, refStrings(layout.TabOrder(l))); diff != "" {
		t.Fatalf("tab order should follow layout (-want +got):\n%s", diff)
	}
}

func TestChiefComplaintGrouping(t *testing.T) {
	t.Parallel()

	section := testsupport.MustSection(t, "chief_complaint")
	item, _ := section.Item("primary_complaint")

	want := []shape{
		{Kind: layout.KindSingle, Refs: []string{"primary_complaint.complaint_text"}},
		{Kind: layout.KindRow, Refs: []string{"primary_complaint.duration", "primary_complaint.duration_unit"}},
	}
	if diff := cmp.Diff(want, shapes(layout.GroupItem(item))); diff != "" {
		t.Fatalf("grouping mismatch (-want +got):\n%s", diff)
	}
}

func field(key, group string) schema.Field {
	return schema.Field{Key: key, Kind: schema.KindNumber, UIGroup: group}
}

func TestGroupItemRules(t *testing.T) {
	t.Parallel()

	multiline := schema.Field{Key: "notes", Kind: schema.KindText, Multiline: true}
	pairA := schema.Field{Key: "a", Kind: schema.KindNumber, PairWith: "b"}
	pairB := schema.Field{Key: "b", Kind: schema.KindText, PairWith: "a"}

	cases := []struct {
		name   string
		fields []schema.Field
		want   []shape
	}{
		{
			name:   "body row capped at three",
			fields: []schema.Field{field("h", "body"), field("w", "body"), field("bmi", "body"), field("waist", "body")},
			want: []shape{
				{Kind: layout.KindRow, Refs: []string{"x.h", "x.w", "x.bmi"}},
				{Kind: layout.KindSingle, Refs: []string{"x.waist"}},
			},
		},
		{
			name:   "bp needs exactly two",
			fields: []schema.Field{field("s", "bp"), field("d", "bp"), field("m", "bp")},
			want: []shape{
				{Kind: layout.KindRow, Refs: []string{"x.s", "x.d", "x.m"}},
			},
		},
		{
			name:   "basic chunked by three",
			fields: []schema.Field{field("a", "basic"), field("b", "basic"), field("c", "basic"), field("d", "basic")},
			want: []shape{
				{Kind: layout.KindRow, Refs: []string{"x.a", "x.b", "x.c"}},
				{Kind: layout.KindSingle, Refs: []string{"x.d"}},
			},
		},
		{
			name:   "explicit row capped at four",
			fields: []schema.Field{field("a", "row"), field("b", "row"), field("c", "row"), field("d", "row"), field("e", "row")},
			want: []shape{
				{Kind: layout.KindRow, Refs: []string{"x.a", "x.b", "x.c", "x.d"}},
				{Kind: layout.KindSingle, Refs: []string{"x.e"}},
			},
		},
		{
			name:   "pair_with links partners",
			fields: []schema.Field{pairA, multiline, pairB},
			want: []shape{
				{Kind: layout.KindRow, Refs: []string{"x.a", "x.b"}},
				{Kind: layout.KindSingle, Refs: []string{"x.notes"}},
			},
		},
		{
			name:   "pair_with partner already claimed",
			fields: []schema.Field{{Key: "a", Kind: schema.KindNumber, PairWith: "b"}, field("b", "body"), field("c", "body"), multiline},
			want: []shape{
				{Kind: layout.KindSingle, Refs: []string{"x.a"}},
				{Kind: layout.KindRow, Refs: []string{"x.b", "x.c"}},
				{Kind: layout.KindSingle, Refs: []string{"x.notes"}},
			},
		},
		{
			name:   "implicit row for short clusters",
			fields: []schema.Field{field("a", ""), field("b", ""), field("c", "")},
			want: []shape{
				{Kind: layout.KindRow, Refs: []string{"x.a", "x.b", "x.c"}},
			},
		},
		{
			name:   "multiline blocks implicit row",
			fields: []schema.Field{field("a", ""), multiline},
			want: []shape{
				{Kind: layout.KindSingle, Refs: []string{"x.a"}},
				{Kind: layout.KindSingle, Refs: []string{"x.notes"}},
			},
		},
		{
			name:   "five leftovers stay standalone",
			fields: []schema.Field{field("a", ""), field("b", ""), field("c", ""), field("d", ""), field("e", "")},
			want: []shape{
				{Kind: layout.KindSingle, Refs: []string{"x.a"}},
				{Kind: layout.KindSingle, Refs: []string{"x.b"}},
				{Kind: layout.KindSingle, Refs: []string{"x.c"}},
				{Kind: layout.KindSingle, Refs: []string{"x.d"}},
				{Kind: layout.KindSingle, Refs: []string{"x.e"}},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := shapes(layout.GroupItem(schema.Item{Code: "x", Fields: tc.fields}))
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("grouping mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNoFieldGroupedTwice(t *testing.T) {
	t.Parallel()

	tpl := testsupport.MustTemplate(t)
	for _, section := range tpl.Sections {
		seen := map[string]int{}
		for _, g := range layout.GroupItems(section.Items) {
			for _, ref := range g.Refs() {
				seen[ref.String()]++
			}
		}
		total := 0
		for _, item := range section.Items {
			total += len(item.Fields)
		}
		if len(seen) != total {
			t.Fatalf("%s: grouped %d of %d fields", section.Code, len(seen), total)
		}
		for ref, n := range seen {
			if n != 1 {
				t.Fatalf("%s: %s grouped %d times", section.Code, ref, n)
			}
		}
	}
}

func TestParseFieldRefAndNext(t *testing.T) {
	t.Parallel()

	ref, err := layout.ParseFieldRef("blood_pressure.systolic")
	if err != nil || ref != (layout.FieldRef{Item: "blood_pressure", Key: "systolic"}) {
		t.Fatalf("unexpected ref %v (%v)", ref, err)
	}
	if _, err := layout.ParseFieldRef("systolic"); err == nil {
		t.Fatalf("expected error for ref without item")
	}

	order := []layout.FieldRef{{Item: "a", Key: "x"}, {Item: "a", Key: "y"}}
	if next, ok := layout.Next(order, order[0]); !ok || next != order[1] {
		t.Fatalf("unexpected next %v", next)
	}
	if _, ok := layout.Next(order, order[1]); ok {
		t.Fatalf("expected end of order")
	}
}
