package layout

import (
	"slices"

	"github.com/goliatone/go-consultform/pkg/schema"
)

// TierLayout is the grouped rendering of one tier.
type TierLayout struct {
	Tier   TierName      `json:"tier"`
	Items  []schema.Item `json:"-"`
	Groups []Group       `json:"groups"`
}

// Layout is the full visual arrangement of a section. Hidden items appear
// only when revealed; the rest are listed in Available.
type Layout struct {
	Section   string        `json:"section"`
	Tiers     []TierLayout  `json:"tiers"`
	Available []schema.Item `json:"available,omitempty"`
}

// Build tiers the section, keeps revealed hidden items, and groups every
// tier. Vitals use the cross-item basic row merge.
func Build(section schema.Section, required, optional map[string]struct{}, revealed []string) Layout {
	tiers := Tier(section, required, optional)
	group := GroupItems
	if section.Code == schema.SectionVitals {
		group = MergeBasicRow
	}

	out := Layout{Section: section.Code}
	add := func(name TierName, items []schema.Item) {
		if len(items) == 0 {
			return
		}
		out.Tiers = append(out.Tiers, TierLayout{Tier: name, Items: items, Groups: group(items)})
	}

	var shown []schema.Item
	for _, item := range tiers.Hidden {
		if slices.Contains(revealed, item.Code) {
			shown = append(shown, item)
		} else {
			out.Available = append(out.Available, item)
		}
	}

	add(TierRequired, tiers.Required)
	add(TierOptional, tiers.Optional)
	add(TierHidden, shown)
	return out
}

// Groups returns every group across tiers in visual order.
func (l Layout) Groups() []Group {
	var out []Group
	for _, tier := range l.Tiers {
		out = append(out, tier.Groups...)
	}
	return out
}

// Item returns the displayed item with code.
func (l Layout) Item(code string) (schema.Item, bool) {
	for _, tier := range l.Tiers {
		for _, item := range tier.Items {
			if item.Code == code {
				return item, true
			}
		}
	}
	return schema.Item{}, false
}

// TabOrder walks the layout tier by tier, group by group, left to right.
// Calculated fields are read-only and skipped.
func TabOrder(l Layout) []FieldRef {
	var out []FieldRef
	for _, g := range l.Groups() {
		for _, cell := range g.Cells {
			if cell.Field.Kind == schema.KindCalculated {
				continue
			}
			out = append(out, cell.Ref)
		}
	}
	return out
}

// Next returns the ref after current in order, or false at the end or when
// current is not in order.
func Next(order []FieldRef, current FieldRef) (FieldRef, bool) {
	i := slices.Index(order, current)
	if i < 0 || i+1 >= len(order) {
		return FieldRef{}, false
	}
	return order[i+1], true
}
