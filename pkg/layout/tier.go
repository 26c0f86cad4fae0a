// Package layout partitions a section's items into tiers, groups their fields
// into rows for display, and derives the keyboard tab order from that layout.
package layout

import "github.com/goliatone/go-consultform/pkg/schema"

// TierName identifies one visibility tier.
type TierName string

const (
	TierRequired TierName = "required"
	TierOptional TierName = "optional"
	TierHidden   TierName = "hidden"
)

// Tiers is the partition of a section's items. Every item lands in exactly
// one tier and each tier keeps section order.
type Tiers struct {
	Required []schema.Item
	Optional []schema.Item
	Hidden   []schema.Item
}

// Tier partitions section items: required when listed in required, optional
// when listed in optional, hidden otherwise. Required wins if a code appears
// in both.
func Tier(section schema.Section, required, optional map[string]struct{}) Tiers {
	var out Tiers
	for _, item := range section.Items {
		switch {
		case contains(required, item.Code):
			out.Required = append(out.Required, item)
		case contains(optional, item.Code):
			out.Optional = append(out.Optional, item)
		default:
			out.Hidden = append(out.Hidden, item)
		}
	}
	return out
}

// Of returns the tier holding the item code.
func (t Tiers) Of(code string) (TierName, bool) {
	for _, tier := range []struct {
		name  TierName
		items []schema.Item
	}{
		{TierRequired, t.Required},
		{TierOptional, t.Optional},
		{TierHidden, t.Hidden},
	} {
		for _, item := range tier.items {
			if item.Code == code {
				return tier.name, true
			}
		}
	}
	return "", false
}

// HiddenCodes lists hidden item codes in section order.
func (t Tiers) HiddenCodes() []string {
	out := make([]string, 0, len(t.Hidden))
	for _, item := range t.Hidden {
		out = append(out, item.Code)
	}
	return out
}

func contains(set map[string]struct{}, code string) bool {
	_, ok := set[code]
	return ok
}
