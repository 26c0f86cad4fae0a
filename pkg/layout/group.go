package layout

import (
	"fmt"
	"slices"
	"strings"

	"github.com/goliatone/go-consultform/pkg/schema"
)

// Kind describes how a group of fields is laid out.
type Kind string

const (
	KindSingle   Kind = "single"
	KindRow      Kind = "row"
	KindBPPair   Kind = "bp_pair"
	KindBasicRow Kind = "basic_row"
)

const (
	bodyRowCap  = 3
	basicRowCap = 3
	rowCap      = 4
	implicitMin = 2
	implicitMax = 4
)

// FieldRef addresses one field of one item.
type FieldRef struct {
	Item string `json:"item"`
	Key  string `json:"key"`
}

// String renders the ref as "item.key", the key used for errors and display
// unit selection.
func (r FieldRef) String() string {
	return r.Item + "." + r.Key
}

// ParseFieldRef splits an "item.key" string.
func ParseFieldRef(raw string) (FieldRef, error) {
	item, key, ok := strings.Cut(raw, ".")
	if !ok || item == "" || key == "" {
		return FieldRef{}, fmt.Errorf("layout: invalid field reference %q", raw)
	}
	return FieldRef{Item: item, Key: key}, nil
}

// Cell is one field placed in a group.
type Cell struct {
	Ref   FieldRef     `json:"ref"`
	Field schema.Field `json:"field"`
}

// Group is one visual line of the form.
type Group struct {
	Kind  Kind   `json:"kind"`
	Cells []Cell `json:"cells"`
}

// Items returns the distinct item codes the group spans, in order.
func (g Group) Items() []string {
	var out []string
	for _, cell := range g.Cells {
		if !slices.Contains(out, cell.Ref.Item) {
			out = append(out, cell.Ref.Item)
		}
	}
	return out
}

// Refs returns the field refs of the group in visual order.
func (g Group) Refs() []FieldRef {
	out := make([]FieldRef, 0, len(g.Cells))
	for _, cell := range g.Cells {
		out = append(out, cell.Ref)
	}
	return out
}

// GroupItems groups each item's fields independently and concatenates the
// results in item order.
func GroupItems(items []schema.Item) []Group {
	var out []Group
	for _, item := range items {
		out = append(out, GroupItem(item)...)
	}
	return out
}

// MergeBasicRow groups items like GroupItems but pulls every single-field
// item tagged "basic" into one shared basic_row, placed where the first such
// item appears.
func MergeBasicRow(items []schema.Item) []Group {
	var (
		out    []Group
		merged = -1
	)
	for _, item := range items {
		if !basicSingle(item) {
			out = append(out, GroupItem(item)...)
			continue
		}
		cell := Cell{Ref: FieldRef{Item: item.Code, Key: item.Fields[0].Key}, Field: item.Fields[0]}
		if merged < 0 {
			merged = len(out)
			out = append(out, Group{Kind: KindBasicRow})
		}
		out[merged].Cells = append(out[merged].Cells, cell)
	}
	return out
}

func basicSingle(item schema.Item) bool {
	return len(item.Fields) == 1 && item.Fields[0].UIGroup == schema.GroupBasic
}

type pending struct {
	first int
	group Group
}

// GroupItem applies the grouping rules to one item. Rules run in precedence
// order and each claims the fields it groups. Groups are returned in the
// order of their first field within the item.
func GroupItem(item schema.Item) []Group {
	claimed := make([]bool, len(item.Fields))
	var groups []pending

	emit := func(kind Kind, idx []int) {
		g := Group{Kind: kind, Cells: make([]Cell, 0, len(idx))}
		for _, i := range idx {
			claimed[i] = true
			g.Cells = append(g.Cells, Cell{
				Ref:   FieldRef{Item: item.Code, Key: item.Fields[i].Key},
				Field: item.Fields[i],
			})
		}
		groups = append(groups, pending{first: slices.Min(idx), group: g})
	}

	unclaimedIn := func(tag string) []int {
		var idx []int
		for i, field := range item.Fields {
			if !claimed[i] && field.UIGroup == tag {
				idx = append(idx, i)
			}
		}
		return idx
	}

	if body := unclaimedIn(schema.GroupBody); len(body) >= 2 {
		emit(KindRow, body[:min(len(body), bodyRowCap)])
	}

	if bp := unclaimedIn(schema.GroupBP); len(bp) == 2 {
		emit(KindBPPair, bp)
	}

	basic := unclaimedIn(schema.GroupBasic)
	for chunk := range slices.Chunk(basic, basicRowCap) {
		if len(chunk) == 1 {
			emit(KindSingle, chunk)
			continue
		}
		emit(KindRow, chunk)
	}

	if row := unclaimedIn(schema.GroupRow); len(row) >= 2 {
		emit(KindRow, row[:min(len(row), rowCap)])
	}

	for i, field := range item.Fields {
		if claimed[i] || field.PairWith == "" || field.PairWith == field.Key {
			continue
		}
		partner := slices.IndexFunc(item.Fields, func(f schema.Field) bool { return f.Key == field.PairWith })
		if partner < 0 || claimed[partner] {
			continue
		}
		pair := []int{i, partner}
		slices.Sort(pair)
		emit(KindRow, pair)
	}

	var rest []int
	for i := range item.Fields {
		if !claimed[i] {
			rest = append(rest, i)
		}
	}
	multiline := slices.ContainsFunc(rest, func(i int) bool { return item.Fields[i].Multiline })
	if len(rest) >= implicitMin && len(rest) <= implicitMax && !multiline {
		emit(KindRow, rest)
	} else {
		for _, i := range rest {
			emit(KindSingle, []int{i})
		}
	}

	slices.SortStableFunc(groups, func(a, b pending) int { return a.first - b.first })
	out := make([]Group, 0, len(groups))
	for _, p := range groups {
		out = append(out, p.group)
	}
	return out
}
