package render

import (
	"strconv"

	"github.com/goliatone/go-consultform/internal/coerce"
	"github.com/goliatone/go-consultform/pkg/layout"
	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/session"
	"github.com/goliatone/go-consultform/pkg/units"
)

// View is the renderer-neutral snapshot of a session: the grouped layout
// with display values, units, and messages resolved.
type View struct {
	Section    string            `json:"section"`
	SessionID  string            `json:"session_id"`
	Relaxed    bool              `json:"relaxed"`
	Tiers      []TierView        `json:"tiers"`
	Available  []ItemRef         `json:"available,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
	Notices    map[string]string `json:"notices,omitempty"`
	FormErrors []string          `json:"form_errors,omitempty"`
	TabOrder   []string          `json:"tab_order"`
}

// ItemRef names a hidden item the user may reveal.
type ItemRef struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// TierView is one tier of the layout.
type TierView struct {
	Name   string      `json:"name"`
	Groups []GroupView `json:"groups"`
}

// GroupView is one visual line.
type GroupView struct {
	Kind  string     `json:"kind"`
	Cells []CellView `json:"cells"`
}

// CellView is one rendered field.
type CellView struct {
	Ref            string          `json:"ref"`
	Item           string          `json:"item"`
	Key            string          `json:"key"`
	Label          string          `json:"label"`
	PlainLabel     string          `json:"plain_label"`
	Kind           string          `json:"kind"`
	Value          string          `json:"value,omitempty"`
	Values         []string        `json:"values,omitempty"`
	Unit           string          `json:"unit,omitempty"`
	Units          []string        `json:"units,omitempty"`
	Required       bool            `json:"required"`
	ReadOnly       bool            `json:"read_only"`
	Multiline      bool            `json:"multiline"`
	Placeholder    string          `json:"placeholder,omitempty"`
	Options        []schema.Option `json:"options,omitempty"`
	Min            string          `json:"min,omitempty"`
	Max            string          `json:"max,omitempty"`
	Step           string          `json:"step,omitempty"`
	TabIndex       int             `json:"tab_index,omitempty"`
	Error          string          `json:"error,omitempty"`
	Notice         string          `json:"notice,omitempty"`
	Classification string          `json:"classification,omitempty"`
}

// NewView snapshots s for rendering.
func NewView(s *session.Session) View {
	section := s.Section()
	l := s.Layout()
	tiers := s.Tiers()
	errs := s.Errors()
	notices := s.Notices()

	tab := make(map[string]int)
	view := View{
		Section:   section.Code,
		SessionID: s.ID,
		Relaxed:   section.Relaxed(),
		Errors:    errs,
		Notices:   notices,
	}
	for i, ref := range layout.TabOrder(l) {
		tab[ref.String()] = i + 1
		view.TabOrder = append(view.TabOrder, ref.String())
	}

	for _, tier := range l.Tiers {
		tv := TierView{Name: string(tier.Tier)}
		for _, group := range tier.Groups {
			gv := GroupView{Kind: string(group.Kind)}
			for _, cell := range group.Cells {
				name, _ := tiers.Of(cell.Ref.Item)
				cv := newCell(s, cell, name == layout.TierRequired)
				cv.TabIndex = tab[cv.Ref]
				cv.Error = errs[cv.Ref]
				cv.Notice = notices[cv.Ref]
				gv.Cells = append(gv.Cells, cv)
			}
			tv.Groups = append(tv.Groups, gv)
		}
		view.Tiers = append(view.Tiers, tv)
	}

	for _, item := range l.Available {
		label := item.Label
		if label == "" {
			label = item.Code
		}
		view.Available = append(view.Available, ItemRef{Code: item.Code, Label: PlainLabel(label)})
	}
	return view
}

func newCell(s *session.Session, cell layout.Cell, requiredTier bool) CellView {
	field := cell.Field
	item, key := cell.Ref.Item, cell.Ref.Key
	label := field.Label
	if label == "" {
		label = key
	}

	cv := CellView{
		Ref:         cell.Ref.String(),
		Item:        item,
		Key:         key,
		Label:       SanitizeLabel(label),
		PlainLabel:  PlainLabel(label),
		Kind:        string(field.Kind),
		Unit:        s.DisplayUnit(item, key),
		Required:    field.Required && requiredTier && !s.Section().Relaxed(),
		Multiline:   field.Multiline,
		Placeholder: field.Placeholder,
		Options:     field.Options,
	}
	if field.Converts() {
		cv.Units = field.SupportedUnits
	}
	if field.Step > 0 {
		cv.Step = strconv.FormatFloat(field.Step, 'f', -1, 64)
	}

	rng := s.Range(item, key)
	if rng.Min != nil {
		cv.Min = units.FormatMin(*rng.Min)
	}
	if rng.Max != nil {
		cv.Max = units.FormatMax(*rng.Max)
	}

	switch field.Kind {
	case schema.KindCalculated:
		cv.ReadOnly = true
		if result, err := s.Calculated(item, key); err == nil {
			cv.Value = result.Display(units.StepDecimals(field.Step))
			cv.Classification = result.Classification
		}
	case schema.KindMultiSelect:
		if v, ok := s.Value(item, key); ok {
			cv.Values = coerce.Strings(v)
		}
	case schema.KindNumber:
		if v, ok := s.DisplayValue(item, key); ok {
			if n, isNumber := coerce.Number(v); isNumber {
				cv.Value = units.FormatNumber(n)
			} else {
				cv.Value = coerce.String(v)
			}
		}
	default:
		if v, ok := s.Value(item, key); ok {
			cv.Value = coerce.String(v)
		}
	}
	return cv
}

// Cells returns every cell of the view in visual order.
func (v View) Cells() []CellView {
	var out []CellView
	for _, tier := range v.Tiers {
		for _, group := range tier.Groups {
			out = append(out, group.Cells...)
		}
	}
	return out
}

// Cell returns the cell rendered for ref ("item.key").
func (v View) Cell(ref string) (CellView, bool) {
	for _, cell := range v.Cells() {
		if cell.Ref == ref {
			return cell, true
		}
	}
	return CellView{}, false
}
