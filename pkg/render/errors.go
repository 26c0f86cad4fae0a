package render

import (
	"slices"
	"strconv"
	"strings"
)

// ErrorMapping splits an error payload into field-level messages keyed by
// "item.key" and form-level messages.
type ErrorMapping struct {
	Fields map[string][]string
	Form   []string
}

// MergeFormErrors concatenates message slices, trimming and de-duplicating
// while preserving order.
func MergeFormErrors(existing []string, extras ...string) []string {
	combined := make([]string, 0, len(existing)+len(extras))
	combined = append(combined, existing...)
	combined = append(combined, extras...)
	return normalizeMessages(combined)
}

// MapErrorPayload maps backend error paths ("payload.blood_pressure.systolic",
// "/blood_pressure/systolic", "systolic") onto the cells of view. Paths that
// match no visible cell become form-level messages so nothing is lost.
func MapErrorPayload(view View, payload map[string][]string) ErrorMapping {
	mapping := ErrorMapping{Fields: make(map[string][]string)}

	refs := make(map[string]struct{})
	byKey := make(map[string][]string)
	for _, cell := range view.Cells() {
		refs[cell.Ref] = struct{}{}
		byKey[cell.Key] = append(byKey[cell.Key], cell.Ref)
	}

	paths := make([]string, 0, len(payload))
	for path := range payload {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	for _, raw := range paths {
		messages := normalizeMessages(payload[raw])
		if len(messages) == 0 {
			continue
		}
		ref, ok := matchRef(raw, refs, byKey)
		if !ok {
			mapping.Form = append(mapping.Form, messages...)
			continue
		}
		mapping.Fields[ref] = append(mapping.Fields[ref], messages...)
	}

	if len(mapping.Fields) == 0 {
		mapping.Fields = nil
	}
	mapping.Form = normalizeMessages(mapping.Form)
	return mapping
}

// ApplyErrors folds server-side messages and session errors for fields not
// on screen into view.
func ApplyErrors(view View, payload map[string][]string) View {
	mapping := MapErrorPayload(view, payload)
	view.Tiers = cloneTiers(view.Tiers)

	for ti := range view.Tiers {
		for gi := range view.Tiers[ti].Groups {
			cells := view.Tiers[ti].Groups[gi].Cells
			for ci := range cells {
				if msgs := mapping.Fields[cells[ci].Ref]; len(msgs) > 0 && cells[ci].Error == "" {
					cells[ci].Error = strings.Join(msgs, "; ")
				}
			}
		}
	}

	var offscreen []string
	for _, ref := range sortedKeys(view.Errors) {
		if _, ok := view.Cell(ref); !ok {
			offscreen = append(offscreen, ref+": "+view.Errors[ref])
		}
	}
	view.FormErrors = MergeFormErrors(view.FormErrors, append(offscreen, mapping.Form...)...)
	return view
}

func cloneTiers(tiers []TierView) []TierView {
	out := make([]TierView, len(tiers))
	for ti, tier := range tiers {
		out[ti] = TierView{Name: tier.Name, Groups: make([]GroupView, len(tier.Groups))}
		for gi, group := range tier.Groups {
			out[ti].Groups[gi] = GroupView{Kind: group.Kind, Cells: slices.Clone(group.Cells)}
		}
	}
	return out
}

func matchRef(raw string, refs map[string]struct{}, byKey map[string][]string) (string, bool) {
	if isFormLevelKey(raw) {
		return "", false
	}
	segments := stripNumericSegments(dropWrapperSegments(parsePathSegments(raw)))
	if len(segments) == 0 {
		return "", false
	}

	for start := 0; start+1 < len(segments); start++ {
		candidate := segments[start] + "." + segments[start+1]
		if _, ok := refs[candidate]; ok {
			return candidate, true
		}
	}

	last := segments[len(segments)-1]
	if matches := byKey[last]; len(matches) == 1 {
		return matches[0], true
	}
	return "", false
}

func normalizeMessages(messages []string) []string {
	out := make([]string, 0, len(messages))
	for _, message := range messages {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" || slices.Contains(out, trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parsePathSegments(path string) []string {
	clean := strings.TrimSpace(path)
	clean = strings.TrimLeft(clean, "#$/.")
	clean = strings.NewReplacer("[", ".", "]", "").Replace(clean)

	parts := strings.FieldsFunc(clean, func(r rune) bool {
		return r == '.' || r == '/'
	})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		segment := strings.TrimSpace(part)
		if segment == "" {
			continue
		}
		segment = strings.ReplaceAll(segment, "~1", "/")
		segment = strings.ReplaceAll(segment, "~0", "~")
		out = append(out, segment)
	}
	return out
}

var wrapperSegments = map[string]struct{}{
	"body":    {},
	"payload": {},
	"data":    {},
	"values":  {},
	"fields":  {},
}

func dropWrapperSegments(segments []string) []string {
	for len(segments) > 0 {
		if _, ok := wrapperSegments[strings.ToLower(segments[0])]; !ok {
			break
		}
		segments = segments[1:]
	}
	return segments
}

func stripNumericSegments(segments []string) []string {
	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		if _, err := strconv.Atoi(segment); err == nil {
			continue
		}
		out = append(out, segment)
	}
	return out
}

func isFormLevelKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", ".", "/", "#", "$", "form", "__all__", "non_field_errors":
		return true
	default:
		return false
	}
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
