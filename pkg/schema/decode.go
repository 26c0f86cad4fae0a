package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type responseFile struct {
	Template *templateFile `json:"template"`
	Sections []sectionFile `json:"sections"`
}

type templateFile struct {
	Sections []sectionFile `json:"sections"`
}

type sectionFile struct {
	Section string     `json:"section"`
	Code    string     `json:"code"`
	Items   []itemFile `json:"items"`
}

type itemFile struct {
	Code   string      `json:"code"`
	Label  string      `json:"label"`
	Fields []fieldFile `json:"fields"`
}

type fieldFile struct {
	Key            string          `json:"key"`
	Label          string          `json:"label"`
	Type           string          `json:"type"`
	Required       bool            `json:"required"`
	Unit           string          `json:"unit"`
	CanonicalUnit  string          `json:"canonical_unit"`
	SupportedUnits []string        `json:"supported_units"`
	Range          json.RawMessage `json:"range"`
	Min            *float64        `json:"min"`
	Max            *float64        `json:"max"`
	Step           *float64        `json:"step"`
	MinLength      *int            `json:"minLength"`
	MinLengthSnake *int            `json:"min_length"`
	MaxLength      *int            `json:"maxLength"`
	MaxLengthSnake *int            `json:"max_length"`
	Options        json.RawMessage `json:"options"`
	Formula        string          `json:"formula"`
	PairWith       string          `json:"pair_with"`
	UIGroup        string          `json:"ui_group"`
	TabOrder       *int            `json:"tab_order"`
	Multiline      bool            `json:"multiline"`
	Placeholder    string          `json:"placeholder"`
	Validation     *Pattern        `json:"validation"`
}

// Decode parses a template document and checks its invariants.
func Decode(doc Document) (*Template, error) {
	tpl, err := DecodeBytes(doc.Raw())
	if err != nil {
		if loc := doc.Location(); loc != "" {
			return nil, fmt.Errorf("%w (source %s)", err, loc)
		}
		return nil, err
	}
	return tpl, nil
}

// DecodeBytes parses the fetch response shape
// {"template":{"sections":[...]}}. A bare {"sections":[...]} is accepted too.
func DecodeBytes(raw []byte) (*Template, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("schema: template payload is empty")
	}

	var resp responseFile
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("schema: decode template: %w", err)
	}

	sections := resp.Sections
	if resp.Template != nil {
		sections = resp.Template.Sections
	}
	if len(sections) == 0 {
		return nil, errors.New("schema: template defines no sections")
	}

	tpl := &Template{Sections: make([]Section, 0, len(sections))}
	for idx, rawSection := range sections {
		section, err := decodeSection(rawSection)
		if err != nil {
			return nil, fmt.Errorf("schema: section[%d]: %w", idx, err)
		}
		tpl.Sections = append(tpl.Sections, section)
	}

	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return tpl, nil
}

func decodeSection(raw sectionFile) (Section, error) {
	code := strings.TrimSpace(raw.Section)
	if code == "" {
		code = strings.TrimSpace(raw.Code)
	}
	if code == "" {
		return Section{}, errors.New("section code is required")
	}

	section := Section{Code: code, Items: make([]Item, 0, len(raw.Items))}
	for _, rawItem := range raw.Items {
		item := Item{
			Code:   strings.TrimSpace(rawItem.Code),
			Label:  strings.TrimSpace(rawItem.Label),
			Fields: make([]Field, 0, len(rawItem.Fields)),
		}
		if item.Code == "" {
			return Section{}, fmt.Errorf("%s: item code is required", code)
		}
		for _, rawField := range rawItem.Fields {
			field, err := decodeField(rawField)
			if err != nil {
				return Section{}, fmt.Errorf("%s.%s: %w", code, item.Code, err)
			}
			item.Fields = append(item.Fields, field)
		}
		section.Items = append(section.Items, item)
	}
	return section, nil
}

func decodeField(raw fieldFile) (Field, error) {
	key := strings.TrimSpace(raw.Key)
	if key == "" {
		return Field{}, errors.New("field key is required")
	}
	kind, err := ParseFieldKind(raw.Type)
	if err != nil {
		return Field{}, fmt.Errorf("field %s: %w", key, err)
	}

	field := Field{
		Key:            key,
		Label:          strings.TrimSpace(raw.Label),
		Kind:           kind,
		Required:       raw.Required,
		Unit:           strings.TrimSpace(raw.Unit),
		CanonicalUnit:  strings.TrimSpace(raw.CanonicalUnit),
		SupportedUnits: trimAll(raw.SupportedUnits),
		Min:            raw.Min,
		Max:            raw.Max,
		MinLength:      firstInt(raw.MinLength, raw.MinLengthSnake),
		MaxLength:      firstInt(raw.MaxLength, raw.MaxLengthSnake),
		Formula:        strings.TrimSpace(raw.Formula),
		PairWith:       strings.TrimSpace(raw.PairWith),
		UIGroup:        strings.ToLower(strings.TrimSpace(raw.UIGroup)),
		TabOrder:       raw.TabOrder,
		Multiline:      raw.Multiline || strings.EqualFold(strings.TrimSpace(raw.Type), "textarea"),
		Placeholder:    raw.Placeholder,
	}
	if raw.Step != nil {
		field.Step = *raw.Step
	}
	if raw.Validation != nil {
		field.Validation = *raw.Validation
	}

	if len(raw.Range) > 0 {
		lo, hi, err := decodeRange(raw.Range)
		if err != nil {
			return Field{}, fmt.Errorf("field %s: %w", key, err)
		}
		if lo != nil {
			field.Min = lo
		}
		if hi != nil {
			field.Max = hi
		}
	}
	if field.Min != nil && field.Max != nil && *field.Min > *field.Max {
		return Field{}, fmt.Errorf("field %s: range min %v exceeds max %v", key, *field.Min, *field.Max)
	}

	if len(raw.Options) > 0 {
		options, err := decodeOptions(raw.Options)
		if err != nil {
			return Field{}, fmt.Errorf("field %s: %w", key, err)
		}
		field.Options = options
	}
	return field, nil
}

// decodeRange accepts [min, max] (either side may be null) or {"min":..,"max":..}.
func decodeRange(raw json.RawMessage) (*float64, *float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil, nil
	}

	if trimmed[0] == '[' {
		var pair []*float64
		if err := json.Unmarshal(trimmed, &pair); err != nil {
			return nil, nil, fmt.Errorf("invalid range: %w", err)
		}
		if len(pair) != 2 {
			return nil, nil, fmt.Errorf("range must have exactly two entries, got %d", len(pair))
		}
		return pair[0], pair[1], nil
	}

	var obj struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, nil, fmt.Errorf("invalid range: %w", err)
	}
	return obj.Min, obj.Max, nil
}

func decodeOptions(raw json.RawMessage) ([]Option, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	out := make([]Option, 0, len(entries))
	for _, entry := range entries {
		trimmed := bytes.TrimSpace(entry)
		if len(trimmed) == 0 {
			continue
		}
		if trimmed[0] != '{' {
			value, err := scalarString(trimmed)
			if err != nil {
				return nil, fmt.Errorf("invalid option: %w", err)
			}
			out = append(out, Option{Value: value, Label: value})
			continue
		}

		var obj struct {
			Value json.RawMessage `json:"value"`
			Label string          `json:"label"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
		value, err := scalarString(obj.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid option value: %w", err)
		}
		label := strings.TrimSpace(obj.Label)
		if label == "" {
			label = value
		}
		out = append(out, Option{Value: value, Label: label})
	}
	return out, nil
}

func scalarString(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch typed := v.(type) {
	case string:
		return typed, nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(typed), nil
	default:
		return "", fmt.Errorf("unsupported value %s", string(raw))
	}
}

func firstInt(values ...*int) *int {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
