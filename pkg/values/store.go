// Package values holds the per-session field value store. Numeric fields with
// unit conversion are always stored in their canonical unit; display values
// are derived on read by the session.
package values

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/goliatone/go-consultform/internal/coerce"
	"github.com/goliatone/go-consultform/pkg/schema"
)

// Store maps item codes to field values. Item insertion order is preserved
// so cross-item lookups are deterministic. A Store is owned by one session
// and is not safe for concurrent mutation.
type Store struct {
	order []string
	items map[string]map[string]any
}

// New returns an empty store.
func New() *Store {
	return &Store{items: make(map[string]map[string]any)}
}

// FromMap builds a store from a nested item/field mapping. Items are added in
// sorted key order.
func FromMap(data map[string]map[string]any) *Store {
	s := New()
	for _, item := range slices.Sorted(maps.Keys(data)) {
		fields := data[item]
		for _, key := range slices.Sorted(maps.Keys(fields)) {
			s.Set(item, key, fields[key])
		}
	}
	return s
}

// Get returns the raw value stored at item/key.
func (s *Store) Get(item, key string) (any, bool) {
	fields, ok := s.items[item]
	if !ok {
		return nil, false
	}
	v, ok := fields[key]
	return v, ok
}

// Has reports whether a value, even an empty one, is stored at item/key.
func (s *Store) Has(item, key string) bool {
	_, ok := s.Get(item, key)
	return ok
}

// Set stores value at item/key. Storing nil or an empty string keeps the key
// so an explicit clear stays distinguishable from "never set".
func (s *Store) Set(item, key string, value any) {
	fields, ok := s.items[item]
	if !ok {
		fields = make(map[string]any)
		s.items[item] = fields
		s.order = append(s.order, item)
	}
	fields[key] = value
}

// Delete removes item/key entirely.
func (s *Store) Delete(item, key string) {
	fields, ok := s.items[item]
	if !ok {
		return
	}
	delete(fields, key)
}

// Items returns item codes in insertion order.
func (s *Store) Items() []string {
	return slices.Clone(s.order)
}

// Item returns a copy of one item's field values.
func (s *Store) Item(code string) map[string]any {
	return maps.Clone(s.items[code])
}

// Populated reports whether any field of the item holds a non-empty value.
func (s *Store) Populated(item string) bool {
	for _, v := range s.items[item] {
		if !coerce.Empty(v) {
			return true
		}
	}
	return false
}

// Len returns the number of stored item/field values.
func (s *Store) Len() int {
	n := 0
	for _, fields := range s.items {
		n += len(fields)
	}
	return n
}

// FindField resolves key by checking item first, then every other item in
// insertion order. It returns the item the value was found in.
func (s *Store) FindField(key, item string) (any, string, bool) {
	if v, ok := s.Get(item, key); ok {
		return v, item, true
	}
	for _, code := range s.order {
		if code == item {
			continue
		}
		if v, ok := s.items[code][key]; ok {
			return v, code, true
		}
	}
	return nil, "", false
}

// Lookup implements formula.Resolver.
func (s *Store) Lookup(key, item string) (any, bool) {
	v, _, ok := s.FindField(key, item)
	return v, ok
}

// Snapshot returns a deep copy of the stored values.
func (s *Store) Snapshot() map[string]map[string]any {
	out := make(map[string]map[string]any, len(s.items))
	for code, fields := range s.items {
		copied := make(map[string]any, len(fields))
		for k, v := range fields {
			copied[k] = cloneValue(v)
		}
		out[code] = copied
	}
	return out
}

// Clone returns an independent copy of the store.
func (s *Store) Clone() *Store {
	out := New()
	for _, code := range s.order {
		for k, v := range s.items[code] {
			out.Set(code, k, cloneValue(v))
		}
		if _, ok := out.items[code]; !ok {
			out.items[code] = make(map[string]any)
			out.order = append(out.order, code)
		}
	}
	return out
}

// MarshalJSON encodes the nested item/field mapping.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return slices.Clone(t)
	case []any:
		return slices.Clone(t)
	default:
		return v
	}
}

// NormalizeFrom builds a store for section from caller-supplied data whose
// shape varies by section. Each field is resolved from, in order, a nested
// object at external[item][key], a flat value at external[key], or any
// top-level object (scanned in sorted key order) containing key. Fields with
// no match stay unset.
func NormalizeFrom(external map[string]any, section schema.Section) *Store {
	s := New()
	if len(external) == 0 {
		return s
	}

	scan := slices.Sorted(maps.Keys(external))
	for _, item := range section.Items {
		for _, field := range item.Fields {
			v, ok := resolveExternal(external, scan, item.Code, field.Key)
			if !ok {
				continue
			}
			switch field.Kind {
			case schema.KindMultiSelect:
				if list := coerce.Strings(v); list != nil {
					v = list
				}
			case schema.KindNumber:
				// Numeric text from query strings and forms is stored as a number.
				if text, isText := v.(string); isText {
					if n, ok := coerce.Number(text); ok {
						v = n
					}
				}
			}
			s.Set(item.Code, field.Key, v)
		}
	}
	return s
}

func resolveExternal(external map[string]any, scan []string, item, key string) (any, bool) {
	if nested, ok := coerce.Map(external[item]); ok {
		if v, ok := nested[key]; ok {
			return v, true
		}
	}
	if v, ok := external[key]; ok {
		if _, isObject := coerce.Map(v); !isObject {
			return v, true
		}
	}
	for _, top := range scan {
		nested, ok := coerce.Map(external[top])
		if !ok {
			continue
		}
		if v, ok := nested[key]; ok {
			return v, true
		}
	}
	return nil, false
}
