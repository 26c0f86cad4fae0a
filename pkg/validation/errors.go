package validation

import (
	"maps"
	"slices"
)

// Errors maps "item.key" field references to messages.
type Errors map[string]string

// Add records message for ref, keeping the first message reported.
func (e Errors) Add(ref, message string) {
	if _, exists := e[ref]; exists {
		return
	}
	e[ref] = message
}

// Has reports whether ref carries a message.
func (e Errors) Has(ref string) bool {
	_, ok := e[ref]
	return ok
}

// Keys returns the references in sorted order.
func (e Errors) Keys() []string {
	return slices.Sorted(maps.Keys(e))
}

// Clone returns a copy of the set.
func (e Errors) Clone() Errors {
	if e == nil {
		return Errors{}
	}
	return maps.Clone(e)
}
