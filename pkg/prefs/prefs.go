// Package prefs persists small per-user preferences, such as which hidden
// items a clinician habitually reveals, behind a key-value interface.
package prefs

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// RevealedVitalsKey stores the ordered item codes revealed in the vitals
// section.
const RevealedVitalsKey = "consultform.vitals.revealed_items"

// RevealedKey returns the key holding revealed item codes for a section.
func RevealedKey(section string) string {
	return "consultform." + section + ".revealed_items"
}

// Store reads and writes ordered string sets by key. A missing key reads as
// an empty set.
type Store interface {
	Get(ctx context.Context, key string) ([]string, error)
	Put(ctx context.Context, key string, values []string) error
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]string)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.values[key]), nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = orderedSet(values)
	return nil
}

// orderedSet trims and de-duplicates values keeping first occurrence order.
func orderedSet(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
