// Package testsupport exposes the sample consultation template and tier
// configuration used across package tests and examples.
package testsupport

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-consultform/pkg/schema"
)

//go:embed testdata/template.json testdata/tiers.yaml
var fixtures embed.FS

const (
	TemplateFixture = "testdata/template.json"
	TiersFixture    = "testdata/tiers.yaml"
)

// FS exposes the embedded fixtures so loaders can read them through
// schema.SourceFromFS.
func FS() embed.FS {
	return fixtures
}

// TemplateJSON returns the raw sample template fetch response.
func TemplateJSON() []byte {
	data, err := fixtures.ReadFile(TemplateFixture)
	if err != nil {
		panic(fmt.Sprintf("testsupport: read template fixture: %v", err))
	}
	return data
}

// TiersYAML returns the raw tier configuration matching the sample template.
func TiersYAML() []byte {
	data, err := fixtures.ReadFile(TiersFixture)
	if err != nil {
		panic(fmt.Sprintf("testsupport: read tiers fixture: %v", err))
	}
	return data
}

// TemplateDocument wraps the sample template in a schema.Document.
func TemplateDocument() schema.Document {
	return schema.MustNewDocument(schema.SourceFromFS(TemplateFixture), TemplateJSON())
}

// MustTemplate decodes the sample template, failing the test on error.
func MustTemplate(t testing.TB) *schema.Template {
	t.Helper()

	tpl, err := schema.Decode(TemplateDocument())
	if err != nil {
		t.Fatalf("decode template fixture: %v", err)
	}
	return tpl
}

// MustSection returns one section of the sample template.
func MustSection(t testing.TB, code string) schema.Section {
	t.Helper()

	section, ok := MustTemplate(t).Section(code)
	if !ok {
		t.Fatalf("section %q not in template fixture", code)
	}
	return section
}

// StaticLoader serves the sample template for every source and counts how
// many times it was asked.
type StaticLoader struct {
	Payload []byte
	Err     error

	calls atomic.Int32
}

// Calls reports how many times Load ran.
func (l *StaticLoader) Calls() int {
	return int(l.calls.Load())
}

// Load implements schema.Loader.
func (l *StaticLoader) Load(ctx context.Context, src schema.Source) (schema.Document, error) {
	l.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return schema.Document{}, err
	}
	if l.Err != nil {
		return schema.Document{}, l.Err
	}
	payload := l.Payload
	if payload == nil {
		payload = TemplateJSON()
	}
	return schema.NewDocument(src, payload)
}

// AssertJSON compares value against a JSON golden string.
func AssertJSON(t testing.TB, want string, got any) {
	t.Helper()

	var wantValue, gotValue any
	if err := json.Unmarshal([]byte(want), &wantValue); err != nil {
		t.Fatalf("unmarshal expected JSON: %v", err)
	}
	payload, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal actual value: %v", err)
	}
	if err := json.Unmarshal(payload, &gotValue); err != nil {
		t.Fatalf("unmarshal actual JSON: %v", err)
	}
	if diff := cmp.Diff(wantValue, gotValue); diff != "" {
		t.Fatalf("JSON mismatch (-want +got):\n%s", diff)
	}
}
