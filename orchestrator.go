package consultform

import (
	"context"

	"github.com/goliatone/go-consultform/pkg/orchestrator"
	"github.com/goliatone/go-consultform/pkg/render"
	"github.com/goliatone/go-consultform/pkg/session"
)

// RenderOptions describes per-request data renderers use: form action,
// hidden fields and server-side validation errors.
type RenderOptions = render.RenderOptions

// Session aliases session.Session for callers driving a form directly.
type Session = session.Session

// Result is the outcome of a submit.
type Result = session.Result

// Payload is the nested save payload keyed by item code then field key.
type Payload = session.Payload

// Request describes a one-shot section render.
type Request = orchestrator.Request

// NewOrchestrator exposes the orchestrator constructor from the top-level
// module.
func NewOrchestrator(options ...orchestrator.Option) *orchestrator.Orchestrator {
	return orchestrator.New(options...)
}

// GenerateHTML fetches the template, opens a throwaway session for section
// seeded from values, and renders it as an HTML form. It is the simplest
// entry point for callers that just want markup.
func GenerateHTML(ctx context.Context, section string, values map[string]any, options ...orchestrator.Option) ([]byte, error) {
	gen := orchestrator.New(options...)
	return gen.Generate(ctx, orchestrator.Request{
		Section:  section,
		Values:   values,
		Renderer: "html",
	})
}

// GenerateJSON is GenerateHTML for the JSON view document.
func GenerateJSON(ctx context.Context, section string, values map[string]any, options ...orchestrator.Option) ([]byte, error) {
	gen := orchestrator.New(options...)
	return gen.Generate(ctx, orchestrator.Request{
		Section:  section,
		Values:   values,
		Renderer: "json",
	})
}
