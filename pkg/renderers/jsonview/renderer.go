// Package jsonview renders a section view as JSON for API clients that
// draw the form themselves.
package jsonview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-consultform/pkg/render"
)

// Document is the JSON body produced by the renderer.
type Document struct {
	Action string               `json:"action,omitempty"`
	Method string               `json:"method,omitempty"`
	Hidden []render.HiddenField `json:"hidden,omitempty"`
	View   render.View          `json:"view"`
}

// Option configures the renderer.
type Option func(*Renderer)

// WithIndent pretty-prints the output with the given indent.
func WithIndent(indent string) Option {
	return func(r *Renderer) {
		r.indent = indent
	}
}

// Renderer implements render.Renderer for JSON.
type Renderer struct {
	indent string
}

var _ render.Renderer = (*Renderer)(nil)

// New constructs the renderer.
func New(options ...Option) *Renderer {
	r := &Renderer{}
	for _, opt := range options {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Name implements render.Renderer.
func (r *Renderer) Name() string {
	return "json"
}

// ContentType implements render.Renderer.
func (r *Renderer) ContentType() string {
	return "application/json"
}

// Render implements render.Renderer.
func (r *Renderer) Render(_ context.Context, view render.View, opts render.RenderOptions) ([]byte, error) {
	doc := Document{
		Action: opts.Action,
		Method: opts.Method,
		View:   render.ApplyErrors(view, opts.Errors),
	}
	doc.Hidden = render.SortedHiddenFields(render.MergeHiddenFields(opts.Hidden, render.Hidden(render.SessionField, view.SessionID)))

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if r.indent != "" {
		enc.SetIndent("", r.indent)
	}
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("json renderer: encode view: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
