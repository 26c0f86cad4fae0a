// Package render turns an open form session into a renderer-neutral view
// and hosts the renderer registry and shared helpers used by the concrete
// renderers under pkg/renderers.
package render

import (
	"context"
)

// Renderer converts a View into bytes (HTML, JSON, ...).
type Renderer interface {
	Name() string
	ContentType() string
	Render(ctx context.Context, view View, options RenderOptions) ([]byte, error)
}
