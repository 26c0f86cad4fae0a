// Package consultform renders and validates the sections of a remotely
// defined consultation template. The root package re-exports the common
// entry points; see pkg/orchestrator for the full API.
package consultform

import (
	"io/fs"

	"github.com/goliatone/go-consultform/pkg/renderers/html"
)

// EmbeddedTemplates exposes the built-in HTML renderer templates so callers
// can copy or extend them and pass the result to html.WithTemplatesFS.
func EmbeddedTemplates() fs.FS {
	return html.TemplatesFS()
}
