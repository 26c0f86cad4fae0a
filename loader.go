package consultform

import (
	internalLoader "github.com/goliatone/go-consultform/internal/schema/loader"
	"github.com/goliatone/go-consultform/pkg/schema"
)

// NewLoader constructs a template loader using the internal implementation
// while keeping the concrete type hidden from consumers.
func NewLoader(options ...schema.LoaderOption) schema.Loader {
	cfg := schema.NewLoaderOptions(options...)
	return internalLoader.New(cfg)
}
