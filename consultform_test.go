package consultform_test

import (
	"context"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	consultform "github.com/goliatone/go-consultform"
	"github.com/goliatone/go-consultform/pkg/orchestrator"
	"github.com/goliatone/go-consultform/pkg/schema"
	"github.com/goliatone/go-consultform/pkg/testsupport"
)

func TestEmbeddedTemplates(t *testing.T) {
	t.Parallel()

	data, err := fs.ReadFile(consultform.EmbeddedTemplates(), "templates/section.tpl")
	require.NoError(t, err)
	require.Contains(t, string(data), "consult-section")
}

func TestGenerateWithFSLoader(t *testing.T) {
	t.Parallel()

	files := fstest.MapFS{"template.json": {Data: testsupport.TemplateJSON()}}
	opts := []orchestrator.Option{
		orchestrator.WithLoader(consultform.NewLoader(schema.WithFileSystem(files))),
		orchestrator.WithSource(schema.SourceFromFS("template.json")),
	}

	html, err := consultform.GenerateHTML(context.Background(), "examination", map[string]any{"systolic": 118}, opts...)
	require.NoError(t, err)
	require.Contains(t, string(html), `name="blood_pressure.systolic" value="118"`)

	doc, err := consultform.GenerateJSON(context.Background(), "examination", nil, opts...)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(doc), "{"))
}
