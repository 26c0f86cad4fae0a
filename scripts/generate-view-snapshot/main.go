package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	consultform "github.com/goliatone/go-consultform"
	"github.com/goliatone/go-consultform/pkg/orchestrator"
	"github.com/goliatone/go-consultform/pkg/render"
	"github.com/goliatone/go-consultform/pkg/schema"
)

const snapshotRendererName = "view-snapshot"

// snapshotRenderer writes the resolved view of each rendered section to dir.
type snapshotRenderer struct {
	dir string
}

func (r *snapshotRenderer) Name() string {
	return snapshotRendererName
}

func (r *snapshotRenderer) ContentType() string {
	return "application/json"
}

func (r *snapshotRenderer) Render(_ context.Context, view render.View, _ render.RenderOptions) ([]byte, error) {
	view.SessionID = ""
	payload, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return nil, err
	}
	payload = append(payload, '\n')
	if err := os.WriteFile(filepath.Join(r.dir, view.Section+".json"), payload, 0o644); err != nil {
		return nil, err
	}
	return payload, nil
}

func main() {
	var (
		templatePath = flag.String("template", "pkg/testsupport/testdata/template.json", "template fetch response")
		outputDir    = flag.String("output", "pkg/render/testdata/views", "directory for the view snapshots")
	)
	flag.Parse()

	ctx := context.Background()

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output dir: %v\n", err)
		os.Exit(1)
	}

	registry := render.NewRegistry()
	registry.MustRegister(&snapshotRenderer{dir: *outputDir})

	orch := orchestrator.New(
		orchestrator.WithLoader(consultform.NewLoader()),
		orchestrator.WithSource(schema.SourceFromFile(*templatePath)),
		orchestrator.WithRegistry(registry),
		orchestrator.WithDefaultRenderer(snapshotRendererName),
	)

	cat, err := orch.Catalog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build catalog: %v\n", err)
		os.Exit(1)
	}
	tpl, err := cat.Fetch(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch template: %v\n", err)
		os.Exit(1)
	}

	for _, code := range tpl.SectionCodes() {
		if _, err := orch.Generate(ctx, orchestrator.Request{Section: code}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to snapshot %s: %v\n", code, err)
			os.Exit(1)
		}
	}

	fmt.Printf("✓ Wrote %d view snapshots to %s\n", len(tpl.SectionCodes()), *outputDir)
}
