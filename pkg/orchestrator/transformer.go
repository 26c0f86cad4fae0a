package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/goliatone/go-consultform/pkg/render"
)

// Transformer mutates a view after it is built and before it is rendered.
type Transformer interface {
	Transform(ctx context.Context, view *render.View) error
}

// TransformerFunc adapts plain functions to the Transformer interface.
type TransformerFunc func(ctx context.Context, view *render.View) error

// Transform executes the wrapped function when non-nil.
func (fn TransformerFunc) Transform(ctx context.Context, view *render.View) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, view)
}

// PresetTransformer applies per-field presentation overrides loaded from JSON:
//
//	{
//	  "fields": {
//	    "spo2.spo2": {"label": "O<sub>2</sub> sat", "placeholder": "95-100"}
//	  }
//	}
//
// Labels pass through the same sanitiser as template labels.
type PresetTransformer struct {
	fields map[string]fieldPatch
}

type presetDocument struct {
	Fields map[string]fieldPatch `json:"fields"`
}

type fieldPatch struct {
	Label       string `json:"label"`
	Placeholder string `json:"placeholder"`
}

// NewPresetTransformer parses a preset document.
func NewPresetTransformer(data []byte) (*PresetTransformer, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("preset transformer: document is empty")
	}
	var doc presetDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("preset transformer: parse document: %w", err)
	}
	return &PresetTransformer{fields: doc.Fields}, nil
}

// NewPresetTransformerFromFS loads a preset document from fsys.
func NewPresetTransformerFromFS(fsys fs.FS, path string) (*PresetTransformer, error) {
	if fsys == nil {
		return nil, errors.New("preset transformer: filesystem is nil")
	}
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("preset transformer: path is required")
	}
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("preset transformer: read %s: %w", path, err)
	}
	return NewPresetTransformer(data)
}

// Transform implements Transformer.
func (p *PresetTransformer) Transform(_ context.Context, view *render.View) error {
	if p == nil || view == nil || len(p.fields) == 0 {
		return nil
	}
	for ti := range view.Tiers {
		for gi := range view.Tiers[ti].Groups {
			cells := view.Tiers[ti].Groups[gi].Cells
			for ci := range cells {
				patch, ok := p.fields[cells[ci].Ref]
				if !ok {
					continue
				}
				if label := strings.TrimSpace(patch.Label); label != "" {
					cells[ci].Label = render.SanitizeLabel(label)
					cells[ci].PlainLabel = render.PlainLabel(label)
				}
				if patch.Placeholder != "" {
					cells[ci].Placeholder = patch.Placeholder
				}
			}
		}
	}
	return nil
}
