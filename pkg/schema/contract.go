package schema

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed contract.yaml
var contractDocument []byte

const responseSchemaName = "TemplateResponse"

var (
	contractOnce   sync.Once
	contractSchema *openapi3.Schema
	contractErr    error
)

func responseSchema(ctx context.Context) (*openapi3.Schema, error) {
	contractOnce.Do(func() {
		loader := openapi3.NewLoader()
		loader.Context = ctx
		doc, err := loader.LoadFromData(contractDocument)
		if err != nil {
			contractErr = fmt.Errorf("schema: load contract: %w", err)
			return
		}
		if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
			contractErr = fmt.Errorf("schema: validate contract: %w", err)
			return
		}
		ref := doc.Components.Schemas[responseSchemaName]
		if ref == nil || ref.Value == nil {
			contractErr = fmt.Errorf("schema: contract is missing %s", responseSchemaName)
			return
		}
		contractSchema = ref.Value
	})
	return contractSchema, contractErr
}

// CheckResponse validates a raw template fetch response against the
// published response contract before it is decoded.
func CheckResponse(ctx context.Context, raw []byte) error {
	schema, err := responseSchema(ctx)
	if err != nil {
		return err
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: response is not JSON: %w", ErrInvalidTemplate, err)
	}
	if err := schema.VisitJSON(payload); err != nil {
		return fmt.Errorf("%w: response contract: %w", ErrInvalidTemplate, err)
	}
	return nil
}
