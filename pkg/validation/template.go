package validation

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-consultform/pkg/schema"
)

// TemplateIssue is one problem found in a template document, with the
// location it was found at when known.
type TemplateIssue struct {
	Path    string `json:"path,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// TemplateCheckResult collects every issue found in a template document.
type TemplateCheckResult struct {
	Valid    bool            `json:"valid"`
	Issues   []TemplateIssue `json:"issues,omitempty"`
	Sections []string        `json:"sections,omitempty"`
}

// CheckTemplate validates raw against the response contract and then the
// decoded template invariants. It never returns an error; problems are
// reported as issues.
func CheckTemplate(ctx context.Context, src schema.Source, raw []byte) TemplateCheckResult {
	result := TemplateCheckResult{Valid: true}
	if src == nil {
		src = schema.SourceFromFS("template.json")
	}

	doc, err := schema.NewDocument(src, raw)
	if err != nil {
		result.Valid = false
		result.Issues = []TemplateIssue{{Message: err.Error()}}
		return result
	}

	if err := schema.CheckResponse(ctx, doc.Raw()); err != nil {
		result.Valid = false
		result.Issues = issuesFromError(err)
		return result
	}

	tpl, err := schema.Decode(doc)
	if err != nil {
		result.Valid = false
		result.Issues = issuesFromError(err)
		return result
	}
	result.Sections = tpl.SectionCodes()
	return result
}

func issuesFromError(err error) []TemplateIssue {
	if err == nil {
		return []TemplateIssue{{Message: "unknown error"}}
	}

	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		pointer := schemaErr.JSONPointer()
		return []TemplateIssue{{
			Path:    "/" + strings.Join(pointer, "/"),
			Field:   fieldPathFromPointer(pointer),
			Message: strings.TrimSpace(schemaErr.Reason),
		}}
	}

	var out []TemplateIssue
	for _, leaf := range leaves(err) {
		out = append(out, issueFromMessage(leaf.Error()))
	}
	if len(out) == 0 {
		out = append(out, issueFromMessage(err.Error()))
	}
	return out
}

// leaves flattens joined errors, dropping the sentinel wrapper.
func leaves(err error) []error {
	var multi interface{ Unwrap() []error }
	if !errors.As(err, &multi) {
		return []error{err}
	}
	var out []error
	for _, child := range multi.Unwrap() {
		if child == schema.ErrInvalidTemplate {
			continue
		}
		out = append(out, leaves(child)...)
	}
	return out
}

// issueFromMessage splits "vitals.anthropometry.bmi: message" style errors.
func issueFromMessage(message string) TemplateIssue {
	msg := strings.TrimSpace(message)
	msg = strings.TrimPrefix(msg, "schema: ")
	msg = strings.TrimPrefix(msg, "invalid template: ")

	head, tail, ok := strings.Cut(msg, ": ")
	if !ok || strings.ContainsAny(head, " \"") {
		return TemplateIssue{Message: msg}
	}
	return TemplateIssue{Field: head, Message: strings.TrimSpace(tail)}
}

func fieldPathFromPointer(pointer []string) string {
	var b strings.Builder
	for _, segment := range pointer {
		if segment == "" {
			continue
		}
		if _, err := strconv.Atoi(segment); err == nil {
			b.WriteString("[" + segment + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(segment)
	}
	return b.String()
}
