package render

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	labelPolicyOnce sync.Once
	labelPolicy     *bluemonday.Policy
)

// SanitizeLabel keeps the inline markup templates use in labels (for
// example SpO<sub>2</sub>) and strips everything else.
func SanitizeLabel(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(labelSanitizer().Sanitize(trimmed))
}

func labelSanitizer() *bluemonday.Policy {
	labelPolicyOnce.Do(func() {
		policy := bluemonday.StrictPolicy()
		policy.AllowElements("sub", "sup", "em", "strong", "b", "i", "abbr", "small")
		policy.AllowAttrs("title").OnElements("abbr")
		labelPolicy = policy
	})
	return labelPolicy
}

// PlainLabel strips all markup, for terminals and other text-only output.
func PlainLabel(raw string) string {
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(strings.TrimSpace(raw)))
}
