package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tiers.yaml
var defaultTiers []byte

// TierLists names the items shown by default for a section. Items in neither
// list are hidden until the user reveals them.
type TierLists struct {
	Required []string `yaml:"required" json:"required"`
	Optional []string `yaml:"optional" json:"optional"`
}

// TierConfig holds tier lists keyed by section code.
type TierConfig struct {
	Sections map[string]TierLists `yaml:"sections" json:"sections"`
}

// DefaultTierConfig returns the built-in tier lists.
func DefaultTierConfig() TierConfig {
	cfg, err := LoadTierConfig(bytes.NewReader(defaultTiers))
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded tiers are invalid: %v", err))
	}
	return cfg
}

// LoadTierConfig parses a YAML tier document. An item listed as both
// required and optional is rejected.
func LoadTierConfig(r io.Reader) (TierConfig, error) {
	var cfg TierConfig
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		if err == io.EOF {
			return TierConfig{Sections: map[string]TierLists{}}, nil
		}
		return TierConfig{}, fmt.Errorf("catalog: decode tiers: %w", err)
	}

	out := TierConfig{Sections: make(map[string]TierLists, len(cfg.Sections))}
	for code, lists := range cfg.Sections {
		code = strings.TrimSpace(code)
		required := set(lists.Required)
		for _, item := range lists.Optional {
			if _, dup := required[strings.TrimSpace(item)]; dup {
				return TierConfig{}, fmt.Errorf("catalog: section %s lists %q as both required and optional", code, item)
			}
		}
		out.Sections[code] = TierLists{
			Required: trimmed(lists.Required),
			Optional: trimmed(lists.Optional),
		}
	}
	return out, nil
}

// Merge returns a copy of c with the sections from other replacing any
// existing entry.
func (c TierConfig) Merge(other TierConfig) TierConfig {
	out := TierConfig{Sections: make(map[string]TierLists, len(c.Sections)+len(other.Sections))}
	for code, lists := range c.Sections {
		out.Sections[code] = lists
	}
	for code, lists := range other.Sections {
		out.Sections[code] = lists
	}
	return out
}

// Required returns the default-required item codes of a section.
func (c TierConfig) Required(section string) map[string]struct{} {
	return set(c.Sections[section].Required)
}

// Optional returns the default-optional item codes of a section.
func (c TierConfig) Optional(section string) map[string]struct{} {
	return set(c.Sections[section].Optional)
}

func set(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

func trimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
