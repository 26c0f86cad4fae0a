package tui

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/goliatone/go-consultform/internal/coerce"
	"github.com/goliatone/go-consultform/pkg/session"
)

func (f *Filler) serialize(payload session.Payload) ([]byte, error) {
	switch f.outputFormat {
	case OutputFormatFormURLEncoded:
		return []byte(flattenForm(payload)), nil
	case OutputFormatPrettyText:
		return []byte(prettyPrint(payload)), nil
	default:
		return json.Marshal(payload)
	}
}

func flattenForm(payload session.Payload) string {
	out := url.Values{}
	for item, fields := range payload {
		for key, value := range fields {
			name := item + "." + key
			if list, ok := value.([]string); ok {
				for _, v := range list {
					out.Add(name+"[]", v)
				}
				continue
			}
			out.Set(name, coerce.String(value))
		}
	}
	return out.Encode()
}

func prettyPrint(payload session.Payload) string {
	var b strings.Builder
	for _, item := range slices.Sorted(maps.Keys(payload)) {
		fields := payload[item]
		for _, key := range slices.Sorted(maps.Keys(fields)) {
			value := fields[key]
			if list, ok := value.([]string); ok {
				fmt.Fprintf(&b, "%s.%s=%s\n", item, key, strings.Join(list, ","))
				continue
			}
			fmt.Fprintf(&b, "%s.%s=%s\n", item, key, coerce.String(value))
		}
	}
	return b.String()
}
