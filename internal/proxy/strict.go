package proxy

import "encoding/json"

// StrictCompatible reports whether schema can be sent as strict structured
// output: every object forbids additional properties and requires all of the
// properties it declares.
func StrictCompatible(schema json.RawMessage) bool {
	var doc any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return false
	}
	return closed(doc)
}

func closed(node any) bool {
	switch n := node.(type) {
	case []any:
		for _, v := range n {
			if !closed(v) {
				return false
			}
		}
	case map[string]any:
		if n["type"] == "object" {
			if n["additionalProperties"] != false {
				return false
			}
			required := make(map[string]bool)
			list, _ := n["required"].([]any)
			for _, r := range list {
				if name, ok := r.(string); ok {
					required[name] = true
				}
			}
			props, _ := n["properties"].(map[string]any)
			for name := range props {
				if !required[name] {
					return false
				}
			}
		}
		for _, v := range n {
			if !closed(v) {
				return false
			}
		}
	}
	return true
}
