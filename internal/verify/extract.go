package verify

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Extract walks a dot-separated path through a JSON document. Array elements
// are addressed by index. Missing segments and empty, zero or false values
// are misses. Objects and arrays come back as compact JSON.
func Extract(body []byte, path string) (string, bool) {
	if path == "" {
		return "", false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}

	for _, seg := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return "", false
			}
			v = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return "", false
			}
			v = node[i]
		default:
			return "", false
		}
	}
	return stringify(v)
}

func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, x != ""
	case bool:
		if !x {
			return "", false
		}
		return "true", true
	case json.Number:
		if f, err := x.Float64(); err == nil && f == 0 {
			return "", false
		}
		return x.String(), true
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
}
