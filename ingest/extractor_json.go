package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Compile-time interface check.
var _ Extractor = JSONExtractor{}

// JSONExtractor implements Extractor for JSON documents. It recursively
// flattens arbitrary JSON structures into readable "key: value" lines,
// one text block per top-level key so related fields chunk together.
type JSONExtractor struct{}

// maxJSONDepth limits recursion in flatten to prevent stack overflow
// from deeply nested JSON input.
const maxJSONDepth = 100

func (JSONExtractor) Extract(content []byte) ([]TextBlock, error) {
	content = bytes.TrimSpace(content)
	if len(content) == 0 {
		return nil, nil
	}
	var data any
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	switch val := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var blocks []TextBlock
		for _, k := range keys {
			var lines []string
			flattenJSON(k, val[k], &lines, 0)
			if len(lines) > 0 {
				blocks = append(blocks, TextBlock{Text: strings.Join(lines, "\n"), Section: k})
			}
		}
		return blocks, nil
	case []any:
		var blocks []TextBlock
		for _, item := range val {
			var lines []string
			flattenJSON("", item, &lines, 0)
			if len(lines) > 0 {
				blocks = append(blocks, TextBlock{Text: strings.Join(lines, "\n")})
			}
		}
		return blocks, nil
	default:
		var lines []string
		flattenJSON("", data, &lines, 0)
		if len(lines) == 0 {
			return nil, nil
		}
		return []TextBlock{{Text: strings.Join(lines, "\n")}}, nil
	}
}

func flattenJSON(prefix string, v any, lines *[]string, depth int) {
	if depth >= maxJSONDepth {
		label := prefix
		if label == "" {
			label = "value"
		}
		*lines = append(*lines, fmt.Sprintf("%s: <truncated>", label))
		return
	}
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenJSON(key, val[k], lines, depth+1)
		}
	case []any:
		if allPrimitive(val) {
			strs := make([]string, len(val))
			for i, item := range val {
				strs[i] = formatJSONValue(item)
			}
			*lines = append(*lines, fmt.Sprintf("%s: %s", prefix, strings.Join(strs, ", ")))
		} else {
			for _, item := range val {
				flattenJSON(prefix, item, lines, depth+1)
			}
		}
	case nil:
		// skip null values
	default:
		label := prefix
		if label == "" {
			label = "value"
		}
		*lines = append(*lines, fmt.Sprintf("%s: %s", label, formatJSONValue(val)))
	}
}

func allPrimitive(arr []any) bool {
	for _, v := range arr {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

// formatJSONValue formats a primitive JSON value as a string.
func formatJSONValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", val)
	}
}
