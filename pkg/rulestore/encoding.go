package rulestore

import (
	"encoding/json"
	"strings"
)

// encodeTextArray renders a Go string slice as a Postgres TEXT[] literal.
// Tag values are plain identifiers/words in practice; this does not attempt
// to escape embedded commas or braces.
func encodeTextArray(vals []string) string {
	if len(vals) == 0 {
		return "{}"
	}
	return "{" + strings.Join(vals, ",") + "}"
}

// decodeTextArray parses the Postgres TEXT[] literal produced by encodeTextArray.
func decodeTextArray(lit string) []string {
	lit = strings.TrimPrefix(lit, "{")
	lit = strings.TrimSuffix(lit, "}")
	if lit == "" {
		return nil
	}
	return strings.Split(lit, ",")
}

func jsonOrEmpty(m map[string]any) []byte {
	if m == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func parseJSONMap(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
