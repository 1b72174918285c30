package alertgen

import (
	"encoding/json"
	"strings"

	"github.com/sentineld/sentineld/pkg/models"
)

// encodeTextArray renders a Go string slice as a Postgres TEXT[] literal.
// Tags/identifiers here are plain words in practice, so no escaping of
// embedded commas or braces is attempted (see rulestore's equivalent).
func encodeTextArray(values []string) string {
	return "{" + strings.Join(values, ",") + "}"
}

func decodeTextArray(lit string) []string {
	lit = strings.TrimPrefix(lit, "{")
	lit = strings.TrimSuffix(lit, "}")
	if lit == "" {
		return nil
	}
	return strings.Split(lit, ",")
}

func jsonOrEmpty(v any) []byte {
	if v == nil {
		return []byte("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}

func parseEntities(raw []byte) map[string]any {
	var m map[string]any
	if len(raw) == 0 {
		return nil
	}
	_ = json.Unmarshal(raw, &m)
	return m
}

func parseEvents(raw []byte) []models.Event {
	var events []models.Event
	if len(raw) == 0 {
		return nil
	}
	_ = json.Unmarshal(raw, &events)
	return events
}
