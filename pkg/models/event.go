package models

import "time"

// Event is a single normalized security/observability event flowing through
// the event buffer. Produced by connectors (out of scope here), consumed
// by the detection engine, correlation engine, and the historical store
// indexer.
type Event struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	EventType string         `json:"event_type"`
	EntityKey string         `json:"entity_key"`
	Timestamp time.Time      `json:"timestamp"`
	IngestAt  time.Time      `json:"ingest_at"`
	Fields    map[string]any `json:"fields"`
	Tags      []string       `json:"tags,omitempty"`
}
