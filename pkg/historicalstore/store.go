// Package historicalstore defines the opaque search/count contract the
// detection engine queries against, plus one PostgreSQL-backed
// reference adapter for tests and small deployments. Production
// deployments inject their own adapter (Elasticsearch, OpenSearch, ...).
package historicalstore

import (
	"context"
	"time"
)

// Hit is one matching record returned by Search.
type Hit struct {
	EventID   string
	Timestamp time.Time
	Fields    map[string]any
}

// Query is the opaque search request pkg/detection's query rewriter
// builds from a rule's raw query string: QueryString is handed to the
// store untouched except for the dialect-specific timestamp-range clause
// Rewrite wraps it in. The detection engine never parses the query itself
// into structured filters — only the store (which knows its own backend's
// query language) interprets QueryString's syntax.
type Query struct {
	Indices     []string  // indices/tables to search, from the rule definition
	QueryString string    // opaque, dialect-specific, already time-wrapped
	Dialect     string     // "kql" or "esql"
	TimeFrom    time.Time // redundant with the embedded range, for backends that prefer structured bounds
	TimeTo      time.Time
	Size        int
	Sort        string // e.g. "-timestamp"; PostgresStore ignores it and always sorts by timestamp desc, MemoryStore keeps slice order
}

// Store is the contract the detection engine depends on. Search returns up
// to Size matching hits ordered per Sort; Count returns the full match
// count regardless of Size (used for threshold evaluation when the hit set
// itself is truncated). Implementations own all interpretation of
// QueryString — a Postgres reference adapter, Elasticsearch, OpenSearch,
// or any other backend that understands the named Dialect.
type Store interface {
	Search(ctx context.Context, q Query) ([]Hit, error)
	Count(ctx context.Context, q Query) (int64, error)
}
