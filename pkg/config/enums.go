package config

// BackpressurePolicy determines what the event buffer does when a stream
// hits its configured maxlen.
type BackpressurePolicy string

const (
	// BackpressureDropOldest trims the stream (approximate XTRIM), discarding
	// the oldest entries to make room for new ones.
	BackpressureDropOldest BackpressurePolicy = "drop_oldest"
	// BackpressureRejectNew refuses new publishes once the stream is full.
	BackpressureRejectNew BackpressurePolicy = "reject_new"
)

// IsValid reports whether p is a known backpressure policy.
func (p BackpressurePolicy) IsValid() bool {
	return p == BackpressureDropOldest || p == BackpressureRejectNew
}

// QueryDialect selects the query-rewriting strategy the detection engine
// applies before handing a rule's query to the historical store.
type QueryDialect string

const (
	// DialectKQLSubset is a Lucene/KQL-style `field:value` term syntax.
	DialectKQLSubset QueryDialect = "kql"
	// DialectESQL is an ES|QL-style pipelined syntax (`FROM ... | WHERE ...`).
	DialectESQL QueryDialect = "esql"
)

// IsValid reports whether d is a known query dialect.
func (d QueryDialect) IsValid() bool {
	return d == DialectKQLSubset || d == DialectESQL
}
