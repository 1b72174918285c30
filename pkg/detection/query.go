// Package detection implements the detection engine: dialect-specific
// query rewriting, threshold evaluation, and deadline-bound execution of
// detection rules against the historical store.
package detection

import (
	"fmt"
	"strings"
	"time"

	"github.com/sentineld/sentineld/pkg/config"
	"github.com/sentineld/sentineld/pkg/historicalstore"
	"github.com/sentineld/sentineld/pkg/models"
)

// Rewrite wraps a rule's raw query string with a dialect-specific
// timestamp-range clause scoped to the rule's lookback window, and hands
// the result to the store as an opaque string. It never parses the query
// into structured filters — only the store (which knows its own query
// language) interprets the string's syntax. This mirrors the predecessor's
// detection_engine.py, which likewise forwarded the analyst-authored query
// to the search backend untouched aside from the injected time bound.
func Rewrite(rule *models.Rule, now time.Time) (historicalstore.Query, error) {
	dialect := config.QueryDialect(rule.Dialect)
	if rule.Dialect != "" && !dialect.IsValid() {
		return historicalstore.Query{}, fmt.Errorf("unknown query dialect %q", rule.Dialect)
	}

	since := now.Add(-time.Duration(rule.LookbackSec) * time.Second)

	var wrapped string
	switch dialect {
	case config.DialectESQL:
		wrapped = wrapESQL(rule.Query, since, now)
	default:
		wrapped = wrapKQL(rule.Query, since, now)
	}

	return historicalstore.Query{
		Indices:     rule.Indices,
		QueryString: wrapped,
		Dialect:     string(dialect),
		TimeFrom:    since,
		TimeTo:      now,
		Sort:        "-timestamp",
	}, nil
}

// wrapKQL appends a Lucene-style range clause on @timestamp, the syntax a
// KQL/Lucene backend expects for a half-open time bound.
func wrapKQL(query string, from, to time.Time) string {
	clause := fmt.Sprintf("@timestamp:[%s TO %s)", formatRangeBound(from), formatRangeBound(to))
	if query == "" {
		return clause
	}
	return fmt.Sprintf("(%s) AND %s", query, clause)
}

// wrapESQL appends a WHERE pipeline stage bounding @timestamp, unless the
// rule's own query already references @timestamp (an analyst who wrote
// their own time filter shouldn't get a second, conflicting one stacked on
// top).
func wrapESQL(query string, from, to time.Time) string {
	if strings.Contains(query, "@timestamp") {
		return query
	}
	clause := fmt.Sprintf(`WHERE @timestamp >= "%s" AND @timestamp < "%s"`, formatRangeBound(from), formatRangeBound(to))
	if query == "" {
		return clause
	}
	return query + " | " + clause
}

func formatRangeBound(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
