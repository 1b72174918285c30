package historicalstore

import (
	"regexp"
	"strings"
)

// timestampRangeRe matches the Lucene-style range clause wrapKQL injects
// (`@timestamp:[from TO to)`), stripped whole before tokenizing so its "TO"
// and bound tokens can't be mistaken for query terms.
var timestampRangeRe = regexp.MustCompile(`@timestamp:\[[^\]]*\)`)

// parsedQuery is the reference stores' internal view of an opaque query
// string: just enough structure to drive a WHERE clause (Postgres) or an
// in-memory filter (tests). A production adapter (Elasticsearch,
// OpenSearch) would hand QueryString to its own query language instead of
// parsing it here — this is the small subset the bundled reference
// adapters need to stay useful for tests and single-node deployments.
type parsedQuery struct {
	eventType string
	filters   map[string]any
}

// parseQueryString interprets q.QueryString per its dialect. The
// dialect-specific timestamp-range clause Rewrite injects is recognized
// and discarded here — callers use q.TimeFrom/q.TimeTo for the time bound
// instead of re-parsing the embedded range.
func parseQueryString(q Query) parsedQuery {
	switch q.Dialect {
	case "esql":
		return parseESQL(q.QueryString)
	default:
		return parseKQL(q.QueryString)
	}
}

// parseKQL extracts field:value terms from a KQL-subset query string,
// treating a bare token as an event_type filter. Mirrors the predecessor's
// detection_engine.py query normalization closely enough to share rule
// definitions, without pulling in a full query-language parser.
func parseKQL(query string) parsedQuery {
	query = timestampRangeRe.ReplaceAllString(query, "")

	p := parsedQuery{filters: map[string]any{}}
	for _, term := range strings.Fields(query) {
		term = strings.Trim(term, "()")
		if term == "" || term == "AND" {
			continue
		}
		field, value, ok := strings.Cut(term, ":")
		if !ok {
			p.eventType = term
			continue
		}
		if field == "event_type" {
			p.eventType = value
			continue
		}
		p.filters[field] = value
	}
	return p
}

// parseESQL extracts field == "value" conditions from the WHERE stages of
// an ES|QL-style pipeline (`FROM idx | WHERE field == "value" AND ...`),
// ignoring every other stage.
func parseESQL(query string) parsedQuery {
	p := parsedQuery{filters: map[string]any{}}
	for _, stage := range strings.Split(query, "|") {
		stage = strings.TrimSpace(stage)
		if !strings.HasPrefix(strings.ToUpper(stage), "WHERE") {
			continue
		}
		clause := strings.TrimSpace(stage[len("WHERE"):])
		for _, cond := range strings.Split(clause, " AND ") {
			field, value, ok := splitESQLCondition(strings.TrimSpace(cond))
			if !ok {
				continue
			}
			switch field {
			case "@timestamp":
				continue
			case "event_type":
				p.eventType = value
			default:
				p.filters[field] = value
			}
		}
	}
	return p
}

// splitESQLCondition splits a `field OP value` condition, checking two-byte
// operators before their one-byte prefixes so ">=" isn't mistaken for "=".
func splitESQLCondition(cond string) (field, value string, ok bool) {
	for _, op := range []string{"==", ">=", "<=", "!=", "=", ">", "<"} {
		idx := strings.Index(cond, op)
		if idx < 0 {
			continue
		}
		field = strings.TrimSpace(cond[:idx])
		value = strings.Trim(strings.TrimSpace(cond[idx+len(op):]), `"`)
		return field, value, true
	}
	return "", "", false
}
