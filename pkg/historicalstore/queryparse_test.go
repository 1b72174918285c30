package historicalstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKQL_StripsInjectedTimestampRange(t *testing.T) {
	p := parseKQL(`(event_type:auth_failure user:alice) AND @timestamp:[2024-01-01T00:00:00Z TO 2024-01-01T01:00:00Z)`)
	assert.Equal(t, "auth_failure", p.eventType)
	assert.Equal(t, "alice", p.filters["user"])
	_, hasTimestampFilter := p.filters["@timestamp"]
	assert.False(t, hasTimestampFilter)
}

func TestParseKQL_BareTokenIsEventType(t *testing.T) {
	p := parseKQL("auth_failure")
	assert.Equal(t, "auth_failure", p.eventType)
	assert.Empty(t, p.filters)
}

func TestParseESQL_ExtractsWhereConditions(t *testing.T) {
	p := parseESQL(`FROM auth-logs | WHERE event_type == "auth_failure" AND user == "alice" AND @timestamp >= "2024-01-01T00:00:00Z" AND @timestamp < "2024-01-01T01:00:00Z"`)
	assert.Equal(t, "auth_failure", p.eventType)
	assert.Equal(t, "alice", p.filters["user"])
	_, hasTimestampFilter := p.filters["@timestamp"]
	assert.False(t, hasTimestampFilter)
}

func TestParseESQL_NoWhereStage(t *testing.T) {
	p := parseESQL("FROM auth-logs")
	assert.Empty(t, p.eventType)
	assert.Empty(t, p.filters)
}
