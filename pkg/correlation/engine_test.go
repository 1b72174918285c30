package correlation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentineld/sentineld/pkg/models"
)

func TestEntityKeyFor(t *testing.T) {
	rule := &models.CorrelationRule{EntityKeyFields: []string{"host", "user"}}

	key, ok := entityKeyFor(rule, map[string]any{"host": "h1", "user": "alice"})
	assert.True(t, ok)
	assert.Equal(t, "h1|alice", key)

	_, ok = entityKeyFor(rule, map[string]any{"host": "h1"})
	assert.False(t, ok, "missing user field should drop the event for this rule")

	_, ok = entityKeyFor(&models.CorrelationRule{}, map[string]any{"host": "h1"})
	assert.False(t, ok, "a rule with no entity_key_fields never matches")
}

func brutesForceRule() *models.CorrelationRule {
	return &models.CorrelationRule{
		ID:              "brute-force",
		EntityKeyFields: []string{"user"},
		WindowSeconds:   300,
		Stages: []models.CorrelationStage{
			{EventType: "auth_failure"},
			{EventType: "auth_success"},
		},
	}
}

func TestMatchesOpeningStage_Strict(t *testing.T) {
	rule := brutesForceRule()
	assert.True(t, matchesOpeningStage(rule, "auth_failure", nil))
	assert.False(t, matchesOpeningStage(rule, "auth_success", nil), "strict order can only open on stage 0")
}

func TestMatchesOpeningStage_AnyOrder(t *testing.T) {
	rule := brutesForceRule()
	rule.StageOrder = models.StageOrderAnyOrder
	assert.True(t, matchesOpeningStage(rule, "auth_failure", nil))
	assert.True(t, matchesOpeningStage(rule, "auth_success", nil))
	assert.False(t, matchesOpeningStage(rule, "other", nil))
}

func TestMatchStage_Strict_OnlyAcceptsFirstUnsatisfied(t *testing.T) {
	rule := brutesForceRule()
	row := &models.StateRow{StageCounts: []int{0, 0}}

	idx, ok := matchStage(rule, row, "auth_success", nil)
	assert.False(t, ok, "stage 1 can't be credited before stage 0 is satisfied")

	idx, ok = matchStage(rule, row, "auth_failure", nil)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	row.StageCounts[0] = 1
	idx, ok = matchStage(rule, row, "auth_success", nil)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestMatchStage_AnyOrder(t *testing.T) {
	rule := brutesForceRule()
	rule.StageOrder = models.StageOrderAnyOrder
	row := &models.StateRow{StageCounts: []int{0, 0}}

	idx, ok := matchStage(rule, row, "auth_success", nil)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestMatchStage_MinCountPerStage(t *testing.T) {
	rule := brutesForceRule()
	rule.MinCountPerStage = 2
	row := &models.StateRow{StageCounts: []int{2, 0}}

	_, ok := matchStage(rule, row, "auth_failure", nil)
	assert.False(t, ok, "stage 0 already met min_count_per_stage")

	idx, ok := matchStage(rule, row, "auth_success", nil)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestRecordDistinct(t *testing.T) {
	row := &models.StateRow{}

	assert.True(t, recordDistinct(row, "source_ip", map[string]any{"source_ip": "10.0.0.1"}))
	assert.True(t, recordDistinct(row, "source_ip", map[string]any{"source_ip": "10.0.0.2"}))
	assert.False(t, recordDistinct(row, "source_ip", map[string]any{"source_ip": "10.0.0.1"}), "repeat value shouldn't count again")
}

func TestRecordDistinct_MissingFieldAlwaysCounts(t *testing.T) {
	row := &models.StateRow{}
	assert.True(t, recordDistinct(row, "source_ip", map[string]any{}))
	assert.True(t, recordDistinct(row, "source_ip", map[string]any{}))
}

func TestParseEventTime(t *testing.T) {
	_, ok := parseEventTime(map[string]any{"timestamp": "not-a-time"})
	assert.False(t, ok)

	_, ok = parseEventTime(map[string]any{})
	assert.False(t, ok)

	ts, ok := parseEventTime(map[string]any{"timestamp": "2024-01-01T00:00:00Z"})
	assert.True(t, ok)
	assert.Equal(t, 2024, ts.Year())
}
