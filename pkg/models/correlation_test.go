package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationStage_Matches(t *testing.T) {
	stage := CorrelationStage{
		EventType: "auth_failure",
		Filters:   map[string]any{"user": "alice"},
	}

	assert.True(t, stage.Matches("auth_failure", map[string]any{"user": "alice", "ip": "10.0.0.1"}))
	assert.False(t, stage.Matches("auth_failure", map[string]any{"user": "bob"}))
	assert.False(t, stage.Matches("auth_success", map[string]any{"user": "alice"}))
}

func TestCorrelationStage_Matches_NoEventTypeConstraint(t *testing.T) {
	stage := CorrelationStage{Filters: map[string]any{"user": "alice"}}
	assert.True(t, stage.Matches("anything", map[string]any{"user": "alice"}))
}

func TestCorrelationStage_Matches_NoFilters(t *testing.T) {
	stage := CorrelationStage{EventType: "auth_failure"}
	assert.True(t, stage.Matches("auth_failure", map[string]any{"whatever": "value"}))
}

func TestStateRow_StagesSatisfied(t *testing.T) {
	row := &StateRow{StageCounts: []int{2, 1, 0}}
	assert.False(t, row.StagesSatisfied(1))
	assert.Equal(t, 2, row.FirstUnsatisfiedStage(1))

	row.StageCounts = []int{2, 1, 1}
	assert.True(t, row.StagesSatisfied(1))
	assert.Equal(t, -1, row.FirstUnsatisfiedStage(1))

	row.StageCounts = []int{1, 1, 1}
	assert.False(t, row.StagesSatisfied(2))
}

func TestCorrelationRule_Defaults(t *testing.T) {
	r := &CorrelationRule{}
	assert.Equal(t, StageOrderStrict, r.EffectiveStageOrder())
	assert.Equal(t, 1, r.EffectiveMinCountPerStage())

	r.StageOrder = StageOrderAnyOrder
	r.MinCountPerStage = 3
	assert.Equal(t, StageOrderAnyOrder, r.EffectiveStageOrder())
	assert.Equal(t, 3, r.EffectiveMinCountPerStage())
}
