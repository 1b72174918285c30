package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sentineld/sentineld/pkg/models"
)

func TestIsDue_NeverRunIsAlwaysDue(t *testing.T) {
	rule := &models.Rule{IntervalSec: 60}
	assert.True(t, isDue(rule, time.Now()))
}

func TestIsDue_RespectsIntervalSeconds(t *testing.T) {
	now := time.Now()
	last := now.Add(-30 * time.Second)
	rule := &models.Rule{IntervalSec: 60, LastRunAt: &last}

	assert.False(t, isDue(rule, now), "only 30s elapsed against a 60s interval")
	assert.True(t, isDue(rule, now.Add(31*time.Second)), "61s have now elapsed")
}

func TestFieldString(t *testing.T) {
	fields := map[string]any{"event_id": "abc", "count": 3}

	assert.Equal(t, "abc", fieldString(fields, "event_id"))
	assert.Empty(t, fieldString(fields, "count"), "non-string values are not coerced")
	assert.Empty(t, fieldString(fields, "missing"))
}
