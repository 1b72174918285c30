package detection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/sentineld/pkg/config"
	"github.com/sentineld/sentineld/pkg/historicalstore"
	"github.com/sentineld/sentineld/pkg/models"
)

func TestRewrite_KQLSubset(t *testing.T) {
	rule := &models.Rule{
		Dialect:     "kql",
		Query:       "event_type:auth_failure user:alice",
		LookbackSec: 300,
	}
	now := time.Unix(1000, 0)
	q, err := Rewrite(rule, now)
	require.NoError(t, err)
	assert.Contains(t, q.QueryString, "event_type:auth_failure user:alice")
	assert.Contains(t, q.QueryString, "@timestamp:[")
	assert.Equal(t, now.Add(-300*time.Second), q.TimeFrom)
	assert.Equal(t, now, q.TimeTo)
}

func TestRewrite_ESQL(t *testing.T) {
	rule := &models.Rule{
		Dialect:     "esql",
		Query:       `FROM auth-logs`,
		LookbackSec: 300,
	}
	now := time.Unix(1000, 0)
	q, err := Rewrite(rule, now)
	require.NoError(t, err)
	assert.Contains(t, q.QueryString, "FROM auth-logs")
	assert.Contains(t, q.QueryString, `WHERE @timestamp >=`)
}

func TestRewrite_UnknownDialect(t *testing.T) {
	rule := &models.Rule{Dialect: "bogus", Query: "x"}
	_, err := Rewrite(rule, time.Now())
	require.Error(t, err)
}

func TestEngine_Execute_ThresholdMet(t *testing.T) {
	now := time.Now()
	store := &historicalstore.MemoryStore{Hits: []historicalstore.Hit{
		{EventID: "1", Timestamp: now.Add(-time.Minute), Fields: map[string]any{"user": "alice"}},
		{EventID: "2", Timestamp: now.Add(-time.Minute), Fields: map[string]any{"user": "alice"}},
		{EventID: "3", Timestamp: now.Add(-time.Minute), Fields: map[string]any{"user": "alice"}},
	}}
	eng := New(store, config.DefaultDetectionConfig())

	rule := &models.Rule{
		ID: "r1", Dialect: "kql", Query: "user:alice",
		LookbackSec: 300, ThresholdCount: 2,
	}

	res, err := eng.Execute(context.Background(), rule, now)
	require.NoError(t, err)
	assert.True(t, res.Execution.ThresholdOK)
	assert.Equal(t, 3, res.Execution.HitCount)
	assert.Equal(t, models.ExecutionStatusSucceeded, res.Execution.Status)
}

func TestEngine_Execute_ThresholdNotMet(t *testing.T) {
	now := time.Now()
	store := &historicalstore.MemoryStore{Hits: []historicalstore.Hit{
		{EventID: "1", Timestamp: now, Fields: map[string]any{"user": "alice"}},
	}}
	eng := New(store, config.DefaultDetectionConfig())

	rule := &models.Rule{
		ID: "r1", Dialect: "kql", Query: "user:alice",
		LookbackSec: 300, ThresholdCount: 5,
	}

	res, err := eng.Execute(context.Background(), rule, now)
	require.NoError(t, err)
	assert.False(t, res.Execution.ThresholdOK)
	assert.Empty(t, res.Hits)
}

func TestEngine_Execute_UnknownDialect(t *testing.T) {
	eng := New(&historicalstore.MemoryStore{}, config.DefaultDetectionConfig())
	rule := &models.Rule{ID: "r1", Dialect: "bogus", Query: "x"}

	res, err := eng.Execute(context.Background(), rule, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, res.Execution.Status)
}
