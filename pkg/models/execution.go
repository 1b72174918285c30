package models

import "time"

// ExecutionStatus is the outcome of a single rule execution.
type ExecutionStatus string

const (
	ExecutionStatusSucceeded ExecutionStatus = "succeeded"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusTimedOut  ExecutionStatus = "timed_out"
	ExecutionStatusSkipped   ExecutionStatus = "skipped"
)

// Execution is an audit record of one scheduled run of a detection rule.
type Execution struct {
	ID          string          `json:"id"`
	RuleID      string          `json:"rule_id"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	DurationMS  int64           `json:"duration_ms"`
	HitCount    int             `json:"hit_count"`
	HitsSample  int             `json:"hits_sample"`
	Error       string          `json:"error,omitempty"`
	ThresholdOK bool            `json:"threshold_met"`
}
