package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentineld/sentineld/pkg/config"
	"github.com/sentineld/sentineld/pkg/historicalstore"
	"github.com/sentineld/sentineld/pkg/models"
)

// Engine executes detection rules against a historical store, applying
// each rule's threshold and a process-wide execution deadline.
type Engine struct {
	store  historicalstore.Store
	cfg    *config.DetectionConfig
}

// New creates a detection Engine.
func New(store historicalstore.Store, cfg *config.DetectionConfig) *Engine {
	return &Engine{store: store, cfg: cfg}
}

// Result is what Execute hands back to the scheduler: the audit record
// plus the hit set (full or sampled) for correlation/alert handoff.
type Result struct {
	Execution *models.Execution
	Hits      []historicalstore.Hit
}

// Execute runs one scheduled evaluation of rule. Cancellation/timeout
// plumbing uses a context.WithTimeout per call: the engine's
// DefaultTimeoutSec bounds the store calls (rules carry no timeout of
// their own), and a
// context.DeadlineExceeded is folded into a timed_out Execution rather
// than propagated as a bare error.
func (e *Engine) Execute(ctx context.Context, rule *models.Rule, now time.Time) (*Result, error) {
	timeout := time.Duration(e.cfg.DefaultTimeoutSec) * time.Second
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exec := &models.Execution{
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		StartedAt: now,
	}

	query, err := Rewrite(rule, now)
	if err != nil {
		exec.FinishedAt = time.Now()
		exec.Status = models.ExecutionStatusFailed
		exec.Error = err.Error()
		return &Result{Execution: exec}, nil
	}
	query.Size = e.cfg.MaxHitsSample

	total, err := e.store.Count(execCtx, query)
	if err != nil {
		return e.fail(exec, err)
	}

	thresholdMet := total > 0 && (rule.ThresholdCount == 0 || int(total) >= rule.ThresholdCount)

	var hits []historicalstore.Hit
	if thresholdMet || rule.Correlate {
		hits, err = e.store.Search(execCtx, query)
		if err != nil {
			return e.fail(exec, err)
		}
	}

	exec.FinishedAt = time.Now()
	exec.DurationMS = exec.FinishedAt.Sub(exec.StartedAt).Milliseconds()
	exec.Status = models.ExecutionStatusSucceeded
	exec.HitCount = int(total)
	exec.HitsSample = len(hits)
	exec.ThresholdOK = thresholdMet

	return &Result{Execution: exec, Hits: hits}, nil
}

func (e *Engine) fail(exec *models.Execution, err error) (*Result, error) {
	exec.FinishedAt = time.Now()
	exec.DurationMS = exec.FinishedAt.Sub(exec.StartedAt).Milliseconds()

	if errors.Is(err, context.DeadlineExceeded) {
		exec.Status = models.ExecutionStatusTimedOut
		exec.Error = "execution deadline exceeded"
		slog.Warn("rule execution timed out", "rule_id", exec.RuleID, "emit_on_timeout", e.cfg.EmitOnTimeout)
		// The record carries no hits and ThresholdOK is false, so the
		// scheduler raises no alert for a timed-out run; emit_on_timeout is
		// only logged here and does not change that.
		return &Result{Execution: exec}, nil
	}

	exec.Status = models.ExecutionStatusFailed
	exec.Error = err.Error()
	return &Result{Execution: exec}, fmt.Errorf("rule %s execution failed: %w", exec.RuleID, err)
}
