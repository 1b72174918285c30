// Package scheduler drives component liveness: a tick-driven,
// lease-guarded rule dispatcher with a bounded worker pool
// (pkg/queue/pool.go's WorkerPool/Worker split, generalized from
// "poll one DB table for pending sessions" to "tick, load enabled rules,
// submit due ones to a pool"), the long-lived consumer workers that read
// the event buffer's streams, and the correlation window expiry sweeper.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sentineld/sentineld/pkg/alertgen"
	"github.com/sentineld/sentineld/pkg/buffer"
	"github.com/sentineld/sentineld/pkg/config"
	"github.com/sentineld/sentineld/pkg/correlation"
	"github.com/sentineld/sentineld/pkg/detection"
	"github.com/sentineld/sentineld/pkg/historicalstore"
	"github.com/sentineld/sentineld/pkg/metrics"
	"github.com/sentineld/sentineld/pkg/models"
	"github.com/sentineld/sentineld/pkg/rulestore"
)

// Runner owns the independent loops of the scheduler/runner component:
// the rule dispatcher, the buffer consumer workers, the correlation
// engine and expiry sweeper, and the historical indexer.
type Runner struct {
	cfg *config.SchedulerConfig

	rules       *rulestore.Store
	detection   *detection.Engine
	alerts      *alertgen.Generator
	indexer     *historicalstore.PostgresStore
	buf         *buffer.Client
	correlation *correlation.Engine
	sweeper     *correlation.Sweeper
	elector     *leaderElector

	jobs chan *models.Rule
	wg   sync.WaitGroup
}

// New builds a Runner. db is used only for the leader-election advisory
// lock; all other state lives behind the supplied components.
func New(
	db *sql.DB,
	cfg *config.SchedulerConfig,
	rules *rulestore.Store,
	detectionEngine *detection.Engine,
	alerts *alertgen.Generator,
	indexer *historicalstore.PostgresStore,
	buf *buffer.Client,
	correlationEngine *correlation.Engine,
	sweeper *correlation.Sweeper,
) *Runner {
	return &Runner{
		cfg:         cfg,
		rules:       rules,
		detection:   detectionEngine,
		alerts:      alerts,
		indexer:     indexer,
		buf:         buf,
		correlation: correlationEngine,
		sweeper:     sweeper,
		elector:     newLeaderElector(db),
		jobs:        make(chan *models.Rule, cfg.Workers*2),
	}
}

const indexerConsumerGroup = "historical-indexer"

// Run starts all loops and blocks until ctx is cancelled, then drains
// in-flight work before returning.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("starting scheduler", "workers", r.cfg.Workers, "tick_seconds", r.cfg.TickSeconds)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.elector.run(ctx, time.Duration(r.cfg.LeaseSeconds)*time.Second)
	}()

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.runRuleWorker(ctx, i)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runTickLoop(ctx)
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runIndexer(ctx)
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.correlation.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("correlation engine stopped", "error", err)
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.sweeper.Run(ctx)
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runClaimLoop(ctx)
	}()

	<-ctx.Done()

	graceful := time.Duration(r.cfg.GracefulStopDelay) * time.Second
	if graceful > 0 {
		slog.Info("scheduler shutting down, draining in-flight work", "grace_period", graceful)
		time.Sleep(graceful)
	}
	close(r.jobs)
	r.wg.Wait()
	slog.Info("scheduler stopped")
	return ctx.Err()
}

// runTickLoop wakes once per tick and, if this instance holds the
// leader lease, submits every due enabled rule to the worker pool.
func (r *Runner) runTickLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.TickDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.elector.isLeader() {
				continue
			}
			if err := r.dispatchDueRules(ctx); err != nil {
				slog.Error("rule dispatch tick failed", "error", err)
			}
		}
	}
}

func (r *Runner) dispatchDueRules(ctx context.Context) error {
	rules, err := r.rules.List(ctx, models.RuleStatusEnabled)
	if err != nil {
		return err
	}

	now := time.Now()
	submitted := 0
	for _, rule := range rules {
		if !isDue(rule, now) {
			continue
		}
		select {
		case r.jobs <- rule:
			submitted++
		default:
			slog.Warn("rule dispatch queue full, skipping this tick", "rule_id", rule.ID)
		}
	}
	if submitted > 0 {
		slog.Info("dispatched due rules", "count", submitted)
	}
	return nil
}

func isDue(rule *models.Rule, now time.Time) bool {
	if rule.LastRunAt == nil {
		return true
	}
	return now.Sub(*rule.LastRunAt) >= time.Duration(rule.IntervalSec)*time.Second
}

// runRuleWorker loops pulling due rules off the job channel and
// executing them: detection → (threshold met → alert generator) →
// run/execution bookkeeping. Directly modeled on pkg/queue/worker.go's
// run/pollAndProcess split, generalized from one queue table to one
// in-process channel.
func (r *Runner) runRuleWorker(ctx context.Context, id int) {
	defer r.wg.Done()
	log := slog.With("rule_worker", id)

	for rule := range r.jobs {
		if err := r.executeRule(ctx, rule); err != nil {
			log.Error("rule execution failed", "rule_id", rule.ID, "error", err)
		}
	}
}

func (r *Runner) executeRule(ctx context.Context, rule *models.Rule) error {
	now := time.Now()
	timer := metrics.NewTimer()
	result, err := r.detection.Execute(ctx, rule, now)
	timer.ObserveDuration(metrics.RuleExecutionDuration.WithLabelValues(rule.Dialect))
	if err != nil {
		metrics.RuleExecutionsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.RuleExecutionsTotal.WithLabelValues("ok").Inc()
	if result.Execution.HitCount > 0 {
		metrics.RuleHitsTotal.WithLabelValues(rule.ID).Add(float64(result.Execution.HitCount))
	}

	if err := r.rules.RecordExecution(ctx, result.Execution); err != nil {
		slog.Error("failed to record execution", "rule_id", rule.ID, "error", err)
	}
	if err := r.rules.MarkRun(ctx, rule.ID, now, result.Execution.HitCount); err != nil {
		slog.Error("failed to mark rule run", "rule_id", rule.ID, "error", err)
	}

	if result.Execution.ThresholdOK {
		_, err := r.alerts.IngestMatch(ctx, alertgen.Match{
			Rule:              rule,
			Hits:              result.Hits,
			ThresholdExceeded: result.Execution.ThresholdOK,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// runIndexer consumes the events stream under its own consumer group —
// independent of the correlation engine's group, so every event is
// written to the historical store regardless of whether it also
// correlates — and persists each entry via the historical store's
// write path.
func (r *Runner) runIndexer(ctx context.Context) {
	indexerBuf, err := r.buf.WithGroup(ctx, buffer.StreamEvents, indexerConsumerGroup)
	if err != nil {
		slog.Error("failed to set up historical indexer consumer group", "error", err)
		return
	}

	consumerName := "historical-indexer-0"
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := indexerBuf.Consume(ctx, buffer.StreamEvents, consumerName)
		if err != nil {
			slog.Error("historical indexer consume failed", "error", err)
			continue
		}

		for _, msg := range msgs {
			if err := r.indexEvent(ctx, indexerBuf, msg); err != nil {
				slog.Error("failed to index event", "error", err, "event_id", msg.ID)
			}
		}
	}
}

func (r *Runner) indexEvent(ctx context.Context, indexerBuf *buffer.Client, msg buffer.Message) error {
	ev := models.Event{
		ID:        fieldString(msg.Fields, "event_id"),
		Source:    fieldString(msg.Fields, "source"),
		EventType: fieldString(msg.Fields, "event_type"),
		EntityKey: fieldString(msg.Fields, "entity_key"),
		Fields:    msg.Fields,
		IngestAt:  time.Now(),
	}
	if ts, ok := msg.Fields["timestamp"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ev.Timestamp = parsed
		}
	}
	if ev.ID == "" {
		ev.ID = msg.ID
	}

	if err := r.indexer.Index(ctx, ev); err != nil {
		if dlErr := indexerBuf.DeadLetter(ctx, msg, err.Error()); dlErr != nil {
			slog.Error("failed to dead-letter unindexable event", "error", dlErr)
		}
		return err
	}
	return indexerBuf.Ack(ctx, buffer.StreamEvents, msg.ID)
}

func fieldString(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

// runClaimLoop periodically reclaims events-stream entries left idle in
// either consumer group's pending-entries list — the historical indexer's
// and the correlation dispatcher's — past consumer.claim_idle_ms, the
// crash-recovery path ClaimPending exists for but which nothing called
// before this loop. Ticks on consumer.claim_every_ms.
func (r *Runner) runClaimLoop(ctx context.Context) {
	ticker := time.NewTicker(r.buf.ClaimInterval())
	defer ticker.Stop()

	indexerBuf, err := r.buf.WithGroup(ctx, buffer.StreamEvents, indexerConsumerGroup)
	if err != nil {
		slog.Error("claim loop failed to attach to historical indexer consumer group", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reclaimIndexerPending(ctx, indexerBuf)
			if n, err := r.correlation.Reclaim(ctx); err != nil {
				slog.Error("failed to reclaim pending correlation events", "error", err)
			} else if n > 0 {
				slog.Info("reclaimed pending correlation events", "count", n)
			}
		}
	}
}

func (r *Runner) reclaimIndexerPending(ctx context.Context, indexerBuf *buffer.Client) {
	msgs, err := indexerBuf.ClaimPending(ctx, buffer.StreamEvents, "historical-indexer-0")
	if err != nil {
		slog.Error("failed to reclaim pending indexer events", "error", err)
		return
	}
	if len(msgs) == 0 {
		return
	}
	slog.Info("reclaimed pending indexer events", "count", len(msgs))
	for _, msg := range msgs {
		if err := r.indexEvent(ctx, indexerBuf, msg); err != nil {
			slog.Error("failed to index reclaimed event", "error", err, "event_id", msg.ID)
		}
	}
}
