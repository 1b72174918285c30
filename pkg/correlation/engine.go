package correlation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sentineld/sentineld/pkg/alertgen"
	"github.com/sentineld/sentineld/pkg/buffer"
	"github.com/sentineld/sentineld/pkg/config"
	"github.com/sentineld/sentineld/pkg/historicalstore"
	"github.com/sentineld/sentineld/pkg/metrics"
	"github.com/sentineld/sentineld/pkg/models"
	"github.com/sentineld/sentineld/pkg/rulestore"
)

// defaultOptimisticRetries bounds the CAS retry loop when cfg.State isn't
// wired (e.g. in tests that build an Engine directly).
const defaultOptimisticRetries = 3

// Engine runs N shard workers, each the single writer for the slice of
// the entity-key space ShardFor assigns to it. A dispatcher goroutine
// reads the events stream and routes each event to its shard's
// channel, preserving per-entity ordering without requiring Redis-side
// stream partitioning — a bounded worker pool reading off a channel,
// same shape as a queue of jobs handed to a fixed set of workers.
type Engine struct {
	buf       *buffer.Client
	store     *Store
	ruleStore *rulestore.Store
	alerts    *alertgen.Generator
	cfg       *config.CorrelationConfig
	stateCfg  *config.StateConfig
	rules     map[string]*models.CorrelationRule
	shards    []chan shardJob
}

type shardJob struct {
	msg       buffer.Message
	rule      *models.CorrelationRule
	entityKey string
}

// New creates a correlation Engine for the given set of correlation rules.
// On a completed window, the engine resolves the owning detection rule via
// ruleStore and hands the match to alerts.IngestMatch directly — the same
// in-process handoff the scheduler uses for the Detection Engine's matches,
// rather than a self-addressed stream round-trip.
func New(buf *buffer.Client, store *Store, ruleStore *rulestore.Store, alerts *alertgen.Generator, cfg *config.CorrelationConfig, stateCfg *config.StateConfig, rules []*models.CorrelationRule) *Engine {
	ruleIndex := make(map[string]*models.CorrelationRule, len(rules))
	for _, r := range rules {
		ruleIndex[r.ID] = r
	}
	return &Engine{buf: buf, store: store, ruleStore: ruleStore, alerts: alerts, cfg: cfg, stateCfg: stateCfg, rules: ruleIndex}
}

// Run starts the dispatcher and shard workers, blocking until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.shards = make([]chan shardJob, e.cfg.Shards)
	for i := range e.shards {
		e.shards[i] = make(chan shardJob, 256)
	}

	done := make(chan struct{})
	for i := range e.shards {
		go e.runShardWorker(ctx, i, done)
	}

	go e.runDispatcher(ctx, done)

	<-ctx.Done()
	for range e.shards {
		<-done
	}
	<-done // dispatcher
	return ctx.Err()
}

// runDispatcher consumes the events stream directly — every correlation
// rule is evaluated against every event, not a rule-tagged sub-stream.
// A single message can fan out into one shardJob per rule whose entity
// key fields are all present.
func (e *Engine) runDispatcher(ctx context.Context, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := e.buf.Consume(ctx, buffer.StreamEvents, dispatchCorrelationConsumer)
		if err != nil {
			slog.Error("correlation dispatcher consume failed", "error", err)
			continue
		}

		for _, msg := range msgs {
			e.dispatchMessage(ctx, msg)
		}
	}
}

// dispatchCorrelationConsumer is the consumer name the dispatcher reads
// under; Reclaim uses the same name so a reclaimed entry's pending-list
// ownership transfers to the process recovering it.
const dispatchCorrelationConsumer = "correlation-dispatcher"

// dispatchMessage fans msg out to every rule whose entity_key_fields are
// all present, one shardJob per match, and acks it immediately if no rule
// matched at all (nothing left to wait on in the PEL for that case).
func (e *Engine) dispatchMessage(ctx context.Context, msg buffer.Message) {
	matched := false
	for _, rule := range e.rules {
		entityKey, ok := entityKeyFor(rule, msg.Fields)
		if !ok {
			continue // one or more entity_key_fields missing: drop for this rule, not the stream
		}
		matched = true
		shard := ShardFor(entityKey, e.cfg.Shards)
		e.shards[shard] <- shardJob{msg: msg, rule: rule, entityKey: entityKey}
	}
	if !matched {
		// No configured rule's entity key fields are all present on this
		// event; nothing to correlate. Ack immediately so it doesn't sit in
		// the PEL — no shard worker will ever claim it.
		if err := e.buf.Ack(ctx, buffer.StreamEvents, msg.ID); err != nil {
			slog.Error("failed to ack uncorrelated event", "error", err)
		}
	}
}

// Reclaim claims entries that have been idle in the dispatcher's
// consumer-group PEL past consumer.claim_idle_ms — e.g. left behind by a
// dispatcher that crashed mid-batch — and routes them through the same
// dispatchMessage path a freshly consumed entry takes.
func (e *Engine) Reclaim(ctx context.Context) (int, error) {
	msgs, err := e.buf.ClaimPending(ctx, buffer.StreamEvents, dispatchCorrelationConsumer)
	if err != nil {
		return 0, fmt.Errorf("failed to claim pending correlation events: %w", err)
	}
	for _, msg := range msgs {
		e.dispatchMessage(ctx, msg)
	}
	return len(msgs), nil
}

// entityKeyFor concatenates rule's configured entity key fields (in
// declaration order) into one composite key. Every field must be present
// as a non-empty string or the event is dropped for this rule.
func entityKeyFor(rule *models.CorrelationRule, fields map[string]any) (string, bool) {
	if len(rule.EntityKeyFields) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(rule.EntityKeyFields))
	for _, f := range rule.EntityKeyFields {
		v, ok := fields[f].(string)
		if !ok || v == "" {
			return "", false
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, "|"), true
}

func (e *Engine) runShardWorker(ctx context.Context, shard int, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	log := slog.With("shard", shard)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-e.shards[shard]:
			outcome := e.process(ctx, shard, job)
			switch outcome {
			case buffer.OutcomeAck:
				if err := e.buf.Ack(ctx, buffer.StreamEvents, job.msg.ID); err != nil {
					log.Error("failed to ack correlation event", "error", err)
				}
			case buffer.OutcomeDeadLetter:
				if err := e.buf.DeadLetter(ctx, job.msg, "correlation processing failed"); err != nil {
					log.Error("failed to dead-letter correlation event", "error", err)
				}
			case buffer.OutcomeRetry:
				// leave in the PEL; the claim loop will redeliver it.
			}
		}
	}
}

// process advances (or opens) the window for job's entity against its
// rule, retrying on optimistic-concurrency conflicts up to
// state.optimistic_retries times before dead-lettering.
func (e *Engine) process(ctx context.Context, shard int, job shardJob) buffer.Outcome {
	maxAttempts := e.optimisticRetries()
	for attempt := 0; attempt <= maxAttempts; attempt++ {
		outcome, conflict, err := e.tryProcess(ctx, shard, job)
		if err != nil {
			return buffer.OutcomeRetry
		}
		if !conflict {
			return outcome
		}
		metrics.CorrelationVersionConflicts.Inc()
	}
	slog.Error("correlation state update lost the optimistic-concurrency race too many times, dead-lettering",
		"entity_key", job.entityKey, "rule_id", job.rule.ID, "attempts", maxAttempts)
	return buffer.OutcomeDeadLetter
}

func (e *Engine) optimisticRetries() int {
	if e.stateCfg == nil || e.stateCfg.OptimisticRetries <= 0 {
		return defaultOptimisticRetries
	}
	return e.stateCfg.OptimisticRetries
}

// tryProcess makes a single, non-retried attempt to fold job's event into
// its entity's correlation window. conflict is true only when an Advance
// lost the optimistic-concurrency race, in which case the caller should
// reload and retry; err is only ever a transient store failure.
func (e *Engine) tryProcess(ctx context.Context, shard int, job shardJob) (outcome buffer.Outcome, conflict bool, err error) {
	rule := job.rule
	entityKey := job.entityKey
	eventType, _ := job.msg.Fields["event_type"].(string)
	eventID, _ := job.msg.Fields["event_id"].(string)

	eventTime, ok := parseEventTime(job.msg.Fields)
	if !ok {
		slog.Warn("correlation event missing a parseable timestamp, dropping", "entity_key", entityKey, "rule_id", rule.ID)
		return buffer.OutcomeAck, false, nil
	}

	row, err := e.store.Get(ctx, entityKey, rule.ID)
	if err != nil {
		slog.Error("failed to load correlation state", "error", err, "entity_key", entityKey)
		return buffer.OutcomeRetry, false, err
	}

	if row != nil {
		switch row.State {
		case models.WindowStateMatched, models.WindowStateClosed:
			return buffer.OutcomeAck, false, nil
		case models.WindowStateOpen, models.WindowStateDraining:
			if eventTime.After(row.WindowEnd) {
				// This event is outside the current window entirely: expire
				// it, then fall through and consider opening a fresh one.
				row.State = models.WindowStateExpired
				if err := e.store.Advance(ctx, row, row.Version); err != nil {
					if errors.Is(err, ErrVersionConflict) {
						return buffer.OutcomeAck, true, nil
					}
					return buffer.OutcomeRetry, false, err
				}
				metrics.CorrelationWindowsExpired.Inc()
				row = nil
			}
		case models.WindowStateExpired:
			row = nil
		}
	}

	lateBound := time.Duration(e.cfg.LatenessBoundSeconds) * time.Second
	opening := row == nil
	if opening {
		if !matchesOpeningStage(rule, eventType, job.msg.Fields) {
			return buffer.OutcomeAck, false, nil
		}
		row, err = e.store.Open(ctx, entityKey, rule.ID, shard, eventTime, rule.WindowSeconds, len(rule.Stages))
		if err != nil {
			slog.Error("failed to open correlation window", "error", err, "entity_key", entityKey)
			return buffer.OutcomeRetry, false, err
		}
		metrics.CorrelationWindowsOpened.Inc()
	} else if eventTime.Before(row.WindowStart.Add(-lateBound)) {
		return buffer.OutcomeAck, false, nil // excessively late relative to the window: drop
	}

	stageIdx, matched := matchStage(rule, row, eventType, job.msg.Fields)
	if !matched {
		return buffer.OutcomeAck, false, nil
	}

	if rule.RequireDistinct != "" && !recordDistinct(row, rule.RequireDistinct, job.msg.Fields) {
		return buffer.OutcomeAck, false, nil // duplicate distinct-field value: doesn't count toward the stage
	}

	row.StageCounts[stageIdx]++
	row.LastEventAt = eventTime
	row.MatchedEvents = append(row.MatchedEvents, eventID)
	row.Context = appendHit(row.Context, eventID, eventTime, job.msg.Fields)
	if row.StagesSatisfied(rule.EffectiveMinCountPerStage()) {
		row.State = models.WindowStateMatched
	}

	if err := e.store.Advance(ctx, row, row.Version); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return buffer.OutcomeAck, true, nil
		}
		slog.Error("failed to advance correlation window", "error", err, "entity_key", entityKey)
		return buffer.OutcomeRetry, false, err
	}

	if row.State == models.WindowStateMatched {
		metrics.CorrelationWindowsMatched.Inc()
		if err := e.handOffMatch(ctx, row); err != nil {
			slog.Error("failed to hand off correlation match to alert generator", "error", err, "entity_key", entityKey)
			return buffer.OutcomeRetry, false, err
		}
	}

	return buffer.OutcomeAck, false, nil
}

// matchesOpeningStage reports whether an event can start a brand-new
// window: for strict order only stage 0 can open one, for any_order any
// stage can.
func matchesOpeningStage(rule *models.CorrelationRule, eventType string, fields map[string]any) bool {
	if len(rule.Stages) == 0 {
		return false
	}
	if rule.EffectiveStageOrder() == models.StageOrderStrict {
		return rule.Stages[0].Matches(eventType, fields)
	}
	for _, stage := range rule.Stages {
		if stage.Matches(eventType, fields) {
			return true
		}
	}
	return false
}

// matchStage picks the stage index this event should be credited to, if
// any. Strict order only accepts the lowest not-yet-satisfied stage;
// any_order accepts the event against any not-yet-satisfied stage it
// matches.
func matchStage(rule *models.CorrelationRule, row *models.StateRow, eventType string, fields map[string]any) (int, bool) {
	minCount := rule.EffectiveMinCountPerStage()

	if rule.EffectiveStageOrder() == models.StageOrderStrict {
		idx := row.FirstUnsatisfiedStage(minCount)
		if idx < 0 || idx >= len(rule.Stages) {
			return 0, false
		}
		return idx, rule.Stages[idx].Matches(eventType, fields)
	}

	for i, stage := range rule.Stages {
		if i >= len(row.StageCounts) || row.StageCounts[i] >= minCount {
			continue
		}
		if stage.Matches(eventType, fields) {
			return i, true
		}
	}
	return 0, false
}

// recordDistinct enforces require_distinct: field's value must not have
// already been credited toward this window. Returns false (event doesn't
// count) on a repeat.
func recordDistinct(row *models.StateRow, field string, fields map[string]any) bool {
	v, ok := fields[field]
	if !ok {
		return true
	}
	value := fmt.Sprintf("%v", v)

	if row.Context == nil {
		row.Context = map[string]any{}
	}
	seen, _ := row.Context["distinct_values"].([]any)
	for _, existing := range seen {
		if s, ok := existing.(string); ok && s == value {
			return false
		}
	}
	row.Context["distinct_values"] = append(seen, value)
	return true
}

// parseEventTime reads the event's own timestamp field (RFC3339Nano, the
// convention the historical indexer also relies on) rather than using
// wall-clock arrival time, so window boundaries and lateness are judged
// against when the event actually happened.
func parseEventTime(fields map[string]any) (time.Time, bool) {
	ts, ok := fields["timestamp"].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// handOffMatch resolves the detection rule that owns this correlation
// rule and passes the accumulated hit bundle to the alert generator,
// done as a direct call rather than a self-addressed round-trip through
// the correlation stream.
func (e *Engine) handOffMatch(ctx context.Context, row *models.StateRow) error {
	rule, err := e.ruleStore.GetByCorrelationID(ctx, row.RuleID)
	if err != nil {
		if errors.Is(err, rulestore.ErrNotFound) {
			slog.Warn("completed correlation window has no owning rule, dropping match", "correlation_rule_id", row.RuleID)
			return nil
		}
		return err
	}

	_, err = e.alerts.IngestMatch(ctx, alertgen.Match{
		Rule:              rule,
		Hits:              hitsFromContext(row.Context),
		ThresholdExceeded: true,
	})
	return err
}

func appendHit(ctx map[string]any, eventID string, ts time.Time, fields map[string]any) map[string]any {
	if ctx == nil {
		ctx = map[string]any{}
	}
	raw, _ := ctx["hits"].([]any)
	raw = append(raw, map[string]any{
		"event_id":  eventID,
		"timestamp": ts.Format(time.RFC3339Nano),
		"fields":    fields,
	})
	ctx["hits"] = raw
	return ctx
}

func hitsFromContext(ctx map[string]any) []historicalstore.Hit {
	raw, _ := ctx["hits"].([]any)
	hits := make([]historicalstore.Hit, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		eventID, _ := m["event_id"].(string)
		tsStr, _ := m["timestamp"].(string)
		ts, _ := time.Parse(time.RFC3339Nano, tsStr)
		fields, _ := m["fields"].(map[string]any)
		hits = append(hits, historicalstore.Hit{EventID: eventID, Timestamp: ts, Fields: fields})
	}
	return hits
}
