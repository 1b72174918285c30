package models

import "time"

// WindowState is the lifecycle state of a correlation window.
type WindowState string

const (
	WindowStateOpen WindowState = "open"
	// WindowStateDraining is a window whose event-time window_end has
	// passed but whose lateness bound hasn't yet elapsed — the sweeper
	// parks it here instead of expiring it outright so a reordered event
	// still within [window_start-W_late, window_end] can still land.
	WindowStateDraining WindowState = "draining"
	WindowStateMatched  WindowState = "matched"
	WindowStateExpired  WindowState = "expired"
	WindowStateClosed   WindowState = "closed"
)

// StageOrder selects whether a correlation rule's stages must be
// satisfied in declaration order or in any order.
type StageOrder string

const (
	StageOrderStrict   StageOrder = "strict"
	StageOrderAnyOrder StageOrder = "any_order"
)

// IsValid reports whether o is a known stage order.
func (o StageOrder) IsValid() bool {
	return o == StageOrderStrict || o == StageOrderAnyOrder
}

// StateRow is one correlation-engine window: the accumulated sequence
// progress for a single entity key against a single correlation rule.
// Persisted with an optimistic version column so a restarted shard worker
// can resume without replaying the whole partition. Window boundaries are
// derived from the opening event's own timestamp, not wall-clock arrival
// time, so out-of-order delivery within the lateness bound still lands in
// the right window.
type StateRow struct {
	EntityKey     string         `json:"entity_key"`
	RuleID        string         `json:"correlation_rule_id"`
	Shard         int            `json:"shard"`
	State         WindowState    `json:"state"`
	StageCounts   []int          `json:"stage_counts"`
	WindowStart   time.Time      `json:"window_start"`
	WindowEnd     time.Time      `json:"window_end"`
	LastEventAt   time.Time      `json:"last_event_at"`
	MatchedEvents []string       `json:"matched_event_ids,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	Version       int            `json:"version"`
}

// StagesSatisfied reports whether every declared stage has met
// minCountPerStage.
func (r *StateRow) StagesSatisfied(minCountPerStage int) bool {
	if len(r.StageCounts) == 0 {
		return false
	}
	for _, c := range r.StageCounts {
		if c < minCountPerStage {
			return false
		}
	}
	return true
}

// FirstUnsatisfiedStage returns the lowest stage index whose count hasn't
// reached minCountPerStage, or -1 if every stage is satisfied. Strict-order
// rules only accept the next event against this stage.
func (r *StateRow) FirstUnsatisfiedStage(minCountPerStage int) int {
	for i, c := range r.StageCounts {
		if c < minCountPerStage {
			return i
		}
	}
	return -1
}

// CorrelationStage is one stage of a correlation rule's required
// sequence: an event matching EventType (and, if set, every key/value in
// Filters) can satisfy this stage.
type CorrelationStage struct {
	EventType string         `json:"event_type" yaml:"event_type"`
	Filters   map[string]any `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// Matches reports whether event satisfies the stage's event type and filters.
func (s CorrelationStage) Matches(eventType string, fields map[string]any) bool {
	if s.EventType != "" && s.EventType != eventType {
		return false
	}
	for k, v := range s.Filters {
		if fields[k] != v {
			return false
		}
	}
	return true
}

// CorrelationRule defines the sequence of stages a window must match,
// within WindowSeconds of the opening event, to transition to "matched".
// EntityKeyFields names the event fields whose values (concatenated) group
// events into one window (the "entity key" the glossary refers to) —
// multiple fields support composite keys such as host+user.
type CorrelationRule struct {
	ID              string             `json:"id"`
	EntityKeyFields []string           `json:"entity_key_fields"`
	Stages          []CorrelationStage `json:"stages"`
	WindowSeconds   int                `json:"window_seconds"`
	// StageOrder selects whether Stages must be satisfied in declaration
	// order (strict) or in any order (any_order). Defaults to strict.
	StageOrder StageOrder `json:"stage_order,omitempty"`
	// MinCountPerStage is how many matching events each stage needs before
	// the window can complete. Defaults to 1.
	MinCountPerStage int `json:"min_count_per_stage,omitempty"`
	// RequireDistinct, if set, names a field whose value must differ across
	// every event credited toward this window's stages — e.g. requiring
	// distinct source IPs across a brute-force sequence.
	RequireDistinct string `json:"require_distinct,omitempty"`
}

// EffectiveStageOrder returns StageOrder, defaulting to strict.
func (r *CorrelationRule) EffectiveStageOrder() StageOrder {
	if r.StageOrder == "" {
		return StageOrderStrict
	}
	return r.StageOrder
}

// EffectiveMinCountPerStage returns MinCountPerStage, defaulting to 1.
func (r *CorrelationRule) EffectiveMinCountPerStage() int {
	if r.MinCountPerStage <= 0 {
		return 1
	}
	return r.MinCountPerStage
}
