package correlation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sentineld/sentineld/pkg/models"
)

// ErrVersionConflict is returned when a CAS update loses the race against
// a concurrent writer — only possible after a shard worker restart, since
// within a running process each shard has exactly one writer.
var ErrVersionConflict = errors.New("correlation state version conflict")

// Store persists correlation window state with an optimistic version
// column, so a restarted shard worker can resume without replaying the
// whole partition.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get fetches the state row for (entityKey, ruleID), if any.
func (s *Store) Get(ctx context.Context, entityKey, ruleID string) (*models.StateRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT entity_key, correlation_rule_id, shard, state,
		stage_counts, window_start, window_end, last_event_at, matched_event_ids, context, version
		FROM correlation_state WHERE entity_key = $1 AND correlation_rule_id = $2`, entityKey, ruleID)

	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get correlation state for %s/%s: %w", entityKey, ruleID, err)
	}
	return r, nil
}

// Open creates a new window in the "open" state with every stage count at
// zero. windowStart is the opening event's own timestamp, not wall-clock
// arrival time, so the window's boundaries track event time throughout.
func (s *Store) Open(ctx context.Context, entityKey, ruleID string, shard int, windowStart time.Time, windowSeconds, stageCount int) (*models.StateRow, error) {
	row := &models.StateRow{
		EntityKey:   entityKey,
		RuleID:      ruleID,
		Shard:       shard,
		State:       models.WindowStateOpen,
		StageCounts: make([]int, stageCount),
		WindowStart: windowStart,
		WindowEnd:   windowStart.Add(time.Duration(windowSeconds) * time.Second),
		LastEventAt: windowStart,
		Version:     1,
	}

	stageCountsJSON, err := json.Marshal(row.StageCounts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stage counts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO correlation_state (entity_key, correlation_rule_id,
		shard, state, stage_counts, window_start, window_end, last_event_at, matched_event_ids, context, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'{}','{}',1)
		ON CONFLICT (entity_key, correlation_rule_id) DO UPDATE SET
			shard = EXCLUDED.shard, state = EXCLUDED.state, stage_counts = EXCLUDED.stage_counts,
			window_start = EXCLUDED.window_start, window_end = EXCLUDED.window_end,
			last_event_at = EXCLUDED.last_event_at, matched_event_ids = '{}', context = '{}', version = 1`,
		entityKey, ruleID, shard, string(models.WindowStateOpen), stageCountsJSON,
		row.WindowStart, row.WindowEnd, row.LastEventAt)
	if err != nil {
		return nil, fmt.Errorf("failed to open correlation window for %s/%s: %w", entityKey, ruleID, err)
	}
	return row, nil
}

// Advance applies a CAS update: it only succeeds if the row's current
// version matches expectedVersion, returning ErrVersionConflict otherwise.
func (s *Store) Advance(ctx context.Context, row *models.StateRow, expectedVersion int) error {
	stageCountsJSON, err := json.Marshal(row.StageCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal stage counts: %w", err)
	}
	ctxJSON, err := json.Marshal(row.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal correlation context: %w", err)
	}
	eventIDs := strings.Join(row.MatchedEvents, ",")

	res, err := s.db.ExecContext(ctx, `UPDATE correlation_state SET
		state = $1, stage_counts = $2, window_start = $3, window_end = $4, last_event_at = $5,
		matched_event_ids = string_to_array(NULLIF($6, ''), ','), context = $7, version = version + 1
		WHERE entity_key = $8 AND correlation_rule_id = $9 AND version = $10`,
		string(row.State), stageCountsJSON, row.WindowStart, row.WindowEnd, row.LastEventAt, eventIDs,
		ctxJSON, row.EntityKey, row.RuleID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to advance correlation state for %s/%s: %w", row.EntityKey, row.RuleID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	row.Version = expectedVersion + 1
	return nil
}

// DrainStale transitions open windows whose window_end (event time) has
// passed wall-clock now to "draining" — no longer a target for a
// brand-new window on the same entity/rule pair, but still eligible for
// a late, reordered event within the lateness bound.
func (s *Store) DrainStale(ctx context.Context, now time.Time, limit int) ([]*models.StateRow, error) {
	return s.transitionStale(ctx, models.WindowStateDraining,
		`state = 'open' AND window_end < $1`, now, limit)
}

// ExpireStale transitions draining windows whose lateness grace period has
// elapsed to "expired", freeing the state row for a future window on the
// same entity/rule pair.
func (s *Store) ExpireStale(ctx context.Context, now time.Time, graceSeconds, limit int) ([]*models.StateRow, error) {
	cutoff := now.Add(-time.Duration(graceSeconds) * time.Second)
	return s.transitionStale(ctx, models.WindowStateExpired,
		`state = 'draining' AND window_end < $1`, cutoff, limit)
}

func (s *Store) transitionStale(ctx context.Context, to models.WindowState, whereClause string, cutoff time.Time, limit int) ([]*models.StateRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_key, correlation_rule_id, shard, state,
		stage_counts, window_start, window_end, last_event_at, matched_event_ids, context, version
		FROM correlation_state WHERE `+whereClause+` LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for stale correlation windows: %w", err)
	}
	defer rows.Close()

	var stale []*models.StateRow
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan correlation state row: %w", err)
		}
		stale = append(stale, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var transitioned []*models.StateRow
	for _, r := range stale {
		r.State = to
		if err := s.Advance(ctx, r, r.Version); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue // another writer already moved it on
			}
			return transitioned, fmt.Errorf("failed to transition window %s/%s to %s: %w", r.EntityKey, r.RuleID, to, err)
		}
		transitioned = append(transitioned, r)
	}
	return transitioned, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRow(row scannable) (*models.StateRow, error) {
	var r models.StateRow
	var state string
	var stageCountsJSON []byte
	var eventIDsText string
	var ctxJSON []byte
	if err := row.Scan(&r.EntityKey, &r.RuleID, &r.Shard, &state, &stageCountsJSON,
		&r.WindowStart, &r.WindowEnd, &r.LastEventAt, &eventIDsText, &ctxJSON, &r.Version); err != nil {
		return nil, err
	}
	r.State = models.WindowState(state)
	if len(stageCountsJSON) > 0 {
		_ = json.Unmarshal(stageCountsJSON, &r.StageCounts)
	}
	r.MatchedEvents = splitNonEmpty(eventIDsText)
	if len(ctxJSON) > 0 {
		_ = json.Unmarshal(ctxJSON, &r.Context)
	}
	return &r, nil
}

func splitNonEmpty(lit string) []string {
	lit = strings.TrimPrefix(lit, "{")
	lit = strings.TrimSuffix(lit, "}")
	if lit == "" {
		return nil
	}
	return strings.Split(lit, ",")
}
