// Package rulestore is the rule store: PostgreSQL-backed CRUD and
// execution bookkeeping for detection rules, written directly against
// database/sql + pgx rather than through an ORM (see DESIGN.md).
package rulestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sentineld/sentineld/pkg/models"
)

// ErrNotFound is returned when a rule ID has no matching row.
var ErrNotFound = errors.New("rule not found")

// ErrVersionConflict reports a lost optimistic-concurrency race on a rule
// row. MarkRun serializes through a row lock instead and does not return it.
var ErrVersionConflict = errors.New("rule version conflict")

// Store is the rule store.
type Store struct {
	db *sql.DB
}

// New wraps an open database pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// List returns all rules, optionally filtered to a single status.
func (s *Store) List(ctx context.Context, status models.RuleStatus) ([]*models.Rule, error) {
	query := `SELECT id, name, description, status, query, dialect, indices, interval_seconds,
		lookback_seconds, threshold_count, threshold_field, severity, correlate,
		correlation_rule_id, tags, author, metadata, created_at, updated_at,
		last_run_at, hit_count, version FROM rules`
	args := []any{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, string(status))
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// Get fetches a single rule by ID.
func (s *Store) Get(ctx context.Context, id string) (*models.Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, status, query, dialect, indices,
		interval_seconds, lookback_seconds, threshold_count, threshold_field, severity,
		correlate, correlation_rule_id, tags, author, metadata, created_at, updated_at,
		last_run_at, hit_count, version FROM rules WHERE id = $1`, id)

	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %s: %w", id, err)
	}
	return r, nil
}

// GetByCorrelationID fetches the detection rule that owns a correlation
// rule ID, used by the correlation engine to resolve alert metadata
// (name, severity) once a window completes.
func (s *Store) GetByCorrelationID(ctx context.Context, correlationRuleID string) (*models.Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, status, query, dialect, indices,
		interval_seconds, lookback_seconds, threshold_count, threshold_field, severity,
		correlate, correlation_rule_id, tags, author, metadata, created_at, updated_at,
		last_run_at, hit_count, version FROM rules WHERE correlation_rule_id = $1 LIMIT 1`, correlationRuleID)

	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule for correlation id %s: %w", correlationRuleID, err)
	}
	return r, nil
}

// Upsert creates or replaces a rule definition.
func (s *Store) Upsert(ctx context.Context, r *models.Rule) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (id, name, description, status, query, dialect, indices, interval_seconds,
			lookback_seconds, threshold_count, threshold_field, severity, correlate,
			correlation_rule_id, tags, author, metadata, created_at, updated_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,1)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, status = EXCLUDED.status,
			query = EXCLUDED.query, dialect = EXCLUDED.dialect, indices = EXCLUDED.indices,
			interval_seconds = EXCLUDED.interval_seconds,
			lookback_seconds = EXCLUDED.lookback_seconds, threshold_count = EXCLUDED.threshold_count,
			threshold_field = EXCLUDED.threshold_field, severity = EXCLUDED.severity,
			correlate = EXCLUDED.correlate, correlation_rule_id = EXCLUDED.correlation_rule_id,
			tags = EXCLUDED.tags, author = EXCLUDED.author, metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at, version = rules.version + 1`,
		r.ID, r.Name, r.Description, string(r.Status), r.Query, r.Dialect, encodeTextArray(r.Indices), r.IntervalSec,
		r.LookbackSec, r.ThresholdCount, r.ThresholdField, r.Severity, r.Correlate,
		r.CorrelationID, encodeTextArray(r.Tags), r.Author, jsonOrEmpty(r.Metadata), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rule %s: %w", r.ID, err)
	}
	return nil
}

// MarkRun records that a rule ran, serialized per-rule via SELECT ... FOR
// UPDATE so concurrent scheduler ticks can't interleave updates to the
// same row.
func (s *Store) MarkRun(ctx context.Context, id string, ranAt time.Time, hits int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	if err := tx.QueryRowContext(ctx,
		`SELECT version FROM rules WHERE id = $1 FOR UPDATE`, id,
	).Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock rule %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rules SET last_run_at = $1, hit_count = hit_count + $2, version = version + 1
		 WHERE id = $3`, ranAt, hits, id); err != nil {
		return fmt.Errorf("failed to record run for rule %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run record for rule %s: %w", id, err)
	}
	return nil
}

// RecordExecution persists an audit record of one scheduled run.
func (s *Store) RecordExecution(ctx context.Context, e *models.Execution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, rule_id, status, started_at, finished_at, duration_ms,
			hit_count, hits_sample, error, threshold_met)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.RuleID, string(e.Status), e.StartedAt, e.FinishedAt, e.DurationMS,
		e.HitCount, e.HitsSample, e.Error, e.ThresholdOK)
	if err != nil {
		return fmt.Errorf("failed to record execution for rule %s: %w", e.RuleID, err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRule(row scannable) (*models.Rule, error) {
	var r models.Rule
	var status string
	var metadataJSON []byte
	var tagsText string
	var indicesText string
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &status, &r.Query, &r.Dialect, &indicesText,
		&r.IntervalSec, &r.LookbackSec, &r.ThresholdCount, &r.ThresholdField, &r.Severity,
		&r.Correlate, &r.CorrelationID, &tagsText, &r.Author, &metadataJSON,
		&r.CreatedAt, &r.UpdatedAt, &r.LastRunAt, &r.HitCount, &r.Version); err != nil {
		return nil, err
	}
	r.Status = models.RuleStatus(status)
	r.Indices = decodeTextArray(indicesText)
	r.Tags = decodeTextArray(tagsText)
	r.Metadata = parseJSONMap(metadataJSON)
	return &r, nil
}
