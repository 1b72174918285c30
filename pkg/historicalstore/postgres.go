package historicalstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sentineld/sentineld/pkg/models"
)

// PostgresStore is the reference Store adapter: a JSONB events table with
// a small exact-match filter matcher, covering the KQL subset the
// detection engine's query rewriter emits for the "kql" dialect. Not
// intended to scale to a real SIEM's search volume — production
// deployments swap in a dedicated search backend behind the same
// interface.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Index writes an event into the reference store, making it visible to
// Search/Count immediately — the write side the historical indexer
// consumer drives, one insert per event read off the events stream.
func (s *PostgresStore) Index(ctx context.Context, ev models.Event) error {
	fieldsJSON, err := json.Marshal(ev.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal event fields for %s: %w", ev.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, source, event_type, entity_key, "timestamp", ingest_at, fields, tags)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Source, ev.EventType, ev.EntityKey, ev.Timestamp, ev.IngestAt, fieldsJSON, encodeTags(ev.Tags))
	if err != nil {
		return fmt.Errorf("failed to index event %s: %w", ev.ID, err)
	}
	return nil
}

func encodeTags(tags []string) string {
	return "{" + strings.Join(tags, ",") + "}"
}

func (s *PostgresStore) Search(ctx context.Context, q Query) ([]Hit, error) {
	clause, args := buildWhere(q)
	limit := q.Size
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, "timestamp", fields FROM events WHERE %s ORDER BY "timestamp" DESC LIMIT $%d`,
		clause, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("historical store search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var fieldsJSON []byte
		if err := rows.Scan(&h.EventID, &h.Timestamp, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &h.Fields); err != nil {
				return nil, fmt.Errorf("failed to decode event fields: %w", err)
			}
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, q Query) (int64, error) {
	clause, args := buildWhere(q)

	var count int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT count(*) FROM events WHERE %s`, clause), args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("historical store count failed: %w", err)
	}
	return count, nil
}

// buildWhere translates a Query into a parameterized WHERE clause. The
// query string's dialect syntax is interpreted once, here, into an event
// type and exact-match filters; those map to JSONB containment
// (`fields @> '{"k":"v"}'`), which the jsonb_path_ops GIN index on
// events.fields (pkg/database migrations) serves efficiently. The engine
// never sees this structure — Query.QueryString stays opaque to it.
func buildWhere(q Query) (string, []any) {
	parsed := parseQueryString(q)

	clauses := []string{"1=1"}
	var args []any

	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(q.Indices) > 0 {
		clauses = append(clauses, "source = ANY("+next(encodeTags(q.Indices))+"::text[])")
	}
	if parsed.eventType != "" {
		clauses = append(clauses, "event_type = "+next(parsed.eventType))
	}
	if !q.TimeFrom.IsZero() {
		clauses = append(clauses, `"timestamp" >= `+next(q.TimeFrom))
	}
	if !q.TimeTo.IsZero() {
		clauses = append(clauses, `"timestamp" < `+next(q.TimeTo))
	}
	for k, v := range parsed.filters {
		filterJSON, _ := json.Marshal(map[string]any{k: v})
		clauses = append(clauses, "fields @> "+next(string(filterJSON))+"::jsonb")
	}

	return strings.Join(clauses, " AND "), args
}
