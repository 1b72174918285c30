package alertgen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sentineld/sentineld/pkg/models"
)

// ErrNotFound is returned when an alert ID has no matching row.
var ErrNotFound = errors.New("alert not found")

// ErrVersionConflict is returned when update loses an optimistic-
// concurrency race against a concurrent writer for the same alert.
var ErrVersionConflict = errors.New("alert version conflict")

// store is the alert store: PostgreSQL-backed CRUD, written directly
// against database/sql + pgx (same shape as pkg/rulestore).
type store struct {
	db *sql.DB
}

func newStore(db *sql.DB) *store {
	return &store{db: db}
}

// findOpen looks up the alert for (ruleID, dedupKey) that is neither
// closed nor resolved, if any; a suppressed alert counts, matching the
// partial unique index on alerts.dedup_key.
func (s *store) findOpen(ctx context.Context, ruleID, key string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, rule_id, dedup_key, status, severity, title,
		entities, events, event_count, related_alert_ids, first_seen_at, last_seen_at,
		created_at, updated_at, version
		FROM alerts WHERE rule_id = $1 AND dedup_key = $2
		AND status NOT IN ('closed', 'resolved')`, ruleID, key)

	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up open alert for %s/%s: %w", ruleID, key, err)
	}
	return a, nil
}

// get fetches a single alert by ID.
func (s *store) get(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, rule_id, dedup_key, status, severity, title,
		entities, events, event_count, related_alert_ids, first_seen_at, last_seen_at,
		created_at, updated_at, version
		FROM alerts WHERE id = $1`, id)

	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	return a, nil
}

// create inserts a brand-new alert.
func (s *store) create(ctx context.Context, a *models.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, rule_id, dedup_key, status, severity, title, entities, events,
			event_count, related_alert_ids, first_seen_at, last_seen_at, created_at, updated_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,1)`,
		a.ID, a.RuleID, a.DedupKey, string(a.Status), a.Severity, a.Title,
		jsonOrEmpty(a.Entities), jsonOrEmpty(a.Events), a.EventCount,
		encodeTextArray(a.RelatedAlertIDs), a.FirstSeenAt, a.LastSeenAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert %s: %w", a.ID, err)
	}
	a.Version = 1
	return nil
}

// update applies an in-place mutation to an existing open alert, via CAS
// on the version column — the alert-side equivalent of pkg/rulestore's
// and pkg/correlation's optimistic-concurrency update.
func (s *store) update(ctx context.Context, a *models.Alert, expectedVersion int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = $1, entities = $2, events = $3, event_count = $4,
			related_alert_ids = $5, last_seen_at = $6, updated_at = $7, version = version + 1
		WHERE id = $8 AND version = $9`,
		string(a.Status), jsonOrEmpty(a.Entities), jsonOrEmpty(a.Events), a.EventCount,
		encodeTextArray(a.RelatedAlertIDs), a.LastSeenAt, a.UpdatedAt, a.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", a.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result for alert %s: %w", a.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to update alert %s: %w", a.ID, ErrVersionConflict)
	}
	a.Version = expectedVersion + 1
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAlert(row scannable) (*models.Alert, error) {
	var a models.Alert
	var status string
	var entitiesJSON, eventsJSON []byte
	var relatedText string
	if err := row.Scan(&a.ID, &a.RuleID, &a.DedupKey, &status, &a.Severity, &a.Title,
		&entitiesJSON, &eventsJSON, &a.EventCount, &relatedText,
		&a.FirstSeenAt, &a.LastSeenAt, &a.CreatedAt, &a.UpdatedAt, &a.Version); err != nil {
		return nil, err
	}
	a.Status = models.AlertStatus(status)
	a.Entities = parseEntities(entitiesJSON)
	a.Events = parseEvents(eventsJSON)
	a.RelatedAlertIDs = decodeTextArray(relatedText)
	return &a, nil
}
