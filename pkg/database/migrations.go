package database

import (
	"context"
	stdsql "database/sql"
	"fmt"
)

// CreateGINIndexes creates the JSONB/full-text GIN indexes the historical
// store's KQL-subset matcher relies on. Kept outside the golang-migrate
// migration set because CREATE INDEX ... IF NOT EXISTS is idempotent and
// cheap to run on every startup, rather than versioned.
func CreateGINIndexes(ctx context.Context, db *stdsql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_events_fields_gin
		ON events USING gin(fields jsonb_path_ops)`)
	if err != nil {
		return fmt.Errorf("failed to create events.fields GIN index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_alerts_entities_gin
		ON alerts USING gin(entities jsonb_path_ops)`)
	if err != nil {
		return fmt.Errorf("failed to create alerts.entities GIN index: %w", err)
	}

	return nil
}
