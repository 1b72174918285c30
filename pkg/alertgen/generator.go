// Package alertgen is the alert generator: it turns a rule match (from
// either the Detection Engine or the Correlation Engine) into a
// deduplicated, entity-enriched alert record, and publishes
// alert.created/alert.updated onto the alerts stream. Grounded in
// pkg/services/alert_service.go (input validation and record creation)
// and pkg/events/publisher.go's persist-then-notify transaction shape,
// translated from Postgres pg_notify to a pkg/buffer.Publish call.
package alertgen

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentineld/sentineld/pkg/buffer"
	"github.com/sentineld/sentineld/pkg/config"
	"github.com/sentineld/sentineld/pkg/historicalstore"
	"github.com/sentineld/sentineld/pkg/metrics"
	"github.com/sentineld/sentineld/pkg/models"
)

// Match is the synthetic hand-off both the Detection Engine and the
// Correlation Engine build on a hit: the rule that fired, the
// contributing hits, and whether ThresholdExceeded justifies an alert.
type Match struct {
	Rule              *models.Rule
	Hits              []historicalstore.Hit
	ThresholdExceeded bool
}

// severityDefault is used when a rule doesn't set Severity.
const severityDefault = "medium"

// Generator implements ingest_match: deduplication, entity extraction,
// ring-buffer retention, and alert.created/alert.updated publication.
type Generator struct {
	store *store
	buf   *buffer.Client
	cfg   *config.AlertConfig

	keyMu  sync.Mutex
	perKey map[string]*sync.Mutex
}

// New builds a Generator over an open database pool and the event buffer.
func New(db *sql.DB, buf *buffer.Client, cfg *config.AlertConfig) *Generator {
	return &Generator{
		store:  newStore(db),
		buf:    buf,
		cfg:    cfg,
		perKey: make(map[string]*sync.Mutex),
	}
}

// IngestMatch implements the alert generator's core operation: compute
// the dedup key, serialize per key, then create-or-update the matching
// open alert, persist transactionally, and publish the result.
func (g *Generator) IngestMatch(ctx context.Context, m Match) (*models.Alert, error) {
	if !m.ThresholdExceeded && len(m.Hits) == 0 {
		return nil, nil
	}

	entities := extractFromHits(m.Hits)
	key := dedupKey(m.Rule.ID, entities)

	mu := g.lockFor(m.Rule.ID, key)
	mu.Lock()
	defer mu.Unlock()

	existing, err := g.store.findOpen(ctx, m.Rule.ID, key)
	if err != nil {
		return nil, err
	}

	var alert *models.Alert
	var created bool
	if existing != nil {
		alert = applyUpdate(existing, m, entities, g.cfg.EventRingCapacity)
		if err := g.store.update(ctx, alert, existing.Version); err != nil {
			return nil, fmt.Errorf("failed to persist alert update: %w", err)
		}
	} else {
		alert = newAlert(m, entities, g.cfg.EventRingCapacity)
		if err := g.store.create(ctx, alert); err != nil {
			return nil, fmt.Errorf("failed to persist new alert: %w", err)
		}
		created = true
	}

	if created {
		metrics.AlertsCreatedTotal.Inc()
	} else {
		metrics.AlertsUpdatedTotal.Inc()
	}

	if err := g.publish(ctx, alert, created); err != nil {
		// The alert is already durably persisted; a publish failure only
		// delays downstream notification, so log rather than fail the call.
		slog.Error("failed to publish alert event", "alert_id", alert.ID, "error", err)
	}

	return alert, nil
}

func (g *Generator) lockFor(ruleID, key string) *sync.Mutex {
	compound := ruleID + "/" + key
	g.keyMu.Lock()
	defer g.keyMu.Unlock()
	mu, ok := g.perKey[compound]
	if !ok {
		mu = &sync.Mutex{}
		g.perKey[compound] = mu
	}
	return mu
}

func (g *Generator) publish(ctx context.Context, alert *models.Alert, created bool) error {
	eventType := "alert.updated"
	if created {
		eventType = "alert.created"
	}
	_, err := g.buf.Publish(ctx, buffer.StreamAlerts, map[string]any{
		"event_type": eventType,
		"alert_id":   alert.ID,
		"rule_id":    alert.RuleID,
		"dedup_key":  alert.DedupKey,
		"status":     string(alert.Status),
		"severity":   alert.Severity,
	})
	return err
}

func newAlert(m Match, entities map[string][]string, ringCapacity int) *models.Alert {
	now := time.Now().UTC()
	first, last := hitTimeBounds(m.Hits, now)
	events := hitsToEvents(m.Hits)

	return &models.Alert{
		ID:          uuid.New().String(),
		RuleID:      m.Rule.ID,
		DedupKey:    dedupKey(m.Rule.ID, entities),
		Status:      models.AlertStatusNew,
		Severity:    severity(m.Rule),
		Title:       fmt.Sprintf("%s matched %d event(s)", m.Rule.Name, len(m.Hits)),
		Entities:    entitiesToFields(entities),
		Events:      appendCapped(nil, events, ringCapacity),
		EventCount:  len(m.Hits),
		FirstSeenAt: first,
		LastSeenAt:  last,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func applyUpdate(existing *models.Alert, m Match, entities map[string][]string, ringCapacity int) *models.Alert {
	updated := *existing
	_, last := hitTimeBounds(m.Hits, existing.LastSeenAt)
	if last.After(updated.LastSeenAt) {
		updated.LastSeenAt = last
	}
	updated.EventCount += len(m.Hits)
	updated.Events = appendCapped(existing.Events, hitsToEvents(m.Hits), ringCapacity)
	updated.Entities = entitiesToFields(mergeEntities(entitiesFromFields(existing.Entities), entities))
	updated.UpdatedAt = time.Now().UTC()
	return &updated
}

func hitTimeBounds(hits []historicalstore.Hit, fallback time.Time) (first, last time.Time) {
	if len(hits) == 0 {
		return fallback, fallback
	}
	first, last = hits[0].Timestamp, hits[0].Timestamp
	for _, h := range hits[1:] {
		if h.Timestamp.Before(first) {
			first = h.Timestamp
		}
		if h.Timestamp.After(last) {
			last = h.Timestamp
		}
	}
	return first, last
}

func hitsToEvents(hits []historicalstore.Hit) []models.Event {
	events := make([]models.Event, 0, len(hits))
	for _, h := range hits {
		events = append(events, models.Event{
			ID:        h.EventID,
			Timestamp: h.Timestamp,
			Fields:    h.Fields,
		})
	}
	return events
}

func extractFromHits(hits []historicalstore.Hit) map[string][]string {
	var merged map[string][]string
	for _, h := range hits {
		merged = mergeEntities(merged, extractEntities(h.Fields))
	}
	return merged
}

func severity(r *models.Rule) string {
	if r.Severity == "" {
		return severityDefault
	}
	return r.Severity
}
