package models

import "time"

// AlertStatus is a node in the alert lifecycle DAG. Transitions are
// enforced by pkg/alertgen; see its status.go.
type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "new"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusInProgress   AlertStatus = "in_progress"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusClosed       AlertStatus = "closed"
	AlertStatusSuppressed   AlertStatus = "suppressed"
)

// Alert is a correlated/thresholded detection surfaced to an operator.
// Alerts are deduplicated by DedupKey: repeated hits update the same alert
// for as long as it is not closed or resolved, however old it is, rather
// than creating a new one.
type Alert struct {
	ID              string         `json:"id"`
	RuleID          string         `json:"rule_id"`
	DedupKey        string         `json:"dedup_key"`
	Status          AlertStatus    `json:"status"`
	Severity        string         `json:"severity"`
	Title           string         `json:"title"`
	Entities        map[string]any `json:"entities,omitempty"`
	Events          []Event        `json:"events"`
	EventCount      int            `json:"event_count"`
	RelatedAlertIDs []string       `json:"related_alert_ids,omitempty"`
	FirstSeenAt     time.Time      `json:"first_seen_at"`
	LastSeenAt      time.Time      `json:"last_seen_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Version         int            `json:"version"`
}
