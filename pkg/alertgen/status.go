package alertgen

import (
	"errors"
	"fmt"

	"github.com/sentineld/sentineld/pkg/models"
)

// ErrInvalidTransition is returned when a caller requests a status change
// the lifecycle DAG does not permit.
var ErrInvalidTransition = errors.New("invalid alert status transition")

// allowedTransitions encodes the lifecycle DAG:
//
//	new ──ack──► acknowledged ──start──► in_progress ──close──► closed
//	  │             │                         │                    ▲
//	  └─────────────┴──────── close ───────────┴───────────────────┘
//
// plus "resolved" and "suppressed" as additional terminal states an
// operator may reach directly from any open status, and "suppressed" as
// a dedicated no-alert-noise terminal distinct from a worked "closed".
// Reopening a closed or resolved alert is never permitted; the operator
// links a new alert back via RelatedAlertIDs instead.
var allowedTransitions = map[models.AlertStatus][]models.AlertStatus{
	models.AlertStatusNew: {
		models.AlertStatusAcknowledged,
		models.AlertStatusClosed,
		models.AlertStatusResolved,
		models.AlertStatusSuppressed,
	},
	models.AlertStatusAcknowledged: {
		models.AlertStatusInProgress,
		models.AlertStatusClosed,
		models.AlertStatusResolved,
		models.AlertStatusSuppressed,
	},
	models.AlertStatusInProgress: {
		models.AlertStatusClosed,
		models.AlertStatusResolved,
		models.AlertStatusSuppressed,
	},
	models.AlertStatusClosed:     {},
	models.AlertStatusResolved:   {},
	models.AlertStatusSuppressed: {},
}

// isOpen reports whether status is a non-terminal status in the lifecycle
// DAG. IngestMatch's dedup lookup (store.findOpen) does not use it: that
// lookup skips only closed and resolved alerts, so a suppressed alert
// still absorbs further matches.
func isOpen(status models.AlertStatus) bool {
	switch status {
	case models.AlertStatusNew, models.AlertStatusAcknowledged, models.AlertStatusInProgress:
		return true
	default:
		return false
	}
}

// Transition validates and returns the next status for an operator-driven
// change, per the lifecycle DAG above.
func Transition(from, to models.AlertStatus) (models.AlertStatus, error) {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return to, nil
		}
	}
	return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
