package alertgen

import "github.com/sentineld/sentineld/pkg/models"

// appendCapped appends newEvents to events, then evicts from the front
// until len(events) <= capacity — the alert's bounded ring buffer of its
// most recently matched events (config.AlertConfig.EventRingCapacity,
// default 100).
func appendCapped(events []models.Event, newEvents []models.Event, capacity int) []models.Event {
	events = append(events, newEvents...)
	if len(events) <= capacity {
		return events
	}
	overflow := len(events) - capacity
	return append([]models.Event{}, events[overflow:]...)
}
