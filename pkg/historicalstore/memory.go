package historicalstore

import (
	"context"
	"fmt"
)

// MemoryStore is an in-memory Store used by detection-engine unit tests.
type MemoryStore struct {
	Hits []Hit
}

func (s *MemoryStore) Search(_ context.Context, q Query) ([]Hit, error) {
	matched := s.match(q)
	if q.Size > 0 && len(matched) > q.Size {
		matched = matched[:q.Size]
	}
	return matched, nil
}

func (s *MemoryStore) Count(_ context.Context, q Query) (int64, error) {
	return int64(len(s.match(q))), nil
}

// match applies the same dialect-interpreting logic PostgresStore's
// buildWhere does, kept here as plain Go instead of SQL: QueryString is
// opaque to every caller except the store itself.
func (s *MemoryStore) match(q Query) []Hit {
	parsed := parseQueryString(q)

	var out []Hit
	for _, h := range s.Hits {
		if !q.TimeFrom.IsZero() && h.Timestamp.Before(q.TimeFrom) {
			continue
		}
		if !q.TimeTo.IsZero() && !h.Timestamp.Before(q.TimeTo) {
			continue
		}
		if parsed.eventType != "" {
			if et, _ := h.Fields["event_type"].(string); et != parsed.eventType {
				continue
			}
		}
		ok := true
		for k, v := range parsed.filters {
			if fmt.Sprintf("%v", h.Fields[k]) != fmt.Sprintf("%v", v) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, h)
		}
	}
	return out
}
