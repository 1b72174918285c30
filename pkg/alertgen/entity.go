package alertgen

import "sort"

// canonicalFieldPaths maps each entity bucket to the dotted field paths
// extracted from a hit's fields. Unknown/missing paths are skipped
// without error.
var canonicalFieldPaths = map[string][]string{
	"hosts":  {"host.name"},
	"users":  {"user.name"},
	"ips":    {"source.ip", "destination.ip", "host.ip"},
	"hashes": {"file.hash.sha256", "file.hash.sha1", "file.hash.md5"},
	"files":  {"file.path", "process.executable"},
}

// extractEntities pulls the canonical entity subset out of fields,
// returning one sorted, de-duplicated string slice per bucket.
func extractEntities(fields map[string]any) map[string][]string {
	out := make(map[string][]string, len(canonicalFieldPaths))
	for bucket, paths := range canonicalFieldPaths {
		seen := map[string]bool{}
		var values []string
		for _, path := range paths {
			v, ok := lookupDotted(fields, path)
			if !ok {
				continue
			}
			s, ok := v.(string)
			if !ok || s == "" || seen[s] {
				continue
			}
			seen[s] = true
			values = append(values, s)
		}
		if len(values) > 0 {
			sort.Strings(values)
			out[bucket] = values
		}
	}
	return out
}

// lookupDotted resolves a dotted path like "file.hash.sha256" against a
// map that may itself contain nested maps (map[string]any) for the dotted
// segments, or may carry the whole path as a single flat key (the shape
// events arrive in off the buffer, where nested JSON collapses to
// map[string]any during Redis field decoding).
func lookupDotted(fields map[string]any, path string) (any, bool) {
	if v, ok := fields[path]; ok {
		return v, true
	}

	segments := splitPath(path)
	var cur any = map[string]any(fields)
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segments = append(segments, path[start:i])
			start = i + 1
		}
	}
	segments = append(segments, path[start:])
	return segments
}

// mergeEntities unions b into a in place, keeping a's buckets sorted and
// de-duplicated.
func mergeEntities(a map[string][]string, b map[string][]string) map[string][]string {
	if a == nil {
		a = map[string][]string{}
	}
	for bucket, values := range b {
		seen := map[string]bool{}
		for _, v := range a[bucket] {
			seen[v] = true
		}
		merged := append([]string{}, a[bucket]...)
		for _, v := range values {
			if !seen[v] {
				seen[v] = true
				merged = append(merged, v)
			}
		}
		sort.Strings(merged)
		a[bucket] = merged
	}
	return a
}

// entitiesToFields converts the bucketed string-slice form used during
// extraction into the map[string]any shape models.Alert.Entities stores.
func entitiesToFields(e map[string][]string) map[string]any {
	out := make(map[string]any, len(e))
	for bucket, values := range e {
		out[bucket] = values
	}
	return out
}

func entitiesFromFields(f map[string]any) map[string][]string {
	out := make(map[string][]string, len(f))
	for bucket, raw := range f {
		switch v := raw.(type) {
		case []string:
			out[bucket] = v
		case []any:
			values := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					values = append(values, s)
				}
			}
			out[bucket] = values
		}
	}
	return out
}
