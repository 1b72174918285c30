package alertgen

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// stableEntityBuckets are the identifier buckets that participate in the
// dedup key — host/user/ip, not the higher-cardinality hash/file buckets.
var stableEntityBuckets = []string{"hosts", "users", "ips"}

// stableEntities returns the sorted, de-duplicated set of host/user/ip
// identifiers from an extracted entity map, used as the dedup key's
// canonical input.
func stableEntities(entities map[string][]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, bucket := range stableEntityBuckets {
		for _, v := range entities[bucket] {
			key := bucket + ":" + v
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// dedupKey computes sha256(rule_id || canonical(stable_entities)),
// rule-scoped so the same entity set under a different rule never
// collides.
func dedupKey(ruleID string, entities map[string][]string) string {
	canonical := strings.Join(stableEntities(entities), "|")
	h := sha256.New()
	_, _ = h.Write([]byte(ruleID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}
