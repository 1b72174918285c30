// Package correlation implements the correlation engine: stateful,
// windowed, per-entity sequence matching over the events stream.
// Each entity key is deterministically assigned to one of N shards; a
// single goroutine owns each shard, giving per-entity ordering without
// needing Redis-side stream partitioning.
package correlation

import "hash/fnv"

// ShardFor deterministically maps an entity key to one of n shards.
func ShardFor(entityKey string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(entityKey))
	return int(h.Sum32() % uint32(n))
}
