package correlation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardFor_Deterministic(t *testing.T) {
	a := ShardFor("user:alice", 16)
	b := ShardFor("user:alice", 16)
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 16)
}

func TestShardFor_SingleShard(t *testing.T) {
	assert.Equal(t, 0, ShardFor("anything", 1))
	assert.Equal(t, 0, ShardFor("anything", 0))
}

func TestShardFor_SpreadsAcrossShards(t *testing.T) {
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("entity-%d", i)
		seen[ShardFor(key, 16)] = true
	}
	assert.Greater(t, len(seen), 1)
}
