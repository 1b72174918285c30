package alertgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupKey_StableAcrossFieldOrder(t *testing.T) {
	a := map[string][]string{"hosts": {"web-01"}, "users": {"alice"}}
	b := map[string][]string{"users": {"alice"}, "hosts": {"web-01"}}
	assert.Equal(t, dedupKey("rule-1", a), dedupKey("rule-1", b))
}

func TestDedupKey_RuleScoped(t *testing.T) {
	entities := map[string][]string{"hosts": {"web-01"}}
	assert.NotEqual(t, dedupKey("rule-1", entities), dedupKey("rule-2", entities))
}

func TestDedupKey_IgnoresHashesAndFiles(t *testing.T) {
	withExtra := map[string][]string{"hosts": {"web-01"}, "hashes": {"abc"}}
	withoutExtra := map[string][]string{"hosts": {"web-01"}}
	assert.Equal(t, dedupKey("rule-1", withExtra), dedupKey("rule-1", withoutExtra))
}
