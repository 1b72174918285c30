package alertgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractEntities_FlatFields(t *testing.T) {
	fields := map[string]any{
		"host.name":        "web-01",
		"user.name":        "alice",
		"source.ip":        "10.0.0.5",
		"file.hash.sha256": "abc123",
		"unrelated":        "ignored",
	}
	got := extractEntities(fields)
	assert.Equal(t, []string{"web-01"}, got["hosts"])
	assert.Equal(t, []string{"alice"}, got["users"])
	assert.Equal(t, []string{"10.0.0.5"}, got["ips"])
	assert.Equal(t, []string{"abc123"}, got["hashes"])
	assert.Nil(t, got["files"])
}

func TestExtractEntities_NestedFields(t *testing.T) {
	fields := map[string]any{
		"host": map[string]any{"name": "web-02"},
		"file": map[string]any{"hash": map[string]any{"sha256": "deadbeef"}},
	}
	got := extractEntities(fields)
	assert.Equal(t, []string{"web-02"}, got["hosts"])
	assert.Equal(t, []string{"deadbeef"}, got["hashes"])
}

func TestExtractEntities_MissingPathsSkipped(t *testing.T) {
	got := extractEntities(map[string]any{"unrelated": "value"})
	assert.Empty(t, got)
}

func TestMergeEntities_UnionsAndDedupes(t *testing.T) {
	a := map[string][]string{"hosts": {"web-01"}}
	b := map[string][]string{"hosts": {"web-01", "web-02"}, "users": {"alice"}}
	merged := mergeEntities(a, b)
	assert.Equal(t, []string{"web-01", "web-02"}, merged["hosts"])
	assert.Equal(t, []string{"alice"}, merged["users"])
}
