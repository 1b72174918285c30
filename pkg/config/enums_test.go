package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackpressurePolicy_IsValid(t *testing.T) {
	assert.True(t, BackpressureDropOldest.IsValid())
	assert.True(t, BackpressureRejectNew.IsValid())
	assert.False(t, BackpressurePolicy("bogus").IsValid())
}

func TestQueryDialect_IsValid(t *testing.T) {
	assert.True(t, DialectKQLSubset.IsValid())
	assert.True(t, DialectESQL.IsValid())
	assert.False(t, QueryDialect("bogus").IsValid())
}
