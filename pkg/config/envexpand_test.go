package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	os.Setenv("SENTINELD_TEST_HOST", "redis.internal")
	defer os.Unsetenv("SENTINELD_TEST_HOST")

	out := ExpandEnv([]byte("addr: ${SENTINELD_TEST_HOST}:6379"))
	assert.Equal(t, "addr: redis.internal:6379", string(out))
}

func TestExpandEnv_MissingVarBecomesEmpty(t *testing.T) {
	out := ExpandEnv([]byte("token: ${SENTINELD_DOES_NOT_EXIST}"))
	assert.Equal(t, "token: ", string(out))
}
