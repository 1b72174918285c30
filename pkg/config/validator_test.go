package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	cfg := &Config{
		Redis:       &RedisConfig{Addr: "localhost:6379"},
		Consumer:    DefaultConsumerConfig(),
		Scheduler:   DefaultSchedulerConfig(),
		Correlation: DefaultCorrelationConfig(),
		Alert:       DefaultAlertConfig(),
		Detection:   DefaultDetectionConfig(),
		State:       DefaultStateConfig(),
		Metrics:     DefaultMetricsConfig(),
	}
	cfg.Streams.Events = DefaultStreamConfig("events")
	cfg.Streams.Alerts = DefaultStreamConfig("alerts")
	cfg.Streams.Correlation = DefaultStreamConfig("correlation")
	cfg.Streams.DeadLetter = DefaultStreamConfig("dlq")
	return cfg
}

func TestValidateAll_Valid(t *testing.T) {
	assert.NoError(t, NewValidator(validConfig()).ValidateAll())
}

func TestValidateAll_BadShards(t *testing.T) {
	cfg := validConfig()
	cfg.Correlation.Shards = 0
	err := NewValidator(cfg).ValidateAll()
	assert.Error(t, err)
}

func TestValidateAll_BadBackpressure(t *testing.T) {
	cfg := validConfig()
	cfg.Streams.Events.Backpressure = "bogus"
	err := NewValidator(cfg).ValidateAll()
	assert.Error(t, err)
}

func TestValidateAll_MissingRedisAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Addr = ""
	err := NewValidator(cfg).ValidateAll()
	assert.Error(t, err)
}
