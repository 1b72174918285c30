package config

import "time"

// RedisConfig configures the connection to the Redis instance backing
// the event buffer's streams.
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"required"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// StreamConfig configures a single event-buffer stream's bound and
// backpressure behavior.
type StreamConfig struct {
	MaxLen        int64              `yaml:"maxlen" validate:"required,min=1"`
	Backpressure  BackpressurePolicy `yaml:"backpressure" validate:"required"`
	ConsumerGroup string             `yaml:"consumer_group" validate:"required"`
}

// ConsumerConfig configures how buffer consumers read and reclaim entries.
type ConsumerConfig struct {
	BlockMS      int `yaml:"block_ms" validate:"min=0"`
	BatchSize    int `yaml:"batch_size" validate:"required,min=1"`
	ClaimIdleMS  int `yaml:"claim_idle_ms" validate:"required,min=1"`
	ClaimEveryMS int `yaml:"claim_every_ms" validate:"required,min=1"`
}

// SchedulerConfig configures the rule-dispatch tick loop and its worker pool.
type SchedulerConfig struct {
	TickSeconds       int `yaml:"tick_seconds" validate:"required,min=1"`
	Workers           int `yaml:"workers" validate:"required,min=1,max=256"`
	LeaseSeconds      int `yaml:"lease_seconds" validate:"required,min=1"`
	GracefulStopDelay int `yaml:"graceful_stop_seconds" validate:"min=0"`
}

// CorrelationConfig configures the sharded correlation engine.
type CorrelationConfig struct {
	Shards               int `yaml:"shards" validate:"required,min=1,max=1024"`
	WindowGraceSeconds   int `yaml:"window_grace_seconds" validate:"required,min=0"`
	LatenessBoundSeconds int `yaml:"lateness_bound_seconds" validate:"required,min=0"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" validate:"required,min=1"`
}

// AlertConfig configures the alert generator.
type AlertConfig struct {
	EventRingCapacity int `yaml:"event_ring_capacity" validate:"required,min=1"`
	DedupWindowSeconds int `yaml:"dedup_window_seconds" validate:"required,min=0"`
}

// DetectionConfig configures rule execution semantics.
type DetectionConfig struct {
	EmitOnTimeout      bool `yaml:"emit_on_timeout"`
	DefaultTimeoutSec  int  `yaml:"default_timeout_seconds" validate:"required,min=1"`
	MaxHitsSample      int  `yaml:"max_hits_sample" validate:"required,min=1"`
}

// StateConfig configures optimistic-concurrency retry behavior for
// correlation/rule state writes guarded by a version column.
type StateConfig struct {
	OptimisticRetries int `yaml:"optimistic_retries" validate:"required,min=0"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"`
}

// TickDuration returns the scheduler tick interval as a time.Duration.
func (s *SchedulerConfig) TickDuration() time.Duration {
	return time.Duration(s.TickSeconds) * time.Second
}

// SweepInterval returns the sweeper's poll interval as a time.Duration.
func (c *CorrelationConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
