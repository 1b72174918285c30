package config

// DefaultStreamConfig returns the default bounds for an event-buffer stream.
func DefaultStreamConfig(consumerGroup string) *StreamConfig {
	return &StreamConfig{
		MaxLen:        1_000_000,
		Backpressure:  BackpressureDropOldest,
		ConsumerGroup: consumerGroup,
	}
}

// DefaultConsumerConfig returns the default consumer polling/claim settings.
func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		BlockMS:      5000,
		BatchSize:    100,
		ClaimIdleMS:  30_000,
		ClaimEveryMS: 10_000,
	}
}

// DefaultSchedulerConfig returns the default rule-dispatch scheduler settings.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		TickSeconds:       5,
		Workers:           8,
		LeaseSeconds:      15,
		GracefulStopDelay: 10,
	}
}

// DefaultCorrelationConfig returns the default correlation-engine settings.
func DefaultCorrelationConfig() *CorrelationConfig {
	return &CorrelationConfig{
		Shards:               16,
		WindowGraceSeconds:   30,
		LatenessBoundSeconds: 300,
		SweepIntervalSeconds: 10,
	}
}

// DefaultAlertConfig returns the default alert-generator settings.
func DefaultAlertConfig() *AlertConfig {
	return &AlertConfig{
		EventRingCapacity:  100,
		DedupWindowSeconds: 3600,
	}
}

// DefaultDetectionConfig returns the default detection-engine settings.
func DefaultDetectionConfig() *DetectionConfig {
	return &DetectionConfig{
		EmitOnTimeout:     false,
		DefaultTimeoutSec: 30,
		MaxHitsSample:     50,
	}
}

// DefaultStateConfig returns the default optimistic-concurrency settings.
func DefaultStateConfig() *StateConfig {
	return &StateConfig{
		OptimisticRetries: 3,
	}
}

// DefaultMetricsConfig returns the default metrics exposition settings.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled: true,
		Addr:    ":9090",
	}
}
