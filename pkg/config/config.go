package config

// Config is the umbrella configuration object returned by Initialize and
// threaded through the buffer, scheduler, correlation, alert, and detection
// components.
type Config struct {
	configDir string

	Redis *RedisConfig

	Streams struct {
		Events      *StreamConfig
		Alerts      *StreamConfig
		Correlation *StreamConfig
		DeadLetter  *StreamConfig
	}

	Consumer    *ConsumerConfig
	Scheduler   *SchedulerConfig
	Correlation *CorrelationConfig
	Alert       *AlertConfig
	Detection   *DetectionConfig
	State       *StateConfig
	Metrics     *MetricsConfig
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}
