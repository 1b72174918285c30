package config

import "fmt"

// Validator validates a fully-merged Config, failing fast on the first
// invalid field.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll validates every section in dependency order.
func (v *Validator) ValidateAll() error {
	if err := v.validateRedis(); err != nil {
		return fmt.Errorf("redis validation failed: %w", err)
	}
	if err := v.validateStreams(); err != nil {
		return fmt.Errorf("stream validation failed: %w", err)
	}
	if err := v.validateConsumer(); err != nil {
		return fmt.Errorf("consumer validation failed: %w", err)
	}
	if err := v.validateScheduler(); err != nil {
		return fmt.Errorf("scheduler validation failed: %w", err)
	}
	if err := v.validateCorrelation(); err != nil {
		return fmt.Errorf("correlation validation failed: %w", err)
	}
	if err := v.validateAlert(); err != nil {
		return fmt.Errorf("alert validation failed: %w", err)
	}
	if err := v.validateDetection(); err != nil {
		return fmt.Errorf("detection validation failed: %w", err)
	}
	if err := v.validateState(); err != nil {
		return fmt.Errorf("state validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateRedis() error {
	if v.cfg.Redis == nil || v.cfg.Redis.Addr == "" {
		return NewValidationError("redis", "addr", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateStreams() error {
	for name, s := range map[string]*StreamConfig{
		"events":      v.cfg.Streams.Events,
		"alerts":      v.cfg.Streams.Alerts,
		"correlation": v.cfg.Streams.Correlation,
		"dlq":         v.cfg.Streams.DeadLetter,
	} {
		if s == nil {
			return NewValidationError("streams."+name, "", ErrMissingRequiredField)
		}
		if s.MaxLen < 1 {
			return NewValidationError("streams."+name, "maxlen", ErrInvalidValue)
		}
		if !s.Backpressure.IsValid() {
			return NewValidationError("streams."+name, "backpressure", ErrInvalidValue)
		}
		if s.ConsumerGroup == "" {
			return NewValidationError("streams."+name, "consumer_group", ErrMissingRequiredField)
		}
	}
	return nil
}

func (v *Validator) validateConsumer() error {
	c := v.cfg.Consumer
	if c.BatchSize < 1 {
		return NewValidationError("consumer", "batch_size", ErrInvalidValue)
	}
	if c.ClaimIdleMS < 1 {
		return NewValidationError("consumer", "claim_idle_ms", ErrInvalidValue)
	}
	if c.ClaimEveryMS < 1 {
		return NewValidationError("consumer", "claim_every_ms", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateScheduler() error {
	s := v.cfg.Scheduler
	if s.TickSeconds < 1 {
		return NewValidationError("scheduler", "tick_seconds", ErrInvalidValue)
	}
	if s.Workers < 1 || s.Workers > 256 {
		return NewValidationError("scheduler", "workers", ErrInvalidValue)
	}
	if s.LeaseSeconds < 1 {
		return NewValidationError("scheduler", "lease_seconds", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateCorrelation() error {
	c := v.cfg.Correlation
	if c.Shards < 1 || c.Shards > 1024 {
		return NewValidationError("correlation", "shards", ErrInvalidValue)
	}
	if c.WindowGraceSeconds < 0 {
		return NewValidationError("correlation", "window_grace_seconds", ErrInvalidValue)
	}
	if c.LatenessBoundSeconds < 0 {
		return NewValidationError("correlation", "lateness_bound_seconds", ErrInvalidValue)
	}
	if c.SweepIntervalSeconds < 1 {
		return NewValidationError("correlation", "sweep_interval_seconds", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateAlert() error {
	a := v.cfg.Alert
	if a.EventRingCapacity < 1 {
		return NewValidationError("alert", "event_ring_capacity", ErrInvalidValue)
	}
	if a.DedupWindowSeconds < 0 {
		return NewValidationError("alert", "dedup_window_seconds", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateDetection() error {
	d := v.cfg.Detection
	if d.DefaultTimeoutSec < 1 {
		return NewValidationError("detection", "default_timeout_seconds", ErrInvalidValue)
	}
	if d.MaxHitsSample < 1 {
		return NewValidationError("detection", "max_hits_sample", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateState() error {
	if v.cfg.State.OptimisticRetries < 0 {
		return NewValidationError("state", "optimistic_retries", ErrInvalidValue)
	}
	return nil
}
