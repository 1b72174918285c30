package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// sentineldYAML mirrors the on-disk sentineld.yaml file. All fields are
// optional — anything left unset is filled in from the built-in defaults.
// An explicit zero value (e.g. shards: 0) cannot be told apart from an
// unset field and also takes the built-in default.
type sentineldYAML struct {
	Redis   *RedisConfig `yaml:"redis"`
	Streams *struct {
		Events      *StreamConfig `yaml:"events"`
		Alerts      *StreamConfig `yaml:"alerts"`
		Correlation *StreamConfig `yaml:"correlation"`
		DeadLetter  *StreamConfig `yaml:"dlq"`
	} `yaml:"streams"`
	Consumer    *ConsumerConfig    `yaml:"consumer"`
	Scheduler   *SchedulerConfig   `yaml:"scheduler"`
	Correlation *CorrelationConfig `yaml:"correlation"`
	Alert       *AlertConfig       `yaml:"alert"`
	Detection   *DetectionConfig   `yaml:"detection"`
	State       *StateConfig       `yaml:"state"`
	Metrics     *MetricsConfig     `yaml:"metrics"`
}

// Initialize loads, merges with built-in defaults, validates, and returns
// ready-to-use configuration. This is the primary entry point.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"shards", cfg.Correlation.Shards,
		"scheduler_workers", cfg.Scheduler.Workers)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	user, err := loader.loadSentineldYAML()
	if err != nil {
		return nil, NewLoadError("sentineld.yaml", err)
	}

	cfg := &Config{
		configDir:   configDir,
		Redis:       &RedisConfig{Addr: "localhost:6379"},
		Consumer:    DefaultConsumerConfig(),
		Scheduler:   DefaultSchedulerConfig(),
		Correlation: DefaultCorrelationConfig(),
		Alert:       DefaultAlertConfig(),
		Detection:   DefaultDetectionConfig(),
		State:       DefaultStateConfig(),
		Metrics:     DefaultMetricsConfig(),
	}
	cfg.Streams.Events = DefaultStreamConfig("sentineld-detection")
	cfg.Streams.Alerts = DefaultStreamConfig("sentineld-alerts")
	cfg.Streams.Correlation = DefaultStreamConfig("sentineld-correlation")
	cfg.Streams.DeadLetter = DefaultStreamConfig("sentineld-dlq")

	if user.Redis != nil {
		if err := mergo.Merge(cfg.Redis, user.Redis, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge redis config: %w", err)
		}
	}
	if user.Streams != nil {
		if err := mergeStream(cfg.Streams.Events, user.Streams.Events); err != nil {
			return nil, err
		}
		if err := mergeStream(cfg.Streams.Alerts, user.Streams.Alerts); err != nil {
			return nil, err
		}
		if err := mergeStream(cfg.Streams.Correlation, user.Streams.Correlation); err != nil {
			return nil, err
		}
		if err := mergeStream(cfg.Streams.DeadLetter, user.Streams.DeadLetter); err != nil {
			return nil, err
		}
	}
	if err := mergeInto(cfg.Consumer, user.Consumer); err != nil {
		return nil, err
	}
	if err := mergeInto(cfg.Scheduler, user.Scheduler); err != nil {
		return nil, err
	}
	if err := mergeInto(cfg.Correlation, user.Correlation); err != nil {
		return nil, err
	}
	if err := mergeInto(cfg.Alert, user.Alert); err != nil {
		return nil, err
	}
	if err := mergeInto(cfg.Detection, user.Detection); err != nil {
		return nil, err
	}
	if err := mergeInto(cfg.State, user.State); err != nil {
		return nil, err
	}
	if err := mergeInto(cfg.Metrics, user.Metrics); err != nil {
		return nil, err
	}

	return cfg, nil
}

func mergeStream(dst *StreamConfig, src *StreamConfig) error {
	if src == nil {
		return nil
	}
	if err := mergo.Merge(dst, src, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge stream config: %w", err)
	}
	return nil
}

// mergeInto merges src onto dst in place, treating a nil src as a no-op.
// T is always a pointer-shaped config struct (StreamConfig, SchedulerConfig, ...).
func mergeInto[T any](dst *T, src *T) error {
	if src == nil {
		return nil
	}
	if err := mergo.Merge(dst, src, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadSentineldYAML() (*sentineldYAML, error) {
	var doc sentineldYAML
	if err := l.loadYAML("sentineld.yaml", &doc); err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return &sentineldYAML{}, nil
		}
		return nil, err
	}
	return &doc, nil
}
