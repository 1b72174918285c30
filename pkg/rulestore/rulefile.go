package rulestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sentineld/sentineld/pkg/models"
)

// ruleFile mirrors an on-disk rule definition: a detection rule plus an
// optional correlation sequence. Authored by detection engineers as YAML,
// the same on-disk-then-merge shape pkg/config uses for process
// configuration.
type ruleFile struct {
	ID             string           `yaml:"id"`
	Name           string           `yaml:"name"`
	Description    string           `yaml:"description"`
	Status         string           `yaml:"status"`
	Query          string           `yaml:"query"`
	Dialect        string           `yaml:"dialect"`
	Indices        []string         `yaml:"indices"`
	IntervalSec    int              `yaml:"interval_seconds"`
	LookbackSec    int              `yaml:"lookback_seconds"`
	ThresholdCount int              `yaml:"threshold_count"`
	ThresholdField string           `yaml:"threshold_field"`
	Severity       string           `yaml:"severity"`
	Tags           []string         `yaml:"tags"`
	Author         string           `yaml:"author"`
	Metadata       map[string]any   `yaml:"metadata"`
	Correlation    *correlationFile `yaml:"correlation"`
}

type correlationFile struct {
	EntityKeyFields  []string                  `yaml:"entity_key_fields"`
	WindowSeconds    int                       `yaml:"window_seconds"`
	Stages           []models.CorrelationStage `yaml:"stages"`
	StageOrder       models.StageOrder         `yaml:"stage_order"`
	MinCountPerStage int                       `yaml:"min_count_per_stage"`
	RequireDistinct  string                    `yaml:"require_distinct"`
}

// LoadRuleFiles reads every *.yaml/*.yml file in dir and returns the
// detection rules and correlation rules they define. Rules that declare
// a correlation block get Correlate=true and a CorrelationID equal to
// their own rule ID — one correlation sequence per authored rule file.
func LoadRuleFiles(dir string) ([]*models.Rule, []*models.CorrelationRule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rules directory %s: %w", dir, err)
	}

	var rules []*models.Rule
	var correlationRules []*models.CorrelationRule
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		rule, corrRule, err := parseRuleFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse rule file %s: %w", path, err)
		}
		rules = append(rules, rule)
		if corrRule != nil {
			correlationRules = append(correlationRules, corrRule)
		}
	}
	return rules, correlationRules, nil
}

func parseRuleFile(path string) (*models.Rule, *models.CorrelationRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, nil, fmt.Errorf("invalid yaml: %w", err)
	}

	if err := validateRuleFile(&rf); err != nil {
		return nil, nil, err
	}

	rule := &models.Rule{
		ID:             rf.ID,
		Name:           rf.Name,
		Description:    rf.Description,
		Status:         models.RuleStatus(rf.Status),
		Query:          rf.Query,
		Dialect:        rf.Dialect,
		Indices:        rf.Indices,
		IntervalSec:    rf.IntervalSec,
		LookbackSec:    rf.LookbackSec,
		ThresholdCount: rf.ThresholdCount,
		ThresholdField: rf.ThresholdField,
		Severity:       rf.Severity,
		Tags:           rf.Tags,
		Author:         rf.Author,
		Metadata:       rf.Metadata,
	}

	var corrRule *models.CorrelationRule
	if rf.Correlation != nil {
		rule.Correlate = true
		rule.CorrelationID = rf.ID
		corrRule = &models.CorrelationRule{
			ID:               rf.ID,
			EntityKeyFields:  rf.Correlation.EntityKeyFields,
			Stages:           rf.Correlation.Stages,
			WindowSeconds:    rf.Correlation.WindowSeconds,
			StageOrder:       rf.Correlation.StageOrder,
			MinCountPerStage: rf.Correlation.MinCountPerStage,
			RequireDistinct:  rf.Correlation.RequireDistinct,
		}
	}

	return rule, corrRule, nil
}

func validateRuleFile(rf *ruleFile) error {
	var missing []string
	if rf.ID == "" {
		missing = append(missing, "id")
	}
	if rf.Name == "" {
		missing = append(missing, "name")
	}
	if rf.Query == "" {
		missing = append(missing, "query")
	}
	if rf.Dialect == "" {
		missing = append(missing, "dialect")
	}
	if len(rf.Indices) == 0 {
		missing = append(missing, "indices")
	}
	if !models.RuleStatus(rf.Status).IsValid() {
		missing = append(missing, fmt.Sprintf("status (got %q)", rf.Status))
	}
	if rf.IntervalSec <= 0 {
		missing = append(missing, "interval_seconds")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid rule definition: %s", strings.Join(missing, ", "))
	}

	if rf.Correlation != nil {
		if len(rf.Correlation.EntityKeyFields) == 0 {
			return fmt.Errorf("correlation.entity_key_fields must declare at least one field")
		}
		if rf.Correlation.WindowSeconds <= 0 {
			return fmt.Errorf("correlation.window_seconds must be positive")
		}
		if len(rf.Correlation.Stages) < 2 {
			return fmt.Errorf("correlation.stages must declare at least 2 stages")
		}
		if rf.Correlation.StageOrder != "" && !rf.Correlation.StageOrder.IsValid() {
			return fmt.Errorf("correlation.stage_order must be %q or %q, got %q",
				models.StageOrderStrict, models.StageOrderAnyOrder, rf.Correlation.StageOrder)
		}
		if rf.Correlation.MinCountPerStage < 0 {
			return fmt.Errorf("correlation.min_count_per_stage must not be negative")
		}
	}
	return nil
}
