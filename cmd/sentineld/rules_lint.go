package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentineld/sentineld/pkg/rulestore"
)

var rulesLintCmd = &cobra.Command{
	Use:   "rules-lint",
	Short: "Parse and validate rule definitions without syncing them to the database",
	RunE:  runRulesLint,
}

func runRulesLint(_ *cobra.Command, _ []string) error {
	rules, corrRules, err := rulestore.LoadRuleFiles(rulesDir)
	if err != nil {
		return err
	}

	fmt.Printf("%d rule definition(s) valid in %s\n", len(rules), rulesDir)
	fmt.Printf("%d declare a correlation sequence\n", len(corrRules))
	for _, r := range rules {
		fmt.Printf("  - %-30s %-10s interval=%ds dialect=%s\n", r.ID, r.Status, r.IntervalSec, r.Dialect)
	}
	return nil
}
