// sentineld runs the detection and correlation pipeline: the event
// buffer consumers, scheduled rule execution, stateful correlation, and
// alert generation described by the rest of this module.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"

	configDir string
	rulesDir  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sentineld",
	Short:   "sentineld detects and correlates security events in real time",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	rootCmd.PersistentFlags().StringVar(&rulesDir, "rules-dir", getEnv("RULES_DIR", "./deploy/rules"), "Path to detection rule definitions")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rulesLintCmd)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
