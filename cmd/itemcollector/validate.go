package main

import (
	"fmt"

	"github.com/jpalmerr/itemcollector/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate an itemcollector configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

A malformed item_collector section is reported as an error here, even
though serve would start with collection disabled.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  itemcollector validate -c config.yaml
  itemcollector validate --config /etc/itemcollector/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.ItemCollectorErr != nil {
		return fmt.Errorf("invalid config: %w", cfg.ItemCollectorErr)
	}

	items := 0
	for _, app := range cfg.ItemCollector.Apps {
		items += len(app.Items)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port:                %d\n", cfg.Port)
	fmt.Printf("  Gateway:             %s\n", cfg.Gateway.URL)
	fmt.Printf("  Auto start:          %t\n", cfg.ItemCollector.Enabled)
	fmt.Printf("  Drop check interval: %s\n", cfg.ItemCollector.Interval())
	fmt.Printf("  Apps:                %d apps, %d items\n", len(cfg.ItemCollector.Apps), items)

	return nil
}
