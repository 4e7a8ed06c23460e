// Package main is the entry point for the itemcollector CLI.
//
// The item collector can be embedded as a library (SDK) or run as a
// standalone binary that drives sessions exposed by a gateway. This CLI
// provides the standalone binary approach.
//
// Usage:
//
//	itemcollector serve -c config.yaml      # Start collecting drops
//	itemcollector validate -c config.yaml   # Validate configuration
//	itemcollector start bot1,bot2           # ISTART on a running server
//	itemcollector stop all                  # ISTOP on a running server
//	itemcollector version                   # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "itemcollector",
	Short: "Collect timed item drops for idle sessions",
	Long: `itemcollector keeps idle sessions playing configured applications and
periodically exchanges accumulated playtime for item drops.

Quick start:
  1. Create a config file (itemcollector.yaml)
  2. Run: itemcollector serve -c itemcollector.yaml
  3. Run: itemcollector start all

Example config:
  port: 8080
  gateway:
    url: http://localhost:9000
  item_collector:
    enabled: true
    drop_check_interval: 10
    apps:
      - app_id: 2923300
        name: Banana
        items: [1, 2, 3]`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this itemcollector binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("itemcollector %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
