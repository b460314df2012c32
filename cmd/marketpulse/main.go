package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "marketpulse",
	Short: "Real-time market snapshot server",
	Long: `marketpulse polls exchange, market-metrics and social sources, merges them into
per-asset snapshots and streams those snapshots to WebSocket subscribers.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
