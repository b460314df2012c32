package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/StrathCole/marketpulse/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "marketpulse version %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
