package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gbd-tools/harmonize-cli/internal/clean"
	"github.com/gbd-tools/harmonize-cli/internal/quality"
)

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "List available quality checks and cleaning rules",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "Quality checks:")
		for _, name := range quality.CheckNames() {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), "Cleaning rules:")
		for _, name := range clean.RuleNames() {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
		}
	},
}

func init() {
	rootCmd.AddCommand(checksCmd)
}
