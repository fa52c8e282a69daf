package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gbd-tools/harmonize-cli/internal/config"
)

var initPath string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file with defaults filled in",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(initPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", initPath)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initPath, "path", "config.yaml", "where to write the config file")

	rootCmd.AddCommand(initCmd)
}
