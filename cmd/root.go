// Package cmd provides the docassist CLI commands.
//
// Commands:
//   - serve: HTTP API server for document sync and retrieval chat
//   - migrate: apply database migrations and exit
//   - version: show build information
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "docassist",
	Short:         "Document knowledge sync and retrieval-augmented chat service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
