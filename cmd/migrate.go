package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docassist/docassist/db"
	"github.com/docassist/docassist/internal/config"
	"github.com/docassist/docassist/internal/log"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.DatabaseURL == "" {
			return config.ErrMissingDatabaseURL
		}

		logger := log.New(log.Config{
			Level: parseLogLevel(cfg.LogLevel),
			JSON:  cfg.LogJSON,
		})
		return db.Migrate(cfg.DatabaseURL, logger)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
