package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/billgate/adapters/sqlite"
	"github.com/artpar/billgate/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Long: `Open the database and apply any pending schema migrations.

The serve command migrates automatically on startup; this command exists
for deployments that migrate as a separate release step.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	fmt.Printf("Database ready: %s\n", cfg.Database.DSN)
	return nil
}
