package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/billgate/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}

		fmt.Println("Configuration valid")
		fmt.Printf("  Server:    %s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Printf("  Database:  %s\n", cfg.Database.DSN)
		fmt.Printf("  Cache:     %s\n", cfg.Cache.Mode)
		fmt.Printf("  Provider:  %s\n", cfg.Provider.Name)
		fmt.Printf("  Surfacing: %s\n", cfg.Surfacing.Mode)
		if cfg.Internal.Enabled {
			fmt.Println("  Internal endpoints: enabled")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
