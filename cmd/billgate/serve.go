package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/billgate/bootstrap"
	"github.com/artpar/billgate/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the billing server",
	Long: `Start the billgate server.

The server will:
  - Load configuration from billgate.yaml (or --config)
  - Or load configuration from BILLGATE_* environment variables
  - Open the database and apply pending migrations
  - Receive provider webhooks on /webhooks/stripe
  - Serve signed sibling lookups on /internal (when enabled)

Environment variables (for Docker deployments):
  BILLGATE_PROVIDER_SECRET_KEY      - Payment provider API key (required)
  BILLGATE_PROVIDER_WEBHOOK_SECRET  - Webhook signing secret (required)
  BILLGATE_DATABASE_DSN             - Database path (default: billgate.db)
  BILLGATE_SERVER_PORT              - Server port (default: 8080)
  BILLGATE_CACHE_MODE               - Cache mode: memory or redis
  BILLGATE_LOG_LEVEL                - Log level: debug, info, warn, error

Examples:
  billgate serve
  billgate serve --config /etc/billgate/config.yaml
  billgate serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	if !hasConfigFile && !config.HasEnvConfig() {
		fmt.Println("No configuration found.")
		fmt.Println()
		fmt.Printf("Option 1: Create %s\n", cfgFile)
		fmt.Println("Option 2: Set BILLGATE_PROVIDER_SECRET_KEY and BILLGATE_PROVIDER_WEBHOOK_SECRET")
		return nil
	}

	var app *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with a config file
		app, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}

		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}

		app, err = bootstrap.New(cfg)
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
