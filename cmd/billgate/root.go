package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "billgate",
	Short: "Billing webhook processor and entitlement service",
	Long: `Billgate keeps a local billing store in sync with a payment
provider through webhooks, and surfaces subscriptions and feature
entitlements to request-path code and sibling services.

Quick start:
  billgate migrate   # Create or upgrade the database
  billgate serve     # Start the server

Management:
  billgate validate  # Validate configuration`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "billgate.yaml", "config file path")
}
