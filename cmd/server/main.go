package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmynk/pledgeledger/internal/config"
)

var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pledgeledger",
	Short: "Payment plan and multi-currency reconciliation server",
	Long: `pledgeledger schedules installment plans against pledges, records direct
and split payments, and keeps pledge and plan balances reconciled in the
pledge currency and in USD.

Configuration comes from defaults, an optional YAML file (--config) and
PLEDGELEDGER_* environment variables, e.g. PLEDGELEDGER_DATABASE_PATH.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the configuration named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
