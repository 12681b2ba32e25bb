package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mmynk/pledgeledger/internal/fx"
	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/storage/sqlite"
)

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Manage stored exchange rates",
}

var rateSetCmd = &cobra.Command{
	Use:   "set BASE TARGET DATE RATE",
	Short: "Insert or replace the rate for a currency pair on a date",
	Long: `Record that one unit of BASE buys RATE units of TARGET on DATE.

Examples:
  pledgeledger rate set EUR USD 2024-01-15 1.0950
  pledgeledger rate set usd ils 2024-01-15 3.71`,
	Args: cobra.ExactArgs(4),
	RunE: runRateSet,
}

func init() {
	rateCmd.AddCommand(rateSetCmd)
}

func runRateSet(cmd *cobra.Command, args []string) error {
	base, target := fx.NormalizeCurrency(args[0]), fx.NormalizeCurrency(args[1])
	if base == target {
		return fmt.Errorf("base and target must differ, got %s", base)
	}
	day, err := models.ParseDate(args[2])
	if err != nil {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[2])
	}
	rate, err := decimal.NewFromString(args[3])
	if err != nil || !rate.IsPositive() {
		return fmt.Errorf("invalid rate %q, want a positive decimal", args[3])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	if err := store.UpsertRate(cmd.Context(), &models.ExchangeRate{
		BaseCurrency:   base,
		TargetCurrency: target,
		Rate:           rate,
		Date:           day,
	}); err != nil {
		return fmt.Errorf("failed to store rate: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s/%s on %s = %s\n", base, target, day.Format(models.DateFormat), rate)
	return nil
}
