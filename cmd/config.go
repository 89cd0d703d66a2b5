package cmd

import (
	"errors"
	"fmt"

	"github.com/Mohsinsiddi/curvesim/internal/config"
	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
	Long: `Show or change the launch configuration.

Curve parameters, taxes, roles and the migration percentage take effect
when a fresh ledger is created (after init or reset). Every key can also be
overridden per invocation with a CURVESIM_<KEY> environment variable.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pool := cfg.Pool
		if pool == "" {
			pool = ui.Meta("(none)")
		}
		def := cfg.DefaultAccount
		if def == "" {
			def = ui.Meta("(none)")
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Configuration", [][2]string{
			{"Config dir", cfg.Dir()},
			{"base_price", cfg.BasePrice + " ETH"},
			{"slope", cfg.Slope + " ETH"},
			{"threshold", cfg.Threshold + " ETH"},
			{"buy_tax", fmt.Sprintf("%d%%", cfg.BuyTax)},
			{"sell_tax", fmt.Sprintf("%d%%", cfg.SellTax)},
			{"liquidity_tax", fmt.Sprintf("%d%%", cfg.LiquidityTax)},
			{"migration_percent", fmt.Sprintf("%d%%", cfg.MigrationPercent)},
			{"owner", cfg.Owner},
			{"fee_recipient", cfg.FeeRecipient},
			{"treasury", cfg.Treasury},
			{"router", cfg.Router},
			{"pool", pool},
			{"default_account", def},
		}))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := cfg.Set(key, value); err != nil {
			if errors.Is(err, config.ErrUnknownKey) {
				return fmt.Errorf("%w (keys: %v)", err, config.Keys())
			}
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("%s = %s", key, value)))
		if _, err := cfg.LoadState(); err == nil && key != "default_account" {
			fmt.Fprintln(out, ui.Hint("The saved ledger keeps its launch settings; run `curvesim init --force` to start over."))
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
