package cmd

import (
	"errors"
	"fmt"

	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/spf13/cobra"
)

var (
	initForce bool
	initYes   bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config and a fresh ledger",
	Long: `Write the config file (keeping any values already set) and launch a
fresh ledger with zero supply. An existing ledger is only replaced with
--force.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if _, err := cfg.LoadState(); err == nil {
			if !initForce {
				return errors.New("a ledger already exists; pass --force to discard it")
			}
			if !initYes && !ui.ConfirmDanger(cmd.InOrStdin(), out, "Discard the saved ledger and pool?") {
				fmt.Fprintln(out, ui.Meta("Cancelled."))
				return nil
			}
		}

		fmt.Fprintln(out, ui.Banner())
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		if err := cfg.Reset(); err != nil {
			return fmt.Errorf("removing state: %w", err)
		}
		s, err := openSession()
		if err != nil {
			return err
		}
		if err := s.save(); err != nil {
			return err
		}

		params := s.ledger.Params()
		fmt.Fprintln(out, ui.Success("Ledger launched in "+cfg.Dir()))
		fmt.Fprintln(out, ui.KeyValueBlock("", [][2]string{
			{"Base price", ui.ETH(params.BasePrice)},
			{"Slope", ui.ETH(params.Slope)},
			{"Threshold", ui.ETH(params.Threshold)},
			{"Owner", s.label(s.ledger.Owner())},
		}))
		fmt.Fprintln(out, ui.Hint("Try: curvesim buy 1 --account alice"))
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "replace an existing ledger")
	initCmd.Flags().BoolVarP(&initYes, "yes", "y", false, "skip the confirmation prompt")
}
