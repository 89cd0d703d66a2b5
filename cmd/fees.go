package cmd

import (
	"fmt"
	"strconv"

	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/spf13/cobra"
)

var ownerCaller string

var feesCmd = &cobra.Command{
	Use:   "fees",
	Short: "Show or change the tax rates",
}

var feesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current tax rates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		r := s.ledger.Rates()
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Taxes", [][2]string{
			{"Buy tax", fmt.Sprintf("%d%% → %s", r.Buy, s.label(s.ledger.Treasury()))},
			{"Sell tax", fmt.Sprintf("%d%% → %s", r.Sell, s.label(s.ledger.Treasury()))},
			{"Liquidity tax", fmt.Sprintf("%d%% → reserve", r.Liquidity)},
			{"Recipient fee", fmt.Sprintf("sell rate on buys, buy rate on sells → %s", s.label(s.ledger.FeeRecipient()))},
		}))
		return nil
	},
}

var feesSetCmd = &cobra.Command{
	Use:   "set <buy> <sell> <liquidity>",
	Short: "Set the tax rates (owner only)",
	Long: `Set the buy, sell and liquidity tax percentages. The three must not
add up to more than 100. Only the owner may call this; --caller defaults to
the current owner.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rates [3]uint64
		for i, a := range args {
			n, err := strconv.ParseUint(a, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid percentage %q", a)
			}
			rates[i] = n
		}
		s, err := openSession()
		if err != nil {
			return err
		}
		caller, err := s.owner(ownerCaller)
		if err != nil {
			return err
		}
		if err := s.ledger.SetFees(cmd.Context(), caller, rates[0], rates[1], rates[2]); err != nil {
			return err
		}
		if err := s.save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("Taxes set: buy %d%%  sell %d%%  liquidity %d%%", rates[0], rates[1], rates[2])))
		return nil
	},
}

var ownerCmd = &cobra.Command{
	Use:   "owner",
	Short: "Show or transfer ownership",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		o := s.ledger.Owner()
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", ui.Role(s.label(o)), ui.Addr(o.Hex()))
		return nil
	},
}

var ownerTransferCmd = &cobra.Command{
	Use:   "transfer <new-owner>",
	Short: "Hand ownership to another account (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		caller, err := s.owner(ownerCaller)
		if err != nil {
			return err
		}
		next, err := s.wallets.Resolve(args[0])
		if err != nil {
			return err
		}
		if err := s.ledger.TransferOwnership(cmd.Context(), caller, next); err != nil {
			return err
		}
		if err := s.save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("Ownership transferred to %s", ui.Role(s.label(next)))))
		return nil
	},
}

func init() {
	feesSetCmd.Flags().StringVar(&ownerCaller, "caller", "", "calling account (default: current owner)")
	ownerTransferCmd.Flags().StringVar(&ownerCaller, "caller", "", "calling account (default: current owner)")
	feesCmd.AddCommand(feesShowCmd, feesSetCmd)
	ownerCmd.AddCommand(ownerTransferCmd)
}
