package cmd

import (
	"fmt"
	"strings"

	"github.com/Mohsinsiddi/curvesim/internal/ledger"
	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/Mohsinsiddi/curvesim/internal/units"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var tradeAccount string

var buyCmd = &cobra.Command{
	Use:   "buy <eth>",
	Short: "Buy tokens from the curve",
	Long: `Buy tokens with ETH. The buy and liquidity taxes and the recipient fee
are taken first; the net amount is priced on the curve.

A buy that lifts the market cap to the threshold migrates the reserve into
the pool.

Examples:
  curvesim buy 1 --account alice
  curvesim buy 0.25eth`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ethIn, err := units.ParseWithUnit(args[0])
		if err != nil {
			return err
		}
		s, err := openSession()
		if err != nil {
			return err
		}
		buyer, name, err := s.named(tradeAccount)
		if err != nil {
			return err
		}
		rc, err := s.ledger.Buy(cmd.Context(), buyer, ethIn)
		if err != nil {
			return err
		}
		if err := s.save(); err != nil {
			return err
		}
		logger.Info("buy", zap.String("buyer", buyer.Hex()), zap.Stringer("tokens", rc.Tokens))

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("%s bought %s tokens for %s", ui.Role(name), ui.Val(ui.Tokens(rc.Tokens)), ui.ETH(ethIn))))
		fmt.Fprintln(out, ui.KeyValueBlock("", splitPairs(rc.Split, "Treasury")))
		printMigration(cmd, s, rc)
		return nil
	},
}

var sellCmd = &cobra.Command{
	Use:   "sell <tokens|all>",
	Short: "Sell tokens back to the curve",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		seller, name, err := s.named(tradeAccount)
		if err != nil {
			return err
		}
		tokensIn := s.ledger.BalanceOf(seller)
		if !strings.EqualFold(args[0], "all") {
			if tokensIn, err = units.ParseWithUnit(args[0]); err != nil {
				return err
			}
		}
		rc, err := s.ledger.Sell(cmd.Context(), seller, tokensIn)
		if err != nil {
			return err
		}
		if err := s.save(); err != nil {
			return err
		}
		logger.Info("sell", zap.String("seller", seller.Hex()), zap.Stringer("eth", rc.Split.Net))

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("%s sold %s tokens for %s", ui.Role(name), ui.Val(ui.Tokens(rc.Tokens)), ui.ETH(rc.Split.Net))))
		fmt.Fprintln(out, ui.KeyValueBlock("", splitPairs(rc.Split, "Treasury")))
		return nil
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer <to> <tokens>",
	Short: "Transfer tokens between holders",
	Long: `Attempt a direct token transfer. The sale token only moves through
buys, sells and the migration, so this always reverts; it exists to
exercise the restriction.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := units.ParseWithUnit(args[1])
		if err != nil {
			return err
		}
		s, err := openSession()
		if err != nil {
			return err
		}
		from, err := s.account(tradeAccount)
		if err != nil {
			return err
		}
		to, err := s.wallets.Resolve(args[0])
		if err != nil {
			return err
		}
		return s.ledger.Transfer(cmd.Context(), from, to, amount)
	},
}

// printMigration reports a migration triggered by rc, if any.
func printMigration(cmd *cobra.Command, s *session, rc *ledger.Receipt) {
	if rc.Migration == nil {
		return
	}
	m := rc.Migration
	fmt.Fprintln(cmd.OutOrStdout(), ui.Info(fmt.Sprintf("Threshold reached: %s and %s tokens moved to %s",
		ui.Val(ui.ETH(m.EthAmount)), ui.Val(ui.Tokens(m.TokenAmount)), ui.Role(s.label(m.Destination)))))
}

func init() {
	for _, c := range []*cobra.Command{buyCmd, sellCmd, transferCmd} {
		c.Flags().StringVarP(&tradeAccount, "account", "a", "", "trading account (wallet name or address; default wallet if omitted)")
	}
}
