package cmd

import (
	"errors"
	"fmt"

	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/Mohsinsiddi/curvesim/internal/units"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errNoPool = errors.New("no pool configured (set one with: curvesim config set pool <name>)")

var (
	swapTokensIn bool
	swapMinOut   string
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Show the liquidity pool",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		if s.pool == nil {
			return errNoPool
		}
		eth, tokens, lp := s.pool.Reserves()
		out := cmd.OutOrStdout()
		if eth.IsZero() {
			fmt.Fprintln(out, ui.Info(fmt.Sprintf("Pool %s is empty until the curve migrates.", s.label(s.pool.Address()))))
			fmt.Fprintln(out, ui.Hint("See how far off that is with: curvesim quote migrate"))
			return nil
		}
		records := s.pool.Records()
		fmt.Fprintln(out, ui.KeyValueBlock("Liquidity Pool", [][2]string{
			{"Address", s.pool.Address().Hex()},
			{"ETH reserve", ui.ETH(eth)},
			{"Token reserve", ui.Tokens(tokens)},
			{"LP supply", ui.Tokens(lp)},
			{"Spot price", ui.ETH(s.pool.Price()) + " / token"},
			{"Records", fmt.Sprintf("%d", len(records))},
		}))
		return nil
	},
}

var poolSwapCmd = &cobra.Command{
	Use:   "swap <amount>",
	Short: "Swap against the pool after migration",
	Long: `Swap ETH for tokens, or tokens for ETH with --tokens-in, at the pool's
constant-product price less the 0.3% fee. Swaps move the pool reserves
only; curve balances are untouched.

Examples:
  curvesim pool swap 0.1 --account bob
  curvesim pool swap 50 --tokens-in --min-out 0.2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amountIn, err := units.ParseWithUnit(args[0])
		if err != nil {
			return err
		}
		minOut := new(uint256.Int)
		if swapMinOut != "" {
			if minOut, err = units.ParseWithUnit(swapMinOut); err != nil {
				return fmt.Errorf("--min-out: %w", err)
			}
		}
		s, err := openSession()
		if err != nil {
			return err
		}
		if s.pool == nil {
			return errNoPool
		}
		trader, name, err := s.named(tradeAccount)
		if err != nil {
			return err
		}

		var got *uint256.Int
		if swapTokensIn {
			got, err = s.pool.SwapTokensForETH(cmd.Context(), trader, amountIn, minOut)
		} else {
			got, err = s.pool.SwapETHForTokens(cmd.Context(), trader, amountIn, minOut)
		}
		if err != nil {
			return err
		}
		if err := s.save(); err != nil {
			return err
		}
		logger.Info("swap", zap.String("trader", trader.Hex()), zap.Bool("tokens_in", swapTokensIn), zap.Stringer("out", got))

		msg := fmt.Sprintf("%s swapped %s for %s tokens", ui.Role(name), ui.ETH(amountIn), ui.Val(ui.Tokens(got)))
		if swapTokensIn {
			msg = fmt.Sprintf("%s swapped %s tokens for %s", ui.Role(name), ui.Tokens(amountIn), ui.Val(ui.ETH(got)))
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(msg))
		return nil
	},
}

func init() {
	poolSwapCmd.Flags().StringVarP(&tradeAccount, "account", "a", "", "trading account (wallet name or address; default wallet if omitted)")
	poolSwapCmd.Flags().BoolVar(&swapTokensIn, "tokens-in", false, "swap tokens for ETH instead of ETH for tokens")
	poolSwapCmd.Flags().StringVar(&swapMinOut, "min-out", "", "revert unless at least this much comes out")
	poolCmd.AddCommand(poolSwapCmd)
}
