package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/curvesim/internal/ledger"
	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/Mohsinsiddi/curvesim/internal/units"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Preview trades without changing state",
}

var quoteBuyCmd = &cobra.Command{
	Use:   "buy <eth>",
	Short: "Preview the tax split and tokens for a buy",
	Long: `Preview the tax split and tokens for a buy.

Amounts default to ether; suffix gwei or wei for smaller units.

Examples:
  curvesim quote buy 1
  curvesim quote buy 250000000gwei`,
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
		split, tokens, err := s.ledger.PreviewBuy(ethIn)
		if err != nil {
			return err
		}
		params := s.ledger.Params()
		after := new(uint256.Int).Add(s.ledger.TotalSupply(), tokens)
		priceAfter, err := params.Price(after)
		if err != nil {
			return err
		}
		migrates, err := params.ThresholdReached(after)
		if err != nil {
			return err
		}

		pairs := append(splitPairs(split, "Treasury"),
			[2]string{"Tokens out", ui.Tokens(tokens)},
			[2]string{"Price after", ui.ETH(priceAfter)},
		)
		if migrates && !s.ledger.LiquidityAdded() {
			pairs = append(pairs, [2]string{"Migration", ui.StyleWarning.Render("this buy crosses the threshold")})
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Buy Quote", pairs))
		return nil
	},
}

var quoteSellCmd = &cobra.Command{
	Use:   "sell <tokens>",
	Short: "Preview the ETH returned by a sell",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokensIn, err := units.ParseWithUnit(args[0])
		if err != nil {
			return err
		}
		s, err := openSession()
		if err != nil {
			return err
		}
		split, err := s.ledger.PreviewSell(tokensIn)
		if err != nil {
			return err
		}
		pairs := splitPairs(split, "Treasury")
		reserve := s.ledger.EthReserve()
		if reserve.Lt(split.Gross) {
			pairs = append(pairs, [2]string{"Reserve", ui.StyleError.Render(ui.ETH(reserve) + " is not enough")})
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Sell Quote", pairs))
		return nil
	},
}

var quoteMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Show how much buying is left before liquidity migrates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if s.ledger.LiquidityAdded() {
			fmt.Fprintln(out, ui.Info("Liquidity has already migrated."))
			return nil
		}
		q, err := migrationQuote(s.ledger)
		if err != nil {
			return err
		}
		gross := "unreachable at the current taxes"
		if q.gross != nil {
			gross = "≈ " + ui.ETH(q.gross)
		}
		fmt.Fprintln(out, ui.KeyValueBlock("Migration Quote", [][2]string{
			{"Threshold", ui.ETH(s.ledger.Params().Threshold)},
			{"Target supply", ui.Tokens(q.target)},
			{"Tokens to mint", ui.Tokens(q.tokens)},
			{"Net ETH needed", ui.ETH(q.net)},
			{"Gross ETH needed", gross},
			{"Moves to pool", fmt.Sprintf("%d%% of the reserve", s.ledger.MigrationPercent())},
		}))
		return nil
	},
}

type migrateQuote struct {
	target, tokens, net *uint256.Int
	gross               *uint256.Int // nil when taxes take the whole buy
}

// migrationQuote finds the supply at which the market cap reaches the
// threshold and what it costs to get there from the current supply.
func migrationQuote(l *ledger.Ledger) (migrateQuote, error) {
	params := l.Params()
	target, err := params.SupplyForMarketCap(params.Threshold)
	if err != nil {
		return migrateQuote{}, err
	}
	supply := l.TotalSupply()
	q := migrateQuote{target: target, tokens: new(uint256.Int), net: new(uint256.Int)}
	if supply.Lt(target) {
		q.tokens.Sub(target, supply)
		if q.net, err = params.Cost(supply, q.tokens); err != nil {
			return migrateQuote{}, err
		}
	}
	r := l.Rates()
	kept := 100 - r.Buy - r.Sell - r.Liquidity
	if kept > 0 {
		// ceil(net * 100 / kept)
		num := new(uint256.Int).Mul(q.net, uint256.NewInt(100))
		num.AddUint64(num, kept-1)
		q.gross = num.Div(num, uint256.NewInt(kept))
	}
	return q, nil
}

func splitPairs(s ledger.Split, protocol string) [][2]string {
	return [][2]string{
		{"Gross", ui.ETH(s.Gross)},
		{protocol + " tax", ui.ETH(s.Protocol)},
		{"Liquidity tax", ui.ETH(s.Liquidity)},
		{"Fee", ui.ETH(s.Fee)},
		{"Net", ui.ETH(s.Net)},
	}
}

func init() {
	quoteCmd.AddCommand(quoteBuyCmd, quoteSellCmd, quoteMigrateCmd)
}
