package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/curvesim/internal/ledger"
	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

var statusJSON bool

// statusView is the --json form of status.
type statusView struct {
	TotalSupply      *uint256.Int `json:"total_supply"`
	EthReserve       *uint256.Int `json:"eth_reserve"`
	Price            *uint256.Int `json:"price"`
	MarketCap        *uint256.Int `json:"market_cap"`
	Threshold        *uint256.Int `json:"threshold"`
	LiquidityAdded   bool         `json:"liquidity_added"`
	Owner            string       `json:"owner"`
	Rates            ledger.Rates `json:"rates"`
	MigrationPercent uint64       `json:"migration_percent"`
	Events           int          `json:"events"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show supply, reserve, price and migration progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		l := s.ledger
		price, err := l.Price()
		if err != nil {
			return err
		}
		mcap, err := l.MarketCap()
		if err != nil {
			return err
		}
		params := l.Params()
		out := cmd.OutOrStdout()

		if statusJSON {
			return writeJSON(out, statusView{
				TotalSupply:      l.TotalSupply(),
				EthReserve:       l.EthReserve(),
				Price:            price,
				MarketCap:        mcap,
				Threshold:        params.Threshold,
				LiquidityAdded:   l.LiquidityAdded(),
				Owner:            l.Owner().Hex(),
				Rates:            l.Rates(),
				MigrationPercent: l.MigrationPercent(),
				Events:           len(l.Events(0)),
			})
		}

		rates := l.Rates()
		migrated := ui.StyleWarning.Render("pending")
		if l.LiquidityAdded() {
			migrated = ui.StyleSuccess.Render("done")
		}
		fmt.Fprintln(out, ui.KeyValueBlock("Bonding Curve", [][2]string{
			{"Total supply", ui.Tokens(l.TotalSupply())},
			{"ETH reserve", ui.ETH(l.EthReserve())},
			{"Price", ui.ETH(price) + " / token"},
			{"Market cap", ui.ETH(mcap)},
			{"Threshold", ui.ETH(params.Threshold) + "  (" + ui.Percent(mcap, params.Threshold) + ")"},
			{"Migration", migrated},
			{"Taxes", fmt.Sprintf("buy %d%%  sell %d%%  liquidity %d%%", rates.Buy, rates.Sell, rates.Liquidity)},
			{"Owner", s.label(l.Owner())},
			{"Fee recipient", s.label(l.FeeRecipient())},
			{"Treasury", s.label(l.Treasury())},
			{"Router", s.label(l.Router())},
		}))
		if s.pool != nil {
			eth, tokens, _ := s.pool.Reserves()
			if !eth.IsZero() {
				fmt.Fprintln(out, ui.Meta(fmt.Sprintf("  pool %s: %s / %s tokens",
					s.label(s.pool.Address()), ui.ETH(eth), ui.Tokens(tokens))))
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print machine-readable JSON")
}
