package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/spf13/cobra"
)

var holdersJSON bool

var holdersCmd = &cobra.Command{
	Use:   "holders",
	Short: "List token holders, largest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		holders := s.ledger.Holders()
		out := cmd.OutOrStdout()
		if holdersJSON {
			return writeJSON(out, holders)
		}
		if len(holders) == 0 {
			fmt.Fprintln(out, ui.Info("No holders yet."))
			fmt.Fprintln(out, ui.Hint("Buy some with: curvesim buy 1 --account alice"))
			return nil
		}

		supply := s.ledger.TotalSupply()
		t := ui.NewTable([]ui.Column{
			{Title: "Holder", Width: 16},
			{Title: "Address", Width: 42},
			{Title: "Balance", Width: 22, Right: true},
			{Title: "Share", Width: 8, Right: true},
			{Title: "Paid out", Width: 16, Right: true},
		})
		for _, h := range holders {
			t.AddRow(ui.Row{
				s.label(h.Address),
				h.Address.Hex(),
				ui.Tokens(h.Balance),
				ui.Percent(h.Balance, supply),
				ui.ETH(s.ledger.NativeBalanceOf(h.Address)),
			})
		}
		fmt.Fprintln(out, t.Render())
		fmt.Fprintln(out, ui.Meta(fmt.Sprintf("%d holder(s), %s tokens in circulation", len(holders), ui.Tokens(supply))))
		return nil
	},
}

func init() {
	holdersCmd.Flags().BoolVar(&holdersJSON, "json", false, "print machine-readable JSON")
}
