package ui

import (
	"fmt"

	"github.com/Mohsinsiddi/curvesim/internal/ledger"
	"github.com/Mohsinsiddi/curvesim/internal/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Labeler names an address for display.
type Labeler func(common.Address) string

// ETH renders a wei amount as "1.2345 ETH".
func ETH(x *uint256.Int) string { return units.FormatFixed(x, units.Ether, 4) + " ETH" }

// Tokens renders a base-unit token amount with four decimals.
func Tokens(x *uint256.Int) string { return units.FormatFixed(x, units.Ether, 4) }

// Exact renders a base-unit amount in whole units without rounding.
func Exact(x *uint256.Int) string { return units.FormatEther(x) }

// Percent renders part/whole as a percentage with two decimals. A zero
// whole renders as "-".
func Percent(part, whole *uint256.Int) string {
	if whole == nil || whole.IsZero() {
		return "-"
	}
	p := units.Decimal(part, 0).Shift(2).Div(units.Decimal(whole, 0))
	return p.StringFixed(2) + "%"
}

// EventLine renders one ledger event on a single line.
func EventLine(e ledger.Event, label Labeler) string {
	seq := StyleMeta.Render(fmt.Sprintf("#%-4d", e.Seq))
	switch e.Kind {
	case ledger.EventBuy:
		return fmt.Sprintf("%s %s %s paid %s for %s tokens", seq,
			StyleSuccess.Render(padR(string(e.Kind), 20)), Role(label(e.Account)),
			Val(ETH(e.EthAmount)), Val(Tokens(e.TokenAmount)))
	case ledger.EventSell:
		return fmt.Sprintf("%s %s %s sold %s tokens for %s", seq,
			StyleWarning.Render(padR(string(e.Kind), 20)), Role(label(e.Account)),
			Val(Tokens(e.TokenAmount)), Val(ETH(e.EthAmount)))
	case ledger.EventFeesUpdated:
		r := ledger.Rates{}
		if e.Rates != nil {
			r = *e.Rates
		}
		return fmt.Sprintf("%s %s buy %d%%  sell %d%%  liquidity %d%%", seq,
			StyleInfo.Render(padR(string(e.Kind), 20)), r.Buy, r.Sell, r.Liquidity)
	case ledger.EventLiquidityAdded:
		return fmt.Sprintf("%s %s %s and %s tokens", seq,
			StyleHeader.Render(padR(string(e.Kind), 20)),
			Val(ETH(e.EthAmount)), Val(Tokens(e.TokenAmount)))
	case ledger.EventOwnershipTransferred:
		return fmt.Sprintf("%s %s %s → %s", seq,
			StyleRole.Render(padR(string(e.Kind), 20)), Role(label(e.Account)), Role(label(e.Counterparty)))
	}
	return fmt.Sprintf("%s %s", seq, e.Kind)
}
