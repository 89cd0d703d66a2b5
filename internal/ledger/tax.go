package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Rates are the owner-configurable tax percentages.
type Rates struct {
	Buy       uint64 `json:"buy_tax"`
	Sell      uint64 `json:"sell_tax"`
	Liquidity uint64 `json:"liquidity_tax"`
}

// DefaultRates returns 2% buy, 2% sell and 1% liquidity.
func DefaultRates() Rates {
	return Rates{Buy: 2, Sell: 2, Liquidity: 1}
}

// Validate rejects rates whose sum exceeds 100%.
func (r Rates) Validate() error {
	if r.Buy > 100 || r.Sell > 100 || r.Liquidity > 100 || r.Buy+r.Sell+r.Liquidity > 100 {
		return fmt.Errorf("%w: buy %d + sell %d + liquidity %d exceeds 100",
			ErrInvalidFee, r.Buy, r.Sell, r.Liquidity)
	}
	return nil
}

// Split is the division of one trade's gross ETH amount.
type Split struct {
	Gross     *uint256.Int `json:"gross"`
	Protocol  *uint256.Int `json:"protocol"`  // buy tax on buys, sell tax on sells
	Liquidity *uint256.Int `json:"liquidity"` // stays in the reserve
	Fee       *uint256.Int `json:"fee"`       // paid to the fee recipient
	Net       *uint256.Int `json:"net"`
}

// SplitBuy divides ethIn for a buy. The recipient fee is charged at the sell
// rate, as the deployed contract does.
func SplitBuy(ethIn *uint256.Int, r Rates) (Split, error) {
	return split(ethIn, r.Buy, r.Liquidity, r.Sell)
}

// SplitSell divides the gross curve payout ethOut for a sell. The recipient
// fee is charged at the buy rate.
func SplitSell(ethOut *uint256.Int, r Rates) (Split, error) {
	return split(ethOut, r.Sell, r.Liquidity, r.Buy)
}

func split(gross *uint256.Int, protocolPct, liquidityPct, feePct uint64) (Split, error) {
	if err := (Rates{Buy: protocolPct, Sell: feePct, Liquidity: liquidityPct}).Validate(); err != nil {
		return Split{}, err
	}
	s := Split{
		Gross:     gross.Clone(),
		Protocol:  percent(gross, protocolPct),
		Liquidity: percent(gross, liquidityPct),
		Fee:       percent(gross, feePct),
	}
	taxes := new(uint256.Int).Add(s.Protocol, s.Liquidity)
	taxes.Add(taxes, s.Fee)
	net, underflow := new(uint256.Int).SubOverflow(gross, taxes)
	if underflow {
		return Split{}, fmt.Errorf("%w: taxes exceed amount", ErrInvalidFee)
	}
	s.Net = net
	return s, nil
}

// percent returns x*pct/100 using a 512-bit intermediate.
func percent(x *uint256.Int, pct uint64) *uint256.Int {
	z, _ := new(uint256.Int).MulDivOverflow(x, uint256.NewInt(pct), uint256.NewInt(100))
	return z
}
