// Package curve implements the pricing math of a linear bonding curve.
//
// Token amounts are base units with 18 decimals; ETH amounts are wei.
// The instantaneous price of one whole token at supply S is
//
//	price(S) = P0 + k*S/1e18
//
// and the cost of minting Δ base units at supply S is the exact integral of
// the price over [S, S+Δ], rounded down. Every function here is pure.
package curve

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Decimals is the number of decimals of the curve token.
const Decimals = 18

var (
	// ErrInvalidAmount is returned for zero or out-of-range inputs.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrOverflow is returned when an intermediate value exceeds 256 bits.
	ErrOverflow = errors.New("arithmetic overflow")
	// ErrInvalidParams is returned by Params.Validate.
	ErrInvalidParams = errors.New("invalid curve parameters")
)

var (
	wad    = uint256.NewInt(1_000_000_000_000_000_000)
	wadSq  = new(uint256.Int).Mul(wad, wad)
	twoWad = new(uint256.Int).Lsh(wadSq, 1) // 2*WAD²
)

// OneToken returns 1e18, the number of base units in one whole token.
func OneToken() *uint256.Int { return wad.Clone() }

// Params are the immutable curve parameters.
type Params struct {
	BasePrice *uint256.Int `json:"base_price"` // P0, wei per whole token at zero supply
	Slope     *uint256.Int `json:"slope"`      // k, wei per whole token per whole token of supply
	Threshold *uint256.Int `json:"threshold"`  // market cap in wei that triggers migration
}

// DefaultParams returns the launch parameters: P0 = 0.005 ETH, k = 1e12 wei,
// threshold = 100000 ETH.
func DefaultParams() Params {
	return Params{
		BasePrice: uint256.NewInt(5_000_000_000_000_000),
		Slope:     uint256.NewInt(1_000_000_000_000),
		Threshold: new(uint256.Int).Mul(uint256.NewInt(100_000), wad),
	}
}

// Validate checks that the curve has a strictly positive price somewhere.
func (p Params) Validate() error {
	if p.BasePrice == nil || p.Slope == nil || p.Threshold == nil {
		return fmt.Errorf("%w: missing field", ErrInvalidParams)
	}
	if p.BasePrice.IsZero() && p.Slope.IsZero() {
		return fmt.Errorf("%w: base price and slope are both zero", ErrInvalidParams)
	}
	return nil
}

// Clone returns a deep copy of p.
func (p Params) Clone() Params {
	return Params{
		BasePrice: cloneOrZero(p.BasePrice),
		Slope:     cloneOrZero(p.Slope),
		Threshold: cloneOrZero(p.Threshold),
	}
}

// Price returns the instantaneous price of one whole token at supply.
func (p Params) Price(supply *uint256.Int) (*uint256.Int, error) {
	slope, overflow := new(uint256.Int).MulDivOverflow(p.Slope, supply, wad)
	if overflow {
		return nil, fmt.Errorf("%w: price slope term", ErrOverflow)
	}
	price, overflow := new(uint256.Int).AddOverflow(p.BasePrice, slope)
	if overflow {
		return nil, fmt.Errorf("%w: price", ErrOverflow)
	}
	return price, nil
}

// MarketCap returns price(supply) * supply in wei.
func (p Params) MarketCap(supply *uint256.Int) (*uint256.Int, error) {
	price, err := p.Price(supply)
	if err != nil {
		return nil, err
	}
	mc, overflow := new(uint256.Int).MulDivOverflow(price, supply, wad)
	if overflow {
		return nil, fmt.Errorf("%w: market cap", ErrOverflow)
	}
	return mc, nil
}

// ThresholdReached reports whether the market cap at supply is at or above
// the migration threshold.
func (p Params) ThresholdReached(supply *uint256.Int) (bool, error) {
	return p.ThresholdReachedAt(supply, p.Threshold)
}

// Cost returns the wei needed to mint delta base units starting at supply:
//
//	(2*WAD*P0*Δ + k*(2*S*Δ + Δ²)) / (2*WAD²)
//
// evaluated as a single rounded-down division.
func (p Params) Cost(supply, delta *uint256.Int) (*uint256.Int, error) {
	if delta.IsZero() {
		return new(uint256.Int), nil
	}
	num, err := p.costNumerator(supply, delta)
	if err != nil {
		return nil, err
	}
	return num.Div(num, twoWad), nil
}

func (p Params) costNumerator(supply, delta *uint256.Int) (*uint256.Int, error) {
	base, err := checkedMul(wad, p.BasePrice)
	if err != nil {
		return nil, err
	}
	if base, err = checkedMul(base, delta); err != nil {
		return nil, err
	}
	if base, err = checkedMul(base, uint256.NewInt(2)); err != nil {
		return nil, err
	}

	span, err := checkedMul(supply, uint256.NewInt(2))
	if err != nil {
		return nil, err
	}
	if span, err = checkedAdd(span, delta); err != nil {
		return nil, err
	}
	if span, err = checkedMul(span, delta); err != nil {
		return nil, err
	}
	if span, err = checkedMul(span, p.Slope); err != nil {
		return nil, err
	}
	return checkedAdd(base, span)
}

// BuyAmount returns the base units mintable for ethIn wei at supply. It
// inverts Cost with the quadratic formula
//
//	b = k*S + WAD*P0
//	Δ = (isqrt(b² + 2*k*WAD²*ethIn) - b) / k
//
// Both the square root and the division round down, so the result never
// over-mints: Cost(supply, Δ) <= ethIn.
func (p Params) BuyAmount(supply, ethIn *uint256.Int) (*uint256.Int, error) {
	if ethIn == nil || ethIn.IsZero() {
		return nil, fmt.Errorf("%w: eth amount must be positive", ErrInvalidAmount)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	b, err := p.linearTerm(supply)
	if err != nil {
		return nil, err
	}

	if p.Slope.IsZero() {
		delta, overflow := new(uint256.Int).MulDivOverflow(wadSq, ethIn, b)
		if overflow {
			return nil, fmt.Errorf("%w: flat curve quote", ErrOverflow)
		}
		return delta, nil
	}

	disc, err := checkedMul(b, b)
	if err != nil {
		return nil, err
	}
	quad, err := checkedMul(twoWad, p.Slope)
	if err != nil {
		return nil, err
	}
	if quad, err = checkedMul(quad, ethIn); err != nil {
		return nil, err
	}
	if disc, err = checkedAdd(disc, quad); err != nil {
		return nil, err
	}

	root := Sqrt(disc)
	// root >= b because disc >= b².
	root.Sub(root, b)
	return root.Div(root, p.Slope), nil
}

// SellAmount returns the wei released by burning tokensIn base units at
// supply: the integral of the curve over [supply-tokensIn, supply].
func (p Params) SellAmount(supply, tokensIn *uint256.Int) (*uint256.Int, error) {
	if tokensIn == nil || tokensIn.IsZero() {
		return nil, fmt.Errorf("%w: token amount must be positive", ErrInvalidAmount)
	}
	if tokensIn.Gt(supply) {
		return nil, fmt.Errorf("%w: %s exceeds supply %s", ErrInvalidAmount, tokensIn.Dec(), supply.Dec())
	}
	start := new(uint256.Int).Sub(supply, tokensIn)
	return p.Cost(start, tokensIn)
}

// SupplyForMarketCap returns the smallest supply whose market cap is at or
// above target.
func (p Params) SupplyForMarketCap(target *uint256.Int) (*uint256.Int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if target.IsZero() {
		return new(uint256.Int), nil
	}

	hi, err := p.supplyUpperBound(target)
	if err != nil {
		return nil, err
	}
	lo := new(uint256.Int)
	mid := new(uint256.Int)
	for lo.Lt(hi) {
		// mid = lo + (hi-lo)/2
		mid.Sub(hi, lo)
		mid.Rsh(mid, 1)
		mid.Add(mid, lo)
		ok, err := p.ThresholdReachedAt(mid, target)
		if err != nil {
			return nil, err
		}
		if ok {
			hi.Set(mid)
		} else {
			lo.AddUint64(mid, 1)
		}
	}
	return lo, nil
}

// ThresholdReachedAt reports whether MarketCap(supply) >= target.
func (p Params) ThresholdReachedAt(supply, target *uint256.Int) (bool, error) {
	mc, err := p.MarketCap(supply)
	if err != nil {
		return false, err
	}
	return !mc.Lt(target), nil
}

// supplyUpperBound returns a supply whose market cap is at least target,
// starting from the real-valued root of k*S² + WAD*P0*S = WAD²*target and
// doubling until it holds.
func (p Params) supplyUpperBound(target *uint256.Int) (*uint256.Int, error) {
	var guess *uint256.Int
	if p.Slope.IsZero() {
		g, overflow := new(uint256.Int).MulDivOverflow(target, wad, p.BasePrice)
		if overflow {
			return nil, fmt.Errorf("%w: supply bound", ErrOverflow)
		}
		guess = g
	} else {
		wp, err := checkedMul(wad, p.BasePrice)
		if err != nil {
			return nil, err
		}
		disc, err := checkedMul(wp, wp)
		if err != nil {
			return nil, err
		}
		quad, err := checkedMul(wadSq, target)
		if err != nil {
			return nil, err
		}
		if quad, err = checkedMul(quad, p.Slope); err != nil {
			return nil, err
		}
		if quad, err = checkedMul(quad, uint256.NewInt(4)); err != nil {
			return nil, err
		}
		if disc, err = checkedAdd(disc, quad); err != nil {
			return nil, err
		}
		root := Sqrt(disc)
		root.Sub(root, wp)
		guess = root.Div(root, new(uint256.Int).Lsh(p.Slope, 1))
	}

	hi := guess.AddUint64(guess, 1)
	for {
		ok, err := p.ThresholdReachedAt(hi, target)
		if err != nil {
			return nil, err
		}
		if ok {
			return hi, nil
		}
		next, overflow := new(uint256.Int).AddOverflow(hi, hi)
		if overflow {
			return nil, fmt.Errorf("%w: supply bound", ErrOverflow)
		}
		hi = next
	}
}

// linearTerm returns k*S + WAD*P0.
func (p Params) linearTerm(supply *uint256.Int) (*uint256.Int, error) {
	ks, err := checkedMul(p.Slope, supply)
	if err != nil {
		return nil, err
	}
	wp, err := checkedMul(wad, p.BasePrice)
	if err != nil {
		return nil, err
	}
	return checkedAdd(ks, wp)
}

func checkedMul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

func checkedAdd(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

func cloneOrZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x.Clone()
}
