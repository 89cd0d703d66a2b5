// Package amm is a constant-product ETH/token pool that receives the
// bonding-curve reserve on migration.
package amm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Mohsinsiddi/curvesim/internal/curve"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// MinimumLiquidity is the LP amount locked forever by the first deposit.
const MinimumLiquidity = 1000

// Swap fee: 0.3%.
var (
	feeMul = uint256.NewInt(997)
	feeDen = uint256.NewInt(1000)
)

var (
	ErrInvalidAmount               = errors.New("invalid amount")
	ErrReservesEmpty               = errors.New("pool has no liquidity")
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
	ErrInsufficientOutput          = errors.New("insufficient output amount")
	ErrOverflow                    = curve.ErrOverflow
)

// RecordKind names a pool record.
type RecordKind string

const (
	RecordLiquidityAdded RecordKind = "LiquidityAdded"
	RecordSwap           RecordKind = "Swap"
)

// Record is one entry of the pool's own log.
type Record struct {
	Kind      RecordKind     `json:"kind"`
	Trader    common.Address `json:"trader"`
	EthIn     *uint256.Int   `json:"eth_in"`
	TokensIn  *uint256.Int   `json:"tokens_in"`
	EthOut    *uint256.Int   `json:"eth_out"`
	TokensOut *uint256.Int   `json:"tokens_out"`
	LPMinted  *uint256.Int   `json:"lp_minted"`
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		p.logger = logger.Named("amm")
	}
}

// Pool is an x*y=k pool between native ETH and the curve token.
type Pool struct {
	address common.Address
	logger  *zap.Logger

	mu           sync.Mutex
	ethReserve   *uint256.Int
	tokenReserve *uint256.Int
	lpSupply     *uint256.Int
	records      []Record
}

// New returns an empty pool deployed at address.
func New(address common.Address, opts ...Option) *Pool {
	p := &Pool{
		address:      address,
		logger:       zap.NewNop(),
		ethReserve:   new(uint256.Int),
		tokenReserve: new(uint256.Int),
		lpSupply:     new(uint256.Int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Address returns the pool's address.
func (p *Pool) Address() common.Address { return p.address }

// AddLiquidity deposits eth and tokens. The first deposit mints
// sqrt(eth*tokens) LP of which MinimumLiquidity is locked; later deposits
// mint pro rata to the smaller side.
func (p *Pool) AddLiquidity(ctx context.Context, eth, tokens *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if eth == nil || tokens == nil || eth.IsZero() || tokens.IsZero() {
		return fmt.Errorf("%w: both sides must be positive", ErrInvalidAmount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var minted *uint256.Int
	if p.lpSupply.IsZero() {
		k, overflow := new(uint256.Int).MulOverflow(eth, tokens)
		if overflow {
			return fmt.Errorf("%w: initial k", ErrOverflow)
		}
		root := curve.Sqrt(k)
		if !root.GtUint64(MinimumLiquidity) {
			return fmt.Errorf("%w: sqrt(k) %s", ErrInsufficientLiquidityMinted, root.Dec())
		}
		minted = root.SubUint64(root, MinimumLiquidity)
	} else {
		fromEth, overflow := new(uint256.Int).MulDivOverflow(eth, p.lpSupply, p.ethReserve)
		if overflow {
			return fmt.Errorf("%w: lp from eth", ErrOverflow)
		}
		fromTokens, overflow := new(uint256.Int).MulDivOverflow(tokens, p.lpSupply, p.tokenReserve)
		if overflow {
			return fmt.Errorf("%w: lp from tokens", ErrOverflow)
		}
		minted = fromEth
		if fromTokens.Lt(fromEth) {
			minted = fromTokens
		}
		if minted.IsZero() {
			return ErrInsufficientLiquidityMinted
		}
	}

	ethR, overflow := new(uint256.Int).AddOverflow(p.ethReserve, eth)
	if overflow {
		return fmt.Errorf("%w: eth reserve", ErrOverflow)
	}
	tokR, overflow := new(uint256.Int).AddOverflow(p.tokenReserve, tokens)
	if overflow {
		return fmt.Errorf("%w: token reserve", ErrOverflow)
	}
	lp := new(uint256.Int).Add(p.lpSupply, minted)
	if p.lpSupply.IsZero() {
		lp.AddUint64(lp, MinimumLiquidity)
	}

	p.ethReserve, p.tokenReserve, p.lpSupply = ethR, tokR, lp
	p.records = append(p.records, Record{
		Kind:      RecordLiquidityAdded,
		EthIn:     eth.Clone(),
		TokensIn:  tokens.Clone(),
		EthOut:    new(uint256.Int),
		TokensOut: new(uint256.Int),
		LPMinted:  minted.Clone(),
	})
	p.logger.Info("liquidity added",
		zap.String("eth", eth.Dec()), zap.String("tokens", tokens.Dec()), zap.String("lp", minted.Dec()))
	return nil
}

// GetAmountOut returns amountIn*997*reserveOut / (reserveIn*1000 + amountIn*997).
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return nil, fmt.Errorf("%w: input must be positive", ErrInvalidAmount)
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrReservesEmpty
	}
	in, overflow := new(uint256.Int).MulOverflow(amountIn, feeMul)
	if overflow {
		return nil, fmt.Errorf("%w: amount in", ErrOverflow)
	}
	den, overflow := new(uint256.Int).MulOverflow(reserveIn, feeDen)
	if overflow {
		return nil, fmt.Errorf("%w: denominator", ErrOverflow)
	}
	if den, overflow = den.AddOverflow(den, in); overflow {
		return nil, fmt.Errorf("%w: denominator", ErrOverflow)
	}
	out, overflow := new(uint256.Int).MulDivOverflow(in, reserveOut, den)
	if overflow {
		return nil, fmt.Errorf("%w: amount out", ErrOverflow)
	}
	return out, nil
}

// QuoteETHForTokens returns the tokens ethIn buys.
func (p *Pool) QuoteETHForTokens(ethIn *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return GetAmountOut(ethIn, p.ethReserve, p.tokenReserve)
}

// QuoteTokensForETH returns the wei tokensIn sells for.
func (p *Pool) QuoteTokensForETH(tokensIn *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return GetAmountOut(tokensIn, p.tokenReserve, p.ethReserve)
}

// SwapETHForTokens swaps ethIn for at least minOut tokens.
func (p *Pool) SwapETHForTokens(ctx context.Context, trader common.Address, ethIn, minOut *uint256.Int) (*uint256.Int, error) {
	return p.swap(ctx, trader, ethIn, minOut, true)
}

// SwapTokensForETH swaps tokensIn for at least minOut wei.
func (p *Pool) SwapTokensForETH(ctx context.Context, trader common.Address, tokensIn, minOut *uint256.Int) (*uint256.Int, error) {
	return p.swap(ctx, trader, tokensIn, minOut, false)
}

func (p *Pool) swap(ctx context.Context, trader common.Address, amountIn, minOut *uint256.Int, ethIn bool) (*uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	reserveIn, reserveOut := p.tokenReserve, p.ethReserve
	if ethIn {
		reserveIn, reserveOut = p.ethReserve, p.tokenReserve
	}
	out, err := GetAmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	if minOut != nil && out.Lt(minOut) {
		return nil, fmt.Errorf("%w: got %s, want at least %s", ErrInsufficientOutput, out.Dec(), minOut.Dec())
	}
	newIn, overflow := new(uint256.Int).AddOverflow(reserveIn, amountIn)
	if overflow {
		return nil, fmt.Errorf("%w: reserve", ErrOverflow)
	}
	// out < reserveOut always holds for a positive reserveIn.
	newOut := new(uint256.Int).Sub(reserveOut, out)

	rec := Record{Kind: RecordSwap, Trader: trader, LPMinted: new(uint256.Int)}
	if ethIn {
		p.ethReserve, p.tokenReserve = newIn, newOut
		rec.EthIn, rec.TokensIn, rec.EthOut, rec.TokensOut = amountIn.Clone(), new(uint256.Int), new(uint256.Int), out.Clone()
	} else {
		p.tokenReserve, p.ethReserve = newIn, newOut
		rec.EthIn, rec.TokensIn, rec.EthOut, rec.TokensOut = new(uint256.Int), amountIn.Clone(), out.Clone(), new(uint256.Int)
	}
	p.records = append(p.records, rec)
	p.logger.Debug("swap",
		zap.String("trader", trader.Hex()), zap.Bool("eth_in", ethIn),
		zap.String("in", amountIn.Dec()), zap.String("out", out.Dec()))
	return out, nil
}

// Reserves returns the ETH reserve, token reserve and LP supply.
func (p *Pool) Reserves() (eth, tokens, lp *uint256.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ethReserve.Clone(), p.tokenReserve.Clone(), p.lpSupply.Clone()
}

// Price returns the spot price in wei per whole token, or zero for an empty
// pool.
func (p *Pool) Price() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tokenReserve.IsZero() {
		return new(uint256.Int)
	}
	z, _ := new(uint256.Int).MulDivOverflow(p.ethReserve, curve.OneToken(), p.tokenReserve)
	return z
}

// Records returns a copy of the pool log.
func (p *Pool) Records() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Record(nil), p.records...)
}

// Snapshot is the persisted form of a pool.
type Snapshot struct {
	Address      common.Address `json:"address"`
	EthReserve   *uint256.Int   `json:"eth_reserve"`
	TokenReserve *uint256.Int   `json:"token_reserve"`
	LPSupply     *uint256.Int   `json:"lp_supply"`
	Records      []Record       `json:"records"`
}

// Snapshot returns the pool state.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Address:      p.address,
		EthReserve:   p.ethReserve.Clone(),
		TokenReserve: p.tokenReserve.Clone(),
		LPSupply:     p.lpSupply.Clone(),
		Records:      append([]Record(nil), p.records...),
	}
}

// Restore rebuilds a pool from s.
func Restore(s Snapshot, opts ...Option) *Pool {
	p := New(s.Address, opts...)
	if s.EthReserve != nil {
		p.ethReserve = s.EthReserve.Clone()
	}
	if s.TokenReserve != nil {
		p.tokenReserve = s.TokenReserve.Clone()
	}
	if s.LPSupply != nil {
		p.lpSupply = s.LPSupply.Clone()
	}
	p.records = append(p.records, s.Records...)
	return p
}
