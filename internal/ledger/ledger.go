// Package ledger is the bonding-curve sale state machine: token supply, ETH
// reserve, tax accounting, and the one-time liquidity migration.
//
// A Ledger serialises all mutating calls. Each call stages its writes, runs
// its external calls (receiver notifications, pool deposit) and commits only
// if all of them succeed, so a failed call leaves no trace.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Mohsinsiddi/curvesim/internal/curve"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Receiver is notified when the ledger pays native ETH to an address. A
// non-nil error reverts the paying operation.
type Receiver interface {
	Receive(ctx context.Context, amount *uint256.Int) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, amount *uint256.Int) error

// Receive calls f.
func (f ReceiverFunc) Receive(ctx context.Context, amount *uint256.Int) error { return f(ctx, amount) }

// LiquidityPool is the AMM that receives the reserve on migration.
type LiquidityPool interface {
	Address() common.Address
	AddLiquidity(ctx context.Context, ethAmount, tokenAmount *uint256.Int) error
}

// Config holds the initialization parameters of a ledger.
type Config struct {
	Params       curve.Params   `json:"params"`
	Owner        common.Address `json:"owner"`
	FeeRecipient common.Address `json:"fee_recipient"`
	Treasury     common.Address `json:"treasury"`
	Router       common.Address `json:"router"`
	Rates        Rates          `json:"rates"`
	// MigrationPercent is the share of the reserve moved to the pool, 1..100.
	// Zero means 100.
	MigrationPercent uint64 `json:"migration_percent"`
}

// DefaultConfig returns the launch configuration with every role held by owner.
func DefaultConfig(owner common.Address) Config {
	return Config{
		Params:           curve.DefaultParams(),
		Owner:            owner,
		FeeRecipient:     owner,
		Treasury:         owner,
		Router:           owner,
		Rates:            DefaultRates(),
		MigrationPercent: 100,
	}
}

// Validate checks the parameters, roles and rates.
func (c Config) Validate() error {
	if err := c.Params.Validate(); err != nil {
		return err
	}
	zero := common.Address{}
	for name, a := range map[string]common.Address{
		"owner": c.Owner, "fee recipient": c.FeeRecipient, "treasury": c.Treasury, "router": c.Router,
	} {
		if a == zero {
			return fmt.Errorf("%w: %s is the zero address", ErrInvalidAddress, name)
		}
	}
	if c.MigrationPercent > 100 {
		return fmt.Errorf("%w: migration percent %d", ErrInvalidAmount, c.MigrationPercent)
	}
	return c.Rates.Validate()
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger.Named("ledger")
	}
}

// WithPool routes the migration into pool. Without a pool the migrated ETH
// and tokens are credited to the router address.
func WithPool(pool LiquidityPool) Option {
	return func(l *Ledger) {
		l.pool = pool
	}
}

// WithReceiver registers r to be notified of native payouts to addr.
func WithReceiver(addr common.Address, r Receiver) Option {
	return func(l *Ledger) {
		l.receivers[addr] = r
	}
}

// Ledger is a single bonding-curve sale.
type Ledger struct {
	params       curve.Params
	feeRecipient common.Address
	treasury     common.Address
	router       common.Address
	migrationPct uint64

	pool      LiquidityPool
	receivers map[common.Address]Receiver
	logger    *zap.Logger

	// sem admits one mutating call at a time; mu guards st against readers.
	// entered is set while an operation runs its external calls.
	sem     chan struct{}
	entered atomic.Bool
	mu      sync.RWMutex
	st      state
}

// New creates a ledger with zero supply and reserve.
func New(cfg Config, opts ...Option) (*Ledger, error) {
	if cfg.MigrationPercent == 0 {
		cfg.MigrationPercent = 100
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		params:       cfg.Params.Clone(),
		feeRecipient: cfg.FeeRecipient,
		treasury:     cfg.Treasury,
		router:       cfg.Router,
		migrationPct: cfg.MigrationPercent,
		receivers:    make(map[common.Address]Receiver),
		logger:       zap.NewNop(),
		sem:          make(chan struct{}, 1),
		st:           newState(cfg.Owner, cfg.Rates),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Receipt describes a committed buy or sell.
type Receipt struct {
	Account   common.Address `json:"account"`
	Tokens    *uint256.Int   `json:"tokens"`
	Split     Split          `json:"split"`
	Migration *Migration     `json:"migration,omitempty"`
	Events    []Event        `json:"events"`
}

// Migration describes the liquidity move triggered by a buy.
type Migration struct {
	EthAmount   *uint256.Int   `json:"eth_amount"`
	TokenAmount *uint256.Int   `json:"token_amount"`
	Destination common.Address `json:"destination"`
}

type execKey struct{ l *Ledger }

// exec runs one mutating operation. Any mutating call that arrives while an
// operation is in its external-call phase fails with ErrReentrancyBlocked,
// whatever ctx it carries.
func (l *Ledger) exec(ctx context.Context, op string, fn func(tx *txn) error) ([]Event, error) {
	release, err := l.acquire(ctx, op)
	if err != nil {
		return nil, err
	}
	defer release()

	inner := context.WithValue(ctx, execKey{l}, op)
	tx := newTxn(&l.st)
	if err := fn(tx); err != nil {
		l.logger.Debug("operation rejected", zap.String("op", op), zap.Error(err))
		return nil, err
	}
	l.entered.Store(true)
	err = l.runCalls(inner, op, tx.calls)
	l.entered.Store(false)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	tx.commit()
	l.mu.Unlock()

	out := make([]Event, len(tx.events))
	for i, e := range tx.events {
		out[i] = e.Clone()
	}
	return out, nil
}

func (l *Ledger) runCalls(ctx context.Context, op string, calls []externalCall) error {
	for _, c := range calls {
		if err := c.fn(ctx); err != nil {
			l.logger.Debug("external call failed",
				zap.String("op", op), zap.String("call", c.name), zap.Error(err))
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

func (l *Ledger) acquire(ctx context.Context, op string) (func(), error) {
	if ctx.Value(execKey{l}) != nil || l.entered.Load() {
		return nil, fmt.Errorf("%w: %s", ErrReentrancyBlocked, op)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return func() { <-l.sem }, nil
}

// pay credits amount to addr and schedules its receiver, if any.
func (l *Ledger) pay(tx *txn, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := tx.credit(to, amount); err != nil {
		return err
	}
	if r, ok := l.receivers[to]; ok {
		amt := amount.Clone()
		tx.call("receive "+to.Hex(), func(ctx context.Context) error {
			return r.Receive(ctx, amt)
		})
	}
	return nil
}

// Buy mints tokens to buyer for ethIn wei and migrates liquidity once the
// market cap reaches the threshold.
func (l *Ledger) Buy(ctx context.Context, buyer common.Address, ethIn *uint256.Int) (*Receipt, error) {
	rc := &Receipt{Account: buyer}
	events, err := l.exec(ctx, "buy", func(tx *txn) error {
		if ethIn == nil || ethIn.IsZero() {
			return ErrZeroAmount
		}
		if buyer == (common.Address{}) {
			return fmt.Errorf("%w: buyer", ErrInvalidAddress)
		}
		split, err := SplitBuy(ethIn, tx.rates)
		if err != nil {
			return err
		}
		if split.Net.IsZero() {
			return fmt.Errorf("%w: nothing left after taxes", ErrInvalidAmount)
		}
		tokens, err := l.params.BuyAmount(tx.totalSupply, split.Net)
		if err != nil {
			return err
		}
		if tokens.IsZero() {
			return fmt.Errorf("%w: %s wei buys zero tokens", ErrInvalidAmount, split.Net.Dec())
		}
		if err := tx.mint(buyer, tokens); err != nil {
			return err
		}
		retained := new(uint256.Int).Add(split.Net, split.Liquidity)
		if err := tx.addReserve(retained); err != nil {
			return err
		}
		if err := l.pay(tx, l.feeRecipient, split.Fee); err != nil {
			return err
		}
		if err := l.pay(tx, l.treasury, split.Protocol); err != nil {
			return err
		}
		tx.emit(buyEvent(buyer, split.Net, tokens))

		mig, err := l.maybeMigrate(tx)
		if err != nil {
			return err
		}
		rc.Tokens = tokens
		rc.Split = split
		rc.Migration = mig
		return nil
	})
	if err != nil {
		return nil, err
	}
	rc.Events = events

	l.logger.Debug("buy",
		zap.String("buyer", buyer.Hex()),
		zap.String("eth_in", ethIn.Dec()),
		zap.String("tokens", rc.Tokens.Dec()))
	if rc.Migration != nil {
		l.logger.Info("liquidity migrated",
			zap.String("eth", rc.Migration.EthAmount.Dec()),
			zap.String("tokens", rc.Migration.TokenAmount.Dec()),
			zap.String("destination", rc.Migration.Destination.Hex()))
	}
	return rc, nil
}

// maybeMigrate stages the migration when the latch is open and the market
// cap at the staged supply has reached the threshold.
func (l *Ledger) maybeMigrate(tx *txn) (*Migration, error) {
	if tx.liquidityAdded {
		return nil, nil
	}
	reached, err := l.params.ThresholdReached(tx.totalSupply)
	if err != nil || !reached {
		return nil, err
	}

	ethAmount := percent(tx.reserve, l.migrationPct)
	price, err := l.params.Price(tx.totalSupply)
	if err != nil {
		return nil, err
	}
	tokenAmount := new(uint256.Int)
	if !price.IsZero() {
		var overflow bool
		tokenAmount, overflow = new(uint256.Int).MulDivOverflow(ethAmount, curve.OneToken(), price)
		if overflow {
			return nil, fmt.Errorf("%w: migration token amount", ErrOverflow)
		}
	}

	dest := l.router
	if l.pool != nil {
		dest = l.pool.Address()
	}
	if err := tx.subReserve(ethAmount); err != nil {
		return nil, err
	}
	if !tokenAmount.IsZero() {
		if err := tx.mint(dest, tokenAmount); err != nil {
			return nil, err
		}
	}
	tx.liquidityAdded = true
	tx.emit(liquidityEvent(ethAmount, tokenAmount))

	if l.pool != nil {
		pool := l.pool
		eth, tokens := ethAmount.Clone(), tokenAmount.Clone()
		tx.call("add liquidity", func(ctx context.Context) error {
			return pool.AddLiquidity(ctx, eth, tokens)
		})
	} else if err := l.pay(tx, dest, ethAmount); err != nil {
		return nil, err
	}
	return &Migration{EthAmount: ethAmount, TokenAmount: tokenAmount, Destination: dest}, nil
}

// Sell burns tokensIn from seller and pays out the curve value net of taxes.
// The liquidity and sell taxes stay in the reserve.
func (l *Ledger) Sell(ctx context.Context, seller common.Address, tokensIn *uint256.Int) (*Receipt, error) {
	rc := &Receipt{Account: seller}
	events, err := l.exec(ctx, "sell", func(tx *txn) error {
		if tokensIn == nil || tokensIn.IsZero() {
			return fmt.Errorf("%w: token amount must be positive", ErrInvalidAmount)
		}
		if bal := tx.balanceOf(seller); bal.Lt(tokensIn) {
			return fmt.Errorf("%w: %s holds %s, selling %s", ErrInsufficientBalance, seller.Hex(), bal.Dec(), tokensIn.Dec())
		}
		ethOut, err := l.params.SellAmount(tx.totalSupply, tokensIn)
		if err != nil {
			return err
		}
		if tx.reserve.Lt(ethOut) {
			return fmt.Errorf("%w: reserve %s, payout %s", ErrInsufficientReserve, tx.reserve.Dec(), ethOut.Dec())
		}
		split, err := SplitSell(ethOut, tx.rates)
		if err != nil {
			return err
		}
		if err := tx.burn(seller, tokensIn); err != nil {
			return err
		}
		if err := tx.subReserve(new(uint256.Int).Add(split.Net, split.Fee)); err != nil {
			return err
		}
		if err := l.pay(tx, seller, split.Net); err != nil {
			return err
		}
		if err := l.pay(tx, l.feeRecipient, split.Fee); err != nil {
			return err
		}
		tx.emit(sellEvent(seller, tokensIn, split.Net))
		rc.Tokens = tokensIn.Clone()
		rc.Split = split
		return nil
	})
	if err != nil {
		return nil, err
	}
	rc.Events = events
	l.logger.Debug("sell",
		zap.String("seller", seller.Hex()),
		zap.String("tokens", tokensIn.Dec()),
		zap.String("eth_out", rc.Split.Net.Dec()))
	return rc, nil
}

// SetFees replaces the tax rates. Only the owner may call it.
func (l *Ledger) SetFees(ctx context.Context, caller common.Address, buy, sell, liquidity uint64) error {
	r := Rates{Buy: buy, Sell: sell, Liquidity: liquidity}
	_, err := l.exec(ctx, "set fees", func(tx *txn) error {
		if caller != tx.owner {
			return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller.Hex())
		}
		if err := r.Validate(); err != nil {
			return err
		}
		tx.rates = r
		tx.emit(feesEvent(r))
		return nil
	})
	if err == nil {
		l.logger.Info("fees updated",
			zap.Uint64("buy", buy), zap.Uint64("sell", sell), zap.Uint64("liquidity", liquidity))
	}
	return err
}

// TransferOwnership hands the owner role to next.
func (l *Ledger) TransferOwnership(ctx context.Context, caller, next common.Address) error {
	_, err := l.exec(ctx, "transfer ownership", func(tx *txn) error {
		if caller != tx.owner {
			return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller.Hex())
		}
		if next == (common.Address{}) {
			return fmt.Errorf("%w: new owner", ErrInvalidAddress)
		}
		tx.emit(ownershipEvent(tx.owner, next))
		tx.owner = next
		return nil
	})
	return err
}

// Transfer always fails: tokens only move through the curve.
func (l *Ledger) Transfer(_ context.Context, from, to common.Address, amount *uint256.Int) error {
	amt := "0"
	if amount != nil {
		amt = amount.Dec()
	}
	return fmt.Errorf("%w: %s -> %s (%s)", ErrTransferRestricted, from.Hex(), to.Hex(), amt)
}

// --- quotes ---

// CalculateBuyAmount returns the tokens ethIn wei buys at the current supply,
// before taxes.
func (l *Ledger) CalculateBuyAmount(ethIn *uint256.Int) (*uint256.Int, error) {
	return l.params.BuyAmount(l.TotalSupply(), ethIn)
}

// CalculateSellAmount returns the gross wei released by burning tokensIn at
// the current supply, before taxes.
func (l *Ledger) CalculateSellAmount(tokensIn *uint256.Int) (*uint256.Int, error) {
	return l.params.SellAmount(l.TotalSupply(), tokensIn)
}

// PreviewBuy returns the tax split and tokens a buy of ethIn would produce
// at the current state, without changing it.
func (l *Ledger) PreviewBuy(ethIn *uint256.Int) (Split, *uint256.Int, error) {
	if ethIn == nil || ethIn.IsZero() {
		return Split{}, nil, ErrZeroAmount
	}
	l.mu.RLock()
	rates, supply := l.st.rates, l.st.totalSupply.Clone()
	l.mu.RUnlock()

	split, err := SplitBuy(ethIn, rates)
	if err != nil {
		return Split{}, nil, err
	}
	tokens, err := l.params.BuyAmount(supply, split.Net)
	if err != nil {
		return Split{}, nil, err
	}
	return split, tokens, nil
}

// PreviewSell returns the tax split a sell of tokensIn would produce.
func (l *Ledger) PreviewSell(tokensIn *uint256.Int) (Split, error) {
	l.mu.RLock()
	rates, supply := l.st.rates, l.st.totalSupply.Clone()
	l.mu.RUnlock()

	ethOut, err := l.params.SellAmount(supply, tokensIn)
	if err != nil {
		return Split{}, err
	}
	return SplitSell(ethOut, rates)
}

// --- accessors ---

// Params returns a copy of the curve parameters.
func (l *Ledger) Params() curve.Params { return l.params.Clone() }

func (l *Ledger) FeeRecipient() common.Address { return l.feeRecipient }
func (l *Ledger) Treasury() common.Address     { return l.treasury }
func (l *Ledger) Router() common.Address       { return l.router }

// MigrationPercent returns the share of the reserve moved on migration.
func (l *Ledger) MigrationPercent() uint64 { return l.migrationPct }

func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.totalSupply.Clone()
}

func (l *Ledger) EthReserve() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.reserve.Clone()
}

func (l *Ledger) LiquidityAdded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.liquidityAdded
}

func (l *Ledger) Owner() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.owner
}

// Rates returns the current tax rates.
func (l *Ledger) Rates() Rates {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.rates
}

func (l *Ledger) BuyTaxPercent() uint64       { return l.Rates().Buy }
func (l *Ledger) SellTaxPercent() uint64      { return l.Rates().Sell }
func (l *Ledger) LiquidityTaxPercent() uint64 { return l.Rates().Liquidity }

// BalanceOf returns the token balance of a.
func (l *Ledger) BalanceOf(a common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.st.balances[a]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// NativeBalanceOf returns the wei the ledger has paid out to a.
func (l *Ledger) NativeBalanceOf(a common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.st.native[a]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// Price returns the instantaneous price at the current supply.
func (l *Ledger) Price() (*uint256.Int, error) {
	return l.params.Price(l.TotalSupply())
}

// MarketCap returns the market cap at the current supply.
func (l *Ledger) MarketCap() (*uint256.Int, error) {
	return l.params.MarketCap(l.TotalSupply())
}

// Events returns the events with Seq > after, oldest first.
func (l *Ledger) Events(after uint64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if after >= uint64(len(l.st.events)) {
		return nil
	}
	out := make([]Event, 0, uint64(len(l.st.events))-after)
	for _, e := range l.st.events[after:] {
		out = append(out, e.Clone())
	}
	return out
}

// Holder is one non-zero token balance.
type Holder struct {
	Address common.Address `json:"address"`
	Balance *uint256.Int   `json:"balance"`
}

// Holders returns every non-zero balance, largest first.
func (l *Ledger) Holders() []Holder {
	l.mu.RLock()
	out := make([]Holder, 0, len(l.st.balances))
	for a, b := range l.st.balances {
		out = append(out, Holder{Address: a, Balance: b.Clone()})
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Balance.Cmp(out[j].Balance); c != 0 {
			return c > 0
		}
		return out[i].Address.Cmp(out[j].Address) < 0
	})
	return out
}
