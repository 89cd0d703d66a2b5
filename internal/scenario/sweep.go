package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/Mohsinsiddi/curvesim/internal/amm"
	"github.com/Mohsinsiddi/curvesim/internal/curve"
	"github.com/Mohsinsiddi/curvesim/internal/ledger"
	"github.com/Mohsinsiddi/curvesim/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SweepConfig drives Sweep.
type SweepConfig struct {
	Runs    int    // independent trading sequences
	Steps   int    // operations per sequence
	Traders int    // accounts per sequence
	Workers int    // sequences in flight; <= 0 means 4
	Seed    uint64 // run i uses PCG(Seed, i)

	Params           curve.Params
	Rates            ledger.Rates
	MigrationPercent uint64
	// MaxBuy caps a single random buy, in wei.
	MaxBuy *uint256.Int
}

// DefaultSweepConfig returns a sweep small enough for tests with a threshold
// low enough that most runs migrate.
func DefaultSweepConfig() SweepConfig {
	p := curve.DefaultParams()
	p.Threshold = new(uint256.Int).Mul(uint256.NewInt(25), curve.OneToken())
	return SweepConfig{
		Runs:             32,
		Steps:            200,
		Traders:          5,
		Workers:          4,
		Seed:             1,
		Params:           p,
		Rates:            ledger.DefaultRates(),
		MigrationPercent: 100,
		MaxBuy:           new(uint256.Int).Mul(uint256.NewInt(5), curve.OneToken()),
	}
}

// Violation is a broken property.
type Violation struct {
	Run      int    `json:"run"`
	Step     int    `json:"step"`
	Property string `json:"property"`
	Detail   string `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("run %d step %d: %s: %s", v.Run, v.Step, v.Property, v.Detail)
}

// SweepStats aggregates a sweep.
type SweepStats struct {
	Runs       int          `json:"runs"`
	Steps      int          `json:"steps"`
	Buys       int          `json:"buys"`
	Sells      int          `json:"sells"`
	FeeChanges int          `json:"fee_changes"`
	Rejected   int          `json:"rejected"`
	Reentries  int          `json:"reentries_blocked"`
	Migrations int          `json:"migrations"`
	Volume     *uint256.Int `json:"volume"`
	Violations []Violation  `json:"violations"`
}

// OK reports whether no property was violated.
func (s *SweepStats) OK() bool { return len(s.Violations) == 0 }

func (s *SweepStats) merge(o *SweepStats) {
	s.Runs += o.Runs
	s.Steps += o.Steps
	s.Buys += o.Buys
	s.Sells += o.Sells
	s.FeeChanges += o.FeeChanges
	s.Rejected += o.Rejected
	s.Reentries += o.Reentries
	s.Migrations += o.Migrations
	s.Volume.Add(s.Volume, o.Volume)
	s.Violations = append(s.Violations, o.Violations...)
}

// Sweep runs cfg.Runs randomized sequences in parallel and checks after
// every operation that:
//
//   - balances sum to the total supply;
//   - a rejected operation leaves supply, reserve and events unchanged;
//   - the liquidity latch flips once, at or after the threshold;
//   - before migration the reserve covers selling the whole supply;
//   - tokens just bought sell back for no more than the net ETH paid;
//   - buy quotes are monotone in the ETH amount;
//   - a receiver reentering the ledger is blocked.
//
// Results are deterministic for a given config.
func Sweep(ctx context.Context, cfg SweepConfig, opts ...Option) (*SweepStats, error) {
	if cfg.Runs <= 0 || cfg.Steps <= 0 {
		return nil, fmt.Errorf("%w: runs and steps must be positive", ErrInvalidScenario)
	}
	if cfg.Traders <= 0 {
		cfg.Traders = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxBuy == nil || cfg.MaxBuy.IsZero() {
		cfg.MaxBuy = curve.OneToken()
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Rates.Validate(); err != nil {
		return nil, err
	}
	r := NewRunner(opts...)
	logger := r.logger.Named("sweep")

	total := &SweepStats{Volume: new(uint256.Int)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < cfg.Runs; i++ {
		run := i
		g.Go(func() error {
			stats, err := sweepRun(gctx, cfg, run)
			if err != nil {
				return err
			}
			mu.Lock()
			total.merge(stats)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(total.Violations, func(i, j int) bool {
		a, b := total.Violations[i], total.Violations[j]
		if a.Run != b.Run {
			return a.Run < b.Run
		}
		return a.Step < b.Step
	})
	logger.Info("sweep finished",
		zap.Int("runs", total.Runs),
		zap.Int("steps", total.Steps),
		zap.Int("migrations", total.Migrations),
		zap.Int("violations", len(total.Violations)))
	return total, nil
}

type sweeper struct {
	cfg     SweepConfig
	run     int
	rng     *rand.Rand
	ledger  *ledger.Ledger
	pool    *amm.Pool
	owner   common.Address
	traders []common.Address
	stats   *SweepStats

	reentryErr error
	latched    bool
}

func sweepRun(ctx context.Context, cfg SweepConfig, run int) (*SweepStats, error) {
	s := &sweeper{
		cfg:   cfg,
		run:   run,
		rng:   rand.New(rand.NewPCG(cfg.Seed, uint64(run))),
		owner: wallet.Derive("deployer"),
		stats: &SweepStats{Runs: 1, Volume: new(uint256.Int)},
	}
	for t := 0; t < cfg.Traders; t++ {
		s.traders = append(s.traders, wallet.Derive(fmt.Sprintf("trader-%d", t)))
	}
	s.pool = amm.New(wallet.Derive("pool"))

	lcfg := ledger.Config{
		Params:           cfg.Params,
		Owner:            s.owner,
		FeeRecipient:     wallet.Derive("fees"),
		Treasury:         wallet.Derive("treasury"),
		Router:           wallet.Derive("router"),
		Rates:            cfg.Rates,
		MigrationPercent: cfg.MigrationPercent,
	}
	// The first trader's payouts try to reenter the ledger.
	reenter := ledger.ReceiverFunc(func(ctx context.Context, _ *uint256.Int) error {
		_, err := s.ledger.Sell(ctx, s.traders[0], uint256.NewInt(1))
		s.reentryErr = err
		return nil
	})
	var err error
	s.ledger, err = ledger.New(lcfg, ledger.WithPool(s.pool), ledger.WithReceiver(s.traders[0], reenter))
	if err != nil {
		return nil, err
	}

	for step := 1; step <= cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.stats.Steps++
		s.step(ctx, step)
	}
	return s.stats, nil
}

func (s *sweeper) violate(step int, property, format string, args ...any) {
	s.stats.Violations = append(s.stats.Violations, Violation{
		Run: s.run, Step: step, Property: property, Detail: fmt.Sprintf(format, args...),
	})
}

type observed struct {
	supply, reserve *uint256.Int
	events          int
}

func (s *sweeper) observe() observed {
	return observed{supply: s.ledger.TotalSupply(), reserve: s.ledger.EthReserve(), events: len(s.ledger.Events(0))}
}

func (s *sweeper) step(ctx context.Context, step int) {
	before := s.observe()
	s.reentryErr = nil

	var err error
	trader := s.traders[s.rng.IntN(len(s.traders))]
	switch roll := s.rng.IntN(100); {
	case roll < 55:
		err = s.buy(ctx, step, trader)
	case roll < 85:
		err = s.sell(ctx, step, trader)
	case roll < 90:
		err = s.oversell(ctx, step, trader)
	case roll < 95:
		err = s.setFees(ctx, step)
	default:
		err = s.ledger.Transfer(ctx, trader, s.traders[0], uint256.NewInt(1))
		if !errors.Is(err, ledger.ErrTransferRestricted) {
			s.violate(step, "transfer restricted", "transfer returned %v", err)
		}
	}

	if err != nil {
		s.stats.Rejected++
		after := s.observe()
		if !after.supply.Eq(before.supply) || !after.reserve.Eq(before.reserve) || after.events != before.events {
			s.violate(step, "atomicity", "rejected operation changed state: %v", err)
		}
	}
	if s.reentryErr != nil {
		if errors.Is(s.reentryErr, ledger.ErrReentrancyBlocked) {
			s.stats.Reentries++
		} else {
			s.violate(step, "reentrancy", "reentrant sell returned %v", s.reentryErr)
		}
	}
	s.checkInvariants(step)
}

func (s *sweeper) buy(ctx context.Context, step int, trader common.Address) error {
	eth := s.randAmount(s.cfg.MaxBuy)

	// Quotes never decrease as the ETH amount grows.
	if half := new(uint256.Int).Rsh(eth, 1); !half.IsZero() {
		lo, errLo := s.ledger.CalculateBuyAmount(half)
		hi, errHi := s.ledger.CalculateBuyAmount(eth)
		if errLo == nil && errHi == nil && hi.Lt(lo) {
			s.violate(step, "monotone quote", "quote(%s)=%s < quote(%s)=%s", eth.Dec(), hi.Dec(), half.Dec(), lo.Dec())
		}
	}

	rc, err := s.ledger.Buy(ctx, trader, eth)
	if err != nil {
		return err
	}
	s.stats.Buys++
	s.stats.Volume.Add(s.stats.Volume, eth)
	if rc.Migration != nil {
		s.stats.Migrations++
	}

	// Selling the fresh tokens straight back never returns more than was
	// paid into the curve. Skipped after migration, which mints extra supply.
	if rc.Migration == nil {
		back, err := s.ledger.CalculateSellAmount(rc.Tokens)
		if err == nil && back.Gt(rc.Split.Net) {
			s.violate(step, "no arbitrage", "bought %s tokens for %s wei, sell quote %s", rc.Tokens.Dec(), rc.Split.Net.Dec(), back.Dec())
		}
	}
	return nil
}

func (s *sweeper) sell(ctx context.Context, step int, trader common.Address) error {
	bal := s.ledger.BalanceOf(trader)
	if bal.IsZero() {
		return s.buy(ctx, step, trader)
	}
	amount := s.randAmount(bal)
	if _, err := s.ledger.Sell(ctx, trader, amount); err != nil {
		return err
	}
	s.stats.Sells++
	return nil
}

func (s *sweeper) oversell(ctx context.Context, step int, trader common.Address) error {
	amount := new(uint256.Int).AddUint64(s.ledger.BalanceOf(trader), 1)
	_, err := s.ledger.Sell(ctx, trader, amount)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		s.violate(step, "oversell", "selling balance+1 returned %v", err)
	}
	return err
}

func (s *sweeper) setFees(ctx context.Context, step int) error {
	if s.rng.IntN(4) == 0 {
		err := s.ledger.SetFees(ctx, s.traders[0], 1, 1, 1)
		if !errors.Is(err, ledger.ErrUnauthorized) {
			s.violate(step, "owner only", "non-owner SetFees returned %v", err)
		}
		return err
	}
	buy := uint64(s.rng.IntN(11))
	sell := uint64(s.rng.IntN(11))
	liq := uint64(s.rng.IntN(6))
	if err := s.ledger.SetFees(ctx, s.owner, buy, sell, liq); err != nil {
		s.violate(step, "set fees", "owner SetFees(%d,%d,%d) returned %v", buy, sell, liq, err)
		return err
	}
	s.stats.FeeChanges++
	return nil
}

// randAmount returns a value in [1, max], biased toward small amounts.
func (s *sweeper) randAmount(max *uint256.Int) *uint256.Int {
	if max.IsZero() {
		return new(uint256.Int)
	}
	shift := uint(s.rng.IntN(6))
	bound := new(uint256.Int).Rsh(max, shift)
	if bound.IsZero() {
		bound.SetOne()
	}
	// 64 random bits scaled into [0, bound).
	r := uint256.NewInt(s.rng.Uint64())
	v, _ := new(uint256.Int).MulDivOverflow(r, bound, new(uint256.Int).Lsh(uint256.NewInt(1), 64))
	return v.AddUint64(v, 1)
}

func (s *sweeper) checkInvariants(step int) {
	snap := s.ledger.Snapshot()

	sum := new(uint256.Int)
	for _, b := range snap.Balances {
		sum.Add(sum, b)
	}
	if !sum.Eq(snap.TotalSupply) {
		s.violate(step, "supply conservation", "balances sum to %s, supply %s", sum.Dec(), snap.TotalSupply.Dec())
	}

	if snap.LiquidityAdded && !s.latched {
		s.latched = true
		reached, err := s.cfg.Params.ThresholdReached(snap.TotalSupply)
		if err != nil || !reached {
			s.violate(step, "latch", "liquidity added below threshold (supply %s)", snap.TotalSupply.Dec())
		}
		migrations := 0
		for _, e := range snap.Events {
			if e.Kind == ledger.EventLiquidityAdded {
				migrations++
			}
		}
		if migrations != 1 {
			s.violate(step, "latch", "%d LiquidityAdded events", migrations)
		}
	} else if s.latched && !snap.LiquidityAdded {
		s.violate(step, "latch", "liquidity latch reset")
	}

	// Each buy may round its cost down by under one wei.
	if !snap.LiquidityAdded && !snap.TotalSupply.IsZero() {
		owed, err := s.cfg.Params.SellAmount(snap.TotalSupply, snap.TotalSupply)
		slack := new(uint256.Int).AddUint64(snap.EthReserve, uint64(s.stats.Buys))
		if err == nil && slack.Lt(owed) {
			s.violate(step, "solvency", "reserve %s below curve value %s", snap.EthReserve.Dec(), owed.Dec())
		}
	}
}
