package scenario

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Mohsinsiddi/curvesim/internal/amm"
	"github.com/Mohsinsiddi/curvesim/internal/ledger"
	"github.com/Mohsinsiddi/curvesim/internal/units"
	"github.com/Mohsinsiddi/curvesim/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger passed to the runner, ledger and pool.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// Runner executes scenarios.
type Runner struct {
	logger *zap.Logger
}

// NewRunner creates a runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State is the ledger state observed after a step.
type State struct {
	Supply         *uint256.Int `json:"supply"`
	Reserve        *uint256.Int `json:"reserve"`
	Price          *uint256.Int `json:"price"`
	MarketCap      *uint256.Int `json:"market_cap"`
	LiquidityAdded bool         `json:"liquidity_added"`
	Events         int          `json:"events"`
}

// StepResult is the outcome of one step. Failure is empty when the step
// behaved as scripted, including an expected revert.
type StepResult struct {
	Index   int             `json:"index"`
	Action  string          `json:"action"`
	Account string          `json:"account,omitempty"`
	Note    string          `json:"note,omitempty"`
	Err     error           `json:"-"`
	Reason  string          `json:"reason,omitempty"`
	Failure string          `json:"failure,omitempty"`
	Out     *uint256.Int    `json:"out,omitempty"`
	Receipt *ledger.Receipt `json:"receipt,omitempty"`
	State   State           `json:"state"`
}

// OK reports whether the step matched the script.
func (s StepResult) OK() bool { return s.Failure == "" }

// Report is the outcome of a scenario run.
type Report struct {
	Name   string                    `json:"name"`
	Steps  []StepResult              `json:"steps"`
	Ledger ledger.Snapshot           `json:"ledger"`
	Pool   *amm.Snapshot             `json:"pool,omitempty"`
	Labels map[common.Address]string `json:"labels"`
}

// Failures returns the steps that did not match the script.
func (r *Report) Failures() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if !s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// Passed reports whether every step matched.
func (r *Report) Passed() bool { return len(r.Failures()) == 0 }

// Label names addr the way the scenario does.
func (r *Report) Label(addr common.Address) string {
	if name, ok := r.Labels[addr]; ok {
		return name
	}
	return addr.Hex()
}

type env struct {
	sc       *Scenario
	ledger   *ledger.Ledger
	pool     *amm.Pool
	accounts *wallet.Manager
	labels   map[common.Address]string
}

func (e *env) resolve(ref string) (common.Address, error) {
	addr, err := e.accounts.Resolve(ref)
	if err != nil {
		return common.Address{}, err
	}
	if _, ok := e.labels[addr]; !ok && !common.IsHexAddress(ref) {
		e.labels[addr] = ref
	}
	return addr, nil
}

// Run executes sc against a fresh ledger. Step failures are recorded in the
// report; the error is non-nil only when the scenario cannot start or ctx
// ends.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	e, err := r.setup(sc)
	if err != nil {
		return nil, err
	}
	logger := r.logger.Named("scenario").With(zap.String("scenario", sc.Name))

	rep := &Report{Name: sc.Name}
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res := r.step(ctx, e, i, st)
		if res.OK() {
			logger.Debug("step", zap.Int("index", res.Index), zap.String("action", st.Action))
		} else {
			logger.Warn("step failed",
				zap.Int("index", res.Index), zap.String("action", st.Action), zap.String("failure", res.Failure))
		}
		rep.Steps = append(rep.Steps, res)
	}

	rep.Ledger = e.ledger.Snapshot()
	if e.pool != nil {
		s := e.pool.Snapshot()
		rep.Pool = &s
	}
	rep.Labels = e.labels
	logger.Info("scenario finished",
		zap.Int("steps", len(rep.Steps)), zap.Int("failures", len(rep.Failures())))
	return rep, nil
}

func (r *Runner) setup(sc *Scenario) (*env, error) {
	e := &env{
		sc:       sc,
		accounts: wallet.NewManager(wallet.WithInMemoryStore()),
		labels:   make(map[common.Address]string),
	}
	names := make([]string, 0, len(sc.Accounts))
	for name := range sc.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.accounts.Add(name, &wallet.Wallet{Address: sc.Accounts[name]}); err != nil {
			return nil, fmt.Errorf("account %s: %w", name, err)
		}
	}

	params, err := sc.params()
	if err != nil {
		return nil, err
	}
	roles := sc.Roles.withDefaults()
	cfg := ledger.Config{
		Params:           params,
		Rates:            ledger.DefaultRates(),
		MigrationPercent: sc.MigrationPercent,
	}
	if sc.Fees != nil {
		cfg.Rates = sc.Fees.Rates()
	}
	for _, role := range []struct {
		dst *common.Address
		ref string
	}{
		{&cfg.Owner, roles.Owner},
		{&cfg.FeeRecipient, roles.FeeRecipient},
		{&cfg.Treasury, roles.Treasury},
		{&cfg.Router, roles.Router},
	} {
		if *role.dst, err = e.resolve(role.ref); err != nil {
			return nil, err
		}
	}

	opts := []ledger.Option{ledger.WithLogger(r.logger)}
	if !sc.NoPool {
		addr, err := e.resolve(roles.Pool)
		if err != nil {
			return nil, err
		}
		e.pool = amm.New(addr, amm.WithLogger(r.logger))
		opts = append(opts, ledger.WithPool(e.pool))
	}
	if e.ledger, err = ledger.New(cfg, opts...); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *Runner) step(ctx context.Context, e *env, i int, st Step) StepResult {
	res := StepResult{Index: i + 1, Action: st.Action, Account: st.Account, Note: st.Note}

	out, err := r.apply(ctx, e, st, &res)
	res.Err = err
	res.Out = out
	if err != nil {
		res.Reason = ledger.Reason(err)
	}
	switch {
	case st.ExpectError != "" && err == nil:
		res.Failure = fmt.Sprintf("expected error %q, step succeeded", st.ExpectError)
	case st.ExpectError != "" && !matchesError(err, st.ExpectError):
		res.Failure = fmt.Sprintf("expected error %q, got %q", st.ExpectError, err.Error())
	case st.ExpectError == "" && err != nil:
		res.Failure = err.Error()
	}

	res.State = observe(e.ledger)
	if st.Expect != nil && res.Failure == "" {
		res.Failure = e.check(st.Expect, res)
	}
	return res
}

func (r *Runner) apply(ctx context.Context, e *env, st Step, res *StepResult) (*uint256.Int, error) {
	l := e.ledger
	switch st.Action {
	case ActionBuy:
		buyer, err := e.resolve(st.Account)
		if err != nil {
			return nil, err
		}
		eth, err := units.ParseWithUnit(st.ETH)
		if err != nil {
			return nil, err
		}
		rc, err := l.Buy(ctx, buyer, eth)
		if err != nil {
			return nil, err
		}
		res.Receipt = rc
		return rc.Tokens, nil

	case ActionSell:
		seller, err := e.resolve(st.Account)
		if err != nil {
			return nil, err
		}
		tokens := l.BalanceOf(seller)
		if st.Tokens != SellAll {
			if tokens, err = units.ParseWithUnit(st.Tokens); err != nil {
				return nil, err
			}
		}
		rc, err := l.Sell(ctx, seller, tokens)
		if err != nil {
			return nil, err
		}
		res.Receipt = rc
		return rc.Split.Net, nil

	case ActionSetFees:
		caller, err := e.caller(st.Account)
		if err != nil {
			return nil, err
		}
		return nil, l.SetFees(ctx, caller, st.Fees.Buy, st.Fees.Sell, st.Fees.Liquidity)

	case ActionTransfer:
		from, err := e.resolve(st.Account)
		if err != nil {
			return nil, err
		}
		to, err := e.resolve(st.To)
		if err != nil {
			return nil, err
		}
		amount, err := units.ParseWithUnit(st.Tokens)
		if err != nil {
			return nil, err
		}
		return nil, l.Transfer(ctx, from, to, amount)

	case ActionTransferOwnership:
		caller, err := e.caller(st.Account)
		if err != nil {
			return nil, err
		}
		next, err := e.resolve(st.To)
		if err != nil {
			return nil, err
		}
		return nil, l.TransferOwnership(ctx, caller, next)

	case ActionSwap:
		if e.pool == nil {
			return nil, ErrNoPool
		}
		trader, err := e.resolve(st.Account)
		if err != nil {
			return nil, err
		}
		if st.ETH != "" {
			eth, err := units.ParseWithUnit(st.ETH)
			if err != nil {
				return nil, err
			}
			return e.pool.SwapETHForTokens(ctx, trader, eth, new(uint256.Int))
		}
		tokens, err := units.ParseWithUnit(st.Tokens)
		if err != nil {
			return nil, err
		}
		return e.pool.SwapTokensForETH(ctx, trader, tokens, new(uint256.Int))

	case ActionExpect:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidScenario, st.Action)
}

func (e *env) caller(ref string) (common.Address, error) {
	if ref == "" {
		return e.ledger.Owner(), nil
	}
	return e.resolve(ref)
}

func observe(l *ledger.Ledger) State {
	s := State{
		Supply:         l.TotalSupply(),
		Reserve:        l.EthReserve(),
		LiquidityAdded: l.LiquidityAdded(),
		Events:         len(l.Events(0)),
	}
	s.Price, _ = l.Price()
	s.MarketCap, _ = l.MarketCap()
	return s
}

// check compares ex with the observed state and returns a description of
// every mismatch.
func (e *env) check(ex *Expectation, res StepResult) string {
	var diffs []string
	amount := func(field, want string, got *uint256.Int) {
		if want == "" {
			return
		}
		w, err := units.ParseWithUnit(want)
		if err != nil {
			diffs = append(diffs, fmt.Sprintf("%s: %v", field, err))
			return
		}
		if got == nil {
			got = new(uint256.Int)
		}
		if !w.Eq(got) {
			diffs = append(diffs, fmt.Sprintf("%s: want %s, got %s wei", field, w.Dec(), got.Dec()))
		}
	}
	amount("out", ex.Out, res.Out)
	amount("supply", ex.Supply, res.State.Supply)
	amount("reserve", ex.Reserve, res.State.Reserve)
	amount("price", ex.Price, res.State.Price)
	amount("market_cap", ex.MarketCap, res.State.MarketCap)

	if ex.LiquidityAdded != nil && *ex.LiquidityAdded != res.State.LiquidityAdded {
		diffs = append(diffs, fmt.Sprintf("liquidity_added: want %t", *ex.LiquidityAdded))
	}
	if ex.Events != nil && *ex.Events != res.State.Events {
		diffs = append(diffs, fmt.Sprintf("events: want %d, got %d", *ex.Events, res.State.Events))
	}
	if ex.Fees != nil && ex.Fees.Rates() != e.ledger.Rates() {
		r := e.ledger.Rates()
		diffs = append(diffs, fmt.Sprintf("fees: want %d/%d/%d, got %d/%d/%d",
			ex.Fees.Buy, ex.Fees.Sell, ex.Fees.Liquidity, r.Buy, r.Sell, r.Liquidity))
	}
	if ex.Owner != "" {
		want, err := e.resolve(ex.Owner)
		if err != nil {
			diffs = append(diffs, fmt.Sprintf("owner: %v", err))
		} else if got := e.ledger.Owner(); got != want {
			diffs = append(diffs, fmt.Sprintf("owner: want %s, got %s", ex.Owner, got.Hex()))
		}
	}
	books := []struct {
		name string
		want map[string]string
		get  func(common.Address) *uint256.Int
	}{
		{"balance", ex.Balances, e.ledger.BalanceOf},
		{"native", ex.Native, e.ledger.NativeBalanceOf},
	}
	for _, book := range books {
		for _, who := range sortedKeys(book.want) {
			addr, err := e.resolve(who)
			if err != nil {
				diffs = append(diffs, fmt.Sprintf("%s of %s: %v", book.name, who, err))
				continue
			}
			amount(book.name+" of "+who, book.want[who], book.get(addr))
		}
	}
	return strings.Join(diffs, "; ")
}

// matchesError accepts the revert reason or any substring of the error text.
func matchesError(err error, want string) bool {
	if err == nil {
		return false
	}
	want = strings.ToLower(want)
	return strings.Contains(strings.ToLower(ledger.Reason(err)), want) ||
		strings.Contains(strings.ToLower(err.Error()), want)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
