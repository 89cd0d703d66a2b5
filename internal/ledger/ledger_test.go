package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Mohsinsiddi/curvesim/internal/curve"
	"github.com/Mohsinsiddi/curvesim/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner        = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob          = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	feeRecipient = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	treasury     = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	router       = common.HexToAddress("0x00000000000000000000000000000000000000f3")
	poolAddr     = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), curve.OneToken())
}

func dec(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

func testConfig() ledger.Config {
	cfg := ledger.DefaultConfig(owner)
	cfg.FeeRecipient = feeRecipient
	cfg.Treasury = treasury
	cfg.Router = router
	return cfg
}

func newLedger(t *testing.T, opts ...ledger.Option) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(testConfig(), opts...)
	require.NoError(t, err)
	return l
}

func lowThreshold(threshold *uint256.Int) ledger.Config {
	cfg := testConfig()
	cfg.Params.Threshold = threshold
	return cfg
}

// requireConsistent checks that balances add up to the total supply.
func requireConsistent(t *testing.T, l *ledger.Ledger) {
	t.Helper()
	sum := new(uint256.Int)
	for _, h := range l.Holders() {
		sum.Add(sum, h.Balance)
	}
	require.Equal(t, l.TotalSupply().Dec(), sum.Dec(), "sum(balances) != totalSupply")
}

type fakePool struct {
	mu     sync.Mutex
	calls  int
	eth    *uint256.Int
	tokens *uint256.Int
	fail   error
	hook   func(ctx context.Context) error
}

func (p *fakePool) Address() common.Address { return poolAddr }

func (p *fakePool) AddLiquidity(ctx context.Context, eth, tokens *uint256.Int) error {
	if p.hook != nil {
		if err := p.hook(ctx); err != nil {
			return err
		}
	}
	if p.fail != nil {
		return p.fail
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.eth, p.tokens = eth, tokens
	return nil
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewLedgerStartsEmpty(t *testing.T) {
	l := newLedger(t)
	assert.True(t, l.TotalSupply().IsZero())
	assert.True(t, l.EthReserve().IsZero())
	assert.False(t, l.LiquidityAdded())
	assert.Equal(t, owner, l.Owner())
	assert.Equal(t, uint64(2), l.BuyTaxPercent())
	assert.Equal(t, uint64(2), l.SellTaxPercent())
	assert.Equal(t, uint64(1), l.LiquidityTaxPercent())
	assert.Empty(t, l.Events(0))
	assert.Empty(t, l.Holders())
}

func TestNewRejectsZeroOwner(t *testing.T) {
	cfg := testConfig()
	cfg.Owner = common.Address{}
	_, err := ledger.New(cfg)
	assert.ErrorIs(t, err, ledger.ErrInvalidAddress)
}

func TestNewRejectsExcessiveRates(t *testing.T) {
	cfg := testConfig()
	cfg.Rates = ledger.Rates{Buy: 60, Sell: 30, Liquidity: 20}
	_, err := ledger.New(cfg)
	assert.ErrorIs(t, err, ledger.ErrInvalidFee)
}

func TestNewRejectsBadMigrationPercent(t *testing.T) {
	cfg := testConfig()
	cfg.MigrationPercent = 101
	_, err := ledger.New(cfg)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestNewDefaultsMigrationPercent(t *testing.T) {
	cfg := testConfig()
	cfg.MigrationPercent = 0
	l, err := ledger.New(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), l.MigrationPercent())
}

// ---------------------------------------------------------------------------
// Buy
// ---------------------------------------------------------------------------

func TestBuyOneEtherAtDefaultRates(t *testing.T) {
	l := newLedger(t)
	rc, err := l.Buy(context.Background(), alice, ether(1))
	require.NoError(t, err)

	assert.Equal(t, "950000000000000000", rc.Split.Net.Dec())
	assert.Equal(t, "186520991955975878174", rc.Tokens.Dec())

	quote, err := l.Params().BuyAmount(new(uint256.Int), rc.Split.Net)
	require.NoError(t, err)
	assert.Equal(t, quote.Dec(), rc.Tokens.Dec())

	assert.Equal(t, "960000000000000000", l.EthReserve().Dec())
	assert.Equal(t, rc.Tokens.Dec(), l.BalanceOf(alice).Dec())
	assert.Equal(t, rc.Tokens.Dec(), l.TotalSupply().Dec())

	// Fee recipient takes the sell rate, treasury the buy rate.
	assert.Equal(t, "20000000000000000", l.NativeBalanceOf(feeRecipient).Dec())
	assert.Equal(t, "20000000000000000", l.NativeBalanceOf(treasury).Dec())
	requireConsistent(t, l)
}

func TestBuyEmitsEvent(t *testing.T) {
	l := newLedger(t)
	rc, err := l.Buy(context.Background(), alice, ether(1))
	require.NoError(t, err)

	want := []ledger.Event{{
		Seq:         1,
		Kind:        ledger.EventBuy,
		Account:     alice,
		EthAmount:   dec("950000000000000000"),
		TokenAmount: dec("186520991955975878174"),
	}}
	if diff := cmp.Diff(want, l.Events(0)); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, want, rc.Events)
}

func TestBuyZeroFails(t *testing.T) {
	l := newLedger(t)
	_, err := l.Buy(context.Background(), alice, new(uint256.Int))
	assert.ErrorIs(t, err, ledger.ErrZeroAmount)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	assert.Equal(t, "Must send ETH to buy tokens", ledger.Reason(err))
	assert.Empty(t, l.Events(0))
}

func TestBuyNilAmountFails(t *testing.T) {
	l := newLedger(t)
	_, err := l.Buy(context.Background(), alice, nil)
	assert.ErrorIs(t, err, ledger.ErrZeroAmount)
}

func TestBuyFromZeroAddressFails(t *testing.T) {
	l := newLedger(t)
	_, err := l.Buy(context.Background(), common.Address{}, ether(1))
	assert.ErrorIs(t, err, ledger.ErrInvalidAddress)
}

func TestBuyDustThatMintsNothingFails(t *testing.T) {
	cfg := testConfig()
	// Above 1e18 wei per whole token a single wei buys less than one base unit.
	cfg.Params.BasePrice = dec("10000000000000000000000000000000000000")
	cfg.Params.Slope = new(uint256.Int)
	l, err := ledger.New(cfg)
	require.NoError(t, err)

	_, err = l.Buy(context.Background(), alice, ether(1))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	assert.True(t, l.TotalSupply().IsZero())
	assert.True(t, l.NativeBalanceOf(treasury).IsZero())
}

func TestSequentialBuysAccumulate(t *testing.T) {
	l := newLedger(t)
	_, err := l.Buy(context.Background(), alice, ether(1))
	require.NoError(t, err)
	rc, err := l.Buy(context.Background(), bob, ether(3))
	require.NoError(t, err)

	assert.Equal(t, "523119977492103175007", rc.Tokens.Dec())
	assert.Equal(t, "709640969448079053181", l.TotalSupply().Dec())
	assert.Equal(t, []ledger.Holder{
		{Address: bob, Balance: dec("523119977492103175007")},
		{Address: alice, Balance: dec("186520991955975878174")},
	}, l.Holders())
	requireConsistent(t, l)
}

func TestBuyQuoteIsMonotonic(t *testing.T) {
	l := newLedger(t)
	_, err := l.Buy(context.Background(), alice, ether(5))
	require.NoError(t, err)

	prev := new(uint256.Int)
	for _, wei := range []uint64{1, 10, 1e9, 1e15, 1e16, 1e17, 1e18, 2e18} {
		got, err := l.CalculateBuyAmount(uint256.NewInt(wei))
		require.NoError(t, err)
		assert.False(t, got.Lt(prev))
		prev = got
	}
}

func TestPreviewBuyMatchesBuy(t *testing.T) {
	l := newLedger(t)
	split, tokens, err := l.PreviewBuy(ether(1))
	require.NoError(t, err)
	assert.True(t, l.TotalSupply().IsZero(), "preview must not mutate")

	rc, err := l.Buy(context.Background(), alice, ether(1))
	require.NoError(t, err)
	assert.Equal(t, tokens.Dec(), rc.Tokens.Dec())
	assert.Equal(t, split.Net.Dec(), rc.Split.Net.Dec())
}

// ---------------------------------------------------------------------------
// Sell
// ---------------------------------------------------------------------------

func TestSellEverythingBack(t *testing.T) {
	l := newLedger(t)
	buy, err := l.Buy(context.Background(), alice, ether(1))
	require.NoError(t, err)

	rc, err := l.Sell(context.Background(), alice, buy.Tokens)
	require.NoError(t, err)

	assert.Equal(t, "949999999999999999", rc.Split.Gross.Dec())
	assert.Equal(t, "902500000000000002", rc.Split.Net.Dec())
	assert.False(t, rc.Split.Gross.Gt(buy.Split.Net), "round trip must not profit")

	assert.True(t, l.TotalSupply().IsZero())
	assert.True(t, l.BalanceOf(alice).IsZero())
	// Sell and liquidity taxes stay behind.
	assert.Equal(t, "38499999999999999", l.EthReserve().Dec())
	assert.Equal(t, "902500000000000002", l.NativeBalanceOf(alice).Dec())
	assert.Equal(t, "38999999999999999", l.NativeBalanceOf(feeRecipient).Dec())
	assert.Empty(t, l.Holders())
	requireConsistent(t, l)
}

func TestSellEmitsEvent(t *testing.T) {
	l := newLedger(t)
	buy, err := l.Buy(context.Background(), alice, ether(1))
	require.NoError(t, err)
	half := new(uint256.Int).Rsh(buy.Tokens, 1)

	rc, err := l.Sell(context.Background(), alice, half)
	require.NoError(t, err)
	assert.Equal(t, "479348760055030152", rc.Split.Gross.Dec())
	assert.Equal(t, "455381322052278645", rc.Split.Net.Dec())

	events := l.Events(1)
	require.Len(t, events, 1)
	assert.Equal(t, ledger.Event{
		Seq:         2,
		Kind:        ledger.EventSell,
		Account:     alice,
		TokenAmount: dec("93260495977987939087"),
		EthAmount:   dec("455381322052278645"),
	}, events[0])
}

func TestOversellFails(t *testing.T) {
	l := newLedger(t)
	buy, err := l.Buy(context.Background(), alice, ether(1))
	require.NoError(t, err)
	before := l.Snapshot()

	tooMany := new(uint256.Int).AddUint64(buy.Tokens, 1)
	_, err = l.Sell(context.Background(), alice, tooMany)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, "ERC20: burn amount exceeds balance", ledger.Reason(err))

	if diff := cmp.Diff(before, l.Snapshot()); diff != "" {
		t.Errorf("state changed after failed sell:\n%s", diff)
	}
}

func TestSellByNonHolderFails(t *testing.T) {
	l := newLedger(t)
	_, err := l.Buy(context.Background(), alice, ether(1))
	require.NoError(t, err)
	_, err = l.Sell(context.Background(), bob, uint256.NewInt(1))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestSellZeroFails(t *testing.T) {
	l := newLedger(t)
	_, err := l.Sell(context.Background(), alice, new(uint256.Int))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestSellBeyondReserveFails(t *testing.T) {
	// After migration the reserve is empty while the pool's tokens still count
	// toward supply, so a holder cannot sell back through the curve.
	pool := &fakePool{}
	l, err := ledger.New(lowThreshold(ether(1)), ledger.WithPool(pool))
	require.NoError(t, err)
	buy, err := l.Buy(context.Background(), alice, ether(2))
	require.NoError(t, err)
	require.NotNil(t, buy.Migration)
	require.True(t, l.EthReserve().IsZero())
	before := l.Snapshot()

	_, err = l.Sell(context.Background(), alice, buy.Tokens)
	assert.ErrorIs(t, err, ledger.ErrInsufficientReserve)
	assert.Empty(t, cmp.Diff(before, l.Snapshot()))
}

// ---------------------------------------------------------------------------
// Fees
// ---------------------------------------------------------------------------

func TestSetFeesByNonOwnerFails(t *testing.T) {
	l := newLedger(t)
	err := l.SetFees(context.Background(), alice, 10, 0, 0)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Equal(t, "Ownable: caller is not the owner", ledger.Reason(err))
	assert.Equal(t, ledger.DefaultRates(), l.Rates())
	assert.Empty(t, l.Events(0))
}

func TestSetFeesAppliesToLaterBuys(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.SetFees(context.Background(), owner, 10, 0, 0))
	assert.Equal(t, ledger.Rates{Buy: 10}, l.Rates())

	rc, err := l.Buy(context.Background(), alice, ether(1))
	require.NoError(t, err)
	assert.Equal(t, "900000000000000000", rc.Split.Net.Dec())
	assert.Equal(t, "176871642217913828271", rc.Tokens.Dec())
	assert.Equal(t, "900000000000000000", l.EthReserve().Dec())
	assert.Equal(t, "100000000000000000", l.NativeBalanceOf(treasury).Dec())
	assert.True(t, l.NativeBalanceOf(feeRecipient).IsZero())

	events := l.Events(0)
	require.Len(t, events, 2)
	assert.Equal(t, ledger.EventFeesUpdated, events[0].Kind)
	assert.Equal(t, &ledger.Rates{Buy: 10}, events[0].Rates)
}

func TestSetFeesRejectsOverHundred(t *testing.T) {
	l := newLedger(t)
	err := l.SetFees(context.Background(), owner, 50, 50, 1)
	assert.ErrorIs(t, err, ledger.ErrInvalidFee)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	assert.Equal(t, ledger.DefaultRates(), l.Rates())
}

func TestSetFeesAllowsExactlyHundred(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.SetFees(context.Background(), owner, 40, 40, 20))
	_, err := l.Buy(context.Background(), alice, ether(1))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount, "nothing left to buy with")
}

// ---------------------------------------------------------------------------
// Transfer / ownership
// ---------------------------------------------------------------------------

func TestTransferIsRestricted(t *testing.T) {
	l := newLedger(t)
	_, err := l.Buy(context.Background(), alice, ether(1))
	require.NoError(t, err)
	before := l.Snapshot()

	for _, from := range []common.Address{alice, owner} {
		err = l.Transfer(context.Background(), from, bob, uint256.NewInt(1))
		assert.ErrorIs(t, err, ledger.ErrTransferRestricted)
		assert.Equal(t, "Transfers are restricted", ledger.Reason(err))
	}
	assert.Empty(t, cmp.Diff(before, l.Snapshot()))
}

func TestTransferOwnership(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.TransferOwnership(context.Background(), owner, alice))
	assert.Equal(t, alice, l.Owner())

	err := l.SetFees(context.Background(), owner, 1, 1, 1)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	require.NoError(t, l.SetFees(context.Background(), alice, 1, 1, 1))

	events := l.Events(0)
	require.Len(t, events, 2)
	assert.Equal(t, ledger.Event{
		Seq: 1, Kind: ledger.EventOwnershipTransferred, Account: owner, Counterparty: alice,
	}, events[0])
}

func TestTransferOwnershipGuards(t *testing.T) {
	l := newLedger(t)
	err := l.TransferOwnership(context.Background(), alice, bob)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	err = l.TransferOwnership(context.Background(), owner, common.Address{})
	assert.ErrorIs(t, err, ledger.ErrInvalidAddress)
	assert.Equal(t, owner, l.Owner())
}

// ---------------------------------------------------------------------------
// Migration
// ---------------------------------------------------------------------------

func TestBuyBelowThresholdDoesNotMigrate(t *testing.T) {
	pool := &fakePool{}
	l, err := ledger.New(lowThreshold(ether(1)), ledger.WithPool(pool))
	require.NoError(t, err)

	rc, err := l.Buy(context.Background(), alice, dec("500000000000000000"))
	require.NoError(t, err)
	assert.Nil(t, rc.Migration)
	assert.False(t, l.LiquidityAdded())
	assert.Equal(t, 0, pool.calls)
}

func TestMigrationIntoPool(t *testing.T) {
	pool := &fakePool{}
	l, err := ledger.New(lowThreshold(ether(1)), ledger.WithPool(pool))
	require.NoError(t, err)

	rc, err := l.Buy(context.Background(), alice, ether(2))
	require.NoError(t, err)
	require.NotNil(t, rc.Migration)

	assert.Equal(t, "366563145999495271382", rc.Tokens.Dec())
	assert.Equal(t, "1920000000000000000", rc.Migration.EthAmount.Dec())
	assert.Equal(t, "357770876399966369517", rc.Migration.TokenAmount.Dec())
	assert.Equal(t, poolAddr, rc.Migration.Destination)

	assert.True(t, l.LiquidityAdded())
	assert.True(t, l.EthReserve().IsZero())
	assert.Equal(t, "357770876399966369517", l.BalanceOf(poolAddr).Dec())
	assert.Equal(t, 1, pool.calls)
	assert.Equal(t, rc.Migration.EthAmount.Dec(), pool.eth.Dec())
	assert.Equal(t, rc.Migration.TokenAmount.Dec(), pool.tokens.Dec())
	requireConsistent(t, l)

	require.Len(t, rc.Events, 2)
	assert.Equal(t, ledger.EventBuy, rc.Events[0].Kind)
	assert.Equal(t, ledger.EventLiquidityAdded, rc.Events[1].Kind)
	assert.Equal(t, uint64(2), rc.Events[1].Seq)
}

func TestMigrationHappensOnce(t *testing.T) {
	pool := &fakePool{}
	l, err := ledger.New(lowThreshold(ether(1)), ledger.WithPool(pool))
	require.NoError(t, err)

	_, err = l.Buy(context.Background(), alice, ether(2))
	require.NoError(t, err)
	rc, err := l.Buy(context.Background(), bob, ether(2))
	require.NoError(t, err)
	assert.Nil(t, rc.Migration)
	assert.Equal(t, 1, pool.calls)

	// Trading continues on the curve after migration.
	assert.Equal(t, "1920000000000000000", l.EthReserve().Dec())

	count := 0
	for _, e := range l.Events(0) {
		if e.Kind == ledger.EventLiquidityAdded {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestMigrationFraction(t *testing.T) {
	cfg := lowThreshold(ether(1))
	cfg.MigrationPercent = 50
	pool := &fakePool{}
	l, err := ledger.New(cfg, ledger.WithPool(pool))
	require.NoError(t, err)

	rc, err := l.Buy(context.Background(), alice, ether(2))
	require.NoError(t, err)
	require.NotNil(t, rc.Migration)
	assert.Equal(t, "960000000000000000", rc.Migration.EthAmount.Dec())
	assert.Equal(t, "178885438199983184758", rc.Migration.TokenAmount.Dec())
	assert.Equal(t, "960000000000000000", l.EthReserve().Dec())
}

func TestMigrationWithoutPoolCreditsRouter(t *testing.T) {
	l, err := ledger.New(lowThreshold(ether(1)))
	require.NoError(t, err)

	rc, err := l.Buy(context.Background(), alice, ether(2))
	require.NoError(t, err)
	require.NotNil(t, rc.Migration)
	assert.Equal(t, router, rc.Migration.Destination)
	assert.Equal(t, "1920000000000000000", l.NativeBalanceOf(router).Dec())
	assert.Equal(t, "357770876399966369517", l.BalanceOf(router).Dec())
	requireConsistent(t, l)
}

func TestFailingPoolRevertsBuy(t *testing.T) {
	pool := &fakePool{fail: errors.New("pool paused")}
	l, err := ledger.New(lowThreshold(ether(1)), ledger.WithPool(pool))
	require.NoError(t, err)
	before := l.Snapshot()

	_, err = l.Buy(context.Background(), alice, ether(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool paused")
	assert.Empty(t, cmp.Diff(before, l.Snapshot()))
	assert.False(t, l.LiquidityAdded())
}

// ---------------------------------------------------------------------------
// Reentrancy
// ---------------------------------------------------------------------------

func TestReceiverReentryIsBlocked(t *testing.T) {
	var l *ledger.Ledger
	var reentryErr error
	recv := ledger.ReceiverFunc(func(ctx context.Context, _ *uint256.Int) error {
		_, reentryErr = l.Buy(ctx, feeRecipient, ether(1))
		return nil
	})
	l = newLedger(t, ledger.WithReceiver(feeRecipient, recv))

	_, err := l.Buy(context.Background(), alice, ether(1))
	require.NoError(t, err)
	assert.ErrorIs(t, reentryErr, ledger.ErrReentrancyBlocked)
	assert.Equal(t, "ReentrancyGuard: reentrant call", ledger.Reason(reentryErr))
	assert.Len(t, l.Events(0), 1)
}

func TestSellerReentryDuringPayoutIsBlocked(t *testing.T) {
	var l *ledger.Ledger
	recv := ledger.ReceiverFunc(func(ctx context.Context, _ *uint256.Int) error {
		_, err := l.Sell(ctx, alice, uint256.NewInt(1))
		return err
	})
	l = newLedger(t, ledger.WithReceiver(alice, recv))

	buy, err := l.Buy(context.Background(), alice, ether(1))
	require.NoError(t, err)
	before := l.Snapshot()

	_, err = l.Sell(context.Background(), alice, buy.Tokens)
	assert.ErrorIs(t, err, ledger.ErrReentrancyBlocked)
	assert.Empty(t, cmp.Diff(before, l.Snapshot()), "reverted sell must leave no trace")
}

func TestPoolReentryIsBlocked(t *testing.T) {
	var l *ledger.Ledger
	pool := &fakePool{}
	pool.hook = func(ctx context.Context) error {
		return l.SetFees(ctx, owner, 0, 0, 0)
	}
	var err error
	l, err = ledger.New(lowThreshold(ether(1)), ledger.WithPool(pool))
	require.NoError(t, err)

	_, err = l.Buy(context.Background(), alice, ether(2))
	assert.ErrorIs(t, err, ledger.ErrReentrancyBlocked)
	assert.False(t, l.LiquidityAdded())
	assert.True(t, l.TotalSupply().IsZero())
}

func TestReentryWithFreshContextIsBlocked(t *testing.T) {
	var l *ledger.Ledger
	reentryErr := make(chan error, 1)
	recv := ledger.ReceiverFunc(func(_ context.Context, _ *uint256.Int) error {
		_, err := l.Buy(context.Background(), feeRecipient, ether(1))
		reentryErr <- err
		return nil
	})
	l = newLedger(t, ledger.WithReceiver(feeRecipient, recv))

	done := make(chan error, 1)
	go func() {
		_, err := l.Buy(context.Background(), alice, ether(1))
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("nested Buy with a fresh context did not return")
	}
	assert.ErrorIs(t, <-reentryErr, ledger.ErrReentrancyBlocked)
	assert.True(t, l.BalanceOf(feeRecipient).IsZero())
	assert.Len(t, l.Events(0), 1)
}

func TestFailedExternalCallReleasesGuard(t *testing.T) {
	fail := true
	recv := ledger.ReceiverFunc(func(context.Context, *uint256.Int) error {
		if fail {
			return errors.New("receiver rejects ETH")
		}
		return nil
	})
	l := newLedger(t, ledger.WithReceiver(treasury, recv))

	_, err := l.Buy(context.Background(), alice, ether(1))
	require.Error(t, err)

	fail = false
	_, err = l.Buy(context.Background(), alice, ether(1))
	assert.NoError(t, err)
}

func TestOtherLedgerMayBeCalledFromReceiver(t *testing.T) {
	other := newLedger(t)
	recv := ledger.ReceiverFunc(func(ctx context.Context, amount *uint256.Int) error {
		_, err := other.Buy(ctx, treasury, amount)
		return err
	})
	l := newLedger(t, ledger.WithReceiver(treasury, recv))

	_, err := l.Buy(context.Background(), alice, ether(1))
	require.NoError(t, err)
	assert.False(t, other.BalanceOf(treasury).IsZero())
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestConcurrentBuysAreSerialised(t *testing.T) {
	l := newLedger(t)
	const n = 32

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buyer := common.BigToAddress(uint256.NewInt(uint64(1000 + i)).ToBig())
			_, err := l.Buy(context.Background(), buyer, ether(1))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	events := l.Events(0)
	require.Len(t, events, n)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
	assert.Equal(t, new(uint256.Int).Mul(uint256.NewInt(n), dec("960000000000000000")).Dec(), l.EthReserve().Dec())
	requireConsistent(t, l)
}

func TestCallDuringExternalCallIsBlocked(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	recv := ledger.ReceiverFunc(func(ctx context.Context, _ *uint256.Int) error {
		close(entered)
		<-release
		return nil
	})
	l := newLedger(t, ledger.WithReceiver(treasury, recv))

	done := make(chan error, 1)
	go func() {
		_, err := l.Buy(context.Background(), alice, ether(1))
		done <- err
	}()
	<-entered

	_, err := l.Buy(context.Background(), bob, ether(1))
	assert.ErrorIs(t, err, ledger.ErrReentrancyBlocked)

	// Readers never see the staged buy.
	assert.True(t, l.TotalSupply().IsZero())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, l.TotalSupply().IsZero())
	assert.True(t, l.BalanceOf(bob).IsZero())

	_, err = l.Buy(context.Background(), bob, ether(1))
	assert.NoError(t, err, "the guard is released after the outer call")
}

func TestCancelledContextIsHonoured(t *testing.T) {
	l := newLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Buy(ctx, alice, ether(1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, l.Events(0))
}
