package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// state is the committed ledger aggregate.
type state struct {
	owner          common.Address
	rates          Rates
	totalSupply    *uint256.Int
	reserve        *uint256.Int
	liquidityAdded bool
	balances       map[common.Address]*uint256.Int
	native         map[common.Address]*uint256.Int
	events         []Event
}

func newState(owner common.Address, rates Rates) state {
	return state{
		owner:       owner,
		rates:       rates,
		totalSupply: new(uint256.Int),
		reserve:     new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		native:      make(map[common.Address]*uint256.Int),
	}
}

type externalCall struct {
	name string
	fn   func(context.Context) error
}

// txn stages the writes of one operation on top of the committed state.
// Nothing is visible to readers until commit.
type txn struct {
	base *state

	owner          common.Address
	rates          Rates
	totalSupply    *uint256.Int
	reserve        *uint256.Int
	liquidityAdded bool
	balances       map[common.Address]*uint256.Int
	native         map[common.Address]*uint256.Int
	events         []Event

	calls []externalCall
}

func newTxn(s *state) *txn {
	return &txn{
		base:           s,
		owner:          s.owner,
		rates:          s.rates,
		totalSupply:    s.totalSupply.Clone(),
		reserve:        s.reserve.Clone(),
		liquidityAdded: s.liquidityAdded,
		balances:       make(map[common.Address]*uint256.Int),
		native:         make(map[common.Address]*uint256.Int),
	}
}

func (t *txn) balanceOf(a common.Address) *uint256.Int {
	if v, ok := t.balances[a]; ok {
		return v
	}
	if v, ok := t.base.balances[a]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (t *txn) nativeOf(a common.Address) *uint256.Int {
	if v, ok := t.native[a]; ok {
		return v
	}
	if v, ok := t.base.native[a]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (t *txn) mint(to common.Address, amount *uint256.Int) error {
	supply, overflow := new(uint256.Int).AddOverflow(t.totalSupply, amount)
	if overflow {
		return fmt.Errorf("%w: total supply", ErrOverflow)
	}
	bal, overflow := new(uint256.Int).AddOverflow(t.balanceOf(to), amount)
	if overflow {
		return fmt.Errorf("%w: balance of %s", ErrOverflow, to.Hex())
	}
	t.totalSupply = supply
	t.balances[to] = bal
	return nil
}

func (t *txn) burn(from common.Address, amount *uint256.Int) error {
	bal := t.balanceOf(from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from.Hex(), bal.Dec(), amount.Dec())
	}
	if t.totalSupply.Lt(amount) {
		return fmt.Errorf("%w: supply %s below burn %s", ErrInsufficientBalance, t.totalSupply.Dec(), amount.Dec())
	}
	t.balances[from] = new(uint256.Int).Sub(bal, amount)
	t.totalSupply = new(uint256.Int).Sub(t.totalSupply, amount)
	return nil
}

func (t *txn) addReserve(amount *uint256.Int) error {
	r, overflow := new(uint256.Int).AddOverflow(t.reserve, amount)
	if overflow {
		return fmt.Errorf("%w: reserve", ErrOverflow)
	}
	t.reserve = r
	return nil
}

func (t *txn) subReserve(amount *uint256.Int) error {
	r, underflow := new(uint256.Int).SubOverflow(t.reserve, amount)
	if underflow {
		return fmt.Errorf("%w: reserve %s below %s", ErrInsufficientReserve, t.reserve.Dec(), amount.Dec())
	}
	t.reserve = r
	return nil
}

func (t *txn) credit(to common.Address, amount *uint256.Int) error {
	bal, overflow := new(uint256.Int).AddOverflow(t.nativeOf(to), amount)
	if overflow {
		return fmt.Errorf("%w: native balance of %s", ErrOverflow, to.Hex())
	}
	t.native[to] = bal
	return nil
}

func (t *txn) emit(e Event) Event {
	e.Seq = uint64(len(t.base.events)+len(t.events)) + 1
	t.events = append(t.events, e)
	return e
}

func (t *txn) call(name string, fn func(context.Context) error) {
	t.calls = append(t.calls, externalCall{name: name, fn: fn})
}

func (t *txn) commit() {
	s := t.base
	s.owner = t.owner
	s.rates = t.rates
	s.totalSupply = t.totalSupply
	s.reserve = t.reserve
	s.liquidityAdded = t.liquidityAdded
	for a, v := range t.balances {
		if v.IsZero() {
			delete(s.balances, a)
			continue
		}
		s.balances[a] = v
	}
	for a, v := range t.native {
		if v.IsZero() {
			delete(s.native, a)
			continue
		}
		s.native[a] = v
	}
	s.events = append(s.events, t.events...)
}
