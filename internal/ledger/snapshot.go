package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Snapshot is a JSON-serialisable copy of a ledger.
type Snapshot struct {
	Config         Config                          `json:"config"`
	TotalSupply    *uint256.Int                    `json:"total_supply"`
	EthReserve     *uint256.Int                    `json:"eth_reserve"`
	LiquidityAdded bool                            `json:"liquidity_added"`
	Balances       map[common.Address]*uint256.Int `json:"balances"`
	Native         map[common.Address]*uint256.Int `json:"native"`
	Events         []Event                         `json:"events"`
}

// Snapshot returns a deep copy of the committed state. Config.Owner and
// Config.Rates hold the current owner and rates.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Snapshot{
		Config: Config{
			Params:           l.params.Clone(),
			Owner:            l.st.owner,
			FeeRecipient:     l.feeRecipient,
			Treasury:         l.treasury,
			Router:           l.router,
			Rates:            l.st.rates,
			MigrationPercent: l.migrationPct,
		},
		TotalSupply:    l.st.totalSupply.Clone(),
		EthReserve:     l.st.reserve.Clone(),
		LiquidityAdded: l.st.liquidityAdded,
		Balances:       cloneBook(l.st.balances),
		Native:         cloneBook(l.st.native),
		Events:         make([]Event, 0, len(l.st.events)),
	}
	for _, e := range l.st.events {
		s.Events = append(s.Events, e.Clone())
	}
	return s
}

// FromSnapshot rebuilds a ledger from s.
func FromSnapshot(s Snapshot, opts ...Option) (*Ledger, error) {
	l, err := New(s.Config, opts...)
	if err != nil {
		return nil, err
	}
	if err := l.Restore(context.Background(), s); err != nil {
		return nil, err
	}
	return l, nil
}

// Restore replaces the mutable state with s. The immutable configuration of
// l is kept; s.Config only contributes the owner and rates.
func (l *Ledger) Restore(ctx context.Context, s Snapshot) error {
	st, err := s.state()
	if err != nil {
		return err
	}
	release, err := l.acquire(ctx, "restore")
	if err != nil {
		return err
	}
	defer release()

	l.mu.Lock()
	l.st = st
	l.mu.Unlock()
	return nil
}

func (s Snapshot) state() (state, error) {
	if err := s.Config.Rates.Validate(); err != nil {
		return state{}, err
	}
	if s.Config.Owner == (common.Address{}) {
		return state{}, fmt.Errorf("%w: owner", ErrInvalidAddress)
	}
	st := newState(s.Config.Owner, s.Config.Rates)
	if s.TotalSupply != nil {
		st.totalSupply = s.TotalSupply.Clone()
	}
	if s.EthReserve != nil {
		st.reserve = s.EthReserve.Clone()
	}
	st.liquidityAdded = s.LiquidityAdded

	sum := new(uint256.Int)
	for a, b := range s.Balances {
		if b == nil || b.IsZero() {
			continue
		}
		var overflow bool
		if sum, overflow = new(uint256.Int).AddOverflow(sum, b); overflow {
			return state{}, fmt.Errorf("%w: balances", ErrOverflow)
		}
		st.balances[a] = b.Clone()
	}
	if !sum.Eq(st.totalSupply) {
		return state{}, fmt.Errorf("%w: balances sum to %s, total supply is %s",
			ErrInvalidAmount, sum.Dec(), st.totalSupply.Dec())
	}
	for a, b := range s.Native {
		if b != nil && !b.IsZero() {
			st.native[a] = b.Clone()
		}
	}
	for i, e := range s.Events {
		if e.Seq != uint64(i)+1 {
			return state{}, fmt.Errorf("%w: event %d has sequence %d", ErrInvalidAmount, i, e.Seq)
		}
		st.events = append(st.events, e.Clone())
	}
	return st, nil
}

func cloneBook(m map[common.Address]*uint256.Int) map[common.Address]*uint256.Int {
	out := make(map[common.Address]*uint256.Int, len(m))
	for a, v := range m {
		out[a] = v.Clone()
	}
	return out
}
