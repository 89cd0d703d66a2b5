package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind names a ledger event.
type EventKind string

const (
	EventBuy                  EventKind = "Buy"
	EventSell                 EventKind = "Sell"
	EventFeesUpdated          EventKind = "FeesUpdated"
	EventLiquidityAdded       EventKind = "LiquidityAdded"
	EventOwnershipTransferred EventKind = "OwnershipTransferred"
)

// Event is one entry of the append-only event log. Which fields are set
// depends on Kind:
//
//	Buy                   Account=buyer, EthAmount=net ETH in, TokenAmount=tokens out
//	Sell                  Account=seller, TokenAmount=tokens in, EthAmount=net ETH out
//	FeesUpdated           Rates
//	LiquidityAdded        EthAmount, TokenAmount
//	OwnershipTransferred  Account=previous owner, Counterparty=new owner
type Event struct {
	Seq          uint64         `json:"seq"`
	Kind         EventKind      `json:"kind"`
	Account      common.Address `json:"account"`
	Counterparty common.Address `json:"counterparty"`
	EthAmount    *uint256.Int   `json:"eth_amount,omitempty"`
	TokenAmount  *uint256.Int   `json:"token_amount,omitempty"`
	Rates        *Rates         `json:"rates,omitempty"`
}

// Clone returns a deep copy of e.
func (e Event) Clone() Event {
	out := e
	if e.EthAmount != nil {
		out.EthAmount = e.EthAmount.Clone()
	}
	if e.TokenAmount != nil {
		out.TokenAmount = e.TokenAmount.Clone()
	}
	if e.Rates != nil {
		r := *e.Rates
		out.Rates = &r
	}
	return out
}

func buyEvent(buyer common.Address, ethIn, tokensOut *uint256.Int) Event {
	return Event{Kind: EventBuy, Account: buyer, EthAmount: ethIn.Clone(), TokenAmount: tokensOut.Clone()}
}

func sellEvent(seller common.Address, tokensIn, ethOut *uint256.Int) Event {
	return Event{Kind: EventSell, Account: seller, EthAmount: ethOut.Clone(), TokenAmount: tokensIn.Clone()}
}

func feesEvent(r Rates) Event {
	return Event{Kind: EventFeesUpdated, Rates: &r}
}

func liquidityEvent(eth, tokens *uint256.Int) Event {
	return Event{Kind: EventLiquidityAdded, EthAmount: eth.Clone(), TokenAmount: tokens.Clone()}
}

func ownershipEvent(prev, next common.Address) Event {
	return Event{Kind: EventOwnershipTransferred, Account: prev, Counterparty: next}
}
