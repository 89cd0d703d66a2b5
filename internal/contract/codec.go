package contract

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/curvesim/internal/amm"
	"github.com/Mohsinsiddi/curvesim/internal/ledger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

var (
	ErrUnknownBuiltin = errors.New("unknown builtin")
	ErrUnknownEvent   = errors.New("unknown event")
)

// LogCodec converts simulator events to and from EVM logs using a builtin ABI.
type LogCodec struct {
	abi     abi.ABI
	address common.Address
}

// NewLogCodec returns a codec for logs emitted by the builtin id at address.
func NewLogCodec(id string, address common.Address) (*LogCodec, error) {
	entries := GetBuiltinABI(id)
	if entries == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBuiltin, id)
	}
	parsed, err := ParseABI(entries)
	if err != nil {
		return nil, err
	}
	return &LogCodec{abi: parsed, address: address}, nil
}

// Address returns the emitting contract address.
func (c *LogCodec) Address() common.Address { return c.address }

// EncodeEvent converts a ledger event to a log. BlockNumber carries the
// event sequence number.
func (c *LogCodec) EncodeEvent(e ledger.Event) (*types.Log, error) {
	switch e.Kind {
	case ledger.EventBuy:
		return c.encode(e.Seq, "Buy", []common.Address{e.Account}, big256(e.EthAmount), big256(e.TokenAmount))
	case ledger.EventSell:
		return c.encode(e.Seq, "Sell", []common.Address{e.Account}, big256(e.TokenAmount), big256(e.EthAmount))
	case ledger.EventFeesUpdated:
		if e.Rates == nil {
			return nil, fmt.Errorf("%w: FeesUpdated without rates", ErrUnknownEvent)
		}
		return c.encode(e.Seq, "FeesUpdated", nil,
			new(big.Int).SetUint64(e.Rates.Buy),
			new(big.Int).SetUint64(e.Rates.Sell),
			new(big.Int).SetUint64(e.Rates.Liquidity))
	case ledger.EventLiquidityAdded:
		return c.encode(e.Seq, "LiquidityAdded", nil, big256(e.EthAmount), big256(e.TokenAmount))
	case ledger.EventOwnershipTransferred:
		return c.encode(e.Seq, "OwnershipTransferred", []common.Address{e.Account, e.Counterparty})
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, e.Kind)
}

// EncodeEvents converts a slice of ledger events.
func (c *LogCodec) EncodeEvents(events []ledger.Event) ([]*types.Log, error) {
	out := make([]*types.Log, 0, len(events))
	for _, e := range events {
		l, err := c.EncodeEvent(e)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", e.Seq, err)
		}
		out = append(out, l)
	}
	return out, nil
}

// DecodeEvent converts a log produced by EncodeEvent back to a ledger event.
func (c *LogCodec) DecodeEvent(l *types.Log) (ledger.Event, error) {
	name, topics, values, err := c.decode(l)
	if err != nil {
		return ledger.Event{}, err
	}
	e := ledger.Event{Seq: l.BlockNumber}
	switch name {
	case "Buy":
		e.Kind, e.Account = ledger.EventBuy, topics[0]
		e.EthAmount, e.TokenAmount = u256(at(values, 0)), u256(at(values, 1))
	case "Sell":
		e.Kind, e.Account = ledger.EventSell, topics[0]
		e.TokenAmount, e.EthAmount = u256(at(values, 0)), u256(at(values, 1))
	case "FeesUpdated":
		e.Kind = ledger.EventFeesUpdated
		var rates [3]uint64
		for i := range rates {
			if rates[i], err = percentArg(name, values, i); err != nil {
				return ledger.Event{}, err
			}
		}
		e.Rates = &ledger.Rates{Buy: rates[0], Sell: rates[1], Liquidity: rates[2]}
	case "LiquidityAdded":
		e.Kind = ledger.EventLiquidityAdded
		e.EthAmount, e.TokenAmount = u256(at(values, 0)), u256(at(values, 1))
	case "OwnershipTransferred":
		e.Kind = ledger.EventOwnershipTransferred
		e.Account, e.Counterparty = topics[0], topics[1]
	default:
		return ledger.Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	return e, nil
}

// EncodeRecord converts a pool record to a log numbered seq.
func (c *LogCodec) EncodeRecord(seq uint64, r amm.Record) (*types.Log, error) {
	switch r.Kind {
	case amm.RecordLiquidityAdded:
		return c.encode(seq, "Mint", nil, big256(r.EthIn), big256(r.TokensIn), big256(r.LPMinted))
	case amm.RecordSwap:
		return c.encode(seq, "Swap", []common.Address{r.Trader},
			big256(r.EthIn), big256(r.TokensIn), big256(r.EthOut), big256(r.TokensOut))
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, r.Kind)
}

// Fields decodes any log of this codec's ABI into its event name and named
// arguments, for display.
func (c *LogCodec) Fields(l *types.Log) (string, [][2]string, error) {
	name, topics, values, err := c.decode(l)
	if err != nil {
		return "", nil, err
	}
	ev := c.abi.Events[name]
	var out [][2]string
	ti, vi := 0, 0
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			out = append(out, [2]string{arg.Name, topics[ti].Hex()})
			ti++
			continue
		}
		out = append(out, [2]string{arg.Name, fmt.Sprint(values[vi])})
		vi++
	}
	return name, out, nil
}

func (c *LogCodec) encode(seq uint64, name string, indexed []common.Address, values ...any) (*types.Log, error) {
	ev, ok := c.abi.Events[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	data, err := ev.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", name, err)
	}
	topics := make([]common.Hash, 0, 1+len(indexed))
	topics = append(topics, ev.ID)
	for _, a := range indexed {
		topics = append(topics, common.BytesToHash(a.Bytes()))
	}
	var index uint
	if seq > 0 {
		index = uint(seq - 1)
	}
	return &types.Log{
		Address:     c.address,
		Topics:      topics,
		Data:        data,
		BlockNumber: seq,
		Index:       index,
	}, nil
}

func (c *LogCodec) decode(l *types.Log) (string, []common.Address, []any, error) {
	if l == nil || len(l.Topics) == 0 {
		return "", nil, nil, fmt.Errorf("%w: log has no topics", ErrUnknownEvent)
	}
	ev, err := c.abi.EventByID(l.Topics[0])
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: %s", ErrUnknownEvent, l.Topics[0].Hex())
	}
	want := 1
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			want++
		}
	}
	if len(l.Topics) != want {
		return "", nil, nil, fmt.Errorf("%w: %s has %d topics, want %d", ErrUnknownEvent, ev.Name, len(l.Topics), want)
	}
	topics := make([]common.Address, 0, want-1)
	for _, t := range l.Topics[1:] {
		topics = append(topics, common.BytesToAddress(t.Bytes()))
	}
	values, err := ev.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return "", nil, nil, fmt.Errorf("unpacking %s: %w", ev.Name, err)
	}
	return ev.Name, topics, values, nil
}

func big256(x *uint256.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x.ToBig()
}

func at(values []any, i int) any {
	if i < len(values) {
		return values[i]
	}
	return nil
}

// percentArg reads values[i] as a tax rate.
func percentArg(event string, values []any, i int) (uint64, error) {
	b, ok := at(values, i).(*big.Int)
	if !ok || !b.IsUint64() || b.Uint64() > 100 {
		return 0, fmt.Errorf("%w: %s value %d is not a percentage", ErrUnknownEvent, event, i)
	}
	return b.Uint64(), nil
}

func u256(v any) *uint256.Int {
	b, _ := v.(*big.Int)
	if b == nil {
		return new(uint256.Int)
	}
	z, _ := uint256.FromBig(b)
	return z
}
