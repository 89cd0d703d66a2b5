// Package scenario drives a ledger from scripted trading sessions and from
// randomized property sweeps.
package scenario

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mohsinsiddi/curvesim/internal/curve"
	"github.com/Mohsinsiddi/curvesim/internal/ledger"
	"github.com/Mohsinsiddi/curvesim/internal/units"
	"github.com/Mohsinsiddi/curvesim/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Step actions.
const (
	ActionBuy               = "buy"
	ActionSell              = "sell"
	ActionSetFees           = "set_fees"
	ActionTransfer          = "transfer"
	ActionTransferOwnership = "transfer_ownership"
	ActionSwap              = "swap"
	ActionExpect            = "expect"
)

// SellAll as a sell amount sells the account's whole balance.
const SellAll = "all"

var (
	ErrInvalidScenario = errors.New("invalid scenario")
	ErrNoPool          = errors.New("scenario has no pool")
)

// Scenario is a scripted trading session against a fresh ledger.
type Scenario struct {
	Name             string            `yaml:"name"                        json:"name"`
	Description      string            `yaml:"description,omitempty"       json:"description,omitempty"`
	Params           *ParamSpec        `yaml:"params,omitempty"            json:"params,omitempty"`
	Fees             *FeeSpec          `yaml:"fees,omitempty"              json:"fees,omitempty"`
	MigrationPercent uint64            `yaml:"migration_percent,omitempty" json:"migration_percent,omitempty"`
	NoPool           bool              `yaml:"no_pool,omitempty"           json:"no_pool,omitempty"`
	Roles            Roles             `yaml:"roles,omitempty"             json:"roles,omitempty"`
	Accounts         map[string]string `yaml:"accounts,omitempty"          json:"accounts,omitempty"`
	Steps            []Step            `yaml:"steps"                       json:"steps"`
}

// ParamSpec overrides curve parameters, in ether units.
type ParamSpec struct {
	BasePrice string `yaml:"base_price,omitempty" json:"base_price,omitempty"`
	Slope     string `yaml:"slope,omitempty"      json:"slope,omitempty"`
	Threshold string `yaml:"threshold,omitempty"  json:"threshold,omitempty"`
}

// FeeSpec is a set of tax rates in whole percent.
type FeeSpec struct {
	Buy       uint64 `yaml:"buy"       json:"buy"`
	Sell      uint64 `yaml:"sell"      json:"sell"`
	Liquidity uint64 `yaml:"liquidity" json:"liquidity"`
}

// Rates converts f to ledger rates.
func (f FeeSpec) Rates() ledger.Rates {
	return ledger.Rates{Buy: f.Buy, Sell: f.Sell, Liquidity: f.Liquidity}
}

// Roles names the privileged accounts. Empty fields take the defaults of
// DefaultRoles.
type Roles struct {
	Owner        string `yaml:"owner,omitempty"         json:"owner,omitempty"`
	FeeRecipient string `yaml:"fee_recipient,omitempty" json:"fee_recipient,omitempty"`
	Treasury     string `yaml:"treasury,omitempty"      json:"treasury,omitempty"`
	Router       string `yaml:"router,omitempty"        json:"router,omitempty"`
	Pool         string `yaml:"pool,omitempty"          json:"pool,omitempty"`
}

// DefaultRoles matches the CLI defaults.
func DefaultRoles() Roles {
	return Roles{
		Owner:        "deployer",
		FeeRecipient: "deployer",
		Treasury:     "treasury",
		Router:       "router",
		Pool:         "pool",
	}
}

func (r Roles) withDefaults() Roles {
	d := DefaultRoles()
	if r.Owner != "" {
		d.Owner = r.Owner
	}
	if r.FeeRecipient != "" {
		d.FeeRecipient = r.FeeRecipient
	}
	if r.Treasury != "" {
		d.Treasury = r.Treasury
	}
	if r.Router != "" {
		d.Router = r.Router
	}
	if r.Pool != "" {
		d.Pool = r.Pool
	}
	return d
}

// Step is one action. Account is the buyer, seller, trader or caller; an
// empty caller for set_fees and transfer_ownership means the current owner.
type Step struct {
	Action      string       `yaml:"action"                 json:"action"`
	Account     string       `yaml:"account,omitempty"      json:"account,omitempty"`
	To          string       `yaml:"to,omitempty"           json:"to,omitempty"`
	ETH         string       `yaml:"eth,omitempty"          json:"eth,omitempty"`
	Tokens      string       `yaml:"tokens,omitempty"       json:"tokens,omitempty"`
	Fees        *FeeSpec     `yaml:"fees,omitempty"         json:"fees,omitempty"`
	Expect      *Expectation `yaml:"expect,omitempty"       json:"expect,omitempty"`
	ExpectError string       `yaml:"expect_error,omitempty" json:"expect_error,omitempty"`
	Note        string       `yaml:"note,omitempty"         json:"note,omitempty"`
}

// Expectation is checked against the state after its step. Amounts accept
// unit suffixes ("0.95", "186520991955975878174wei").
type Expectation struct {
	Out            string            `yaml:"out,omitempty"             json:"out,omitempty"` // tokens bought, net ETH from a sell, swap output
	Supply         string            `yaml:"supply,omitempty"          json:"supply,omitempty"`
	Reserve        string            `yaml:"reserve,omitempty"         json:"reserve,omitempty"`
	Price          string            `yaml:"price,omitempty"           json:"price,omitempty"`
	MarketCap      string            `yaml:"market_cap,omitempty"      json:"market_cap,omitempty"`
	LiquidityAdded *bool             `yaml:"liquidity_added,omitempty" json:"liquidity_added,omitempty"`
	Owner          string            `yaml:"owner,omitempty"           json:"owner,omitempty"`
	Fees           *FeeSpec          `yaml:"fees,omitempty"            json:"fees,omitempty"`
	Events         *int              `yaml:"events,omitempty"          json:"events,omitempty"`
	Balances       map[string]string `yaml:"balances,omitempty"        json:"balances,omitempty"`
	Native         map[string]string `yaml:"native,omitempty"          json:"native,omitempty"`
}

// Load reads a scenario file. Files ending in .json are read as JSON,
// everything else as YAML.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	sc, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sc, nil
}

// Parse decodes and validates a scenario. Unknown fields are rejected.
func Parse(data []byte, format string) (*Scenario, error) {
	var sc Scenario
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&sc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&sc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidScenario, format)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks actions, required fields and amount syntax.
func (sc *Scenario) Validate() error {
	if _, err := sc.params(); err != nil {
		return fmt.Errorf("%w: params: %v", ErrInvalidScenario, err)
	}
	if sc.Fees != nil {
		if err := sc.Fees.Rates().Validate(); err != nil {
			return fmt.Errorf("%w: fees: %v", ErrInvalidScenario, err)
		}
	}
	if sc.MigrationPercent > 100 {
		return fmt.Errorf("%w: migration_percent %d", ErrInvalidScenario, sc.MigrationPercent)
	}
	for name, addr := range sc.Accounts {
		if !wallet.ValidName(name) || !common.IsHexAddress(addr) {
			return fmt.Errorf("%w: account %q: %q", ErrInvalidScenario, name, addr)
		}
	}
	for i, st := range sc.Steps {
		if err := st.validate(); err != nil {
			return fmt.Errorf("%w: step %d (%s): %v", ErrInvalidScenario, i+1, st.Action, err)
		}
	}
	return nil
}

func (st Step) validate() error {
	need := func(field, v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	amount := func(field, v string) error {
		if err := need(field, v); err != nil {
			return err
		}
		_, err := units.ParseWithUnit(v)
		return err
	}
	switch st.Action {
	case ActionBuy:
		if err := need("account", st.Account); err != nil {
			return err
		}
		if err := amount("eth", st.ETH); err != nil {
			return err
		}
	case ActionSell:
		if err := need("account", st.Account); err != nil {
			return err
		}
		if st.Tokens != SellAll {
			if err := amount("tokens", st.Tokens); err != nil {
				return err
			}
		}
	case ActionSetFees:
		if st.Fees == nil {
			return errors.New("fees is required")
		}
	case ActionTransfer:
		if err := need("account", st.Account); err != nil {
			return err
		}
		if err := need("to", st.To); err != nil {
			return err
		}
		if err := amount("tokens", st.Tokens); err != nil {
			return err
		}
	case ActionTransferOwnership:
		if err := need("to", st.To); err != nil {
			return err
		}
	case ActionSwap:
		if err := need("account", st.Account); err != nil {
			return err
		}
		if (st.ETH == "") == (st.Tokens == "") {
			return errors.New("exactly one of eth and tokens is required")
		}
		if st.ETH != "" {
			return amount("eth", st.ETH)
		}
		return amount("tokens", st.Tokens)
	case ActionExpect:
		if st.Expect == nil {
			return errors.New("expect is required")
		}
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}
	if st.Expect != nil {
		return st.Expect.validate()
	}
	return nil
}

func (ex *Expectation) validate() error {
	for field, v := range map[string]string{
		"out": ex.Out, "supply": ex.Supply, "reserve": ex.Reserve, "price": ex.Price, "market_cap": ex.MarketCap,
	} {
		if v == "" {
			continue
		}
		if _, err := units.ParseWithUnit(v); err != nil {
			return fmt.Errorf("expect.%s: %w", field, err)
		}
	}
	for _, book := range []map[string]string{ex.Balances, ex.Native} {
		for who, v := range book {
			if _, err := units.ParseWithUnit(v); err != nil {
				return fmt.Errorf("expect balance of %s: %w", who, err)
			}
		}
	}
	return nil
}

func (sc *Scenario) params() (curve.Params, error) {
	p := curve.DefaultParams()
	if sc.Params == nil {
		return p, nil
	}
	var err error
	if sc.Params.BasePrice != "" {
		if p.BasePrice, err = units.ParseEther(sc.Params.BasePrice); err != nil {
			return p, fmt.Errorf("base_price: %w", err)
		}
	}
	if sc.Params.Slope != "" {
		if p.Slope, err = units.ParseEther(sc.Params.Slope); err != nil {
			return p, fmt.Errorf("slope: %w", err)
		}
	}
	if sc.Params.Threshold != "" {
		if p.Threshold, err = units.ParseEther(sc.Params.Threshold); err != nil {
			return p, fmt.Errorf("threshold: %w", err)
		}
	}
	return p, p.Validate()
}
