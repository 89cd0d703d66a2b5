package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Mohsinsiddi/curvesim/internal/amm"
	"github.com/Mohsinsiddi/curvesim/internal/curve"
	"github.com/Mohsinsiddi/curvesim/internal/ledger"
	"github.com/Mohsinsiddi/curvesim/internal/units"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. CURVESIM_BUY_TAX=3.
	EnvPrefix = "CURVESIM"

	configFile  = "config.json"
	walletsFile = "wallets.json"
	stateFile   = "state.json"
	poolFile    = "pool.json"
)

// ErrNoState is returned by LoadState and LoadPool before the first write.
var ErrNoState = errors.New("no saved state")

// ErrUnknownKey is returned by Set for keys that are not part of Config.
var ErrUnknownKey = errors.New("unknown config key")

func defaultValues() map[string]any {
	return map[string]any{
		"base_price":        "0.005",
		"slope":             "0.000001",
		"threshold":         "100000",
		"buy_tax":           2,
		"sell_tax":          2,
		"liquidity_tax":     1,
		"migration_percent": 100,
		"owner":             "deployer",
		"fee_recipient":     "deployer",
		"treasury":          "treasury",
		"router":            "router",
		"pool":              "pool",
		"default_account":   "",
	}
}

// Load reads config from dir (or creates defaults). dir defaults to
// ~/.curvesim. CURVESIM_* environment variables override file values.
func Load(dir string) (*Config, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".curvesim")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	for key, value := range defaultValues() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := filepath.Join(dir, configFile)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.configDir = dir
	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	return saveJSON(filepath.Join(c.configDir, configFile), c)
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// WalletsPath is the file backing the wallet store.
func (c *Config) WalletsPath() string {
	return filepath.Join(c.configDir, walletsFile)
}

// Params parses the curve parameters.
func (c *Config) Params() (curve.Params, error) {
	var p curve.Params
	var err error
	if p.BasePrice, err = units.ParseEther(c.BasePrice); err != nil {
		return p, fmt.Errorf("base_price: %w", err)
	}
	if p.Slope, err = units.ParseEther(c.Slope); err != nil {
		return p, fmt.Errorf("slope: %w", err)
	}
	if p.Threshold, err = units.ParseEther(c.Threshold); err != nil {
		return p, fmt.Errorf("threshold: %w", err)
	}
	return p, p.Validate()
}

// Rates returns the configured tax rates.
func (c *Config) Rates() ledger.Rates {
	return ledger.Rates{Buy: c.BuyTax, Sell: c.SellTax, Liquidity: c.LiquidityTax}
}

// Validate checks values that Load cannot.
func (c *Config) Validate() error {
	if _, err := c.Params(); err != nil {
		return err
	}
	if err := c.Rates().Validate(); err != nil {
		return err
	}
	if c.MigrationPercent > 100 {
		return fmt.Errorf("migration_percent %d exceeds 100", c.MigrationPercent)
	}
	for key, role := range map[string]string{
		"owner": c.Owner, "fee_recipient": c.FeeRecipient, "treasury": c.Treasury, "router": c.Router,
	} {
		if strings.TrimSpace(role) == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
	}
	return nil
}

// Keys lists the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(defaultValues()))
	for k := range defaultValues() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns a single key from its string form.
func (c *Config) Set(key, value string) error {
	str := map[string]*string{
		"base_price":      &c.BasePrice,
		"slope":           &c.Slope,
		"threshold":       &c.Threshold,
		"owner":           &c.Owner,
		"fee_recipient":   &c.FeeRecipient,
		"treasury":        &c.Treasury,
		"router":          &c.Router,
		"pool":            &c.Pool,
		"default_account": &c.DefaultAccount,
	}
	num := map[string]*uint64{
		"buy_tax":           &c.BuyTax,
		"sell_tax":          &c.SellTax,
		"liquidity_tax":     &c.LiquidityTax,
		"migration_percent": &c.MigrationPercent,
	}
	if p, ok := str[key]; ok {
		*p = value
		return nil
	}
	if p, ok := num[key]; ok {
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*p = n
		return nil
	}
	return fmt.Errorf("%w %q", ErrUnknownKey, key)
}

// LoadState reads state.json.
func (c *Config) LoadState() (*ledger.Snapshot, error) {
	return loadState[ledger.Snapshot](filepath.Join(c.configDir, stateFile))
}

// SaveState writes state.json.
func (c *Config) SaveState(s ledger.Snapshot) error {
	return saveJSON(filepath.Join(c.configDir, stateFile), s)
}

// LoadPool reads pool.json.
func (c *Config) LoadPool() (*amm.Snapshot, error) {
	return loadState[amm.Snapshot](filepath.Join(c.configDir, poolFile))
}

// SavePool writes pool.json.
func (c *Config) SavePool(s amm.Snapshot) error {
	return saveJSON(filepath.Join(c.configDir, poolFile), s)
}

// Reset removes the saved ledger and pool state.
func (c *Config) Reset() error {
	for _, f := range []string{stateFile, poolFile} {
		if err := os.Remove(filepath.Join(c.configDir, f)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// --- helpers ---

func loadState[T any](path string) (*T, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrNoState
	}
	return loadJSON[T](path)
}

func loadJSON[T any](path string) (*T, error) {
	var zero T
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &zero, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
