package config

// Config holds all curvesim configuration. Amounts are decimal strings in
// ether units; roles are wallet names or hex addresses.
type Config struct {
	BasePrice string `json:"base_price" mapstructure:"base_price"` // ETH per whole token at zero supply
	Slope     string `json:"slope"      mapstructure:"slope"`      // ETH added to the price per whole token
	Threshold string `json:"threshold"  mapstructure:"threshold"`  // market cap that triggers migration

	BuyTax           uint64 `json:"buy_tax"           mapstructure:"buy_tax"`
	SellTax          uint64 `json:"sell_tax"          mapstructure:"sell_tax"`
	LiquidityTax     uint64 `json:"liquidity_tax"     mapstructure:"liquidity_tax"`
	MigrationPercent uint64 `json:"migration_percent" mapstructure:"migration_percent"`

	Owner          string `json:"owner"           mapstructure:"owner"`
	FeeRecipient   string `json:"fee_recipient"   mapstructure:"fee_recipient"`
	Treasury       string `json:"treasury"        mapstructure:"treasury"`
	Router         string `json:"router"          mapstructure:"router"`
	Pool           string `json:"pool"            mapstructure:"pool"` // empty disables the pool
	DefaultAccount string `json:"default_account" mapstructure:"default_account"`

	// internal: config dir path used for Save()
	configDir string
}
