package contract

// BondingCurveID is the builtin ID of the token-sale contract.
const BondingCurveID = "bondingcurve"

// bondingCurveABI is the public surface of the bonding-curve token sale:
// an ERC-20 whose supply is minted and burned only through the curve.
// The ERC-20 subset keeps the standard selectors:
//
//	totalSupply()       → 0x18160ddd
//	balanceOf(address)  → 0x70a08231
//	transfer(a,u256)    → 0xa9059cbb (always reverts: "Transfers are restricted")
func init() {
	RegisterBuiltin(BuiltinKind{
		ID:          BondingCurveID,
		Name:        "Bonding Curve Token Sale",
		Description: "Linear bonding-curve sale with buy/sell/liquidity taxes and one-time AMM migration.",
		ABI:         bondingCurveABI,
	})
}

var bondingCurveABI = []ABIEntry{
	// ── Read ─────────────────────────────────────────────────────────────────
	view("totalSupply", nil, "uint256"),
	view("balanceOf", []ABIParam{{Name: "account", Type: "address"}}, "uint256"),
	view("ethReserve", nil, "uint256"),
	view("liquidityAdded", nil, "bool"),
	view("buyTaxPercent", nil, "uint256"),
	view("sellTaxPercent", nil, "uint256"),
	view("liquidityTaxPercent", nil, "uint256"),
	view("owner", nil, "address"),
	view("calculateBuyAmount", []ABIParam{{Name: "ethAmount", Type: "uint256"}}, "uint256"),
	view("calculateSellAmount", []ABIParam{{Name: "tokenAmount", Type: "uint256"}}, "uint256"),
	// ── Write ────────────────────────────────────────────────────────────────
	{Name: "buyTokens", Type: "function", StateMutability: "payable"},
	{
		Name: "sellTokens", Type: "function",
		Inputs:          []ABIParam{{Name: "tokenAmount", Type: "uint256"}},
		StateMutability: "nonpayable",
	},
	{
		Name: "setFees", Type: "function",
		Inputs: []ABIParam{
			{Name: "_buyTax", Type: "uint256"},
			{Name: "_sellTax", Type: "uint256"},
			{Name: "_liquidityTax", Type: "uint256"},
		},
		StateMutability: "nonpayable",
	},
	{
		Name: "transfer", Type: "function",
		Inputs:          []ABIParam{{Name: "to", Type: "address"}, {Name: "amount", Type: "uint256"}},
		Outputs:         []ABIParam{{Name: "", Type: "bool"}},
		StateMutability: "nonpayable",
	},
	{
		Name: "transferOwnership", Type: "function",
		Inputs:          []ABIParam{{Name: "newOwner", Type: "address"}},
		StateMutability: "nonpayable",
	},
	// ── Events ───────────────────────────────────────────────────────────────
	{
		Name: "Buy", Type: "event",
		Inputs: []ABIParam{
			{Name: "buyer", Type: "address", Indexed: true},
			{Name: "ethIn", Type: "uint256"},
			{Name: "tokensOut", Type: "uint256"},
		},
	},
	{
		Name: "Sell", Type: "event",
		Inputs: []ABIParam{
			{Name: "seller", Type: "address", Indexed: true},
			{Name: "tokensIn", Type: "uint256"},
			{Name: "ethOut", Type: "uint256"},
		},
	},
	{
		Name: "FeesUpdated", Type: "event",
		Inputs: []ABIParam{
			{Name: "buyTax", Type: "uint256"},
			{Name: "sellTax", Type: "uint256"},
			{Name: "liquidityTax", Type: "uint256"},
		},
	},
	{
		Name: "LiquidityAdded", Type: "event",
		Inputs: []ABIParam{
			{Name: "ethAmount", Type: "uint256"},
			{Name: "tokenAmount", Type: "uint256"},
		},
	},
	{
		Name: "OwnershipTransferred", Type: "event",
		Inputs: []ABIParam{
			{Name: "previousOwner", Type: "address", Indexed: true},
			{Name: "newOwner", Type: "address", Indexed: true},
		},
	},
}

func view(name string, inputs []ABIParam, out string) ABIEntry {
	return ABIEntry{
		Name: name, Type: "function",
		Inputs:          inputs,
		Outputs:         []ABIParam{{Name: "", Type: out}},
		StateMutability: "view",
	}
}
