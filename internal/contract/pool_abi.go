package contract

// PoolID is the builtin ID of the constant-product pool.
const PoolID = "curvepool"

func init() {
	RegisterBuiltin(BuiltinKind{
		ID:          PoolID,
		Name:        "Constant-Product Pool",
		Description: "ETH/token x*y=k pool that receives the curve reserve on migration.",
		ABI:         poolABI,
	})
}

var poolABI = []ABIEntry{
	{
		Name: "getReserves", Type: "function",
		Outputs:         []ABIParam{{Name: "ethReserve", Type: "uint256"}, {Name: "tokenReserve", Type: "uint256"}},
		StateMutability: "view",
	},
	{
		Name: "swapExactETHForTokens", Type: "function",
		Inputs:          []ABIParam{{Name: "amountOutMin", Type: "uint256"}},
		Outputs:         []ABIParam{{Name: "amountOut", Type: "uint256"}},
		StateMutability: "payable",
	},
	{
		Name: "swapExactTokensForETH", Type: "function",
		Inputs:          []ABIParam{{Name: "amountIn", Type: "uint256"}, {Name: "amountOutMin", Type: "uint256"}},
		Outputs:         []ABIParam{{Name: "amountOut", Type: "uint256"}},
		StateMutability: "nonpayable",
	},
	{
		Name: "Mint", Type: "event",
		Inputs: []ABIParam{
			{Name: "ethAmount", Type: "uint256"},
			{Name: "tokenAmount", Type: "uint256"},
			{Name: "liquidity", Type: "uint256"},
		},
	},
	{
		Name: "Swap", Type: "event",
		Inputs: []ABIParam{
			{Name: "trader", Type: "address", Indexed: true},
			{Name: "ethIn", Type: "uint256"},
			{Name: "tokensIn", Type: "uint256"},
			{Name: "ethOut", Type: "uint256"},
			{Name: "tokensOut", Type: "uint256"},
		},
	},
}
