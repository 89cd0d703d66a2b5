package cmd

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/Mohsinsiddi/curvesim/internal/ui"
	"github.com/Mohsinsiddi/curvesim/internal/units"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert <amount> [unit]",
	Short: "Convert between ETH, gwei, wei and hex",
	Long: `Convert an amount between ether, gwei, wei and hex. Token amounts
use 18 decimals, so "token" converts like "eth".

Units: eth, token, gwei, wei, hex
If no unit is given the amount is read as ether, or as hex when it starts
with 0x. A unit suffix on the amount itself also works.

Examples:
  curvesim convert 1.5 eth          # → gwei + wei
  curvesim convert 50gwei           # → eth + wei
  curvesim convert 1000000000 wei   # → eth + gwei
  curvesim convert 0xde0b6b3a7640000`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		unit := ""
		if len(args) > 1 {
			unit = args[1]
		}
		wei, err := convertToWei(args[0], unit)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Unit Conversion", conversionPairs(args[0], unit, wei)))
		return nil
	},
}

// convertToWei parses amount in unit to wei.
func convertToWei(amount, unit string) (*uint256.Int, error) {
	unit = strings.ToLower(strings.TrimSpace(unit))
	if unit == "" && strings.HasPrefix(strings.ToLower(amount), "0x") {
		unit = "hex"
	}
	switch unit {
	case "hex":
		clean := strings.TrimPrefix(strings.TrimPrefix(amount, "0x"), "0X")
		n, ok := new(big.Int).SetString(clean, 16)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("invalid hex value: %s", amount)
		}
		z, overflow := uint256.FromBig(n)
		if overflow {
			return nil, units.ErrOverflow
		}
		return z, nil
	case "":
		return units.ParseWithUnit(amount)
	}
	decimals, err := units.Decimals(unit)
	if err != nil {
		return nil, fmt.Errorf("%w %q: use eth, token, gwei, wei or hex", err, unit)
	}
	if _, suffix := splitAmount(amount); suffix != "" {
		return nil, errors.New("give the unit once, either as a suffix or as an argument")
	}
	return units.Parse(amount, decimals)
}

// splitAmount separates a trailing unit suffix from amount.
func splitAmount(amount string) (string, string) {
	i := strings.LastIndexAny(amount, "0123456789")
	if i < 0 || i == len(amount)-1 {
		return amount, ""
	}
	return amount[:i+1], amount[i+1:]
}

func conversionPairs(input, unit string, wei *uint256.Int) [][2]string {
	if unit != "" {
		input += " " + unit
	}
	return [][2]string{
		{"Input", ui.Val(input)},
		{"ETH", ui.Val(units.Format(wei, units.Ether) + " ETH")},
		{"Gwei", ui.Val(units.Format(wei, units.Gwei) + " gwei")},
		{"Wei", ui.Val(wei.Dec() + " wei")},
		{"Hex", ui.Val(wei.Hex())},
	}
}
