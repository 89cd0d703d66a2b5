// Package units converts between human decimal amounts and 18-decimal base
// units held in uint256.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// Ether is the number of decimals of ETH and of the curve token.
	Ether int32 = 18
	// Gwei is the number of decimals between gwei and wei.
	Gwei int32 = 9
	// Wei is the base unit.
	Wei int32 = 0

	// maxDigits is the decimal length of 2^256-1.
	maxDigits = 78
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrNegative      = errors.New("amount must not be negative")
	ErrPrecision     = errors.New("amount has more decimals than the unit allows")
	ErrOverflow      = errors.New("amount does not fit in 256 bits")
	ErrUnknownUnit   = errors.New("unknown unit")
)

// Parse reads a decimal string ("1.5", "0.001", "2e3") and scales it by
// 10^decimals. Fractions below one base unit are rejected, not rounded.
func Parse(s string, decimals int32) (*uint256.Int, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", ""))
	if s == "" {
		return nil, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q", ErrNegative, s)
	}
	if d.IsZero() {
		return new(uint256.Int), nil
	}
	// The scaled value lies in [10^(digits+exp-1), 10^(digits+exp)); bound it
	// before Shift and BigInt expand the exponent.
	digits := int64(d.NumDigits())
	exp := int64(d.Exponent()) + int64(decimals)
	if digits+exp > maxDigits {
		return nil, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	if -exp > digits {
		return nil, fmt.Errorf("%w: %q", ErrPrecision, s)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %q", ErrPrecision, s)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return v, nil
}

// ParseEther parses an ETH (or whole-token) amount into base units.
func ParseEther(s string) (*uint256.Int, error) { return Parse(s, Ether) }

// ParseWithUnit parses amounts with an optional unit suffix: "1.5eth",
// "20 gwei", "100wei". A bare number is read in ether.
func ParseWithUnit(s string) (*uint256.Int, error) {
	num, unit := splitUnit(s)
	decimals, err := Decimals(unit)
	if err != nil {
		return nil, err
	}
	return Parse(num, decimals)
}

// Decimals maps a unit name to its number of decimals.
func Decimals(unit string) (int32, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "", "eth", "ether", "token", "tokens":
		return Ether, nil
	case "gwei":
		return Gwei, nil
	case "wei":
		return Wei, nil
	default:
		return 0, fmt.Errorf("%w %q (use eth, gwei or wei)", ErrUnknownUnit, unit)
	}
}

func splitUnit(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := len(s)
	for i > 0 {
		c := s[i-1]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			i--
			continue
		}
		break
	}
	// "1e18" keeps its exponent marker.
	if i < len(s) && i > 0 && strings.EqualFold(s[i:], "e") {
		return s, ""
	}
	return strings.TrimSpace(s[:i]), s[i:]
}

// Format renders x scaled down by 10^decimals with trailing zeros trimmed.
func Format(x *uint256.Int, decimals int32) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x.ToBig(), -decimals).String()
}

// FormatEther renders a base-unit amount in ether.
func FormatEther(x *uint256.Int) string { return Format(x, Ether) }

// FormatFixed renders x with exactly places decimals, truncating the rest.
func FormatFixed(x *uint256.Int, decimals, places int32) string {
	if x == nil {
		x = new(uint256.Int)
	}
	d := decimal.NewFromBigInt(x.ToBig(), -decimals).Truncate(places)
	return d.StringFixed(places)
}

// Decimal exposes x as a shopspring decimal in whole units, for ratios and
// percentages in reports.
func Decimal(x *uint256.Int, decimals int32) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x.ToBig(), -decimals)
}
