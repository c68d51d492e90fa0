package id

import (
	"fmt"
	"math/big"
	"strings"

	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/shopspring/decimal"
)

const bpsDenominator = 10_000

// ParseDecimalInRange parses a user-entered decimal and checks it against an
// inclusive range.
func ParseDecimalInRange(raw string, min, max decimal.Decimal) (decimal.Decimal, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return decimal.Zero, clierr.New(clierr.CodeUsage, "amount is required")
	}
	v, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, clierr.Wrap(clierr.CodeUsage, "invalid decimal "+clean, err)
	}
	if v.LessThan(min) || v.GreaterThan(max) {
		return decimal.Zero, clierr.New(clierr.CodeUsage, fmt.Sprintf("value %s outside [%s, %s]", v, min, max))
	}
	return v, nil
}

// ToBaseUnits scales a decimal amount into integer base units, truncating any
// precision finer than the unit.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, clierr.New(clierr.CodeUsage, "amount must be non-negative")
	}
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}
	return amount.Shift(decimals).Truncate(0).BigInt(), nil
}

// FromBaseUnits converts integer base units back to a decimal amount.
func FromBaseUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

// SlippageBps converts a percentage such as 1.5 into basis points (150).
func SlippageBps(percent decimal.Decimal) int {
	bps := percent.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if bps < 0 {
		return 0
	}
	if bps > bpsDenominator {
		return bpsDenominator
	}
	return int(bps)
}

// MinAmountOut applies a slippage tolerance to a quoted output amount.
func MinAmountOut(quoted *big.Int, bps int) *big.Int {
	if quoted == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(quoted, big.NewInt(int64(bpsDenominator-bps)))
	return out.Quo(out, big.NewInt(bpsDenominator))
}
