package formula

import (
	"math/big"

	"github.com/shopspring/decimal"
)

func init() {
	// 18 decimals assets quoted against 6 decimals currencies produce base unit
	// ratios well below 1e-8.
	decimal.DivisionPrecision = 36
}

// BpsToFraction converts basis points into a decimal fraction (50 -> 0.005).
func BpsToFraction(bps uint32) decimal.Decimal {
	return decimal.NewFromInt(int64(bps)).Div(tenThousands)
}

// MaxAmountIn returns the amount increased by the given slippage tolerance.
// It is the upper bound a trader accepts to spend.
func MaxAmountIn(amount decimal.Decimal, slippageBps uint32) decimal.Decimal {
	return amount.Mul(one.Add(BpsToFraction(slippageBps)))
}

// MinAmountOut returns the amount decreased by the given slippage tolerance.
// It is the lower bound a trader accepts to receive.
func MinAmountOut(amount decimal.Decimal, slippageBps uint32) decimal.Decimal {
	return amount.Mul(one.Sub(BpsToFraction(slippageBps)))
}

// ToBaseUnits converts an amount in display units into base units given the
// asset precision, truncating any fraction of base unit.
func ToBaseUnits(amount decimal.Decimal, precision int32) decimal.Decimal {
	return amount.Shift(precision).Truncate(0)
}

// FromBaseUnits converts an amount in base units into display units.
func FromBaseUnits(amount decimal.Decimal, precision int32) decimal.Decimal {
	return amount.Shift(-precision)
}

// BigInt returns the decimal as a *big.Int. The decimal is expected to be an
// integer amount of base units.
func BigInt(amount decimal.Decimal) *big.Int {
	return amount.BigInt()
}

// FromBigInt wraps a base units amount into a decimal.
func FromBigInt(amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, 0)
}
