// Package formula defines the constant product formulas used to quote trades
// against a pool holding a currency and an asset reserve.
package formula

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	one          = decimal.NewFromInt(1)
	tenThousands = decimal.NewFromInt(10000)
)

var (
	// ErrBalanceTooLow ...
	ErrBalanceTooLow = errors.New("reserve balance amount is too low")
	// ErrAmountTooLow ...
	ErrAmountTooLow = errors.New("provided amount is too low")
	// ErrAmountTooBig ...
	ErrAmountTooBig = errors.New("provided amount is too big")
)

// ConstantProductOpts defines the reserves of the pool seen from the side of
// the trader: BalanceIn is the reserve of the asset the trader sends,
// BalanceOut the one of the asset the trader receives. Both are expressed in
// base units.
type ConstantProductOpts struct {
	BalanceIn  decimal.Decimal
	BalanceOut decimal.Decimal
}

func (o ConstantProductOpts) validate() error {
	if o.BalanceIn.LessThanOrEqual(decimal.Zero) ||
		o.BalanceOut.LessThanOrEqual(decimal.Zero) {
		return ErrBalanceTooLow
	}
	return nil
}

// ConstantProduct defines an AMM strategy where the product of the reserves
// is kept constant by every trade.
type ConstantProduct struct{}

// SpotPrice returns how many units of the in-asset are needed for one unit of
// the out-asset, without considering the size of the trade.
func (ConstantProduct) SpotPrice(opts ConstantProductOpts) (decimal.Decimal, error) {
	if err := opts.validate(); err != nil {
		return decimal.Zero, err
	}
	return opts.BalanceIn.Div(opts.BalanceOut), nil
}

// InGivenOut returns the amount of in-asset the pool requires for releasing
// the given amountOut, following x * y = k. It fails with ErrAmountTooBig if
// the pool cannot release amountOut without being drained.
func (ConstantProduct) InGivenOut(
	opts ConstantProductOpts, amountOut decimal.Decimal,
) (decimal.Decimal, error) {
	if err := opts.validate(); err != nil {
		return decimal.Zero, err
	}
	if amountOut.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrAmountTooLow
	}
	if amountOut.GreaterThanOrEqual(opts.BalanceOut) {
		return decimal.Zero, ErrAmountTooBig
	}

	amount := opts.BalanceIn.Mul(amountOut).Div(opts.BalanceOut.Sub(amountOut))
	return amount, nil
}

// PriceImpact returns the relative change of the spot price caused by
// swapping amountIn against the reserves. For a constant product pool the
// spot price after the trade is (in+x)^2/(in*out), therefore the impact
// reduces to ((in+x)/in)^2 - 1.
func (ConstantProduct) PriceImpact(
	opts ConstantProductOpts, amountIn decimal.Decimal,
) (decimal.Decimal, error) {
	if err := opts.validate(); err != nil {
		return decimal.Zero, err
	}
	if amountIn.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrAmountTooLow
	}

	ratio := opts.BalanceIn.Add(amountIn).Div(opts.BalanceIn)
	return ratio.Mul(ratio).Sub(one), nil
}

// PriceImpactBps is like PriceImpact but returns the impact in basis points,
// rounded to the nearest integer.
func (c ConstantProduct) PriceImpactBps(
	opts ConstantProductOpts, amountIn decimal.Decimal,
) (int64, error) {
	impact, err := c.PriceImpact(opts, amountIn)
	if err != nil {
		return 0, err
	}
	return impact.Mul(tenThousands).Round(0).IntPart(), nil
}
