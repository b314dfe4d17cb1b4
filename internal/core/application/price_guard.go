package application

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
	"github.com/tdex-network/tdex-authtrade/pkg/marketmaking/formula"
)

// PriceGuard prices trade intents against the pool reserves and derives the
// slippage bound the settlement contract enforces. All the arithmetic is
// done in base units.
type PriceGuard struct {
	currencyPrecision      int32
	assetPrecision         int32
	highImpactThresholdBps int64
	formula                formula.ConstantProduct
}

// NewPriceGuard ...
func NewPriceGuard(
	currencyPrecision, assetPrecision int32, highImpactThresholdBps int64,
) (*PriceGuard, error) {
	if currencyPrecision < 0 || assetPrecision < 0 {
		return nil, fmt.Errorf("precisions must not be negative")
	}
	if highImpactThresholdBps <= 0 {
		return nil, fmt.Errorf("price impact threshold must be greater than zero")
	}
	return &PriceGuard{
		currencyPrecision:      currencyPrecision,
		assetPrecision:         assetPrecision,
		highImpactThresholdBps: highImpactThresholdBps,
	}, nil
}

// Quote returns the expected output of the intent, its slippage bound and
// price impact.
func (g *PriceGuard) Quote(
	intent domain.TradeIntent, reserves ports.Reserves,
) (*domain.PoolQuote, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if reserves.Currency == nil || reserves.Asset == nil {
		return nil, domain.ErrNoLiquidity
	}

	currencyReserve := formula.FromBigInt(reserves.Currency)
	assetReserve := formula.FromBigInt(reserves.Asset)
	opts := formula.ConstantProductOpts{
		BalanceIn: currencyReserve, BalanceOut: assetReserve,
	}
	unitPrice, err := g.formula.SpotPrice(opts)
	if err != nil {
		return nil, toQuoteError(err)
	}

	inPrecision, outPrecision := g.currencyPrecision, g.assetPrecision
	if !intent.IsBuy() {
		inPrecision, outPrecision = g.assetPrecision, g.currencyPrecision
		opts = formula.ConstantProductOpts{
			BalanceIn: assetReserve, BalanceOut: currencyReserve,
		}
	}

	inBaseUnits := formula.ToBaseUnits(intent.InputAmount, inPrecision)
	if inBaseUnits.Sign() <= 0 {
		return nil, fmt.Errorf(
			"%w: amount is lower than one base unit", domain.ErrInvalidAmount,
		)
	}

	var outBaseUnits, boundBaseUnits decimal.Decimal
	if intent.IsBuy() {
		outBaseUnits = inBaseUnits.Div(unitPrice).Truncate(0)
		boundBaseUnits = formula.MaxAmountIn(inBaseUnits, intent.SlippageBps).Ceil()
	} else {
		outBaseUnits = inBaseUnits.Mul(unitPrice).Truncate(0)
		boundBaseUnits = formula.MinAmountOut(outBaseUnits, intent.SlippageBps).Floor()
	}
	if outBaseUnits.Sign() <= 0 {
		return nil, fmt.Errorf(
			"%w: expected output is lower than one base unit",
			domain.ErrInvalidAmount,
		)
	}
	if _, err := g.formula.InGivenOut(opts, outBaseUnits); err != nil {
		return nil, toQuoteError(err)
	}

	impactBps, err := g.formula.PriceImpactBps(opts, inBaseUnits)
	if err != nil {
		return nil, toQuoteError(err)
	}

	return &domain.PoolQuote{
		AssetID:                 intent.AssetID,
		Direction:               intent.Direction,
		CurrencyReserve:         reserves.Currency,
		AssetReserve:            reserves.Asset,
		UnitPrice:               unitPrice,
		InputAmount:             intent.InputAmount,
		InputBaseUnits:          formula.BigInt(inBaseUnits),
		ExpectedOutput:          formula.FromBaseUnits(outBaseUnits, outPrecision),
		ExpectedOutputBaseUnits: formula.BigInt(outBaseUnits),
		Bound:                   formula.FromBaseUnits(boundBaseUnits, g.currencyPrecision),
		BoundBaseUnits:          formula.BigInt(boundBaseUnits),
		PriceImpactBps:          impactBps,
		HighImpact:              impactBps > g.highImpactThresholdBps,
		QuotedAt:                time.Now().Unix(),
	}, nil
}

func toQuoteError(err error) error {
	switch {
	case errors.Is(err, formula.ErrBalanceTooLow):
		return domain.ErrNoLiquidity
	case errors.Is(err, formula.ErrAmountTooBig):
		return domain.ErrAmountTooBig
	case errors.Is(err, formula.ErrAmountTooLow):
		return fmt.Errorf("%w: %s", domain.ErrInvalidAmount, err)
	default:
		return err
	}
}
