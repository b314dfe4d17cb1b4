package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// PoolQuote is the ephemeral result of pricing a trade intent against the
// current pool reserves. It's recomputed on every request and never
// persisted.
type PoolQuote struct {
	AssetID   uint64
	Direction TradeDirection
	// Reserves in base units.
	CurrencyReserve *big.Int
	AssetReserve    *big.Int
	// UnitPrice is currency base units per asset base unit.
	UnitPrice decimal.Decimal
	// InputAmount in display units and its base units equivalent.
	InputAmount    decimal.Decimal
	InputBaseUnits *big.Int
	// ExpectedOutput is asset for buys, currency for sells.
	ExpectedOutput          decimal.Decimal
	ExpectedOutputBaseUnits *big.Int
	// Bound is the max currency to spend for buys, the min currency to
	// receive for sells.
	Bound          decimal.Decimal
	BoundBaseUnits *big.Int
	PriceImpactBps int64
	HighImpact     bool
	QuotedAt       int64
}

// TradeAmount returns the amount of asset, in base units, the settlement
// contract is asked to transfer.
func (q PoolQuote) TradeAmount() *big.Int {
	if q.Direction == TradeBuy {
		return new(big.Int).Set(q.ExpectedOutputBaseUnits)
	}
	return new(big.Int).Set(q.InputBaseUnits)
}

// Warnings returns the warnings the trader must acknowledge before signing.
func (q PoolQuote) Warnings() []ErrorKind {
	if q.HighImpact {
		return []ErrorKind{KindHighPriceImpact}
	}
	return nil
}
