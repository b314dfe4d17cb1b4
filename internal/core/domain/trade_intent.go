package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TradeDirection tells whether the trader is buying or selling the asset.
type TradeDirection int

const (
	TradeBuy TradeDirection = iota
	TradeSell
)

func (d TradeDirection) String() string {
	switch d {
	case TradeBuy:
		return "buy"
	case TradeSell:
		return "sell"
	default:
		return "unknown"
	}
}

// TradeDirectionFromString parses "buy" and "sell".
func TradeDirectionFromString(s string) (TradeDirection, bool) {
	switch s {
	case "buy", "BUY", "Buy":
		return TradeBuy, true
	case "sell", "SELL", "Sell":
		return TradeSell, true
	default:
		return -1, false
	}
}

// TradeIntent describes a requested trade. It's created once the trader
// confirms a quote and it's never mutated afterwards.
type TradeIntent struct {
	AssetID   uint64
	Direction TradeDirection
	Trader    common.Address
	// InputAmount is in display units: currency for buys, asset for sells.
	InputAmount decimal.Decimal
	SlippageBps uint32
	// Deadline is a unix timestamp in seconds.
	Deadline int64
}

// NewTradeIntent returns a validated trade intent.
func NewTradeIntent(
	assetID uint64, direction TradeDirection, trader common.Address,
	inputAmount decimal.Decimal, slippageBps uint32, deadline int64,
) (TradeIntent, error) {
	intent := TradeIntent{
		AssetID:     assetID,
		Direction:   direction,
		Trader:      trader,
		InputAmount: inputAmount,
		SlippageBps: slippageBps,
		Deadline:    deadline,
	}
	if err := intent.Validate(); err != nil {
		return TradeIntent{}, err
	}
	return intent, nil
}

// Validate makes sure the financial bounds of the intent are sound. Values
// out of range are rejected, never clamped.
func (i TradeIntent) Validate() error {
	if i.Direction != TradeBuy && i.Direction != TradeSell {
		return ErrInvalidDirection
	}
	if i.Trader == (common.Address{}) {
		return ErrInvalidTrader
	}
	if i.InputAmount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if i.SlippageBps < MinSlippageBps || i.SlippageBps > MaxSlippageBps {
		return ErrInvalidSlippage
	}
	if i.Deadline <= 0 {
		return ErrInvalidDeadline
	}
	return nil
}

// IsBuy returns whether the intent is a buy.
func (i TradeIntent) IsBuy() bool {
	return i.Direction == TradeBuy
}

// IsExpired returns whether the deadline has been reached at the given time.
func (i TradeIntent) IsExpired(now time.Time) bool {
	return !now.Before(time.Unix(i.Deadline, 0))
}
