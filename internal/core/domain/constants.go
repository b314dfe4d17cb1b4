package domain

const (
	// MinSlippageBps and MaxSlippageBps bound the slippage tolerance a trader
	// can ask for.
	MinSlippageBps = 1
	MaxSlippageBps = 5000

	// CurrencyPrecision and AssetPrecision are the default number of decimals
	// of the pool reserves.
	CurrencyPrecision = 6
	AssetPrecision    = 18
)
