package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainReader groups the read primitives the pipeline needs from the
// settlement contract and the currency token.
type ChainReader interface {
	ReserveReader
	NonceReader
	AllowanceReader
}

// ReserveReader reads the reserves of the pool of an asset.
type ReserveReader interface {
	GetReserves(ctx context.Context, assetID uint64) (Reserves, error)
}

// NonceReader exposes the two accessor shapes of the settlement contract
// nonce: the next usable nonce, or the highest used one.
type NonceReader interface {
	NextNonce(ctx context.Context, signer common.Address) (uint64, error)
	UsedNonce(ctx context.Context, signer common.Address) (uint64, error)
}

// AllowanceReader reads balances and allowances of the trader.
type AllowanceReader interface {
	Allowance(
		ctx context.Context, owner, spender common.Address,
	) (*big.Int, error)
	CurrencyBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	AssetBalance(
		ctx context.Context, owner common.Address, assetID uint64,
	) (*big.Int, error)
}
