package ports

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	TxHash      common.Hash
	Successful  bool
	BlockNumber uint64
	GasUsed     uint64
	// RevertReason is the decoded reason of a failed transaction, if any.
	RevertReason string
}

// Reserves of a pool, in base units.
type Reserves struct {
	Currency *big.Int
	Asset    *big.Int
}
