package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// ChainWriter broadcasts transactions and waits for them to be mined. It
// wraps the wallet prompting for external wallets, it's silent for
// embedded ones.
type ChainWriter interface {
	SubmitTransaction(
		ctx context.Context, to common.Address, calldata []byte,
	) (common.Hash, error)
	// WaitForReceipt blocks until the transaction is mined or ctx is done.
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error)
	// GetReceipt returns the receipt if the transaction is mined, nil
	// otherwise.
	GetReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error)
}
