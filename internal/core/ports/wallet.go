package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// WalletSigner is the wallet capability of signing typed data on behalf of
// the trader. Implementations that prompt the user must return
// domain.ErrUserRejected when the request is declined.
type WalletSigner interface {
	Address() common.Address
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)
}
