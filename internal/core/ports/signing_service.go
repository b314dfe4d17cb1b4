package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PrepareRequest carries the trade parameters the signing service
// authorizes. It has no nonce, the service picks it and returns it within
// the PreparedSignature.
type PrepareRequest struct {
	Trader    common.Address
	Direction string
	AssetIDs  []uint64
	Amounts   []*big.Int
	Bound     *big.Int
	Deadline  int64
}

// PreparedSignature is the response of the signing service.
type PreparedSignature struct {
	Signature   []byte
	Nonce       uint64
	ExternalRef string
}

// SigningService is the trusted off-chain signing service.
type SigningService interface {
	PrepareSignature(
		ctx context.Context, credential string, req PrepareRequest,
	) (*PreparedSignature, error)
	Confirm(
		ctx context.Context, credential, externalRef string, txHash common.Hash,
	) error
}

// CredentialSource returns the bearer credential proving the session of the
// trader, obtained by a separate wallet ownership proof flow.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}
