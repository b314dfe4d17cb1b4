package settlement

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	BuyPrimaryType  = "BuyAuthorization"
	SellPrimaryType = "SellAuthorization"

	SignatureLength = 65
)

var (
	// ErrInvalidSignatureLength ...
	ErrInvalidSignatureLength = fmt.Errorf(
		"signature must be %d bytes long", SignatureLength,
	)
	// ErrInvalidRecoveryID ...
	ErrInvalidRecoveryID = errors.New("signature recovery id must be one of 0, 1, 27, 28")
	// ErrSignerMismatch is returned when a signature does not recover to the
	// expected trader.
	ErrSignerMismatch = errors.New("signature does not recover to the trader address")
)

var domainTypes = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// Domain is the EIP-712 domain of the settlement contract.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
}

// Authorization holds the fields of a trade authorization. Amounts are in
// base units.
type Authorization struct {
	Domain   Domain
	IsBuy    bool
	Trader   common.Address
	AssetID  uint64
	Amount   *big.Int
	Bound    *big.Int
	Nonce    uint64
	Deadline int64
}

// PrimaryType returns the EIP-712 primary type of the authorization.
func (a Authorization) PrimaryType() string {
	if a.IsBuy {
		return BuyPrimaryType
	}
	return SellPrimaryType
}

func (a Authorization) boundField() string {
	if a.IsBuy {
		return "maxCurrencyIn"
	}
	return "minCurrencyOut"
}

// TypedData returns the EIP-712 typed data of the authorization, ready to be
// handed to a wallet.
func (a Authorization) TypedData() apitypes.TypedData {
	primaryType := a.PrimaryType()
	bound := a.boundField()

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainTypes,
			primaryType: {
				{Name: "trader", Type: "address"},
				{Name: "assetId", Type: "uint256"},
				{Name: "amount", Type: "uint256"},
				{Name: bound, Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              a.Domain.Name,
			Version:           a.Domain.Version,
			ChainId:           math.NewHexOrDecimal256(a.Domain.ChainID),
			VerifyingContract: a.Domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"trader":   a.Trader.Hex(),
			"assetId":  new(big.Int).SetUint64(a.AssetID).String(),
			"amount":   bigString(a.Amount),
			bound:      bigString(a.Bound),
			"nonce":    new(big.Int).SetUint64(a.Nonce).String(),
			"deadline": big.NewInt(a.Deadline).String(),
		},
	}
}

// Digest returns the hash a trader signs to authorize the trade.
func (a Authorization) Digest() ([]byte, error) {
	return TypedDataDigest(a.TypedData())
}

// TypedDataDigest computes keccak256("\x19\x01" || domainSeparator ||
// hashStruct(message)).
func TypedDataDigest(typedData apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := typedData.HashStruct(
		"EIP712Domain", typedData.Domain.Map(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(
		typedData.PrimaryType, typedData.Message,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	raw := bytes.Join([][]byte{
		{0x19, 0x01}, domainSeparator, messageHash,
	}, nil)
	return crypto.Keccak256(raw), nil
}

// ValidateSignatureShape makes sure the signature is 65 bytes long with a
// recovery id in {0, 1, 27, 28}.
func ValidateSignatureShape(sig []byte) error {
	if len(sig) != SignatureLength {
		return ErrInvalidSignatureLength
	}
	switch sig[64] {
	case 0, 1, 27, 28:
		return nil
	default:
		return ErrInvalidRecoveryID
	}
}

// RecoverSigner returns the address that produced the signature over the
// given digest.
func RecoverSigner(digest, sig []byte) (common.Address, error) {
	if err := ValidateSignatureShape(sig); err != nil {
		return common.Address{}, err
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pubkey, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pubkey), nil
}

// VerifySigner makes sure the signature over the authorization recovers to
// its trader.
func (a Authorization) VerifySigner(sig []byte) error {
	digest, err := a.Digest()
	if err != nil {
		return err
	}
	signer, err := RecoverSigner(digest, sig)
	if err != nil {
		return err
	}
	if signer != a.Trader {
		return ErrSignerMismatch
	}
	return nil
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
