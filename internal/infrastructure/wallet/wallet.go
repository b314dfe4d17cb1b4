// Package wallet implements an embedded secp256k1 wallet able to sign both
// the EIP-712 trade authorizations and the transactions broadcasted on
// behalf of the trader.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/tdex-network/tdex-authtrade/pkg/settlement"
)

var (
	// ErrNullPrivateKey ...
	ErrNullPrivateKey = errors.New("private key must not be null")
	// ErrInvalidPrivateKey ...
	ErrInvalidPrivateKey = errors.New("private key must be a 32 byte hex string")
	// ErrNullKeyFilePassword ...
	ErrNullKeyFilePassword = errors.New("key file password must not be null")
)

// Wallet holds a single private key in memory. It never prompts, so it never
// returns a user rejection.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewWalletFromHex returns a wallet for the given hex encoded private key,
// with or without 0x prefix.
func NewWalletFromHex(privateKey string) (*Wallet, error) {
	privateKey = strings.TrimPrefix(strings.TrimSpace(privateKey), "0x")
	if privateKey == "" {
		return nil, ErrNullPrivateKey
	}
	key, err := crypto.HexToECDSA(privateKey)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	return newWallet(key), nil
}

// NewWalletFromKeyFile decrypts the given keystore file with the password.
func NewWalletFromKeyFile(path, password string) (*Wallet, error) {
	if password == "" {
		return nil, ErrNullKeyFilePassword
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key file: %w", err)
	}
	return newWallet(key.PrivateKey), nil
}

func newWallet(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{key, crypto.PubkeyToAddress(key.PublicKey)}
}

func (w *Wallet) Address() common.Address {
	return w.address
}

// SignTypedData returns the 65 bytes signature of the EIP-712 digest of the
// given typed data, with recovery id in {27, 28}.
func (w *Wallet) SignTypedData(
	_ context.Context, typedData apitypes.TypedData,
) ([]byte, error) {
	digest, err := settlement.TypedDataDigest(typedData)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, w.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (w *Wallet) SignTx(
	tx *types.Transaction, chainID *big.Int,
) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
}
