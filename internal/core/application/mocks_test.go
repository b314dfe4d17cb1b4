package application_test

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
)

// **** Chain reader ****

type mockChainReader struct {
	mock.Mock
}

func (m *mockChainReader) GetReserves(
	ctx context.Context, assetID uint64,
) (ports.Reserves, error) {
	args := m.Called(ctx, assetID)

	var res ports.Reserves
	if a := args.Get(0); a != nil {
		res = a.(ports.Reserves)
	}
	return res, args.Error(1)
}

func (m *mockChainReader) NextNonce(
	ctx context.Context, signer common.Address,
) (uint64, error) {
	args := m.Called(ctx, signer)

	var res uint64
	if a := args.Get(0); a != nil {
		res = a.(uint64)
	}
	return res, args.Error(1)
}

func (m *mockChainReader) UsedNonce(
	ctx context.Context, signer common.Address,
) (uint64, error) {
	args := m.Called(ctx, signer)

	var res uint64
	if a := args.Get(0); a != nil {
		res = a.(uint64)
	}
	return res, args.Error(1)
}

func (m *mockChainReader) Allowance(
	ctx context.Context, owner, spender common.Address,
) (*big.Int, error) {
	args := m.Called(ctx, owner, spender)

	var res *big.Int
	if a := args.Get(0); a != nil {
		res = a.(*big.Int)
	}
	return res, args.Error(1)
}

func (m *mockChainReader) CurrencyBalance(
	ctx context.Context, owner common.Address,
) (*big.Int, error) {
	args := m.Called(ctx, owner)

	var res *big.Int
	if a := args.Get(0); a != nil {
		res = a.(*big.Int)
	}
	return res, args.Error(1)
}

func (m *mockChainReader) AssetBalance(
	ctx context.Context, owner common.Address, assetID uint64,
) (*big.Int, error) {
	args := m.Called(ctx, owner, assetID)

	var res *big.Int
	if a := args.Get(0); a != nil {
		res = a.(*big.Int)
	}
	return res, args.Error(1)
}

// **** Chain writer ****

type mockChainWriter struct {
	mock.Mock
}

func (m *mockChainWriter) SubmitTransaction(
	ctx context.Context, to common.Address, calldata []byte,
) (common.Hash, error) {
	args := m.Called(ctx, to, calldata)

	var res common.Hash
	if a := args.Get(0); a != nil {
		res = a.(common.Hash)
	}
	return res, args.Error(1)
}

func (m *mockChainWriter) WaitForReceipt(
	ctx context.Context, txHash common.Hash,
) (*ports.Receipt, error) {
	args := m.Called(ctx, txHash)

	var res *ports.Receipt
	if a := args.Get(0); a != nil {
		res = a.(*ports.Receipt)
	}
	return res, args.Error(1)
}

func (m *mockChainWriter) GetReceipt(
	ctx context.Context, txHash common.Hash,
) (*ports.Receipt, error) {
	args := m.Called(ctx, txHash)

	var res *ports.Receipt
	if a := args.Get(0); a != nil {
		res = a.(*ports.Receipt)
	}
	return res, args.Error(1)
}

// **** Wallet ****

type mockWallet struct {
	mock.Mock
}

func (m *mockWallet) Address() common.Address {
	args := m.Called()
	return args.Get(0).(common.Address)
}

func (m *mockWallet) SignTypedData(
	ctx context.Context, typedData apitypes.TypedData,
) ([]byte, error) {
	args := m.Called(ctx, typedData)

	var res []byte
	if a := args.Get(0); a != nil {
		res = a.([]byte)
	}
	return res, args.Error(1)
}

// **** Signing service ****

type mockSigningService struct {
	mock.Mock
}

func (m *mockSigningService) PrepareSignature(
	ctx context.Context, credential string, req ports.PrepareRequest,
) (*ports.PreparedSignature, error) {
	args := m.Called(ctx, credential, req)

	var res *ports.PreparedSignature
	if a := args.Get(0); a != nil {
		res = a.(*ports.PreparedSignature)
	}
	return res, args.Error(1)
}

func (m *mockSigningService) Confirm(
	ctx context.Context, credential, externalRef string, txHash common.Hash,
) error {
	args := m.Called(ctx, credential, externalRef, txHash)
	return args.Error(0)
}

type mockCredentials struct {
	mock.Mock
}

func (m *mockCredentials) Credential(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
