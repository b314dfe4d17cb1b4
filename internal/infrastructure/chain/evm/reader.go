package evmchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
	"github.com/tdex-network/tdex-authtrade/pkg/settlement"
)

func (s *Service) GetReserves(
	ctx context.Context, assetID uint64,
) (ports.Reserves, error) {
	data, err := settlement.PackGetReserves(assetID)
	if err != nil {
		return ports.Reserves{}, err
	}
	res, err := s.call(ctx, s.settlement, data)
	if err != nil {
		return ports.Reserves{}, err
	}
	currency, asset, err := settlement.UnpackReserves(res)
	if err != nil {
		return ports.Reserves{}, err
	}
	return ports.Reserves{Currency: currency, Asset: asset}, nil
}

func (s *Service) NextNonce(
	ctx context.Context, signer common.Address,
) (uint64, error) {
	data, err := settlement.PackNextNonce(signer)
	if err != nil {
		return 0, err
	}
	res, err := s.call(ctx, s.settlement, data)
	if err != nil {
		return 0, err
	}
	return settlement.UnpackNonce("nextNonce", res)
}

func (s *Service) UsedNonce(
	ctx context.Context, signer common.Address,
) (uint64, error) {
	data, err := settlement.PackUsedNonce(signer)
	if err != nil {
		return 0, err
	}
	res, err := s.call(ctx, s.settlement, data)
	if err != nil {
		return 0, err
	}
	return settlement.UnpackNonce("usedNonce", res)
}

func (s *Service) Allowance(
	ctx context.Context, owner, spender common.Address,
) (*big.Int, error) {
	data, err := settlement.PackAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	res, err := s.call(ctx, s.currency, data)
	if err != nil {
		return nil, err
	}
	return settlement.UnpackAllowance(res)
}

func (s *Service) CurrencyBalance(
	ctx context.Context, owner common.Address,
) (*big.Int, error) {
	data, err := settlement.PackCurrencyBalance(owner)
	if err != nil {
		return nil, err
	}
	res, err := s.call(ctx, s.currency, data)
	if err != nil {
		return nil, err
	}
	return settlement.UnpackCurrencyBalance(res)
}

func (s *Service) AssetBalance(
	ctx context.Context, owner common.Address, assetID uint64,
) (*big.Int, error) {
	data, err := settlement.PackAssetBalance(owner, assetID)
	if err != nil {
		return nil, err
	}
	res, err := s.call(ctx, s.settlement, data)
	if err != nil {
		return nil, err
	}
	return settlement.UnpackAssetBalance(res)
}
