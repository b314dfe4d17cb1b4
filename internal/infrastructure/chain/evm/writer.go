package evmchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
	"github.com/tdex-network/tdex-authtrade/pkg/settlement"
)

var (
	// ErrMissingTxSigner ...
	ErrMissingTxSigner = errors.New("no transaction signer configured")

	// gas estimations are increased by 20%.
	gasLimitMultiplier = big.NewRat(6, 5)
)

func (s *Service) SubmitTransaction(
	ctx context.Context, to common.Address, calldata []byte,
) (common.Hash, error) {
	if s.signer == nil {
		return common.Hash{}, ErrMissingTxSigner
	}
	from := s.signer.Address()

	s.limiter.Take()
	nonce, err := s.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get account nonce: %w", err)
	}

	s.limiter.Take()
	gas, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From: from, To: &to, Data: calldata,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gasLimit := new(big.Rat).Mul(new(big.Rat).SetUint64(gas), gasLimitMultiplier)
	gas = new(big.Int).Quo(gasLimit.Num(), gasLimit.Denom()).Uint64()

	s.limiter.Take()
	tipCap, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas tip cap: %w", err)
	}

	s.limiter.Take()
	head, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get chain tip: %w", err)
	}
	feeCap := new(big.Int).Set(tipCap)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	tx, err := s.signer.SignTx(types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      calldata,
	}), s.chainID)
	if err != nil {
		return common.Hash{}, err
	}

	s.limiter.Take()
	if err := s.client.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, err
	}
	log.Debugf("broadcasted tx %s to %s", tx.Hash().Hex(), to.Hex())
	return tx.Hash(), nil
}

func (s *Service) WaitForReceipt(
	ctx context.Context, txHash common.Hash,
) (*ports.Receipt, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.GetReceipt(ctx, txHash)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithError(err).Debugf("failed to get receipt of tx %s", txHash)
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) GetReceipt(
	ctx context.Context, txHash common.Hash,
) (*ports.Receipt, error) {
	s.limiter.Take()
	receipt, err := s.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, err
	}

	res := &ports.Receipt{
		TxHash:     txHash,
		Successful: receipt.Status == types.ReceiptStatusSuccessful,
		GasUsed:    receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if !res.Successful {
		res.RevertReason = s.revertReason(ctx, txHash, receipt.BlockNumber)
	}
	return res, nil
}

// revertReason replays the reverted transaction at its block to extract the
// reason from the returned error.
func (s *Service) revertReason(
	ctx context.Context, txHash common.Hash, blockNumber *big.Int,
) string {
	s.limiter.Take()
	tx, _, err := s.client.TransactionByHash(ctx, txHash)
	if err != nil {
		return ""
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return ""
	}

	s.limiter.Take()
	_, err = s.client.CallContract(ctx, ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}, blockNumber)
	if err == nil {
		return ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if data, err := hexutil.Decode(hexData); err == nil {
				if reason := settlement.UnpackRevertReason(data); reason != "" {
					return reason
				}
			}
		}
	}
	return err.Error()
}
