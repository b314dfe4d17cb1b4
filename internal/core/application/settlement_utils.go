package application

import (
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	"github.com/tdex-network/tdex-authtrade/pkg/settlement"
)

func toSettlementAuthorization(p domain.TypedTradeData) settlement.Authorization {
	return settlement.Authorization{
		Domain: settlement.Domain{
			Name:              p.Domain.Name,
			Version:           p.Domain.Version,
			ChainID:           p.Domain.ChainID,
			VerifyingContract: p.Domain.VerifyingContract,
		},
		IsBuy:    p.Direction == domain.TradeBuy,
		Trader:   p.Trader,
		AssetID:  p.AssetID,
		Amount:   p.Amount,
		Bound:    p.Bound,
		Nonce:    p.Nonce,
		Deadline: p.Deadline,
	}
}

func tradeCalldata(auth *domain.SignedAuthorization) ([]byte, error) {
	return settlement.PackTrade(
		toSettlementAuthorization(auth.Payload), auth.Signature,
	)
}
