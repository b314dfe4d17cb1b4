package application

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
	"github.com/tdex-network/tdex-authtrade/pkg/settlement"
)

// SigningRequest is what a SigningStrategy needs to authorize a trade.
type SigningRequest struct {
	ExecutionID string
	Payload     domain.TypedTradeData
	// Nonce is the freshly resolved nonce of the trader. Strategies that let
	// a remote party pick the nonce ignore it.
	Nonce               domain.NonceResolution
	AcceptDegradedNonce bool
}

// SigningStrategy produces a signed authorization for a trade.
type SigningStrategy interface {
	Issuer() domain.Issuer
	Sign(ctx context.Context, req SigningRequest) (*domain.SignedAuthorization, error)
}

// BackendStrategy delegates signing to the trusted signing service, which
// also picks the nonce.
type BackendStrategy struct {
	service     ports.SigningService
	credentials ports.CredentialSource
}

// NewBackendStrategy ...
func NewBackendStrategy(
	service ports.SigningService, credentials ports.CredentialSource,
) *BackendStrategy {
	return &BackendStrategy{service, credentials}
}

func (s *BackendStrategy) Issuer() domain.Issuer {
	return domain.BackendIssued
}

func (s *BackendStrategy) Sign(
	ctx context.Context, req SigningRequest,
) (*domain.SignedAuthorization, error) {
	credential, err := s.credentials.Credential(ctx)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: missing credential: %s", domain.ErrSignatureServiceUnavailable, err,
		)
	}

	payload := req.Payload
	prepared, err := s.service.PrepareSignature(ctx, credential, ports.PrepareRequest{
		Trader:    payload.Trader,
		Direction: payload.Direction.String(),
		AssetIDs:  []uint64{payload.AssetID},
		Amounts:   []*big.Int{payload.Amount},
		Bound:     payload.Bound,
		Deadline:  payload.Deadline,
	})
	if err != nil {
		if errors.Is(err, domain.ErrSignatureServiceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrSignatureServiceUnavailable, err)
	}
	if prepared == nil || prepared.ExternalRef == "" || len(prepared.Signature) <= 0 {
		return nil, fmt.Errorf(
			"%w: malformed response", domain.ErrSignatureServiceUnavailable,
		)
	}
	if err := settlement.ValidateSignatureShape(prepared.Signature); err != nil {
		return nil, fmt.Errorf(
			"%w: malformed response: %s", domain.ErrSignatureServiceUnavailable, err,
		)
	}

	payload.Nonce = prepared.Nonce
	return &domain.SignedAuthorization{
		Payload:     payload,
		Signature:   prepared.Signature,
		Nonce:       prepared.Nonce,
		Issuer:      domain.BackendIssued,
		ExternalRef: prepared.ExternalRef,
	}, nil
}

// LocalStrategy signs the typed data with the trader's wallet over the
// resolved nonce.
type LocalStrategy struct {
	wallet ports.WalletSigner
}

// NewLocalStrategy ...
func NewLocalStrategy(wallet ports.WalletSigner) *LocalStrategy {
	return &LocalStrategy{wallet}
}

func (s *LocalStrategy) Issuer() domain.Issuer {
	return domain.LocallySigned
}

func (s *LocalStrategy) Sign(
	ctx context.Context, req SigningRequest,
) (*domain.SignedAuthorization, error) {
	if req.Nonce.Degraded && !req.AcceptDegradedNonce {
		return nil, domain.ErrDegradedNonceSource
	}
	if addr := s.wallet.Address(); addr != req.Payload.Trader {
		return nil, fmt.Errorf(
			"wallet %s cannot sign on behalf of trader %s", addr, req.Payload.Trader,
		)
	}

	payload := req.Payload
	payload.Nonce = req.Nonce.Value
	auth := toSettlementAuthorization(payload)

	sig, err := s.wallet.SignTypedData(ctx, auth.TypedData())
	if err != nil {
		if errors.Is(err, domain.ErrUserRejected) {
			return nil, domain.ErrUserRejected
		}
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}
	if err := settlement.ValidateSignatureShape(sig); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidSignatureShape, err)
	}
	if err := auth.VerifySigner(sig); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidSignatureShape, err)
	}

	return &domain.SignedAuthorization{
		Payload:   payload,
		Signature: sig,
		Nonce:     payload.Nonce,
		Issuer:    domain.LocallySigned,
	}, nil
}

// FallbackPolicy tries its strategies in order, moving to the next one only
// when the current one fails with a recoverable error. Every accepted
// signature is validated the same way regardless of the strategy.
type FallbackPolicy struct {
	strategies []SigningStrategy
}

// NewFallbackPolicy ...
func NewFallbackPolicy(strategies ...SigningStrategy) (*FallbackPolicy, error) {
	list := make([]SigningStrategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			list = append(list, s)
		}
	}
	if len(list) <= 0 {
		return nil, fmt.Errorf("at least one signing strategy is required")
	}
	return &FallbackPolicy{list}, nil
}

// Sign returns the first authorization produced by the strategies.
func (p *FallbackPolicy) Sign(
	ctx context.Context, req SigningRequest,
) (*domain.SignedAuthorization, error) {
	var lastErr error
	for i, strategy := range p.strategies {
		auth, err := strategy.Sign(ctx, req)
		if err != nil {
			if !isRecoverableSigningError(err) || i == len(p.strategies)-1 {
				return nil, err
			}
			log.WithError(err).Warnf(
				"execution %s: %s signing failed, falling back",
				req.ExecutionID, strategy.Issuer(),
			)
			lastErr = err
			continue
		}

		if err := settlement.ValidateSignatureShape(auth.Signature); err != nil {
			return nil, fmt.Errorf(
				"%w: %s signature: %s",
				domain.ErrInvalidSignatureShape, strategy.Issuer(), err,
			)
		}
		return auth, nil
	}
	return nil, lastErr
}

func isRecoverableSigningError(err error) bool {
	return errors.Is(err, domain.ErrSignatureServiceUnavailable)
}
