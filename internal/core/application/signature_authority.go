package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
)

// Signer is what the authority needs from a signing policy.
type Signer interface {
	Sign(ctx context.Context, req SigningRequest) (*domain.SignedAuthorization, error)
}

// AuthorizeOptions ...
type AuthorizeOptions struct {
	AcceptDegradedNonce bool
}

// SignatureAuthority produces single use authorizations. Every authorization
// is reserved in the ledger before being handed out, so that no two live
// authorizations ever share the same nonce.
type SignatureAuthority struct {
	nonces *NonceResolver
	signer Signer
	ledger domain.AuthorizationRepository
}

// NewSignatureAuthority ...
func NewSignatureAuthority(
	nonces *NonceResolver, signer Signer, ledger domain.AuthorizationRepository,
) (*SignatureAuthority, error) {
	if nonces == nil {
		return nil, fmt.Errorf("missing nonce resolver")
	}
	if signer == nil {
		return nil, fmt.Errorf("missing signing policy")
	}
	if ledger == nil {
		return nil, fmt.Errorf("missing authorization repository")
	}
	return &SignatureAuthority{nonces, signer, ledger}, nil
}

// Authorize resolves a fresh nonce for the trader and signs the given
// payload over it. If the nonce is already bound to a live authorization the
// nonce is resolved once more. A second conflict fails with
// domain.ErrNonceRace.
func (a *SignatureAuthority) Authorize(
	ctx context.Context, executionID string, payload domain.TypedTradeData,
	opts AuthorizeOptions,
) (*domain.SignedAuthorization, domain.NonceResolution, error) {
	var (
		nonce   domain.NonceResolution
		lastErr error
	)
	for attempt := 0; attempt < 2; attempt++ {
		var err error
		nonce, err = a.nonces.ResolveFresh(ctx, payload.Trader)
		if err != nil {
			return nil, nonce, err
		}

		taken, err := a.isNonceTaken(ctx, payload, nonce.Value)
		if err != nil {
			return nil, nonce, err
		}
		if taken {
			lastErr = fmt.Errorf(
				"%w: nonce %d of %s", domain.ErrNonceRace, nonce.Value, payload.Trader,
			)
			log.Warnf("execution %s: %s, resolving again", executionID, lastErr)
			continue
		}

		auth, err := a.signer.Sign(ctx, SigningRequest{
			ExecutionID:         executionID,
			Payload:             payload,
			Nonce:               nonce,
			AcceptDegradedNonce: opts.AcceptDegradedNonce,
		})
		if err != nil {
			return nil, nonce, err
		}

		record := domain.NewAuthorizationRecord(auth, executionID, time.Now().Unix())
		if err := a.ledger.AddAuthorization(ctx, record); err != nil {
			if !errors.Is(err, domain.ErrNonceRace) {
				return nil, nonce, fmt.Errorf("failed to reserve nonce: %w", err)
			}
			lastErr = err
			log.Warnf(
				"execution %s: nonce %d already reserved, resolving again",
				executionID, auth.Nonce,
			)
			continue
		}

		if auth.Issuer == domain.BackendIssued {
			nonce = domain.NonceResolution{
				Value: auth.Nonce, Source: domain.NonceSourceNextAccessor,
			}
		}
		log.Debugf(
			"execution %s: authorization signed (%s) over nonce %d",
			executionID, auth.Issuer, auth.Nonce,
		)
		return auth, nonce, nil
	}

	if lastErr == nil {
		lastErr = domain.ErrNonceRace
	}
	return nil, nonce, lastErr
}

// Release frees the nonce of an authorization that never reached the chain,
// or whose transaction reverted.
func (a *SignatureAuthority) Release(
	ctx context.Context, auth *domain.SignedAuthorization,
) error {
	return a.setStatus(ctx, auth, "", domain.AuthorizationReleased)
}

// MarkSubmitted ...
func (a *SignatureAuthority) MarkSubmitted(
	ctx context.Context, auth *domain.SignedAuthorization, txHash string,
) error {
	return a.setStatus(ctx, auth, txHash, domain.AuthorizationSubmitted)
}

// MarkBurned records the nonce of the authorization as consumed on-chain.
func (a *SignatureAuthority) MarkBurned(
	ctx context.Context, auth *domain.SignedAuthorization,
) error {
	if err := a.setStatus(ctx, auth, "", domain.AuthorizationBurned); err != nil {
		return err
	}
	a.nonces.Advance(auth.Payload.Trader, auth.Nonce)
	return nil
}

func (a *SignatureAuthority) isNonceTaken(
	ctx context.Context, payload domain.TypedTradeData, nonce uint64,
) (bool, error) {
	key := domain.AuthorizationKey(
		payload.Domain.VerifyingContract, payload.Trader, nonce,
	)
	record, err := a.ledger.GetAuthorization(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrAuthorizationNotFound) {
			return false, nil
		}
		return false, err
	}
	return record.BindsNonce(time.Now().Unix()), nil
}

func (a *SignatureAuthority) setStatus(
	ctx context.Context, auth *domain.SignedAuthorization,
	txHash string, status domain.AuthorizationStatus,
) error {
	if auth == nil {
		return domain.ErrNullAuthorization
	}
	key := domain.AuthorizationKey(
		auth.Payload.Domain.VerifyingContract, auth.Payload.Trader, auth.Nonce,
	)
	fingerprint := auth.Fingerprint()
	return a.ledger.UpdateAuthorization(
		ctx, key,
		func(r *domain.AuthorizationRecord) (*domain.AuthorizationRecord, error) {
			if r.Fingerprint != fingerprint {
				return nil, fmt.Errorf(
					"%w: nonce %d bound to another authorization",
					domain.ErrNonceRace, auth.Nonce,
				)
			}
			r.Status = status
			if txHash != "" {
				r.TxHash = txHash
			}
			r.UpdatedAt = time.Now().Unix()
			return r, nil
		},
	)
}
