package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
	"github.com/tdex-network/tdex-authtrade/pkg/stats"
)

// Reconciler settles the authorizations whose transaction outcome is not
// known yet, either because the confirmation wait timed out or because it
// was abandoned. It also notifies the signing service about the trades it
// authorized. It never resubmits anything.
type Reconciler struct {
	writer      ports.ChainWriter
	ledger      domain.AuthorizationRepository
	nonces      *NonceResolver
	service     ports.SigningService
	credentials ports.CredentialSource
	stats       *stats.Collector
	interval    time.Duration
}

// NewReconciler returns a reconciler. The signing service is optional.
func NewReconciler(
	writer ports.ChainWriter, ledger domain.AuthorizationRepository,
	nonces *NonceResolver, service ports.SigningService,
	credentials ports.CredentialSource, collector *stats.Collector,
	interval time.Duration,
) (*Reconciler, error) {
	if writer == nil {
		return nil, fmt.Errorf("missing chain writer")
	}
	if ledger == nil {
		return nil, fmt.Errorf("missing authorization repository")
	}
	if nonces == nil {
		return nil, fmt.Errorf("missing nonce resolver")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("reconcile interval must be greater than zero")
	}
	return &Reconciler{
		writer, ledger, nonces, service, credentials, collector, interval,
	}, nil
}

// Run reconciles pending authorizations every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.ReconcilePending(ctx); err != nil {
			log.WithError(err).Warn("reconciler: failed to list pending authorizations")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ReconcilePending first releases the abandoned authorizations, then looks
// up the receipt of every submitted one. Confirmed ones are burned, reverted
// ones are released, unmined ones are left untouched.
func (r *Reconciler) ReconcilePending(ctx context.Context) error {
	if err := r.releaseAbandoned(ctx); err != nil {
		return err
	}

	records, err := r.ledger.GetAuthorizationsByStatus(
		ctx, domain.AuthorizationSubmitted,
	)
	if err != nil {
		return err
	}

	for _, record := range records {
		if ctx.Err() != nil {
			return nil
		}
		if record.TxHash == "" {
			continue
		}

		txHash := common.HexToHash(record.TxHash)
		receipt, err := r.writer.GetReceipt(ctx, txHash)
		if err != nil {
			log.WithError(err).Debugf(
				"reconciler: failed to get receipt of tx %s", record.TxHash,
			)
			continue
		}
		if receipt == nil {
			continue
		}

		status, result, outcome := domain.AuthorizationReleased, "released", "reverted"
		if receipt.Successful {
			status, result, outcome = domain.AuthorizationBurned, "burned", "confirmed"
		}
		err = r.setStatus(ctx, record.Key, domain.AuthorizationSubmitted, status)
		if err != nil {
			log.WithError(err).Warnf(
				"reconciler: failed to update authorization %s", record.Key,
			)
			continue
		}
		r.stats.Reconciled(result)
		log.Infof(
			"reconciler: tx %s of execution %s %s, nonce %d %s",
			record.TxHash, record.ExecutionID, outcome, record.Nonce, result,
		)

		if !receipt.Successful {
			continue
		}
		r.nonces.Advance(common.HexToAddress(record.Signer), record.Nonce)
		if record.ExternalRef != "" {
			if err := r.Confirm(ctx, record.ExternalRef, txHash); err != nil {
				log.WithError(err).Warnf(
					"reconciler: execution %s", record.ExecutionID,
				)
			}
		}
	}
	return nil
}

// Confirm notifies the signing service that the trade it authorized has been
// confirmed. The returned error always wraps domain.ErrReconciliationFailed
// and is meant to be logged only.
func (r *Reconciler) Confirm(
	ctx context.Context, externalRef string, txHash common.Hash,
) error {
	if r.service == nil || r.credentials == nil {
		return fmt.Errorf(
			"%w: signing service not configured", domain.ErrReconciliationFailed,
		)
	}
	credential, err := r.credentials.Credential(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrReconciliationFailed, err)
	}
	if err := r.service.Confirm(ctx, credential, externalRef, txHash); err != nil {
		r.stats.Reconciled("failed")
		return fmt.Errorf("%w: %s", domain.ErrReconciliationFailed, err)
	}
	r.stats.Reconciled("confirmed")
	return nil
}

// releaseAbandoned frees the nonces of the authorizations left in Signed
// status past their deadline, for example by a daemon killed while signing
// or by a failed ledger update after submission.
func (r *Reconciler) releaseAbandoned(ctx context.Context) error {
	records, err := r.ledger.GetAuthorizationsByStatus(
		ctx, domain.AuthorizationSigned,
	)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	for _, record := range records {
		if ctx.Err() != nil {
			return nil
		}
		if !record.IsAbandoned(now) {
			continue
		}
		err := r.setStatus(
			ctx, record.Key, domain.AuthorizationSigned,
			domain.AuthorizationReleased,
		)
		if err != nil {
			log.WithError(err).Warnf(
				"reconciler: failed to release authorization %s", record.Key,
			)
			continue
		}
		r.stats.Reconciled("abandoned")
		log.Infof(
			"reconciler: authorization of execution %s expired unsubmitted, "+
				"nonce %d released", record.ExecutionID, record.Nonce,
		)
	}
	return nil
}

func (r *Reconciler) setStatus(
	ctx context.Context, key string, from, to domain.AuthorizationStatus,
) error {
	return r.ledger.UpdateAuthorization(
		ctx, key,
		func(rec *domain.AuthorizationRecord) (*domain.AuthorizationRecord, error) {
			if rec.Status != from {
				return nil, fmt.Errorf("authorization is %s", rec.Status)
			}
			rec.Status = to
			rec.UpdatedAt = time.Now().Unix()
			return rec, nil
		},
	)
}
