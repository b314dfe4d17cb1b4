package application

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	"github.com/tdex-network/tdex-authtrade/pkg/settlement"
)

const (
	submitTimeout    = time.Minute
	reconcileTimeout = 15 * time.Second
	ledgerTimeout    = 10 * time.Second
)

func (s *ExecutorService) start(h *executionHandle) {
	ctx, cancel := context.WithCancel(context.Background())

	h.lock.Lock()
	h.attempt++
	attempt := h.attempt
	h.running = true
	h.cancel = cancel
	h.abandon = nil
	h.lock.Unlock()

	go func() {
		defer cancel()
		s.run(ctx, h)

		h.lock.Lock()
		if h.attempt == attempt {
			h.stop()
		}
		h.lock.Unlock()
	}()
}

// run drives the execution from its current phase to a terminal one. The
// given ctx is the one cancelled by Cancel before the trade is submitted.
func (s *ExecutorService) run(ctx context.Context, h *executionHandle) {
	slot := s.signerSlot(h.execution.Intent.Trader)
	if err := slot.Acquire(ctx, 1); err != nil {
		s.fail(h, domain.ErrCancelled, "cancelled while queued behind another execution")
		return
	}
	defer slot.Release(1)

	if s.phase(h) == domain.PhaseIdle {
		if !s.prepare(ctx, h) {
			return
		}
	}

	auth, ok := s.authorize(ctx, h)
	if !ok {
		return
	}

	abandonCtx, ok := s.submit(h, auth)
	if !ok {
		return
	}

	s.confirm(abandonCtx, h, auth)
}

// prepare runs the pre-flight checks and, for buys, makes sure the
// settlement contract is allowed to spend the trade bound.
func (s *ExecutorService) prepare(ctx context.Context, h *executionHandle) bool {
	intent, quote := h.execution.Intent, h.execution.Quote

	if intent.IsExpired(time.Now()) {
		s.fail(h, domain.ErrDeadlineExpired, "")
		return false
	}
	if err := s.checkBalance(ctx, intent, quote); err != nil {
		s.failOrCancel(ctx, h, err, "")
		return false
	}
	if intent.IsBuy() {
		if reason, err := s.ensureAllowance(ctx, h); err != nil {
			s.failOrCancel(ctx, h, err, reason)
			return false
		}
	}

	if err := s.transition(
		h, (*domain.TradeExecution).AwaitSignature, "",
	); err != nil {
		s.fail(h, err, "")
		return false
	}
	return true
}

func (s *ExecutorService) checkBalance(
	ctx context.Context, intent domain.TradeIntent, quote *domain.PoolQuote,
) error {
	var (
		balance, required *big.Int
		err               error
	)
	if intent.IsBuy() {
		required = quote.BoundBaseUnits
		balance, err = s.reader.CurrencyBalance(ctx, intent.Trader)
	} else {
		required = quote.InputBaseUnits
		balance, err = s.reader.AssetBalance(ctx, intent.Trader, intent.AssetID)
	}
	if err != nil {
		return fmt.Errorf("%w: balance: %s", domain.ErrReadFailed, err)
	}
	if balance.Cmp(required) < 0 {
		return fmt.Errorf(
			"%w: have %s, need %s base units",
			domain.ErrInsufficientBalance, balance, required,
		)
	}
	return nil
}

// ensureAllowance approves the bound of the trade if the current allowance
// is not enough. The returned reason is the revert reason of the approval,
// if any.
func (s *ExecutorService) ensureAllowance(
	ctx context.Context, h *executionHandle,
) (string, error) {
	trader := h.execution.Intent.Trader
	bound := h.execution.Quote.BoundBaseUnits
	spender := s.cfg.Domain.VerifyingContract

	allowance, err := s.reader.Allowance(ctx, trader, spender)
	if err != nil {
		return "", fmt.Errorf("%w: allowance: %s", domain.ErrReadFailed, err)
	}
	if allowance.Cmp(bound) >= 0 {
		return "", nil
	}

	if err := s.transition(
		h, (*domain.TradeExecution).ApproveAllowance, "",
	); err != nil {
		return "", err
	}

	calldata, err := settlement.PackApprove(spender, bound)
	if err != nil {
		return "", err
	}

	approveCtx, cancel := context.WithTimeout(ctx, s.cfg.ApprovalTimeout)
	defer cancel()

	txHash, err := s.writer.SubmitTransaction(approveCtx, s.cfg.CurrencyToken, calldata)
	if err != nil {
		if errors.Is(err, domain.ErrUserRejected) {
			return "", domain.ErrUserRejected
		}
		return "", fmt.Errorf(
			"%w: approval could not be submitted: %s",
			domain.ErrInsufficientAllowance, err,
		)
	}
	if err := s.transition(h, func(e *domain.TradeExecution) error {
		e.SetApprovalTxHash(txHash)
		return nil
	}, fmt.Sprintf("allowance approval %s submitted", txHash.Hex())); err != nil {
		return "", err
	}

	receipt, err := s.writer.WaitForReceipt(approveCtx, txHash)
	if err != nil {
		if ctx.Err() == nil && errors.Is(approveCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf(
				"%w: allowance approval not confirmed within %s",
				domain.ErrTimeout, s.cfg.ApprovalTimeout,
			)
		}
		return "", err
	}
	if !receipt.Successful {
		return receipt.RevertReason, fmt.Errorf(
			"%w: allowance approval", domain.ErrOnChainRevert,
		)
	}

	allowance, err = s.reader.Allowance(ctx, trader, spender)
	if err != nil {
		return "", fmt.Errorf("%w: allowance: %s", domain.ErrReadFailed, err)
	}
	if allowance.Cmp(bound) < 0 {
		return "", fmt.Errorf(
			"%w: have %s, need %s base units",
			domain.ErrInsufficientAllowance, allowance, bound,
		)
	}
	return "", nil
}

// authorize obtains a signed authorization and binds it to the execution,
// bringing it to SubmittingTrade. From there on the execution cannot be
// cancelled anymore.
func (s *ExecutorService) authorize(
	ctx context.Context, h *executionHandle,
) (*domain.SignedAuthorization, bool) {
	intent, quote := h.execution.Intent, h.execution.Quote
	if intent.IsExpired(time.Now()) {
		s.fail(h, domain.ErrDeadlineExpired, "")
		return nil, false
	}

	payload := domain.TypedTradeData{
		Domain:    s.cfg.Domain,
		Direction: intent.Direction,
		Trader:    intent.Trader,
		AssetID:   intent.AssetID,
		Amount:    quote.TradeAmount(),
		Bound:     new(big.Int).Set(quote.BoundBaseUnits),
		Deadline:  intent.Deadline,
	}
	auth, nonce, err := s.authority.Authorize(
		ctx, h.execution.ID, payload,
		AuthorizeOptions{AcceptDegradedNonce: h.opts.AcceptDegradedNonce},
	)
	if nonce.Degraded && (auth == nil || auth.Issuer == domain.LocallySigned) {
		h.lock.Lock()
		h.execution.AddWarning(domain.KindDegradedNonceSource)
		h.lock.Unlock()
	}
	if err != nil {
		if errors.Is(err, domain.ErrUserRejected) {
			s.fail(h, err, "")
			return nil, false
		}
		s.failOrCancel(ctx, h, err, "")
		return nil, false
	}
	s.stats.NonceResolved(nonce.Source.String())
	s.stats.AuthorizationSigned(auth.Issuer.String())

	h.lock.Lock()
	var failure error
	switch {
	case ctx.Err() != nil:
		failure = domain.ErrCancelled
	case intent.IsExpired(time.Now()):
		failure = domain.ErrDeadlineExpired
	default:
		failure = h.execution.Submit(auth)
	}
	status := h.execution.Status("")
	h.lock.Unlock()

	if failure != nil {
		s.release(auth)
		s.fail(h, failure, "")
		return nil, false
	}
	s.published(h, status)
	return auth, true
}

// submit broadcasts the authorized trade. It returns the context that
// Cancel uses to abandon waiting for the confirmation.
func (s *ExecutorService) submit(
	h *executionHandle, auth *domain.SignedAuthorization,
) (context.Context, bool) {
	calldata, err := tradeCalldata(auth)
	if err != nil {
		s.release(auth)
		s.fail(h, err, "")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	txHash, err := s.writer.SubmitTransaction(
		ctx, s.cfg.Domain.VerifyingContract, calldata,
	)
	if err != nil {
		s.release(auth)
		if errors.Is(err, domain.ErrUserRejected) {
			s.fail(h, domain.ErrUserRejected, "")
			return nil, false
		}
		s.fail(h, fmt.Errorf("%w: %s", domain.ErrSubmission, err), "")
		return nil, false
	}

	ledgerCtx, ledgerCancel := context.WithTimeout(context.Background(), ledgerTimeout)
	defer ledgerCancel()
	if err := s.authority.MarkSubmitted(ledgerCtx, auth, txHash.Hex()); err != nil {
		log.WithError(err).Warnf(
			"execution %s: failed to mark authorization as submitted",
			h.execution.ID,
		)
	}

	abandonCtx, abandon := context.WithCancel(context.Background())
	h.lock.Lock()
	err = h.execution.AwaitConfirmation(txHash)
	h.abandon = abandon
	status := h.execution.Status("")
	h.lock.Unlock()

	if err != nil {
		abandon()
		s.fail(h, err, "")
		return nil, false
	}
	s.published(h, status)
	return abandonCtx, true
}

// confirm waits for the trade receipt and completes the execution. If the
// wait is abandoned, or times out, the transaction is left pending in the
// ledger for the reconciler.
func (s *ExecutorService) confirm(
	abandonCtx context.Context, h *executionHandle,
	auth *domain.SignedAuthorization,
) {
	txHash := common.HexToHash(s.txHash(h))
	waitCtx, cancel := context.WithTimeout(abandonCtx, s.cfg.ConfirmationTimeout)
	defer cancel()

	receipt, err := s.writer.WaitForReceipt(waitCtx, txHash)
	if err != nil {
		handoff := fmt.Sprintf(
			"transaction %s handed off to reconciliation", txHash.Hex(),
		)
		switch {
		case abandonCtx.Err() != nil:
			s.fail(h, domain.ErrCancelled, "confirmation wait abandoned, "+handoff)
		case errors.Is(waitCtx.Err(), context.DeadlineExceeded):
			s.fail(h, fmt.Errorf(
				"%w: trade not confirmed within %s",
				domain.ErrTimeout, s.cfg.ConfirmationTimeout,
			), handoff)
		default:
			s.fail(h, fmt.Errorf("failed to wait for confirmation: %w", err), handoff)
		}
		return
	}

	ctx, ledgerCancel := context.WithTimeout(context.Background(), ledgerTimeout)
	defer ledgerCancel()

	if !receipt.Successful {
		s.release(auth)
		s.fail(h, domain.ErrOnChainRevert, receipt.RevertReason)
		return
	}

	if err := s.authority.MarkBurned(ctx, auth); err != nil {
		log.WithError(err).Warnf(
			"execution %s: failed to mark authorization as burned", h.execution.ID,
		)
	}
	s.reserves.Invalidate(h.execution.Intent.AssetID)

	if auth.HasExternalRef() {
		if err := s.transition(h, (*domain.TradeExecution).Reconcile, ""); err != nil {
			s.fail(h, err, "")
			return
		}
		reconcileCtx, reconcileCancel := context.WithTimeout(
			context.Background(), reconcileTimeout,
		)
		err := s.reconciler.Confirm(reconcileCtx, auth.ExternalRef, txHash)
		reconcileCancel()
		if err != nil {
			log.WithError(err).Warnf(
				"execution %s: trade confirmed but not reconciled", h.execution.ID,
			)
		}
	}

	if err := s.transition(h, (*domain.TradeExecution).Succeed, ""); err != nil {
		s.fail(h, err, "")
		return
	}
	s.terminated(h)
}

// transition applies fn to the execution and publishes the resulting status.
func (s *ExecutorService) transition(
	h *executionHandle, fn func(e *domain.TradeExecution) error, message string,
) error {
	h.lock.Lock()
	if err := fn(h.execution); err != nil {
		h.lock.Unlock()
		return err
	}
	if h.execution.IsTerminal() {
		h.stop()
	}
	status := h.execution.Status(message)
	h.lock.Unlock()

	s.published(h, status)
	return nil
}

func (s *ExecutorService) published(
	h *executionHandle, status domain.ExecutionStatus,
) {
	log.Debugf("execution %s: %s", status.ExecutionID, status.Phase)
	s.stats.PhaseEntered(status.Phase)
	h.broadcaster.publish(status)
}

func (s *ExecutorService) fail(h *executionHandle, err error, reason string) {
	h.lock.Lock()
	if h.execution.IsTerminal() {
		h.lock.Unlock()
		return
	}
	h.execution.Fail(err, reason)
	h.stop()
	status := h.execution.Status("")
	h.lock.Unlock()

	log.WithError(err).Warnf("execution %s: failed", status.ExecutionID)
	s.published(h, status)
	s.terminated(h)
}

// failOrCancel fails the execution with err, or with domain.ErrCancelled if
// ctx has been cancelled in the meanwhile.
func (s *ExecutorService) failOrCancel(
	ctx context.Context, h *executionHandle, err error, reason string,
) {
	if ctx.Err() != nil && !errors.Is(err, domain.ErrUserRejected) {
		s.fail(h, domain.ErrCancelled, "")
		return
	}
	s.fail(h, err, reason)
}

func (s *ExecutorService) terminated(h *executionHandle) {
	h.lock.Lock()
	outcome, kind := "succeeded", ""
	if h.execution.IsFailed() {
		outcome, kind = "failed", h.execution.Error.Kind.String()
	}
	elapsed := time.Since(time.Unix(h.execution.CreatedAt, 0))
	h.lock.Unlock()

	s.stats.ExecutionTerminated(outcome, kind, elapsed)
}

func (s *ExecutorService) release(auth *domain.SignedAuthorization) {
	ctx, cancel := context.WithTimeout(context.Background(), ledgerTimeout)
	defer cancel()

	if err := s.authority.Release(ctx, auth); err != nil {
		log.WithError(err).Warnf("failed to release nonce %d", auth.Nonce)
	}
}

func (s *ExecutorService) phase(h *executionHandle) domain.ExecutionPhase {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.execution.Phase
}

func (s *ExecutorService) txHash(h *executionHandle) string {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.execution.TxHash
}
