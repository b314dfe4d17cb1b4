package application_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-authtrade/internal/core/application"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
	"github.com/tdex-network/tdex-authtrade/pkg/settlement"
)

var backendSig = append(bytes.Repeat([]byte{0x01}, 64), 27)

func TestExecuteBuyWithAllowanceApproval(t *testing.T) {
	env := newTestEnv(t, envOpts{})
	env.mockHealthyChain(8)
	env.reader.On("Allowance", mock.Anything, env.trader(), settlementContract).
		Return(big.NewInt(0), nil).Once()
	env.mockAllowance(plenty)

	approveHash, tradeHash := randomHash(), randomHash()
	approveCalldata, err := settlement.PackApprove(
		settlementContract, big.NewInt(10_050_000),
	)
	require.NoError(t, err)
	env.writer.On("SubmitTransaction", mock.Anything, currencyToken, approveCalldata).
		Return(approveHash, nil)
	env.writer.On("WaitForReceipt", mock.Anything, approveHash).
		Return(successfulReceipt(approveHash), nil)
	env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
		Return(tradeHash, nil)
	env.writer.On("WaitForReceipt", mock.Anything, tradeHash).
		Return(successfulReceipt(tradeHash), nil)

	id, statusCh, err := env.executor.Execute(
		context.Background(), env.intent(domain.TradeBuy, "10"),
		application.ExecuteOptions{},
	)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	statuses := waitForTerminal(t, statusCh)
	last := statuses[len(statuses)-1]
	require.Equal(t, domain.PhaseSucceeded.String(), last.Phase)
	require.Equal(t, tradeHash.Hex(), last.TxHash)
	require.Equal(t, uint64(8), last.Nonce)
	require.Equal(t, domain.LocallySigned.String(), last.Issuer)

	execution, err := env.executor.GetExecution(id)
	require.NoError(t, err)
	require.Equal(t, []domain.ExecutionPhase{
		domain.PhaseIdle,
		domain.PhaseApprovingAllowance,
		domain.PhaseAwaitingSignature,
		domain.PhaseSubmittingTrade,
		domain.PhaseAwaitingConfirmation,
		domain.PhaseSucceeded,
	}, execution.History)
	require.Equal(t, approveHash.Hex(), execution.ApprovalTxHash)
	require.Equal(t, 1, execution.Attempts)
	require.Nil(t, execution.Error)

	auth := execution.Authorization
	require.NotNil(t, auth)
	require.Equal(t, uint64(8), auth.Nonce)
	require.Equal(t, "10050000", auth.Payload.Bound.String())
	require.Equal(t, "5000000000", auth.Payload.Amount.String())

	typed := settlement.Authorization{
		Domain: settlement.Domain{
			Name:              settlementDomain.Name,
			Version:           settlementDomain.Version,
			ChainID:           settlementDomain.ChainID,
			VerifyingContract: settlementContract,
		},
		IsBuy:    true,
		Trader:   env.trader(),
		AssetID:  1,
		Amount:   auth.Payload.Amount,
		Bound:    auth.Payload.Bound,
		Nonce:    8,
		Deadline: auth.Payload.Deadline,
	}
	require.NoError(t, typed.VerifySigner(auth.Signature))
	tradeCalldata, err := settlement.PackTrade(typed, auth.Signature)
	require.NoError(t, err)
	env.writer.AssertCalled(
		t, "SubmitTransaction", mock.Anything, settlementContract, tradeCalldata,
	)

	record := getRecord(t, env.ledger, auth)
	require.Equal(t, domain.AuthorizationBurned, record.Status)
	require.Equal(t, tradeHash.Hex(), record.TxHash)
}

func TestExecuteRejectedUpfront(t *testing.T) {
	t.Run("no_liquidity", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		env.reader.On("GetReserves", mock.Anything, uint64(1)).Return(ports.Reserves{
			Currency: big.NewInt(0), Asset: big.NewInt(500_000_000_000),
		}, nil)

		id, statusCh, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeBuy, "10"),
			application.ExecuteOptions{},
		)
		require.ErrorIs(t, err, domain.ErrNoLiquidity)
		require.Empty(t, id)
		require.Nil(t, statusCh)
		require.Empty(t, env.executor.ListExecutions())
		env.reader.AssertNotCalled(t, "NextNonce", mock.Anything, mock.Anything)
		env.writer.AssertNotCalled(
			t, "SubmitTransaction", mock.Anything, mock.Anything, mock.Anything,
		)
	})

	t.Run("high_impact", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		env.mockHealthyChain(8)

		_, _, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeBuy, "30"),
			application.ExecuteOptions{},
		)
		require.ErrorIs(t, err, domain.ErrHighPriceImpact)
		require.Empty(t, env.executor.ListExecutions())
		env.reader.AssertNotCalled(t, "NextNonce", mock.Anything, mock.Anything)
	})

	t.Run("deadline", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		env.mockHealthyChain(8)

		tests := []struct {
			name     string
			deadline time.Time
		}{
			{"past", time.Now().Add(-time.Minute)},
			{"too_far", time.Now().Add(2 * time.Hour)},
		}
		for _, tt := range tests {
			intent := env.intent(domain.TradeSell, "0.000000005")
			intent.Deadline = tt.deadline.Unix()
			_, _, err := env.executor.Execute(
				context.Background(), intent, application.ExecuteOptions{},
			)
			require.ErrorIs(t, err, domain.ErrInvalidDeadline, tt.name)
		}
		require.Empty(t, env.executor.ListExecutions())
	})
}

func TestExecuteHighImpactAcknowledged(t *testing.T) {
	env := newTestEnv(t, envOpts{})
	env.mockHealthyChain(8)
	env.mockAllowance(plenty)

	tradeHash := randomHash()
	env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
		Return(tradeHash, nil)
	env.writer.On("WaitForReceipt", mock.Anything, tradeHash).
		Return(successfulReceipt(tradeHash), nil)

	id, statusCh, err := env.executor.Execute(
		context.Background(), env.intent(domain.TradeBuy, "30"),
		application.ExecuteOptions{AcceptHighImpact: true},
	)
	require.NoError(t, err)

	statuses := waitForTerminal(t, statusCh)
	last := statuses[len(statuses)-1]
	require.Equal(t, domain.PhaseSucceeded.String(), last.Phase)
	require.Contains(t, last.Warnings, domain.KindHighPriceImpact.String())

	execution, err := env.executor.GetExecution(id)
	require.NoError(t, err)
	require.Equal(t, []domain.ExecutionPhase{
		domain.PhaseIdle,
		domain.PhaseAwaitingSignature,
		domain.PhaseSubmittingTrade,
		domain.PhaseAwaitingConfirmation,
		domain.PhaseSucceeded,
	}, execution.History)
	env.writer.AssertNotCalled(
		t, "SubmitTransaction", mock.Anything, currencyToken, mock.Anything,
	)
}

func TestExecuteWithSigningService(t *testing.T) {
	tests := []struct {
		name             string
		prepareErr       error
		confirmErr       error
		expectedNonce    uint64
		expectedIssuer   domain.Issuer
		expectReconciled bool
	}{
		{
			name:             "backend_issued",
			expectedNonce:    11,
			expectedIssuer:   domain.BackendIssued,
			expectReconciled: true,
		},
		{
			name:             "reconciliation_failed",
			confirmErr:       fmt.Errorf("%w: status 500", domain.ErrSignatureServiceUnavailable),
			expectedNonce:    11,
			expectedIssuer:   domain.BackendIssued,
			expectReconciled: true,
		},
		{
			name:           "fallback_to_local",
			prepareErr:     fmt.Errorf("%w: connection refused", domain.ErrSignatureServiceUnavailable),
			expectedNonce:  8,
			expectedIssuer: domain.LocallySigned,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, envOpts{withSigningService: true})
			env.mockHealthyChain(8)
			env.credentials.On("Credential", mock.Anything).Return("jwt", nil)

			if tt.prepareErr != nil {
				env.service.On("PrepareSignature", mock.Anything, "jwt", mock.Anything).
					Return(nil, tt.prepareErr)
			} else {
				env.service.On("PrepareSignature", mock.Anything, "jwt", mock.Anything).
					Return(&ports.PreparedSignature{
						Signature: backendSig, Nonce: 11, ExternalRef: "ref-1",
					}, nil)
			}

			tradeHash := randomHash()
			env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
				Return(tradeHash, nil)
			env.writer.On("WaitForReceipt", mock.Anything, tradeHash).
				Return(successfulReceipt(tradeHash), nil)
			env.service.On("Confirm", mock.Anything, "jwt", "ref-1", tradeHash).
				Return(tt.confirmErr)

			id, statusCh, err := env.executor.Execute(
				context.Background(), env.intent(domain.TradeSell, "0.000000005"),
				application.ExecuteOptions{},
			)
			require.NoError(t, err)

			statuses := waitForTerminal(t, statusCh)
			last := statuses[len(statuses)-1]
			require.Equal(t, domain.PhaseSucceeded.String(), last.Phase)
			require.Equal(t, tt.expectedNonce, last.Nonce)
			require.Equal(t, tt.expectedIssuer.String(), last.Issuer)

			execution, err := env.executor.GetExecution(id)
			require.NoError(t, err)
			require.Nil(t, execution.Error)
			require.Equal(
				t, tt.expectReconciled,
				containsPhase(execution.History, domain.PhaseReconciling),
			)

			if tt.expectReconciled {
				env.service.AssertCalled(t, "Confirm", mock.Anything, "jwt", "ref-1", tradeHash)
			} else {
				env.service.AssertNotCalled(
					t, "Confirm", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
				)
			}

			record := getRecord(t, env.ledger, execution.Authorization)
			require.Equal(t, domain.AuthorizationBurned, record.Status)
		})
	}
}

func TestExecuteFailures(t *testing.T) {
	t.Run("insufficient_balance", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		env.reader.On("GetReserves", mock.Anything, uint64(1)).Return(scenarioReserves, nil)
		env.reader.On("CurrencyBalance", mock.Anything, env.trader()).
			Return(big.NewInt(10_000_000), nil)

		id, statusCh, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeBuy, "10"),
			application.ExecuteOptions{},
		)
		require.NoError(t, err)

		last := lastStatus(waitForTerminal(t, statusCh))
		require.Equal(t, domain.PhaseFailed.String(), last.Phase)
		require.Equal(t, domain.KindInsufficientBalance.String(), last.ErrorKind)
		require.False(t, last.Retryable)
		env.reader.AssertNotCalled(t, "NextNonce", mock.Anything, mock.Anything)

		require.ErrorIs(t, env.executor.Retry(id), domain.ErrExecutionNotRetryable)
	})

	t.Run("insufficient_allowance_after_approval", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		env.mockHealthyChain(8)
		env.mockAllowance(big.NewInt(0))

		approveHash := randomHash()
		env.writer.On("SubmitTransaction", mock.Anything, currencyToken, mock.Anything).
			Return(approveHash, nil)
		env.writer.On("WaitForReceipt", mock.Anything, approveHash).
			Return(successfulReceipt(approveHash), nil)

		id, statusCh, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeBuy, "10"),
			application.ExecuteOptions{},
		)
		require.NoError(t, err)

		last := lastStatus(waitForTerminal(t, statusCh))
		require.Equal(t, domain.KindInsufficientAllowance.String(), last.ErrorKind)

		execution, err := env.executor.GetExecution(id)
		require.NoError(t, err)
		require.Equal(t, approveHash.Hex(), execution.ApprovalTxHash)
		require.Nil(t, execution.Authorization)
		env.writer.AssertNotCalled(
			t, "SubmitTransaction", mock.Anything, settlementContract, mock.Anything,
		)
	})

	t.Run("approval_not_submitted", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		env.mockHealthyChain(8)
		env.mockAllowance(big.NewInt(0))
		env.writer.On("SubmitTransaction", mock.Anything, currencyToken, mock.Anything).
			Return(common.Hash{}, errors.New("insufficient funds for gas"))

		_, statusCh, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeBuy, "10"),
			application.ExecuteOptions{},
		)
		require.NoError(t, err)

		last := lastStatus(waitForTerminal(t, statusCh))
		require.Equal(t, domain.KindInsufficientAllowance.String(), last.ErrorKind)
		require.False(t, last.Retryable)
	})

	t.Run("approval_rejected_by_user", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		env.mockHealthyChain(8)
		env.mockAllowance(big.NewInt(0))
		env.writer.On("SubmitTransaction", mock.Anything, currencyToken, mock.Anything).
			Return(common.Hash{}, domain.ErrUserRejected)

		_, statusCh, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeBuy, "10"),
			application.ExecuteOptions{},
		)
		require.NoError(t, err)

		last := lastStatus(waitForTerminal(t, statusCh))
		require.Equal(t, domain.KindUserRejected.String(), last.ErrorKind)
	})

	t.Run("on_chain_revert", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		env.mockHealthyChain(8)

		tradeHash := randomHash()
		env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
			Return(tradeHash, nil)
		env.writer.On("WaitForReceipt", mock.Anything, tradeHash).Return(&ports.Receipt{
			TxHash: tradeHash, BlockNumber: 10, RevertReason: "deadline expired",
		}, nil)

		id, statusCh, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeSell, "0.000000005"),
			application.ExecuteOptions{},
		)
		require.NoError(t, err)

		last := lastStatus(waitForTerminal(t, statusCh))
		require.Equal(t, domain.KindOnChainRevert.String(), last.ErrorKind)
		require.Equal(t, "deadline expired", last.Reason)
		require.False(t, last.Retryable)

		execution, err := env.executor.GetExecution(id)
		require.NoError(t, err)
		require.Equal(t, domain.KindOnChainRevert, execution.Error.Kind)

		record := getRecord(t, env.ledger, execution.Authorization)
		require.Equal(t, domain.AuthorizationReleased, record.Status)
	})

	t.Run("degraded_nonce", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		env.mockHealthyChain()
		env.reader.On("NextNonce", mock.Anything, env.trader()).
			Return(nil, errors.New("execution reverted"))
		env.reader.On("UsedNonce", mock.Anything, env.trader()).
			Return(nil, errors.New("execution reverted"))

		_, statusCh, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeSell, "0.000000005"),
			application.ExecuteOptions{},
		)
		require.NoError(t, err)

		last := lastStatus(waitForTerminal(t, statusCh))
		require.Equal(t, domain.KindDegradedNonceSource.String(), last.ErrorKind)
		require.Contains(t, last.Warnings, domain.KindDegradedNonceSource.String())
		env.writer.AssertNotCalled(
			t, "SubmitTransaction", mock.Anything, mock.Anything, mock.Anything,
		)
	})
}

func TestExecuteDegradedNonceAcknowledged(t *testing.T) {
	env := newTestEnv(t, envOpts{})
	env.mockHealthyChain()
	env.reader.On("NextNonce", mock.Anything, env.trader()).
		Return(nil, errors.New("execution reverted"))
	env.reader.On("UsedNonce", mock.Anything, env.trader()).
		Return(nil, errors.New("execution reverted"))

	tradeHash := randomHash()
	env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
		Return(tradeHash, nil)
	env.writer.On("WaitForReceipt", mock.Anything, tradeHash).
		Return(successfulReceipt(tradeHash), nil)

	_, statusCh, err := env.executor.Execute(
		context.Background(), env.intent(domain.TradeSell, "0.000000005"),
		application.ExecuteOptions{AcceptDegradedNonce: true},
	)
	require.NoError(t, err)

	last := lastStatus(waitForTerminal(t, statusCh))
	require.Equal(t, domain.PhaseSucceeded.String(), last.Phase)
	require.Equal(t, uint64(1), last.Nonce)
	require.Contains(t, last.Warnings, domain.KindDegradedNonceSource.String())
}

func TestRetryAfterSubmissionError(t *testing.T) {
	env := newTestEnv(t, envOpts{})
	env.mockHealthyChain(8)

	tradeHash := randomHash()
	env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
		Return(common.Hash{}, errors.New("nonce too low")).Once()
	env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
		Return(tradeHash, nil)
	env.writer.On("WaitForReceipt", mock.Anything, tradeHash).
		Return(successfulReceipt(tradeHash), nil)

	id, statusCh, err := env.executor.Execute(
		context.Background(), env.intent(domain.TradeSell, "0.000000005"),
		application.ExecuteOptions{},
	)
	require.NoError(t, err)

	last := lastStatus(waitForTerminal(t, statusCh))
	require.Equal(t, domain.KindSubmissionError.String(), last.ErrorKind)
	require.True(t, last.Retryable)

	failed, err := env.executor.GetExecution(id)
	require.NoError(t, err)
	record := getRecord(t, env.ledger, failed.Authorization)
	require.Equal(t, domain.AuthorizationReleased, record.Status)

	// The attempt is over as soon as the failure is published.
	require.NoError(t, env.executor.Retry(id))

	statusCh, unsubscribe, err := env.executor.Subscribe(id)
	require.NoError(t, err)
	defer unsubscribe()

	last = lastStatus(waitForTerminal(t, statusCh))
	require.Equal(t, domain.PhaseSucceeded.String(), last.Phase)

	execution, err := env.executor.GetExecution(id)
	require.NoError(t, err)
	require.Equal(t, 2, execution.Attempts)
	require.Equal(t, tradeHash.Hex(), execution.TxHash)
	require.Equal(t, []domain.ExecutionPhase{
		domain.PhaseIdle,
		domain.PhaseAwaitingSignature,
		domain.PhaseSubmittingTrade,
		domain.PhaseFailed,
		domain.PhaseAwaitingSignature,
		domain.PhaseSubmittingTrade,
		domain.PhaseAwaitingConfirmation,
		domain.PhaseSucceeded,
	}, execution.History)
	// The nonce is resolved again and the released one is reused.
	env.reader.AssertNumberOfCalls(t, "NextNonce", 2)
	require.Equal(t, uint64(8), execution.Authorization.Nonce)

	record = getRecord(t, env.ledger, execution.Authorization)
	require.Equal(t, domain.AuthorizationBurned, record.Status)
}

func TestConfirmationTimeoutHandsOffToReconciler(t *testing.T) {
	env := newTestEnv(t, envOpts{confirmationTimeout: 100 * time.Millisecond})
	env.mockHealthyChain(8)

	tradeHash := randomHash()
	env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
		Return(tradeHash, nil)
	env.writer.On("WaitForReceipt", mock.Anything, tradeHash).
		Run(blockUntilDone).Return(nil, context.DeadlineExceeded)

	id, statusCh, err := env.executor.Execute(
		context.Background(), env.intent(domain.TradeSell, "0.000000005"),
		application.ExecuteOptions{},
	)
	require.NoError(t, err)

	last := lastStatus(waitForTerminal(t, statusCh))
	require.Equal(t, domain.KindTimeout.String(), last.ErrorKind)
	require.Contains(t, last.Reason, "reconciliation")
	require.False(t, last.Retryable)

	execution, err := env.executor.GetExecution(id)
	require.NoError(t, err)
	record := getRecord(t, env.ledger, execution.Authorization)
	require.Equal(t, domain.AuthorizationSubmitted, record.Status)
	require.Equal(t, tradeHash.Hex(), record.TxHash)

	env.writer.On("GetReceipt", mock.Anything, tradeHash).Return(nil, nil).Once()
	require.NoError(t, env.reconciler.ReconcilePending(context.Background()))
	record = getRecord(t, env.ledger, execution.Authorization)
	require.Equal(t, domain.AuthorizationSubmitted, record.Status)

	env.writer.On("GetReceipt", mock.Anything, tradeHash).
		Return(successfulReceipt(tradeHash), nil)
	require.NoError(t, env.reconciler.ReconcilePending(context.Background()))
	record = getRecord(t, env.ledger, execution.Authorization)
	require.Equal(t, domain.AuthorizationBurned, record.Status)

	// Reconciliation never resubmits.
	env.writer.AssertNumberOfCalls(t, "SubmitTransaction", 1)
}

func TestCancel(t *testing.T) {
	t.Run("before_signing", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		env.reader.On("GetReserves", mock.Anything, uint64(1)).Return(scenarioReserves, nil)

		entered := make(chan struct{})
		env.reader.On("AssetBalance", mock.Anything, env.trader(), uint64(1)).
			Run(func(args mock.Arguments) {
				close(entered)
				blockUntilDone(args)
			}).
			Return(nil, context.Canceled)

		id, statusCh, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeSell, "0.000000005"),
			application.ExecuteOptions{},
		)
		require.NoError(t, err)

		<-entered
		require.NoError(t, env.executor.Cancel(id))

		last := lastStatus(waitForTerminal(t, statusCh))
		require.Equal(t, domain.KindCancelled.String(), last.ErrorKind)
		require.ErrorIs(t, env.executor.Cancel(id), domain.ErrExecutionTerminated)
		env.reader.AssertNotCalled(t, "NextNonce", mock.Anything, mock.Anything)
	})

	t.Run("while_submitting", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		env.mockHealthyChain(8)

		tradeHash := randomHash()
		submitting, release := make(chan struct{}), make(chan struct{})
		env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
			Run(func(mock.Arguments) {
				close(submitting)
				<-release
			}).
			Return(tradeHash, nil)
		env.writer.On("WaitForReceipt", mock.Anything, tradeHash).
			Return(successfulReceipt(tradeHash), nil)

		id, statusCh, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeSell, "0.000000005"),
			application.ExecuteOptions{},
		)
		require.NoError(t, err)

		<-submitting
		require.ErrorIs(t, env.executor.Cancel(id), application.ErrExecutionNotCancellable)
		close(release)

		last := lastStatus(waitForTerminal(t, statusCh))
		require.Equal(t, domain.PhaseSucceeded.String(), last.Phase)
	})

	t.Run("while_awaiting_confirmation", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		env.mockHealthyChain(8)

		tradeHash := randomHash()
		env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
			Return(tradeHash, nil)
		env.writer.On("WaitForReceipt", mock.Anything, tradeHash).
			Run(blockUntilDone).Return(nil, context.Canceled)

		id, statusCh, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeSell, "0.000000005"),
			application.ExecuteOptions{},
		)
		require.NoError(t, err)

		waitForPhase(t, env.executor, id, domain.PhaseAwaitingConfirmation)
		require.ErrorIs(t, env.executor.Acknowledge(id), application.ErrExecutionInProgress)
		require.NoError(t, env.executor.Cancel(id))

		last := lastStatus(waitForTerminal(t, statusCh))
		require.Equal(t, domain.KindCancelled.String(), last.ErrorKind)
		require.Contains(t, last.Reason, tradeHash.Hex())

		execution, err := env.executor.GetExecution(id)
		require.NoError(t, err)
		record := getRecord(t, env.ledger, execution.Authorization)
		require.Equal(t, domain.AuthorizationSubmitted, record.Status)
	})

	t.Run("unknown_execution", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		require.ErrorIs(t, env.executor.Cancel("missing"), application.ErrExecutionNotFound)
	})
}

func TestOneActiveExecutionPerSigner(t *testing.T) {
	t.Run("queued_runs_after_first", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		env.mockHealthyChain(8, 9)

		firstHash, secondHash := randomHash(), randomHash()
		release := make(chan struct{})
		env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
			Return(firstHash, nil).Once()
		env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
			Return(secondHash, nil)
		env.writer.On("WaitForReceipt", mock.Anything, firstHash).
			Run(func(mock.Arguments) { <-release }).
			Return(successfulReceipt(firstHash), nil)
		env.writer.On("WaitForReceipt", mock.Anything, secondHash).
			Return(successfulReceipt(secondHash), nil)

		firstID, firstCh, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeSell, "0.000000005"),
			application.ExecuteOptions{},
		)
		require.NoError(t, err)
		waitForPhase(t, env.executor, firstID, domain.PhaseAwaitingConfirmation)

		secondID, secondCh, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeSell, "0.000000001"),
			application.ExecuteOptions{},
		)
		require.NoError(t, err)

		time.Sleep(50 * time.Millisecond)
		second, err := env.executor.GetExecution(secondID)
		require.NoError(t, err)
		require.Equal(t, domain.PhaseIdle, second.Phase)

		close(release)

		require.Equal(t, domain.PhaseSucceeded.String(), lastStatus(waitForTerminal(t, firstCh)).Phase)
		last := lastStatus(waitForTerminal(t, secondCh))
		require.Equal(t, domain.PhaseSucceeded.String(), last.Phase)
		require.Equal(t, uint64(9), last.Nonce)
	})

	t.Run("cancel_queued", func(t *testing.T) {
		env := newTestEnv(t, envOpts{})
		env.mockHealthyChain(8)

		firstHash := randomHash()
		env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
			Return(firstHash, nil)
		env.writer.On("WaitForReceipt", mock.Anything, firstHash).
			Run(blockUntilDone).Return(nil, context.Canceled)

		firstID, firstCh, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeSell, "0.000000005"),
			application.ExecuteOptions{},
		)
		require.NoError(t, err)
		waitForPhase(t, env.executor, firstID, domain.PhaseAwaitingConfirmation)

		secondID, secondCh, err := env.executor.Execute(
			context.Background(), env.intent(domain.TradeSell, "0.000000001"),
			application.ExecuteOptions{},
		)
		require.NoError(t, err)
		require.NoError(t, env.executor.Cancel(secondID))

		last := lastStatus(waitForTerminal(t, secondCh))
		require.Equal(t, domain.KindCancelled.String(), last.ErrorKind)
		require.Nil(t, mustGetExecution(t, env.executor, secondID).Authorization)

		require.NoError(t, env.executor.Cancel(firstID))
		require.Equal(
			t, domain.KindCancelled.String(),
			lastStatus(waitForTerminal(t, firstCh)).ErrorKind,
		)
	})
}

func TestAcknowledge(t *testing.T) {
	env := newTestEnv(t, envOpts{})
	env.mockHealthyChain(8)

	tradeHash := randomHash()
	env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
		Return(tradeHash, nil)
	env.writer.On("WaitForReceipt", mock.Anything, tradeHash).
		Return(successfulReceipt(tradeHash), nil)

	id, statusCh, err := env.executor.Execute(
		context.Background(), env.intent(domain.TradeSell, "0.000000005"),
		application.ExecuteOptions{},
	)
	require.NoError(t, err)
	waitForTerminal(t, statusCh)

	require.NoError(t, env.executor.Acknowledge(id))

	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-statusCh:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)

	_, err = env.executor.GetExecution(id)
	require.ErrorIs(t, err, application.ErrExecutionNotFound)
	_, _, err = env.executor.Subscribe(id)
	require.ErrorIs(t, err, application.ErrExecutionNotFound)
	require.Empty(t, env.executor.ListExecutions())
}

func lastStatus(statuses []domain.ExecutionStatus) domain.ExecutionStatus {
	return statuses[len(statuses)-1]
}

func containsPhase(history []domain.ExecutionPhase, phase domain.ExecutionPhase) bool {
	for _, p := range history {
		if p == phase {
			return true
		}
	}
	return false
}

func mustGetExecution(
	t *testing.T, executor *application.ExecutorService, id string,
) domain.TradeExecution {
	t.Helper()
	execution, err := executor.GetExecution(id)
	require.NoError(t, err)
	return execution
}

func TestStartWithoutSubscription(t *testing.T) {
	env := newTestEnv(t, envOpts{})
	env.mockHealthyChain(8)

	tradeHash := randomHash()
	env.writer.On("SubmitTransaction", mock.Anything, settlementContract, mock.Anything).
		Return(tradeHash, nil)
	env.writer.On("WaitForReceipt", mock.Anything, tradeHash).
		Return(successfulReceipt(tradeHash), nil)

	id, err := env.executor.Start(
		context.Background(), env.intent(domain.TradeSell, "0.000000005"),
		application.ExecuteOptions{},
	)
	require.NoError(t, err)
	require.Zero(t, env.executor.SubscriberCount(id))

	statusCh, unsubscribe, err := env.executor.Subscribe(id)
	require.NoError(t, err)
	require.Equal(t, 1, env.executor.SubscriberCount(id))

	last := lastStatus(waitForTerminal(t, statusCh))
	require.Equal(t, domain.PhaseSucceeded.String(), last.Phase)

	unsubscribe()
	require.Zero(t, env.executor.SubscriberCount(id))
	require.NoError(t, env.executor.Acknowledge(id))
}
