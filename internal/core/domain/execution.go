package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ExecutionPhase represents the different phases a trade execution goes
// through.
type ExecutionPhase int

const (
	PhaseIdle ExecutionPhase = iota
	PhaseApprovingAllowance
	PhaseAwaitingSignature
	PhaseSubmittingTrade
	PhaseAwaitingConfirmation
	PhaseReconciling
	PhaseSucceeded
	PhaseFailed
)

var phaseToString = map[ExecutionPhase]string{
	PhaseIdle:                 "Idle",
	PhaseApprovingAllowance:   "ApprovingAllowance",
	PhaseAwaitingSignature:    "AwaitingSignature",
	PhaseSubmittingTrade:      "SubmittingTrade",
	PhaseAwaitingConfirmation: "AwaitingConfirmation",
	PhaseReconciling:          "Reconciling",
	PhaseSucceeded:            "Succeeded",
	PhaseFailed:               "Failed",
}

func (p ExecutionPhase) String() string {
	if s, ok := phaseToString[p]; ok {
		return s
	}
	return "Unknown"
}

// IsTerminal returns whether no further transition is allowed, apart from
// an explicit retry.
func (p ExecutionPhase) IsTerminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// TradeExecution is the state machine instance of one trade attempt. It is
// owned by the executor: no other component changes its phase.
type TradeExecution struct {
	ID             string
	Intent         TradeIntent
	Quote          *PoolQuote
	Authorization  *SignedAuthorization
	Phase          ExecutionPhase
	TxHash         string
	ApprovalTxHash string
	Error          *ExecutionError
	Warnings       []ErrorKind
	History        []ExecutionPhase
	Attempts       int
	CreatedAt      int64
	UpdatedAt      int64
}

// NewTradeExecution returns an execution with a new id in Idle phase.
func NewTradeExecution(intent TradeIntent, quote *PoolQuote) *TradeExecution {
	now := time.Now().Unix()
	return &TradeExecution{
		ID:        uuid.New().String(),
		Intent:    intent,
		Quote:     quote,
		Phase:     PhaseIdle,
		History:   []ExecutionPhase{PhaseIdle},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ApproveAllowance brings an Idle buy execution to the ApprovingAllowance
// phase.
func (e *TradeExecution) ApproveAllowance() error {
	if e.Phase != PhaseIdle {
		return ErrExecutionMustBeIdle
	}
	if !e.Intent.IsBuy() {
		return ErrAllowanceNotRequired
	}
	e.moveTo(PhaseApprovingAllowance)
	return nil
}

// SetApprovalTxHash records the hash of the allowance approval transaction.
func (e *TradeExecution) SetApprovalTxHash(hash common.Hash) {
	e.ApprovalTxHash = hash.Hex()
}

// AwaitSignature brings the execution from Idle, or ApprovingAllowance, to
// the AwaitingSignature phase.
func (e *TradeExecution) AwaitSignature() error {
	if e.Phase != PhaseIdle && e.Phase != PhaseApprovingAllowance {
		if e.Phase.IsTerminal() {
			return ErrExecutionTerminated
		}
		return ErrExecutionMustBeIdle
	}
	e.moveTo(PhaseAwaitingSignature)
	return nil
}

// Submit binds the given authorization to the execution and brings it to the
// SubmittingTrade phase.
func (e *TradeExecution) Submit(auth *SignedAuthorization) error {
	if e.Phase != PhaseAwaitingSignature {
		return ErrExecutionMustAwaitSignature
	}
	if auth == nil || len(auth.Signature) <= 0 {
		return ErrNullAuthorization
	}
	if auth.Nonce != auth.Payload.Nonce {
		return ErrAuthorizationNonceMismatch
	}

	e.Authorization = auth
	e.Attempts++
	e.moveTo(PhaseSubmittingTrade)
	return nil
}

// AwaitConfirmation records the hash of the submitted trade transaction and
// brings the execution to the AwaitingConfirmation phase.
func (e *TradeExecution) AwaitConfirmation(txHash common.Hash) error {
	if e.Phase != PhaseSubmittingTrade {
		return ErrExecutionMustBeSubmitting
	}
	e.TxHash = txHash.Hex()
	e.moveTo(PhaseAwaitingConfirmation)
	return nil
}

// Reconcile brings a confirmed execution to the Reconciling phase. Only
// backend issued authorizations are reconciled.
func (e *TradeExecution) Reconcile() error {
	if e.Phase != PhaseAwaitingConfirmation {
		return ErrExecutionMustAwaitConfirmation
	}
	if !e.Authorization.HasExternalRef() {
		return ErrReconciliationNotRequired
	}
	e.moveTo(PhaseReconciling)
	return nil
}

// Succeed brings the execution to the Succeeded phase once the trade is
// confirmed and, if required, reconciliation has been attempted.
func (e *TradeExecution) Succeed() error {
	switch e.Phase {
	case PhaseReconciling:
	case PhaseAwaitingConfirmation:
		if e.Authorization.HasExternalRef() {
			return ErrReconciliationRequired
		}
	default:
		if e.Phase.IsTerminal() {
			return ErrExecutionTerminated
		}
		return ErrExecutionMustAwaitConfirmation
	}
	e.moveTo(PhaseSucceeded)
	return nil
}

// Fail marks the execution as Failed with the given error. It has no effect
// if the execution is already terminated.
func (e *TradeExecution) Fail(err error, reason string) {
	if e.Phase.IsTerminal() {
		return
	}
	e.Error = NewExecutionError(err, reason)
	e.moveTo(PhaseFailed)
}

// Retry brings an execution that failed at submission back to the
// AwaitingSignature phase. The previous authorization is discarded: the
// nonce must be resolved again and a new authorization signed.
func (e *TradeExecution) Retry() error {
	if !e.IsRetryable() {
		return ErrExecutionNotRetryable
	}
	e.Authorization = nil
	e.TxHash = ""
	e.Error = nil
	e.moveTo(PhaseAwaitingSignature)
	return nil
}

// AddWarning adds the given kind to those the trader has been warned about.
func (e *TradeExecution) AddWarning(kind ErrorKind) {
	for _, w := range e.Warnings {
		if w == kind {
			return
		}
	}
	e.Warnings = append(e.Warnings, kind)
}

// IsRetryable returns whether the execution failed at submission.
func (e *TradeExecution) IsRetryable() bool {
	return e.Phase == PhaseFailed &&
		e.Error != nil && e.Error.Kind == KindSubmissionError
}

// IsTerminal ...
func (e *TradeExecution) IsTerminal() bool {
	return e.Phase.IsTerminal()
}

// IsSucceeded ...
func (e *TradeExecution) IsSucceeded() bool {
	return e.Phase == PhaseSucceeded
}

// IsFailed ...
func (e *TradeExecution) IsFailed() bool {
	return e.Phase == PhaseFailed
}

// IsCancellable returns whether the execution can still be cancelled, that
// is no trade transaction has been broadcasted yet.
func (e *TradeExecution) IsCancellable() bool {
	return e.Phase < PhaseSubmittingTrade
}

// Snapshot returns a copy of the execution that can be safely read while the
// executor keeps on mutating the original.
func (e *TradeExecution) Snapshot() TradeExecution {
	cpy := *e
	cpy.Warnings = append([]ErrorKind(nil), e.Warnings...)
	cpy.History = append([]ExecutionPhase(nil), e.History...)
	if e.Error != nil {
		errCpy := *e.Error
		cpy.Error = &errCpy
	}
	return cpy
}

func (e *TradeExecution) moveTo(phase ExecutionPhase) {
	e.Phase = phase
	e.History = append(e.History, phase)
	e.UpdatedAt = time.Now().Unix()
}
