package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLiquidity is returned when any of the pool reserves is zero.
	ErrNoLiquidity = errors.New("pool has no liquidity")
	// ErrInvalidAmount is returned for zero or negative trade amounts.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	// ErrInvalidSlippage ...
	ErrInvalidSlippage = fmt.Errorf(
		"slippage must be in range [%d, %d] bps", MinSlippageBps, MaxSlippageBps,
	)
	// ErrInvalidDeadline ...
	ErrInvalidDeadline = errors.New("deadline must be in the near future")
	// ErrInvalidDirection ...
	ErrInvalidDirection = errors.New("trade direction must be either buy or sell")
	// ErrInvalidTrader ...
	ErrInvalidTrader = errors.New("trader address must not be null")
	// ErrAmountTooBig is returned when the trade would drain the pool.
	ErrAmountTooBig = errors.New("amount exceeds the pool reserves")
	// ErrHighPriceImpact warns that the quote exceeds the price impact
	// threshold and requires an explicit acknowledgment.
	ErrHighPriceImpact = errors.New("price impact exceeds the configured threshold")
	// ErrReadFailed wraps transport failures of the chain reader.
	ErrReadFailed = errors.New("failed to read chain state")

	// ErrNonceRace is returned when a nonce is already bound to a live
	// authorization and could not be replaced by a fresh read.
	ErrNonceRace = errors.New("nonce is already bound to another authorization")
	// ErrDegradedNonceSource warns that the nonce could not be read from the
	// settlement contract and a fallback value is being used.
	ErrDegradedNonceSource = errors.New("nonce could not be read from the settlement contract")

	// ErrSignatureServiceUnavailable is recovered by falling back to local
	// signing.
	ErrSignatureServiceUnavailable = errors.New("signing service is unavailable")
	// ErrInvalidSignatureShape ...
	ErrInvalidSignatureShape = errors.New("signature has an invalid shape")
	// ErrUserRejected is returned when the wallet owner declines a request.
	ErrUserRejected = errors.New("request rejected by the user")

	// ErrInsufficientAllowance ...
	ErrInsufficientAllowance = errors.New("allowance is not enough to cover the trade bound")
	// ErrInsufficientBalance ...
	ErrInsufficientBalance = errors.New("balance is not enough to cover the trade")
	// ErrSubmission wraps failures to broadcast a transaction.
	ErrSubmission = errors.New("failed to submit transaction")
	// ErrOnChainRevert ...
	ErrOnChainRevert = errors.New("transaction reverted")
	// ErrTimeout is returned when a confirmation wait exceeds its bound.
	ErrTimeout = errors.New("timed out waiting for confirmation")
	// ErrReconciliationFailed is only logged, never surfaced as a failure.
	ErrReconciliationFailed = errors.New("failed to reconcile trade with the signing service")
	// ErrCancelled ...
	ErrCancelled = errors.New("execution cancelled")
	// ErrDeadlineExpired ...
	ErrDeadlineExpired = errors.New("trade deadline has expired")

	// ErrExecutionMustBeIdle ...
	ErrExecutionMustBeIdle = errors.New("execution must be idle")
	// ErrExecutionMustAwaitSignature ...
	ErrExecutionMustAwaitSignature = errors.New("execution must be awaiting a signature")
	// ErrExecutionMustBeSubmitting ...
	ErrExecutionMustBeSubmitting = errors.New("execution must be submitting the trade")
	// ErrExecutionMustAwaitConfirmation ...
	ErrExecutionMustAwaitConfirmation = errors.New("execution must be awaiting confirmation")
	// ErrExecutionTerminated ...
	ErrExecutionTerminated = errors.New("execution is already terminated")
	// ErrExecutionNotRetryable ...
	ErrExecutionNotRetryable = errors.New("only executions failed at submission can be retried")
	// ErrAllowanceNotRequired ...
	ErrAllowanceNotRequired = errors.New("allowance approval is required only for buy trades")
	// ErrReconciliationNotRequired ...
	ErrReconciliationNotRequired = errors.New("reconciliation requires a backend issued authorization")
	// ErrReconciliationRequired ...
	ErrReconciliationRequired = errors.New("backend issued authorizations must be reconciled first")
	// ErrNullAuthorization ...
	ErrNullAuthorization = errors.New("authorization must not be null")
	// ErrAuthorizationNonceMismatch ...
	ErrAuthorizationNonceMismatch = errors.New("authorization nonce does not match its payload")

	// ErrAuthorizationNotFound ...
	ErrAuthorizationNotFound = errors.New("authorization not found")
)

// ErrorKind classifies the errors a trade execution can be failed or warned
// with.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNoLiquidity
	KindInvalidAmount
	KindInvalidSlippage
	KindHighPriceImpact
	KindNonceRace
	KindDegradedNonceSource
	KindSignatureServiceUnavailable
	KindInvalidSignatureShape
	KindUserRejected
	KindInsufficientAllowance
	KindInsufficientBalance
	KindSubmissionError
	KindOnChainRevert
	KindTimeout
	KindReconciliationFailed
	KindCancelled
	KindDeadlineExpired
)

var kindToString = map[ErrorKind]string{
	KindUnknown:                     "Internal",
	KindNoLiquidity:                 "NoLiquidity",
	KindInvalidAmount:               "InvalidAmount",
	KindInvalidSlippage:             "InvalidSlippage",
	KindHighPriceImpact:             "HighPriceImpact",
	KindNonceRace:                   "NonceRace",
	KindDegradedNonceSource:         "DegradedNonceSource",
	KindSignatureServiceUnavailable: "SignatureServiceUnavailable",
	KindInvalidSignatureShape:       "InvalidSignatureShape",
	KindUserRejected:                "UserRejected",
	KindInsufficientAllowance:       "InsufficientAllowance",
	KindInsufficientBalance:         "InsufficientBalance",
	KindSubmissionError:             "SubmissionError",
	KindOnChainRevert:               "OnChainRevert",
	KindTimeout:                     "Timeout",
	KindReconciliationFailed:        "ReconciliationFailed",
	KindCancelled:                   "Cancelled",
	KindDeadlineExpired:             "DeadlineExpired",
}

func (k ErrorKind) String() string {
	if s, ok := kindToString[k]; ok {
		return s
	}
	return kindToString[KindUnknown]
}

// order matters: the first matching sentinel wins.
var errToKind = []struct {
	err  error
	kind ErrorKind
}{
	{ErrNoLiquidity, KindNoLiquidity},
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrAmountTooBig, KindInvalidAmount},
	{ErrInvalidSlippage, KindInvalidSlippage},
	{ErrHighPriceImpact, KindHighPriceImpact},
	{ErrNonceRace, KindNonceRace},
	{ErrDegradedNonceSource, KindDegradedNonceSource},
	{ErrSignatureServiceUnavailable, KindSignatureServiceUnavailable},
	{ErrInvalidSignatureShape, KindInvalidSignatureShape},
	{ErrUserRejected, KindUserRejected},
	{ErrInsufficientAllowance, KindInsufficientAllowance},
	{ErrInsufficientBalance, KindInsufficientBalance},
	{ErrSubmission, KindSubmissionError},
	{ErrOnChainRevert, KindOnChainRevert},
	{ErrTimeout, KindTimeout},
	{ErrReconciliationFailed, KindReconciliationFailed},
	{ErrCancelled, KindCancelled},
	{ErrDeadlineExpired, KindDeadlineExpired},
	{ErrInvalidDeadline, KindDeadlineExpired},
}

// KindOf returns the kind of the given error by matching it against the
// sentinel errors of the package.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	for _, e := range errToKind {
		if errors.Is(err, e.err) {
			return e.kind
		}
	}
	return KindUnknown
}

// ExecutionError is the user facing failure of a trade execution. It always
// carries its kind and, where available, the on-chain revert reason.
type ExecutionError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

// NewExecutionError classifies err and wraps it together with the optional
// reason.
func NewExecutionError(err error, reason string) *ExecutionError {
	return &ExecutionError{
		Kind:   KindOf(err),
		Reason: reason,
		Err:    err,
	}
}

func (e *ExecutionError) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
