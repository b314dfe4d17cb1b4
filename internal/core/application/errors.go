package application

import "errors"

var (
	// ErrExecutionNotFound ...
	ErrExecutionNotFound = errors.New("execution not found")
	// ErrExecutionInProgress is returned when acknowledging, or retrying, an
	// execution that is still running.
	ErrExecutionInProgress = errors.New("execution is still in progress")
	// ErrExecutionNotCancellable is returned when the trade transaction is
	// being broadcasted or reconciled.
	ErrExecutionNotCancellable = errors.New("execution can no longer be cancelled")
	// ErrMissingSettlementContract ...
	ErrMissingSettlementContract = errors.New("missing settlement contract address")
	// ErrMissingCurrencyToken ...
	ErrMissingCurrencyToken = errors.New("missing currency token address")
)
