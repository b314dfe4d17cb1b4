package domain

import "time"

// ExecutionStatus is the view of an execution streamed to the UI layer on
// every phase transition.
type ExecutionStatus struct {
	ExecutionID string   `json:"execution_id"`
	Phase       string   `json:"phase"`
	Message     string   `json:"message"`
	TxHash      string   `json:"tx_hash,omitempty"`
	Nonce       uint64   `json:"nonce,omitempty"`
	Issuer      string   `json:"issuer,omitempty"`
	ErrorKind   string   `json:"error_kind,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Retryable   bool     `json:"retryable,omitempty"`
	Terminal    bool     `json:"terminal"`
	Timestamp   int64    `json:"timestamp"`
}

var phaseMessages = map[ExecutionPhase]string{
	PhaseIdle:                 "trade confirmed, preparing execution",
	PhaseApprovingAllowance:   "approving currency allowance for the settlement contract",
	PhaseAwaitingSignature:    "waiting for the trade authorization to be signed",
	PhaseSubmittingTrade:      "submitting the authorized trade",
	PhaseAwaitingConfirmation: "waiting for the trade to be confirmed",
	PhaseReconciling:          "reconciling the trade with the signing service",
	PhaseSucceeded:            "trade executed",
	PhaseFailed:               "trade failed",
}

// Status returns the current status of the execution. An empty message is
// replaced by the default one for the current phase.
func (e *TradeExecution) Status(message string) ExecutionStatus {
	if message == "" {
		message = phaseMessages[e.Phase]
	}
	status := ExecutionStatus{
		ExecutionID: e.ID,
		Phase:       e.Phase.String(),
		Message:     message,
		TxHash:      e.TxHash,
		Retryable:   e.IsRetryable(),
		Terminal:    e.IsTerminal(),
		Timestamp:   time.Now().Unix(),
	}
	if e.Authorization != nil {
		status.Nonce = e.Authorization.Nonce
		status.Issuer = e.Authorization.Issuer.String()
	}
	if e.Error != nil {
		status.ErrorKind = e.Error.Kind.String()
		status.Reason = e.Error.Reason
		if status.Reason == "" && e.Error.Err != nil {
			status.Reason = e.Error.Err.Error()
		}
	}
	for _, w := range e.Warnings {
		status.Warnings = append(status.Warnings, w.String())
	}
	return status
}
