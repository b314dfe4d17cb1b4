package httpinterface

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/tdex-network/tdex-authtrade/internal/core/application"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
)

// TradeRequest is the body of both the quote and the execute requests.
type TradeRequest struct {
	AssetID     uint64 `json:"asset_id"`
	Direction   string `json:"direction"`
	Trader      string `json:"trader,omitempty"`
	Amount      string `json:"amount"`
	SlippageBps uint32 `json:"slippage_bps"`
	// Deadline is a unix timestamp, if zero it defaults to now plus the
	// service default deadline.
	Deadline            int64 `json:"deadline,omitempty"`
	AcceptHighImpact    bool  `json:"accept_high_impact,omitempty"`
	AcceptDegradedNonce bool  `json:"accept_degraded_nonce,omitempty"`
}

func (r TradeRequest) parse(
	defaultTrader common.Address, defaultDeadline time.Duration,
) (domain.TradeIntent, application.ExecuteOptions, error) {
	direction, ok := domain.TradeDirectionFromString(r.Direction)
	if !ok {
		return domain.TradeIntent{}, application.ExecuteOptions{},
			domain.ErrInvalidDirection
	}

	trader := defaultTrader
	if r.Trader != "" {
		if !common.IsHexAddress(r.Trader) {
			return domain.TradeIntent{}, application.ExecuteOptions{},
				fmt.Errorf("%w: %s", domain.ErrInvalidTrader, r.Trader)
		}
		trader = common.HexToAddress(r.Trader)
	}

	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return domain.TradeIntent{}, application.ExecuteOptions{},
			fmt.Errorf("%w: %s", domain.ErrInvalidAmount, err)
	}

	deadline := r.Deadline
	if deadline == 0 {
		deadline = time.Now().Add(defaultDeadline).Unix()
	}

	intent, err := domain.NewTradeIntent(
		r.AssetID, direction, trader, amount, r.SlippageBps, deadline,
	)
	if err != nil {
		return domain.TradeIntent{}, application.ExecuteOptions{}, err
	}
	return intent, application.ExecuteOptions{
		AcceptHighImpact:    r.AcceptHighImpact,
		AcceptDegradedNonce: r.AcceptDegradedNonce,
	}, nil
}

// QuoteReply ...
type QuoteReply struct {
	AssetID                 uint64   `json:"asset_id"`
	Direction               string   `json:"direction"`
	UnitPrice               string   `json:"unit_price"`
	InputAmount             string   `json:"input_amount"`
	InputBaseUnits          string   `json:"input_base_units"`
	ExpectedOutput          string   `json:"expected_output"`
	ExpectedOutputBaseUnits string   `json:"expected_output_base_units"`
	Bound                   string   `json:"bound"`
	BoundBaseUnits          string   `json:"bound_base_units"`
	PriceImpactBps          int64    `json:"price_impact_bps"`
	Warnings                []string `json:"warnings,omitempty"`
	QuotedAt                int64    `json:"quoted_at"`
}

func toQuoteReply(q *domain.PoolQuote) QuoteReply {
	warnings := make([]string, 0)
	for _, w := range q.Warnings() {
		warnings = append(warnings, w.String())
	}
	return QuoteReply{
		AssetID:                 q.AssetID,
		Direction:               q.Direction.String(),
		UnitPrice:               q.UnitPrice.String(),
		InputAmount:             q.InputAmount.String(),
		InputBaseUnits:          q.InputBaseUnits.String(),
		ExpectedOutput:          q.ExpectedOutput.String(),
		ExpectedOutputBaseUnits: q.ExpectedOutputBaseUnits.String(),
		Bound:                   q.Bound.String(),
		BoundBaseUnits:          q.BoundBaseUnits.String(),
		PriceImpactBps:          q.PriceImpactBps,
		Warnings:                warnings,
		QuotedAt:                q.QuotedAt,
	}
}

// NonceReply ...
type NonceReply struct {
	Trader   string `json:"trader"`
	Nonce    uint64 `json:"nonce"`
	Source   string `json:"source"`
	Degraded bool   `json:"degraded,omitempty"`
}

// ExecuteReply ...
type ExecuteReply struct {
	ExecutionID string `json:"execution_id"`
}

// ExecutionReply is the full view of a trade execution.
type ExecutionReply struct {
	ID             string      `json:"id"`
	Phase          string      `json:"phase"`
	History        []string    `json:"history"`
	AssetID        uint64      `json:"asset_id"`
	Direction      string      `json:"direction"`
	Trader         string      `json:"trader"`
	Amount         string      `json:"amount"`
	SlippageBps    uint32      `json:"slippage_bps"`
	Deadline       int64       `json:"deadline"`
	Quote          *QuoteReply `json:"quote,omitempty"`
	Nonce          uint64      `json:"nonce,omitempty"`
	Issuer         string      `json:"issuer,omitempty"`
	ExternalRef    string      `json:"external_ref,omitempty"`
	TxHash         string      `json:"tx_hash,omitempty"`
	ApprovalTxHash string      `json:"approval_tx_hash,omitempty"`
	ErrorKind      string      `json:"error_kind,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	Warnings       []string    `json:"warnings,omitempty"`
	Retryable      bool        `json:"retryable"`
	Attempts       int         `json:"attempts"`
	CreatedAt      int64       `json:"created_at"`
	UpdatedAt      int64       `json:"updated_at"`
}

func toExecutionReply(e domain.TradeExecution) ExecutionReply {
	history := make([]string, 0, len(e.History))
	for _, p := range e.History {
		history = append(history, p.String())
	}
	warnings := make([]string, 0, len(e.Warnings))
	for _, w := range e.Warnings {
		warnings = append(warnings, w.String())
	}

	reply := ExecutionReply{
		ID:             e.ID,
		Phase:          e.Phase.String(),
		History:        history,
		AssetID:        e.Intent.AssetID,
		Direction:      e.Intent.Direction.String(),
		Trader:         e.Intent.Trader.Hex(),
		Amount:         e.Intent.InputAmount.String(),
		SlippageBps:    e.Intent.SlippageBps,
		Deadline:       e.Intent.Deadline,
		TxHash:         e.TxHash,
		ApprovalTxHash: e.ApprovalTxHash,
		Warnings:       warnings,
		Retryable:      e.IsRetryable(),
		Attempts:       e.Attempts,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
	if e.Quote != nil {
		q := toQuoteReply(e.Quote)
		reply.Quote = &q
	}
	if e.Authorization != nil {
		reply.Nonce = e.Authorization.Nonce
		reply.Issuer = e.Authorization.Issuer.String()
		reply.ExternalRef = e.Authorization.ExternalRef
	}
	if e.Error != nil {
		reply.ErrorKind = e.Error.Kind.String()
		reply.Reason = e.Error.Reason
		if reply.Reason == "" && e.Error.Err != nil {
			reply.Reason = e.Error.Err.Error()
		}
	}
	return reply
}

// ListExecutionsReply ...
type ListExecutionsReply struct {
	Executions []ExecutionReply `json:"executions"`
}

// ErrorReply is the body of every failed request.
type ErrorReply struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

var errMalformedBody = errors.New("malformed request body")
