package httpinterface

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/tdex-network/tdex-authtrade/internal/core/application"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
)

// ExecutorService is what the handlers need from the trade executor.
type ExecutorService interface {
	Quote(ctx context.Context, intent domain.TradeIntent) (*domain.PoolQuote, error)
	Nonce(ctx context.Context, trader common.Address) (domain.NonceResolution, error)
	Start(
		ctx context.Context, intent domain.TradeIntent, opts application.ExecuteOptions,
	) (string, error)
	GetExecution(id string) (domain.TradeExecution, error)
	ListExecutions() []domain.TradeExecution
	Subscribe(id string) (<-chan domain.ExecutionStatus, func(), error)
	Cancel(id string) error
	Retry(id string) error
	Acknowledge(id string) error
}

type handler struct {
	executor        ExecutorService
	trader          common.Address
	defaultDeadline time.Duration
}

func (h *handler) quote(w http.ResponseWriter, r *http.Request) {
	intent, _, err := h.parseTradeRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	quote, err := h.executor.Quote(r.Context(), intent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteReply(quote))
}

func (h *handler) nonce(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !common.IsHexAddress(address) {
		writeError(w, fmt.Errorf("%w: %s", domain.ErrInvalidTrader, address))
		return
	}
	trader := common.HexToAddress(address)

	nonce, err := h.executor.Nonce(r.Context(), trader)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NonceReply{
		Trader:   trader.Hex(),
		Nonce:    nonce.Value,
		Source:   nonce.Source.String(),
		Degraded: nonce.Degraded,
	})
}

func (h *handler) execute(w http.ResponseWriter, r *http.Request) {
	intent, opts, err := h.parseTradeRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// The execution outlives the request.
	id, err := h.executor.Start(context.Background(), intent, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ExecuteReply{ExecutionID: id})
}

func (h *handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	executions := h.executor.ListExecutions()
	reply := ListExecutionsReply{
		Executions: make([]ExecutionReply, 0, len(executions)),
	}
	for _, e := range executions {
		reply.Executions = append(reply.Executions, toExecutionReply(e))
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *handler) getExecution(w http.ResponseWriter, r *http.Request) {
	execution, err := h.executor.GetExecution(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutionReply(execution))
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.executor.Cancel(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) retry(w http.ResponseWriter, r *http.Request) {
	if err := h.executor.Retry(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	if err := h.executor.Acknowledge(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) parseTradeRequest(
	r *http.Request,
) (domain.TradeIntent, application.ExecuteOptions, error) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return domain.TradeIntent{}, application.ExecuteOptions{},
			fmt.Errorf("%w: %s", errMalformedBody, err)
	}
	return req.parse(h.trader, h.defaultDeadline)
}
