package httpinterface

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-authtrade/internal/core/application"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
)

var errToStatus = []struct {
	err    error
	status int
}{
	{errMalformedBody, http.StatusBadRequest},
	{domain.ErrInvalidDirection, http.StatusBadRequest},
	{domain.ErrInvalidTrader, http.StatusBadRequest},
	{domain.ErrInvalidAmount, http.StatusBadRequest},
	{domain.ErrInvalidSlippage, http.StatusBadRequest},
	{domain.ErrInvalidDeadline, http.StatusBadRequest},
	{domain.ErrAmountTooBig, http.StatusUnprocessableEntity},
	{domain.ErrNoLiquidity, http.StatusUnprocessableEntity},
	{domain.ErrHighPriceImpact, http.StatusPreconditionFailed},
	{domain.ErrReadFailed, http.StatusBadGateway},
	{application.ErrExecutionNotFound, http.StatusNotFound},
	{application.ErrExecutionInProgress, http.StatusConflict},
	{application.ErrExecutionNotCancellable, http.StatusConflict},
	{domain.ErrExecutionTerminated, http.StatusConflict},
	{domain.ErrExecutionNotRetryable, http.StatusConflict},
}

func httpStatus(err error) int {
	for _, e := range errToStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Warn("request failed")
	}

	reply := ErrorReply{Error: err.Error()}
	if kind := domain.KindOf(err); kind != domain.KindUnknown {
		reply.Kind = kind.String()
	}
	writeJSON(w, status, reply)
}
