package handlers

import (
	"context"
	"errors"
	"net/http"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/guard"
	"solana-intent-settlement/internal/httputil"
	"solana-intent-settlement/internal/program"
	"solana-intent-settlement/internal/settlement"
	"solana-intent-settlement/internal/storage"
)

var errHistoryDisabled = errors.New("analytics history is not configured")

// statusOf maps an error to its HTTP status and error body.
func statusOf(err error) (int, httputil.APIError) {
	if pe, ok := domain.AsError(err); ok {
		status := http.StatusBadRequest
		switch pe {
		case domain.ErrAlreadyRevealed, domain.ErrDuplicateIntent:
			status = http.StatusConflict
		case domain.ErrSwapExecutionFailed:
			status = http.StatusBadGateway
		}
		return status, httputil.APIError{Code: uint32(pe.Code), Name: pe.Name, Message: err.Error()}
	}

	switch {
	case errors.Is(err, settlement.ErrCommitmentNotFound),
		errors.Is(err, settlement.ErrAccountNotFound),
		errors.Is(err, settlement.ErrFeePoolsNotInitialized),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, httputil.APIError{Name: "not_found", Message: err.Error()}
	case errors.Is(err, settlement.ErrFeePoolsAlreadyExist):
		return http.StatusConflict, httputil.APIError{Name: "conflict", Message: err.Error()}
	case errors.Is(err, guard.ErrRevealInFlight):
		return http.StatusConflict, httputil.APIError{Name: "reveal_in_flight", Message: err.Error()}
	case errors.Is(err, program.ErrTransactionReplayed):
		return http.StatusConflict, httputil.APIError{Name: "duplicate_transaction", Message: err.Error()}
	case errors.Is(err, program.ErrTransactionExpired),
		errors.Is(err, program.ErrTransactionLifetime):
		return http.StatusBadRequest, httputil.APIError{Name: "transaction_expired", Message: err.Error()}
	case errors.Is(err, program.ErrInvalidInstruction),
		errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest, httputil.APIError{Name: "bad_request", Message: err.Error()}
	case errors.Is(err, errHistoryDisabled):
		return http.StatusNotImplemented, httputil.APIError{Name: "not_implemented", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, httputil.APIError{Name: "timeout", Message: "request timed out"}
	}
	return http.StatusInternalServerError, httputil.APIError{Name: "internal", Message: "internal error"}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.Log.Printf("ERROR: %s %s: %v", r.Method, r.URL.Path, err)
	}
	if werr := httputil.Error(w, r, status, body); werr != nil {
		h.Log.Printf("write error response: %v", werr)
	}
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	_ = httputil.Error(w, r, http.StatusBadRequest, httputil.APIError{Name: "bad_request", Message: msg})
}
