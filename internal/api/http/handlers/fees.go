package handlers

import (
	"net/http"

	"solana-intent-settlement/internal/httputil"
	"solana-intent-settlement/internal/settlement"
	"solana-intent-settlement/internal/solana"
)

type InitializeFeePoolsRequest struct {
	Mint solana.PublicKey `json:"mint"`
}

func (h *Handler) InitializeFeePools(w http.ResponseWriter, r *http.Request) {
	var req InitializeFeePoolsRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	if req.Mint.IsZero() {
		h.badRequest(w, r, "mint is required")
		return
	}

	ev, err := h.Service.InitializeFeePools(r.Context(), req.Mint)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, ev)
}

func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	var req settlement.SettleRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	dist, err := h.Service.Settle(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, dist)
}

func (h *Handler) FeePools(w http.ResponseWriter, r *http.Request) {
	mint, ok := h.pathKey(w, r, "mint")
	if !ok {
		return
	}

	view, err := h.Service.FeePools(r.Context(), mint)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, view)
}

// FeeTotals sums the recorded distributions of a mint.
func (h *Handler) FeeTotals(w http.ResponseWriter, r *http.Request) {
	mint, ok := h.pathKey(w, r, "mint")
	if !ok {
		return
	}
	if h.History == nil {
		h.fail(w, r, errHistoryDisabled)
		return
	}

	totals, err := h.History.FeeTotals(r.Context(), mint)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, totals)
}
